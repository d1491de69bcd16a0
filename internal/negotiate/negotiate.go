// Package negotiate implements spec.md §4.2: parsing of Accept,
// Accept-Charset, and Range headers, and selecting the best offered
// media type / charset.
package negotiate

import (
	"sort"
	"strconv"
	"strings"
)

// Weighted is one comma-separated header token plus its q value.
type Weighted struct {
	Value string
	Q     float64
}

// ParseCharsets parses an Accept-Charset header into a q-ordered list.
// An absent/empty header yields ["utf-8"] per spec.md §4.2. Entries
// without an explicit q are treated as q=1.0. Per spec.md §9 open
// question 2, q=0 entries are NOT filtered out — only used for
// ordering — matching the observed behavior the spec directs us to
// preserve rather than follow RFC 7231 to the letter.
func ParseCharsets(header string) []Weighted {
	if strings.TrimSpace(header) == "" {
		return []Weighted{{Value: "utf-8", Q: 1.0}}
	}
	return parseWeightedList(header)
}

// ParseAccept parses an Accept header into a q-ordered list of media types.
func ParseAccept(header string) []Weighted {
	if strings.TrimSpace(header) == "" {
		return nil
	}
	return parseWeightedList(header)
}

func parseWeightedList(header string) []Weighted {
	tokens := strings.Split(header, ",")
	result := make([]Weighted, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		parts := strings.Split(tok, ";")
		value := strings.ToLower(strings.TrimSpace(parts[0]))
		q := 1.0
		for _, param := range parts[1:] {
			param = strings.TrimSpace(param)
			if strings.HasPrefix(param, "q=") {
				if parsed, err := strconv.ParseFloat(strings.TrimPrefix(param, "q="), 64); err == nil {
					q = parsed
				}
			}
		}
		result = append(result, Weighted{Value: value, Q: q})
	}

	// Stable sort by q descending; equal-q entries keep input order.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Q > result[j].Q
	})
	return result
}

// NegotiateCharset returns the first acceptable charset from `available`
// that also appears (case-insensitively) in the accept list, honoring
// q-ordering. If the accept list contains a wildcard "*", the first
// entry of `available` is returned. Returns "" if nothing matches.
func NegotiateCharset(accept []Weighted, available []string) string {
	hasWildcard := false
	for _, w := range accept {
		if w.Value == "*" {
			hasWildcard = true
		}
	}

	for _, w := range accept {
		if w.Value == "*" {
			continue
		}
		for _, a := range available {
			if strings.EqualFold(w.Value, a) {
				return a
			}
		}
	}

	if hasWildcard && len(available) > 0 {
		return available[0]
	}
	return ""
}

// NegotiateMediaType returns the first offered media type (in preference
// order) that matches the accept list, honoring wildcards "*/*" and
// "type/*". Returns "" if nothing matches and the accept list is non-empty;
// an empty accept list matches the first offered type (no preference stated).
func NegotiateMediaType(accept []Weighted, offered []string) string {
	if len(accept) == 0 {
		if len(offered) > 0 {
			return offered[0]
		}
		return ""
	}

	for _, w := range accept {
		for _, o := range offered {
			if mediaTypeMatches(w.Value, o) {
				return o
			}
		}
	}
	return ""
}

func mediaTypeMatches(pattern, candidate string) bool {
	if pattern == "*/*" || pattern == "*" {
		return true
	}
	patType, patSub, ok := strings.Cut(pattern, "/")
	if !ok {
		return false
	}
	candType, candSub, ok := strings.Cut(candidate, "/")
	if !ok {
		return false
	}
	if patType != candType {
		return false
	}
	if patSub == "*" {
		return true
	}
	return patSub == candSub
}

// ByteRange is a parsed, validated Range: [Start, End] inclusive.
type ByteRange struct {
	Start int64
	End   int64 // -1 means open-ended ("bytes=N-")
}

// ParseRange recognizes only "bytes=start-end" and "bytes=start-"
// (open-ended). Returns ok=false for: missing "bytes=" prefix, end<start,
// negative start, non-numeric values, or an empty header. Header lookup
// is case-insensitive (the caller is expected to have used
// http.Header.Get, which is already case-insensitive on the key; the
// "bytes=" literal match here is case-insensitive too).
func ParseRange(header string) (ByteRange, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return ByteRange{}, false
	}
	if len(header) < 6 || !strings.EqualFold(header[:6], "bytes=") {
		return ByteRange{}, false
	}
	spec := header[6:]
	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return ByteRange{}, false
	}
	if startStr == "" {
		return ByteRange{}, false
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return ByteRange{}, false
	}

	if endStr == "" {
		return ByteRange{Start: start, End: -1}, true
	}

	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < start {
		return ByteRange{}, false
	}
	return ByteRange{Start: start, End: end}, true
}

// Resolve clamps an open-ended range's End to totalLength-1 and validates
// the range is satisfiable against the total content length, per
// spec.md §4.5/§8 ("Range: bytes=100- against a 50-byte object -> 416").
func (br ByteRange) Resolve(totalLength int64) (ByteRange, bool) {
	if br.Start >= totalLength {
		return br, false
	}
	resolved := br
	if resolved.End == -1 || resolved.End >= totalLength {
		resolved.End = totalLength - 1
	}
	return resolved, true
}
