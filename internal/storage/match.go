package storage

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// wildcardCache memoizes the compiled regexp per pattern — QIDO query
// patterns repeat across requests against the same handler instance.
var (
	wildcardCacheMu sync.Mutex
	wildcardCache   = map[string]*regexp.Regexp{}
)

// MatchesWildcard reports whether value matches a DICOM attribute
// matching pattern supporting '*' (any run of characters) and '?' (any
// single character), case-insensitively. Exported so alternative
// Provider implementations (sqlstore) can apply the same matching
// semantics as the reference in-memory store.
func MatchesWildcard(pattern, value string) bool {
	if pattern == "" {
		return true
	}
	if !strings.ContainsAny(pattern, "*?") {
		return strings.EqualFold(pattern, value)
	}

	wildcardCacheMu.Lock()
	re, ok := wildcardCache[pattern]
	if !ok {
		re = regexp.MustCompile("(?i)^" + globToRegexp(pattern) + "$")
		wildcardCache[pattern] = re
	}
	wildcardCacheMu.Unlock()

	return re.MatchString(value)
}

func globToRegexp(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}

// MatchesDateRange reports whether a YYYYMMDD date falls within an
// open-ended-on-either-side range. An empty date never matches a
// non-empty range.
func MatchesDateRange(date string, r DateRange) bool {
	if r.Start == "" && r.End == "" {
		return true
	}
	if date == "" {
		return false
	}
	if r.Start != "" && compareDates(date, r.Start) < 0 {
		return false
	}
	if r.End != "" && compareDates(date, r.End) > 0 {
		return false
	}
	return true
}

func compareDates(a, b string) int {
	an, aerr := strconv.Atoi(a)
	bn, berr := strconv.Atoi(b)
	if aerr != nil || berr != nil {
		return strings.Compare(a, b)
	}
	switch {
	case an < bn:
		return -1
	case an > bn:
		return 1
	default:
		return 0
	}
}

// Paginate applies StorageQuery offset/limit to a slice length n,
// returning the [start, end) bounds clamped to [0, n].
func Paginate(n int, q StorageQuery) (start, end int) {
	start = q.Offset
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end = n
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	return start, end
}
