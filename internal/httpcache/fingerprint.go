// Package httpcache implements the response cache middleware (spec.md
// §4.9): a canonical fingerprint key, ETag-based conditional requests,
// path-scoped invalidation on mutating requests, and hit/miss/eviction
// statistics. It wraps the teacher's internal/cache.Cache byte store
// for payload persistence (memory or redis-backed) and layers its own
// index for the fingerprint -> study-UID bookkeeping that interface
// does not expose.
package httpcache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Fingerprint computes the canonical cache key for a GET request:
// method, full path, query parameters sorted by key, Accept, and
// Accept-Charset (spec.md §4.9 "Key").
func Fingerprint(method, path string, query url.Values, accept, acceptCharset string) string {
	var b strings.Builder
	b.WriteString(method)
	b.WriteByte('\n')
	b.WriteString(path)
	b.WriteByte('\n')

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		values := append([]string(nil), query[k]...)
		sort.Strings(values)
		for _, v := range values {
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(v)
			b.WriteByte('&')
		}
	}
	b.WriteByte('\n')
	b.WriteString(accept)
	b.WriteByte('\n')
	b.WriteString(acceptCharset)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// studyUIDFromPath extracts the studyUID path segment from a
// "/studies/{uid}..." or "/workitems/{uid}..." path, for scoped
// invalidation (spec.md §4.9 "Invalidation"). Returns "" when the path
// does not carry one.
func studyUIDFromPath(path string) string {
	path = strings.TrimPrefix(path, "/")
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if (seg == "studies" || seg == "workitems") && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	return ""
}
