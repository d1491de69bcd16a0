package httpcache

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dicomkit/dicomweb-server/internal/cache"
	"github.com/dicomkit/dicomweb-server/internal/config"
)

// Stats is the observability snapshot spec.md §4.9 requires.
type Stats struct {
	Hits       int64
	Misses     int64
	Evictions  int64
	EntryCount int
}

// indexRecord tracks what the backend Cache interface alone cannot
// expose: the insertion order (for capacity eviction) and the study/
// workitem UID an entry is scoped to (for targeted invalidation).
type indexRecord struct {
	studyUID  string
	size      int
	createdAt time.Time
}

// Middleware is the response cache described in spec.md §4.9. When
// cfg.Enabled is false, Wrap runs the downstream handler on every
// request and never stores or serves cached responses.
type Middleware struct {
	backend cache.Cache
	cfg     config.CacheConfig

	mu    sync.Mutex
	index map[string]indexRecord // fingerprint -> metadata
	order []string               // fingerprint insertion order, oldest first
	stats Stats
}

// New builds a cache middleware over a byte-oriented backend (memory
// or redis, per config.CacheConfig.Type).
func New(backend cache.Cache, cfg config.CacheConfig) *Middleware {
	return &Middleware{backend: backend, cfg: cfg, index: make(map[string]indexRecord)}
}

// Wrap returns next wrapped with cache lookup/store logic. Only GET
// requests are eligible (spec.md §4.9 "Key").
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.cfg.Enabled || r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		fingerprint := Fingerprint(r.Method, r.URL.Path, r.URL.Query(), r.Header.Get("Accept"), r.Header.Get("Accept-Charset"))

		if cached, ok := m.lookup(r.Context(), fingerprint); ok {
			m.serveCached(w, r, cached)
			return
		}

		rec := newResponseRecorder()
		next.ServeHTTP(rec, r)

		m.maybeStore(r.Context(), fingerprint, r.URL.Path, rec)
		rec.flushTo(w)
	})
}

// InvalidatingMiddleware wraps next so that any mutating request
// (POST/PUT/DELETE) to a /studies/... or /workitems/... path
// invalidates matching cache entries before delegating, per spec.md
// §4.9 "Invalidation".
func (m *Middleware) InvalidatingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isMutating(r.Method) {
			path := r.URL.Path
			if uid := studyUIDFromPath(path); uid != "" {
				m.Invalidate(uid)
			} else if strings.HasPrefix(strings.TrimPrefix(path, "/"), "studies") || strings.HasPrefix(strings.TrimPrefix(path, "/"), "workitems") {
				m.InvalidateAll()
			}
		}
		next.ServeHTTP(w, r)
	})
}

func isMutating(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodDelete
}

func (m *Middleware) lookup(ctx context.Context, fingerprint string) (entry, bool) {
	raw, err := m.backend.Get(ctx, fingerprint)
	if err != nil {
		m.mu.Lock()
		m.stats.Misses++
		m.mu.Unlock()
		return entry{}, false
	}
	e, err := unmarshalEntry(raw)
	if err != nil {
		return entry{}, false
	}
	m.mu.Lock()
	m.stats.Hits++
	m.mu.Unlock()
	return e, true
}

func (m *Middleware) serveCached(w http.ResponseWriter, r *http.Request, e entry) {
	for k, vals := range e.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}

	ifNoneMatch := r.Header.Get("If-None-Match")
	if ifNoneMatch != "" && (ifNoneMatch == "*" || strings.Contains(ifNoneMatch, e.ETag)) {
		w.Header().Set("ETag", e.ETag)
		w.Header().Set("X-Cache", "HIT")
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", e.ETag)
	w.Header().Set("X-Cache", "HIT")
	w.WriteHeader(e.StatusCode)
	_, _ = w.Write(e.Body)
}

func (m *Middleware) maybeStore(ctx context.Context, fingerprint, path string, rec *responseRecorder) {
	rec.Header().Set("X-Cache", "MISS")

	if rec.status != http.StatusOK || len(rec.body) == 0 {
		return
	}

	etag := weakETag(fingerprint, rec.body)
	rec.Header().Set("ETag", etag)
	rec.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(m.cfg.DefaultTTL.Seconds())))

	e := entry{
		StatusCode: rec.status,
		Header:     rec.Header().Clone(),
		Body:       rec.body,
		ETag:       etag,
		CreatedAt:  time.Now(),
	}
	data, err := e.marshal()
	if err != nil {
		return
	}
	if err := m.backend.Set(ctx, fingerprint, data, m.cfg.DefaultTTL); err != nil {
		return
	}

	m.recordIndex(fingerprint, studyUIDFromPath(path), len(data))
}

func (m *Middleware) recordIndex(fingerprint, studyUID string, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.index[fingerprint]; !exists {
		m.order = append(m.order, fingerprint)
	}
	m.index[fingerprint] = indexRecord{studyUID: studyUID, size: size, createdAt: time.Now()}
	m.evictOverCapacityLocked()
}

// evictOverCapacityLocked drops the oldest entries once MaxEntries or
// MaxBytes is exceeded (spec.md §3 "Cache entry... Evicted on ...
// capacity/time bound"). Caller must hold m.mu.
func (m *Middleware) evictOverCapacityLocked() {
	if m.cfg.MaxEntries <= 0 && m.cfg.MaxBytes <= 0 {
		return
	}
	for len(m.order) > 0 && (m.overEntryCapacityLocked() || m.overByteCapacityLocked()) {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.index, oldest)
		_ = m.backend.Delete(context.Background(), oldest)
		m.stats.Evictions++
	}
}

func (m *Middleware) overEntryCapacityLocked() bool {
	return m.cfg.MaxEntries > 0 && len(m.order) > m.cfg.MaxEntries
}

func (m *Middleware) overByteCapacityLocked() bool {
	if m.cfg.MaxBytes <= 0 {
		return false
	}
	var total int64
	for _, rec := range m.index {
		total += int64(rec.size)
	}
	return total > m.cfg.MaxBytes
}

// Invalidate drops every cache entry scoped to studyUID.
func (m *Middleware) Invalidate(studyUID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidateWhereLocked(func(r indexRecord) bool { return r.studyUID == studyUID })
}

// InvalidateAll drops every cache entry.
func (m *Middleware) InvalidateAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidateWhereLocked(func(indexRecord) bool { return true })
}

func (m *Middleware) invalidateWhereLocked(match func(indexRecord) bool) {
	remaining := m.order[:0]
	for _, fp := range m.order {
		rec, ok := m.index[fp]
		if ok && match(rec) {
			delete(m.index, fp)
			_ = m.backend.Delete(context.Background(), fp)
			continue
		}
		remaining = append(remaining, fp)
	}
	m.order = remaining
}

// StatsSnapshot returns the current hit/miss/eviction/entry counters.
func (m *Middleware) StatsSnapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.stats
	snapshot.EntryCount = len(m.index)
	return snapshot
}
