package httpcache

import "net/http"

// responseRecorder buffers a downstream handler's status, headers, and
// body instead of writing them straight through, so the middleware can
// inject ETag/Cache-Control (spec.md §4.9 "Store") before anything
// reaches the client. Call flushTo to emit the buffered response.
type responseRecorder struct {
	header    http.Header
	status    int
	body      []byte
	wroteOnce bool
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{header: make(http.Header), status: http.StatusOK}
}

func (r *responseRecorder) Header() http.Header {
	return r.header
}

func (r *responseRecorder) WriteHeader(status int) {
	if r.wroteOnce {
		return
	}
	r.wroteOnce = true
	r.status = status
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.wroteOnce = true
	r.body = append(r.body, b...)
	return len(b), nil
}

// flushTo emits the buffered status, headers, and body to w.
func (r *responseRecorder) flushTo(w http.ResponseWriter) {
	dst := w.Header()
	for k, vals := range r.header {
		for _, v := range vals {
			dst.Add(k, v)
		}
	}
	w.WriteHeader(r.status)
	_, _ = w.Write(r.body)
}
