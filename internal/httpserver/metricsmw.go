package httpserver

import (
	"net/http"
	"strconv"

	"github.com/dicomkit/dicomweb-server/internal/metrics"
	"github.com/dicomkit/dicomweb-server/internal/router"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// MetricsMiddleware records dicomweb_http_requests_total by matched
// route type and status, keeping label cardinality bounded (unlike the
// raw request path, which carries unbounded study/series/instance UIDs).
func MetricsMiddleware(rt *router.Router, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		handlerType, _, ok := rt.Match(r.Method, r.URL.Path)
		label := string(handlerType)
		if !ok {
			label = "unmatched"
		}
		metrics.RequestsTotal.WithLabelValues(label, strconv.Itoa(rec.status)).Inc()
	})
}
