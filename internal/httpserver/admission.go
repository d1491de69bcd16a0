package httpserver

import "net/http"

// admissionControl bounds the number of requests in flight to maxInFlight
// (spec.md §5/§6 "maxConcurrentRequests"), rejecting with 503 rather than
// queuing indefinitely once the bound is reached. maxInFlight <= 0 disables
// the check.
func admissionControl(maxInFlight int, next http.Handler) http.Handler {
	if maxInFlight <= 0 {
		return next
	}
	slots := make(chan struct{}, maxInFlight)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case slots <- struct{}{}:
		default:
			writeAPIError(w, serverOverloaded())
			return
		}
		defer func() { <-slots }()
		next.ServeHTTP(w, r)
	})
}
