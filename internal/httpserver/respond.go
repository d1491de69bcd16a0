// Package httpserver binds the fixed DICOMweb route table (internal/router)
// to the QIDO-RS, WADO-RS, STOW-RS, and UPS-RS handlers, translating
// *apierror.Error into the response shapes spec.md §4 requires and
// layering content negotiation, response caching and admission control
// around them. Rate limiting and request logging are applied outside
// this package, by internal/middleware in cmd/server.
package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dicomkit/dicomweb-server/internal/apierror"
)

// errorBody is the JSON error shape this package writes; the rate
// limiting middleware's 429 body uses the same two keys.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeAPIError(w http.ResponseWriter, apiErr *apierror.Error) {
	status := apiErr.Kind.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.Error().Str("kind", string(apiErr.Kind)).Err(apiErr.Wrapped).Msg(apiErr.Message)
	}
	writeJSON(w, status, errorBody{Error: string(apiErr.Kind), Message: apiErr.Message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("httpserver: encoding JSON response failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/dicom+json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeJSONWithCount is writeJSON plus X-Total-Count, the result-count
// header spec.md §4.4/§6 require on QIDO-RS search responses.
func writeJSONWithCount(w http.ResponseWriter, status, count int, v interface{}) {
	w.Header().Set("X-Total-Count", strconv.Itoa(count))
	writeJSON(w, status, v)
}

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func newBoundary() string {
	return "dicomweb-" + uuid.NewString()
}
