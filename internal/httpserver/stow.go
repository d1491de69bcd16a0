package httpserver

import (
	"errors"
	"io"
	"net/http"

	"github.com/dicomkit/dicomweb-server/internal/apierror"
	"github.com/dicomkit/dicomweb-server/internal/stow"
)

func (f *frontend) storeInstances(w http.ResponseWriter, r *http.Request, pathStudyUID string) {
	maxSize := f.deps.Config.MaxRequestBodySize
	if maxSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeAPIError(w, apierror.New(apierror.KindPayloadTooLarge, "request body exceeds the configured maximum size"))
			return
		}
		writeAPIError(w, apierror.Wrap(apierror.KindBadRequest, "reading request body failed", err))
		return
	}

	outcomes, apiErr := f.deps.STOW.Ingest(r.Context(), stow.Request{
		ContentType:  r.Header.Get("Content-Type"),
		Body:         body,
		PathStudyUID: pathStudyUID,
	})
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	response := stow.BuildResponse(outcomes)
	status := http.StatusOK
	if !anySucceeded(outcomes) {
		status = http.StatusConflict
	} else if !allSucceeded(outcomes) {
		status = http.StatusAccepted
	}
	writeJSON(w, status, response)
}

func anySucceeded(outcomes []stow.PartOutcome) bool {
	for _, o := range outcomes {
		if o.Success {
			return true
		}
	}
	return false
}

func allSucceeded(outcomes []stow.PartOutcome) bool {
	for _, o := range outcomes {
		if !o.Success {
			return false
		}
	}
	return true
}
