package httpserver

import (
	"errors"
	"net/http"

	"github.com/dicomkit/dicomweb-server/internal/apierror"
	"github.com/dicomkit/dicomweb-server/internal/storage"
)

func (f *frontend) deleteStudy(w http.ResponseWriter, r *http.Request, studyUID string) {
	err := f.deps.WADO.Store.DeleteStudy(r.Context(), studyUID)
	if err != nil {
		writeAPIError(w, deleteError(err, "study"))
		return
	}
	writeNoContent(w)
}

func (f *frontend) deleteSeries(w http.ResponseWriter, r *http.Request, studyUID, seriesUID string) {
	err := f.deps.WADO.Store.DeleteSeries(r.Context(), studyUID, seriesUID)
	if err != nil {
		writeAPIError(w, deleteError(err, "series"))
		return
	}
	writeNoContent(w)
}

func (f *frontend) deleteInstance(w http.ResponseWriter, r *http.Request, studyUID, seriesUID, instanceUID string) {
	err := f.deps.WADO.Store.DeleteInstance(r.Context(), studyUID, seriesUID, instanceUID)
	if err != nil {
		writeAPIError(w, deleteError(err, "instance"))
		return
	}
	writeNoContent(w)
}

func deleteError(err error, resource string) *apierror.Error {
	if errors.Is(err, storage.ErrNotFound) {
		return apierror.New(apierror.KindNotFound, resource+" not found")
	}
	return apierror.Wrap(apierror.KindInternal, "deleting "+resource+" failed", err)
}
