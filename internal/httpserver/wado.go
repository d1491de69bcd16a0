package httpserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/dicomkit/dicomweb-server/internal/apierror"
	"github.com/dicomkit/dicomweb-server/internal/dicomjson"
	"github.com/dicomkit/dicomweb-server/internal/negotiate"
	"github.com/dicomkit/dicomweb-server/internal/wado"
)

func (f *frontend) retrieveInstance(w http.ResponseWriter, r *http.Request, studyUID, seriesUID, instanceUID string) {
	var rng *negotiate.ByteRange
	if header := r.Header.Get("Range"); header != "" {
		parsed, ok := negotiate.ParseRange(header)
		if !ok {
			writeAPIError(w, apierror.New(apierror.KindBadRequest, "malformed Range header"))
			return
		}
		rng = &parsed
	}

	content, apiErr := f.deps.WADO.RetrieveInstance(r.Context(), studyUID, seriesUID, instanceUID, rng)
	if apiErr != nil {
		if apiErr.Kind == apierror.KindRangeNotSatisfiable {
			w.Header().Set("Content-Range", apiErr.Message)
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		writeAPIError(w, apiErr)
		return
	}

	w.Header().Set("Content-Type", "application/dicom")
	w.Header().Set("Accept-Ranges", "bytes")
	if content.Partial {
		w.Header().Set("Content-Range", content.ContentRange)
		w.Header().Set("Content-Length", strconv.Itoa(len(content.Data)))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Content-Length", strconv.Itoa(len(content.Data)))
		w.WriteHeader(http.StatusOK)
	}
	_, _ = w.Write(content.Data)
}

func (f *frontend) retrieveSeries(w http.ResponseWriter, r *http.Request, studyUID, seriesUID string) {
	instances, apiErr := f.deps.WADO.RetrieveSeries(r.Context(), studyUID, seriesUID)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	writeMultipartInstances(w, instances)
}

func (f *frontend) retrieveStudy(w http.ResponseWriter, r *http.Request, studyUID string) {
	instances, apiErr := f.deps.WADO.RetrieveStudy(r.Context(), studyUID)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	writeMultipartInstances(w, instances)
}

func writeMultipartInstances(w http.ResponseWriter, instances []wado.MultipartInstance) {
	boundary := newBoundary()
	body, err := wado.EncodeMultipartRelated(instances, boundary)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", fmt.Sprintf(`multipart/related; type="application/dicom"; boundary=%s`, boundary))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (f *frontend) retrieveStudyMetadata(w http.ResponseWriter, r *http.Request, studyUID string) {
	datasets, apiErr := f.deps.WADO.StudyMetadata(r.Context(), studyUID)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, datasets)
}

func (f *frontend) retrieveSeriesMetadata(w http.ResponseWriter, r *http.Request, studyUID, seriesUID string) {
	datasets, apiErr := f.deps.WADO.SeriesMetadata(r.Context(), studyUID, seriesUID)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, datasets)
}

func (f *frontend) retrieveInstanceMetadata(w http.ResponseWriter, r *http.Request, studyUID, seriesUID, instanceUID string) {
	dataset, apiErr := f.deps.WADO.InstanceMetadata(r.Context(), studyUID, seriesUID, instanceUID)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, []dicomjson.Dataset{dataset})
}

func (f *frontend) retrieveFrames(w http.ResponseWriter, r *http.Request, studyUID, seriesUID, instanceUID, framesParam string) {
	numbers, apiErr := wado.ParseFrameList(framesParam)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	frames, apiErr := f.deps.WADO.RetrieveFrames(r.Context(), studyUID, seriesUID, instanceUID, numbers)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}

	boundary := newBoundary()
	body, err := wado.EncodeMultipartFrames(frames, boundary)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", fmt.Sprintf("multipart/related; type=%q; boundary=%s", frames[0].ContentType, boundary))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
