package httpserver

import "net/http"

func (f *frontend) searchStudies(w http.ResponseWriter, r *http.Request) {
	datasets, apiErr := f.deps.QIDO.SearchStudies(r.Context(), r.URL.Query())
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	writeJSONWithCount(w, http.StatusOK, len(datasets), datasets)
}

func (f *frontend) searchSeries(w http.ResponseWriter, r *http.Request, studyUID string) {
	datasets, apiErr := f.deps.QIDO.SearchSeriesInStudy(r.Context(), studyUID, r.URL.Query())
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	writeJSONWithCount(w, http.StatusOK, len(datasets), datasets)
}

func (f *frontend) searchInstances(w http.ResponseWriter, r *http.Request, studyUID, seriesUID string) {
	datasets, apiErr := f.deps.QIDO.SearchInstancesInSeries(r.Context(), studyUID, seriesUID, r.URL.Query())
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	writeJSONWithCount(w, http.StatusOK, len(datasets), datasets)
}
