// Package qido implements the QIDO-RS query handlers (spec.md §4.4):
// translating recognized query parameters into a storage.StorageQuery
// and projecting storage summaries into DICOM+JSON datasets.
package qido

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/dicomkit/dicomweb-server/internal/apierror"
	"github.com/dicomkit/dicomweb-server/internal/dicomjson"
	"github.com/dicomkit/dicomweb-server/internal/storage"
)

var tagKeyPattern = regexp.MustCompile(`^[0-9A-Fa-f]{8}$`)

// Handler serves QIDO-RS search requests against a storage.Provider.
type Handler struct {
	Store   storage.Provider
	BaseURL string
}

// NewHandler builds a QIDO handler bound to a provider.
func NewHandler(store storage.Provider, baseURL string) *Handler {
	return &Handler{Store: store, BaseURL: baseURL}
}

// ParseQuery builds a storage.StorageQuery from raw QIDO-RS query
// parameters: recognized DICOM tag keys plus limit/offset/fuzzymatching/
// includefield (spec.md §4.4).
func ParseQuery(values url.Values) (storage.StorageQuery, *apierror.Error) {
	q := storage.StorageQuery{Attributes: map[string]string{}}

	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, apierror.New(apierror.KindBadRequest, "invalid limit parameter")
		}
		q.Limit = n
	}
	if raw := values.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, apierror.New(apierror.KindBadRequest, "invalid offset parameter")
		}
		q.Offset = n
	}
	if raw := values.Get("fuzzymatching"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return q, apierror.New(apierror.KindBadRequest, "invalid fuzzymatching parameter")
		}
		q.FuzzyMatching = b
	}
	if raw := values.Get("includefield"); raw != "" {
		q.IncludeFields = strings.Split(raw, ",")
	}

	for key, vals := range values {
		if len(vals) == 0 || vals[0] == "" {
			continue
		}
		if !tagKeyPattern.MatchString(key) {
			continue
		}
		tag := strings.ToUpper(key)
		value := vals[0]

		switch tag {
		case storage.TagPatientName:
			q.PatientName = value
		case storage.TagPatientID:
			q.PatientID = value
		case storage.TagModality:
			q.Modality = value
		case storage.TagStudyInstanceUID:
			q.StudyInstanceUID = value
		case storage.TagStudyDate:
			q.StudyDate = parseDateRange(value)
		default:
			q.Attributes[tag] = value
		}
	}

	return q, nil
}

// parseDateRange parses "YYYYMMDD", "YYYYMMDD-", "-YYYYMMDD", or
// "YYYYMMDD-YYYYMMDD" into an open-ended-on-either-side DateRange.
func parseDateRange(value string) storage.DateRange {
	if !strings.Contains(value, "-") {
		return storage.DateRange{Start: value, End: value}
	}
	parts := strings.SplitN(value, "-", 2)
	return storage.DateRange{Start: parts[0], End: parts[1]}
}

// SearchStudies runs searchStudies and projects results to DICOM+JSON.
func (h *Handler) SearchStudies(ctx context.Context, values url.Values) ([]dicomjson.Dataset, *apierror.Error) {
	q, apiErr := ParseQuery(values)
	if apiErr != nil {
		return nil, apiErr
	}
	results, err := h.Store.SearchStudies(ctx, q)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "search studies failed", err)
	}
	datasets := make([]dicomjson.Dataset, 0, len(results))
	for _, r := range results {
		datasets = append(datasets, studyDataset(r, h.BaseURL))
	}
	return datasets, nil
}

// SearchSeriesInStudy runs searchSeries scoped to studyUID.
func (h *Handler) SearchSeriesInStudy(ctx context.Context, studyUID string, values url.Values) ([]dicomjson.Dataset, *apierror.Error) {
	q, apiErr := ParseQuery(values)
	if apiErr != nil {
		return nil, apiErr
	}
	results, err := h.Store.SearchSeries(ctx, studyUID, q)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "search series failed", err)
	}
	datasets := make([]dicomjson.Dataset, 0, len(results))
	for _, r := range results {
		datasets = append(datasets, seriesDataset(r, h.BaseURL))
	}
	return datasets, nil
}

// SearchInstancesInSeries runs searchInstances scoped to (studyUID, seriesUID).
func (h *Handler) SearchInstancesInSeries(ctx context.Context, studyUID, seriesUID string, values url.Values) ([]dicomjson.Dataset, *apierror.Error) {
	q, apiErr := ParseQuery(values)
	if apiErr != nil {
		return nil, apiErr
	}
	results, err := h.Store.SearchInstances(ctx, studyUID, seriesUID, q)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "search instances failed", err)
	}
	datasets := make([]dicomjson.Dataset, 0, len(results))
	for _, r := range results {
		datasets = append(datasets, instanceDataset(r, h.BaseURL))
	}
	return datasets, nil
}

func studyDataset(s storage.StudySummary, baseURL string) dicomjson.Dataset {
	ds := dicomjson.Dataset{}
	ds.SetString(storage.TagStudyInstanceUID, "UI", s.StudyInstanceUID)
	ds.SetString(storage.TagPatientID, "LO", s.PatientID)
	if s.PatientName != "" {
		ds.Set(storage.TagPatientName, "PN", dicomjson.PersonNameValue(dicomjson.PersonName{Alphabetic: s.PatientName}))
	}
	ds.SetString(storage.TagStudyDate, "DA", s.StudyDate)
	ds.SetString(storage.TagAccessionNumber, "SH", s.AccessionNumber)
	ds.Set(storage.TagNumberOfSeries, "IS", dicomjson.Number(float64(s.NumberOfSeries)))
	ds.Set(storage.TagNumberOfInstances, "IS", dicomjson.Number(float64(s.NumberOfInstances)))
	if len(s.ModalitiesInStudy) > 0 {
		values := make([]dicomjson.Value, 0, len(s.ModalitiesInStudy))
		for _, m := range s.ModalitiesInStudy {
			values = append(values, dicomjson.String(m))
		}
		ds.Set(storage.TagModalitiesInStudy, "CS", values...)
	}
	ds.Set(storage.TagRetrieveURL, "UR", dicomjson.String(fmt.Sprintf("%s/studies/%s", baseURL, s.StudyInstanceUID)))
	return ds
}

func seriesDataset(s storage.SeriesSummary, baseURL string) dicomjson.Dataset {
	ds := dicomjson.Dataset{}
	ds.SetString(storage.TagSeriesInstanceUID, "UI", s.SeriesInstanceUID)
	ds.SetString(storage.TagModality, "CS", s.Modality)
	ds.SetString(storage.TagSeriesNumber, "IS", s.SeriesNumber)
	ds.Set(storage.TagNumberOfInstances, "IS", dicomjson.Number(float64(s.NumberOfInstances)))
	ds.Set(storage.TagRetrieveURL, "UR", dicomjson.String(fmt.Sprintf("%s/studies/%s/series/%s", baseURL, s.StudyInstanceUID, s.SeriesInstanceUID)))
	return ds
}

func instanceDataset(s storage.InstanceSummary, baseURL string) dicomjson.Dataset {
	ds := dicomjson.Dataset{}
	ds.SetString(storage.TagSOPInstanceUID, "UI", s.SOPInstanceUID)
	ds.SetString(storage.TagSOPClassUID, "UI", s.SOPClassUID)
	ds.SetString(storage.TagInstanceNumber, "IS", s.InstanceNumber)
	ds.Set(storage.TagRetrieveURL, "UR", dicomjson.String(fmt.Sprintf("%s/studies/%s/series/%s/instances/%s", baseURL, s.StudyInstanceUID, s.SeriesInstanceUID, s.SOPInstanceUID)))
	return ds
}
