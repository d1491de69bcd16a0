package qido_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dicomkit/dicomweb-server/internal/dicomjson"
	"github.com/dicomkit/dicomweb-server/internal/qido"
	"github.com/dicomkit/dicomweb-server/internal/storage"
)

func TestParseQueryRecognizesKnownTags(t *testing.T) {
	values := url.Values{
		storage.TagPatientName: {"DOE^JOHN"},
		storage.TagModality:    {"CT"},
		"limit":                {"10"},
		"offset":               {"5"},
		"fuzzymatching":        {"true"},
		"includefield":         {"00081030,0008103E"},
	}

	q, apiErr := qido.ParseQuery(values)
	require.Nil(t, apiErr)
	assert.Equal(t, "DOE^JOHN", q.PatientName)
	assert.Equal(t, "CT", q.Modality)
	assert.Equal(t, 10, q.Limit)
	assert.Equal(t, 5, q.Offset)
	assert.True(t, q.FuzzyMatching)
	assert.Equal(t, []string{"00081030", "0008103E"}, q.IncludeFields)
}

func TestParseQueryRejectsInvalidLimit(t *testing.T) {
	_, apiErr := qido.ParseQuery(url.Values{"limit": {"not-a-number"}})
	require.NotNil(t, apiErr)
}

func TestParseQueryRejectsNegativeOffset(t *testing.T) {
	_, apiErr := qido.ParseQuery(url.Values{"offset": {"-1"}})
	require.NotNil(t, apiErr)
}

func TestParseQueryRejectsInvalidFuzzymatching(t *testing.T) {
	_, apiErr := qido.ParseQuery(url.Values{"fuzzymatching": {"maybe"}})
	require.NotNil(t, apiErr)
}

func TestParseQueryIgnoresMalformedTagKeys(t *testing.T) {
	q, apiErr := qido.ParseQuery(url.Values{"not-a-tag": {"x"}})
	require.Nil(t, apiErr)
	assert.Empty(t, q.Attributes)
}

func TestParseQueryFallsBackToAttributesMap(t *testing.T) {
	q, apiErr := qido.ParseQuery(url.Values{"0008103E": {"CHEST*"}})
	require.Nil(t, apiErr)
	assert.Equal(t, "CHEST*", q.Attributes["0008103E"])
}

func TestParseQueryStudyDateSingleValue(t *testing.T) {
	q, apiErr := qido.ParseQuery(url.Values{storage.TagStudyDate: {"20240101"}})
	require.Nil(t, apiErr)
	assert.Equal(t, storage.DateRange{Start: "20240101", End: "20240101"}, q.StudyDate)
}

func TestParseQueryStudyDateOpenEndedRanges(t *testing.T) {
	q, apiErr := qido.ParseQuery(url.Values{storage.TagStudyDate: {"20240101-"}})
	require.Nil(t, apiErr)
	assert.Equal(t, storage.DateRange{Start: "20240101", End: ""}, q.StudyDate)

	q, apiErr = qido.ParseQuery(url.Values{storage.TagStudyDate: {"-20240101"}})
	require.Nil(t, apiErr)
	assert.Equal(t, storage.DateRange{Start: "", End: "20240101"}, q.StudyDate)
}

func TestParseQueryStudyDateClosedRange(t *testing.T) {
	q, apiErr := qido.ParseQuery(url.Values{storage.TagStudyDate: {"20240101-20241231"}})
	require.Nil(t, apiErr)
	assert.Equal(t, storage.DateRange{Start: "20240101", End: "20241231"}, q.StudyDate)
}

func seedStore(t *testing.T) storage.Provider {
	t.Helper()
	store := storage.NewMemoryStore()
	attrs := dicomjson.Dataset{}
	attrs.SetString(storage.TagStudyInstanceUID, "UI", "1.2.3")
	attrs.SetString(storage.TagSeriesInstanceUID, "UI", "1.2.3.4")
	attrs.SetString(storage.TagSOPInstanceUID, "UI", "1.2.3.4.5")
	attrs.SetString(storage.TagSOPClassUID, "UI", "1.2.840.10008.5.1.4.1.1.7")
	attrs.SetString(storage.TagPatientName, "PN", "DOE^JOHN")
	attrs.SetString(storage.TagPatientID, "LO", "P1")
	attrs.SetString(storage.TagStudyDate, "DA", "20240101")
	attrs.SetString(storage.TagModality, "CS", "CT")
	attrs.SetString(storage.TagSeriesNumber, "IS", "1")
	attrs.SetString(storage.TagInstanceNumber, "IS", "1")

	err := store.StoreInstance(context.Background(), storage.InstanceRecord{
		StudyInstanceUID:  "1.2.3",
		SeriesInstanceUID: "1.2.3.4",
		SOPInstanceUID:    "1.2.3.4.5",
		SOPClassUID:       "1.2.840.10008.5.1.4.1.1.7",
		Data:              []byte("fake"),
		Attributes:        attrs,
	})
	require.NoError(t, err)
	return store
}

func TestHandlerSearchStudiesProjectsRetrieveURL(t *testing.T) {
	h := qido.NewHandler(seedStore(t), "http://localhost:8042/dicom-web")
	datasets, apiErr := h.SearchStudies(context.Background(), url.Values{storage.TagPatientName: {"DOE*"}})
	require.Nil(t, apiErr)
	require.Len(t, datasets, 1)

	url, ok := datasets[0].GetString(storage.TagRetrieveURL)
	require.True(t, ok)
	assert.Equal(t, "http://localhost:8042/dicom-web/studies/1.2.3", url)
}

func TestHandlerSearchStudiesNoMatch(t *testing.T) {
	h := qido.NewHandler(seedStore(t), "http://localhost:8042/dicom-web")
	datasets, apiErr := h.SearchStudies(context.Background(), url.Values{storage.TagPatientName: {"SMITH*"}})
	require.Nil(t, apiErr)
	assert.Empty(t, datasets)
}

func TestHandlerSearchSeriesInStudyProjectsRetrieveURL(t *testing.T) {
	h := qido.NewHandler(seedStore(t), "http://localhost:8042/dicom-web")
	datasets, apiErr := h.SearchSeriesInStudy(context.Background(), "1.2.3", url.Values{})
	require.Nil(t, apiErr)
	require.Len(t, datasets, 1)

	url, ok := datasets[0].GetString(storage.TagRetrieveURL)
	require.True(t, ok)
	assert.Equal(t, "http://localhost:8042/dicom-web/studies/1.2.3/series/1.2.3.4", url)
}

func TestHandlerSearchInstancesInSeriesProjectsRetrieveURL(t *testing.T) {
	h := qido.NewHandler(seedStore(t), "http://localhost:8042/dicom-web")
	datasets, apiErr := h.SearchInstancesInSeries(context.Background(), "1.2.3", "1.2.3.4", url.Values{})
	require.Nil(t, apiErr)
	require.Len(t, datasets, 1)

	url, ok := datasets[0].GetString(storage.TagRetrieveURL)
	require.True(t, ok)
	assert.Equal(t, "http://localhost:8042/dicom-web/studies/1.2.3/series/1.2.3.4/instances/1.2.3.4.5", url)
}

func TestHandlerSearchInstancesInSeriesInvalidLimitPropagatesError(t *testing.T) {
	h := qido.NewHandler(seedStore(t), "http://localhost:8042/dicom-web")
	_, apiErr := h.SearchInstancesInSeries(context.Background(), "1.2.3", "1.2.3.4", url.Values{"limit": {"bad"}})
	require.NotNil(t, apiErr)
}
