package router_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dicomkit/dicomweb-server/internal/router"
)

func TestMatchEveryDeclaredRoute(t *testing.T) {
	rt := router.New("/dicom-web")

	cases := []struct {
		method   string
		path     string
		wantType router.HandlerType
		wantVals map[string]string
	}{
		{http.MethodGet, "/dicom-web/studies", router.SearchStudies, map[string]string{}},
		{http.MethodGet, "/dicom-web/studies/1.2.3", router.RetrieveStudy, map[string]string{"studyUID": "1.2.3"}},
		{http.MethodGet, "/dicom-web/studies/1.2.3/metadata", router.RetrieveStudyMetadata, map[string]string{"studyUID": "1.2.3"}},
		{http.MethodGet, "/dicom-web/studies/1.2.3/series", router.SearchSeriesInStudy, map[string]string{"studyUID": "1.2.3"}},
		{http.MethodGet, "/dicom-web/studies/1.2.3/series/4.5.6", router.RetrieveSeries, map[string]string{"studyUID": "1.2.3", "seriesUID": "4.5.6"}},
		{http.MethodGet, "/dicom-web/studies/1.2.3/series/4.5.6/metadata", router.RetrieveSeriesMetadata, map[string]string{"studyUID": "1.2.3", "seriesUID": "4.5.6"}},
		{http.MethodGet, "/dicom-web/studies/1.2.3/series/4.5.6/instances", router.SearchInstancesInSeries, map[string]string{"studyUID": "1.2.3", "seriesUID": "4.5.6"}},
		{http.MethodGet, "/dicom-web/studies/1.2.3/series/4.5.6/instances/7.8.9", router.RetrieveInstance, map[string]string{"studyUID": "1.2.3", "seriesUID": "4.5.6", "instanceUID": "7.8.9"}},
		{http.MethodGet, "/dicom-web/studies/1.2.3/series/4.5.6/instances/7.8.9/metadata", router.RetrieveInstanceMetadata, map[string]string{"studyUID": "1.2.3", "seriesUID": "4.5.6", "instanceUID": "7.8.9"}},
		{http.MethodGet, "/dicom-web/studies/1.2.3/series/4.5.6/instances/7.8.9/frames/1,2,3", router.RetrieveFrames, map[string]string{"studyUID": "1.2.3", "seriesUID": "4.5.6", "instanceUID": "7.8.9", "frames": "1,2,3"}},
		{http.MethodDelete, "/dicom-web/studies/1.2.3", router.DeleteStudy, map[string]string{"studyUID": "1.2.3"}},
		{http.MethodDelete, "/dicom-web/studies/1.2.3/series/4.5.6", router.DeleteSeries, map[string]string{"studyUID": "1.2.3", "seriesUID": "4.5.6"}},
		{http.MethodDelete, "/dicom-web/studies/1.2.3/series/4.5.6/instances/7.8.9", router.DeleteInstance, map[string]string{"studyUID": "1.2.3", "seriesUID": "4.5.6", "instanceUID": "7.8.9"}},
		{http.MethodPost, "/dicom-web/studies", router.StoreInstances, map[string]string{}},
		{http.MethodPost, "/dicom-web/studies/1.2.3", router.StoreInstancesToStudy, map[string]string{"studyUID": "1.2.3"}},
		{http.MethodGet, "/dicom-web/workitems", router.SearchWorkitems, map[string]string{}},
		{http.MethodPost, "/dicom-web/workitems", router.CreateWorkitem, map[string]string{}},
		{http.MethodGet, "/dicom-web/workitems/1.2.3.4.5", router.RetrieveWorkitem, map[string]string{"workitemUID": "1.2.3.4.5"}},
		{http.MethodPost, "/dicom-web/workitems/1.2.3.4.5", router.CreateWorkitemWithUID, map[string]string{"workitemUID": "1.2.3.4.5"}},
		{http.MethodPut, "/dicom-web/workitems/1.2.3.4.5", router.UpdateWorkitem, map[string]string{"workitemUID": "1.2.3.4.5"}},
		{http.MethodPut, "/dicom-web/workitems/1.2.3.4.5/state", router.ChangeWorkitemState, map[string]string{"workitemUID": "1.2.3.4.5"}},
		{http.MethodPut, "/dicom-web/workitems/1.2.3.4.5/cancelrequest", router.RequestWorkitemCancellation, map[string]string{"workitemUID": "1.2.3.4.5"}},
		{http.MethodPost, "/dicom-web/workitems/1.2.3.4.5/subscribers/SCU1", router.SubscribeWorkitem, map[string]string{"workitemUID": "1.2.3.4.5", "aeTitle": "SCU1"}},
		{http.MethodDelete, "/dicom-web/workitems/1.2.3.4.5/subscribers/SCU1", router.UnsubscribeWorkitem, map[string]string{"workitemUID": "1.2.3.4.5", "aeTitle": "SCU1"}},
		{http.MethodPost, "/dicom-web/workitems/1.2.3.4.5/subscribers/SCU1/suspend", router.SuspendSubscription, map[string]string{"workitemUID": "1.2.3.4.5", "aeTitle": "SCU1"}},
	}

	for _, tc := range cases {
		t.Run(string(tc.wantType), func(t *testing.T) {
			gotType, gotParams, ok := rt.Match(tc.method, tc.path)
			require.True(t, ok, "expected a match for %s %s", tc.method, tc.path)
			assert.Equal(t, tc.wantType, gotType)
			assert.Equal(t, tc.wantVals, gotParams)
		})
	}
}

func TestNoMatchForUnknownPath(t *testing.T) {
	rt := router.New("/dicom-web")
	_, _, ok := rt.Match(http.MethodGet, "/dicom-web/nonexistent")
	assert.False(t, ok)
}

func TestNoMatchWithoutConfiguredPrefix(t *testing.T) {
	rt := router.New("/dicom-web")
	_, _, ok := rt.Match(http.MethodGet, "/studies")
	assert.False(t, ok)
}

func TestEmptyPrefixMatchesBarePath(t *testing.T) {
	rt := router.New("")
	handlerType, _, ok := rt.Match(http.MethodGet, "/studies")
	require.True(t, ok)
	assert.Equal(t, router.SearchStudies, handlerType)
}
