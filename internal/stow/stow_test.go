package stow_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dicomkit/dicomweb-server/internal/apierror"
	"github.com/dicomkit/dicomweb-server/internal/config"
	"github.com/dicomkit/dicomweb-server/internal/stow"
)

func TestIngestEmptyBodyIsBadRequest(t *testing.T) {
	h := stow.NewHandler(nil, config.STOWDefault(), "http://localhost:8042/dicom-web")
	_, apiErr := h.Ingest(context.Background(), stow.Request{ContentType: "application/dicom"})
	require.NotNil(t, apiErr)
	assert.Equal(t, apierror.KindBadRequest, apiErr.Kind)
}

func TestIngestMissingContentTypeIsUnsupportedMediaType(t *testing.T) {
	h := stow.NewHandler(nil, config.STOWDefault(), "http://localhost:8042/dicom-web")
	_, apiErr := h.Ingest(context.Background(), stow.Request{Body: []byte("not empty")})
	require.NotNil(t, apiErr)
	assert.Equal(t, apierror.KindUnsupportedMediaType, apiErr.Kind)
}

func TestIngestUnsupportedContentTypeIsUnsupportedMediaType(t *testing.T) {
	h := stow.NewHandler(nil, config.STOWDefault(), "http://localhost:8042/dicom-web")
	_, apiErr := h.Ingest(context.Background(), stow.Request{
		Body:        []byte("not empty"),
		ContentType: "application/json",
	})
	require.NotNil(t, apiErr)
	assert.Equal(t, apierror.KindUnsupportedMediaType, apiErr.Kind)
}

func TestIngestMultipartWithoutBoundaryIsBadRequest(t *testing.T) {
	h := stow.NewHandler(nil, config.STOWDefault(), "http://localhost:8042/dicom-web")
	_, apiErr := h.Ingest(context.Background(), stow.Request{
		Body:        []byte("not empty"),
		ContentType: "multipart/related",
	})
	require.NotNil(t, apiErr)
	assert.Equal(t, apierror.KindBadRequest, apiErr.Kind)
}

func TestIngestUnparseableDICOMYieldsPartFailure(t *testing.T) {
	h := stow.NewHandler(nil, config.STOWDefault(), "http://localhost:8042/dicom-web")
	outcomes, apiErr := h.Ingest(context.Background(), stow.Request{
		Body:        []byte("this is not a DICOM Part-10 file"),
		ContentType: "application/dicom",
	})
	require.Nil(t, apiErr)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Success)
	assert.NotEmpty(t, outcomes[0].FailureReason)
}

func TestResponseStatusAllSuccess(t *testing.T) {
	outcomes := []stow.PartOutcome{{Success: true}, {Success: true}}
	assert.Equal(t, http.StatusOK, stow.ResponseStatus(outcomes))
}

func TestResponseStatusAllFailed(t *testing.T) {
	outcomes := []stow.PartOutcome{{Success: false}, {Success: false}}
	assert.Equal(t, http.StatusConflict, stow.ResponseStatus(outcomes))
}

func TestResponseStatusPartialSuccess(t *testing.T) {
	outcomes := []stow.PartOutcome{{Success: true}, {Success: false}}
	assert.Equal(t, http.StatusAccepted, stow.ResponseStatus(outcomes))
}

func TestBuildResponseContainsReferencedAndFailedSequences(t *testing.T) {
	outcomes := []stow.PartOutcome{
		{Success: true, SOPClassUID: "1.2.840.10008.5.1.4.1.1.7", SOPInstanceUID: "1.2.3.4.5", RetrieveURL: "http://x/1.2.3.4.5"},
		{Success: false, SOPClassUID: "1.2.840.10008.5.1.4.1.1.7", SOPInstanceUID: "1.2.3.4.6", FailureReason: "already exists"},
	}
	resp := stow.BuildResponse(outcomes)

	referenced, ok := resp["00081199"]
	require.True(t, ok)
	require.Len(t, referenced.Value, 1)

	failed, ok := resp["00081198"]
	require.True(t, ok)
	require.Len(t, failed.Value, 1)
}

func TestBuildResponseOmitsEmptySequences(t *testing.T) {
	resp := stow.BuildResponse([]stow.PartOutcome{{Success: true, SOPInstanceUID: "1.2.3"}})
	_, hasFailed := resp["00081198"]
	assert.False(t, hasFailed)
}
