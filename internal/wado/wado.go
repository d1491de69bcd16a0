// Package wado implements the WADO-RS retrieve handlers (spec.md §4.5):
// bulk DICOM instance/series/study retrieval, metadata projection, and
// Range-aware partial content for single instances.
package wado

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/textproto"

	"github.com/dicomkit/dicomweb-server/internal/apierror"
	"github.com/dicomkit/dicomweb-server/internal/dicomjson"
	"github.com/dicomkit/dicomweb-server/internal/negotiate"
	"github.com/dicomkit/dicomweb-server/internal/storage"
)

// Handler serves WADO-RS retrieve requests against a storage.Provider.
type Handler struct {
	Store   storage.Provider
	BaseURL string
}

// NewHandler builds a WADO handler bound to a provider.
func NewHandler(store storage.Provider, baseURL string) *Handler {
	return &Handler{Store: store, BaseURL: baseURL}
}

// PartialContent is the result of a Range-aware instance retrieval: either
// the full object (Partial == false) or a byte slice of it, with the
// headers §4.5 requires for a 206 response.
type PartialContent struct {
	Data         []byte
	Partial      bool
	ContentRange string // "bytes <start>-<end>/<total>", set when Partial
	TotalLength  int64
}

// RetrieveInstance fetches one instance's raw bytes, honoring an optional
// byte Range. A range whose start is beyond the object length reports
// RangeNotSatisfiable via *apierror.Error so the HTTP front can render the
// required "Content-Range: bytes */<total>" response.
func (h *Handler) RetrieveInstance(ctx context.Context, studyUID, seriesUID, instanceUID string, rng *negotiate.ByteRange) (PartialContent, *apierror.Error) {
	rec, err := h.Store.GetInstance(ctx, studyUID, seriesUID, instanceUID)
	if err != nil {
		return PartialContent{}, notFoundOrInternal(err, "instance not found")
	}

	total := int64(len(rec.Data))
	if rng == nil {
		return PartialContent{Data: rec.Data, TotalLength: total}, nil
	}

	resolved, ok := rng.Resolve(total)
	if !ok {
		return PartialContent{}, apierror.New(apierror.KindRangeNotSatisfiable, fmt.Sprintf("bytes */%d", total))
	}

	return PartialContent{
		Data:         rec.Data[resolved.Start : resolved.End+1],
		Partial:      true,
		ContentRange: fmt.Sprintf("bytes %d-%d/%d", resolved.Start, resolved.End, total),
		TotalLength:  total,
	}, nil
}

// MultipartInstance pairs one instance's bytes with its SOP Class UID, the
// way a multipart/related retrieval response needs per part.
type MultipartInstance struct {
	SOPClassUID    string
	SOPInstanceUID string
	Data           []byte
}

// RetrieveSeries fetches every instance in a series for a multipart/related
// bulk response.
func (h *Handler) RetrieveSeries(ctx context.Context, studyUID, seriesUID string) ([]MultipartInstance, *apierror.Error) {
	recs, err := h.Store.GetSeriesInstances(ctx, studyUID, seriesUID)
	if err != nil {
		return nil, notFoundOrInternal(err, "series not found")
	}
	if len(recs) == 0 {
		return nil, apierror.New(apierror.KindNotFound, "series not found")
	}
	return toMultipart(recs), nil
}

// RetrieveStudy fetches every instance across every series of a study for a
// multipart/related bulk response.
func (h *Handler) RetrieveStudy(ctx context.Context, studyUID string) ([]MultipartInstance, *apierror.Error) {
	seriesList, err := h.Store.SearchSeries(ctx, studyUID, storage.StorageQuery{})
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "listing series failed", err)
	}
	if len(seriesList) == 0 {
		return nil, apierror.New(apierror.KindNotFound, "study not found")
	}

	var all []MultipartInstance
	for _, series := range seriesList {
		recs, err := h.Store.GetSeriesInstances(ctx, studyUID, series.SeriesInstanceUID)
		if err != nil {
			return nil, apierror.Wrap(apierror.KindInternal, "reading series instances failed", err)
		}
		all = append(all, toMultipart(recs)...)
	}
	return all, nil
}

func toMultipart(recs []storage.InstanceRecord) []MultipartInstance {
	out := make([]MultipartInstance, 0, len(recs))
	for _, rec := range recs {
		out = append(out, MultipartInstance{SOPClassUID: rec.SOPClassUID, SOPInstanceUID: rec.SOPInstanceUID, Data: rec.Data})
	}
	return out
}

// EncodeMultipartRelated wraps instances into a multipart/related body with
// the given boundary, each part Content-Type: application/dicom. Returns the
// encoded body; the caller derives the response Content-Type from boundary.
func EncodeMultipartRelated(instances []MultipartInstance, boundary string) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.SetBoundary(boundary); err != nil {
		return nil, fmt.Errorf("wado: setting multipart boundary: %w", err)
	}
	for _, inst := range instances {
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", "application/dicom")
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("wado: creating multipart part: %w", err)
		}
		if _, err := part.Write(inst.Data); err != nil {
			return nil, fmt.Errorf("wado: writing multipart part: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("wado: closing multipart writer: %w", err)
	}
	return buf.Bytes(), nil
}

// InstanceMetadata projects one instance's stored attribute dataset,
// overwriting the RetrieveURL the way QIDO does.
func (h *Handler) InstanceMetadata(ctx context.Context, studyUID, seriesUID, instanceUID string) (dicomjson.Dataset, *apierror.Error) {
	rec, err := h.Store.GetInstance(ctx, studyUID, seriesUID, instanceUID)
	if err != nil {
		return nil, notFoundOrInternal(err, "instance not found")
	}
	ds := cloneDataset(rec.Attributes)
	ds.Set(storage.TagRetrieveURL, "UR", dicomjson.String(fmt.Sprintf("%s/studies/%s/series/%s/instances/%s", h.BaseURL, studyUID, seriesUID, instanceUID)))
	return ds, nil
}

// SeriesMetadata projects the attribute dataset of every instance in a series.
func (h *Handler) SeriesMetadata(ctx context.Context, studyUID, seriesUID string) ([]dicomjson.Dataset, *apierror.Error) {
	recs, err := h.Store.GetSeriesInstances(ctx, studyUID, seriesUID)
	if err != nil {
		return nil, notFoundOrInternal(err, "series not found")
	}
	if len(recs) == 0 {
		return nil, apierror.New(apierror.KindNotFound, "series not found")
	}
	datasets := make([]dicomjson.Dataset, 0, len(recs))
	for _, rec := range recs {
		ds := cloneDataset(rec.Attributes)
		ds.Set(storage.TagRetrieveURL, "UR", dicomjson.String(fmt.Sprintf("%s/studies/%s/series/%s/instances/%s", h.BaseURL, studyUID, rec.SeriesInstanceUID, rec.SOPInstanceUID)))
		datasets = append(datasets, ds)
	}
	return datasets, nil
}

// StudyMetadata projects the attribute dataset of every instance across
// every series of a study.
func (h *Handler) StudyMetadata(ctx context.Context, studyUID string) ([]dicomjson.Dataset, *apierror.Error) {
	seriesList, err := h.Store.SearchSeries(ctx, studyUID, storage.StorageQuery{})
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "listing series failed", err)
	}
	if len(seriesList) == 0 {
		return nil, apierror.New(apierror.KindNotFound, "study not found")
	}

	var all []dicomjson.Dataset
	for _, series := range seriesList {
		datasets, apiErr := h.SeriesMetadata(ctx, studyUID, series.SeriesInstanceUID)
		if apiErr != nil {
			return nil, apiErr
		}
		all = append(all, datasets...)
	}
	return all, nil
}

func cloneDataset(ds dicomjson.Dataset) dicomjson.Dataset {
	out := make(dicomjson.Dataset, len(ds))
	for k, v := range ds {
		out[k] = v
	}
	return out
}

func notFoundOrInternal(err error, message string) *apierror.Error {
	if errors.Is(err, storage.ErrNotFound) {
		return apierror.New(apierror.KindNotFound, message)
	}
	return apierror.Wrap(apierror.KindInternal, message, err)
}
