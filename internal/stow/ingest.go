package stow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dicomkit/dicomweb-server/internal/apierror"
	"github.com/dicomkit/dicomweb-server/internal/config"
	"github.com/dicomkit/dicomweb-server/internal/storage"
)

// PartOutcome is one per-part result, success or failure, feeding the
// "Store Instances Response" built by BuildResponse.
type PartOutcome struct {
	SOPClassUID    string
	SOPInstanceUID string
	RetrieveURL    string
	Success        bool
	FailureReason  string
}

// Request is the normalized STOW-RS input: the raw body, its declared
// Content-Type, and the path-scoped study UID when the request targeted
// POST /studies/{studyUID}.
type Request struct {
	ContentType  string
	Body         []byte
	PathStudyUID string
}

// Handler runs the STOW-RS ingestion pipeline (spec.md §4.3) against a
// storage.Provider, honoring a STOWConfig policy.
type Handler struct {
	Store   storage.Provider
	Config  config.STOWConfig
	BaseURL string
}

// NewHandler builds a STOW handler bound to a provider and policy.
func NewHandler(store storage.Provider, cfg config.STOWConfig, baseURL string) *Handler {
	return &Handler{Store: store, Config: cfg, BaseURL: baseURL}
}

// Ingest validates the request's Content-Type, splits it into parts,
// and processes each independently. Returns the accumulated per-part
// outcomes, or a request-level *apierror.Error for failures that abort
// the whole request before any part is examined (§4.3 "Failure modes").
func (h *Handler) Ingest(ctx context.Context, req Request) ([]PartOutcome, *apierror.Error) {
	if len(req.Body) == 0 {
		return nil, apierror.New(apierror.KindBadRequest, "request body is empty")
	}
	if req.ContentType == "" {
		return nil, apierror.New(apierror.KindUnsupportedMediaType, "missing Content-Type header")
	}

	mediaType, params, err := mime.ParseMediaType(req.ContentType)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindUnsupportedMediaType, "unparseable Content-Type", err)
	}

	var parts [][]byte
	switch mediaType {
	case "application/dicom":
		parts = [][]byte{req.Body}
	case "multipart/related":
		boundary, ok := params["boundary"]
		if !ok || boundary == "" {
			return nil, apierror.New(apierror.KindBadRequest, "multipart/related requires a boundary parameter")
		}
		parts, err = splitMultipart(req.Body, boundary)
		if err != nil {
			return nil, apierror.Wrap(apierror.KindBadRequest, "malformed multipart body", err)
		}
	default:
		return nil, apierror.New(apierror.KindUnsupportedMediaType, fmt.Sprintf("unsupported Content-Type %q", mediaType))
	}

	outcomes := make([]PartOutcome, 0, len(parts))
	for _, partData := range parts {
		outcomes = append(outcomes, h.processPart(ctx, partData, req.PathStudyUID))
	}
	return outcomes, nil
}

func (h *Handler) processPart(ctx context.Context, data []byte, pathStudyUID string) PartOutcome {
	parsed, err := parsePart10(data)
	if err != nil {
		log.Warn().Err(err).Msg("stow: failed to parse part as DICOM")
		return PartOutcome{Success: false, FailureReason: "could not be parsed as a DICOM object"}
	}

	outcome := PartOutcome{SOPClassUID: parsed.SOPClassUID, SOPInstanceUID: parsed.SOPInstanceUID}

	if h.Config.ValidateRequiredAttributes {
		if parsed.StudyInstanceUID == "" || parsed.SeriesInstanceUID == "" ||
			parsed.SOPInstanceUID == "" || parsed.SOPClassUID == "" {
			outcome.FailureReason = "missing required UID attribute"
			return outcome
		}
	}

	if h.Config.ValidateUIDFormat {
		for _, uid := range []string{parsed.StudyInstanceUID, parsed.SeriesInstanceUID, parsed.SOPInstanceUID, parsed.SOPClassUID} {
			if uid != "" && !isValidUID(uid) {
				outcome.FailureReason = "malformed UID"
				return outcome
			}
		}
	}

	if h.Config.ValidateSOPClasses && !isAllowedSOPClass(parsed.SOPClassUID, h.Config.AllowedSOPClasses) {
		outcome.FailureReason = "SOP class not allowed"
		return outcome
	}

	if pathStudyUID != "" && parsed.StudyInstanceUID != pathStudyUID {
		outcome.FailureReason = "object's StudyInstanceUID does not match the request path"
		return outcome
	}

	_, err = h.Store.GetInstance(ctx, parsed.StudyInstanceUID, parsed.SeriesInstanceUID, parsed.SOPInstanceUID)
	exists := err == nil

	if exists {
		switch h.Config.DuplicatePolicy {
		case config.DuplicateReject:
			outcome.FailureReason = "already exists"
			return outcome
		case config.DuplicateAccept:
			outcome.Success = true
			outcome.RetrieveURL = h.retrieveURL(parsed)
			return outcome
		case config.DuplicateReplace:
			// fall through to store, overwriting.
		}
	}

	rec := storage.InstanceRecord{
		StudyInstanceUID:  parsed.StudyInstanceUID,
		SeriesInstanceUID: parsed.SeriesInstanceUID,
		SOPInstanceUID:    parsed.SOPInstanceUID,
		SOPClassUID:       parsed.SOPClassUID,
		Data:              parsed.Data,
		Attributes:        parsed.Attributes,
	}
	if err := h.Store.StoreInstance(ctx, rec); err != nil {
		log.Error().Err(err).Str("sopInstanceUID", parsed.SOPInstanceUID).Msg("stow: storage failure")
		outcome.FailureReason = "storage provider failure"
		return outcome
	}

	outcome.Success = true
	outcome.RetrieveURL = h.retrieveURL(parsed)
	return outcome
}

func (h *Handler) retrieveURL(p parsedPart) string {
	return fmt.Sprintf("%s/studies/%s/series/%s/instances/%s", h.BaseURL, p.StudyInstanceUID, p.SeriesInstanceUID, p.SOPInstanceUID)
}

// splitMultipart decodes a multipart/related body into each part's raw
// bytes, discarding MIME part headers.
func splitMultipart(body []byte, boundary string) ([][]byte, error) {
	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	var parts [][]byte
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading multipart part: %w", err)
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return nil, fmt.Errorf("reading multipart part body: %w", err)
		}
		parts = append(parts, data)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("multipart body contained no parts")
	}
	return parts, nil
}

// ResponseStatus maps the accumulated outcomes to the HTTP status
// required by §4.3: 200 on full success, 202 on partial success, 409
// if every part failed.
func ResponseStatus(outcomes []PartOutcome) int {
	successCount, failureCount := 0, 0
	for _, o := range outcomes {
		if o.Success {
			successCount++
		} else {
			failureCount++
		}
	}
	switch {
	case failureCount == 0:
		return http.StatusOK
	case successCount == 0:
		return http.StatusConflict
	default:
		return http.StatusAccepted
	}
}
