package wado

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/dicomkit/dicomweb-server/internal/apierror"
)

// Frame is one decoded pixel-data frame, numbered from 1 per DICOM
// convention, along with its content type (RetrieveFrames reports
// image/jpeg for every encapsulated frame).
type Frame struct {
	Number      int
	Data        []byte
	ContentType string
}

// ParseFrameList parses the "{frames}" path segment: a comma-separated
// list of 1-based frame numbers, e.g. "1,2,3".
func ParseFrameList(raw string) ([]int, *apierror.Error) {
	tokens := strings.Split(raw, ",")
	numbers := make([]int, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return nil, apierror.New(apierror.KindBadRequest, "empty frame number in frame list")
		}
		n, err := strconv.Atoi(tok)
		if err != nil || n < 1 {
			return nil, apierror.New(apierror.KindBadRequest, fmt.Sprintf("invalid frame number %q", tok))
		}
		numbers = append(numbers, n)
	}
	if len(numbers) == 0 {
		return nil, apierror.New(apierror.KindBadRequest, "frame list is empty")
	}
	return numbers, nil
}

// RetrieveFrames extracts the requested frame numbers from an instance's
// PixelData element, re-parsing the stored Part-10 bytes (frame data is
// not retained separately from the object at store time).
func (h *Handler) RetrieveFrames(ctx context.Context, studyUID, seriesUID, instanceUID string, numbers []int) ([]Frame, *apierror.Error) {
	rec, err := h.Store.GetInstance(ctx, studyUID, seriesUID, instanceUID)
	if err != nil {
		return nil, notFoundOrInternal(err, "instance not found")
	}

	dataset, parseErr := dicom.Parse(bytes.NewReader(rec.Data), int64(len(rec.Data)), nil)
	if parseErr != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "re-parsing stored instance failed", parseErr)
	}

	elem, findErr := dataset.FindElementByTag(tag.PixelData)
	if findErr != nil {
		return nil, apierror.New(apierror.KindNotFound, "instance has no pixel data")
	}

	info, ok := elem.Value.GetValue().(dicom.PixelDataInfo)
	if !ok {
		return nil, apierror.New(apierror.KindInternal, "unrecognized pixel data representation")
	}

	if !info.IsEncapsulated {
		return nil, apierror.New(apierror.KindNotImplemented, "frame retrieval of native (uncompressed) pixel data is not supported")
	}

	out := make([]Frame, 0, len(numbers))
	for _, n := range numbers {
		idx := n - 1
		if idx < 0 || idx >= len(info.Frames) {
			return nil, apierror.New(apierror.KindNotFound, fmt.Sprintf("frame %d out of range (instance has %d frames)", n, len(info.Frames)))
		}
		data, err := encapsulatedFrameBytes(info.Frames[idx])
		if err != nil {
			return nil, apierror.Wrap(apierror.KindInternal, "reading frame data failed", err)
		}
		out = append(out, Frame{Number: n, Data: data, ContentType: "image/jpeg"})
	}
	return out, nil
}

// EncodeMultipartFrames wraps retrieved frames into a multipart/related
// body, one part per frame, each carrying its own Content-Type (spec.md
// §4.5 "Retrieve Frames").
func EncodeMultipartFrames(frames []Frame, boundary string) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.SetBoundary(boundary); err != nil {
		return nil, fmt.Errorf("wado: setting multipart boundary: %w", err)
	}
	for _, fr := range frames {
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", fr.ContentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("wado: creating multipart part: %w", err)
		}
		if _, err := part.Write(fr.Data); err != nil {
			return nil, fmt.Errorf("wado: writing multipart part: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("wado: closing multipart writer: %w", err)
	}
	return buf.Bytes(), nil
}

func encapsulatedFrameBytes(f *frame.Frame) ([]byte, error) {
	if f == nil || !f.Encapsulated {
		return nil, fmt.Errorf("wado: expected an encapsulated frame")
	}
	return f.EncapsulatedData.Data, nil
}
