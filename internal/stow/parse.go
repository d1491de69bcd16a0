// Package stow implements the STOW-RS ingestion pipeline (spec.md §4.3):
// parsing single or multipart/related DICOM Part-10 bodies, validating
// each part against the configured STOW policy, and delegating storage
// to a storage.Provider.
package stow

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/dicomkit/dicomweb-server/internal/dicomjson"
)

// parsedPart is one DICOM Part-10 object extracted from a STOW-RS body.
type parsedPart struct {
	StudyInstanceUID  string
	SeriesInstanceUID string
	SOPInstanceUID    string
	SOPClassUID       string
	Data              []byte
	Attributes        dicomjson.Dataset
}

// uidPattern matches a dotted-decimal UID: components of digits
// separated by dots, each component at most 39 digits (spec.md §3).
var uidPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,39})*$`)

func isValidUID(uid string) bool {
	if uid == "" || len(uid) > 64 {
		return false
	}
	for _, component := range strings.Split(uid, ".") {
		if len(component) == 0 || len(component) > 39 {
			return false
		}
	}
	return uidPattern.MatchString(uid)
}

// parsePart10 parses raw DICOM Part-10 bytes and extracts the
// identifying attributes the STOW pipeline needs, plus the full
// DICOM+JSON attribute dataset for storage/QIDO/WADO consumption.
func parsePart10(data []byte) (parsedPart, error) {
	dataset, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		return parsedPart{}, fmt.Errorf("stow: parsing DICOM object: %w", err)
	}

	attrs := dicomjson.Dataset{}
	for _, elem := range dataset.Elements {
		tagKey := fmt.Sprintf("%04X%04X", elem.Tag.Group, elem.Tag.Element)
		attrs[tagKey] = attributeFromElement(elem)
	}

	studyUID := elementString(&dataset, tag.StudyInstanceUID)
	seriesUID := elementString(&dataset, tag.SeriesInstanceUID)
	sopInstanceUID := elementString(&dataset, tag.SOPInstanceUID)
	sopClassUID := elementString(&dataset, tag.SOPClassUID)

	return parsedPart{
		StudyInstanceUID:  studyUID,
		SeriesInstanceUID: seriesUID,
		SOPInstanceUID:    sopInstanceUID,
		SOPClassUID:       sopClassUID,
		Data:              data,
		Attributes:        attrs,
	}, nil
}

func elementString(dataset *dicom.Dataset, t tag.Tag) string {
	elem, err := dataset.FindElementByTag(t)
	if err != nil {
		return ""
	}
	values, ok := elem.Value.GetValue().([]string)
	if !ok || len(values) == 0 {
		return ""
	}
	return values[0]
}

// attributeFromElement converts a parsed dicom.Element's value into the
// dicomjson tagged-union representation, preserving VR.
func attributeFromElement(elem *dicom.Element) dicomjson.Attribute {
	vr := elem.RawValueRepresentation
	raw := elem.Value.GetValue()

	switch v := raw.(type) {
	case []string:
		values := make([]dicomjson.Value, 0, len(v))
		for _, s := range v {
			values = append(values, dicomjson.String(s))
		}
		return dicomjson.NewAttribute(vr, values...)
	case []int:
		values := make([]dicomjson.Value, 0, len(v))
		for _, n := range v {
			values = append(values, dicomjson.Number(float64(n)))
		}
		return dicomjson.NewAttribute(vr, values...)
	case []byte:
		return dicomjson.NewAttribute(vr, dicomjson.InlineBinaryValue(v))
	default:
		return dicomjson.NewAttribute(vr)
	}
}

// isAllowedSOPClass reports whether sopClassUID appears in allowed,
// treating an empty allowed list as "no restriction".
func isAllowedSOPClass(sopClassUID string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == sopClassUID {
			return true
		}
	}
	return false
}
