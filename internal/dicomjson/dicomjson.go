// Package dicomjson models the DICOM+JSON attribute shape (PS3.18
// Annex F): a dataset is a map from tag string ("00100010") to an
// attribute carrying a VR and a heterogeneous Value array. Value
// elements are a tagged union — string, number, person name, nested
// sequence item, inline binary, or a bulk data URI reference.
package dicomjson

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind discriminates the variant held by a Value.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindPersonName
	KindSequenceItem
	KindInlineBinary
	KindBulkDataURI
)

// PersonName is the PN value representation's component form.
type PersonName struct {
	Alphabetic  string `json:"Alphabetic,omitempty"`
	Ideographic string `json:"Ideographic,omitempty"`
	Phonetic    string `json:"Phonetic,omitempty"`
}

// Value is one element of an Attribute's Value array. Exactly one of
// the typed fields is meaningful, selected by Kind.
type Value struct {
	Kind         Kind
	Str          string
	Num          float64
	PersonName   PersonName
	Item         Dataset
	InlineBinary []byte
	BulkDataURI  string
}

// String builds a String-kind value (used for most VRs: DA, TM, UI, CS, ...).
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number builds a Number-kind value (used for DS, IS, FL, FD, SL, SS, UL, US).
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// PersonNameValue builds a PN-kind value.
func PersonNameValue(pn PersonName) Value { return Value{Kind: KindPersonName, PersonName: pn} }

// SequenceItem builds an SQ item value wrapping a nested dataset.
func SequenceItem(d Dataset) Value { return Value{Kind: KindSequenceItem, Item: d} }

// InlineBinaryValue builds an inline-binary value (OB/OW/UN small payloads).
func InlineBinaryValue(b []byte) Value { return Value{Kind: KindInlineBinary, InlineBinary: b} }

// BulkDataURIValue builds a bulk data URI reference value, used when the
// actual bytes are retrieved separately (large pixel data, OB/OW VRs).
func BulkDataURIValue(uri string) Value { return Value{Kind: KindBulkDataURI, BulkDataURI: uri} }

// MarshalJSON renders the value per its kind: a bare string, bare number,
// {"Alphabetic":...} object, nested dataset object,
// {"InlineBinary": "<base64>"}, or {"BulkDataURI": "..."}.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindPersonName:
		return json.Marshal(v.PersonName)
	case KindSequenceItem:
		return json.Marshal(v.Item)
	case KindInlineBinary:
		return json.Marshal(struct {
			InlineBinary string `json:"InlineBinary"`
		}{InlineBinary: base64.StdEncoding.EncodeToString(v.InlineBinary)})
	case KindBulkDataURI:
		return json.Marshal(struct {
			BulkDataURI string `json:"BulkDataURI"`
		}{BulkDataURI: v.BulkDataURI})
	default:
		return nil, fmt.Errorf("dicomjson: value has unknown kind %d", v.Kind)
	}
}

// UnmarshalJSON infers the kind from the raw JSON token shape. A nested
// object with a "BulkDataURI" key is treated as KindBulkDataURI; one
// with an "InlineBinary" key as KindInlineBinary; a nested object with "Alphabetic"/"Ideographic"/"Phonetic" keys as
// KindPersonName; any other object as a nested sequence item dataset.
func (v *Value) UnmarshalJSON(data []byte) error {
	var probe interface{}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("dicomjson: decoding value: %w", err)
	}

	switch t := probe.(type) {
	case string:
		*v = String(t)
		return nil
	case float64:
		*v = Number(t)
		return nil
	case map[string]interface{}:
		if raw, ok := t["BulkDataURI"]; ok {
			uri, _ := raw.(string)
			*v = BulkDataURIValue(uri)
			return nil
		}
		if raw, ok := t["InlineBinary"]; ok {
			encoded, _ := raw.(string)
			b, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return fmt.Errorf("dicomjson: decoding inline binary: %w", err)
			}
			*v = InlineBinaryValue(b)
			return nil
		}
		if _, hasAlpha := t["Alphabetic"]; hasAlpha {
			var pn PersonName
			if err := json.Unmarshal(data, &pn); err != nil {
				return fmt.Errorf("dicomjson: decoding person name: %w", err)
			}
			*v = PersonNameValue(pn)
			return nil
		}
		_, hasIdeo := t["Ideographic"]
		_, hasPhon := t["Phonetic"]
		if hasIdeo || hasPhon {
			var pn PersonName
			if err := json.Unmarshal(data, &pn); err != nil {
				return fmt.Errorf("dicomjson: decoding person name: %w", err)
			}
			*v = PersonNameValue(pn)
			return nil
		}
		var ds Dataset
		if err := json.Unmarshal(data, &ds); err != nil {
			return fmt.Errorf("dicomjson: decoding sequence item: %w", err)
		}
		*v = SequenceItem(ds)
		return nil
	case nil:
		*v = String("")
		return nil
	default:
		return fmt.Errorf("dicomjson: unexpected value token %T", t)
	}
}

// Attribute is one dataset entry: a VR plus its Value array, or a
// bulk data URI in place of an inline Value (large pixel data).
type Attribute struct {
	VR          string  `json:"vr"`
	Value       []Value `json:"Value,omitempty"`
	BulkDataURI string  `json:"BulkDataURI,omitempty"`
}

// NewAttribute builds an attribute with the given VR and values.
func NewAttribute(vr string, values ...Value) Attribute {
	return Attribute{VR: vr, Value: values}
}

// Strings returns every KindString value's Str, skipping other kinds.
func (a Attribute) Strings() []string {
	out := make([]string, 0, len(a.Value))
	for _, v := range a.Value {
		if v.Kind == KindString {
			out = append(out, v.Str)
		}
	}
	return out
}

// FirstString returns the first KindString value, or "" if none.
func (a Attribute) FirstString() string {
	for _, v := range a.Value {
		if v.Kind == KindString {
			return v.Str
		}
	}
	return ""
}

// Dataset is a DICOM+JSON object: tag string ("GGGGEEEE" uppercase hex)
// to Attribute.
type Dataset map[string]Attribute

// Set assigns an attribute under tag, overwriting any existing entry.
func (d Dataset) Set(tag, vr string, values ...Value) {
	d[tag] = NewAttribute(vr, values...)
}

// SetString is a convenience for the common single string-valued attribute.
func (d Dataset) SetString(tag, vr, value string) {
	if value == "" {
		return
	}
	d[tag] = NewAttribute(vr, String(value))
}

// GetString returns the first string value stored under tag, and
// whether the tag was present at all.
func (d Dataset) GetString(tag string) (string, bool) {
	attr, ok := d[tag]
	if !ok {
		return "", false
	}
	return attr.FirstString(), true
}

// Tags returns the dataset's tag keys in sorted order, used to produce
// deterministic JSON output for tests and logs.
func (d Dataset) Tags() []string {
	tags := make([]string, 0, len(d))
	for tag := range d {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
