package dicomjson_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dicomkit/dicomweb-server/internal/dicomjson"
)

func TestDatasetRoundTripIdentity(t *testing.T) {
	original := dicomjson.Dataset{}
	original.SetString("0020000D", "UI", "1.2.3")
	original.Set("00100010", "PN", dicomjson.PersonNameValue(dicomjson.PersonName{Alphabetic: "Doe^John"}))
	original.Set("00201206", "IS", dicomjson.Number(3))
	original.Set("00081115", "SQ", dicomjson.SequenceItem(dicomjson.Dataset{
		"0020000E": dicomjson.NewAttribute("UI", dicomjson.String("4.5.6")),
	}))

	raw, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded dicomjson.Dataset
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, original, decoded)
}

func TestAttributeFirstStringAndStrings(t *testing.T) {
	attr := dicomjson.NewAttribute("CS", dicomjson.String("ORIGINAL"), dicomjson.String("SECONDARY"))
	assert.Equal(t, "ORIGINAL", attr.FirstString())
	assert.Equal(t, []string{"ORIGINAL", "SECONDARY"}, attr.Strings())
}

func TestBulkDataURIRoundTrip(t *testing.T) {
	original := dicomjson.Dataset{
		"7FE00010": dicomjson.NewAttribute("OB", dicomjson.BulkDataURIValue("http://example/studies/1/series/2/instances/3/bulkdata/7FE00010")),
	}

	raw, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded dicomjson.Dataset
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, original, decoded)
}

func TestInlineBinaryRoundTrip(t *testing.T) {
	original := dicomjson.Dataset{
		"00280120": dicomjson.NewAttribute("US", dicomjson.InlineBinaryValue([]byte{1, 2, 3, 4})),
	}

	raw, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded dicomjson.Dataset
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, original, decoded)
}

func TestGetStringMissingTag(t *testing.T) {
	ds := dicomjson.Dataset{}
	_, ok := ds.GetString("00100010")
	assert.False(t, ok)
}

func TestSetStringIgnoresEmptyValue(t *testing.T) {
	ds := dicomjson.Dataset{}
	ds.SetString("00100010", "PN", "")
	_, ok := ds["00100010"]
	assert.False(t, ok)
}

func TestTagsSortedOrder(t *testing.T) {
	ds := dicomjson.Dataset{
		"0020000D": dicomjson.NewAttribute("UI", dicomjson.String("1")),
		"00080020": dicomjson.NewAttribute("DA", dicomjson.String("20200101")),
	}
	assert.Equal(t, []string{"00080020", "0020000D"}, ds.Tags())
}
