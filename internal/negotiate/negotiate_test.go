package negotiate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dicomkit/dicomweb-server/internal/negotiate"
)

func TestParseCharsetsEmptyDefaultsToUTF8(t *testing.T) {
	got := negotiate.ParseCharsets("")
	assert.Equal(t, []negotiate.Weighted{{Value: "utf-8", Q: 1.0}}, got)
}

func TestParseCharsetsOrdersByQDescending(t *testing.T) {
	got := negotiate.ParseCharsets("iso-8859-5, unicode-1-1;q=0.8, utf-8;q=1.0")
	require := []string{"iso-8859-5", "utf-8", "unicode-1-1"}
	for i, w := range got {
		assert.Equal(t, require[i], w.Value)
	}
}

func TestParseCharsetsRetainsQZeroEntries(t *testing.T) {
	// Per the documented divergence from RFC 7231, q=0 entries are kept
	// (only deprioritized), not dropped.
	got := negotiate.ParseCharsets("iso-8859-1;q=0, utf-8")
	assert.Len(t, got, 2)
	var sawZero bool
	for _, w := range got {
		if w.Value == "iso-8859-1" {
			sawZero = true
			assert.Equal(t, 0.0, w.Q)
		}
	}
	assert.True(t, sawZero, "q=0 entry should still be present in the parsed list")
}

func TestNegotiateCharsetSelectsHighestQAmongOffered(t *testing.T) {
	accept := negotiate.ParseCharsets("iso-8859-5, unicode-1-1;q=0.8, utf-8;q=1.0")
	got := negotiate.NegotiateCharset(accept, []string{"iso-8859-5", "utf-8"})
	assert.Equal(t, "utf-8", got)
}

func TestNegotiateCharsetWildcardPicksFirstAvailable(t *testing.T) {
	accept := negotiate.ParseCharsets("*")
	got := negotiate.NegotiateCharset(accept, []string{"utf-8", "iso-8859-1"})
	assert.Equal(t, "utf-8", got)
}

func TestNegotiateCharsetNoMatch(t *testing.T) {
	accept := negotiate.ParseCharsets("iso-8859-1")
	got := negotiate.NegotiateCharset(accept, []string{"utf-8"})
	assert.Equal(t, "", got)
}

func TestNegotiateMediaTypeWildcard(t *testing.T) {
	accept := negotiate.ParseAccept("*/*")
	got := negotiate.NegotiateMediaType(accept, []string{"application/dicom+json"})
	assert.Equal(t, "application/dicom+json", got)
}

func TestNegotiateMediaTypeSubtypeWildcard(t *testing.T) {
	accept := negotiate.ParseAccept("application/*")
	got := negotiate.NegotiateMediaType(accept, []string{"application/dicom+json"})
	assert.Equal(t, "application/dicom+json", got)
}

func TestNegotiateMediaTypeEmptyAcceptMatchesFirstOffered(t *testing.T) {
	got := negotiate.NegotiateMediaType(nil, []string{"application/dicom+json", "application/dicom+xml"})
	assert.Equal(t, "application/dicom+json", got)
}

func TestNegotiateMediaTypeNoMatch(t *testing.T) {
	accept := negotiate.ParseAccept("image/png")
	got := negotiate.NegotiateMediaType(accept, []string{"application/dicom+json"})
	assert.Equal(t, "", got)
}

func TestParseRangeClosed(t *testing.T) {
	r, ok := negotiate.ParseRange("bytes=0-499")
	assert.True(t, ok)
	assert.Equal(t, negotiate.ByteRange{Start: 0, End: 499}, r)
}

func TestParseRangeOpenEnded(t *testing.T) {
	r, ok := negotiate.ParseRange("bytes=100-")
	assert.True(t, ok)
	assert.Equal(t, negotiate.ByteRange{Start: 100, End: -1}, r)
}

func TestParseRangeCaseInsensitivePrefix(t *testing.T) {
	r, ok := negotiate.ParseRange("BYTES=10-20")
	assert.True(t, ok)
	assert.Equal(t, negotiate.ByteRange{Start: 10, End: 20}, r)
}

func TestParseRangeRejectsMissingPrefix(t *testing.T) {
	_, ok := negotiate.ParseRange("0-499")
	assert.False(t, ok)
}

func TestParseRangeRejectsEndBeforeStart(t *testing.T) {
	_, ok := negotiate.ParseRange("bytes=500-100")
	assert.False(t, ok)
}

func TestParseRangeRejectsNegativeStart(t *testing.T) {
	_, ok := negotiate.ParseRange("bytes=-5-10")
	assert.False(t, ok)
}

func TestParseRangeRejectsNonNumeric(t *testing.T) {
	_, ok := negotiate.ParseRange("bytes=a-b")
	assert.False(t, ok)
}

func TestParseRangeRejectsEmpty(t *testing.T) {
	_, ok := negotiate.ParseRange("")
	assert.False(t, ok)
}

func TestResolveOpenEndedRangeAgainstTotalLength(t *testing.T) {
	r, _ := negotiate.ParseRange("bytes=0-")
	resolved, ok := r.Resolve(50)
	assert.True(t, ok)
	assert.Equal(t, int64(49), resolved.End)
}

func TestResolveRangeStartBeyondTotalLengthUnsatisfiable(t *testing.T) {
	// "Range: bytes=100- against a 50-byte object" -> not satisfiable.
	r, _ := negotiate.ParseRange("bytes=100-")
	_, ok := r.Resolve(50)
	assert.False(t, ok)
}

func TestResolveRangeEndClampedToTotalLength(t *testing.T) {
	r, _ := negotiate.ParseRange("bytes=10-1000")
	resolved, ok := r.Resolve(50)
	assert.True(t, ok)
	assert.Equal(t, int64(49), resolved.End)
}
