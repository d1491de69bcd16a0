package httpcache

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintIsOrderIndependentOnQueryParams(t *testing.T) {
	q1 := url.Values{"b": {"2"}, "a": {"1"}}
	q2 := url.Values{"a": {"1"}, "b": {"2"}}

	fp1 := Fingerprint("GET", "/studies", q1, "application/dicom+json", "utf-8")
	fp2 := Fingerprint("GET", "/studies", q2, "application/dicom+json", "utf-8")

	assert.Equal(t, fp1, fp2)
}

func TestFingerprintDiffersOnAccept(t *testing.T) {
	q := url.Values{}
	fp1 := Fingerprint("GET", "/studies", q, "application/dicom+json", "utf-8")
	fp2 := Fingerprint("GET", "/studies", q, "application/dicom+xml", "utf-8")

	assert.NotEqual(t, fp1, fp2)
}

func TestStudyUIDFromPathExtractsSegment(t *testing.T) {
	assert.Equal(t, "1.2.3", studyUIDFromPath("/studies/1.2.3/series"))
	assert.Equal(t, "", studyUIDFromPath("/studies"))
	assert.Equal(t, "wi-1", studyUIDFromPath("/workitems/wi-1"))
	assert.Equal(t, "", studyUIDFromPath("/health"))
}
