// Package storage defines the storage provider contract consumed by
// internal/stow, internal/qido, and internal/wado, plus a reference
// in-memory implementation. Production backends (see sqlstore) plug in
// via the same interface, constructor-injected the way the teacher's
// adapter factory swaps PACS adapters.
package storage

import (
	"context"
	"time"

	"github.com/dicomkit/dicomweb-server/internal/dicomjson"
)

// InstanceRecord is a stored DICOM instance: its identifying triple,
// SOP class, opaque Part-10 bytes, and the attribute dataset extracted
// from those bytes by the DICOM parser collaborator.
type InstanceRecord struct {
	StudyInstanceUID  string
	SeriesInstanceUID string
	SOPInstanceUID    string
	SOPClassUID       string
	Data              []byte
	Attributes        dicomjson.Dataset
	StoredAt          time.Time
}

// DateRange is an open-ended-on-either-side YYYYMMDD range filter.
type DateRange struct {
	Start string
	End   string
}

// StorageQuery is the normalized form of QIDO-RS query parameters.
type StorageQuery struct {
	PatientName      string
	PatientID        string
	Modality         string
	StudyInstanceUID string
	StudyDate        DateRange
	Offset           int
	Limit            int
	FuzzyMatching    bool
	IncludeFields    []string
	// Attributes carries any other recognized DICOM-tag query key (e.g.
	// "00080050" for AccessionNumber) verbatim, matched against the
	// corresponding stored attribute with wildcard support.
	Attributes map[string]string
}

// StudySummary is one row of a searchStudies result.
type StudySummary struct {
	StudyInstanceUID  string
	PatientName       string
	PatientID         string
	StudyDate         string
	AccessionNumber   string
	NumberOfSeries    int
	NumberOfInstances int
	ModalitiesInStudy []string
	Attributes        dicomjson.Dataset
}

// SeriesSummary is one row of a searchSeries result.
type SeriesSummary struct {
	StudyInstanceUID  string
	SeriesInstanceUID string
	Modality          string
	SeriesNumber      string
	NumberOfInstances int
	Attributes        dicomjson.Dataset
}

// InstanceSummary is one row of a searchInstances result.
type InstanceSummary struct {
	StudyInstanceUID  string
	SeriesInstanceUID string
	SOPInstanceUID    string
	SOPClassUID       string
	InstanceNumber    string
	Attributes        dicomjson.Dataset
}

// Provider is the storage collaborator core handlers depend on. It
// owns instance bytes and their attribute index; mutation methods must
// serialize internally (actor-style mutex or single-writer channel per
// spec.md §5) since the HTTP listener dispatches requests concurrently.
type Provider interface {
	StoreInstance(ctx context.Context, rec InstanceRecord) error
	GetInstance(ctx context.Context, studyUID, seriesUID, instanceUID string) (InstanceRecord, error)
	DeleteInstance(ctx context.Context, studyUID, seriesUID, instanceUID string) error
	DeleteSeries(ctx context.Context, studyUID, seriesUID string) error
	DeleteStudy(ctx context.Context, studyUID string) error

	SearchStudies(ctx context.Context, q StorageQuery) ([]StudySummary, error)
	SearchSeries(ctx context.Context, studyUID string, q StorageQuery) ([]SeriesSummary, error)
	SearchInstances(ctx context.Context, studyUID, seriesUID string, q StorageQuery) ([]InstanceSummary, error)

	GetSeriesInstances(ctx context.Context, studyUID, seriesUID string) ([]InstanceRecord, error)
	CountSeries(ctx context.Context, studyUID string) (int, error)
	CountInstances(ctx context.Context, studyUID, seriesUID string) (int, error)
}

// ErrNotFound is returned by Get/Delete operations addressing an
// absent study, series, or instance.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "storage: resource not found" }
