package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/dicomkit/dicomweb-server/internal/dicomjson"
)

// seriesEntry is one series inside a study: its instances keyed by
// SOPInstanceUID plus their insertion order. Series-level fields are
// derived from the stored instances when a query runs.
type seriesEntry struct {
	instances map[string]InstanceRecord
	order     []string // SOPInstanceUID insertion order, for stable listing
}

type studyEntry struct {
	series      map[string]*seriesEntry
	seriesOrder []string
}

// MemoryStore is the in-memory, mutex-serialized reference Provider
// implementation. It is the implementation spec.md §1 requires tests
// to exercise; production deployments may instead wire sqlstore.
type MemoryStore struct {
	mu      sync.RWMutex
	studies map[string]*studyEntry
	order   []string // StudyInstanceUID insertion order
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{studies: make(map[string]*studyEntry)}
}

func (s *MemoryStore) StoreInstance(_ context.Context, rec InstanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	study, ok := s.studies[rec.StudyInstanceUID]
	if !ok {
		study = &studyEntry{series: make(map[string]*seriesEntry)}
		s.studies[rec.StudyInstanceUID] = study
		s.order = append(s.order, rec.StudyInstanceUID)
	}

	series, ok := study.series[rec.SeriesInstanceUID]
	if !ok {
		series = &seriesEntry{instances: make(map[string]InstanceRecord)}
		study.series[rec.SeriesInstanceUID] = series
		study.seriesOrder = append(study.seriesOrder, rec.SeriesInstanceUID)
	}

	if _, exists := series.instances[rec.SOPInstanceUID]; !exists {
		series.order = append(series.order, rec.SOPInstanceUID)
	}
	series.instances[rec.SOPInstanceUID] = rec
	return nil
}

func (s *MemoryStore) GetInstance(_ context.Context, studyUID, seriesUID, instanceUID string) (InstanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.lookupSeries(studyUID, seriesUID)
	if !ok {
		return InstanceRecord{}, ErrNotFound
	}
	rec, ok := series.instances[instanceUID]
	if !ok {
		return InstanceRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) DeleteInstance(_ context.Context, studyUID, seriesUID, instanceUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	study, ok := s.studies[studyUID]
	if !ok {
		return ErrNotFound
	}
	series, ok := study.series[seriesUID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := series.instances[instanceUID]; !ok {
		return ErrNotFound
	}
	delete(series.instances, instanceUID)
	series.order = removeString(series.order, instanceUID)

	if len(series.instances) == 0 {
		delete(study.series, seriesUID)
		study.seriesOrder = removeString(study.seriesOrder, seriesUID)
	}
	if len(study.series) == 0 {
		delete(s.studies, studyUID)
		s.order = removeString(s.order, studyUID)
	}
	return nil
}

func (s *MemoryStore) DeleteSeries(_ context.Context, studyUID, seriesUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	study, ok := s.studies[studyUID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := study.series[seriesUID]; !ok {
		return ErrNotFound
	}
	delete(study.series, seriesUID)
	study.seriesOrder = removeString(study.seriesOrder, seriesUID)

	if len(study.series) == 0 {
		delete(s.studies, studyUID)
		s.order = removeString(s.order, studyUID)
	}
	return nil
}

func (s *MemoryStore) DeleteStudy(_ context.Context, studyUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.studies[studyUID]; !ok {
		return ErrNotFound
	}
	delete(s.studies, studyUID)
	s.order = removeString(s.order, studyUID)
	return nil
}

func (s *MemoryStore) SearchStudies(_ context.Context, q StorageQuery) ([]StudySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]StudySummary, 0, len(s.order))
	for _, studyUID := range s.order {
		study := s.studies[studyUID]
		summary, firstRec, ok := studySummary(studyUID, study)
		if !ok {
			continue
		}
		if !studyMatches(firstRec.Attributes, summary, q) {
			continue
		}
		all = append(all, summary)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].StudyInstanceUID < all[j].StudyInstanceUID })
	start, end := Paginate(len(all), q)
	return all[start:end], nil
}

func (s *MemoryStore) SearchSeries(_ context.Context, studyUID string, q StorageQuery) ([]SeriesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	study, ok := s.studies[studyUID]
	if !ok {
		return nil, nil
	}

	all := make([]SeriesSummary, 0, len(study.seriesOrder))
	for _, seriesUID := range study.seriesOrder {
		series := study.series[seriesUID]
		summary, _, ok := seriesSummary(studyUID, seriesUID, series)
		if !ok {
			continue
		}
		if q.Modality != "" && !MatchesWildcard(q.Modality, summary.Modality) {
			continue
		}
		all = append(all, summary)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].SeriesInstanceUID < all[j].SeriesInstanceUID })
	start, end := Paginate(len(all), q)
	return all[start:end], nil
}

func (s *MemoryStore) SearchInstances(_ context.Context, studyUID, seriesUID string, q StorageQuery) ([]InstanceSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.lookupSeries(studyUID, seriesUID)
	if !ok {
		return nil, nil
	}

	all := make([]InstanceSummary, 0, len(series.order))
	for _, instanceUID := range series.order {
		rec := series.instances[instanceUID]
		all = append(all, InstanceSummary{
			StudyInstanceUID:  studyUID,
			SeriesInstanceUID: seriesUID,
			SOPInstanceUID:    instanceUID,
			SOPClassUID:       rec.SOPClassUID,
			InstanceNumber:    firstOrEmpty(rec.Attributes, TagInstanceNumber),
			Attributes:        rec.Attributes,
		})
	}

	sort.Slice(all, func(i, j int) bool { return all[i].SOPInstanceUID < all[j].SOPInstanceUID })
	start, end := Paginate(len(all), q)
	return all[start:end], nil
}

func (s *MemoryStore) GetSeriesInstances(_ context.Context, studyUID, seriesUID string) ([]InstanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.lookupSeries(studyUID, seriesUID)
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]InstanceRecord, 0, len(series.order))
	for _, instanceUID := range series.order {
		out = append(out, series.instances[instanceUID])
	}
	return out, nil
}

func (s *MemoryStore) CountSeries(_ context.Context, studyUID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	study, ok := s.studies[studyUID]
	if !ok {
		return 0, nil
	}
	return len(study.series), nil
}

func (s *MemoryStore) CountInstances(_ context.Context, studyUID, seriesUID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series, ok := s.lookupSeries(studyUID, seriesUID)
	if !ok {
		return 0, nil
	}
	return len(series.instances), nil
}

func (s *MemoryStore) lookupSeries(studyUID, seriesUID string) (*seriesEntry, bool) {
	study, ok := s.studies[studyUID]
	if !ok {
		return nil, false
	}
	series, ok := study.series[seriesUID]
	return series, ok
}

func studySummary(studyUID string, study *studyEntry) (StudySummary, InstanceRecord, bool) {
	var firstRec InstanceRecord
	var found bool
	instanceCount := 0
	modalities := map[string]struct{}{}

	for _, seriesUID := range study.seriesOrder {
		series := study.series[seriesUID]
		instanceCount += len(series.instances)
		for _, instanceUID := range series.order {
			rec := series.instances[instanceUID]
			if !found {
				firstRec = rec
				found = true
			}
			if modality, ok := rec.Attributes.GetString(TagModality); ok {
				modalities[modality] = struct{}{}
			}
		}
	}
	if !found {
		return StudySummary{}, InstanceRecord{}, false
	}

	modalityList := make([]string, 0, len(modalities))
	for m := range modalities {
		modalityList = append(modalityList, m)
	}
	sort.Strings(modalityList)

	patientName, _ := firstRec.Attributes.GetString(TagPatientName)
	patientID, _ := firstRec.Attributes.GetString(TagPatientID)
	studyDate, _ := firstRec.Attributes.GetString(TagStudyDate)
	accession, _ := firstRec.Attributes.GetString(TagAccessionNumber)

	return StudySummary{
		StudyInstanceUID:  studyUID,
		PatientName:       patientName,
		PatientID:         patientID,
		StudyDate:         studyDate,
		AccessionNumber:   accession,
		NumberOfSeries:    len(study.series),
		NumberOfInstances: instanceCount,
		ModalitiesInStudy: modalityList,
		Attributes:        firstRec.Attributes,
	}, firstRec, true
}

func seriesSummary(studyUID, seriesUID string, series *seriesEntry) (SeriesSummary, InstanceRecord, bool) {
	if len(series.order) == 0 {
		return SeriesSummary{}, InstanceRecord{}, false
	}
	firstRec := series.instances[series.order[0]]
	modality, _ := firstRec.Attributes.GetString(TagModality)
	seriesNumber, _ := firstRec.Attributes.GetString(TagSeriesNumber)

	return SeriesSummary{
		StudyInstanceUID:  studyUID,
		SeriesInstanceUID: seriesUID,
		Modality:          modality,
		SeriesNumber:      seriesNumber,
		NumberOfInstances: len(series.instances),
		Attributes:        firstRec.Attributes,
	}, firstRec, true
}

func studyMatches(attrs dicomjson.Dataset, summary StudySummary, q StorageQuery) bool {
	if q.StudyInstanceUID != "" && !MatchesWildcard(q.StudyInstanceUID, summary.StudyInstanceUID) {
		return false
	}
	if q.PatientName != "" && !MatchesWildcard(q.PatientName, summary.PatientName) {
		return false
	}
	if q.PatientID != "" && !MatchesWildcard(q.PatientID, summary.PatientID) {
		return false
	}
	if q.Modality != "" {
		matched := false
		for _, m := range summary.ModalitiesInStudy {
			if MatchesWildcard(q.Modality, m) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if !MatchesDateRange(summary.StudyDate, q.StudyDate) {
		return false
	}
	for tag, pattern := range q.Attributes {
		val, ok := attrs.GetString(tag)
		if !ok || !MatchesWildcard(pattern, val) {
			return false
		}
	}
	return true
}

func firstOrEmpty(attrs dicomjson.Dataset, tag string) string {
	v, _ := attrs.GetString(tag)
	return v
}

func removeString(slice []string, target string) []string {
	out := slice[:0]
	for _, s := range slice {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
