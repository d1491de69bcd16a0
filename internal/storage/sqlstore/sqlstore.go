// Package sqlstore adapts the teacher's GORM/postgres connection idiom
// (internal/database) into a storage.Provider backend, demonstrating
// that the interface is swappable the same way the teacher's adapter
// factory swaps PACS adapters between DICOMweb, DIMSE, and Orthanc.
// The in-memory store remains the implementation spec.md §1 requires
// tests to exercise; this one is an optional persistent alternative.
package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dicomkit/dicomweb-server/internal/dicomjson"
	"github.com/dicomkit/dicomweb-server/internal/storage"
)

// instanceRow is the GORM model backing one stored DICOM instance.
// Attributes are kept as a JSON blob rather than normalized columns —
// the dataset is heterogeneous per spec.md §9 and query filtering is
// applied in Go after a narrow SQL pre-filter, mirroring how the
// in-memory store filters post-load.
type instanceRow struct {
	ID                uint   `gorm:"primaryKey"`
	StudyInstanceUID  string `gorm:"column:study_instance_uid;index:idx_study"`
	SeriesInstanceUID string `gorm:"column:series_instance_uid;index:idx_series"`
	SOPInstanceUID    string `gorm:"column:sop_instance_uid;uniqueIndex:idx_sop_instance"`
	SOPClassUID       string `gorm:"column:sop_class_uid"`
	Data              []byte `gorm:"column:data"`
	AttributesJSON    []byte `gorm:"column:attributes_json"`
	PatientNameColumn string `gorm:"column:patient_name;index:idx_patient_name"`
	ModalityColumn    string `gorm:"column:modality;index:idx_modality"`
	StudyDateColumn   string `gorm:"column:study_date;index:idx_study_date"`
}

func (instanceRow) TableName() string { return "dicomweb_instances" }

// Store is a storage.Provider backed by a GORM database handle.
type Store struct {
	db *gorm.DB
}

// New wraps an already-connected *gorm.DB. Callers are expected to have
// run database.Connect (or equivalent) beforehand.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates/updates the backing table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&instanceRow{}); err != nil {
		return fmt.Errorf("sqlstore: migrating schema: %w", err)
	}
	return nil
}

func toRow(rec storage.InstanceRecord) (instanceRow, error) {
	attrsJSON, err := json.Marshal(rec.Attributes)
	if err != nil {
		return instanceRow{}, fmt.Errorf("sqlstore: marshaling attributes: %w", err)
	}
	patientName, _ := rec.Attributes.GetString(storage.TagPatientName)
	modality, _ := rec.Attributes.GetString(storage.TagModality)
	studyDate, _ := rec.Attributes.GetString(storage.TagStudyDate)

	return instanceRow{
		StudyInstanceUID:  rec.StudyInstanceUID,
		SeriesInstanceUID: rec.SeriesInstanceUID,
		SOPInstanceUID:    rec.SOPInstanceUID,
		SOPClassUID:       rec.SOPClassUID,
		Data:              rec.Data,
		AttributesJSON:    attrsJSON,
		PatientNameColumn: patientName,
		ModalityColumn:    modality,
		StudyDateColumn:   studyDate,
	}, nil
}

func fromRow(row instanceRow) (storage.InstanceRecord, error) {
	var attrs dicomjson.Dataset
	if len(row.AttributesJSON) > 0 {
		if err := json.Unmarshal(row.AttributesJSON, &attrs); err != nil {
			return storage.InstanceRecord{}, fmt.Errorf("sqlstore: unmarshaling attributes: %w", err)
		}
	}
	return storage.InstanceRecord{
		StudyInstanceUID:  row.StudyInstanceUID,
		SeriesInstanceUID: row.SeriesInstanceUID,
		SOPInstanceUID:    row.SOPInstanceUID,
		SOPClassUID:       row.SOPClassUID,
		Data:              row.Data,
		Attributes:        attrs,
	}, nil
}

func (s *Store) StoreInstance(ctx context.Context, rec storage.InstanceRecord) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sop_instance_uid"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "attributes_json", "sop_class_uid", "patient_name", "modality", "study_date"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("sqlstore: storing instance: %w", err)
	}
	return nil
}

func (s *Store) GetInstance(ctx context.Context, studyUID, seriesUID, instanceUID string) (storage.InstanceRecord, error) {
	var row instanceRow
	err := s.db.WithContext(ctx).
		Where("study_instance_uid = ? AND series_instance_uid = ? AND sop_instance_uid = ?", studyUID, seriesUID, instanceUID).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return storage.InstanceRecord{}, storage.ErrNotFound
		}
		return storage.InstanceRecord{}, fmt.Errorf("sqlstore: getting instance: %w", err)
	}
	return fromRow(row)
}

func (s *Store) DeleteInstance(ctx context.Context, studyUID, seriesUID, instanceUID string) error {
	res := s.db.WithContext(ctx).
		Where("study_instance_uid = ? AND series_instance_uid = ? AND sop_instance_uid = ?", studyUID, seriesUID, instanceUID).
		Delete(&instanceRow{})
	if res.Error != nil {
		return fmt.Errorf("sqlstore: deleting instance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSeries(ctx context.Context, studyUID, seriesUID string) error {
	res := s.db.WithContext(ctx).
		Where("study_instance_uid = ? AND series_instance_uid = ?", studyUID, seriesUID).
		Delete(&instanceRow{})
	if res.Error != nil {
		return fmt.Errorf("sqlstore: deleting series: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteStudy(ctx context.Context, studyUID string) error {
	res := s.db.WithContext(ctx).Where("study_instance_uid = ?", studyUID).Delete(&instanceRow{})
	if res.Error != nil {
		return fmt.Errorf("sqlstore: deleting study: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// loadAll runs the caller's scope. Callers push at most study/series UID
// equality to the database; every query filter (exact values, wildcards,
// date ranges, arbitrary tags) is applied in Go exactly as the in-memory
// store does.
func (s *Store) loadAll(ctx context.Context, scope *gorm.DB) ([]instanceRow, error) {
	var rows []instanceRow
	if err := scope.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlstore: querying rows: %w", err)
	}
	return rows, nil
}

func (s *Store) SearchStudies(ctx context.Context, q storage.StorageQuery) ([]storage.StudySummary, error) {
	rows, err := s.loadAll(ctx, s.db.Model(&instanceRow{}))
	if err != nil {
		return nil, err
	}

	type agg struct {
		summary storage.StudySummary
		attrs   dicomjson.Dataset
	}
	byStudy := map[string]*agg{}
	var order []string
	modalitiesByStudy := map[string]map[string]struct{}{}

	for _, row := range rows {
		rec, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		a, ok := byStudy[row.StudyInstanceUID]
		if !ok {
			patientID, _ := rec.Attributes.GetString(storage.TagPatientID)
			accession, _ := rec.Attributes.GetString(storage.TagAccessionNumber)
			a = &agg{summary: storage.StudySummary{
				StudyInstanceUID: row.StudyInstanceUID,
				PatientName:      row.PatientNameColumn,
				PatientID:        patientID,
				StudyDate:        row.StudyDateColumn,
				AccessionNumber:  accession,
			}, attrs: rec.Attributes}
			byStudy[row.StudyInstanceUID] = a
			order = append(order, row.StudyInstanceUID)
			modalitiesByStudy[row.StudyInstanceUID] = map[string]struct{}{}
		}
		a.summary.NumberOfInstances++
		if row.ModalityColumn != "" {
			modalitiesByStudy[row.StudyInstanceUID][row.ModalityColumn] = struct{}{}
		}
	}

	seriesCounts := map[string]map[string]struct{}{}
	for _, row := range rows {
		if seriesCounts[row.StudyInstanceUID] == nil {
			seriesCounts[row.StudyInstanceUID] = map[string]struct{}{}
		}
		seriesCounts[row.StudyInstanceUID][row.SeriesInstanceUID] = struct{}{}
	}

	results := make([]storage.StudySummary, 0, len(order))
	sort.Strings(order)
	for _, studyUID := range order {
		a := byStudy[studyUID]
		a.summary.NumberOfSeries = len(seriesCounts[studyUID])
		modalityList := make([]string, 0, len(modalitiesByStudy[studyUID]))
		for m := range modalitiesByStudy[studyUID] {
			modalityList = append(modalityList, m)
		}
		sort.Strings(modalityList)
		a.summary.ModalitiesInStudy = modalityList
		a.summary.Attributes = a.attrs

		if !studyMatchesQuery(a.summary, a.attrs, q) {
			continue
		}
		results = append(results, a.summary)
	}

	start, end := storage.Paginate(len(results), q)
	return results[start:end], nil
}

func studyMatchesQuery(summary storage.StudySummary, attrs dicomjson.Dataset, q storage.StorageQuery) bool {
	if q.StudyInstanceUID != "" && !storage.MatchesWildcard(q.StudyInstanceUID, summary.StudyInstanceUID) {
		return false
	}
	if q.PatientName != "" && !storage.MatchesWildcard(q.PatientName, summary.PatientName) {
		return false
	}
	if q.PatientID != "" && !storage.MatchesWildcard(q.PatientID, summary.PatientID) {
		return false
	}
	if q.Modality != "" {
		matched := false
		for _, m := range summary.ModalitiesInStudy {
			if storage.MatchesWildcard(q.Modality, m) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if !storage.MatchesDateRange(summary.StudyDate, q.StudyDate) {
		return false
	}
	for tag, pattern := range q.Attributes {
		val, ok := attrs.GetString(tag)
		if !ok || !storage.MatchesWildcard(pattern, val) {
			return false
		}
	}
	return true
}

func (s *Store) SearchSeries(ctx context.Context, studyUID string, q storage.StorageQuery) ([]storage.SeriesSummary, error) {
	rows, err := s.loadAll(ctx, s.db.Model(&instanceRow{}).Where("study_instance_uid = ?", studyUID))
	if err != nil {
		return nil, err
	}

	type agg struct {
		summary storage.SeriesSummary
	}
	bySeries := map[string]*agg{}
	var order []string

	for _, row := range rows {
		rec, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		a, ok := bySeries[row.SeriesInstanceUID]
		if !ok {
			seriesNumber, _ := rec.Attributes.GetString(storage.TagSeriesNumber)
			a = &agg{summary: storage.SeriesSummary{
				StudyInstanceUID:  studyUID,
				SeriesInstanceUID: row.SeriesInstanceUID,
				Modality:          row.ModalityColumn,
				SeriesNumber:      seriesNumber,
				Attributes:        rec.Attributes,
			}}
			bySeries[row.SeriesInstanceUID] = a
			order = append(order, row.SeriesInstanceUID)
		}
		a.summary.NumberOfInstances++
	}

	results := make([]storage.SeriesSummary, 0, len(order))
	sort.Strings(order)
	for _, seriesUID := range order {
		summary := bySeries[seriesUID].summary
		if q.Modality != "" && !storage.MatchesWildcard(q.Modality, summary.Modality) {
			continue
		}
		results = append(results, summary)
	}

	start, end := storage.Paginate(len(results), q)
	return results[start:end], nil
}

func (s *Store) SearchInstances(ctx context.Context, studyUID, seriesUID string, q storage.StorageQuery) ([]storage.InstanceSummary, error) {
	rows, err := s.loadAll(ctx, s.db.Model(&instanceRow{}).
		Where("study_instance_uid = ? AND series_instance_uid = ?", studyUID, seriesUID))
	if err != nil {
		return nil, err
	}

	results := make([]storage.InstanceSummary, 0, len(rows))
	for _, row := range rows {
		rec, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		instanceNumber, _ := rec.Attributes.GetString(storage.TagInstanceNumber)
		results = append(results, storage.InstanceSummary{
			StudyInstanceUID:  studyUID,
			SeriesInstanceUID: seriesUID,
			SOPInstanceUID:    row.SOPInstanceUID,
			SOPClassUID:       row.SOPClassUID,
			InstanceNumber:    instanceNumber,
			Attributes:        rec.Attributes,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].SOPInstanceUID < results[j].SOPInstanceUID })
	start, end := storage.Paginate(len(results), q)
	return results[start:end], nil
}

func (s *Store) GetSeriesInstances(ctx context.Context, studyUID, seriesUID string) ([]storage.InstanceRecord, error) {
	rows, err := s.loadAll(ctx, s.db.Model(&instanceRow{}).
		Where("study_instance_uid = ? AND series_instance_uid = ?", studyUID, seriesUID))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, storage.ErrNotFound
	}
	out := make([]storage.InstanceRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) CountSeries(ctx context.Context, studyUID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&instanceRow{}).
		Where("study_instance_uid = ?", studyUID).
		Distinct("series_instance_uid").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("sqlstore: counting series: %w", err)
	}
	return int(count), nil
}

func (s *Store) CountInstances(ctx context.Context, studyUID, seriesUID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&instanceRow{}).
		Where("study_instance_uid = ? AND series_instance_uid = ?", studyUID, seriesUID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("sqlstore: counting instances: %w", err)
	}
	return int(count), nil
}

var _ storage.Provider = (*Store)(nil)
