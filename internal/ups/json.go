package ups

import (
	"strconv"

	"github.com/dicomkit/dicomweb-server/internal/dicomjson"
)

// Tags used to round-trip a Workitem through DICOM+JSON, per PS3.3
// Annex CC / PS3.18 Annex CC.6's Unified Procedure Step data model.
const (
	tagSOPInstanceUID        = "00080018"
	tagProcedureStepState    = "00741000"
	tagSPSPriority           = "00741200"
	tagTransactionUID        = "00081195"
	tagPatientID             = "00100020"
	tagPatientName           = "00100010"
	tagStudyInstanceUID      = "0020000D"
	tagWorklistLabel         = "00741202"
	tagCommentsOnSPS         = "00040400"
	tagHumanPerformerName    = "00404034"
	tagProcedureStepProgress = "00741004"
	tagReasonForCancellation = "00741238"
)

// ToDataset renders wi as the DICOM+JSON dataset returned by
// retrieveWorkitem/searchWorkitems and accepted by createWorkitem.
func ToDataset(wi Workitem) dicomjson.Dataset {
	ds := dicomjson.Dataset{}
	if wi.Attributes != nil {
		for k, v := range wi.Attributes {
			ds[k] = v
		}
	}
	ds.SetString(tagSOPInstanceUID, "UI", wi.WorkitemUID)
	ds.SetString(tagProcedureStepState, "CS", string(wi.State))
	ds.SetString(tagSPSPriority, "CS", string(wi.Priority))
	ds.SetString(tagTransactionUID, "UI", wi.TransactionUID)
	ds.SetString(tagPatientID, "LO", wi.PatientID)
	ds.SetString(tagPatientName, "PN", wi.PatientName)
	ds.SetString(tagStudyInstanceUID, "UI", wi.StudyInstanceUID)
	ds.SetString(tagCommentsOnSPS, "LT", wi.Comments)
	ds.SetString(tagHumanPerformerName, "PN", wi.ScheduledHumanPerformer)
	ds.SetString(tagReasonForCancellation, "LT", wi.CancellationReason)
	if wi.Progress != 0 {
		ds.Set(tagProcedureStepProgress, "DS", dicomjson.Number(float64(wi.Progress)))
	}
	if len(wi.Labels) > 0 {
		values := make([]dicomjson.Value, 0, len(wi.Labels))
		for _, l := range wi.Labels {
			values = append(values, dicomjson.String(l))
		}
		ds.Set(tagWorklistLabel, "LO", values...)
	}
	return ds
}

// FromDataset parses a submitted DICOM+JSON dataset into a Workitem.
// Unrecognized tags are preserved in Attributes so a later ToDataset
// round-trips them.
func FromDataset(ds dicomjson.Dataset) Workitem {
	wi := Workitem{Attributes: dicomjson.Dataset{}}
	for k, v := range ds {
		wi.Attributes[k] = v
	}

	if v, ok := ds.GetString(tagSOPInstanceUID); ok {
		wi.WorkitemUID = v
		delete(wi.Attributes, tagSOPInstanceUID)
	}
	if v, ok := ds.GetString(tagProcedureStepState); ok {
		wi.State = State(v)
		delete(wi.Attributes, tagProcedureStepState)
	}
	if v, ok := ds.GetString(tagSPSPriority); ok {
		wi.Priority = Priority(v)
		delete(wi.Attributes, tagSPSPriority)
	}
	if v, ok := ds.GetString(tagTransactionUID); ok {
		wi.TransactionUID = v
		delete(wi.Attributes, tagTransactionUID)
	}
	if v, ok := ds.GetString(tagPatientID); ok {
		wi.PatientID = v
		delete(wi.Attributes, tagPatientID)
	}
	if v, ok := ds.GetString(tagPatientName); ok {
		wi.PatientName = v
		delete(wi.Attributes, tagPatientName)
	}
	if v, ok := ds.GetString(tagStudyInstanceUID); ok {
		wi.StudyInstanceUID = v
		delete(wi.Attributes, tagStudyInstanceUID)
	}
	if v, ok := ds.GetString(tagCommentsOnSPS); ok {
		wi.Comments = v
		delete(wi.Attributes, tagCommentsOnSPS)
	}
	if v, ok := ds.GetString(tagHumanPerformerName); ok {
		wi.ScheduledHumanPerformer = v
		delete(wi.Attributes, tagHumanPerformerName)
	}
	if v, ok := ds.GetString(tagReasonForCancellation); ok {
		wi.CancellationReason = v
		delete(wi.Attributes, tagReasonForCancellation)
	}
	if attr, ok := ds[tagProcedureStepProgress]; ok {
		for _, val := range attr.Value {
			if val.Kind == dicomjson.KindNumber {
				wi.Progress = int(val.Num)
			}
		}
		delete(wi.Attributes, tagProcedureStepProgress)
	}
	if attr, ok := ds[tagWorklistLabel]; ok {
		wi.Labels = attr.Strings()
		delete(wi.Attributes, tagWorklistLabel)
	}
	if len(wi.Attributes) == 0 {
		wi.Attributes = nil
	}
	return wi
}

// ProgressFromQuery parses the "?progress=" style integer parameter
// used by updateProgress-shaped requests; returns ok=false on a
// missing or unparseable value.
func ProgressFromQuery(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
