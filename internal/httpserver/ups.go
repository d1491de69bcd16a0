package httpserver

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/dicomkit/dicomweb-server/internal/apierror"
	"github.com/dicomkit/dicomweb-server/internal/dicomjson"
	"github.com/dicomkit/dicomweb-server/internal/ups"
)

func (f *frontend) searchWorkitems(w http.ResponseWriter, r *http.Request) {
	stateFilter := ups.State(r.URL.Query().Get("state"))
	items, apiErr := f.deps.UPS.SearchWorkitems(stateFilter)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	datasets := make([]dicomjson.Dataset, 0, len(items))
	for _, wi := range items {
		datasets = append(datasets, ups.ToDataset(wi))
	}
	writeJSON(w, http.StatusOK, datasets)
}

func (f *frontend) createWorkitem(w http.ResponseWriter, r *http.Request, pathUID string) {
	ds, apiErr := decodeDataset(r)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	wi := ups.FromDataset(ds)
	if pathUID != "" {
		wi.WorkitemUID = pathUID
	}

	result, apiErr := f.deps.UPS.CreateWorkitem(wi)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	w.Header().Set("Location", result.Location)
	writeJSON(w, http.StatusCreated, ups.ToDataset(result.Workitem))
}

func (f *frontend) retrieveWorkitem(w http.ResponseWriter, r *http.Request, workitemUID string) {
	wi, apiErr := f.deps.UPS.RetrieveWorkitem(workitemUID)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, ups.ToDataset(wi))
}

func (f *frontend) updateWorkitem(w http.ResponseWriter, r *http.Request, workitemUID string) {
	ds, apiErr := decodeDataset(r)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	patch := ups.FromDataset(ds)
	txnUID := r.URL.Query().Get("transaction-uid")

	apiErr = f.deps.UPS.UpdateWorkitem(workitemUID, txnUID, func(wi *ups.Workitem) {
		applyWorkitemPatch(wi, patch)
	})
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	writeNoContent(w)
}

// applyWorkitemPatch overwrites only the fields patch actually carries
// (non-empty strings, a non-nil Labels slice), matching updateWorkitem's
// partial-update semantics (spec.md §4.6).
func applyWorkitemPatch(wi *ups.Workitem, patch ups.Workitem) {
	if patch.Priority != "" {
		wi.Priority = patch.Priority
	}
	if patch.PatientID != "" {
		wi.PatientID = patch.PatientID
	}
	if patch.PatientName != "" {
		wi.PatientName = patch.PatientName
	}
	if patch.StudyInstanceUID != "" {
		wi.StudyInstanceUID = patch.StudyInstanceUID
	}
	if patch.Comments != "" {
		wi.Comments = patch.Comments
	}
	if patch.ScheduledHumanPerformer != "" {
		wi.ScheduledHumanPerformer = patch.ScheduledHumanPerformer
	}
	if patch.Labels != nil {
		wi.Labels = patch.Labels
	}
	if patch.Progress != 0 {
		wi.Progress = patch.Progress
	}
	for k, v := range patch.Attributes {
		if wi.Attributes == nil {
			wi.Attributes = dicomjson.Dataset{}
		}
		wi.Attributes[k] = v
	}
}

func (f *frontend) changeWorkitemState(w http.ResponseWriter, r *http.Request, workitemUID string) {
	ds, apiErr := decodeDataset(r)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	patch := ups.FromDataset(ds)
	txnUID := r.URL.Query().Get("transaction-uid")
	if txnUID == "" {
		txnUID = patch.TransactionUID
	}

	result, apiErr := f.deps.UPS.ChangeWorkitemState(workitemUID, patch.State, txnUID)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	if result.AssignedTxnUID != "" {
		w.Header().Set("X-Transaction-UID", result.AssignedTxnUID)
	}
	writeJSON(w, http.StatusOK, ups.ToDataset(result.Workitem))
}

func (f *frontend) requestCancellation(w http.ResponseWriter, r *http.Request, workitemUID string) {
	ds, apiErr := decodeDataset(r)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	reason, _ := ds.GetString("00741238") // Reason For Cancellation

	apiErr = f.deps.UPS.RequestWorkitemCancellation(workitemUID, reason)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (f *frontend) subscribeWorkitem(w http.ResponseWriter, r *http.Request, workitemUID, aeTitle string) {
	deletionLock := r.URL.Query().Get("deletionlock") == "true"
	f.deps.UPS.SubscribeWorkitem(aeTitle, workitemUID, deletionLock)
	writeNoContent(w)
}

func (f *frontend) unsubscribeWorkitem(w http.ResponseWriter, r *http.Request, workitemUID, aeTitle string) {
	f.deps.UPS.UnsubscribeWorkitem(aeTitle, workitemUID)
	writeNoContent(w)
}

func (f *frontend) suspendSubscription(w http.ResponseWriter, r *http.Request, workitemUID, aeTitle string) {
	f.deps.UPS.SuspendSubscription(aeTitle, workitemUID)
	writeNoContent(w)
}

func decodeDataset(r *http.Request) (dicomjson.Dataset, *apierror.Error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindBadRequest, "reading request body failed", err)
	}
	if len(body) == 0 {
		return dicomjson.Dataset{}, nil
	}
	var ds dicomjson.Dataset
	if err := json.Unmarshal(body, &ds); err != nil {
		return nil, apierror.Wrap(apierror.KindBadRequest, "malformed DICOM+JSON body", err)
	}
	return ds, nil
}
