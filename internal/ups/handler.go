package ups

import (
	"errors"
	"fmt"

	"github.com/dicomkit/dicomweb-server/internal/apierror"
	"github.com/dicomkit/dicomweb-server/internal/subscription"
)

// Handler serves UPS-RS requests against a Store and the subscription
// manager it shares with that store.
type Handler struct {
	Store   *Store
	Subs    *subscription.Manager
	BaseURL string
}

// NewHandler builds a UPS handler. Store may be nil, in which case
// every operation reports 501 per spec.md §4.6 ("UPS storage
// unconfigured").
func NewHandler(store *Store, subs *subscription.Manager, baseURL string) *Handler {
	return &Handler{Store: store, Subs: subs, BaseURL: baseURL}
}

func (h *Handler) requireStore() *apierror.Error {
	if h.Store == nil {
		return apierror.New(apierror.KindNotImplemented, "UPS storage is not configured")
	}
	return nil
}

// CreateResult carries the created workitem plus the Location header
// value the HTTP front must emit on 201.
type CreateResult struct {
	Workitem Workitem
	Location string
}

// CreateWorkitem implements createWorkitem/createWorkitemWithUID: state
// must be SCHEDULED (the Store enforces this by construction); a
// supplied UID already in use -> 409.
func (h *Handler) CreateWorkitem(wi Workitem) (CreateResult, *apierror.Error) {
	if apiErr := h.requireStore(); apiErr != nil {
		return CreateResult{}, apiErr
	}
	if wi.WorkitemUID == "" {
		return CreateResult{}, apierror.New(apierror.KindBadRequest, "workitemUID is required")
	}
	stored, err := h.Store.Create(wi)
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return CreateResult{}, apierror.New(apierror.KindConflict, "workitem already exists")
		}
		return CreateResult{}, apierror.Wrap(apierror.KindInternal, "creating workitem failed", err)
	}
	return CreateResult{Workitem: stored, Location: fmt.Sprintf("%s/workitems/%s", h.BaseURL, stored.WorkitemUID)}, nil
}

// RetrieveWorkitem fetches one workitem by UID.
func (h *Handler) RetrieveWorkitem(workitemUID string) (Workitem, *apierror.Error) {
	if apiErr := h.requireStore(); apiErr != nil {
		return Workitem{}, apiErr
	}
	wi, err := h.Store.Get(workitemUID)
	if err != nil {
		return Workitem{}, notFoundOrInternal(err, "workitem not found")
	}
	return wi, nil
}

// SearchWorkitems lists workitems, optionally filtered by state.
func (h *Handler) SearchWorkitems(stateFilter State) ([]Workitem, *apierror.Error) {
	if apiErr := h.requireStore(); apiErr != nil {
		return nil, apiErr
	}
	return h.Store.Search(stateFilter), nil
}

// UpdateWorkitem applies a mutation. Returns 204 semantics to the
// caller (no body) by design; the HTTP front maps a nil error to 204.
func (h *Handler) UpdateWorkitem(workitemUID, transactionUID string, apply func(*Workitem)) *apierror.Error {
	if apiErr := h.requireStore(); apiErr != nil {
		return apiErr
	}
	err := h.Store.Update(workitemUID, apply, transactionUID)
	if err != nil {
		return errToAPIError(err, "updating workitem failed")
	}
	return nil
}

// ChangeWorkitemState implements changeWorkitemState (spec.md §4.6):
// entering IN PROGRESS assigns a fresh transaction UID (returned in
// Result.AssignedTxnUID); leaving it requires the caller's
// transactionUID to match the stored one.
func (h *Handler) ChangeWorkitemState(workitemUID string, newState State, transactionUID string) (ChangeStateResult, *apierror.Error) {
	if apiErr := h.requireStore(); apiErr != nil {
		return ChangeStateResult{}, apiErr
	}
	result, err := h.Store.ChangeState(workitemUID, newState, transactionUID)
	if err != nil {
		return ChangeStateResult{}, errToAPIError(err, "state change failed")
	}
	return result, nil
}

// RequestWorkitemCancellation implements requestWorkitemCancellation:
// always 202 on success, regardless of whether cancellation was
// immediate (SCHEDULED) or deferred to subscribers (IN PROGRESS).
func (h *Handler) RequestWorkitemCancellation(workitemUID, reason string) *apierror.Error {
	if apiErr := h.requireStore(); apiErr != nil {
		return apiErr
	}
	if err := h.Store.RequestCancellation(workitemUID, reason); err != nil {
		return errToAPIError(err, "cancellation request failed")
	}
	return nil
}

// DeleteWorkitem removes a workitem, refusing if a subscriber holds a
// deletion lock.
func (h *Handler) DeleteWorkitem(workitemUID string) *apierror.Error {
	if apiErr := h.requireStore(); apiErr != nil {
		return apiErr
	}
	if err := h.Store.Delete(workitemUID); err != nil {
		return errToAPIError(err, "deleting workitem failed")
	}
	return nil
}

// SubscribeWorkitem records interest; workitemUID ==
// subscription.GlobalWorkitemUID is equivalent to SubscribeGlobal.
func (h *Handler) SubscribeWorkitem(aeTitle, workitemUID string, deletionLock bool) {
	h.Subs.Subscribe(aeTitle, workitemUID, deletionLock, nil)
}

// UnsubscribeWorkitem removes interest (idempotent).
func (h *Handler) UnsubscribeWorkitem(aeTitle, workitemUID string) {
	h.Subs.Unsubscribe(aeTitle, workitemUID)
}

// SuspendSubscription suspends a subscriber's interest without removing it.
func (h *Handler) SuspendSubscription(aeTitle, workitemUID string) {
	h.Subs.Suspend(aeTitle, workitemUID)
}

func notFoundOrInternal(err error, message string) *apierror.Error {
	if errors.Is(err, ErrNotFound) {
		return apierror.New(apierror.KindNotFound, message)
	}
	return apierror.Wrap(apierror.KindInternal, message, err)
}

func errToAPIError(err error, message string) *apierror.Error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apierror.New(apierror.KindNotFound, message)
	case IsConflict(err):
		return apierror.Wrap(apierror.KindConflict, message, err)
	default:
		return apierror.Wrap(apierror.KindInternal, message, err)
	}
}
