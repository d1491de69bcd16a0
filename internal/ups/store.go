package ups

import (
	"sync"

	"github.com/google/uuid"

	"github.com/dicomkit/dicomweb-server/internal/event"
	"github.com/dicomkit/dicomweb-server/internal/subscription"
)

// ErrNotFound is returned by operations addressing an absent workitem.
type notFoundError struct{}

func (notFoundError) Error() string { return "ups: workitem not found" }

var ErrNotFound = notFoundError{}

// ErrAlreadyExists is returned by Create when workitemUID is already in use.
type alreadyExistsError struct{}

func (alreadyExistsError) Error() string { return "ups: workitem already exists" }

var ErrAlreadyExists = alreadyExistsError{}

// ErrConflict is returned for an illegal state transition or a
// transaction UID mismatch.
type conflictError struct{ reason string }

func (e conflictError) Error() string { return "ups: conflict: " + e.reason }

var _ error = conflictError{}

// Store is the UPS storage provider (spec.md §2, component B): it owns
// workitem records and performs state transitions atomically within a
// single critical section per spec.md §5, enqueuing the resulting
// event before the mutating call returns.
type Store struct {
	mu    sync.Mutex
	items map[string]*Workitem

	subs  *subscription.Manager
	queue *event.Queue
}

// NewStore builds an empty UPS store wired to a subscription manager
// and event queue, the collaborators it must consult/notify on every
// mutation (spec.md §5 "Shared-resource policy").
func NewStore(subs *subscription.Manager, queue *event.Queue) *Store {
	return &Store{items: make(map[string]*Workitem), subs: subs, queue: queue}
}

// Create inserts a new workitem in SCHEDULED state. If workitemUID is
// already taken, returns ErrAlreadyExists.
func (s *Store) Create(wi Workitem) (Workitem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[wi.WorkitemUID]; exists {
		return Workitem{}, ErrAlreadyExists
	}
	wi.State = StateScheduled
	if wi.Priority == "" {
		wi.Priority = PriorityMedium
	}
	stored := wi.Clone()
	s.items[wi.WorkitemUID] = &stored
	return stored.Clone(), nil
}

// Get returns a copy of the stored workitem.
func (s *Store) Get(workitemUID string) (Workitem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wi, ok := s.items[workitemUID]
	if !ok {
		return Workitem{}, ErrNotFound
	}
	return wi.Clone(), nil
}

// Update replaces a workitem's mutable fields. Allowed only when
// SCHEDULED, or IN PROGRESS with a matching transactionUID (spec.md
// §4.6 "updateWorkitem").
func (s *Store) Update(workitemUID string, apply func(*Workitem), transactionUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wi, ok := s.items[workitemUID]
	if !ok {
		return ErrNotFound
	}
	if wi.State == StateInProgress && wi.TransactionUID != transactionUID {
		return conflictError{reason: "transaction UID mismatch"}
	}
	if wi.State != StateScheduled && wi.State != StateInProgress {
		return conflictError{reason: "workitem is not updatable in its current state"}
	}
	apply(wi)
	return nil
}

// ChangeStateResult carries what a successful ChangeState call produced,
// for the handler to shape its HTTP response.
type ChangeStateResult struct {
	Workitem       Workitem
	AssignedTxnUID string // set only when transitioning into IN PROGRESS
}

// ChangeState performs the transition atomically: legality check,
// transaction UID comparison, state update, and event enqueue all occur
// within one critical section (spec.md §5 "Transaction semantics").
func (s *Store) ChangeState(workitemUID string, newState State, transactionUID string) (ChangeStateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wi, ok := s.items[workitemUID]
	if !ok {
		return ChangeStateResult{}, ErrNotFound
	}
	if !CanTransition(wi.State, newState) {
		return ChangeStateResult{}, conflictError{reason: "illegal state transition"}
	}
	if wi.State == StateInProgress && wi.TransactionUID != transactionUID {
		return ChangeStateResult{}, conflictError{reason: "transaction UID mismatch"}
	}

	previous := wi.State
	wi.State = newState

	result := ChangeStateResult{}
	if newState == StateInProgress {
		wi.TransactionUID = uuid.NewString()
		result.AssignedTxnUID = wi.TransactionUID
		if wi.ScheduledHumanPerformer != "" {
			s.enqueueLocked(event.Event{Type: event.TypeAssigned, WorkitemUID: workitemUID, Performer: wi.ScheduledHumanPerformer})
		}
	} else {
		wi.TransactionUID = ""
	}

	s.enqueueLocked(event.Event{
		Type:           event.TypeStateReport,
		WorkitemUID:    workitemUID,
		TransactionUID: transactionUID,
		PreviousState:  string(previous),
		NewState:       string(newState),
	})

	switch newState {
	case StateCompleted:
		s.enqueueLocked(event.Event{Type: event.TypeCompleted, WorkitemUID: workitemUID})
	case StateCanceled:
		s.enqueueLocked(event.Event{Type: event.TypeCanceled, WorkitemUID: workitemUID, Reason: wi.CancellationReason})
	}

	result.Workitem = wi.Clone()
	return result, nil
}

// UpdateProgress sets the workitem's progress and emits a
// ProgressReport event.
func (s *Store) UpdateProgress(workitemUID string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wi, ok := s.items[workitemUID]
	if !ok {
		return ErrNotFound
	}
	wi.Progress = progress
	s.enqueueLocked(event.Event{Type: event.TypeProgressReport, WorkitemUID: workitemUID, Progress: progress})
	return nil
}

// RequestCancellation implements spec.md §4.6's per-state cancel
// request behavior: SCHEDULED transitions immediately to CANCELED;
// IN PROGRESS instead enqueues a CancelRequested event for subscribers
// to honor.
func (s *Store) RequestCancellation(workitemUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wi, ok := s.items[workitemUID]
	if !ok {
		return ErrNotFound
	}
	if wi.State.isTerminal() {
		return conflictError{reason: "workitem is already in a terminal state"}
	}

	switch wi.State {
	case StateScheduled:
		wi.State = StateCanceled
		wi.CancellationReason = reason
		s.enqueueLocked(event.Event{Type: event.TypeCanceled, WorkitemUID: workitemUID, Reason: reason})
	case StateInProgress:
		s.enqueueLocked(event.Event{Type: event.TypeCancelRequested, WorkitemUID: workitemUID, Reason: reason})
	}
	return nil
}

// Delete removes a workitem, refusing if the subscription manager
// reports a delete lock (spec.md §4.7 "hasDeleteLock").
func (s *Store) Delete(workitemUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[workitemUID]; !ok {
		return ErrNotFound
	}
	if s.subs != nil && s.subs.HasDeleteLock(workitemUID) {
		return conflictError{reason: "workitem has an active deletion lock"}
	}
	delete(s.items, workitemUID)
	return nil
}

// Search returns every workitem matching a (possibly empty) state filter.
func (s *Store) Search(stateFilter State) []Workitem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Workitem, 0, len(s.items))
	for _, wi := range s.items {
		if stateFilter != "" && wi.State != stateFilter {
			continue
		}
		out = append(out, wi.Clone())
	}
	return out
}

// enqueueLocked must be called with s.mu held: it looks up interested
// subscribers and pushes the envelope before the mutating call returns,
// per spec.md §5's ordering guarantee.
func (s *Store) enqueueLocked(evt event.Event) {
	if s.queue == nil {
		return
	}
	var subs []event.Subscriber
	if s.subs != nil {
		subs = subscription.Subscribers(s.subs.GetSubscriptionsForEvent(evt))
	}
	s.queue.Enqueue(event.Envelope{Event: evt, Subscribers: subs})
}

// IsConflict reports whether err is a state-transition/lock conflict.
func IsConflict(err error) bool {
	_, ok := err.(conflictError)
	return ok
}
