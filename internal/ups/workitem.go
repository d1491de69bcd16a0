// Package ups implements the UPS-RS state machine (spec.md §4.6): the
// Workitem data model, an in-memory storage provider owning atomic
// state transitions, and a Handler translating HTTP-shaped requests
// into storage mutations plus emitted events.
package ups

import "github.com/dicomkit/dicomweb-server/internal/dicomjson"

// State is one of the four UPS workitem states.
type State string

const (
	StateScheduled  State = "SCHEDULED"
	StateInProgress State = "IN PROGRESS"
	StateCompleted  State = "COMPLETED"
	StateCanceled   State = "CANCELED"
)

func (s State) isTerminal() bool {
	return s == StateCompleted || s == StateCanceled
}

// Priority is the workitem's scheduling priority.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityStat   Priority = "STAT"
)

// legalTransitions enumerates spec.md §4.6's allowed state graph.
var legalTransitions = map[State]map[State]bool{
	StateScheduled:  {StateInProgress: true, StateCanceled: true},
	StateInProgress: {StateCompleted: true, StateCanceled: true},
}

// CanTransition reports whether from -> to is a legal UPS transition.
func CanTransition(from, to State) bool {
	return legalTransitions[from][to]
}

// Workitem is a UPS procedure-step record (spec.md §3).
type Workitem struct {
	WorkitemUID    string
	State          State
	Priority       Priority
	TransactionUID string

	PatientID        string
	PatientName      string
	StudyInstanceUID string
	Labels           []string
	Comments         string

	ScheduledHumanPerformer string
	Progress                int
	CancellationReason      string

	// Attributes carries the full DICOM+JSON dataset supplied at
	// create/update time, for round-tripping fields this model does not
	// promote to named struct fields.
	Attributes dicomjson.Dataset
}

// Clone returns a deep-enough copy safe to hand to a caller outside the
// provider's lock: Attributes and Labels are copied, not aliased.
func (w Workitem) Clone() Workitem {
	out := w
	if w.Labels != nil {
		out.Labels = append([]string(nil), w.Labels...)
	}
	if w.Attributes != nil {
		out.Attributes = make(dicomjson.Dataset, len(w.Attributes))
		for k, v := range w.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}
