// Package subscription implements the UPS-RS subscription manager
// (spec.md §4.7): per-AE-title interest registration, delete locks,
// suspension, and event-type filtering.
package subscription

import (
	"sync"

	"github.com/dicomkit/dicomweb-server/internal/event"
)

// GlobalWorkitemUID is the well-known UID that, when subscribed to,
// is equivalent to a global subscription (spec.md §4.6).
const GlobalWorkitemUID = "1.2.840.10008.5.1.4.34.5"

// Subscription is one recorded interest: a (aeTitle, workitemUID) pair,
// or global when WorkitemUID is empty.
type Subscription struct {
	AETitle      string
	WorkitemUID  string // empty means global
	DeletionLock bool
	EventTypes   []event.Type // empty means all types
	Suspended    bool
}

func (s Subscription) isGlobal() bool { return s.WorkitemUID == "" }

func (s Subscription) interestedIn(evt event.Event) bool {
	if s.Suspended {
		return false
	}
	if !s.isGlobal() && s.WorkitemUID != evt.WorkitemUID {
		return false
	}
	if len(s.EventTypes) == 0 {
		return true
	}
	for _, t := range s.EventTypes {
		if t == evt.Type {
			return true
		}
	}
	return false
}

type key struct {
	aeTitle     string
	workitemUID string
}

// Manager is the single authority on subscription state (spec.md §5),
// serializing all operations behind one mutex.
type Manager struct {
	mu   sync.RWMutex
	subs map[key]*Subscription
}

// NewManager builds an empty subscription manager.
func NewManager() *Manager {
	return &Manager{subs: make(map[key]*Subscription)}
}

// Subscribe records workitem-scoped interest. A workitemUID equal to
// GlobalWorkitemUID is treated as a global subscription.
func (m *Manager) Subscribe(aeTitle, workitemUID string, deletionLock bool, eventTypes []event.Type) {
	if workitemUID == GlobalWorkitemUID {
		workitemUID = ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[key{aeTitle, workitemUID}] = &Subscription{
		AETitle:      aeTitle,
		WorkitemUID:  workitemUID,
		DeletionLock: deletionLock,
		EventTypes:   eventTypes,
	}
}

// SubscribeGlobal records interest in every workitem.
func (m *Manager) SubscribeGlobal(aeTitle string, deletionLock bool, eventTypes []event.Type) {
	m.Subscribe(aeTitle, "", deletionLock, eventTypes)
}

// Unsubscribe removes a subscription. Idempotent: no error if absent.
func (m *Manager) Unsubscribe(aeTitle, workitemUID string) {
	if workitemUID == GlobalWorkitemUID {
		workitemUID = ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, key{aeTitle, workitemUID})
}

// Suspend marks a subscription as suspended: still registered, but
// silently skipped during delivery.
func (m *Manager) Suspend(aeTitle, workitemUID string) {
	m.setSuspended(aeTitle, workitemUID, true)
}

// Resume clears a subscription's suspended flag.
func (m *Manager) Resume(aeTitle, workitemUID string) {
	m.setSuspended(aeTitle, workitemUID, false)
}

func (m *Manager) setSuspended(aeTitle, workitemUID string, suspended bool) {
	if workitemUID == GlobalWorkitemUID {
		workitemUID = ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.subs[key{aeTitle, workitemUID}]; ok {
		sub.Suspended = suspended
	}
}

// HasDeleteLock reports whether any subscriber (workitem-scoped or
// global) holds a deletion lock over workitemUID. Consulted by the UPS
// storage provider before deleting a workitem.
func (m *Manager) HasDeleteLock(workitemUID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, sub := range m.subs {
		if !sub.DeletionLock {
			continue
		}
		if k.workitemUID == "" || k.workitemUID == workitemUID {
			return true
		}
	}
	return false
}

// GetSubscriptionsForWorkitem returns every subscription (workitem-scoped
// or global) registered against workitemUID.
func (m *Manager) GetSubscriptionsForWorkitem(workitemUID string) []Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Subscription
	for k, sub := range m.subs {
		if k.workitemUID == "" || k.workitemUID == workitemUID {
			out = append(out, *sub)
		}
	}
	return out
}

// GetSubscriptionsForAETitle returns every subscription registered by aeTitle.
func (m *Manager) GetSubscriptionsForAETitle(aeTitle string) []Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Subscription
	for k, sub := range m.subs {
		if k.aeTitle == aeTitle {
			out = append(out, *sub)
		}
	}
	return out
}

// GetSubscriptionsForEvent returns the union of workitem-scoped
// subscriptions matching evt.WorkitemUID and global subscriptions, that
// are interested in evt per the predicate in spec.md §3.
func (m *Manager) GetSubscriptionsForEvent(evt event.Event) []Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Subscription
	for _, sub := range m.subs {
		if sub.interestedIn(evt) {
			out = append(out, *sub)
		}
	}
	return out
}

// Subscribers converts subscriptions into event.Subscriber values for
// handoff to the event queue.
func Subscribers(subs []Subscription) []event.Subscriber {
	out := make([]event.Subscriber, 0, len(subs))
	for _, s := range subs {
		out = append(out, event.Subscriber{AETitle: s.AETitle, WorkitemUID: s.WorkitemUID, Global: s.WorkitemUID == ""})
	}
	return out
}
