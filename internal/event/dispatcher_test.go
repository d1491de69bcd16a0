package event_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dicomkit/dicomweb-server/internal/event"
)

type recordingDelivery struct {
	mu        sync.Mutex
	delivered []event.Subscriber
	failNext  bool
}

func (r *recordingDelivery) DeliverEvent(_ event.Event, sub event.Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext {
		r.failNext = false
		return assert.AnError
	}
	r.delivered = append(r.delivered, sub)
	return nil
}

func (r *recordingDelivery) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.delivered)
}

func TestDispatcherDeliversToAllSubscribersInEnvelope(t *testing.T) {
	q := event.NewQueue(0)
	delivery := &recordingDelivery{}
	d := event.NewDispatcher(q, delivery)
	d.Start()
	defer d.Stop()

	q.Enqueue(event.Envelope{
		Event: event.Event{Type: event.TypeCompleted, WorkitemUID: "1"},
		Subscribers: []event.Subscriber{
			{AETitle: "VIEWER1"},
			{AETitle: "VIEWER2"},
		},
	})

	require.Eventually(t, func() bool { return delivery.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestDispatcherStartIsIdempotent(t *testing.T) {
	q := event.NewQueue(0)
	delivery := &recordingDelivery{}
	d := event.NewDispatcher(q, delivery)
	d.Start()
	d.Start()
	defer d.Stop()

	q.Enqueue(event.Envelope{Event: event.Event{Type: event.TypeCompleted}, Subscribers: []event.Subscriber{{AETitle: "A"}}})
	require.Eventually(t, func() bool { return delivery.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDispatcherContinuesAfterDeliveryError(t *testing.T) {
	q := event.NewQueue(0)
	delivery := &recordingDelivery{failNext: true}
	d := event.NewDispatcher(q, delivery)
	d.Start()
	defer d.Stop()

	q.Enqueue(event.Envelope{Event: event.Event{Type: event.TypeCompleted}, Subscribers: []event.Subscriber{{AETitle: "A"}}})
	q.Enqueue(event.Envelope{Event: event.Event{Type: event.TypeCompleted}, Subscribers: []event.Subscriber{{AETitle: "B"}}})

	require.Eventually(t, func() bool { return delivery.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDispatcherStopDrainsQueueBeforeReturning(t *testing.T) {
	q := event.NewQueue(0)
	delivery := &recordingDelivery{}
	d := event.NewDispatcher(q, delivery)
	d.Start()

	q.Enqueue(event.Envelope{Event: event.Event{Type: event.TypeCompleted}, Subscribers: []event.Subscriber{{AETitle: "A"}}})
	d.Stop()

	assert.Equal(t, 1, delivery.count())
}
