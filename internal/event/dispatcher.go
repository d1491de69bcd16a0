package event

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// DeliveryService transports one delivered event to one subscriber.
// Delivery errors are logged by the dispatcher and never halt the loop.
type DeliveryService interface {
	DeliverEvent(evt Event, sub Subscriber) error
}

// LogDeliveryService is the reference DeliveryService: it logs the
// delivery instead of transporting it over a real channel (spec.md §2,
// component E, "test impl: log").
type LogDeliveryService struct{}

func (LogDeliveryService) DeliverEvent(evt Event, sub Subscriber) error {
	log.Info().
		Str("eventType", string(evt.Type)).
		Str("workitemUID", evt.WorkitemUID).
		Str("aeTitle", sub.AETitle).
		Bool("global", sub.Global).
		Msg("event: delivered")
	return nil
}

// Dispatcher is the background task loop described in spec.md §4.8: it
// dequeues envelopes and fans each out to the delivery service,
// preserving per-subscriber ordering since delivery within one
// envelope is sequential and envelopes are processed in FIFO order.
type Dispatcher struct {
	queue    *Queue
	delivery DeliveryService

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewDispatcher binds a dispatcher to a queue and delivery service.
func NewDispatcher(queue *Queue, delivery DeliveryService) *Dispatcher {
	return &Dispatcher{queue: queue, delivery: delivery}
}

// Start launches the background loop. Idempotent: a second call while
// already running is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.done = make(chan struct{})
	go d.run(d.done)
}

func (d *Dispatcher) run(done chan struct{}) {
	defer close(done)
	for {
		env, ok := d.queue.Dequeue()
		if !ok {
			return
		}
		for _, sub := range env.Subscribers {
			if err := d.delivery.DeliverEvent(env.Event, sub); err != nil {
				log.Warn().Err(err).Str("aeTitle", sub.AETitle).Str("workitemUID", sub.WorkitemUID).Msg("event: delivery failed")
			}
		}
	}
}

// Stop cancels the loop by closing the queue and waits for the
// in-flight drain to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	done := d.done
	d.running = false
	d.mu.Unlock()

	d.queue.Close()
	<-done
}
