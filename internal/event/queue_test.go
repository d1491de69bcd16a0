package event_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dicomkit/dicomweb-server/internal/event"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := event.NewQueue(0)
	q.Enqueue(event.Envelope{Event: event.Event{WorkitemUID: "1"}})
	q.Enqueue(event.Envelope{Event: event.Event{WorkitemUID: "2"}})

	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "1", first.Event.WorkitemUID)

	second, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "2", second.Event.WorkitemUID)
}

func TestQueueDropsOldestOnOverflow(t *testing.T) {
	q := event.NewQueue(2)
	q.Enqueue(event.Envelope{Event: event.Event{WorkitemUID: "1"}})
	q.Enqueue(event.Envelope{Event: event.Event{WorkitemUID: "2"}})
	q.Enqueue(event.Envelope{Event: event.Event{WorkitemUID: "3"}})

	assert.Equal(t, 2, q.Size())
	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "2", first.Event.WorkitemUID)
	second, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "3", second.Event.WorkitemUID)
}

func TestQueueDequeueBlocksUntilEnqueue(t *testing.T) {
	q := event.NewQueue(0)
	result := make(chan event.Envelope, 1)
	go func() {
		env, ok := q.Dequeue()
		if ok {
			result <- env
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Enqueue(event.Envelope{Event: event.Event{WorkitemUID: "delayed"}})

	select {
	case env := <-result:
		assert.Equal(t, "delayed", env.Event.WorkitemUID)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not unblock after enqueue")
	}
}

func TestQueueCloseDrainsThenUnblocks(t *testing.T) {
	q := event.NewQueue(0)
	q.Enqueue(event.Envelope{Event: event.Event{WorkitemUID: "1"}})
	q.Close()

	env, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "1", env.Event.WorkitemUID)

	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestQueueEnqueueAfterCloseIsNoOp(t *testing.T) {
	q := event.NewQueue(0)
	q.Close()
	q.Enqueue(event.Envelope{Event: event.Event{WorkitemUID: "1"}})
	_, ok := q.Dequeue()
	assert.False(t, ok)
}
