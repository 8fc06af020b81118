package services

import (
	"log"
	"sync"

	"github.com/chatdesk-app/chatdesk-backend/internal/models"
)

// Per-customer buffer; Dispatch blocks once a customer has this many
// undelivered batches.
const queueDepth = 16

// QueuedDispatcher wraps a Dispatcher with one delivery worker per phone.
// Batches for the same customer go out strictly in the order they were
// enqueued, so two rapid replies cannot interleave on the wire; different
// customers deliver independently.
type QueuedDispatcher struct {
	next   Dispatcher
	queues sync.Map // phone -> chan []models.Action
}

// NewQueuedDispatcher creates the queueing wrapper
func NewQueuedDispatcher(next Dispatcher) *QueuedDispatcher {
	return &QueuedDispatcher{next: next}
}

// Dispatch enqueues the batch for the customer's delivery worker and
// returns immediately. Send errors are logged by the worker; delivery
// stays at-most-once.
func (q *QueuedDispatcher) Dispatch(phone string, actions []models.Action) error {
	if len(actions) == 0 {
		return nil
	}
	q.queue(phone) <- actions
	return nil
}

func (q *QueuedDispatcher) queue(phone string) chan []models.Action {
	if ch, ok := q.queues.Load(phone); ok {
		return ch.(chan []models.Action)
	}
	ch := make(chan []models.Action, queueDepth)
	actual, loaded := q.queues.LoadOrStore(phone, ch)
	if loaded {
		return actual.(chan []models.Action)
	}
	go q.deliver(phone, ch)
	return ch
}

func (q *QueuedDispatcher) deliver(phone string, ch chan []models.Action) {
	for actions := range ch {
		if err := q.next.Dispatch(phone, actions); err != nil {
			log.Printf("❌ Failed to deliver queued actions to %s: %v", phone, err)
		}
	}
}
