package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/requestcontext"
)

// Store persists or forwards audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher captures structured audit events. It is append-only and hands
// events to a Store so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Emit fills in id, timestamp and request id when missing and appends.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	event.Timestamp = event.Timestamp.UTC()
	return p.store.Append(ctx, event)
}

// InMemoryStore keeps events in process; used when no broker is configured
// and by tests.
type InMemoryStore struct {
	mu     sync.Mutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListByParty returns events for one party, oldest first.
func (s *InMemoryStore) ListByParty(_ context.Context, party string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Party == party {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListAll returns every event, oldest first.
func (s *InMemoryStore) ListAll(_ context.Context) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...), nil
}

// Queue is a bounded channel-backed Store drained by a Worker, which keeps
// slow sinks off the request path.
type Queue struct {
	ch      chan Event
	timeout time.Duration
}

func NewQueue(size int) *Queue {
	return &Queue{ch: make(chan Event, size), timeout: 100 * time.Millisecond}
}

// Append enqueues the event, giving up after a short wait when the queue is
// full.
func (q *Queue) Append(ctx context.Context, event Event) error {
	timer := time.NewTimer(q.timeout)
	defer timer.Stop()
	select {
	case q.ch <- event:
		return nil
	case <-timer.C:
		return ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Inbox exposes the receive side to a Worker.
func (q *Queue) Inbox() <-chan Event {
	return q.ch
}
