package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/requestcontext"
)

func TestPublisherFillsDefaults(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store)

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	ctx := requestcontext.WithTime(context.Background(), fixed)
	ctx = requestcontext.WithRequestID(ctx, "req-1")

	require.NoError(t, pub.Emit(ctx, Event{Action: ActionPartyCreated, Party: "NL*EXA*CPO"}))
	require.NoError(t, pub.Emit(ctx, Event{Action: ActionPartyCreated, Party: "DE*GEF*EMSP"}))

	events, err := store.ListByParty(ctx, "NL*EXA*CPO")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, "req-1", events[0].RequestID)
	assert.Equal(t, fixed.UTC(), events[0].Timestamp)
	assert.Equal(t, time.UTC, events[0].Timestamp.Location())
}

func TestQueueAndWorker(t *testing.T) {
	sink := NewInMemoryStore()
	queue := NewQueue(4)
	worker := NewWorker(sink, queue.Inbox(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	pub := NewPublisher(queue)
	require.NoError(t, pub.Emit(ctx, Event{Action: ActionTokenIssued, Party: "NL*EXA*CPO"}))

	assert.Eventually(t, func() bool {
		all, _ := sink.ListAll(ctx)
		return len(all) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestQueueFull(t *testing.T) {
	queue := NewQueue(1)
	queue.timeout = time.Millisecond
	require.NoError(t, queue.Append(context.Background(), Event{}))
	assert.ErrorIs(t, queue.Append(context.Background(), Event{}), ErrQueueFull)
}
