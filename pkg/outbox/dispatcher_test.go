package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"habittracker/pkg/trace"
)

type fakeEventStore struct {
	pending    []*Event
	sent       []int64
	failed     []int64
	maxRetries int
}

func (f *fakeEventStore) GetPendingEvents(_ context.Context, limit int) ([]*Event, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeEventStore) MarkAsSent(_ context.Context, id int64) error {
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeEventStore) MarkAsFailed(_ context.Context, id int64, maxRetries int) error {
	f.failed = append(f.failed, id)
	f.maxRetries = maxRetries
	return nil
}

type fakePublisher struct {
	fail     map[string]bool
	keys     []string
	traceIDs []string
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, routingKey string, _ any) error {
	if p.fail[routingKey] {
		return errors.New("broker down")
	}
	p.keys = append(p.keys, routingKey)
	p.traceIDs = append(p.traceIDs, trace.FromContext(ctx))
	return nil
}

func TestProcessPendingEvents(t *testing.T) {
	store := &fakeEventStore{pending: []*Event{
		{ID: 1, RoutingKey: "habit.created", Payload: json.RawMessage(`{"habit_id":"h1","trace_id":"t-1"}`)},
		{ID: 2, RoutingKey: "habit.missed", Payload: json.RawMessage(`{"habit_id":"h1"}`)},
		{ID: 3, RoutingKey: "habit.completed", Payload: json.RawMessage(`not json`)},
	}}
	pub := &fakePublisher{fail: map[string]bool{"habit.missed": true}}

	d := NewDispatcher(store, pub, zap.NewNop())
	assert.Equal(t, 1, d.ProcessPendingEvents(context.Background()))

	assert.Equal(t, []int64{1}, store.sent)
	assert.Equal(t, []int64{2, 3}, store.failed, "broker failure and bad payload are marked failed")
	require.Len(t, pub.traceIDs, 1)
	assert.Equal(t, "t-1", pub.traceIDs[0], "trace id propagates")
}

func TestProcessPendingEventsRespectsBatchSize(t *testing.T) {
	store := &fakeEventStore{}
	for i := int64(1); i <= 5; i++ {
		store.pending = append(store.pending, &Event{ID: i, RoutingKey: "habit.created", Payload: json.RawMessage(`{}`)})
	}
	pub := &fakePublisher{}

	d := NewDispatcher(store, pub, zap.NewNop()).WithBatchSize(2)
	assert.Equal(t, 2, d.ProcessPendingEvents(context.Background()))
}

func TestProcessPendingEventsPassesRetryLimit(t *testing.T) {
	store := &fakeEventStore{pending: []*Event{
		{ID: 7, RoutingKey: "habit.deleted", Payload: json.RawMessage(`{"habit_id":"h9"}`)},
	}}
	pub := &fakePublisher{fail: map[string]bool{"habit.deleted": true}}

	d := NewDispatcher(store, pub, zap.NewNop()).WithMaxRetries(3)
	assert.Equal(t, 0, d.ProcessPendingEvents(context.Background()))
	assert.Equal(t, 3, store.maxRetries)
}
