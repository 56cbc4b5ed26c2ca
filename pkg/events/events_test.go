package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxsync/max/pkg/types"
)

func receive(t *testing.T, sub Subscriber) Event {
	t.Helper()
	select {
	case event := <-sub:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBrokerFansOut(t *testing.T) {
	ctx := context.Background()
	broker := NewBroker()
	require.Equal(t, types.Started, broker.Start(ctx).Outcome)
	defer broker.Stop(ctx)

	first := broker.Subscribe()
	second := broker.Subscribe()
	defer broker.Unsubscribe(first)
	defer broker.Unsubscribe(second)
	assert.Equal(t, 2, broker.SubscriberCount())

	broker.Publish(Event{Type: EventSyncStarted, Sync: "s1"})

	for _, sub := range []Subscriber{first, second} {
		event := receive(t, sub)
		assert.Equal(t, EventSyncStarted, event.Type)
		assert.Equal(t, types.SyncID("s1"), event.Sync)
		assert.False(t, event.Timestamp.IsZero())
	}
}

func TestBrokerLifecycle(t *testing.T) {
	ctx := context.Background()
	broker := NewBroker()

	assert.Equal(t, types.Unhealthy, broker.Health(ctx).Status)
	require.Equal(t, types.Started, broker.Start(ctx).Outcome)
	assert.Equal(t, types.AlreadyRunning, broker.Start(ctx).Outcome)
	assert.Equal(t, types.Healthy, broker.Health(ctx).Status)
	require.Equal(t, types.Stopped, broker.Stop(ctx).Outcome)
	assert.Equal(t, types.AlreadyStopped, broker.Stop(ctx).Outcome)

	// events published while stopped are dropped, not queued
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	broker.Publish(Event{Type: EventSyncFailed})

	require.Equal(t, types.Started, broker.Start(ctx).Outcome)
	defer broker.Stop(ctx)
	broker.Publish(Event{Type: EventSyncCompleted})
	assert.Equal(t, EventSyncCompleted, receive(t, sub).Type)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	ctx := context.Background()
	broker := NewBroker()
	broker.Start(ctx)
	defer broker.Stop(ctx)

	sub := broker.Subscribe()
	broker.Unsubscribe(sub)

	_, open := <-sub
	require.False(t, open)
	assert.Equal(t, 0, broker.SubscriberCount())
}

func TestSlowSubscriberIsSkipped(t *testing.T) {
	ctx := context.Background()
	broker := NewBroker()
	broker.Start(ctx)
	defer broker.Stop(ctx)

	// never drained, so its buffer eventually fills
	slow := broker.Subscribe()
	defer broker.Unsubscribe(slow)
	fast := broker.Subscribe()
	defer broker.Unsubscribe(fast)

	for i := 0; i < 80; i++ {
		broker.Publish(Event{Type: EventSyncCompleted})
		receive(t, fast)
	}
	// the fast subscriber saw all 80; the slow one kept only its buffer
	assert.LessOrEqual(t, len(slow), 50)
}
