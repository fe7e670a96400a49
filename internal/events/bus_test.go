package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/tire-request-service/internal/domain"
)

func receiveOne(t *testing.T, ch <-chan LifecycleEvent) LifecycleEvent {
	t.Helper()
	select {
	case event, ok := <-ch:
		require.True(t, ok, "channel closed")
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return LifecycleEvent{}
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	bus := NewInMemoryBus()
	defer bus.Close()

	first, err := bus.Subscribe("session-a", Filter{})
	require.NoError(t, err)
	second, err := bus.Subscribe("session-b", Filter{})
	require.NoError(t, err)

	event := LifecycleEvent{Type: EventRequestCreated, RequestID: 7, Sequence: 1}
	require.NoError(t, bus.Publish(context.Background(), event))

	assert.Equal(t, int64(7), receiveOne(t, first).RequestID)
	assert.Equal(t, int64(7), receiveOne(t, second).RequestID)
}

func TestFilterByRequestID(t *testing.T) {
	bus := NewInMemoryBus()
	defer bus.Close()

	ch, err := bus.Subscribe("session-a", Filter{RequestID: 42})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, LifecycleEvent{RequestID: 1, Sequence: 1}))
	require.NoError(t, bus.Publish(ctx, LifecycleEvent{RequestID: 42, Sequence: 1}))

	got := receiveOne(t, ch)
	assert.Equal(t, int64(42), got.RequestID)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event for request %d", extra.RequestID)
	default:
	}
}

func TestResubscribeReplacesPrevious(t *testing.T) {
	bus := NewInMemoryBus()
	defer bus.Close()

	old, err := bus.Subscribe("session-a", Filter{})
	require.NoError(t, err)
	replacement, err := bus.Subscribe("session-a", Filter{})
	require.NoError(t, err)

	_, ok := <-old
	assert.False(t, ok, "replaced channel must be closed")

	require.NoError(t, bus.Publish(context.Background(), LifecycleEvent{RequestID: 3, Sequence: 1}))
	assert.Equal(t, int64(3), receiveOne(t, replacement).RequestID)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewInMemoryBus()
	defer bus.Close()

	ch, err := bus.Subscribe("session-a", Filter{})
	require.NoError(t, err)
	bus.Unsubscribe("session-a")

	_, ok := <-ch
	assert.False(t, ok)

	require.NoError(t, bus.Publish(context.Background(), LifecycleEvent{RequestID: 1, Sequence: 1}))
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewInMemoryBus()
	defer bus.Close()

	ch, err := bus.Subscribe("session-a", Filter{})
	require.NoError(t, err)

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			_ = bus.Publish(ctx, LifecycleEvent{RequestID: 1, Sequence: int64(i + 1)})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	// The buffer holds the first events; the rest were dropped.
	assert.Equal(t, int64(1), receiveOne(t, ch).Sequence)
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	bus := NewInMemoryBus()
	ch, err := bus.Subscribe("session-a", Filter{})
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	_, ok := <-ch
	assert.False(t, ok)
	assert.NoError(t, bus.Publish(context.Background(), LifecycleEvent{RequestID: 1}))
}

func TestFilterZeroValueMatchesEverything(t *testing.T) {
	filter := Filter{}
	assert.True(t, filter.Matches(LifecycleEvent{RequestID: 1}))
	assert.True(t, filter.Matches(LifecycleEvent{RequestID: 99, ActorRole: domain.RoleEngineer}))
}

func TestFilterByRole(t *testing.T) {
	filter := Filter{Roles: []domain.Role{domain.RoleSupervisor, domain.RoleEngineer}}
	assert.True(t, filter.Matches(LifecycleEvent{RequestID: 1, ActorRole: domain.RoleSupervisor}))
	assert.True(t, filter.Matches(LifecycleEvent{RequestID: 1, ActorRole: domain.RoleEngineer}))
	assert.False(t, filter.Matches(LifecycleEvent{RequestID: 1, ActorRole: domain.RoleUser}))
	assert.False(t, filter.Matches(LifecycleEvent{RequestID: 1}))
}

func TestSubscribeWithRoleFilter(t *testing.T) {
	bus := NewInMemoryBus()
	defer bus.Close()
	ctx := context.Background()

	ch, err := bus.Subscribe("session-a", Filter{Roles: []domain.Role{domain.RoleEngineer}})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, LifecycleEvent{RequestID: 1, Sequence: 1, ActorRole: domain.RoleSupervisor}))
	require.NoError(t, bus.Publish(ctx, LifecycleEvent{RequestID: 1, Sequence: 2, ActorRole: domain.RoleEngineer}))

	event := receiveOne(t, ch)
	assert.Equal(t, int64(2), event.Sequence)
	select {
	case extra := <-ch:
		t.Fatalf("supervisor event leaked through role filter: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}
