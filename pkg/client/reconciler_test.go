package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createdEvent(id int64, seq int64, at time.Time) LifecycleEvent {
	return LifecycleEvent{
		Type:      EventCreated,
		RequestID: id,
		NewStatus: "PENDING",
		ActorID:   "user-1",
		Sequence:  seq,
		Timestamp: at,
	}
}

func statusEvent(id int64, seq int64, status string, at time.Time) LifecycleEvent {
	return LifecycleEvent{
		Type:      EventStatusChanged,
		RequestID: id,
		NewStatus: status,
		ActorID:   "supervisor-1",
		Sequence:  seq,
		Timestamp: at,
	}
}

func TestReconcilerAppliesInOrder(t *testing.T) {
	r := NewReconciler()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	assert.True(t, r.Apply(createdEvent(1, 1, base)))
	assert.True(t, r.Apply(statusEvent(1, 2, "SUPERVISOR_APPROVED", base.Add(time.Minute))))

	got, ok := r.Get(1)
	require.True(t, ok)
	assert.Equal(t, "SUPERVISOR_APPROVED", got.Status)
	assert.Equal(t, int64(2), got.EventSeq)
}

func TestReconcilerDiscardsDuplicatesAndStale(t *testing.T) {
	r := NewReconciler()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	require.True(t, r.Apply(createdEvent(1, 1, base)))
	require.True(t, r.Apply(statusEvent(1, 2, "SUPERVISOR_APPROVED", base)))

	// Replaying the same event, or an older one, changes nothing.
	assert.False(t, r.Apply(statusEvent(1, 2, "SUPERVISOR_APPROVED", base)))
	assert.False(t, r.Apply(createdEvent(1, 1, base)))

	got, _ := r.Get(1)
	assert.Equal(t, "SUPERVISOR_APPROVED", got.Status)
	assert.Equal(t, int64(2), got.EventSeq)
}

func TestReconcilerApplyIsIdempotentOverWholeStream(t *testing.T) {
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	stream := []LifecycleEvent{
		createdEvent(1, 1, base),
		statusEvent(1, 2, "SUPERVISOR_APPROVED", base.Add(time.Minute)),
		statusEvent(1, 3, "TECHNICAL_MANAGER_APPROVED", base.Add(2*time.Minute)),
	}

	once := NewReconciler()
	for _, event := range stream {
		once.Apply(event)
	}
	twice := NewReconciler()
	for i := 0; i < 2; i++ {
		for _, event := range stream {
			twice.Apply(event)
		}
	}

	a, _ := once.Get(1)
	b, _ := twice.Get(1)
	assert.Equal(t, a, b)
}

func TestReconcilerDeleteAndRestore(t *testing.T) {
	r := NewReconciler()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	require.True(t, r.Apply(createdEvent(1, 1, base)))
	require.True(t, r.Apply(LifecycleEvent{
		Type: EventDeleted, RequestID: 1, ActorID: "officer-1", Sequence: 2, Timestamp: base.Add(time.Minute),
	}))

	got, _ := r.Get(1)
	assert.True(t, got.IsDeleted)
	require.NotNil(t, got.DeletedBy)
	assert.Equal(t, "officer-1", *got.DeletedBy)
	assert.Len(t, r.Deleted(), 1)
	assert.Empty(t, r.Active())

	require.True(t, r.Apply(LifecycleEvent{
		Type: EventRestored, RequestID: 1, ActorID: "officer-1", Sequence: 3, Timestamp: base.Add(2 * time.Minute),
	}))
	got, _ = r.Get(1)
	assert.False(t, got.IsDeleted)
	assert.Nil(t, got.DeletedAt)
	require.NotNil(t, got.RestoredBy)
	assert.Len(t, r.Active(), 1)
	assert.Empty(t, r.Deleted())
}

func TestReconcilerEventForUnknownRequest(t *testing.T) {
	r := NewReconciler()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	// A status event for a request never fetched records the sequence but
	// creates no phantom entry.
	assert.True(t, r.Apply(statusEvent(9, 4, "COMPLETE", base)))
	_, ok := r.Get(9)
	assert.False(t, ok)
	assert.False(t, r.Apply(statusEvent(9, 4, "COMPLETE", base)))
}

func TestReconcilerResyncResetsState(t *testing.T) {
	r := NewReconciler()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	require.True(t, r.Apply(createdEvent(1, 1, base)))
	require.True(t, r.Apply(createdEvent(2, 1, base)))

	snapshot := []Request{
		{ID: 2, Status: "SUPERVISOR_APPROVED", EventSeq: 5},
		{ID: 3, Status: "PENDING", EventSeq: 1},
	}
	r.Resync(snapshot)

	_, ok := r.Get(1)
	assert.False(t, ok, "request absent from snapshot is dropped")
	got, ok := r.Get(2)
	require.True(t, ok)
	assert.Equal(t, "SUPERVISOR_APPROVED", got.Status)
	assert.Equal(t, 2, r.Len())

	// Sequences restart against the snapshot: replays older than the
	// snapshot are rejected, newer ones land.
	assert.False(t, r.Apply(statusEvent(2, 5, "SUPERVISOR_APPROVED", base)))
	assert.True(t, r.Apply(statusEvent(2, 6, "TECHNICAL_MANAGER_APPROVED", base)))
}
