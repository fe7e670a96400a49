package repository

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/tire-request-service/internal/domain"
	"github.com/spec-kit/tire-request-service/internal/events"
)

func TestCreateAssignsSequentialIDs(t *testing.T) {
	repo := NewMemoryRequestRepository()
	ctx := context.Background()

	first := &domain.Request{SubmitterID: "user-1", Status: domain.StatusPending, EventSeq: 1}
	second := &domain.Request{SubmitterID: "user-1", Status: domain.StatusPending, EventSeq: 1}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))
	assert.Equal(t, first.ID+1, second.ID)
	assert.False(t, first.SubmittedAt.IsZero())
}

func TestGetByIDMissingReturnsNoRows(t *testing.T) {
	repo := NewMemoryRequestRepository()
	_, err := repo.GetByID(context.Background(), 404)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestUpdateGuardsOnSequence(t *testing.T) {
	repo := NewMemoryRequestRepository()
	ctx := context.Background()

	request := &domain.Request{SubmitterID: "user-1", Status: domain.StatusPending, EventSeq: 1}
	require.NoError(t, repo.Create(ctx, request))

	// A stale writer loses.
	request.Status = domain.StatusSupervisorApproved
	request.EventSeq = 2
	assert.ErrorIs(t, repo.Update(ctx, request, 99), ErrVersionConflict)

	// The writer holding the current sequence wins.
	require.NoError(t, repo.Update(ctx, request, 1))
	stored, err := repo.GetByID(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSupervisorApproved, stored.Status)
	assert.Equal(t, int64(2), stored.EventSeq)
}

func TestGetByIDReturnsCopy(t *testing.T) {
	repo := NewMemoryRequestRepository()
	ctx := context.Background()

	request := &domain.Request{SubmitterID: "user-1", Status: domain.StatusPending, EventSeq: 1}
	require.NoError(t, repo.Create(ctx, request))

	got, err := repo.GetByID(ctx, request.ID)
	require.NoError(t, err)
	got.Status = domain.StatusOrderCancelled

	again, err := repo.GetByID(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, again.Status)
}

func TestEventLogOrdering(t *testing.T) {
	log := NewMemoryEventLog()
	ctx := context.Background()

	for seq := int64(1); seq <= 3; seq++ {
		require.NoError(t, log.Append(ctx, events.LifecycleEvent{RequestID: 1, Sequence: seq}))
	}
	require.NoError(t, log.Append(ctx, events.LifecycleEvent{RequestID: 2, Sequence: 1}))

	entries, err := log.ListByRequest(ctx, 1, 100, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, entry := range entries {
		assert.Equal(t, int64(i+1), entry.Sequence)
	}

	paged, err := log.ListByRequest(ctx, 1, 2, 1)
	require.NoError(t, err)
	require.Len(t, paged, 2)
	assert.Equal(t, int64(2), paged[0].Sequence)
}

func TestActorRepositoryLookup(t *testing.T) {
	repo := NewMemoryActorRepository([]domain.ActorRecord{
		{ID: "sup-1", Role: domain.RoleSupervisor, Email: "sup@fleet.example", Active: true},
	})
	ctx := context.Background()

	byID, err := repo.GetByID(ctx, "sup-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSupervisor, byID.Role)

	byEmail, err := repo.GetByEmail(ctx, "sup@fleet.example")
	require.NoError(t, err)
	assert.Equal(t, "sup-1", byEmail.ID)

	_, err = repo.GetByID(ctx, "ghost")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}
