package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/tire-request-service/internal/domain"
	"github.com/spec-kit/tire-request-service/internal/events"
	"github.com/spec-kit/tire-request-service/internal/lifecycle"
	"github.com/spec-kit/tire-request-service/internal/repository"
	apperrors "github.com/spec-kit/tire-request-service/pkg/util"
)

// Pagination describes a page of results.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// NewPagination computes page bookkeeping from a total row count.
func NewPagination(page, limit, total int) Pagination {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	totalPages := total / limit
	if total%limit != 0 {
		totalPages++
	}
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1 && total > 0,
	}
}

// RequestService coordinates request workflows on top of the lifecycle
// engine and the repositories.
type RequestService struct {
	engine   *lifecycle.Engine
	requests repository.RequestRepository
	eventLog repository.EventLogRepository
}

// RequestDependencies bundles collaborators for the service.
type RequestDependencies struct {
	Engine      *lifecycle.Engine
	RequestRepo repository.RequestRepository
	EventLog    repository.EventLogRepository
}

// NewRequestService constructs the service.
func NewRequestService(deps RequestDependencies) *RequestService {
	return &RequestService{
		engine:   deps.Engine,
		requests: deps.RequestRepo,
		eventLog: deps.EventLog,
	}
}

// Submit creates a new pending request owned by the actor.
func (s *RequestService) Submit(ctx context.Context, actor domain.Actor, input lifecycle.SubmitInput) (*domain.Request, error) {
	return s.engine.Submit(ctx, actor, input)
}

// Transition applies a status change through the lifecycle engine.
func (s *RequestService) Transition(ctx context.Context, requestID int64, actor domain.Actor, target domain.RequestStatus, note string) (*domain.Request, error) {
	return s.engine.ApplyTransition(ctx, requestID, actor, target, note)
}

// SoftDelete marks the request deleted.
func (s *RequestService) SoftDelete(ctx context.Context, requestID int64, actor domain.Actor) (*domain.Request, error) {
	return s.engine.SoftDelete(ctx, requestID, actor)
}

// Restore brings a deleted request back.
func (s *RequestService) Restore(ctx context.Context, requestID int64, actor domain.Actor) (*domain.Request, error) {
	return s.engine.Restore(ctx, requestID, actor)
}

// Get fetches a request by id. Soft-deleted requests are hidden unless
// includeDeleted is set.
func (s *RequestService) Get(ctx context.Context, requestID int64, includeDeleted bool) (*domain.Request, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("request", map[string]any{"request_id": requestID})
		}
		return nil, apperrors.MapError(err)
	}
	if request.IsDeleted && !includeDeleted {
		return nil, apperrors.NewNotFound("request", map[string]any{"request_id": requestID})
	}
	return request, nil
}

// List returns live requests visible to the actor. Plain users only see
// their own submissions; approval-chain roles see everything.
func (s *RequestService) List(ctx context.Context, actor domain.Actor, filter repository.RequestFilter) ([]domain.Request, error) {
	if actor.Role == domain.RoleUser {
		submitterID := actor.ID
		filter.SubmitterID = &submitterID
	}
	requests, err := s.requests.ListActive(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return requests, nil
}

// ListDeleted returns a page of soft-deleted requests. This is a pure read
// path: no locks are taken and an eventually-consistent snapshot is fine
// alongside concurrent deletes and restores.
func (s *RequestService) ListDeleted(ctx context.Context, filter repository.DeletedFilter) ([]domain.Request, Pagination, error) {
	requests, total, err := s.requests.ListDeleted(ctx, filter)
	if err != nil {
		return nil, Pagination{}, apperrors.MapError(err)
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	return requests, NewPagination(page, limit, total), nil
}

// ListEvents returns the lifecycle event log for a request, oldest first.
func (s *RequestService) ListEvents(ctx context.Context, requestID int64, limit, offset int) ([]events.LifecycleEvent, error) {
	if _, err := s.Get(ctx, requestID, true); err != nil {
		return nil, err
	}
	entries, err := s.eventLog.ListByRequest(ctx, requestID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}
