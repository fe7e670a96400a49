package lifecycle

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/tire-request-service/internal/domain"
	"github.com/spec-kit/tire-request-service/internal/events"
	"github.com/spec-kit/tire-request-service/internal/repository"
	apperrors "github.com/spec-kit/tire-request-service/pkg/util"
)

// SystemActorID identifies the engine itself as the actor of automatic
// transitions.
const SystemActorID = "system"

const autoCompleteNote = "auto-completed after engineer approval"

// edge describes who may leave a state and where they may go.
type edge struct {
	role    domain.Role
	targets []domain.RequestStatus
}

// transitions is the single authoritative transition table. ENGINEER_APPROVED
// has no outgoing user edge: the engine chains it to COMPLETE itself, so no
// persisted request is ever observed parked there.
var transitions = map[domain.RequestStatus]edge{
	domain.StatusPending: {
		role:    domain.RoleSupervisor,
		targets: []domain.RequestStatus{domain.StatusSupervisorApproved, domain.StatusSupervisorRejected},
	},
	domain.StatusSupervisorApproved: {
		role:    domain.RoleTechnicalManager,
		targets: []domain.RequestStatus{domain.StatusTechnicalManagerApproved, domain.StatusTechnicalManagerRejected},
	},
	domain.StatusTechnicalManagerApproved: {
		role:    domain.RoleEngineer,
		targets: []domain.RequestStatus{domain.StatusEngineerApproved, domain.StatusEngineerRejected},
	},
	domain.StatusComplete: {
		role:    domain.RoleCustomerOfficer,
		targets: []domain.RequestStatus{domain.StatusOrderPlaced},
	},
	domain.StatusOrderPlaced: {
		role:    domain.RoleCustomerOfficer,
		targets: []domain.RequestStatus{domain.StatusOrderCancelled},
	},
}

// CanTransition reports whether the edge (current, target) exists in the
// table, ignoring role gating.
func CanTransition(current, target domain.RequestStatus) bool {
	entry, ok := transitions[current]
	if !ok {
		return false
	}
	for _, candidate := range entry.targets {
		if candidate == target {
			return true
		}
	}
	return false
}

// RoleFor returns the role allowed to act on a request in the given state.
func RoleFor(current domain.RequestStatus) (domain.Role, bool) {
	entry, ok := transitions[current]
	return entry.role, ok
}

// SubmitInput describes request creation payload.
type SubmitInput struct {
	VehicleID string
	TireSize  string
	Quantity  int
	Reason    string
}

// Dependencies bundles collaborators for the engine.
type Dependencies struct {
	Requests repository.RequestRepository
	EventLog repository.EventLogRepository
	Bus      events.Bus
	Logger   *zap.Logger
}

// Engine validates and applies lifecycle transitions, derives side effects
// and emits lifecycle events. Transitions on the same request id are
// serialized through a per-id mutex; the repository's sequence-guarded update
// backstops writers on other instances.
type Engine struct {
	requests repository.RequestRepository
	eventLog repository.EventLogRepository
	bus      events.Bus
	logger   *zap.Logger
	locks    keyedMutex

	// Now is overridable in tests.
	Now func() time.Time
}

// NewEngine constructs the engine.
func NewEngine(deps Dependencies) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		requests: deps.Requests,
		eventLog: deps.EventLog,
		bus:      deps.Bus,
		logger:   logger,
		Now:      time.Now,
	}
}

// Submit creates a new pending request and emits a created event.
func (e *Engine) Submit(ctx context.Context, actor domain.Actor, input SubmitInput) (*domain.Request, error) {
	if strings.TrimSpace(input.VehicleID) == "" || strings.TrimSpace(input.TireSize) == "" {
		return nil, apperrors.NewValidationError("vehicle_id and tire_size required", nil)
	}
	if input.Quantity <= 0 {
		return nil, apperrors.NewValidationError("quantity must be positive", nil)
	}

	request := &domain.Request{
		SubmitterID: actor.ID,
		VehicleID:   strings.TrimSpace(input.VehicleID),
		TireSize:    strings.TrimSpace(input.TireSize),
		Quantity:    input.Quantity,
		Reason:      strings.TrimSpace(input.Reason),
		Status:      domain.StatusPending,
		EventSeq:    1,
	}
	if err := e.requests.Create(ctx, request); err != nil {
		return nil, apperrors.MapError(err)
	}

	e.emit(ctx, events.LifecycleEvent{
		Type:      events.EventRequestCreated,
		RequestID: request.ID,
		NewStatus: request.Status,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Sequence:  request.EventSeq,
	})
	return request, nil
}

// ApplyTransition moves a request along the approval chain. note is required;
// the acting user's role must match the table for the request's current
// state. Landing on ENGINEER_APPROVED chains to COMPLETE within the same
// persisted write, so readers never observe the intermediate state.
func (e *Engine) ApplyTransition(ctx context.Context, requestID int64, actor domain.Actor, target domain.RequestStatus, note string) (*domain.Request, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, apperrors.NewValidationError("note required", nil)
	}
	if !target.Valid() {
		return nil, apperrors.NewValidationError("unknown target status", map[string]any{"status": target})
	}

	unlock := e.locks.lock(requestID)
	defer unlock()

	var result *domain.Request
	err := e.withSerializedUpdate(ctx, requestID, func(request *domain.Request) ([]events.LifecycleEvent, error) {
		if request.IsDeleted {
			return nil, apperrors.NewNotFound("request", map[string]any{"request_id": requestID})
		}

		entry, ok := transitions[request.Status]
		if !ok || !CanTransition(request.Status, target) {
			return nil, apperrors.NewInvalidTransition("status transition not allowed", map[string]any{
				"current": request.Status,
				"target":  target,
			})
		}
		if actor.Role != entry.role {
			return nil, apperrors.NewUnauthorized("role not allowed to act on this request")
		}

		now := e.Now()
		e.applyStage(request, actor, target, note, now)

		emitted := []events.LifecycleEvent{{
			Type:      events.EventRequestStatusChanged,
			RequestID: request.ID,
			NewStatus: target,
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			Note:      note,
			Sequence:  request.EventSeq + 1,
			Timestamp: now,
		}}
		request.EventSeq++

		if target == domain.StatusEngineerApproved {
			request.Status = domain.StatusComplete
			request.CompletedAt = &now
			request.CompletionNote = autoCompleteNote
			request.EventSeq++
			emitted = append(emitted, events.LifecycleEvent{
				Type:      events.EventRequestStatusChanged,
				RequestID: request.ID,
				NewStatus: domain.StatusComplete,
				ActorID:   SystemActorID,
				Note:      autoCompleteNote,
				Sequence:  request.EventSeq,
				Timestamp: now,
			})
		}

		result = request
		return emitted, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SoftDelete marks a request deleted without touching its status or history.
func (e *Engine) SoftDelete(ctx context.Context, requestID int64, actor domain.Actor) (*domain.Request, error) {
	unlock := e.locks.lock(requestID)
	defer unlock()

	var result *domain.Request
	err := e.withSerializedUpdate(ctx, requestID, func(request *domain.Request) ([]events.LifecycleEvent, error) {
		if request.IsDeleted {
			return nil, apperrors.NewAlreadyDeleted(requestID)
		}
		now := e.Now()
		actorID := actor.ID
		request.IsDeleted = true
		request.DeletedBy = &actorID
		request.DeletedAt = &now
		request.RestoredBy = nil
		request.RestoredAt = nil
		request.EventSeq++

		result = request
		return []events.LifecycleEvent{{
			Type:      events.EventRequestDeleted,
			RequestID: request.ID,
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			Sequence:  request.EventSeq,
			Timestamp: now,
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Restore brings a soft-deleted request back. Status and all prior decision
// history are left untouched.
func (e *Engine) Restore(ctx context.Context, requestID int64, actor domain.Actor) (*domain.Request, error) {
	unlock := e.locks.lock(requestID)
	defer unlock()

	var result *domain.Request
	err := e.withSerializedUpdate(ctx, requestID, func(request *domain.Request) ([]events.LifecycleEvent, error) {
		if !request.IsDeleted {
			return nil, apperrors.NewNotDeleted(requestID)
		}
		now := e.Now()
		actorID := actor.ID
		request.IsDeleted = false
		request.DeletedBy = nil
		request.DeletedAt = nil
		request.RestoredBy = &actorID
		request.RestoredAt = &now
		request.EventSeq++

		result = request
		return []events.LifecycleEvent{{
			Type:      events.EventRequestRestored,
			RequestID: request.ID,
			NewStatus: request.Status,
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			Sequence:  request.EventSeq,
			Timestamp: now,
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// withSerializedUpdate reads the request, applies mutate and persists the
// result guarded by the pre-mutation sequence. A version conflict means a
// writer on another instance won; re-read and re-evaluate against the new
// state.
func (e *Engine) withSerializedUpdate(ctx context.Context, requestID int64, mutate func(*domain.Request) ([]events.LifecycleEvent, error)) error {
	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		request, err := e.requests.GetByID(ctx, requestID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewNotFound("request", map[string]any{"request_id": requestID})
			}
			return apperrors.MapError(err)
		}

		prevSeq := request.EventSeq
		emitted, err := mutate(request)
		if err != nil {
			return err
		}

		if err := e.requests.Update(ctx, request, prevSeq); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				e.logger.Debug("transition lost update race, retrying",
					zap.Int64("request_id", requestID), zap.Int("attempt", attempt+1))
				continue
			}
			return apperrors.MapError(err)
		}

		for _, event := range emitted {
			e.emit(ctx, event)
		}
		return nil
	}
	return apperrors.NewInternalError(repository.ErrVersionConflict)
}

func (e *Engine) applyStage(request *domain.Request, actor domain.Actor, target domain.RequestStatus, note string, now time.Time) {
	actorID := actor.ID
	request.Status = target
	switch target {
	case domain.StatusSupervisorApproved, domain.StatusSupervisorRejected:
		request.SupervisorID = &actorID
		request.SupervisorNote = note
		request.SupervisorDecidedAt = &now
	case domain.StatusTechnicalManagerApproved, domain.StatusTechnicalManagerRejected:
		request.TechnicalManagerID = &actorID
		request.TechnicalManagerNote = note
		request.TechnicalManagerDecidedAt = &now
	case domain.StatusEngineerApproved, domain.StatusEngineerRejected:
		request.EngineerID = &actorID
		request.EngineerNote = note
		request.EngineerDecidedAt = &now
	case domain.StatusOrderPlaced:
		request.CustomerOfficerID = &actorID
		request.OrderNote = note
		request.OrderPlacedAt = &now
	case domain.StatusOrderCancelled:
		request.CustomerOfficerID = &actorID
		request.OrderNote = note
	}
}

func (e *Engine) emit(ctx context.Context, event events.LifecycleEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.Now()
	}
	if e.eventLog != nil {
		if err := e.eventLog.Append(ctx, event); err != nil {
			e.logger.Warn("event log append failed", zap.Error(err), zap.Int64("request_id", event.RequestID))
		}
	}
	if e.bus != nil {
		_ = e.bus.Publish(ctx, event)
	}
}
