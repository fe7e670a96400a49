package dto

import (
	"time"

	"github.com/spec-kit/tire-request-service/internal/domain"
	"github.com/spec-kit/tire-request-service/internal/service"
)

// LoginRequest payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token and identity.
type LoginResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	Actor     ActorResponse `json:"actor"`
}

// ActorResponse is the public identity shape.
type ActorResponse struct {
	ID    string      `json:"id"`
	Role  domain.Role `json:"role"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
}

// SubmitRequest payload for creating a tire request.
type SubmitRequest struct {
	VehicleID string `json:"vehicle_id"`
	TireSize  string `json:"tire_size"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
}

// TransitionRequest payload for PUT /requests/:id.
type TransitionRequest struct {
	Status domain.RequestStatus `json:"status"`
	Note   string               `json:"note"`
}

// RequestResponse is the full request shape returned by the API.
type RequestResponse struct {
	ID          int64                `json:"id"`
	SubmitterID string               `json:"submitter_id"`
	VehicleID   string               `json:"vehicle_id"`
	TireSize    string               `json:"tire_size"`
	Quantity    int                  `json:"quantity"`
	Reason      string               `json:"reason"`
	Status      domain.RequestStatus `json:"status"`

	SupervisorID       *string `json:"supervisor_id,omitempty"`
	TechnicalManagerID *string `json:"technical_manager_id,omitempty"`
	EngineerID         *string `json:"engineer_id,omitempty"`
	CustomerOfficerID  *string `json:"customer_officer_id,omitempty"`

	SupervisorNote       string `json:"supervisor_note,omitempty"`
	TechnicalManagerNote string `json:"technical_manager_note,omitempty"`
	EngineerNote         string `json:"engineer_note,omitempty"`
	CompletionNote       string `json:"completion_note,omitempty"`
	OrderNote            string `json:"order_note,omitempty"`

	SubmittedAt               time.Time  `json:"submitted_at"`
	SupervisorDecidedAt       *time.Time `json:"supervisor_decided_at,omitempty"`
	TechnicalManagerDecidedAt *time.Time `json:"technical_manager_decided_at,omitempty"`
	EngineerDecidedAt         *time.Time `json:"engineer_decided_at,omitempty"`
	CompletedAt               *time.Time `json:"completed_at,omitempty"`
	OrderPlacedAt             *time.Time `json:"order_placed_at,omitempty"`

	IsDeleted  bool       `json:"is_deleted"`
	DeletedBy  *string    `json:"deleted_by,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	RestoredBy *string    `json:"restored_by,omitempty"`
	RestoredAt *time.Time `json:"restored_at,omitempty"`

	EventSeq  int64     `json:"event_seq"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeletedListResponse wraps the deleted-requests page.
type DeletedListResponse struct {
	Success    bool               `json:"success"`
	Data       []RequestResponse  `json:"data"`
	Pagination service.Pagination `json:"pagination"`
}

// EventResponse is one lifecycle event log entry.
type EventResponse struct {
	ID        string               `json:"id"`
	Type      string               `json:"type"`
	RequestID int64                `json:"request_id"`
	NewStatus domain.RequestStatus `json:"new_status,omitempty"`
	ActorID   string               `json:"actor_id"`
	ActorRole domain.Role          `json:"actor_role,omitempty"`
	Note      string               `json:"note,omitempty"`
	Sequence  int64                `json:"sequence"`
	Timestamp time.Time            `json:"timestamp"`
}

// FromRequest maps a domain request to the response shape.
func FromRequest(request *domain.Request) RequestResponse {
	return RequestResponse{
		ID:          request.ID,
		SubmitterID: request.SubmitterID,
		VehicleID:   request.VehicleID,
		TireSize:    request.TireSize,
		Quantity:    request.Quantity,
		Reason:      request.Reason,
		Status:      request.Status,

		SupervisorID:       request.SupervisorID,
		TechnicalManagerID: request.TechnicalManagerID,
		EngineerID:         request.EngineerID,
		CustomerOfficerID:  request.CustomerOfficerID,

		SupervisorNote:       request.SupervisorNote,
		TechnicalManagerNote: request.TechnicalManagerNote,
		EngineerNote:         request.EngineerNote,
		CompletionNote:       request.CompletionNote,
		OrderNote:            request.OrderNote,

		SubmittedAt:               request.SubmittedAt,
		SupervisorDecidedAt:       request.SupervisorDecidedAt,
		TechnicalManagerDecidedAt: request.TechnicalManagerDecidedAt,
		EngineerDecidedAt:         request.EngineerDecidedAt,
		CompletedAt:               request.CompletedAt,
		OrderPlacedAt:             request.OrderPlacedAt,

		IsDeleted:  request.IsDeleted,
		DeletedBy:  request.DeletedBy,
		DeletedAt:  request.DeletedAt,
		RestoredBy: request.RestoredBy,
		RestoredAt: request.RestoredAt,

		EventSeq:  request.EventSeq,
		UpdatedAt: request.UpdatedAt,
	}
}

// FromActor maps an identity to the response shape.
func FromActor(actor domain.Actor) ActorResponse {
	return ActorResponse{ID: actor.ID, Role: actor.Role, Name: actor.Name, Email: actor.Email}
}
