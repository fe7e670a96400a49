package client

import "time"

// Request mirrors the API request model.
type Request struct {
	ID          int64  `json:"id"`
	SubmitterID string `json:"submitter_id"`
	VehicleID   string `json:"vehicle_id"`
	TireSize    string `json:"tire_size"`
	Quantity    int    `json:"quantity"`
	Reason      string `json:"reason"`
	Status      string `json:"status"`

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

// LifecycleEvent mirrors the event pushed on the realtime channel.
type LifecycleEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	RequestID int64     `json:"request_id"`
	NewStatus string    `json:"new_status,omitempty"`
	ActorID   string    `json:"actor_id"`
	ActorRole string    `json:"actor_role,omitempty"`
	Note      string    `json:"note,omitempty"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

// Lifecycle event type values.
const (
	EventCreated       = "request_created"
	EventStatusChanged = "request_status_changed"
	EventDeleted       = "request_deleted"
	EventRestored      = "request_restored"
)

// Identity is the actor identity used on the realtime handshake.
type Identity struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Pagination mirrors the API page bookkeeping.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// DeletedPage is the response of the deleted-requests listing.
type DeletedPage struct {
	Success    bool       `json:"success"`
	Data       []Request  `json:"data"`
	Pagination Pagination `json:"pagination"`
}
