package domain

import "time"

// RequestStatus enumerates lifecycle states for tire requests.
type RequestStatus string

const (
	StatusPending                  RequestStatus = "PENDING"
	StatusSupervisorApproved       RequestStatus = "SUPERVISOR_APPROVED"
	StatusSupervisorRejected       RequestStatus = "SUPERVISOR_REJECTED"
	StatusTechnicalManagerApproved RequestStatus = "TECHNICAL_MANAGER_APPROVED"
	StatusTechnicalManagerRejected RequestStatus = "TECHNICAL_MANAGER_REJECTED"
	StatusEngineerApproved         RequestStatus = "ENGINEER_APPROVED"
	StatusEngineerRejected         RequestStatus = "ENGINEER_REJECTED"
	StatusComplete                 RequestStatus = "COMPLETE"
	StatusOrderPlaced              RequestStatus = "ORDER_PLACED"
	StatusOrderCancelled           RequestStatus = "ORDER_CANCELLED"
)

// IsTerminal reports whether no further approval transition is possible.
// Order placement still follows COMPLETE, so COMPLETE and ORDER_PLACED are
// terminal only for the approval chain, not for the order stage.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case StatusSupervisorRejected,
		StatusTechnicalManagerRejected,
		StatusEngineerRejected,
		StatusOrderCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status value.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSupervisorApproved, StatusSupervisorRejected,
		StatusTechnicalManagerApproved, StatusTechnicalManagerRejected,
		StatusEngineerApproved, StatusEngineerRejected,
		StatusComplete, StatusOrderPlaced, StatusOrderCancelled:
		return true
	}
	return false
}

// Request is the aggregate for tire requests.
type Request struct {
	ID          int64
	SubmitterID string
	VehicleID   string
	TireSize    string
	Quantity    int
	Reason      string
	Status      RequestStatus

	SupervisorID       *string
	TechnicalManagerID *string
	EngineerID         *string
	CustomerOfficerID  *string

	SupervisorNote       string
	TechnicalManagerNote string
	EngineerNote         string
	CompletionNote       string
	OrderNote            string

	SubmittedAt               time.Time
	SupervisorDecidedAt       *time.Time
	TechnicalManagerDecidedAt *time.Time
	EngineerDecidedAt         *time.Time
	CompletedAt               *time.Time
	OrderPlacedAt             *time.Time

	IsDeleted  bool
	DeletedBy  *string
	DeletedAt  *time.Time
	RestoredBy *string
	RestoredAt *time.Time

	// EventSeq is the sequence number of the last lifecycle event emitted
	// for this request; strictly increasing, scoped to the request.
	EventSeq int64

	UpdatedAt time.Time
}
