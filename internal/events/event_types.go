package events

import (
	"time"

	"github.com/spec-kit/tire-request-service/internal/domain"
)

// EventType enumerates supported lifecycle event identifiers.
type EventType string

const (
	EventRequestCreated       EventType = "request_created"
	EventRequestStatusChanged EventType = "request_status_changed"
	EventRequestDeleted       EventType = "request_deleted"
	EventRequestRestored      EventType = "request_restored"
)

// LifecycleEvent is the unit published on any request mutation.
// Sequence is strictly increasing per request id; a consumer that sees a
// duplicate or lower sequence for a request must discard the event.
type LifecycleEvent struct {
	ID        string               `json:"id"`
	Type      EventType            `json:"type"`
	RequestID int64                `json:"request_id"`
	NewStatus domain.RequestStatus `json:"new_status,omitempty"`
	ActorID   string               `json:"actor_id"`
	ActorRole domain.Role          `json:"actor_role,omitempty"`
	Note      string               `json:"note,omitempty"`
	Sequence  int64                `json:"sequence"`
	Timestamp time.Time            `json:"timestamp"`
}
