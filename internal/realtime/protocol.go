package realtime

import (
	"encoding/json"
	"time"
)

// Message types exchanged on the realtime channel.
const (
	TypeAuthenticate  = "authenticate"
	TypeAuthenticated = "authenticated"
	TypePing          = "ping"
	TypePong          = "pong"
	TypeRequestUpdate = "requestUpdate"
)

// Envelope frames every message on the channel.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AuthenticatePayload is sent by the client immediately after transport
// open. The identity fields are display hints only; the bearer token is the
// authoritative credential.
type AuthenticatePayload struct {
	Token string `json:"token"`
	ID    string `json:"id"`
	Role  string `json:"role"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AuthenticatedPayload acknowledges a successful handshake.
type AuthenticatedPayload struct {
	SessionID string `json:"sessionId"`
}

// PingPayload carries the server timestamp.
type PingPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

// PongPayload is the client's heartbeat reply.
type PongPayload struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"userId"`
}

// NewEnvelope marshals a payload into a framed message.
func NewEnvelope(messageType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: messageType, Payload: raw}, nil
}
