package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/tire-request-service/internal/domain"
)

func TestSessionStateProgression(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	session := newSession("s-1", now)
	assert.Equal(t, StateConnecting, session.State())

	session.setState(StateAuthenticating)
	assert.Equal(t, StateAuthenticating, session.State())

	actor := domain.Actor{ID: "engineer-1", Role: domain.RoleEngineer}
	session.authenticate(actor)
	assert.Equal(t, StateAuthenticated, session.State())
	assert.Equal(t, actor, session.Actor())
}

func TestSessionPongRecoversDegraded(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	session := newSession("s-1", now)
	session.authenticate(domain.Actor{ID: "user-1", Role: domain.RoleUser})

	session.setState(StateDegraded)
	assert.Equal(t, StateDegraded, session.State())

	later := now.Add(45 * time.Second)
	session.recordPong(later)
	assert.Equal(t, StateAuthenticated, session.State())
	assert.Equal(t, later, session.LastPongAt())
}

func TestSessionSendAfterCloseFails(t *testing.T) {
	session := newSession("s-1", time.Now())
	envelope, err := NewEnvelope(TypePing, PingPayload{Timestamp: time.Now()})
	require.NoError(t, err)

	assert.True(t, session.send(envelope))
	session.close()
	assert.Equal(t, StateClosed, session.State())
	assert.False(t, session.send(envelope))

	// Closing twice is safe.
	session.close()
}

func TestSessionSendDropsWhenQueueFull(t *testing.T) {
	session := newSession("s-1", time.Now())
	envelope, err := NewEnvelope(TypePing, PingPayload{})
	require.NoError(t, err)

	delivered := 0
	for i := 0; i < 100; i++ {
		if session.send(envelope) {
			delivered++
		}
	}
	assert.Equal(t, cap(session.outbound), delivered)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	envelope, err := NewEnvelope(TypeAuthenticated, AuthenticatedPayload{SessionID: "s-42"})
	require.NoError(t, err)
	assert.Equal(t, TypeAuthenticated, envelope.Type)

	raw, err := json.Marshal(envelope)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(raw, &decoded))
	var payload AuthenticatedPayload
	require.NoError(t, json.Unmarshal(decoded.Payload, &payload))
	assert.Equal(t, "s-42", payload.SessionID)
}

func TestAuthenticatePayloadTokenIsAuthoritative(t *testing.T) {
	raw := []byte(`{"type":"authenticate","payload":{"token":"bearer-x","id":"spoofed","role":"supervisor"}}`)
	var envelope Envelope
	require.NoError(t, json.Unmarshal(raw, &envelope))
	require.Equal(t, TypeAuthenticate, envelope.Type)

	var payload AuthenticatePayload
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	assert.Equal(t, "bearer-x", payload.Token)
	// The id/role fields travel with the handshake but the resolved token
	// identity is what the hub trusts.
	assert.Equal(t, "spoofed", payload.ID)
}
