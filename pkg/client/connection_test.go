package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

// realtimeStub is a minimal server side of the realtime protocol: it
// validates the authenticate frame, acks with a fresh session id per
// connection and then hands the socket to the per-connection script.
type realtimeStub struct {
	t        *testing.T
	server   *httptest.Server
	sessions atomic.Int64
	script   func(conn *websocket.Conn, sessionID string)
}

func newRealtimeStub(t *testing.T, script func(conn *websocket.Conn, sessionID string)) *realtimeStub {
	t.Helper()
	stub := &realtimeStub{t: t, script: script}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var msg envelope
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != typeAuthenticate {
			return
		}
		var auth struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(msg.Payload, &auth); err != nil || auth.Token != "valid-token" {
			return
		}

		sessionID := fmt.Sprintf("session-%d", stub.sessions.Add(1))
		ack, _ := json.Marshal(map[string]string{"sessionId": sessionID})
		if err := conn.WriteJSON(envelope{Type: typeAuthenticated, Payload: ack}); err != nil {
			return
		}
		if stub.script != nil {
			stub.script(conn, sessionID)
		}
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *realtimeStub) url() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func newTestManager(url string) *ConnectionManager {
	return NewConnectionManager(ConnectionConfig{
		URL:         url,
		Token:       "valid-token",
		Identity:    Identity{ID: "user-1", Role: "user"},
		BaseBackoff: 10 * time.Millisecond,
		MaxBackoff:  50 * time.Millisecond,
	})
}

func waitForSession(t *testing.T, m *ConnectionManager) string {
	t.Helper()
	select {
	case sessionID := <-m.Reconnects():
		return sessionID
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for session")
		return ""
	}
}

func TestConnectionAuthenticates(t *testing.T) {
	stub := newRealtimeStub(t, func(conn *websocket.Conn, sessionID string) {
		var msg envelope
		_ = conn.ReadJSON(&msg) // park until the client goes away
	})

	m := newTestManager(stub.url())
	m.Start()
	defer m.Close()

	sessionID := waitForSession(t, m)
	assert.Equal(t, "session-1", sessionID)
	assert.Equal(t, StateAuthenticated, m.State())
	assert.Equal(t, "session-1", m.SessionID())
}

func TestConnectionRepliesToPings(t *testing.T) {
	gotPong := make(chan envelope, 1)
	stub := newRealtimeStub(t, func(conn *websocket.Conn, sessionID string) {
		ping, _ := json.Marshal(map[string]any{"timestamp": time.Now()})
		if err := conn.WriteJSON(envelope{Type: typePing, Payload: ping}); err != nil {
			return
		}
		var msg envelope
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		gotPong <- msg
		var park envelope
		_ = conn.ReadJSON(&park)
	})

	m := newTestManager(stub.url())
	m.Start()
	defer m.Close()
	waitForSession(t, m)

	select {
	case msg := <-gotPong:
		require.Equal(t, typePong, msg.Type)
		var pong struct {
			UserID string `json:"userId"`
		}
		require.NoError(t, json.Unmarshal(msg.Payload, &pong))
		assert.Equal(t, "user-1", pong.UserID)
	case <-time.After(3 * time.Second):
		t.Fatal("no pong received")
	}
	assert.False(t, m.LastPingReceivedAt().IsZero())
}

func TestConnectionDeliversEvents(t *testing.T) {
	stub := newRealtimeStub(t, func(conn *websocket.Conn, sessionID string) {
		payload, _ := json.Marshal(LifecycleEvent{
			Type: EventStatusChanged, RequestID: 11, NewStatus: "SUPERVISOR_APPROVED", Sequence: 2,
		})
		if err := conn.WriteJSON(envelope{Type: typeRequestUpdate, Payload: payload}); err != nil {
			return
		}
		var park envelope
		_ = conn.ReadJSON(&park)
	})

	m := newTestManager(stub.url())
	m.Start()
	defer m.Close()
	waitForSession(t, m)

	select {
	case event := <-m.Events():
		assert.Equal(t, int64(11), event.RequestID)
		assert.Equal(t, int64(2), event.Sequence)
	case <-time.After(3 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestConnectionReconnectsWithNewSession(t *testing.T) {
	stub := newRealtimeStub(t, func(conn *websocket.Conn, sessionID string) {
		if sessionID == "session-1" {
			// Drop the first connection right after the handshake.
			return
		}
		var park envelope
		_ = conn.ReadJSON(&park)
	})

	m := newTestManager(stub.url())
	m.Start()
	defer m.Close()

	first := waitForSession(t, m)
	second := waitForSession(t, m)
	// Every reconnect is a brand-new session, never a resumed one.
	assert.Equal(t, "session-1", first)
	assert.Equal(t, "session-2", second)
	assert.NotEqual(t, first, second)
}

func TestEmitDroppedUnlessAuthenticated(t *testing.T) {
	m := newTestManager("ws://127.0.0.1:0/nowhere")
	// Never started: Emit must be a silent no-op, not a panic.
	m.Emit("requestUpdate", map[string]string{"k": "v"})
	assert.Equal(t, StateDisconnected, m.State())
}

func TestCloseStopsReconnecting(t *testing.T) {
	states := make(chan State, 16)
	m := NewConnectionManager(ConnectionConfig{
		URL:         "ws://127.0.0.1:1/unreachable",
		Token:       "valid-token",
		BaseBackoff: 5 * time.Millisecond,
		MaxBackoff:  10 * time.Millisecond,
		OnState: func(s State) {
			select {
			case states <- s:
			default:
			}
		},
	})
	m.Start()
	time.Sleep(50 * time.Millisecond)
	m.Close()

	assert.Equal(t, StateClosed, m.State())
	// Close returns only after the run loop exited, so no further dial
	// can fire; a second Close is safe.
	m.Close()
}

// State and session reads must stay responsive while a frame write is in
// flight, so a peer that stops draining its socket cannot freeze callers.
func TestStateReadableDuringStalledWrite(t *testing.T) {
	m := newTestManager("ws://127.0.0.1:0")

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.State()
		_ = m.SessionID()
		m.Emit("ignored", nil)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("state reads blocked behind an in-flight write")
	}
	assert.Equal(t, StateDisconnected, m.State())
}

func TestStaleThresholdDetection(t *testing.T) {
	m := newTestManager("ws://127.0.0.1:0/unused")
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return now }

	m.mu.Lock()
	m.lastPingAt = now
	m.mu.Unlock()
	assert.False(t, m.staleExceeded())

	// Exactly at the threshold is still healthy; past it is stale.
	now = now.Add(60 * time.Second)
	assert.False(t, m.staleExceeded())
	now = now.Add(time.Second)
	assert.True(t, m.staleExceeded())
}

func TestBackoffDelayIsCappedWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second
	for attempt := 0; attempt < 20; attempt++ {
		delay := backoffDelay(attempt, base, max)
		assert.GreaterOrEqual(t, delay, time.Duration(0))
		assert.LessOrEqual(t, delay, max)
	}
	// High attempts must not overflow into negative delays.
	assert.LessOrEqual(t, backoffDelay(62, base, max), max)
}
