package client

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State enumerates connection manager states.
type State string

const (
	StateDisconnected   State = "disconnected"
	StateConnecting     State = "connecting"
	StateAuthenticating State = "authenticating"
	StateAuthenticated  State = "authenticated"
	StateDegraded       State = "degraded"
	StateClosed         State = "closed"
)

// Realtime message types, mirroring the server protocol.
const (
	typeAuthenticate  = "authenticate"
	typeAuthenticated = "authenticated"
	typePing          = "ping"
	typePong          = "pong"
	typeRequestUpdate = "requestUpdate"
)

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ConnectionConfig tunes the realtime connection manager.
type ConnectionConfig struct {
	// URL is the websocket endpoint, e.g. ws://host:8080/realtime/ws.
	URL      string
	Token    string
	Identity Identity

	// HealthCheckInterval is how often staleness is evaluated (default 30s).
	HealthCheckInterval time.Duration
	// StaleThreshold declares the connection dead when no ping arrived for
	// this long (default 60s).
	StaleThreshold time.Duration
	// BaseBackoff and MaxBackoff bound the reconnect delay (1s / 30s).
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// HandshakeTimeout bounds the authenticate exchange (default 10s).
	HandshakeTimeout time.Duration

	Logger *zap.Logger

	// OnState is invoked on every state change. Connection status indicators
	// should derive from these transitions only, never from event traffic.
	OnState func(State)
}

func (c *ConnectionConfig) applyDefaults() {
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = 60 * time.Second
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// ConnectionManager owns one realtime channel. It dials, authenticates,
// answers heartbeats, monitors staleness and reconnects forever with capped
// jittered backoff. Every reconnect starts a brand-new session: sequence
// continuity is never assumed, so consumers must resync on each reconnect
// notification.
type ConnectionManager struct {
	cfg ConnectionConfig

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	sessionID  string
	lastPingAt time.Time
	generation int
	closed     bool

	// writeMu serializes frame writes on its own so a stalled TCP write
	// cannot block state reads behind mu.
	writeMu sync.Mutex

	events     chan LifecycleEvent
	reconnects chan string
	done       chan struct{}
	cancel     context.CancelFunc

	// Now is overridable in tests.
	Now func() time.Time

	// dial is injectable for tests.
	dial func(ctx context.Context) (*websocket.Conn, error)
}

// NewConnectionManager constructs a manager; call Start to begin connecting.
func NewConnectionManager(cfg ConnectionConfig) *ConnectionManager {
	cfg.applyDefaults()
	m := &ConnectionManager{
		cfg:        cfg,
		state:      StateDisconnected,
		events:     make(chan LifecycleEvent, 64),
		reconnects: make(chan string, 4),
		done:       make(chan struct{}),
		Now:        time.Now,
	}
	m.dial = func(ctx context.Context) (*websocket.Conn, error) {
		dialer := websocket.Dialer{HandshakeTimeout: m.cfg.HandshakeTimeout}
		conn, _, err := dialer.DialContext(ctx, m.cfg.URL, nil)
		return conn, err
	}
	return m
}

// Start launches the connection loop. It returns immediately; connection
// state is observable via OnState and the reconnect channel.
func (m *ConnectionManager) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()
	go m.run(ctx)
}

// Events returns the channel of pushed lifecycle events.
func (m *ConnectionManager) Events() <-chan LifecycleEvent {
	return m.events
}

// Reconnects emits the new session id after each successful handshake.
// Consumers must treat every emission as a potential gap and resync.
func (m *ConnectionManager) Reconnects() <-chan string {
	return m.reconnects
}

// State returns the current state.
func (m *ConnectionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SessionID returns the current session id, empty while disconnected.
func (m *ConnectionManager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// LastPingReceivedAt returns when the last server ping arrived.
func (m *ConnectionManager) LastPingReceivedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPingAt
}

// Emit sends an application event. Fire-and-forget: attempts while not
// authenticated are silently dropped and delivery is never guaranteed.
func (m *ConnectionManager) Emit(eventType string, payload any) {
	m.mu.Lock()
	conn := m.conn
	ok := m.state == StateAuthenticated
	m.mu.Unlock()
	if !ok || conn == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	m.write(conn, envelope{Type: eventType, Payload: raw})
}

// Close tears the connection down for good. Pending reconnect timers are
// cancelled so no spurious attempt fires after an intentional shutdown.
func (m *ConnectionManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	cancel := m.cancel
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	m.setState(StateClosed)
	if cancel != nil {
		<-m.done
	}
}

func (m *ConnectionManager) run(ctx context.Context) {
	defer close(m.done)
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		m.setState(StateConnecting)
		conn, sessionID, err := m.connectOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.cfg.Logger.Debug("realtime connect failed", zap.Error(err), zap.Int("attempt", attempt))
			m.setState(StateDisconnected)
			if !m.sleep(ctx, backoffDelay(attempt, m.cfg.BaseBackoff, m.cfg.MaxBackoff)) {
				return
			}
			attempt++
			continue
		}
		attempt = 0

		m.install(conn, sessionID)
		m.setState(StateAuthenticated)
		select {
		case m.reconnects <- sessionID:
		default:
		}

		generation := m.currentGeneration()
		watchdogDone := make(chan struct{})
		go m.watchdog(conn, generation, watchdogDone)

		m.readLoop(conn)
		close(watchdogDone)

		if ctx.Err() != nil {
			return
		}
		m.clearConn(conn)
		m.setState(StateDegraded)
		if !m.sleep(ctx, backoffDelay(0, m.cfg.BaseBackoff, m.cfg.MaxBackoff)) {
			return
		}
	}
}

// connectOnce dials and performs the authenticate handshake, returning the
// server-assigned session id.
func (m *ConnectionManager) connectOnce(ctx context.Context) (*websocket.Conn, string, error) {
	conn, err := m.dial(ctx)
	if err != nil {
		return nil, "", err
	}

	m.setState(StateAuthenticating)

	payload, err := json.Marshal(struct {
		Token string `json:"token"`
		Identity
	}{Token: m.cfg.Token, Identity: m.cfg.Identity})
	if err != nil {
		_ = conn.Close()
		return nil, "", err
	}
	if !m.write(conn, envelope{Type: typeAuthenticate, Payload: payload}) {
		_ = conn.Close()
		return nil, "", errors.New("authenticate write failed")
	}

	_ = conn.SetReadDeadline(m.Now().Add(m.cfg.HandshakeTimeout))
	var ack envelope
	if err := conn.ReadJSON(&ack); err != nil {
		_ = conn.Close()
		return nil, "", err
	}
	_ = conn.SetReadDeadline(time.Time{})
	if ack.Type != typeAuthenticated {
		_ = conn.Close()
		return nil, "", errors.New("expected authenticated ack, got " + ack.Type)
	}
	var acked struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(ack.Payload, &acked); err != nil {
		_ = conn.Close()
		return nil, "", err
	}
	return conn, acked.SessionID, nil
}

// install makes conn the single active transport, tearing down any prior
// one so duplicate delivery is impossible.
func (m *ConnectionManager) install(conn *websocket.Conn, sessionID string) {
	m.mu.Lock()
	prev := m.conn
	m.conn = conn
	m.sessionID = sessionID
	m.lastPingAt = m.Now()
	m.generation++
	m.mu.Unlock()
	if prev != nil && prev != conn {
		_ = prev.Close()
	}
}

func (m *ConnectionManager) clearConn(conn *websocket.Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
		m.sessionID = ""
	}
	m.mu.Unlock()
	_ = conn.Close()
}

func (m *ConnectionManager) currentGeneration() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

func (m *ConnectionManager) readLoop(conn *websocket.Conn) {
	for {
		var msg envelope
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case typePing:
			m.mu.Lock()
			m.lastPingAt = m.Now()
			if m.state == StateDegraded {
				m.state = StateAuthenticated
			}
			m.mu.Unlock()
			m.sendPong(conn)
		case typeRequestUpdate:
			var event LifecycleEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				continue
			}
			select {
			case m.events <- event:
			default:
				// slow consumer; the next resync covers the loss
			}
		}
	}
}

func (m *ConnectionManager) sendPong(conn *websocket.Conn) {
	payload, err := json.Marshal(struct {
		Timestamp time.Time `json:"timestamp"`
		UserID    string    `json:"userId"`
	}{Timestamp: m.Now(), UserID: m.cfg.Identity.ID})
	if err != nil {
		return
	}
	m.write(conn, envelope{Type: typePong, Payload: payload})
}

// watchdog declares the transport stale when no ping arrived within the
// threshold and closes it; the read loop then exits and the run loop
// schedules a fresh session.
func (m *ConnectionManager) watchdog(conn *websocket.Conn, generation int, done <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if m.currentGeneration() != generation {
				return
			}
			if m.staleExceeded() {
				m.cfg.Logger.Info("realtime connection stale, forcing reconnect",
					zap.Time("last_ping_at", m.LastPingReceivedAt()))
				m.setState(StateDegraded)
				_ = conn.Close()
				return
			}
		}
	}
}

// staleExceeded reports whether the ping gap crossed the threshold.
func (m *ConnectionManager) staleExceeded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Now().Sub(m.lastPingAt) > m.cfg.StaleThreshold
}

func (m *ConnectionManager) write(conn *websocket.Conn, msg envelope) bool {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(m.Now().Add(10 * time.Second))
	return conn.WriteJSON(msg) == nil
}

func (m *ConnectionManager) setState(state State) {
	m.mu.Lock()
	if m.closed && state != StateClosed {
		m.mu.Unlock()
		return
	}
	changed := m.state != state
	m.state = state
	m.mu.Unlock()
	if changed && m.cfg.OnState != nil {
		m.cfg.OnState(state)
	}
}

// sleep waits the given delay, returning false when cancelled.
func (m *ConnectionManager) sleep(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// backoffDelay computes a capped exponential delay with jitter. The jitter
// spreads reconnects of many clients after a server restart.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		delay = max
	}
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
