package realtime

import (
	"sync"
	"time"

	"github.com/spec-kit/tire-request-service/internal/domain"
)

// SessionState enumerates the server-side view of a realtime connection.
type SessionState string

const (
	StateConnecting     SessionState = "connecting"
	StateAuthenticating SessionState = "authenticating"
	StateAuthenticated  SessionState = "authenticated"
	StateDegraded       SessionState = "degraded"
	StateClosed         SessionState = "closed"
)

// Session is one authenticated realtime connection. It is owned exclusively
// by the hub that created it and is never reused after teardown; a
// reconnecting client gets a fresh session with a new id.
type Session struct {
	ID string

	mu         sync.Mutex
	state      SessionState
	actor      domain.Actor
	lastPongAt time.Time
	createdAt  time.Time

	outbound  chan Envelope
	closed    chan struct{}
	closeOnce sync.Once
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:         id,
		state:      StateConnecting,
		lastPongAt: now,
		createdAt:  now,
		outbound:   make(chan Envelope, 32),
		closed:     make(chan struct{}),
	}
}

// State returns the current connection state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Actor returns the authenticated identity, zero until authenticated.
func (s *Session) Actor() domain.Actor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actor
}

// LastPongAt returns the time of the most recent heartbeat reply.
func (s *Session) LastPongAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPongAt
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) authenticate(actor domain.Actor) {
	s.mu.Lock()
	s.actor = actor
	s.state = StateAuthenticated
	s.mu.Unlock()
}

func (s *Session) recordPong(now time.Time) {
	s.mu.Lock()
	s.lastPongAt = now
	if s.state == StateDegraded {
		s.state = StateAuthenticated
	}
	s.mu.Unlock()
}

// send enqueues a message; it reports false when the session is gone or the
// queue is full (slow consumer).
func (s *Session) send(envelope Envelope) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.outbound <- envelope:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		close(s.closed)
	})
}
