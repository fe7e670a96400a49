package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/tire-request-service/internal/config"
	"github.com/spec-kit/tire-request-service/internal/domain"
	"github.com/spec-kit/tire-request-service/internal/events"
	"github.com/spec-kit/tire-request-service/internal/observability"
)

// IdentityResolver validates a bearer credential and yields the actor
// identity behind it.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (domain.Actor, error)
}

// Hub owns all realtime sessions of this instance. Each websocket connection
// gets exactly one session; the hub authenticates it, subscribes it to the
// event bus, drives the server ping loop and tears the session down when the
// transport fails or heartbeats stop.
type Hub struct {
	bus      events.Bus
	identity IdentityResolver
	logger   *zap.Logger
	metrics  *observability.Metrics
	cfg      config.RealtimeConfig

	mu       sync.Mutex
	sessions map[string]*Session
	shutdown bool

	// Now is overridable in tests.
	Now func() time.Time
}

// NewHub constructs a hub.
func NewHub(bus events.Bus, identity IdentityResolver, logger *zap.Logger, metrics *observability.Metrics, cfg config.RealtimeConfig) *Hub {
	return &Hub{
		bus:      bus,
		identity: identity,
		logger:   logger,
		metrics:  metrics,
		cfg:      cfg,
		sessions: make(map[string]*Session),
		Now:      time.Now,
	}
}

// Handler returns the fiber handler performing the websocket upgrade.
func (h *Hub) Handler() fiber.Handler {
	return websocket.New(h.serve)
}

// UpgradeGuard rejects plain HTTP requests on the websocket route.
func UpgradeGuard() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// SessionCount reports currently registered sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown tears down every session.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.shutdown = true
	sessions := make([]*Session, 0, len(h.sessions))
	for _, session := range h.sessions {
		sessions = append(sessions, session)
	}
	h.mu.Unlock()

	for _, session := range sessions {
		session.close()
	}
}

func (h *Hub) serve(conn *websocket.Conn) {
	session := newSession(uuid.NewString(), h.Now())
	if !h.register(session) {
		_ = conn.Close()
		return
	}
	defer h.teardown(session, conn)

	// Closing the session must close the transport too, otherwise a read
	// blocked on an alive-but-silent client would keep the session
	// registered past stale detection or shutdown.
	go func() {
		<-session.closed
		_ = conn.Close()
	}()

	if h.metrics != nil {
		h.metrics.SessionOpened()
	}

	actor, err := h.handshake(session, conn)
	if err != nil {
		h.logger.Debug("realtime handshake failed", zap.String("session_id", session.ID), zap.Error(err))
		return
	}
	session.authenticate(actor)

	ack, err := NewEnvelope(TypeAuthenticated, AuthenticatedPayload{SessionID: session.ID})
	if err != nil || !session.send(ack) {
		return
	}

	eventCh, err := h.bus.Subscribe(session.ID, events.Filter{})
	if err != nil {
		h.logger.Warn("bus subscribe failed", zap.String("session_id", session.ID), zap.Error(err))
		return
	}

	go h.forwardEvents(session, eventCh)
	go h.writeLoop(session, conn)

	h.readLoop(session, conn)
}

// handshake expects the authenticate message as the first frame. The token
// inside is the authoritative credential; the identity fields the client
// sends are ignored in favor of the resolved record.
func (h *Hub) handshake(session *Session, conn *websocket.Conn) (domain.Actor, error) {
	session.setState(StateAuthenticating)

	_ = conn.SetReadDeadline(h.Now().Add(h.cfg.AuthTimeout()))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return domain.Actor{}, err
	}
	_ = conn.SetReadDeadline(time.Time{})

	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return domain.Actor{}, err
	}
	if envelope.Type != TypeAuthenticate {
		return domain.Actor{}, errUnexpectedMessage(envelope.Type)
	}
	var payload AuthenticatePayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return domain.Actor{}, err
	}
	token := payload.Token
	if token == "" {
		token = conn.Query("token")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.identity.Resolve(ctx, token)
}

func (h *Hub) forwardEvents(session *Session, eventCh <-chan events.LifecycleEvent) {
	for {
		select {
		case <-session.closed:
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			envelope, err := NewEnvelope(TypeRequestUpdate, event)
			if err != nil {
				continue
			}
			if session.send(envelope) && h.metrics != nil {
				h.metrics.EventDelivered()
			}
		}
	}
}

func (h *Hub) writeLoop(session *Session, conn *websocket.Conn) {
	ticker := time.NewTicker(h.cfg.PingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-session.closed:
			return
		case envelope := <-session.outbound:
			if err := h.write(conn, envelope); err != nil {
				session.close()
				return
			}
		case <-ticker.C:
			now := h.Now()
			if now.Sub(session.LastPongAt()) > h.cfg.StaleAfter() {
				h.logger.Info("realtime session stale, closing",
					zap.String("session_id", session.ID),
					zap.Time("last_pong_at", session.LastPongAt()))
				session.close()
				return
			}
			if now.Sub(session.LastPongAt()) > h.cfg.PingInterval() {
				session.setState(StateDegraded)
			}
			ping, err := NewEnvelope(TypePing, PingPayload{Timestamp: now})
			if err != nil {
				continue
			}
			if err := h.write(conn, ping); err != nil {
				session.close()
				return
			}
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, envelope Envelope) error {
	raw, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(h.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, raw)
}

func (h *Hub) readLoop(session *Session, conn *websocket.Conn) {
	for {
		select {
		case <-session.closed:
			return
		default:
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			session.close()
			return
		}
		var envelope Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			continue
		}
		switch envelope.Type {
		case TypePong:
			session.recordPong(h.Now())
		default:
			// application events are fire-and-forget; only authenticated
			// sessions get them logged, everything else is dropped
			if session.State() == StateAuthenticated {
				h.logger.Debug("client event",
					zap.String("session_id", session.ID),
					zap.String("type", envelope.Type))
			}
		}
	}
}

func (h *Hub) register(session *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.shutdown {
		return false
	}
	h.sessions[session.ID] = session
	return true
}

func (h *Hub) teardown(session *Session, conn *websocket.Conn) {
	session.close()
	h.bus.Unsubscribe(session.ID)
	_ = conn.Close()

	h.mu.Lock()
	delete(h.sessions, session.ID)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SessionClosed()
	}
	h.logger.Debug("realtime session closed", zap.String("session_id", session.ID))
}

type errUnexpectedMessage string

func (e errUnexpectedMessage) Error() string {
	return "unexpected message type: " + string(e)
}
