package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/spec-kit/tire-request-service/internal/domain"
)

// Filter restricts which events a subscription receives. Zero values match
// everything; a non-zero RequestID limits delivery to that request and a
// non-empty Roles set limits delivery to events performed by those roles.
type Filter struct {
	RequestID int64
	Roles     []domain.Role
}

// Matches reports whether the filter admits the event.
func (f Filter) Matches(event LifecycleEvent) bool {
	if f.RequestID != 0 && f.RequestID != event.RequestID {
		return false
	}
	if len(f.Roles) == 0 {
		return true
	}
	for _, role := range f.Roles {
		if role == event.ActorRole {
			return true
		}
	}
	return false
}

// Bus fans lifecycle events out to subscribed sessions. Delivery is
// at-least-once and best-effort ordered per request id; there is no ordering
// guarantee across distinct request ids.
type Bus interface {
	Publish(ctx context.Context, event LifecycleEvent) error
	Subscribe(sessionID string, filter Filter) (<-chan LifecycleEvent, error)
	Unsubscribe(sessionID string)
	Close() error
}

const subscriberBuffer = 64

type subscriber struct {
	filter Filter
	ch     chan LifecycleEvent
}

// inMemoryBus is a synchronous in-process bus.
type inMemoryBus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	closed      bool
	dropped     atomic.Int64
}

// NewInMemoryBus creates a bus instance for single-process deployments.
func NewInMemoryBus() Bus {
	return &inMemoryBus{subscribers: make(map[string]*subscriber)}
}

// Publish delivers the event to every matching subscriber. A subscriber that
// cannot keep up loses the event; reconnect-time resync covers the gap.
func (b *inMemoryBus) Publish(ctx context.Context, event LifecycleEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	for _, sub := range b.subscribers {
		if !sub.filter.Matches(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe registers a session. An existing subscription under the same
// session id is replaced and its channel closed.
func (b *inMemoryBus) Subscribe(sessionID string, filter Filter) (<-chan LifecycleEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.subscribers[sessionID]; ok {
		close(prev.ch)
	}
	sub := &subscriber{filter: filter, ch: make(chan LifecycleEvent, subscriberBuffer)}
	b.subscribers[sessionID] = sub
	return sub.ch, nil
}

// Unsubscribe removes the session's subscription and closes its channel.
func (b *inMemoryBus) Unsubscribe(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscribers[sessionID]; ok {
		close(sub.ch)
		delete(b.subscribers, sessionID)
	}
}

// Close tears down all subscriptions.
func (b *inMemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
	return nil
}
