package events

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisChannel = "tire-requests:lifecycle"

// envelope wraps events on the wire so an instance can skip its own
// publications when they come back around.
type envelope struct {
	Origin string         `json:"origin"`
	Event  LifecycleEvent `json:"event"`
}

// redisBus extends the in-memory bus with Redis pub/sub so lifecycle events
// reach sessions held by other service instances.
type redisBus struct {
	local  Bus
	client *redis.Client
	origin string
	logger *zap.Logger
	cancel context.CancelFunc
	doneCh chan struct{}
}

// NewRedisBus wires cross-instance fan-out on top of a local bus.
func NewRedisBus(client *redis.Client, logger *zap.Logger) Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &redisBus{
		local:  NewInMemoryBus(),
		client: client,
		origin: uuid.NewString(),
		logger: logger,
		cancel: cancel,
		doneCh: make(chan struct{}),
	}
	go b.consume(ctx)
	return b
}

// Publish delivers locally, then broadcasts to other instances.
func (b *redisBus) Publish(ctx context.Context, event LifecycleEvent) error {
	if err := b.local.Publish(ctx, event); err != nil {
		return err
	}
	payload, err := json.Marshal(envelope{Origin: b.origin, Event: event})
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, redisChannel, payload).Err(); err != nil {
		b.logger.Warn("redis publish failed", zap.Error(err), zap.Int64("request_id", event.RequestID))
	}
	return nil
}

func (b *redisBus) Subscribe(sessionID string, filter Filter) (<-chan LifecycleEvent, error) {
	return b.local.Subscribe(sessionID, filter)
}

func (b *redisBus) Unsubscribe(sessionID string) {
	b.local.Unsubscribe(sessionID)
}

// Close stops the consumer and tears down local subscriptions.
func (b *redisBus) Close() error {
	b.cancel()
	<-b.doneCh
	return b.local.Close()
}

func (b *redisBus) consume(ctx context.Context) {
	defer close(b.doneCh)
	sub := b.client.Subscribe(ctx, redisChannel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("malformed event envelope", zap.Error(err))
				continue
			}
			if env.Origin == b.origin {
				continue
			}
			_ = b.local.Publish(ctx, env.Event)
		}
	}
}
