package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/tire-request-service/internal/config"
	"github.com/spec-kit/tire-request-service/internal/events"
)

const notificationSubscriber = "notification-service"

// NotificationService handles emitting notifications for lifecycle events.
type NotificationService struct {
	bus    events.Bus
	logger *zap.Logger
	cfg    config.NotificationConfig
	cancel context.CancelFunc
	doneCh chan struct{}
}

// NewNotificationService creates the service.
func NewNotificationService(bus events.Bus, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		bus:    bus,
		logger: logger,
		cfg:    cfg,
		doneCh: make(chan struct{}),
	}
}

// Start subscribes to the bus and consumes events until Stop is called.
func (n *NotificationService) Start() error {
	if n.bus == nil {
		close(n.doneCh)
		return nil
	}
	ch, err := n.bus.Subscribe(notificationSubscriber, events.Filter{})
	if err != nil {
		close(n.doneCh)
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	go n.consume(ctx, ch)
	return nil
}

// Stop unsubscribes and waits for the consumer to drain.
func (n *NotificationService) Stop() {
	if n.cancel == nil {
		return
	}
	n.bus.Unsubscribe(notificationSubscriber)
	n.cancel()
	<-n.doneCh
}

func (n *NotificationService) consume(ctx context.Context, ch <-chan events.LifecycleEvent) {
	defer close(n.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			n.handle(ctx, event)
		}
	}
}

func (n *NotificationService) handle(ctx context.Context, event events.LifecycleEvent) {
	n.logger.Info("lifecycle notification",
		zap.String("event_type", string(event.Type)),
		zap.Int64("request_id", event.RequestID),
		zap.String("new_status", string(event.NewStatus)),
		zap.String("actor_id", event.ActorID))

	switch event.Type {
	case events.EventRequestCreated, events.EventRequestStatusChanged:
		n.sendEmailNotificationStub(ctx, event)
		n.sendWebhookNotificationStub(ctx, event)
	case events.EventRequestDeleted, events.EventRequestRestored:
		n.sendWebhookNotificationStub(ctx, event)
	}
}

func (n *NotificationService) sendEmailNotificationStub(_ context.Context, event events.LifecycleEvent) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.Int64("request_id", event.RequestID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.LifecycleEvent) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.Int64("request_id", event.RequestID),
		zap.String("event_type", string(event.Type)))
}
