package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/voxline/livechat-service/internal/config"
	"github.com/voxline/livechat-service/internal/events"
)

// NotificationService emits notifications for domain events. Delivery is
// fire-and-forget: failures are logged, never surfaced to the core.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventSessionOpened, n.handleSessionOpened)
	n.dispatcher.Subscribe(events.EventSessionAssigned, n.handleSessionAssigned)
	n.dispatcher.Subscribe(events.EventSessionClosed, n.handleSessionClosed)
	n.dispatcher.Subscribe(events.EventSessionMessageAdded, n.handleMessageAdded)
	n.dispatcher.Subscribe(events.EventSessionRated, n.handleSessionRated)
	n.dispatcher.Subscribe(events.EventOperatorStatusChanged, n.handleOperatorStatusChanged)
}

func (n *NotificationService) handleSessionOpened(ctx context.Context, event events.Event) error {
	n.logger.Info("SessionOpened", zap.String("session_id", event.SessionID), zap.Any("payload", event.Payload))
	n.sendWebhookStub(ctx, event)
	return nil
}

func (n *NotificationService) handleSessionAssigned(ctx context.Context, event events.Event) error {
	n.logger.Info("SessionAssigned", zap.String("session_id", event.SessionID), zap.String("operator_id", event.OperatorID))
	n.sendTelegramStub(ctx, event)
	return nil
}

func (n *NotificationService) handleSessionClosed(ctx context.Context, event events.Event) error {
	n.logger.Info("SessionClosed", zap.String("session_id", event.SessionID), zap.Any("payload", event.Payload))
	n.sendTelegramStub(ctx, event)
	return nil
}

func (n *NotificationService) handleMessageAdded(ctx context.Context, event events.Event) error {
	n.logger.Info("SessionMessageAdded", zap.String("session_id", event.SessionID), zap.Any("payload", event.Payload))
	n.sendTelegramStub(ctx, event)
	return nil
}

func (n *NotificationService) handleSessionRated(ctx context.Context, event events.Event) error {
	n.logger.Info("SessionRated", zap.String("session_id", event.SessionID), zap.Any("payload", event.Payload))
	n.sendWebhookStub(ctx, event)
	return nil
}

func (n *NotificationService) handleOperatorStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("OperatorStatusChanged", zap.String("operator_id", event.OperatorID), zap.Any("payload", event.Payload))
	n.sendWebhookStub(ctx, event)
	return nil
}

func (n *NotificationService) sendWebhookStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendTelegramStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.TelegramBotToken) == "" {
		return
	}
	n.logger.Debug("sendTelegramStub",
		zap.String("session_id", event.SessionID),
		zap.String("event_type", string(event.Type)))
}
