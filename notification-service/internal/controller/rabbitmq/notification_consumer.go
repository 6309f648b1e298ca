package rabbitmq

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/director74/macro_saga/pkg/messaging"
	"github.com/director74/macro_saga/pkg/saga"
)

// Subscriber подписка на топик (messaging.Gateway)
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler messaging.EventHandler) error
}

// NotificationHandler исполнитель команд отправки писем
type NotificationHandler interface {
	Handle(ctx context.Context, event saga.Event) error
}

type NotificationConsumer struct {
	subscriber Subscriber
	handler    NotificationHandler
	logger     zerolog.Logger
}

func NewNotificationConsumer(subscriber Subscriber, handler NotificationHandler, logger zerolog.Logger) *NotificationConsumer {
	return &NotificationConsumer{
		subscriber: subscriber,
		handler:    handler,
		logger:     logger,
	}
}

func (c *NotificationConsumer) Topics() []string {
	return []string{saga.TopicEmailAPI}
}

// Start подписывает обработчик на топик писем, обработка идет до отмены ctx
func (c *NotificationConsumer) Start(ctx context.Context) error {
	if err := c.subscriber.Subscribe(ctx, saga.TopicEmailAPI, c.handler.Handle); err != nil {
		return fmt.Errorf("ошибка подписки на %s: %w", saga.TopicEmailAPI, err)
	}

	c.logger.Info().Str("topic", saga.TopicEmailAPI).Msg("Обработчик уведомлений подписан")
	return nil
}
