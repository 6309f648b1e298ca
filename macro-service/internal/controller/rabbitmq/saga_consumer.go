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

// SagaEventHandler оркестратор саги: слушает свой топик ответов
type SagaEventHandler interface {
	Topic() string
	HandleEvent(ctx context.Context, event saga.Event) error
}

// CommandHandler исполнитель команд MACRO_API_TOPIC
type CommandHandler interface {
	Handle(ctx context.Context, event saga.Event) error
}

// SagaConsumer связывает топики с оркестраторами и исполнителем команд
type SagaConsumer struct {
	subscriber    Subscriber
	orchestrators []SagaEventHandler
	commands      CommandHandler
	logger        zerolog.Logger
}

func NewSagaConsumer(subscriber Subscriber, commands CommandHandler, logger zerolog.Logger, orchestrators ...SagaEventHandler) *SagaConsumer {
	return &SagaConsumer{
		subscriber:    subscriber,
		orchestrators: orchestrators,
		commands:      commands,
		logger:        logger,
	}
}

// Topics все топики, которые слушает сервис
func (c *SagaConsumer) Topics() []string {
	topics := []string{saga.TopicMacroAPI}
	for _, o := range c.orchestrators {
		topics = append(topics, o.Topic())
	}
	return topics
}

// Start запускает подписки. Обработка идет в фоне до отмены ctx.
func (c *SagaConsumer) Start(ctx context.Context) error {
	for _, o := range c.orchestrators {
		if err := c.subscriber.Subscribe(ctx, o.Topic(), o.HandleEvent); err != nil {
			return fmt.Errorf("ошибка подписки оркестратора: %w", err)
		}
	}

	if err := c.subscriber.Subscribe(ctx, saga.TopicMacroAPI, c.commands.Handle); err != nil {
		return fmt.Errorf("ошибка подписки исполнителя команд: %w", err)
	}

	c.logger.Info().Strs("topics", c.Topics()).Msg("Обработчики саг подписаны")
	return nil
}
