package messaging

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/director74/macro_saga/pkg/config"
	apperrors "github.com/director74/macro_saga/pkg/errors"
	"github.com/director74/macro_saga/pkg/rabbitmq"
	"github.com/director74/macro_saga/pkg/saga"
)

// MessageBroker операции брокера, которые нужны шлюзу
type MessageBroker interface {
	DeclareExchange(name string, kind string) error
	DeclareQueue(name string) error
	BindQueue(queueName, exchangeName, routingKey string) error
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
	ConsumeMessages(ctx context.Context, queueName, consumerName string, workers int, handler rabbitmq.Handler) error
	IsClosed() bool
	Close() error
}

// EventHandler обработчик входящих событий. Ошибка означает повторную доставку.
type EventHandler func(ctx context.Context, event saga.Event) error

// InitRabbitMQ инициализирует подключение к RabbitMQ с общими параметрами
func InitRabbitMQ(cfg config.RabbitMQConfig, logger zerolog.Logger) (*rabbitmq.RabbitMQ, error) {
	rmqCfg := rabbitmq.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		VHost:    cfg.VHost,
	}

	return rabbitmq.NewRabbitMQ(rmqCfg, logger)
}

// Gateway публикует события в топики и доставляет входящие события обработчикам.
// Топик соответствует очереди с тем же именем, привязанной к direct exchange.
type Gateway struct {
	broker   MessageBroker
	exchange string
	workers  int
	consumer string
	logger   zerolog.Logger
}

func NewGateway(broker MessageBroker, exchange string, workers int, consumer string, logger zerolog.Logger) *Gateway {
	if workers <= 0 {
		workers = 10
	}
	return &Gateway{
		broker:   broker,
		exchange: exchange,
		workers:  workers,
		consumer: consumer,
		logger:   logger,
	}
}

// Setup объявляет exchange и очереди для перечисленных топиков
func (g *Gateway) Setup(topics ...string) error {
	if err := g.broker.DeclareExchange(g.exchange, "direct"); err != nil {
		return fmt.Errorf("ошибка при объявлении exchange %s: %w", g.exchange, err)
	}

	for _, topic := range topics {
		if err := g.broker.DeclareQueue(topic); err != nil {
			return fmt.Errorf("ошибка при объявлении очереди %s: %w", topic, err)
		}
		if err := g.broker.BindQueue(topic, g.exchange, topic); err != nil {
			return fmt.Errorf("ошибка при привязке очереди %s: %w", topic, err)
		}
	}

	g.logger.Info().Str("exchange", g.exchange).Strs("topics", topics).Msg("Топология RabbitMQ настроена")
	return nil
}

// Publish отправляет событие в топик. Ошибка оборачивает ErrTransport.
func (g *Gateway) Publish(ctx context.Context, topic string, event saga.Event) error {
	body, err := event.Marshal()
	if err != nil {
		return err
	}

	if err := g.broker.Publish(ctx, g.exchange, topic, body); err != nil {
		return fmt.Errorf("%w: публикация в %s: %w", apperrors.ErrTransport, topic, err)
	}

	g.logger.Debug().Str("topic", topic).Str("saga_id", event.SagaID).
		Str("event_type", string(event.EventType)).Msg("Событие опубликовано")
	return nil
}

// Subscribe запускает пул обработчиков для топика. Сообщения, которые нельзя
// разобрать, подтверждаются и отбрасываются: повторная доставка их не исправит.
func (g *Gateway) Subscribe(ctx context.Context, topic string, handler EventHandler) error {
	consume := func(ctx context.Context, body []byte) error {
		event, err := saga.ParseEvent(body)
		if err != nil {
			g.logger.Error().Err(err).Str("topic", topic).Bytes("body", body).Msg("Некорректное сообщение отброшено")
			return nil
		}
		return handler(ctx, event)
	}

	if err := g.broker.ConsumeMessages(ctx, topic, g.consumer, g.workers, consume); err != nil {
		return fmt.Errorf("ошибка подписки на %s: %w", topic, err)
	}

	g.logger.Info().Str("topic", topic).Int("workers", g.workers).Msg("Подписка на топик запущена")
	return nil
}

// Healthy false, если соединение с брокером потеряно
func (g *Gateway) Healthy() bool {
	return !g.broker.IsClosed()
}
