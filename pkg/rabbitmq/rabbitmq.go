package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Config содержит настройки подключения к RabbitMQ
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	VHost    string
}

// Handler обрабатывает тело сообщения. Ошибка возвращает сообщение в очередь.
type Handler func(ctx context.Context, body []byte) error

// RabbitMQ представляет клиент для работы с RabbitMQ. Публикация идет через один
// общий канал под мьютексом, каждый потребитель получает собственный канал.
type RabbitMQ struct {
	config     Config
	logger     zerolog.Logger
	mu         sync.Mutex
	connection *amqp.Connection
	channel    *amqp.Channel
}

func NewRabbitMQ(cfg Config, logger zerolog.Logger) (*RabbitMQ, error) {
	rmq := &RabbitMQ{
		config: cfg,
		logger: logger,
	}

	if err := rmq.connect(); err != nil {
		return nil, err
	}

	return rmq, nil
}

// connect устанавливает соединение с RabbitMQ
func (r *RabbitMQ) connect() error {
	connStr := fmt.Sprintf("amqp://%s:%s@%s:%s/%s",
		r.config.User, r.config.Password, r.config.Host, r.config.Port, r.config.VHost)

	conn, err := amqp.Dial(connStr)
	if err != nil {
		return fmt.Errorf("не удалось подключиться к RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("не удалось открыть канал: %w", err)
	}

	r.connection = conn
	r.channel = ch
	return nil
}

// reconnect восстанавливает соединение, если оно закрыто. Вызывается под r.mu.
func (r *RabbitMQ) reconnect() error {
	if r.connection != nil && !r.connection.IsClosed() && r.channel != nil && !r.channel.IsClosed() {
		return nil
	}

	r.logger.Warn().Msg("Попытка переподключения к RabbitMQ...")
	if r.connection != nil && !r.connection.IsClosed() {
		ch, err := r.connection.Channel()
		if err != nil {
			return fmt.Errorf("не удалось открыть канал: %w", err)
		}
		r.channel = ch
		return nil
	}
	return r.connect()
}

// IsClosed сообщает, потеряно ли соединение с брокером
func (r *RabbitMQ) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connection == nil || r.connection.IsClosed()
}

// Close закрывает соединение с RabbitMQ
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel != nil && !r.channel.IsClosed() {
		if err := r.channel.Close(); err != nil {
			return fmt.Errorf("ошибка при закрытии канала: %w", err)
		}
	}
	if r.connection != nil && !r.connection.IsClosed() {
		if err := r.connection.Close(); err != nil {
			return fmt.Errorf("ошибка при закрытии соединения: %w", err)
		}
	}
	return nil
}

// DeclareExchange объявляет durable exchange
func (r *RabbitMQ) DeclareExchange(name string, kind string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.reconnect(); err != nil {
		return fmt.Errorf("ошибка переподключения перед объявлением exchange: %w", err)
	}

	return r.channel.ExchangeDeclare(
		name,  // name
		kind,  // type
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
}

// DeclareQueue объявляет durable очередь
func (r *RabbitMQ) DeclareQueue(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.reconnect(); err != nil {
		return fmt.Errorf("ошибка переподключения перед объявлением очереди: %w", err)
	}

	_, err := r.channel.QueueDeclare(
		name,  // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	return err
}

// BindQueue привязывает очередь к exchange
func (r *RabbitMQ) BindQueue(queueName, exchangeName, routingKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.reconnect(); err != nil {
		return fmt.Errorf("ошибка переподключения перед привязкой очереди: %w", err)
	}

	return r.channel.QueueBind(
		queueName,    // queue name
		routingKey,   // routing key
		exchangeName, // exchange
		false,        // no-wait
		nil,          // arguments
	)
}

// Publish публикует готовое JSON-тело с persistent доставкой
func (r *RabbitMQ) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.reconnect(); err != nil {
		return fmt.Errorf("ошибка переподключения перед публикацией сообщения: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return r.channel.PublishWithContext(
		ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
}

// ConsumeMessages запускает потребителя очереди с пулом из workers обработчиков.
// Prefetch равен размеру пула, поэтому брокер не выдает больше сообщений, чем можно
// обработать одновременно. При потере канала потребитель переподключается, пока жив ctx.
func (r *RabbitMQ) ConsumeMessages(ctx context.Context, queueName, consumerName string, workers int, handler Handler) error {
	if workers <= 0 {
		workers = 1
	}

	msgs, ch, err := r.openConsumer(queueName, consumerName, workers)
	if err != nil {
		return err
	}

	go r.superviseConsumer(ctx, queueName, consumerName, workers, handler, msgs, ch)
	return nil
}

func (r *RabbitMQ) openConsumer(queueName, consumerName string, workers int) (<-chan amqp.Delivery, *amqp.Channel, error) {
	r.mu.Lock()
	if err := r.reconnect(); err != nil {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("ошибка переподключения перед обработкой сообщений: %w", err)
	}
	conn := r.connection
	r.mu.Unlock()

	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("не удалось открыть канал потребителя: %w", err)
	}

	if err := ch.Qos(workers, 0, false); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("ошибка установки prefetch: %w", err)
	}

	msgs, err := ch.Consume(
		queueName, // queue
		fmt.Sprintf("%s-%d", consumerName, time.Now().UnixNano()), // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("ошибка при начале обработки сообщений: %w", err)
	}

	return msgs, ch, nil
}

func (r *RabbitMQ) superviseConsumer(ctx context.Context, queueName, consumerName string, workers int, handler Handler, msgs <-chan amqp.Delivery, ch *amqp.Channel) {
	backoff := time.Second
	for {
		r.handleMessages(ctx, msgs, workers, handler)
		ch.Close()

		if ctx.Err() != nil {
			return
		}

		r.logger.Warn().Str("queue", queueName).Msg("Канал потребителя закрыт, переподключаемся")
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}

			var err error
			msgs, ch, err = r.openConsumer(queueName, consumerName, workers)
			if err == nil {
				backoff = time.Second
				break
			}
			r.logger.Error().Err(err).Str("queue", queueName).Msg("Не удалось восстановить потребителя")
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}
}

// handleMessages раздает сообщения пулу обработчиков и ждет их завершения
func (r *RabbitMQ) handleMessages(ctx context.Context, msgs <-chan amqp.Delivery, workers int, handler Handler) {
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						return
					}
					r.dispatch(ctx, msg, handler)
				}
			}
		}()
	}
	wg.Wait()
}

func (r *RabbitMQ) dispatch(ctx context.Context, msg amqp.Delivery, handler Handler) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Str("routing_key", msg.RoutingKey).Msg("Паника при обработке сообщения")
			_ = msg.Nack(false, false)
		}
	}()

	if err := handler(ctx, msg.Body); err != nil {
		r.logger.Error().Err(err).Str("routing_key", msg.RoutingKey).Msg("Ошибка обработки сообщения, возвращаем в очередь")
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}
