package rabbitmq

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/director74/macro_saga/pkg/logger"
	"github.com/director74/macro_saga/pkg/messaging"
	"github.com/director74/macro_saga/pkg/saga"
)

type fakeSubscriber struct {
	handlers map[string]messaging.EventHandler
	err      error
}

func (s *fakeSubscriber) Subscribe(ctx context.Context, topic string, handler messaging.EventHandler) error {
	if s.err != nil {
		return s.err
	}
	s.handlers[topic] = handler
	return nil
}

type recordingHandler struct {
	events []saga.Event
}

func (h *recordingHandler) Handle(ctx context.Context, event saga.Event) error {
	h.events = append(h.events, event)
	return nil
}

func TestNotificationConsumerSubscribesEmailTopic(t *testing.T) {
	sub := &fakeSubscriber{handlers: map[string]messaging.EventHandler{}}
	handler := &recordingHandler{}

	consumer := NewNotificationConsumer(sub, handler, logger.Nop())
	require.NoError(t, consumer.Start(context.Background()))

	assert.Equal(t, []string{saga.TopicEmailAPI}, consumer.Topics())
	require.Contains(t, sub.handlers, saga.TopicEmailAPI)
	require.NoError(t, sub.handlers[saga.TopicEmailAPI](context.Background(), saga.Event{SagaID: "s-1"}))
	require.Len(t, handler.events, 1)
	assert.Equal(t, "s-1", handler.events[0].SagaID)
}

func TestNotificationConsumerSubscribeFailure(t *testing.T) {
	sub := &fakeSubscriber{err: errors.New("channel closed")}

	err := NewNotificationConsumer(sub, &recordingHandler{}, logger.Nop()).Start(context.Background())

	assert.ErrorContains(t, err, "channel closed")
}
