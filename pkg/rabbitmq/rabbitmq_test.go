package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/director74/macro_saga/pkg/logger"
)

type ackRecord struct {
	tag     uint64
	ack     bool
	requeue bool
}

type fakeAcknowledger struct {
	mu      sync.Mutex
	records []ackRecord
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, ackRecord{tag: tag, ack: true})
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, ackRecord{tag: tag, requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) byTag() map[uint64]ackRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[uint64]ackRecord, len(a.records))
	for _, r := range a.records {
		out[r.tag] = r
	}
	return out
}

func TestHandleMessagesAcksAndRequeues(t *testing.T) {
	r := &RabbitMQ{logger: logger.Nop()}
	acker := &fakeAcknowledger{}

	msgs := make(chan amqp.Delivery, 3)
	msgs <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, Body: []byte("ok")}
	msgs <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 2, Body: []byte("fail")}
	msgs <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 3, Body: []byte("panic")}
	close(msgs)

	handler := func(ctx context.Context, body []byte) error {
		switch string(body) {
		case "fail":
			return errors.New("db unavailable")
		case "panic":
			panic("boom")
		}
		return nil
	}

	r.handleMessages(context.Background(), msgs, 2, handler)

	records := acker.byTag()
	require.Len(t, records, 3)
	assert.True(t, records[1].ack)
	assert.False(t, records[2].ack)
	assert.True(t, records[2].requeue)
	assert.False(t, records[3].ack)
	assert.False(t, records[3].requeue)
}

func TestHandleMessagesStopsOnCancel(t *testing.T) {
	r := &RabbitMQ{logger: logger.Nop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		r.handleMessages(ctx, make(chan amqp.Delivery), 4, func(context.Context, []byte) error { return nil })
		close(done)
	}()

	<-done
}
