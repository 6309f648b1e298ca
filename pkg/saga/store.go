package saga

import (
	"context"
	"time"
)

// Store хранилище саг и их истории. Методы, вызванные с контекстом из
// database.Transactor, выполняются в его транзакции.
type Store interface {
	Create(ctx context.Context, s *Saga, first *SagaEventState) error
	FindByID(ctx context.Context, sagaID string) (*Saga, error)
	// LockByID читает сагу с блокировкой строки до конца транзакции
	LockByID(ctx context.Context, sagaID string) (*Saga, error)
	LastStepNumber(ctx context.Context, sagaID string) (int, error)
	// EventStateExists проверка дубликата: есть ли строка истории с таким исходом и типом на шаге step
	EventStateExists(ctx context.Context, sagaID string, outcome EventOutcome, eventType EventType, step int) (bool, error)
	AppendEventState(ctx context.Context, state *SagaEventState) error
	// UpdateProgress сохраняет status, sagaState, updateUser и updateDate
	UpdateProgress(ctx context.Context, s *Saga) error
	CountInFlight(ctx context.Context, sagaName, correlationKey string) (int64, error)
	FindStale(ctx context.Context, sagaName string, updatedBefore time.Time, limit int) ([]Saga, error)
	LastEventState(ctx context.Context, sagaID string) (*SagaEventState, error)
}

// Publisher публикует событие в топик. Вызывается только после фиксации транзакции шага.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
}
