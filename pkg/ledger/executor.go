package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/director74/macro_saga/pkg/database"
	apperrors "github.com/director74/macro_saga/pkg/errors"
	"github.com/director74/macro_saga/pkg/metrics"
	"github.com/director74/macro_saga/pkg/saga"
)

// Result итог выполнения команды. Доменные отказы (например MACRO_NOT_FOUND)
// выражаются исходом, а не ошибкой.
type Result struct {
	Outcome saga.EventOutcome
	Payload string
}

// Mutation изменение, которое выполняется ровно один раз на (sagaId, eventType).
// Ошибка означает сбой инфраструктуры: транзакция откатывается, доставка повторяется.
type Mutation func(ctx context.Context) (Result, error)

// Executor выполняет команды идемпотентно с помощью журнала команд
type Executor struct {
	repo   Repository
	tx     database.Transactor
	now    func() time.Time
	logger zerolog.Logger
}

func NewExecutor(repo Repository, tx database.Transactor, logger zerolog.Logger) *Executor {
	return &Executor{
		repo:   repo,
		tx:     tx,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Execute выполняет mutation в одной транзакции с записью в журнал и возвращает ответ.
// Повторная доставка той же команды возвращает сохраненный ответ без повторного изменения.
func (e *Executor) Execute(ctx context.Context, event saga.Event, mutation Mutation) (saga.Event, error) {
	var reply saga.Event

	err := e.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		existing, err := e.repo.FindBySagaAndType(ctx, event.SagaID, event.EventType)
		if err == nil {
			if err := e.repo.Touch(ctx, existing.ID, e.now()); err != nil {
				return err
			}
			metrics.IncLedgerReplay(string(event.EventType))
			e.logger.Info().Str("saga_id", event.SagaID).Str("event_type", string(event.EventType)).
				Msg("Команда уже выполнена, возвращаем сохраненный ответ")
			reply = existing.Reply()
			return nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}

		result, err := mutation(ctx)
		if err != nil {
			return fmt.Errorf("ошибка выполнения команды %s: %w", event.EventType, err)
		}

		now := e.now()
		entry := &CommandLedger{
			ID:           uuid.NewString(),
			SagaID:       event.SagaID,
			EventType:    event.EventType,
			EventPayload: result.Payload,
			EventOutcome: result.Outcome,
			Status:       StatusMessagePublished,
			ReplyChannel: event.ReplyTo,
			CreateDate:   now,
			UpdateDate:   now,
		}
		if err := e.repo.Create(ctx, entry); err != nil {
			return err
		}

		e.logger.Info().Str("saga_id", event.SagaID).Str("event_type", string(event.EventType)).
			Str("outcome", string(result.Outcome)).Msg("Команда выполнена")
		reply = entry.Reply()
		return nil
	})
	if err != nil {
		return saga.Event{}, err
	}

	return reply, nil
}
