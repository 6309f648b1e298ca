package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/director74/macro_saga/pkg/database"
	apperrors "github.com/director74/macro_saga/pkg/errors"
	"github.com/director74/macro_saga/pkg/metrics"
)

var errSagaFinished = errors.New("сага уже завершена")

// Orchestrator универсальный движок: интерпретирует любой StepGraph.
// Состояние хранится только в Store, поэтому экземпляров может быть сколько угодно.
type Orchestrator struct {
	graph      *StepGraph
	store      Store
	tx         database.Transactor
	publisher  Publisher
	retry      RetryPolicy
	systemUser string
	now        func() time.Time
	newID      func() string
	logger     zerolog.Logger
}

// Option настройка оркестратора
type Option func(*Orchestrator)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Orchestrator) { o.retry = p }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithSystemUser имя, которым подписываются изменения, сделанные движком
func WithSystemUser(user string) Option {
	return func(o *Orchestrator) { o.systemUser = user }
}

func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

func NewOrchestrator(graph *StepGraph, store Store, tx database.Transactor, publisher Publisher, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		graph:      graph,
		store:      store,
		tx:         tx,
		publisher:  publisher,
		retry:      DefaultRetryPolicy(),
		systemUser: "MACRO_API",
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
		logger:     logger.With().Str("saga_name", graph.SagaName()).Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) SagaName() string {
	return o.graph.SagaName()
}

func (o *Orchestrator) Topic() string {
	return o.graph.Topic()
}

// StartSaga создает сагу и синхронно выполняет начальный шаг.
// Возвращает ConflictError, если по тому же correlationKey уже идет сага этого типа.
func (o *Orchestrator) StartSaga(ctx context.Context, payload, correlationKey, user string) (*Saga, error) {
	if !json.Valid([]byte(payload)) {
		return nil, apperrors.NewValidationError("payload", "ожидается JSON")
	}

	now := NextStamp(time.Time{}, o.now())
	s := &Saga{
		SagaID:         o.newID(),
		SagaName:       o.graph.SagaName(),
		CorrelationKey: correlationKey,
		Status:         StatusStarted,
		SagaState:      EventInitiated,
		Payload:        datatypes.JSON(payload),
		CreateUser:     user,
		UpdateUser:     user,
		CreateDate:     now,
		UpdateDate:     now,
	}
	first := &SagaEventState{
		ID:           o.newID(),
		SagaID:       s.SagaID,
		StepNumber:   1,
		EventType:    EventInitiated,
		EventOutcome: OutcomeInitiateSuccess,
		EventPayload: payload,
		CreateUser:   user,
		CreateDate:   now,
	}

	err := o.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if correlationKey != "" {
			inFlight, err := o.store.CountInFlight(ctx, s.SagaName, correlationKey)
			if err != nil {
				return fmt.Errorf("ошибка проверки активных саг: %w", err)
			}
			if inFlight > 0 {
				return apperrors.NewConflictError(fmt.Sprintf("сага %s для %s уже выполняется", s.SagaName, correlationKey))
			}
		}
		return o.store.Create(ctx, s, first)
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info().Str("saga_id", s.SagaID).Str("correlation_key", correlationKey).Msg("Сага создана")

	// Ошибка начального шага не возвращается вызывающему: сага уже сохранена
	// и будет подобрана повторной доставкой или сторожем зависших саг.
	initiated := Event{
		SagaID:       s.SagaID,
		EventType:    EventInitiated,
		EventOutcome: OutcomeInitiateSuccess,
		EventPayload: payload,
	}
	if err := o.advance(ctx, initiated, true); err != nil {
		o.logger.Error().Err(err).Str("saga_id", s.SagaID).Msg("Начальный шаг саги не выполнен")
	}

	return s, nil
}

// HandleEvent продвигает сагу по входящему событию. Возвращает ошибку только если
// шаг не удалось сохранить, тогда слой доставки может повторить сообщение.
func (o *Orchestrator) HandleEvent(ctx context.Context, event Event) error {
	return o.advance(ctx, event, false)
}

// advance общий путь HandleEvent и начального шага. Для начального шага строка
// INITIATED уже записана в StartSaga, так что совпадение с ней не считается повтором.
func (o *Orchestrator) advance(ctx context.Context, event Event, begin bool) error {
	log := o.logger.With().
		Str("saga_id", event.SagaID).
		Str("event_type", string(event.EventType)).
		Str("event_outcome", string(event.EventOutcome)).
		Logger()

	tr, known, matched := o.graph.Lookup(event.EventType, event.EventOutcome)
	if !known {
		log.Debug().Msg("Тип события не относится к этой саге, пропускаем")
		return nil
	}
	if !matched {
		log.Warn().Msg("Исход события не описан в графе саги, пропускаем")
		return nil
	}

	var (
		current   *Saga
		duplicate bool
	)
	persist := func(ctx context.Context) error {
		return o.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			s, dup, err := o.applyTransition(ctx, tr, event)
			if err != nil {
				return err
			}
			current, duplicate = s, dup
			return nil
		})
	}

	err := o.retry.Do(ctx, persist, func(attempt int, err error) {
		metrics.IncSagaPersistRetry(o.graph.SagaName())
		log.Warn().Err(err).Int("attempt", attempt).Msg("Повторная попытка сохранения шага саги")
	})
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		log.Error().Msg("Сага не найдена в БД, событие пропущено")
		return nil
	case errors.Is(err, errSagaFinished):
		log.Info().Msg("Сага уже завершена, событие пропущено")
		return nil
	case err != nil:
		log.Error().Err(err).Msg("Не удалось сохранить шаг саги")
		return fmt.Errorf("сохранение шага саги %s: %w: %w", event.SagaID, apperrors.ErrTransientPersistence, err)
	}

	if duplicate && !begin {
		metrics.IncSagaDuplicate(o.graph.SagaName())
		log.Info().Msg("Повторная доставка события, запись истории пропущена")
	}
	metrics.IncSagaEvent(o.graph.SagaName(), string(event.EventType), string(event.EventOutcome))

	if tr.Terminal {
		metrics.IncSagaCompleted(o.graph.SagaName(), string(StatusCompleted))
		log.Info().Msg("Сага завершена")
		return nil
	}

	cmd, err := tr.Handler(ctx, current, event)
	if err != nil {
		log.Error().Err(err).Msg("Обработчик шага вернул ошибку, следующее событие не отправлено")
		return nil
	}
	if cmd != nil {
		o.publish(ctx, current.SagaID, cmd, log)
	}
	return nil
}

// applyTransition выполняется внутри транзакции: блокирует сагу, проверяет дубликат,
// обновляет статус и добавляет строку истории
func (o *Orchestrator) applyTransition(ctx context.Context, tr Transition, event Event) (*Saga, bool, error) {
	s, err := o.store.LockByID(ctx, event.SagaID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, false, Permanent(err)
		}
		return nil, false, err
	}
	if s.Status.Terminal() {
		return nil, false, Permanent(errSagaFinished)
	}

	last, err := o.store.LastStepNumber(ctx, s.SagaID)
	if err != nil {
		return nil, false, err
	}
	dup, err := o.store.EventStateExists(ctx, s.SagaID, event.EventOutcome, event.EventType, last)
	if err != nil {
		return nil, false, err
	}

	if tr.Terminal {
		s.Status = StatusCompleted
		s.SagaState = event.EventType
	} else {
		s.Status = StatusInProgress
		s.SagaState = tr.To
	}
	s.UpdateUser = o.systemUser
	s.UpdateDate = NextStamp(s.UpdateDate, o.now())

	if err := o.store.UpdateProgress(ctx, s); err != nil {
		return nil, false, err
	}

	if !dup {
		state := &SagaEventState{
			ID:           o.newID(),
			SagaID:       s.SagaID,
			StepNumber:   last + 1,
			EventType:    event.EventType,
			EventOutcome: event.EventOutcome,
			EventPayload: event.EventPayload,
			CreateUser:   o.systemUser,
			CreateDate:   s.UpdateDate,
		}
		if err := o.store.AppendEventState(ctx, state); err != nil {
			return nil, false, err
		}
	}

	return s, dup, nil
}

func (o *Orchestrator) publish(ctx context.Context, sagaID string, cmd *Command, log zerolog.Logger) {
	next := Event{
		SagaID:       sagaID,
		EventType:    cmd.EventType,
		EventPayload: cmd.Payload,
		ReplyTo:      o.graph.Topic(),
	}

	if err := o.publisher.Publish(ctx, cmd.Topic, next); err != nil {
		metrics.IncPublishFailure(cmd.Topic)
		log.Error().Err(err).Str("topic", cmd.Topic).Str("next_event_type", string(cmd.EventType)).
			Msg("Не удалось опубликовать событие, сага остается на последнем сохраненном шаге")
		return
	}

	log.Info().Str("topic", cmd.Topic).Str("next_event_type", string(cmd.EventType)).Msg("Событие опубликовано")
}

// ForceStop переводит незавершенную сагу в FORCE_STOPPED. Для завершенной ничего не делает.
func (o *Orchestrator) ForceStop(ctx context.Context, sagaID string) error {
	stopped := false
	err := o.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		s, err := o.store.LockByID(ctx, sagaID)
		if err != nil {
			return err
		}
		if s.Status.Terminal() {
			return nil
		}
		s.Status = StatusForceStopped
		s.UpdateUser = o.systemUser
		s.UpdateDate = NextStamp(s.UpdateDate, o.now())
		stopped = true
		return o.store.UpdateProgress(ctx, s)
	})
	if err != nil {
		return err
	}

	if stopped {
		metrics.IncSagaCompleted(o.graph.SagaName(), string(StatusForceStopped))
		o.logger.Warn().Str("saga_id", sagaID).Msg("Сага принудительно остановлена")
	}
	return nil
}

// ReplayReport итог прохода сторожа зависших саг
type ReplayReport struct {
	Replayed     int
	ForceStopped int
	Failed       int
}

// ReplayStale повторяет последний шаг саг, которые не менялись дольше staleAfter:
// обработчик шага заново публикует ожидаемую команду, а журнал исполнителя делает
// повтор безопасным. Саги старше forceStopAfter (если задан) останавливаются.
func (o *Orchestrator) ReplayStale(ctx context.Context, staleAfter, forceStopAfter time.Duration, limit int) (ReplayReport, error) {
	var report ReplayReport
	now := o.now()

	sagas, err := o.store.FindStale(ctx, o.graph.SagaName(), now.Add(-staleAfter), limit)
	if err != nil {
		return report, fmt.Errorf("ошибка поиска зависших саг: %w", err)
	}

	for _, s := range sagas {
		log := o.logger.With().Str("saga_id", s.SagaID).Str("saga_state", string(s.SagaState)).Logger()

		if forceStopAfter > 0 && s.CreateDate.Before(now.Add(-forceStopAfter)) {
			if err := o.ForceStop(ctx, s.SagaID); err != nil {
				log.Error().Err(err).Msg("Не удалось остановить зависшую сагу")
				report.Failed++
				continue
			}
			report.ForceStopped++
			continue
		}

		last, err := o.store.LastEventState(ctx, s.SagaID)
		if err != nil {
			log.Error().Err(err).Msg("Не удалось прочитать историю зависшей саги")
			report.Failed++
			continue
		}

		log.Warn().Msg("Повторяем последний шаг зависшей саги")
		replay := Event{
			SagaID:       s.SagaID,
			EventType:    last.EventType,
			EventOutcome: last.EventOutcome,
			EventPayload: last.EventPayload,
		}
		if err := o.HandleEvent(ctx, replay); err != nil {
			report.Failed++
			continue
		}
		report.Replayed++
	}

	return report, nil
}
