package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/director74/macro_saga/macro-service/internal/entity"
	"github.com/director74/macro_saga/pkg/database"
	apperrors "github.com/director74/macro_saga/pkg/errors"
	"github.com/director74/macro_saga/pkg/ledger"
	"github.com/director74/macro_saga/pkg/saga"
)

var inFlightStatuses = []saga.Status{saga.StatusStarted, saga.StatusInProgress}

// SagaRepository хранилище саг и их истории на GORM. Реализует saga.Store.
type SagaRepository struct {
	db *gorm.DB
}

func NewSagaRepository(db *gorm.DB) *SagaRepository {
	return &SagaRepository{db: db}
}

var _ saga.Store = (*SagaRepository)(nil)

// Create сохраняет сагу и первую строку истории. Вызывается внутри транзакции.
func (r *SagaRepository) Create(ctx context.Context, s *saga.Saga, first *saga.SagaEventState) error {
	conn := database.Conn(ctx, r.db)
	if err := conn.Create(s).Error; err != nil {
		return fmt.Errorf("ошибка создания саги %s: %w", s.SagaID, err)
	}
	if err := conn.Create(first).Error; err != nil {
		return fmt.Errorf("ошибка записи истории саги %s: %w", s.SagaID, err)
	}
	return nil
}

func (r *SagaRepository) FindByID(ctx context.Context, sagaID string) (*saga.Saga, error) {
	return r.find(database.Conn(ctx, r.db), sagaID)
}

// LockByID читает сагу с SELECT ... FOR UPDATE: шаги одной саги выполняются по очереди
func (r *SagaRepository) LockByID(ctx context.Context, sagaID string) (*saga.Saga, error) {
	return r.find(database.Conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}), sagaID)
}

func (r *SagaRepository) find(conn *gorm.DB, sagaID string) (*saga.Saga, error) {
	var s saga.Saga
	if err := conn.Where("saga_id = ?", sagaID).Take(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("Сага", sagaID)
		}
		return nil, fmt.Errorf("ошибка получения саги %s: %w", sagaID, err)
	}
	return &s, nil
}

func (r *SagaRepository) LastStepNumber(ctx context.Context, sagaID string) (int, error) {
	var last int
	err := database.Conn(ctx, r.db).Model(&saga.SagaEventState{}).
		Select("COALESCE(MAX(step_number), 0)").
		Where("saga_id = ?", sagaID).
		Scan(&last).Error
	if err != nil {
		return 0, fmt.Errorf("ошибка получения номера шага саги %s: %w", sagaID, err)
	}
	return last, nil
}

func (r *SagaRepository) EventStateExists(ctx context.Context, sagaID string, outcome saga.EventOutcome, eventType saga.EventType, step int) (bool, error) {
	var count int64
	err := database.Conn(ctx, r.db).Model(&saga.SagaEventState{}).
		Where("saga_id = ? AND saga_event_outcome = ? AND saga_event_state = ? AND step_number = ?", sagaID, outcome, eventType, step).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("ошибка проверки истории саги %s: %w", sagaID, err)
	}
	return count > 0, nil
}

func (r *SagaRepository) AppendEventState(ctx context.Context, state *saga.SagaEventState) error {
	if err := database.Conn(ctx, r.db).Create(state).Error; err != nil {
		return fmt.Errorf("ошибка записи истории саги %s: %w", state.SagaID, err)
	}
	return nil
}

func (r *SagaRepository) UpdateProgress(ctx context.Context, s *saga.Saga) error {
	result := database.Conn(ctx, r.db).Model(&saga.Saga{}).
		Where("saga_id = ?", s.SagaID).
		Updates(map[string]interface{}{
			"status":      s.Status,
			"saga_state":  s.SagaState,
			"update_user": s.UpdateUser,
			"update_date": s.UpdateDate,
		})
	if result.Error != nil {
		return fmt.Errorf("ошибка обновления саги %s: %w", s.SagaID, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("Сага", s.SagaID)
	}
	return nil
}

func (r *SagaRepository) CountInFlight(ctx context.Context, sagaName, correlationKey string) (int64, error) {
	var count int64
	err := database.Conn(ctx, r.db).Model(&saga.Saga{}).
		Where("saga_name = ? AND correlation_key = ? AND status IN ?", sagaName, correlationKey, inFlightStatuses).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("ошибка поиска активных саг: %w", err)
	}
	return count, nil
}

func (r *SagaRepository) FindStale(ctx context.Context, sagaName string, updatedBefore time.Time, limit int) ([]saga.Saga, error) {
	var sagas []saga.Saga
	err := database.Conn(ctx, r.db).
		Where("saga_name = ? AND status IN ? AND update_date < ?", sagaName, inFlightStatuses, updatedBefore).
		Order("update_date").
		Limit(limit).
		Find(&sagas).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска зависших саг: %w", err)
	}
	return sagas, nil
}

func (r *SagaRepository) LastEventState(ctx context.Context, sagaID string) (*saga.SagaEventState, error) {
	var state saga.SagaEventState
	err := database.Conn(ctx, r.db).
		Where("saga_id = ?", sagaID).
		Order("step_number DESC").
		Take(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("История саги", sagaID)
		}
		return nil, fmt.Errorf("ошибка получения истории саги %s: %w", sagaID, err)
	}
	return &state, nil
}

// History история саги по возрастанию номера шага
func (r *SagaRepository) History(ctx context.Context, sagaID string) ([]saga.SagaEventState, error) {
	var states []saga.SagaEventState
	err := database.Conn(ctx, r.db).
		Where("saga_id = ?", sagaID).
		Order("step_number").
		Find(&states).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории саги %s: %w", sagaID, err)
	}
	return states, nil
}

// List страница саг по фильтру, новые первыми
func (r *SagaRepository) List(ctx context.Context, filter entity.SagaFilter) ([]saga.Saga, int64, error) {
	var total int64
	if err := r.filtered(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчета саг: %w", err)
	}

	var sagas []saga.Saga
	err := r.filtered(ctx, filter).
		Order("create_date DESC").
		Limit(filter.Size).
		Offset(filter.Page * filter.Size).
		Find(&sagas).Error
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения списка саг: %w", err)
	}
	return sagas, total, nil
}

func (r *SagaRepository) filtered(ctx context.Context, filter entity.SagaFilter) *gorm.DB {
	query := database.Conn(ctx, r.db).Model(&saga.Saga{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.SagaName != "" {
		query = query.Where("saga_name = ?", filter.SagaName)
	}
	if filter.CorrelationKey != "" {
		query = query.Where("correlation_key = ?", filter.CorrelationKey)
	}
	return query
}

// UpdatePayload условное обновление: проходит, только если update_date не менялся
// с момента чтения клиентом. Ноль затронутых строк означает конфликт либо отсутствие саги.
func (r *SagaRepository) UpdatePayload(ctx context.Context, sagaID string, payload datatypes.JSON, user string, expected, next time.Time) (*saga.Saga, error) {
	conn := database.Conn(ctx, r.db)

	result := conn.Model(&saga.Saga{}).
		Where("saga_id = ? AND update_date = ?", sagaID, expected).
		Updates(map[string]interface{}{
			"payload":     payload,
			"update_user": user,
			"update_date": next,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("ошибка обновления саги %s: %w", sagaID, result.Error)
	}

	if result.RowsAffected == 0 {
		if _, err := r.find(conn, sagaID); err != nil {
			return nil, err
		}
		return nil, apperrors.NewConflictError(fmt.Sprintf("сага %s была изменена другим запросом", sagaID))
	}

	return r.find(conn, sagaID)
}

// PurgeCreatedBefore удаляет в одной транзакции саги, созданные строго раньше cutoff,
// их историю и записи журнала команд
func (r *SagaRepository) PurgeCreatedBefore(ctx context.Context, cutoff time.Time) (entity.PurgeResult, error) {
	var res entity.PurgeResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		oldSagas := tx.Model(&saga.Saga{}).Select("saga_id").Where("create_date < ?", cutoff)

		result := tx.Where("saga_id IN (?)", oldSagas).Delete(&saga.SagaEventState{})
		if result.Error != nil {
			return fmt.Errorf("ошибка удаления истории саг: %w", result.Error)
		}
		res.EventStates = result.RowsAffected

		result = tx.Where("saga_id IN (?) OR create_date < ?", oldSagas, cutoff).Delete(&ledger.CommandLedger{})
		if result.Error != nil {
			return fmt.Errorf("ошибка удаления журнала команд: %w", result.Error)
		}
		res.Ledger = result.RowsAffected

		result = tx.Where("create_date < ?", cutoff).Delete(&saga.Saga{})
		if result.Error != nil {
			return fmt.Errorf("ошибка удаления саг: %w", result.Error)
		}
		res.Sagas = result.RowsAffected

		return nil
	})
	if err != nil {
		return entity.PurgeResult{}, err
	}
	return res, nil
}
