package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/director74/macro_saga/pkg/database"
	apperrors "github.com/director74/macro_saga/pkg/errors"
	"github.com/director74/macro_saga/pkg/saga"
)

// Repository хранилище журнала команд
type Repository interface {
	FindBySagaAndType(ctx context.Context, sagaID string, eventType saga.EventType) (*CommandLedger, error)
	Create(ctx context.Context, entry *CommandLedger) error
	Touch(ctx context.Context, id string, at time.Time) error
}

// GormRepository журнал команд в Postgres
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// FindBySagaAndType возвращает ErrNotFound, если команда еще не выполнялась
func (r *GormRepository) FindBySagaAndType(ctx context.Context, sagaID string, eventType saga.EventType) (*CommandLedger, error) {
	var entry CommandLedger
	err := database.Conn(ctx, r.db).
		Where("saga_id = ? AND event_type = ?", sagaID, eventType).
		Take(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("команда %s саги %s: %w", eventType, sagaID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка поиска в журнале команд: %w", err)
	}
	return &entry, nil
}

// Create при гонке двух доставок возвращает gorm.ErrDuplicatedKey
func (r *GormRepository) Create(ctx context.Context, entry *CommandLedger) error {
	if err := database.Conn(ctx, r.db).Create(entry).Error; err != nil {
		return fmt.Errorf("ошибка записи в журнал команд: %w", err)
	}
	return nil
}

func (r *GormRepository) Touch(ctx context.Context, id string, at time.Time) error {
	result := database.Conn(ctx, r.db).Model(&CommandLedger{}).
		Where("id = ?", id).
		Update("update_date", at)
	if result.Error != nil {
		return fmt.Errorf("ошибка обновления журнала команд: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("запись журнала %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}
