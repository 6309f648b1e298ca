package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/director74/macro_saga/notification-service/internal/entity"
	"github.com/director74/macro_saga/pkg/database"
	apperrors "github.com/director74/macro_saga/pkg/errors"
	"github.com/director74/macro_saga/pkg/ledger"
)

// NotificationRepository доступ к хранилищу уведомлений
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{
		db: db,
	}
}

// Create пишет в транзакцию из ctx, если она есть
func (r *NotificationRepository) Create(ctx context.Context, notification *entity.Notification) error {
	if err := database.Conn(ctx, r.db).Create(notification).Error; err != nil {
		return fmt.Errorf("ошибка при создании уведомления: %w", err)
	}
	return nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*entity.Notification, error) {
	var notification entity.Notification
	err := database.Conn(ctx, r.db).Where("id = ?", id).Take(&notification).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFoundError("Уведомление", id)
	}
	if err != nil {
		return nil, err
	}
	return &notification, nil
}

func (r *NotificationRepository) filtered(ctx context.Context, filter entity.NotificationFilter) *gorm.DB {
	query := database.Conn(ctx, r.db).Model(&entity.Notification{})
	if filter.SagaID != "" {
		query = query.Where("saga_id = ?", filter.SagaID)
	}
	return query
}

func (r *NotificationRepository) List(ctx context.Context, filter entity.NotificationFilter) ([]entity.Notification, int64, error) {
	var total int64
	if err := r.filtered(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var notifications []entity.Notification
	err := r.filtered(ctx, filter).
		Order("create_date DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&notifications).Error
	if err != nil {
		return nil, 0, err
	}

	return notifications, total, nil
}

// PurgeCreatedBefore удаляет в одной транзакции уведомления и записи журнала команд,
// созданные строго раньше cutoff
func (r *NotificationRepository) PurgeCreatedBefore(ctx context.Context, cutoff time.Time) (entity.PurgeResult, error) {
	var res entity.PurgeResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("create_date < ?", cutoff).Delete(&entity.Notification{})
		if result.Error != nil {
			return fmt.Errorf("ошибка удаления уведомлений: %w", result.Error)
		}
		res.Notifications = result.RowsAffected

		result = tx.Where("create_date < ?", cutoff).Delete(&ledger.CommandLedger{})
		if result.Error != nil {
			return fmt.Errorf("ошибка удаления журнала команд: %w", result.Error)
		}
		res.Ledger = result.RowsAffected

		return nil
	})
	if err != nil {
		return entity.PurgeResult{}, err
	}
	return res, nil
}
