// Package jobs периодические задания сервиса уведомлений
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/director74/macro_saga/notification-service/config"
	"github.com/director74/macro_saga/notification-service/internal/entity"
	"github.com/director74/macro_saga/pkg/metrics"
	"github.com/director74/macro_saga/pkg/scheduler"
)

const PurgeTaskName = "purge_old_notifications"

// Purger удаление уведомлений и журнала команд, созданных до cutoff
type Purger interface {
	PurgeCreatedBefore(ctx context.Context, cutoff time.Time) (entity.PurgeResult, error)
}

// PurgeJob удаляет записи старше срока хранения. Повтор команды старше этого срока
// выполнится заново, поэтому срок должен быть больше срока хранения саг.
type PurgeJob struct {
	purger        Purger
	retentionDays int
	now           func() time.Time
	logger        zerolog.Logger
}

func NewPurgeJob(purger Purger, retentionDays int, logger zerolog.Logger) *PurgeJob {
	return &PurgeJob{
		purger:        purger,
		retentionDays: retentionDays,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        logger,
	}
}

func (j *PurgeJob) Task(cfg config.PurgeConfig) scheduler.Task {
	return scheduler.Task{
		Name:           PurgeTaskName,
		Spec:           cfg.Cron,
		LockAtLeastFor: cfg.LockAtLeastFor,
		LockAtMostFor:  cfg.LockAtMostFor,
		Run:            j.Run,
	}
}

func (j *PurgeJob) Run(ctx context.Context) error {
	cutoff := j.now().AddDate(0, 0, -j.retentionDays)

	result, err := j.purger.PurgeCreatedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("ошибка удаления старых уведомлений: %w", err)
	}

	metrics.AddPurgedRows("notifications", result.Notifications)
	metrics.AddPurgedRows("command_ledgers", result.Ledger)

	j.logger.Info().Time("cutoff", cutoff).
		Int64("notifications", result.Notifications).
		Int64("ledger", result.Ledger).
		Msg("Старые уведомления удалены")
	return nil
}
