// Package jobs периодические задания сервиса макросов: удаление старых саг и повтор зависших
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/director74/macro_saga/macro-service/config"
	"github.com/director74/macro_saga/macro-service/internal/entity"
	apperrors "github.com/director74/macro_saga/pkg/errors"
	"github.com/director74/macro_saga/pkg/metrics"
	"github.com/director74/macro_saga/pkg/saga"
	"github.com/director74/macro_saga/pkg/scheduler"
)

const (
	PurgeTaskName    = "purge_old_saga_records"
	WatchdogTaskName = "saga_watchdog"
)

// Purger удаление саг, созданных до cutoff, вместе с историей и журналом команд
type Purger interface {
	PurgeCreatedBefore(ctx context.Context, cutoff time.Time) (entity.PurgeResult, error)
}

// StaleReplayer оркестратор одного типа саги
type StaleReplayer interface {
	SagaName() string
	ReplayStale(ctx context.Context, staleAfter, forceStopAfter time.Duration, limit int) (saga.ReplayReport, error)
}

// PurgeJob удаляет записи старше срока хранения
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

// Task задание для планировщика
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
		return fmt.Errorf("ошибка удаления старых саг: %w", err)
	}

	metrics.AddPurgedRows("saga_event_states", result.EventStates)
	metrics.AddPurgedRows("command_ledgers", result.Ledger)
	metrics.AddPurgedRows("sagas", result.Sagas)

	j.logger.Info().Time("cutoff", cutoff).
		Int64("sagas", result.Sagas).
		Int64("event_states", result.EventStates).
		Int64("ledger", result.Ledger).
		Msg("Старые саги удалены")
	return nil
}

// WatchdogJob повторяет последний шаг зависших саг каждого типа
type WatchdogJob struct {
	replayers []StaleReplayer
	cfg       config.WatchdogConfig
	logger    zerolog.Logger
}

func NewWatchdogJob(cfg config.WatchdogConfig, logger zerolog.Logger, replayers ...StaleReplayer) *WatchdogJob {
	return &WatchdogJob{
		replayers: replayers,
		cfg:       cfg,
		logger:    logger,
	}
}

func (j *WatchdogJob) Task() scheduler.Task {
	return scheduler.Task{
		Name:          WatchdogTaskName,
		Spec:          j.cfg.Cron,
		LockAtMostFor: j.cfg.LockAtMostFor,
		Run:           j.Run,
	}
}

// Run ошибка одного типа саги не мешает обработать остальные
func (j *WatchdogJob) Run(ctx context.Context) error {
	errs := apperrors.NewErrorGroup()

	for _, r := range j.replayers {
		report, err := r.ReplayStale(ctx, j.cfg.StaleAfter, j.cfg.ForceStopAfter, j.cfg.BatchSize)
		if err != nil {
			errs.AddPrefix(err, r.SagaName())
			continue
		}

		if report.Replayed+report.ForceStopped+report.Failed > 0 {
			j.logger.Warn().Str("saga_name", r.SagaName()).
				Int("replayed", report.Replayed).
				Int("force_stopped", report.ForceStopped).
				Int("failed", report.Failed).
				Msg("Обработаны зависшие саги")
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
