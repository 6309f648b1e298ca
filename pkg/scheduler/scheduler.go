package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/director74/macro_saga/pkg/metrics"
)

// Runner выполняет функцию под распределенной арендой (lease.Guard)
type Runner interface {
	Run(ctx context.Context, name string, lockAtLeastFor, lockAtMostFor time.Duration, fn func(ctx context.Context) error) (bool, error)
}

// Task периодическое задание. Name служит и именем аренды:
// на всех экземплярах сервиса задание выполняется только один раз.
type Task struct {
	Name           string
	Spec           string
	LockAtLeastFor time.Duration
	LockAtMostFor  time.Duration
	Run            func(ctx context.Context) error
}

// Scheduler запускает задания по cron-расписанию
type Scheduler struct {
	cron   *cron.Cron
	parser cron.Parser
	guard  Runner
	ctx    context.Context
	logger zerolog.Logger
}

func New(guard Runner, logger zerolog.Logger) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	cronLogger := cronLogger{logger: logger}

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		parser: parser,
		guard:  guard,
		ctx:    context.Background(),
		logger: logger,
	}
}

// Add регистрирует задание. Ошибка, если выражение cron некорректно.
func (s *Scheduler) Add(task Task) error {
	schedule, err := s.parser.Parse(task.Spec)
	if err != nil {
		return fmt.Errorf("некорректное расписание %q задания %s: %w", task.Spec, task.Name, err)
	}

	s.cron.Schedule(schedule, cron.FuncJob(func() {
		if s.ctx.Err() != nil {
			return
		}
		_ = s.RunTask(s.ctx, task)
	}))

	s.logger.Info().Str("task", task.Name).Str("cron", task.Spec).
		Time("next_run", schedule.Next(time.Now().UTC())).Msg("Задание запланировано")
	return nil
}

// Run запускает расписание и блокируется до отмены ctx. Выполняющиеся задания дожидаются завершения.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info().Int("tasks", len(s.cron.Entries())).Msg("Планировщик запущен")

	<-ctx.Done()

	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info().Msg("Планировщик остановлен")
	return nil
}

// RunTask выполняет задание один раз под арендой
func (s *Scheduler) RunTask(ctx context.Context, task Task) error {
	log := s.logger.With().Str("task", task.Name).Logger()
	started := time.Now()

	executed, err := s.guard.Run(ctx, task.Name, task.LockAtLeastFor, task.LockAtMostFor, task.Run)
	switch {
	case err != nil:
		metrics.IncScheduledRun(task.Name, "failed")
		log.Error().Err(err).Dur("elapsed", time.Since(started)).Msg("Задание завершилось с ошибкой")
		return err
	case !executed:
		metrics.IncScheduledRun(task.Name, "skipped")
		log.Debug().Msg("Аренда занята другим экземпляром, задание пропущено")
		return nil
	default:
		metrics.IncScheduledRun(task.Name, "executed")
		log.Info().Dur("elapsed", time.Since(started)).Msg("Задание выполнено")
		return nil
	}
}

// cronLogger пишет сообщения cron в zerolog
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
