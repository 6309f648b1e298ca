package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/director74/macro_saga/macro-service/config"
	"github.com/director74/macro_saga/macro-service/internal/entity"
	"github.com/director74/macro_saga/pkg/logger"
	"github.com/director74/macro_saga/pkg/saga"
	"github.com/director74/macro_saga/pkg/scheduler"
)

type MockPurger struct {
	mock.Mock
}

func (m *MockPurger) PurgeCreatedBefore(ctx context.Context, cutoff time.Time) (entity.PurgeResult, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(entity.PurgeResult), args.Error(1)
}

type MockReplayer struct {
	mock.Mock
}

func (m *MockReplayer) SagaName() string {
	return m.Called().String(0)
}

func (m *MockReplayer) ReplayStale(ctx context.Context, staleAfter, forceStopAfter time.Duration, limit int) (saga.ReplayReport, error) {
	args := m.Called(ctx, staleAfter, forceStopAfter, limit)
	return args.Get(0).(saga.ReplayReport), args.Error(1)
}

func TestPurgeJobCutoff(t *testing.T) {
	purger := new(MockPurger)
	job := NewPurgeJob(purger, 30, logger.Nop())
	now := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	purger.On("PurgeCreatedBefore", mock.Anything, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)).
		Return(entity.PurgeResult{EventStates: 12, Ledger: 4, Sagas: 3}, nil).Once()

	require.NoError(t, job.Run(context.Background()))
	purger.AssertExpectations(t)
}

func TestPurgeJobError(t *testing.T) {
	purger := new(MockPurger)
	job := NewPurgeJob(purger, 30, logger.Nop())
	dbDown := errors.New("connection refused")

	purger.On("PurgeCreatedBefore", mock.Anything, mock.Anything).Return(entity.PurgeResult{}, dbDown).Once()

	assert.ErrorIs(t, job.Run(context.Background()), dbDown)
}

func TestWatchdogJobRunsEverySagaType(t *testing.T) {
	cfg := config.WatchdogConfig{StaleAfter: 15 * time.Minute, ForceStopAfter: 24 * time.Hour, BatchSize: 100}
	create := new(MockReplayer)
	update := new(MockReplayer)
	storeDown := errors.New("store down")

	create.On("SagaName").Return(saga.MacroCreateSaga)
	create.On("ReplayStale", mock.Anything, cfg.StaleAfter, cfg.ForceStopAfter, 100).
		Return(saga.ReplayReport{}, storeDown).Once()
	update.On("SagaName").Return(saga.MacroUpdateSaga)
	update.On("ReplayStale", mock.Anything, cfg.StaleAfter, cfg.ForceStopAfter, 100).
		Return(saga.ReplayReport{Replayed: 2, ForceStopped: 1}, nil).Once()

	job := NewWatchdogJob(cfg, logger.Nop(), create, update)
	err := job.Run(context.Background())

	assert.ErrorIs(t, err, storeDown)
	assert.ErrorContains(t, err, saga.MacroCreateSaga)
	create.AssertExpectations(t)
	update.AssertExpectations(t)
}

func TestTasksAreSchedulable(t *testing.T) {
	s := scheduler.New(nil, logger.Nop())

	purge := NewPurgeJob(new(MockPurger), 30, logger.Nop()).Task(config.PurgeConfig{Cron: "0 0 * * *", LockAtMostFor: time.Hour})
	assert.Equal(t, PurgeTaskName, purge.Name)
	assert.NoError(t, s.Add(purge))

	watchdog := NewWatchdogJob(config.WatchdogConfig{Cron: "*/5 * * * *"}, logger.Nop()).Task()
	assert.Equal(t, WatchdogTaskName, watchdog.Name)
	assert.NoError(t, s.Add(watchdog))
}
