package lease

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Acquire(ctx context.Context, name, owner string, lockAtMostFor time.Duration) (bool, error) {
	args := m.Called(name, owner, lockAtMostFor)
	return args.Bool(0), args.Error(1)
}

func (m *MockLocker) Release(ctx context.Context, name, owner string, keepUntil time.Time) error {
	return m.Called(name, owner, keepUntil).Error(0)
}

func TestGuardRunExecutesUnderLease(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	locker := new(MockLocker)
	locker.On("Acquire", "purge", "node-1", time.Hour).Return(true, nil).Once()
	locker.On("Release", "purge", "node-1", now.Add(5*time.Minute)).Return(nil).Once()

	guard := NewGuard(locker, "node-1")
	guard.now = func() time.Time { return now }

	called := false
	executed, err := guard.Run(context.Background(), "purge", 5*time.Minute, time.Hour, func(ctx context.Context) error {
		called = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, executed)
	assert.True(t, called)
	locker.AssertExpectations(t)
}

func TestGuardRunSkipsWhenLeaseHeld(t *testing.T) {
	locker := new(MockLocker)
	locker.On("Acquire", "purge", "node-2", time.Hour).Return(false, nil).Once()

	guard := NewGuard(locker, "node-2")

	executed, err := guard.Run(context.Background(), "purge", time.Minute, time.Hour, func(ctx context.Context) error {
		t.Fatal("функция не должна выполняться без аренды")
		return nil
	})

	require.NoError(t, err)
	assert.False(t, executed)
	locker.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
}

func TestGuardRunReleasesAfterFailure(t *testing.T) {
	locker := new(MockLocker)
	locker.On("Acquire", mock.Anything, mock.Anything, mock.Anything).Return(true, nil).Once()
	locker.On("Release", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	guard := NewGuard(locker, "node-1")
	jobErr := errors.New("purge failed")

	executed, err := guard.Run(context.Background(), "purge", time.Minute, time.Hour, func(ctx context.Context) error {
		return jobErr
	})

	assert.True(t, executed)
	assert.ErrorIs(t, err, jobErr)
	locker.AssertExpectations(t)
}

func TestNewOwnerIsUnique(t *testing.T) {
	assert.NotEqual(t, NewOwner(), NewOwner())
}
