package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/director74/macro_saga/macro-service/internal/entity"
	apperrors "github.com/director74/macro_saga/pkg/errors"
	"github.com/director74/macro_saga/pkg/saga"
)

func TestListSagaHistoryUnknownSaga(t *testing.T) {
	sagas := new(MockSagaRepository)
	uc := NewSagaUseCase(sagas)
	ctx := context.Background()

	sagas.On("FindByID", ctx, "missing").Return(nil, apperrors.NewNotFoundError("Сага", "missing")).Once()

	_, err := uc.ListSagaHistory(ctx, "missing")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	sagas.AssertNotCalled(t, "History", mock.Anything, mock.Anything)
}

func TestListSagaHistory(t *testing.T) {
	sagas := new(MockSagaRepository)
	uc := NewSagaUseCase(sagas)
	ctx := context.Background()
	history := []saga.SagaEventState{
		{StepNumber: 1, EventType: saga.EventInitiated, EventOutcome: saga.OutcomeInitiateSuccess},
		{StepNumber: 2, EventType: saga.EventCreateMacro, EventOutcome: saga.OutcomeMacroCreated},
	}

	sagas.On("FindByID", ctx, "saga-1").Return(&saga.Saga{SagaID: "saga-1"}, nil).Once()
	sagas.On("History", ctx, "saga-1").Return(history, nil).Once()

	got, err := uc.ListSagaHistory(ctx, "saga-1")

	require.NoError(t, err)
	assert.Equal(t, history, got)
}

func TestUpdateSagaUsesOptimisticStamp(t *testing.T) {
	sagas := new(MockSagaRepository)
	uc := NewSagaUseCase(sagas)
	ctx := context.Background()

	expected := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	// Часы узла отстают: новая отметка все равно строго больше ожидаемой
	uc.now = func() time.Time { return expected.Add(-time.Minute) }
	next := expected.Add(time.Microsecond)

	payload := json.RawMessage(`{"macroText":"fixed"}`)
	sagas.On("UpdatePayload", ctx, "saga-1", datatypes.JSON(payload), "alice", expected, next).
		Return(&saga.Saga{SagaID: "saga-1", UpdateDate: next}, nil).Once()

	got, err := uc.UpdateSaga(ctx, "saga-1", entity.UpdateSagaRequest{
		Payload:    payload,
		UpdateDate: expected.In(time.FixedZone("MSK", 3*3600)),
	}, "alice")

	require.NoError(t, err)
	assert.Equal(t, next, got.UpdateDate)
	sagas.AssertExpectations(t)
}

func TestUpdateSagaRejectsInvalidPayload(t *testing.T) {
	sagas := new(MockSagaRepository)
	uc := NewSagaUseCase(sagas)

	_, err := uc.UpdateSaga(context.Background(), "saga-1", entity.UpdateSagaRequest{
		Payload:    json.RawMessage(`{broken`),
		UpdateDate: time.Now(),
	}, "alice")

	assert.ErrorIs(t, err, apperrors.ErrValidation)
	sagas.AssertNotCalled(t, "UpdatePayload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateSagaStaleStamp(t *testing.T) {
	sagas := new(MockSagaRepository)
	uc := NewSagaUseCase(sagas)
	ctx := context.Background()

	sagas.On("UpdatePayload", ctx, "saga-1", mock.Anything, "alice", mock.Anything, mock.Anything).
		Return(nil, apperrors.NewConflictError("сага была изменена")).Once()

	_, err := uc.UpdateSaga(ctx, "saga-1", entity.UpdateSagaRequest{
		Payload:    json.RawMessage(`{}`),
		UpdateDate: time.Now(),
	}, "alice")

	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestListSagasDefaultsPaging(t *testing.T) {
	sagas := new(MockSagaRepository)
	uc := NewSagaUseCase(sagas)
	ctx := context.Background()

	sagas.On("List", ctx, entity.SagaFilter{Status: "STARTED", Page: 0, Size: 10}).
		Return([]saga.Saga{{SagaID: "saga-1"}}, int64(31), nil).Once()

	page, err := uc.ListSagas(ctx, entity.SagaFilter{Status: "STARTED", Page: -3})

	require.NoError(t, err)
	assert.Equal(t, 0, page.Page)
	assert.Equal(t, 10, page.Size)
	assert.Equal(t, int64(31), page.Total)
	assert.Len(t, page.Items, 1)
}
