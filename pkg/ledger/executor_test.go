package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/director74/macro_saga/pkg/errors"
	"github.com/director74/macro_saga/pkg/ledger"
	"github.com/director74/macro_saga/pkg/ledger/ledgertest"
	"github.com/director74/macro_saga/pkg/logger"
	"github.com/director74/macro_saga/pkg/saga"
	"github.com/director74/macro_saga/pkg/saga/sagatest"
)

func TestExecuteRunsMutationOnce(t *testing.T) {
	repo := ledgertest.NewMemoryRepository()
	executor := ledger.NewExecutor(repo, sagatest.Transactor{}, logger.Nop())

	calls := 0
	mutation := func(ctx context.Context) (ledger.Result, error) {
		calls++
		return ledger.Result{Outcome: saga.OutcomeMacroCreated, Payload: `{"macroId":"m-1"}`}, nil
	}
	event := saga.Event{SagaID: "s-1", EventType: saga.EventCreateMacro, EventPayload: "{}", ReplyTo: saga.TopicMacroCreateSaga}

	first, err := executor.Execute(context.Background(), event, mutation)
	require.NoError(t, err)
	second, err := executor.Execute(context.Background(), event, mutation)
	require.NoError(t, err)

	// Изменение выполнено ровно один раз, ответы совпадают побайтно
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, repo.Touched())

	firstBody, err := first.Marshal()
	require.NoError(t, err)
	secondBody, err := second.Marshal()
	require.NoError(t, err)
	assert.Equal(t, firstBody, secondBody)

	assert.Equal(t, "s-1", first.SagaID)
	assert.Equal(t, saga.EventCreateMacro, first.EventType)
	assert.Equal(t, saga.OutcomeMacroCreated, first.EventOutcome)
	assert.Empty(t, first.ReplyTo)

	entry, err := repo.FindBySagaAndType(context.Background(), "s-1", saga.EventCreateMacro)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusMessagePublished, entry.Status)
	assert.Equal(t, saga.TopicMacroCreateSaga, entry.ReplyChannel)
}

func TestExecuteDistinguishesEventTypes(t *testing.T) {
	repo := ledgertest.NewMemoryRepository()
	executor := ledger.NewExecutor(repo, sagatest.Transactor{}, logger.Nop())

	calls := 0
	mutation := func(ctx context.Context) (ledger.Result, error) {
		calls++
		return ledger.Result{Outcome: saga.OutcomeNotified}, nil
	}

	_, err := executor.Execute(context.Background(), saga.Event{SagaID: "s-1", EventType: saga.EventNotifyMacroCreate}, mutation)
	require.NoError(t, err)
	_, err = executor.Execute(context.Background(), saga.Event{SagaID: "s-1", EventType: saga.EventNotifyMacroUpdate}, mutation)
	require.NoError(t, err)
	_, err = executor.Execute(context.Background(), saga.Event{SagaID: "s-2", EventType: saga.EventNotifyMacroCreate}, mutation)
	require.NoError(t, err)

	assert.Equal(t, 3, calls)
}

func TestExecuteDomainFailureIsRecorded(t *testing.T) {
	repo := ledgertest.NewMemoryRepository()
	executor := ledger.NewExecutor(repo, sagatest.Transactor{}, logger.Nop())

	reply, err := executor.Execute(context.Background(), saga.Event{SagaID: "s-1", EventType: saga.EventUpdateMacro, EventPayload: `{"macroId":"gone"}`},
		func(ctx context.Context) (ledger.Result, error) {
			return ledger.Result{Outcome: saga.OutcomeMacroNotFound, Payload: `{"macroId":"gone"}`}, nil
		})

	require.NoError(t, err)
	assert.Equal(t, saga.OutcomeMacroNotFound, reply.EventOutcome)
	_, err = repo.FindBySagaAndType(context.Background(), "s-1", saga.EventUpdateMacro)
	assert.NoError(t, err)
}

func TestExecuteMutationErrorLeavesNoEntry(t *testing.T) {
	repo := ledgertest.NewMemoryRepository()
	executor := ledger.NewExecutor(repo, sagatest.Transactor{}, logger.Nop())
	dbErr := errors.New("connection reset")

	_, err := executor.Execute(context.Background(), saga.Event{SagaID: "s-1", EventType: saga.EventCreateMacro},
		func(ctx context.Context) (ledger.Result, error) {
			return ledger.Result{}, dbErr
		})

	assert.ErrorIs(t, err, dbErr)
	_, err = repo.FindBySagaAndType(context.Background(), "s-1", saga.EventCreateMacro)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
