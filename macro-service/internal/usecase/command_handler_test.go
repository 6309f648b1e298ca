package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/director74/macro_saga/macro-service/internal/entity"
	apperrors "github.com/director74/macro_saga/pkg/errors"
	"github.com/director74/macro_saga/pkg/ledger"
	"github.com/director74/macro_saga/pkg/ledger/ledgertest"
	"github.com/director74/macro_saga/pkg/logger"
	"github.com/director74/macro_saga/pkg/saga"
	"github.com/director74/macro_saga/pkg/saga/sagatest"
)

var handlerNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type handlerFixture struct {
	handler   *MacroCommandHandler
	macros    *memoryMacros
	ledger    *ledgertest.MemoryRepository
	publisher *sagatest.RecordingPublisher
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{
		macros:    newMemoryMacros(),
		ledger:    ledgertest.NewMemoryRepository(),
		publisher: &sagatest.RecordingPublisher{},
	}
	executor := ledger.NewExecutor(f.ledger, sagatest.Transactor{}, logger.Nop())
	f.handler = NewMacroCommandHandler(executor, f.macros, f.publisher, "MACRO_API", logger.Nop())
	f.handler.now = func() time.Time { return handlerNow }
	f.handler.newID = func() string { return "m-1" }
	return f
}

func commandEvent(t *testing.T, eventType saga.EventType, macro entity.Macro, replyTo string) saga.Event {
	t.Helper()
	payload, err := json.Marshal(macro)
	require.NoError(t, err)
	return saga.Event{SagaID: "saga-1", EventType: eventType, EventPayload: string(payload), ReplyTo: replyTo}
}

func TestHandleCreateMacro(t *testing.T) {
	f := newHandlerFixture()
	macro := validMacro()
	macro.CreateUser = "alice"
	macro.UpdateUser = "alice"

	err := f.handler.Handle(context.Background(), commandEvent(t, saga.EventCreateMacro, macro, saga.TopicMacroCreateSaga))
	require.NoError(t, err)

	stored, err := f.macros.GetByID(context.Background(), "m-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.MacroText)
	assert.Equal(t, handlerNow, stored.CreateDate)
	assert.Equal(t, "alice", stored.CreateUser)

	reply, ok := f.publisher.Last()
	require.True(t, ok)
	assert.Equal(t, saga.TopicMacroCreateSaga, reply.Topic)
	assert.Equal(t, "saga-1", reply.Event.SagaID)
	assert.Equal(t, saga.EventCreateMacro, reply.Event.EventType)
	assert.Equal(t, saga.OutcomeMacroCreated, reply.Event.EventOutcome)
	assert.Empty(t, reply.Event.ReplyTo)
	assert.Equal(t, "m-1", payloadMacro(t, reply.Event.EventPayload).MacroID)
}

func TestHandleCreateMacroDefaultsAuditUsers(t *testing.T) {
	f := newHandlerFixture()

	require.NoError(t, f.handler.Handle(context.Background(), commandEvent(t, saga.EventCreateMacro, validMacro(), saga.TopicMacroCreateSaga)))

	stored, err := f.macros.GetByID(context.Background(), "m-1")
	require.NoError(t, err)
	assert.Equal(t, "MACRO_API", stored.CreateUser)
	assert.Equal(t, "MACRO_API", stored.UpdateUser)
}

func TestHandleDuplicateCommandRepliesIdentically(t *testing.T) {
	f := newHandlerFixture()
	event := commandEvent(t, saga.EventCreateMacro, validMacro(), saga.TopicMacroCreateSaga)

	require.NoError(t, f.handler.Handle(context.Background(), event))
	// Второй вызов создал бы дубликат, если бы мутация выполнилась повторно
	f.handler.newID = func() string { return "m-2" }
	require.NoError(t, f.handler.Handle(context.Background(), event))

	assert.Equal(t, 1, f.macros.len())
	assert.Equal(t, 1, f.ledger.Len())
	assert.Equal(t, 1, f.ledger.Touched())

	events := f.publisher.Events()
	require.Len(t, events, 2)
	assert.Equal(t, events[0], events[1])
}

func TestHandleUpdateMacro(t *testing.T) {
	f := newHandlerFixture()
	existing := validMacro()
	existing.MacroID = "m-7"
	existing.CreateUser = "carol"
	existing.UpdateUser = "carol"
	existing.CreateDate = handlerNow.Add(-time.Hour)
	require.NoError(t, f.macros.Create(context.Background(), &existing))

	update := existing
	update.MacroText = "bye"
	update.UpdateUser = "alice"

	require.NoError(t, f.handler.Handle(context.Background(), commandEvent(t, saga.EventUpdateMacro, update, saga.TopicMacroUpdateSaga)))

	stored, err := f.macros.GetByID(context.Background(), "m-7")
	require.NoError(t, err)
	assert.Equal(t, "bye", stored.MacroText)
	assert.Equal(t, "carol", stored.CreateUser)
	assert.Equal(t, "alice", stored.UpdateUser)
	assert.Equal(t, handlerNow, stored.UpdateDate)

	reply, ok := f.publisher.Last()
	require.True(t, ok)
	assert.Equal(t, saga.TopicMacroUpdateSaga, reply.Topic)
	assert.Equal(t, saga.OutcomeMacroUpdated, reply.Event.EventOutcome)
}

func TestHandleUpdateMissingMacro(t *testing.T) {
	f := newHandlerFixture()
	update := validMacro()
	update.MacroID = "gone"
	event := commandEvent(t, saga.EventUpdateMacro, update, saga.TopicMacroUpdateSaga)

	require.NoError(t, f.handler.Handle(context.Background(), event))

	reply, ok := f.publisher.Last()
	require.True(t, ok)
	assert.Equal(t, saga.OutcomeMacroNotFound, reply.Event.EventOutcome)
	assert.Equal(t, event.EventPayload, reply.Event.EventPayload)
	assert.Equal(t, 1, f.ledger.Len())
}

func TestHandleUpdateDuplicateCodesIsAnOutcome(t *testing.T) {
	macros := new(MockMacroRepository)
	store := ledgertest.NewMemoryRepository()
	publisher := &sagatest.RecordingPublisher{}
	handler := NewMacroCommandHandler(ledger.NewExecutor(store, sagatest.Transactor{}, logger.Nop()), macros, publisher, "MACRO_API", logger.Nop())
	handler.now = func() time.Time { return handlerNow }

	existing := validMacro()
	existing.MacroID = "m-2"
	existing.MacroCode = "bye"
	macros.On("GetByID", mock.Anything, "m-2").Return(&existing, nil).Once()
	macros.On("Update", mock.Anything, mock.Anything).
		Return(fmt.Errorf("ошибка обновления макроса m-2: %w", gorm.ErrDuplicatedKey)).Once()

	update := validMacro()
	update.MacroID = "m-2"
	event := commandEvent(t, saga.EventUpdateMacro, update, saga.TopicMacroUpdateSaga)

	// Повторные доставки получают сохраненный ответ, а не ошибку
	for i := 0; i < 3; i++ {
		require.NoError(t, handler.Handle(context.Background(), event))
	}

	assert.Equal(t, 1, store.Len())
	events := publisher.Events()
	require.Len(t, events, 3)
	assert.Equal(t, events[0], events[1])
	assert.Equal(t, events[0], events[2])
	assert.Equal(t, saga.OutcomeMacroConflict, events[0].Event.EventOutcome)
	assert.Equal(t, saga.EventUpdateMacro, events[0].Event.EventType)
	assert.Equal(t, event.EventPayload, events[0].Event.EventPayload)
	macros.AssertExpectations(t)
}

func TestHandleCreateDuplicateCodesIsAnOutcome(t *testing.T) {
	f := newHandlerFixture()
	taken := validMacro()
	taken.MacroID = "m-0"
	require.NoError(t, f.macros.Create(context.Background(), &taken))
	event := commandEvent(t, saga.EventCreateMacro, validMacro(), saga.TopicMacroCreateSaga)

	require.NoError(t, f.handler.Handle(context.Background(), event))

	assert.Equal(t, 1, f.macros.len())
	assert.Equal(t, 1, f.ledger.Len())
	reply, ok := f.publisher.Last()
	require.True(t, ok)
	assert.Equal(t, saga.OutcomeMacroConflict, reply.Event.EventOutcome)
	assert.Equal(t, event.EventPayload, reply.Event.EventPayload)
}

func TestHandleIgnoresUnusableMessages(t *testing.T) {
	f := newHandlerFixture()

	// Нечитаемая полезная нагрузка
	err := f.handler.Handle(context.Background(), saga.Event{SagaID: "saga-1", EventType: saga.EventCreateMacro, EventPayload: "not json"})
	assert.NoError(t, err)

	// Чужой тип команды
	err = f.handler.Handle(context.Background(), commandEvent(t, saga.EventNotifyMacroCreate, validMacro(), saga.TopicMacroCreateSaga))
	assert.NoError(t, err)

	assert.Empty(t, f.publisher.Events())
	assert.Equal(t, 0, f.ledger.Len())
}

func TestHandleWithoutReplyToStillExecutes(t *testing.T) {
	f := newHandlerFixture()

	require.NoError(t, f.handler.Handle(context.Background(), commandEvent(t, saga.EventCreateMacro, validMacro(), "")))

	assert.Equal(t, 1, f.macros.len())
	assert.Empty(t, f.publisher.Events())
}

func TestHandlePublishFailureIsRetried(t *testing.T) {
	f := newHandlerFixture()
	f.publisher.Err = apperrors.ErrTransport
	event := commandEvent(t, saga.EventCreateMacro, validMacro(), saga.TopicMacroCreateSaga)

	err := f.handler.Handle(context.Background(), event)
	assert.ErrorIs(t, err, apperrors.ErrTransport)

	// Повторная доставка после восстановления брокера отдает сохраненный ответ
	f.publisher.Err = nil
	require.NoError(t, f.handler.Handle(context.Background(), event))
	assert.Equal(t, 1, f.macros.len())
	assert.Len(t, f.publisher.Events(), 1)
}

func TestHandleExecutorFailure(t *testing.T) {
	executor := new(MockCommandExecutor)
	publisher := &sagatest.RecordingPublisher{}
	handler := NewMacroCommandHandler(executor, newMemoryMacros(), publisher, "MACRO_API", logger.Nop())
	dbDown := errors.New("connection refused")

	executor.On("Execute", mock.Anything, mock.Anything, mock.Anything).Return(saga.Event{}, dbDown).Once()

	err := handler.Handle(context.Background(), commandEvent(t, saga.EventCreateMacro, validMacro(), saga.TopicMacroCreateSaga))

	assert.ErrorIs(t, err, dbDown)
	assert.Empty(t, publisher.Events())
	executor.AssertExpectations(t)
}
