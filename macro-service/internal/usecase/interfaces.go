package usecase

import (
	"context"
	"time"

	"gorm.io/datatypes"

	"github.com/director74/macro_saga/macro-service/internal/entity"
	"github.com/director74/macro_saga/pkg/ledger"
	"github.com/director74/macro_saga/pkg/saga"
)

// MacroRepository хранилище макросов
type MacroRepository interface {
	Create(ctx context.Context, macro *entity.Macro) error
	GetByID(ctx context.Context, macroID string) (*entity.Macro, error)
	Update(ctx context.Context, macro *entity.Macro) error
	List(ctx context.Context, filter entity.MacroFilter) ([]entity.Macro, error)
	ExistsByCodes(ctx context.Context, businessUseTypeCode, macroTypeCode, macroCode, excludeID string) (bool, error)
}

// SagaRepository чтение саг и условное изменение полезной нагрузки
type SagaRepository interface {
	FindByID(ctx context.Context, sagaID string) (*saga.Saga, error)
	History(ctx context.Context, sagaID string) ([]saga.SagaEventState, error)
	List(ctx context.Context, filter entity.SagaFilter) ([]saga.Saga, int64, error)
	UpdatePayload(ctx context.Context, sagaID string, payload datatypes.JSON, user string, expected, next time.Time) (*saga.Saga, error)
}

// SagaPurger удаление старых саг
type SagaPurger interface {
	PurgeCreatedBefore(ctx context.Context, cutoff time.Time) (entity.PurgeResult, error)
}

// SagaStarter запуск саги одного типа
type SagaStarter interface {
	SagaName() string
	StartSaga(ctx context.Context, payload, correlationKey, user string) (*saga.Saga, error)
}

// CommandExecutor идемпотентное выполнение команды
type CommandExecutor interface {
	Execute(ctx context.Context, event saga.Event, mutation ledger.Mutation) (saga.Event, error)
}
