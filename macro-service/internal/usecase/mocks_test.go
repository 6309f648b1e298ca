package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"

	"github.com/director74/macro_saga/macro-service/internal/entity"
	apperrors "github.com/director74/macro_saga/pkg/errors"
	"github.com/director74/macro_saga/pkg/ledger"
	"github.com/director74/macro_saga/pkg/saga"
)

// Мок для MacroRepository
type MockMacroRepository struct {
	mock.Mock
}

func (m *MockMacroRepository) Create(ctx context.Context, macro *entity.Macro) error {
	return m.Called(ctx, macro).Error(0)
}

func (m *MockMacroRepository) GetByID(ctx context.Context, macroID string) (*entity.Macro, error) {
	args := m.Called(ctx, macroID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Macro), args.Error(1)
}

func (m *MockMacroRepository) Update(ctx context.Context, macro *entity.Macro) error {
	return m.Called(ctx, macro).Error(0)
}

func (m *MockMacroRepository) List(ctx context.Context, filter entity.MacroFilter) ([]entity.Macro, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Macro), args.Error(1)
}

func (m *MockMacroRepository) ExistsByCodes(ctx context.Context, businessUseTypeCode, macroTypeCode, macroCode, excludeID string) (bool, error) {
	args := m.Called(ctx, businessUseTypeCode, macroTypeCode, macroCode, excludeID)
	return args.Bool(0), args.Error(1)
}

// Мок для SagaStarter
type MockSagaStarter struct {
	mock.Mock
}

func (m *MockSagaStarter) SagaName() string {
	return m.Called().String(0)
}

func (m *MockSagaStarter) StartSaga(ctx context.Context, payload, correlationKey, user string) (*saga.Saga, error) {
	args := m.Called(ctx, payload, correlationKey, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*saga.Saga), args.Error(1)
}

// Мок для SagaRepository
type MockSagaRepository struct {
	mock.Mock
}

func (m *MockSagaRepository) FindByID(ctx context.Context, sagaID string) (*saga.Saga, error) {
	args := m.Called(ctx, sagaID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*saga.Saga), args.Error(1)
}

func (m *MockSagaRepository) History(ctx context.Context, sagaID string) ([]saga.SagaEventState, error) {
	args := m.Called(ctx, sagaID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]saga.SagaEventState), args.Error(1)
}

func (m *MockSagaRepository) List(ctx context.Context, filter entity.SagaFilter) ([]saga.Saga, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]saga.Saga), args.Get(1).(int64), args.Error(2)
}

func (m *MockSagaRepository) UpdatePayload(ctx context.Context, sagaID string, payload datatypes.JSON, user string, expected, next time.Time) (*saga.Saga, error) {
	args := m.Called(ctx, sagaID, payload, user, expected, next)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*saga.Saga), args.Error(1)
}

// Мок для CommandExecutor
type MockCommandExecutor struct {
	mock.Mock
}

func (m *MockCommandExecutor) Execute(ctx context.Context, event saga.Event, mutation ledger.Mutation) (saga.Event, error) {
	args := m.Called(ctx, event, mutation)
	return args.Get(0).(saga.Event), args.Error(1)
}

// memoryMacros хранилище макросов в памяти с уникальностью тройки кодов
type memoryMacros struct {
	mu     sync.Mutex
	macros map[string]entity.Macro
}

func newMemoryMacros() *memoryMacros {
	return &memoryMacros{macros: make(map[string]entity.Macro)}
}

func (r *memoryMacros) Create(ctx context.Context, macro *entity.Macro) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.macros {
		if m.CorrelationKey(true) == macro.CorrelationKey(true) {
			return apperrors.ErrConflict
		}
	}
	r.macros[macro.MacroID] = *macro
	return nil
}

func (r *memoryMacros) GetByID(ctx context.Context, macroID string) (*entity.Macro, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.macros[macroID]
	if !ok {
		return nil, apperrors.NewNotFoundError("Макрос", macroID)
	}
	return &m, nil
}

func (r *memoryMacros) Update(ctx context.Context, macro *entity.Macro) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.macros[macro.MacroID]; !ok {
		return apperrors.NewNotFoundError("Макрос", macro.MacroID)
	}
	for id, m := range r.macros {
		if id != macro.MacroID && m.CorrelationKey(true) == macro.CorrelationKey(true) {
			return apperrors.ErrConflict
		}
	}
	r.macros[macro.MacroID] = *macro
	return nil
}

func (r *memoryMacros) List(ctx context.Context, filter entity.MacroFilter) ([]entity.Macro, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []entity.Macro
	for _, m := range r.macros {
		if filter.BusinessUseTypeCode != "" && m.BusinessUseTypeCode != filter.BusinessUseTypeCode {
			continue
		}
		if filter.MacroTypeCode != "" && m.MacroTypeCode != filter.MacroTypeCode {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MacroCode < out[j].MacroCode })
	return out, nil
}

func (r *memoryMacros) ExistsByCodes(ctx context.Context, businessUseTypeCode, macroTypeCode, macroCode, excludeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, m := range r.macros {
		if id != excludeID && m.BusinessUseTypeCode == businessUseTypeCode && m.MacroTypeCode == macroTypeCode && m.MacroCode == macroCode {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryMacros) delete(macroID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.macros, macroID)
}

func (r *memoryMacros) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.macros)
}
