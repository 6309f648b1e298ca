package usecase

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/director74/macro_saga/macro-service/internal/entity"
	apperrors "github.com/director74/macro_saga/pkg/errors"
	"github.com/director74/macro_saga/pkg/saga"
)

const defaultPageSize = 10

// SagaUseCase чтение саг и изменение их полезной нагрузки с оптимистичной блокировкой
type SagaUseCase struct {
	sagas SagaRepository
	now   func() time.Time
}

func NewSagaUseCase(sagas SagaRepository) *SagaUseCase {
	return &SagaUseCase{
		sagas: sagas,
		now:   time.Now,
	}
}

func (uc *SagaUseCase) GetSaga(ctx context.Context, sagaID string) (*saga.Saga, error) {
	return uc.sagas.FindByID(ctx, sagaID)
}

// ListSagaHistory история по возрастанию номера шага. Для неизвестной саги NotFound.
func (uc *SagaUseCase) ListSagaHistory(ctx context.Context, sagaID string) ([]saga.SagaEventState, error) {
	if _, err := uc.sagas.FindByID(ctx, sagaID); err != nil {
		return nil, err
	}
	return uc.sagas.History(ctx, sagaID)
}

// UpdateSaga меняет полезную нагрузку, если updateDate совпадает с req.UpdateDate.
// Статус и шаг саги не меняются.
func (uc *SagaUseCase) UpdateSaga(ctx context.Context, sagaID string, req entity.UpdateSagaRequest, user string) (*saga.Saga, error) {
	if !json.Valid(req.Payload) {
		return nil, apperrors.NewValidationError("payload", "должен быть корректным JSON")
	}

	expected := req.UpdateDate.UTC()
	next := saga.NextStamp(expected, uc.now())

	return uc.sagas.UpdatePayload(ctx, sagaID, datatypes.JSON(req.Payload), user, expected, next)
}

func (uc *SagaUseCase) ListSagas(ctx context.Context, filter entity.SagaFilter) (*entity.SagaPage, error) {
	if filter.Size <= 0 {
		filter.Size = defaultPageSize
	}
	if filter.Page < 0 {
		filter.Page = 0
	}

	sagas, total, err := uc.sagas.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &entity.SagaPage{
		Items: sagas,
		Page:  filter.Page,
		Size:  filter.Size,
		Total: total,
	}, nil
}
