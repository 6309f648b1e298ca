package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/director74/macro_saga/macro-service/internal/entity"
	apperrors "github.com/director74/macro_saga/pkg/errors"
)

// MacroUseCase чтение макросов и запуск саг их изменения.
// Сами изменения выполняет исполнитель команд по событиям саги.
type MacroUseCase struct {
	macros     MacroRepository
	createSaga SagaStarter
	updateSaga SagaStarter
	systemUser string
	logger     zerolog.Logger
}

func NewMacroUseCase(macros MacroRepository, createSaga, updateSaga SagaStarter, systemUser string, logger zerolog.Logger) *MacroUseCase {
	return &MacroUseCase{
		macros:     macros,
		createSaga: createSaga,
		updateSaga: updateSaga,
		systemUser: systemUser,
		logger:     logger,
	}
}

func (uc *MacroUseCase) GetMacro(ctx context.Context, macroID string) (*entity.Macro, error) {
	return uc.macros.GetByID(ctx, macroID)
}

func (uc *MacroUseCase) ListMacros(ctx context.Context, filter entity.MacroFilter) ([]entity.Macro, error) {
	return uc.macros.List(ctx, filter)
}

// CreateMacro проверяет макрос и запускает сагу создания. Возвращает id саги.
func (uc *MacroUseCase) CreateMacro(ctx context.Context, macro entity.Macro, user string) (string, error) {
	if err := uc.validate(ctx, &macro, true); err != nil {
		return "", err
	}

	macro.CreateUser = uc.auditUser(user, macro.CreateUser)
	macro.UpdateUser = uc.auditUser(user, macro.UpdateUser)

	return uc.start(ctx, uc.createSaga, &macro, macro.CorrelationKey(true))
}

// UpdateMacro проверяет макрос и запускает сагу изменения. Макрос должен существовать.
func (uc *MacroUseCase) UpdateMacro(ctx context.Context, macro entity.Macro, user string) (string, error) {
	if err := uc.validate(ctx, &macro, false); err != nil {
		return "", err
	}

	existing, err := uc.macros.GetByID(ctx, macro.MacroID)
	if err != nil {
		return "", err
	}

	macro.CreateUser = existing.CreateUser
	macro.CreateDate = existing.CreateDate
	macro.UpdateUser = uc.auditUser(user, macro.UpdateUser)

	return uc.start(ctx, uc.updateSaga, &macro, macro.CorrelationKey(false))
}

func (uc *MacroUseCase) start(ctx context.Context, starter SagaStarter, macro *entity.Macro, correlationKey string) (string, error) {
	payload, err := json.Marshal(macro)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации макроса: %w", err)
	}

	s, err := starter.StartSaga(ctx, string(payload), correlationKey, macro.UpdateUser)
	if err != nil {
		return "", err
	}

	uc.logger.Info().Str("saga_id", s.SagaID).Str("saga_name", starter.SagaName()).
		Str("correlation_key", correlationKey).Msg("Сага запущена")
	return s.SagaID, nil
}

// validate проверки до создания саги: формат полей, id, область применения,
// уникальность тройки кодов. При изменении сам макрос не считается владельцем тройки.
func (uc *MacroUseCase) validate(ctx context.Context, macro *entity.Macro, forCreate bool) error {
	if err := validateStruct(macro); err != nil {
		return err
	}

	if forCreate && macro.MacroID != "" {
		return apperrors.NewValidationError("macroId", "должен быть пустым при создании")
	}
	if !forCreate && macro.MacroID == "" {
		return apperrors.NewValidationError("macroId", "обязателен при изменении")
	}

	if _, ok := entity.LookupBusinessUseType(macro.BusinessUseTypeCode); !ok {
		return apperrors.NewValidationError("businessUseTypeCode", "недопустимое значение")
	}

	exists, err := uc.macros.ExistsByCodes(ctx, macro.BusinessUseTypeCode, macro.MacroTypeCode, macro.MacroCode, macro.MacroID)
	if err != nil {
		return err
	}
	if exists {
		return apperrors.NewValidationError("macroCode", "комбинация businessUseTypeCode, macroTypeCode и macroCode уже существует")
	}

	return nil
}

// auditUser пользователь из токена, затем из тела запроса, затем системный
func (uc *MacroUseCase) auditUser(tokenUser, bodyUser string) string {
	switch {
	case tokenUser != "":
		return tokenUser
	case bodyUser != "":
		return bodyUser
	default:
		return uc.systemUser
	}
}
