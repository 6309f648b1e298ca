package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/director74/macro_saga/macro-service/internal/entity"
	apperrors "github.com/director74/macro_saga/pkg/errors"
	"github.com/director74/macro_saga/pkg/ledger"
	"github.com/director74/macro_saga/pkg/saga"
)

// MacroCommandHandler исполнитель команд CREATE_MACRO и UPDATE_MACRO.
// Каждая команда выполняется один раз, повторная доставка получает тот же ответ.
type MacroCommandHandler struct {
	executor   CommandExecutor
	macros     MacroRepository
	publisher  saga.Publisher
	systemUser string
	now        func() time.Time
	newID      func() string
	logger     zerolog.Logger
}

func NewMacroCommandHandler(executor CommandExecutor, macros MacroRepository, publisher saga.Publisher, systemUser string, logger zerolog.Logger) *MacroCommandHandler {
	return &MacroCommandHandler{
		executor:   executor,
		macros:     macros,
		publisher:  publisher,
		systemUser: systemUser,
		now:        func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		newID:      uuid.NewString,
		logger:     logger,
	}
}

// Handle обрабатывает команду из MACRO_API_TOPIC. Ошибка возвращается только
// при сбое инфраструктуры, чтобы брокер доставил сообщение повторно.
func (h *MacroCommandHandler) Handle(ctx context.Context, event saga.Event) error {
	log := h.logger.With().Str("saga_id", event.SagaID).Str("event_type", string(event.EventType)).Logger()

	var macro entity.Macro
	if err := json.Unmarshal([]byte(event.EventPayload), &macro); err != nil {
		log.Error().Err(err).Msg("Некорректная полезная нагрузка команды, сообщение отброшено")
		return nil
	}

	var mutation ledger.Mutation
	switch event.EventType {
	case saga.EventCreateMacro:
		mutation = h.createMacro(macro, event.EventPayload)
	case saga.EventUpdateMacro:
		mutation = h.updateMacro(macro, event.EventPayload)
	default:
		log.Warn().Msg("Неизвестный тип команды, сообщение отброшено")
		return nil
	}

	reply, err := h.executor.Execute(ctx, event, mutation)
	if err != nil {
		return err
	}

	if event.ReplyTo == "" {
		log.Warn().Msg("В команде не указан replyTo, ответ не отправлен")
		return nil
	}
	if err := h.publisher.Publish(ctx, event.ReplyTo, reply); err != nil {
		return fmt.Errorf("ошибка отправки ответа на %s: %w", event.EventType, err)
	}

	log.Info().Str("outcome", string(reply.EventOutcome)).Msg("Ответ на команду отправлен")
	return nil
}

// createMacro занятая тройка кодов дает исход MACRO_CONFLICT
func (h *MacroCommandHandler) createMacro(macro entity.Macro, request string) ledger.Mutation {
	return func(ctx context.Context) (ledger.Result, error) {
		now := h.now()
		macro.MacroID = h.newID()
		macro.CreateDate = now
		macro.UpdateDate = now
		if macro.CreateUser == "" {
			macro.CreateUser = h.systemUser
		}
		if macro.UpdateUser == "" {
			macro.UpdateUser = macro.CreateUser
		}

		if err := h.macros.Create(ctx, &macro); err != nil {
			if isCodesConflict(err) {
				return ledger.Result{Outcome: saga.OutcomeMacroConflict, Payload: request}, nil
			}
			return ledger.Result{}, err
		}

		payload, err := json.Marshal(macro)
		if err != nil {
			return ledger.Result{}, err
		}
		return ledger.Result{Outcome: saga.OutcomeMacroCreated, Payload: string(payload)}, nil
	}
}

// updateMacro если макрос исчез, это не ошибка, а исход MACRO_NOT_FOUND.
// Если новая тройка кодов принадлежит другому макросу, исход MACRO_CONFLICT.
func (h *MacroCommandHandler) updateMacro(macro entity.Macro, request string) ledger.Mutation {
	return func(ctx context.Context) (ledger.Result, error) {
		existing, err := h.macros.GetByID(ctx, macro.MacroID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return ledger.Result{Outcome: saga.OutcomeMacroNotFound, Payload: request}, nil
			}
			return ledger.Result{}, err
		}

		existing.MacroCode = macro.MacroCode
		existing.MacroTypeCode = macro.MacroTypeCode
		existing.BusinessUseTypeCode = macro.BusinessUseTypeCode
		existing.MacroText = macro.MacroText
		existing.UpdateUser = macro.UpdateUser
		if existing.UpdateUser == "" {
			existing.UpdateUser = h.systemUser
		}
		existing.UpdateDate = h.now()

		if err := h.macros.Update(ctx, existing); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return ledger.Result{Outcome: saga.OutcomeMacroNotFound, Payload: request}, nil
			}
			if isCodesConflict(err) {
				return ledger.Result{Outcome: saga.OutcomeMacroConflict, Payload: request}, nil
			}
			return ledger.Result{}, err
		}

		payload, err := json.Marshal(existing)
		if err != nil {
			return ledger.Result{}, err
		}
		return ledger.Result{Outcome: saga.OutcomeMacroUpdated, Payload: string(payload)}, nil
	}
}

// isCodesConflict нарушение уникальности тройки кодов. Повторная доставка его не
// исправит, поэтому это исход команды, а не ошибка.
func isCodesConflict(err error) bool {
	return errors.Is(err, apperrors.ErrConflict) || errors.Is(err, gorm.ErrDuplicatedKey)
}
