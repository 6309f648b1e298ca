package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/director74/macro_saga/macro-service/config"
	"github.com/director74/macro_saga/macro-service/internal/entity"
	"github.com/director74/macro_saga/pkg/saga"
)

// SagaSteps обработчики шагов саг создания и изменения макроса.
// Обработчики только формируют команду, запись состояния и отправку выполняет оркестратор.
type SagaSteps struct {
	notification config.NotificationConfig
}

func NewSagaSteps(notification config.NotificationConfig) *SagaSteps {
	return &SagaSteps{notification: notification}
}

// CreateMacroGraph CREATE_MACRO -> NOTIFY_MACRO_CREATE -> конец.
// Если тройку кодов успел занять другой макрос, сага завершается после CREATE_MACRO.
func (s *SagaSteps) CreateMacroGraph() *saga.StepGraph {
	return saga.NewStepGraph(saga.MacroCreateSaga, saga.TopicMacroCreateSaga).
		Begin(saga.EventCreateMacro, s.editMacro(saga.EventCreateMacro)).
		Step(saga.EventCreateMacro, saga.OutcomeMacroCreated, saga.EventNotifyMacroCreate, s.sendEmail(saga.EventNotifyMacroCreate)).
		End(saga.EventCreateMacro, saga.OutcomeMacroConflict).
		End(saga.EventNotifyMacroCreate, saga.OutcomeNotified).
		MustBuild()
}

// UpdateMacroGraph UPDATE_MACRO -> NOTIFY_MACRO_UPDATE -> конец.
// Если макрос успели удалить или его новая тройка кодов занята, сага завершается
// сразу после UPDATE_MACRO.
func (s *SagaSteps) UpdateMacroGraph() *saga.StepGraph {
	return saga.NewStepGraph(saga.MacroUpdateSaga, saga.TopicMacroUpdateSaga).
		Begin(saga.EventUpdateMacro, s.editMacro(saga.EventUpdateMacro)).
		Step(saga.EventUpdateMacro, saga.OutcomeMacroUpdated, saga.EventNotifyMacroUpdate, s.sendEmail(saga.EventNotifyMacroUpdate)).
		End(saga.EventUpdateMacro, saga.OutcomeMacroNotFound).
		End(saga.EventUpdateMacro, saga.OutcomeMacroConflict).
		End(saga.EventNotifyMacroUpdate, saga.OutcomeNotified).
		MustBuild()
}

func (s *SagaSteps) editMacro(eventType saga.EventType) saga.StepHandler {
	return func(ctx context.Context, sg *saga.Saga, event saga.Event) (*saga.Command, error) {
		return &saga.Command{
			Topic:     saga.TopicMacroAPI,
			EventType: eventType,
			Payload:   string(sg.Payload),
		}, nil
	}
}

// sendEmail письмо строится по полезной нагрузке саги, а не по ответу исполнителя
func (s *SagaSteps) sendEmail(eventType saga.EventType) saga.StepHandler {
	return func(ctx context.Context, sg *saga.Saga, event saga.Event) (*saga.Command, error) {
		var macro entity.Macro
		if err := json.Unmarshal(sg.Payload, &macro); err != nil {
			return nil, fmt.Errorf("ошибка разбора полезной нагрузки саги: %w", err)
		}

		useType, ok := entity.LookupBusinessUseType(macro.BusinessUseTypeCode)
		if !ok {
			return nil, fmt.Errorf("неизвестный businessUseTypeCode %q", macro.BusinessUseTypeCode)
		}

		payload, err := json.Marshal(entity.MacroEditNotificationEvent{
			FromEmail:           s.notification.FromEmail,
			ToEmail:             s.notification.ToEmail,
			MacroCode:           macro.MacroCode,
			MacroText:           macro.MacroText,
			MacroTypeCode:       macro.MacroTypeCode,
			BusinessUseTypeName: useType.Name,
			AppName:             useType.App,
		})
		if err != nil {
			return nil, err
		}

		return &saga.Command{
			Topic:     saga.TopicEmailAPI,
			EventType: eventType,
			Payload:   string(payload),
		}, nil
	}
}
