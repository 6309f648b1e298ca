package saga

import (
	"encoding/json"
	"fmt"
)

// EventType тип события саги. Для саги это одновременно имя текущего шага (sagaState).
type EventType string

const (
	EventInitiated         EventType = "INITIATED"
	EventCreateMacro       EventType = "CREATE_MACRO"
	EventUpdateMacro       EventType = "UPDATE_MACRO"
	EventNotifyMacroCreate EventType = "NOTIFY_MACRO_CREATE"
	EventNotifyMacroUpdate EventType = "NOTIFY_MACRO_UPDATE"
	EventMarkSagaComplete  EventType = "MARK_SAGA_COMPLETE"
)

// EventOutcome результат обработки события, по нему выбирается следующий переход
type EventOutcome string

const (
	OutcomeInitiateSuccess EventOutcome = "INITIATE_SUCCESS"
	OutcomeMacroCreated    EventOutcome = "MACRO_CREATED"
	OutcomeMacroUpdated    EventOutcome = "MACRO_UPDATED"
	OutcomeMacroNotFound   EventOutcome = "MACRO_NOT_FOUND"
	OutcomeMacroConflict   EventOutcome = "MACRO_CONFLICT"
	OutcomeNotified        EventOutcome = "NOTIFIED"
	OutcomeSagaCompleted   EventOutcome = "SAGA_COMPLETED"
)

// Status статус саги. Переходы только вперед:
// STARTED -> IN_PROGRESS -> COMPLETED, либо FORCE_STOPPED из любого нетерминального.
type Status string

const (
	StatusStarted      Status = "STARTED"
	StatusInProgress   Status = "IN_PROGRESS"
	StatusCompleted    Status = "COMPLETED"
	StatusForceStopped Status = "FORCE_STOPPED"
)

// Terminal сообщает, что сага больше не продвигается
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusForceStopped
}

// Имена саг
const (
	MacroCreateSaga = "MACRO_CREATE_SAGA"
	MacroUpdateSaga = "MACRO_UPDATE_SAGA"
)

// Топики. Для каждого внешнего исполнителя свой топик и по топику на тип саги для ответов.
const (
	TopicMacroAPI        = "MACRO_API_TOPIC"
	TopicEmailAPI        = "PROFILE_REQUEST_EMAIL_API_TOPIC"
	TopicMacroCreateSaga = "MACRO_CREATE_SAGA_TOPIC"
	TopicMacroUpdateSaga = "MACRO_UPDATE_SAGA_TOPIC"
)

// Event сообщение шины. eventPayload содержит сериализованный бизнес-объект.
type Event struct {
	SagaID       string       `json:"sagaId"`
	EventType    EventType    `json:"eventType"`
	EventOutcome EventOutcome `json:"eventOutcome,omitempty"`
	EventPayload string       `json:"eventPayload"`
	ReplyTo      string       `json:"replyTo,omitempty"`
}

// ParseEvent разбирает сообщение шины
func ParseEvent(data []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return event, fmt.Errorf("ошибка десериализации события: %w", err)
	}
	if event.SagaID == "" || event.EventType == "" {
		return event, fmt.Errorf("в событии отсутствует sagaId или eventType")
	}
	return event, nil
}

// Marshal сериализует событие для публикации
func (e Event) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации события: %w", err)
	}
	return data, nil
}
