package saga

import (
	"time"

	"gorm.io/datatypes"
)

// Saga заголовок саги. UpdateDate одновременно служит токеном оптимистичной блокировки.
type Saga struct {
	SagaID         string         `gorm:"primaryKey;type:varchar(36)" json:"sagaId"`
	SagaName       string         `gorm:"type:varchar(50);not null;index:idx_sagas_in_flight,priority:1" json:"sagaName"`
	CorrelationKey string         `gorm:"type:varchar(100);index:idx_sagas_in_flight,priority:2" json:"correlationKey,omitempty"`
	Status         Status         `gorm:"type:varchar(20);not null;index:idx_sagas_in_flight,priority:3" json:"status"`
	SagaState      EventType      `gorm:"type:varchar(50);not null" json:"sagaState"`
	Payload        datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	CreateUser     string         `gorm:"type:varchar(32);not null" json:"createUser"`
	UpdateUser     string         `gorm:"type:varchar(32);not null" json:"updateUser"`
	CreateDate     time.Time      `gorm:"not null;index" json:"createDate"`
	UpdateDate     time.Time      `gorm:"not null;index" json:"updateDate"`
}

func (Saga) TableName() string {
	return "sagas"
}

// SagaEventState строка истории саги. Только добавление, без изменений.
type SagaEventState struct {
	ID           string       `gorm:"primaryKey;type:varchar(36)" json:"sagaEventId"`
	SagaID       string       `gorm:"type:varchar(36);not null;index;uniqueIndex:idx_saga_event_states_step,priority:1" json:"sagaId"`
	StepNumber   int          `gorm:"not null;uniqueIndex:idx_saga_event_states_step,priority:2" json:"sagaStepNumber"`
	EventType    EventType    `gorm:"column:saga_event_state;type:varchar(50);not null" json:"sagaEventState"`
	EventOutcome EventOutcome `gorm:"column:saga_event_outcome;type:varchar(50);not null" json:"sagaEventOutcome"`
	EventPayload string       `gorm:"column:saga_event_response;type:text" json:"sagaEventResponse"`
	CreateUser   string       `gorm:"type:varchar(32);not null" json:"createUser"`
	CreateDate   time.Time    `gorm:"not null;index" json:"createDate"`
}

func (SagaEventState) TableName() string {
	return "saga_event_states"
}

// NextStamp возвращает метку времени для очередного изменения саги: текущее время
// с точностью до микросекунд (как хранит Postgres), но строго больше предыдущей метки.
func NextStamp(prev, now time.Time) time.Time {
	next := now.UTC().Truncate(time.Microsecond)
	if !next.After(prev) {
		next = prev.UTC().Add(time.Microsecond)
	}
	return next
}
