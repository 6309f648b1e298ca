package ledger

import (
	"time"

	"github.com/director74/macro_saga/pkg/saga"
)

// StatusMessagePublished ответ на команду сформирован и отправлен
const StatusMessagePublished = "MESSAGE_PUBLISHED"

// CommandLedger запись о выполненной команде. Пара (saga_id, event_type) уникальна:
// повторная доставка той же команды находит запись и получает сохраненный ответ.
type CommandLedger struct {
	ID           string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SagaID       string            `gorm:"type:varchar(36);not null;uniqueIndex:idx_command_ledgers_saga_event,priority:1" json:"sagaId"`
	EventType    saga.EventType    `gorm:"type:varchar(50);not null;uniqueIndex:idx_command_ledgers_saga_event,priority:2" json:"eventType"`
	EventPayload string            `gorm:"type:text" json:"eventPayload"`
	EventOutcome saga.EventOutcome `gorm:"type:varchar(50);not null" json:"eventOutcome"`
	Status       string            `gorm:"type:varchar(20);not null" json:"status"`
	ReplyChannel string            `gorm:"type:varchar(100)" json:"replyChannel"`
	CreateDate   time.Time         `gorm:"not null;index" json:"createDate"`
	UpdateDate   time.Time         `gorm:"not null" json:"updateDate"`
}

func (CommandLedger) TableName() string {
	return "command_ledgers"
}

// Reply восстанавливает ответное событие из записи
func (l *CommandLedger) Reply() saga.Event {
	return saga.Event{
		SagaID:       l.SagaID,
		EventType:    l.EventType,
		EventOutcome: l.EventOutcome,
		EventPayload: l.EventPayload,
	}
}
