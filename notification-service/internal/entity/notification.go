package entity

import (
	"time"
)

// Notification отправленное письмо. Строка пишется в одной транзакции
// с журналом команд, поэтому на каждую команду саги приходится одна строка.
type Notification struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SagaID     string    `json:"sagaId" gorm:"type:varchar(36);not null;index"`
	EventType  string    `json:"eventType" gorm:"type:varchar(50);not null"`
	FromEmail  string    `json:"fromEmail" gorm:"type:varchar(255);not null"`
	ToEmail    string    `json:"toEmail" gorm:"type:varchar(255);not null"`
	Subject    string    `json:"subject" gorm:"type:varchar(255);not null"`
	Body       string    `json:"body" gorm:"type:text;not null"`
	Status     string    `json:"status" gorm:"type:varchar(20);not null"`
	CreateDate time.Time `json:"createDate" gorm:"index"`
}

func (Notification) TableName() string {
	return "notifications"
}

// PurgeResult количество удаленных строк по таблицам
type PurgeResult struct {
	Notifications int64
	Ledger        int64
}

// Возможные статусы уведомлений
const (
	NotificationStatusSent = "sent"
)

// NotificationFilter фильтр внутреннего списка уведомлений
type NotificationFilter struct {
	SagaID string `form:"sagaId" binding:"omitempty,max=36"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
}

type ListNotificationsResponse struct {
	Notifications []Notification `json:"notifications"`
	Total         int64          `json:"total"`
}

// MacroEditNotificationEvent полезная нагрузка команд NOTIFY_MACRO_CREATE и NOTIFY_MACRO_UPDATE
// (локальная копия из macro-service для избежания прямой зависимости)
type MacroEditNotificationEvent struct {
	FromEmail           string `json:"fromEmail"`
	ToEmail             string `json:"toEmail" binding:"required,email"`
	MacroCode           string `json:"macroCode" binding:"required"`
	MacroText           string `json:"macroText"`
	MacroTypeCode       string `json:"macroTypeCode"`
	BusinessUseTypeName string `json:"businessUseTypeName"`
	AppName             string `json:"appName"`
}
