package entity

import (
	"encoding/json"
	"time"

	"github.com/director74/macro_saga/pkg/saga"
)

// SagaFilter фильтр и страница списка саг
type SagaFilter struct {
	Status         saga.Status `form:"status" binding:"omitempty,oneof=STARTED IN_PROGRESS COMPLETED FORCE_STOPPED"`
	SagaName       string      `form:"sagaName" binding:"omitempty,max=50"`
	CorrelationKey string      `form:"correlationKey" binding:"omitempty,max=100"`
	Page           int         `form:"page" binding:"omitempty,min=0"`
	Size           int         `form:"size" binding:"omitempty,min=1,max=100"`
}

// SagaPage страница списка саг
type SagaPage struct {
	Items []saga.Saga `json:"content"`
	Page  int         `json:"pageNumber"`
	Size  int         `json:"pageSize"`
	Total int64       `json:"totalElements"`
}

// UpdateSagaRequest запрос на изменение полезной нагрузки саги.
// UpdateDate значение, прочитанное клиентом: если сага с тех пор менялась, будет конфликт.
type UpdateSagaRequest struct {
	Payload    json.RawMessage `json:"payload" binding:"required"`
	UpdateDate time.Time       `json:"updateDate" binding:"required"`
}

// PurgeResult количество удаленных строк по таблицам
type PurgeResult struct {
	EventStates int64
	Ledger      int64
	Sagas       int64
}
