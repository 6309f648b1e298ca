package entity

import (
	"sort"
	"time"
)

// Macro шаблон текста, которым пользуются приложения PEN и EDX.
// Одна структура служит телом запроса, полезной нагрузкой саги и строкой таблицы.
type Macro struct {
	MacroID             string    `json:"macroId,omitempty" gorm:"primaryKey;type:varchar(36)"`
	MacroCode           string    `json:"macroCode" gorm:"type:varchar(10);not null;uniqueIndex:idx_macros_codes,priority:3" binding:"required,max=10"`
	MacroTypeCode       string    `json:"macroTypeCode" gorm:"type:varchar(10);not null;uniqueIndex:idx_macros_codes,priority:2" binding:"required,max=10"`
	BusinessUseTypeCode string    `json:"businessUseTypeCode" gorm:"type:varchar(10);not null;uniqueIndex:idx_macros_codes,priority:1" binding:"required,max=10"`
	MacroText           string    `json:"macroText" gorm:"type:varchar(4000);not null" binding:"required,max=4000"`
	CreateUser          string    `json:"createUser,omitempty" gorm:"type:varchar(32);not null" binding:"max=32"`
	UpdateUser          string    `json:"updateUser,omitempty" gorm:"type:varchar(32);not null" binding:"max=32"`
	CreateDate          time.Time `json:"createDate"`
	UpdateDate          time.Time `json:"updateDate"`
}

func (Macro) TableName() string {
	return "macros"
}

// CorrelationKey ключ для обнаружения параллельных саг над одним макросом.
// У нового макроса еще нет id, поэтому используется его естественный ключ.
func (m *Macro) CorrelationKey(forCreate bool) string {
	if forCreate {
		return m.BusinessUseTypeCode + ":" + m.MacroTypeCode + ":" + m.MacroCode
	}
	return m.MacroID
}

// MacroFilter фильтр списка макросов
type MacroFilter struct {
	BusinessUseTypeCode string `form:"businessUseTypeCode" binding:"omitempty,max=10"`
	MacroTypeCode       string `form:"macroTypeCode" binding:"omitempty,max=10"`
}

// StartSagaResponse ответ на запрос изменения макроса
type StartSagaResponse struct {
	SagaID string `json:"sagaId"`
}

// BusinessUseType область применения макроса
type BusinessUseType struct {
	Code string `json:"code"`
	Name string `json:"name"`
	App  string `json:"app"`
}

var businessUseTypes = map[string]BusinessUseType{
	"GMP":    {Code: "GMP", Name: "GetMyPEN", App: "PEN Registry"},
	"UMP":    {Code: "UMP", Name: "UpdateMyPEN", App: "PEN Registry"},
	"PENREG": {Code: "PENREG", Name: "PENRegistry", App: "PEN Registry"},
	"EDX":    {Code: "EDX", Name: "SecureExchange", App: "EDX"},
}

func LookupBusinessUseType(code string) (BusinessUseType, bool) {
	t, ok := businessUseTypes[code]
	return t, ok
}

// BusinessUseTypeCodes допустимые коды в алфавитном порядке
func BusinessUseTypeCodes() []string {
	codes := make([]string, 0, len(businessUseTypes))
	for code := range businessUseTypes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
