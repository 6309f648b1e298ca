package entity

// MacroEditNotificationEvent полезная нагрузка команды уведомления об изменении макроса
type MacroEditNotificationEvent struct {
	FromEmail           string `json:"fromEmail"`
	ToEmail             string `json:"toEmail"`
	MacroCode           string `json:"macroCode"`
	MacroText           string `json:"macroText"`
	MacroTypeCode       string `json:"macroTypeCode"`
	BusinessUseTypeName string `json:"businessUseTypeName"`
	AppName             string `json:"appName"`
}
