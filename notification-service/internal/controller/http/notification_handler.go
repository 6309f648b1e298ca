package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/director74/macro_saga/notification-service/internal/entity"
	apperrors "github.com/director74/macro_saga/pkg/errors"
	"github.com/director74/macro_saga/pkg/metrics"
	"github.com/director74/macro_saga/pkg/middleware"
)

// NotificationService чтение журнала отправленных писем
type NotificationService interface {
	GetNotification(ctx context.Context, id string) (*entity.Notification, error)
	ListNotifications(ctx context.Context, filter entity.NotificationFilter) (*entity.ListNotificationsResponse, error)
}

// Pinger проверка соединения с БД (*sql.DB)
type Pinger interface {
	PingContext(ctx context.Context) error
}

// BrokerHealth состояние соединения с брокером (messaging.Gateway)
type BrokerHealth interface {
	Healthy() bool
}

type NotificationHandler struct {
	notifications NotificationService
	internalAuth  *middleware.InternalAuthMiddleware
	db            Pinger
	broker        BrokerHealth
}

func NewNotificationHandler(notifications NotificationService, internalAuth *middleware.InternalAuthMiddleware, db Pinger, broker BrokerHealth) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		internalAuth:  internalAuth,
		db:            db,
		broker:        broker,
	}
}

func (h *NotificationHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Журнал писем доступен только внутренним сервисам
	internal := router.Group("/api/v1/internal/notifications")
	internal.Use(h.internalAuth.Required())
	{
		internal.GET("", h.ListNotifications)
		internal.GET("/:id", h.GetNotification)
	}
}

func (h *NotificationHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"database": "ok", "broker": "ok"}
	status := http.StatusOK

	if err := h.db.PingContext(ctx); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if !h.broker.Healthy() {
		checks["broker"] = "соединение закрыто"
		status = http.StatusServiceUnavailable
	}

	result := "ok"
	if status != http.StatusOK {
		result = "unavailable"
	}
	c.JSON(status, gin.H{"status": result, "checks": checks})
}

func (h *NotificationHandler) GetNotification(c *gin.Context) {
	notification, err := h.notifications.GetNotification(c.Request.Context(), c.Param("id"))
	if apperrors.HandleGinError(c, err) {
		return
	}

	c.JSON(http.StatusOK, notification)
}

func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	var filter entity.NotificationFilter
	if !apperrors.BindQuery(c, &filter) {
		return
	}

	resp, err := h.notifications.ListNotifications(c.Request.Context(), filter)
	if apperrors.HandleGinError(c, err) {
		return
	}

	c.JSON(http.StatusOK, resp)
}
