package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/director74/macro_saga/pkg/metrics"
)

// Pinger проверка соединения с БД (*sql.DB)
type Pinger interface {
	PingContext(ctx context.Context) error
}

// BrokerHealth состояние соединения с брокером (messaging.Gateway)
type BrokerHealth interface {
	Healthy() bool
}

type HealthHandler struct {
	db     Pinger
	broker BrokerHealth
}

func NewHealthHandler(db Pinger, broker BrokerHealth) *HealthHandler {
	return &HealthHandler{
		db:     db,
		broker: broker,
	}
}

func (h *HealthHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
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
