package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/director74/macro_saga/macro-service/internal/entity"
	"github.com/director74/macro_saga/pkg/auth"
	apperrors "github.com/director74/macro_saga/pkg/errors"
	"github.com/director74/macro_saga/pkg/saga"
)

// SagaService чтение саг и ручная правка полезной нагрузки
type SagaService interface {
	GetSaga(ctx context.Context, sagaID string) (*saga.Saga, error)
	ListSagaHistory(ctx context.Context, sagaID string) ([]saga.SagaEventState, error)
	UpdateSaga(ctx context.Context, sagaID string, req entity.UpdateSagaRequest, user string) (*saga.Saga, error)
	ListSagas(ctx context.Context, filter entity.SagaFilter) (*entity.SagaPage, error)
}

type SagaHandler struct {
	sagas          SagaService
	authMiddleware *auth.AuthMiddleware
}

func NewSagaHandler(sagas SagaService, authMiddleware *auth.AuthMiddleware) *SagaHandler {
	return &SagaHandler{
		sagas:          sagas,
		authMiddleware: authMiddleware,
	}
}

func (h *SagaHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/sagas")
	api.Use(h.authMiddleware.AuthRequired())
	{
		api.GET("", auth.RequireScope(auth.ScopeReadSaga), h.ListSagas)
		api.GET("/:id", auth.RequireScope(auth.ScopeReadSaga), h.GetSaga)
		api.GET("/:id/saga-events", auth.RequireScope(auth.ScopeReadSaga), h.ListSagaEvents)
		api.PUT("/:id", auth.RequireScope(auth.ScopeWriteSaga), h.UpdateSaga)
	}
}

func (h *SagaHandler) GetSaga(c *gin.Context) {
	s, err := h.sagas.GetSaga(c.Request.Context(), c.Param("id"))
	if apperrors.HandleGinError(c, err) {
		return
	}

	c.JSON(http.StatusOK, s)
}

func (h *SagaHandler) ListSagaEvents(c *gin.Context) {
	history, err := h.sagas.ListSagaHistory(c.Request.Context(), c.Param("id"))
	if apperrors.HandleGinError(c, err) {
		return
	}
	if history == nil {
		history = []saga.SagaEventState{}
	}

	c.JSON(http.StatusOK, history)
}

// UpdateSaga в теле ожидается updateDate, прочитанный клиентом. Если сага успела
// измениться, ответ 409 и клиент должен перечитать ее.
func (h *SagaHandler) UpdateSaga(c *gin.Context) {
	var req entity.UpdateSagaRequest
	if !apperrors.BindJSON(c, &req) {
		return
	}

	s, err := h.sagas.UpdateSaga(c.Request.Context(), c.Param("id"), req, auth.GetUsername(c))
	if apperrors.HandleGinError(c, err) {
		return
	}

	c.JSON(http.StatusOK, s)
}

func (h *SagaHandler) ListSagas(c *gin.Context) {
	var filter entity.SagaFilter
	if !apperrors.BindQuery(c, &filter) {
		return
	}

	page, err := h.sagas.ListSagas(c.Request.Context(), filter)
	if apperrors.HandleGinError(c, err) {
		return
	}

	c.JSON(http.StatusOK, page)
}
