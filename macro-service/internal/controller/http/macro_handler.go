package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/director74/macro_saga/macro-service/internal/entity"
	"github.com/director74/macro_saga/pkg/auth"
	apperrors "github.com/director74/macro_saga/pkg/errors"
)

// MacroService операции с макросами, которые нужны обработчику
type MacroService interface {
	GetMacro(ctx context.Context, macroID string) (*entity.Macro, error)
	ListMacros(ctx context.Context, filter entity.MacroFilter) ([]entity.Macro, error)
	CreateMacro(ctx context.Context, macro entity.Macro, user string) (string, error)
	UpdateMacro(ctx context.Context, macro entity.Macro, user string) (string, error)
}

type MacroHandler struct {
	macros         MacroService
	authMiddleware *auth.AuthMiddleware
}

func NewMacroHandler(macros MacroService, authMiddleware *auth.AuthMiddleware) *MacroHandler {
	return &MacroHandler{
		macros:         macros,
		authMiddleware: authMiddleware,
	}
}

func (h *MacroHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/macros")
	api.Use(h.authMiddleware.AuthRequired())
	{
		api.GET("", auth.RequireScope(auth.ScopeReadMacro), h.ListMacros)
		api.GET("/:id", auth.RequireScope(auth.ScopeReadMacro), h.GetMacro)
		api.POST("/create-macro", auth.RequireScope(auth.ScopeWriteMacro), h.CreateMacro)
		api.PUT("/update-macro", auth.RequireScope(auth.ScopeWriteMacro), h.UpdateMacro)
	}
}

func (h *MacroHandler) ListMacros(c *gin.Context) {
	var filter entity.MacroFilter
	if !apperrors.BindQuery(c, &filter) {
		return
	}

	macros, err := h.macros.ListMacros(c.Request.Context(), filter)
	if apperrors.HandleGinError(c, err) {
		return
	}
	if macros == nil {
		macros = []entity.Macro{}
	}

	c.JSON(http.StatusOK, macros)
}

func (h *MacroHandler) GetMacro(c *gin.Context) {
	macro, err := h.macros.GetMacro(c.Request.Context(), c.Param("id"))
	if apperrors.HandleGinError(c, err) {
		return
	}

	c.JSON(http.StatusOK, macro)
}

// CreateMacro макрос создается асинхронно, клиент получает id саги
func (h *MacroHandler) CreateMacro(c *gin.Context) {
	var macro entity.Macro
	if !apperrors.BindJSON(c, &macro) {
		return
	}

	sagaID, err := h.macros.CreateMacro(c.Request.Context(), macro, auth.GetUsername(c))
	if apperrors.HandleGinError(c, err) {
		return
	}

	c.JSON(http.StatusAccepted, entity.StartSagaResponse{SagaID: sagaID})
}

func (h *MacroHandler) UpdateMacro(c *gin.Context) {
	var macro entity.Macro
	if !apperrors.BindJSON(c, &macro) {
		return
	}

	sagaID, err := h.macros.UpdateMacro(c.Request.Context(), macro, auth.GetUsername(c))
	if apperrors.HandleGinError(c, err) {
		return
	}

	c.JSON(http.StatusAccepted, entity.StartSagaResponse{SagaID: sagaID})
}
