package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/wellness-analytics-api/internal/analytics"
	"github.com/noah-isme/wellness-analytics-api/internal/dto"
	"github.com/noah-isme/wellness-analytics-api/internal/models"
	"github.com/noah-isme/wellness-analytics-api/internal/service"
	appErrors "github.com/noah-isme/wellness-analytics-api/pkg/errors"
	"github.com/noah-isme/wellness-analytics-api/pkg/response"
)

type navigationService interface {
	Start(ctx context.Context, userID, schoolID string, window analytics.WindowRequest) (*service.NavigationState, error)
	State(ctx context.Context, userID string) (*service.NavigationState, error)
	Push(ctx context.Context, userID string, level analytics.Level, id string) (*service.NavigationState, error)
	Pop(ctx context.Context, userID string) (*service.NavigationState, error)
	Reset(ctx context.Context, userID string) (*service.NavigationState, error)
	UpdateFilters(ctx context.Context, userID string, filters analytics.FilterState) (*service.NavigationState, error)
	UpdateContext(ctx context.Context, userID string, selection analytics.SelectionContext) (*service.NavigationState, error)
	End(ctx context.Context, userID string) error
}

// NavigationHandler exposes the per-user drill-down session.
type NavigationHandler struct {
	service         navigationService
	validate        *validator.Validate
	loc             *time.Location
	defaultPageSize int
}

// NewNavigationHandler constructs the handler.
func NewNavigationHandler(svc navigationService, validate *validator.Validate, loc *time.Location, defaultPageSize int) *NavigationHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &NavigationHandler{service: svc, validate: validate, loc: loc, defaultPageSize: defaultPageSize}
}

// Start godoc
// @Summary Open a drill-down session at the school overview
// @Tags Navigation
// @Accept json
// @Produce json
// @Param payload body dto.NavigationStartRequest true "Session start"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /navigation [post]
func (h *NavigationHandler) Start(c *gin.Context) {
	claims, ok := h.claims(c)
	if !ok {
		return
	}
	var req dto.NavigationStartRequest
	if err := bindJSON(c, h.validate, &req); err != nil {
		response.Error(c, err)
		return
	}
	if !claims.ReadsSchool(req.SchoolID) {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "school outside of token scope"))
		return
	}
	window, err := req.Request(h.loc)
	if err != nil {
		response.Error(c, appErrors.ErrValidation.Wrap(err, "invalid window"))
		return
	}
	state, err := h.service.Start(c.Request.Context(), claims.UserID, req.SchoolID, window)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, state)
}

// State godoc
// @Summary Current drill-down state with level data
// @Tags Navigation
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /navigation [get]
func (h *NavigationHandler) State(c *gin.Context) {
	h.respond(c, func(ctx context.Context, userID string) (*service.NavigationState, error) {
		return h.service.State(ctx, userID)
	})
}

// Push godoc
// @Summary Drill into a child level
// @Tags Navigation
// @Accept json
// @Produce json
// @Param payload body dto.NavigationPushRequest true "Target level"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /navigation/push [post]
func (h *NavigationHandler) Push(c *gin.Context) {
	var req dto.NavigationPushRequest
	if err := bindJSON(c, h.validate, &req); err != nil {
		response.Error(c, err)
		return
	}
	level, err := analytics.ParseLevel(req.Level)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	h.respond(c, func(ctx context.Context, userID string) (*service.NavigationState, error) {
		return h.service.Push(ctx, userID, level, req.ID)
	})
}

// Pop godoc
// @Summary Return to the parent level
// @Tags Navigation
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /navigation/pop [post]
func (h *NavigationHandler) Pop(c *gin.Context) {
	h.respond(c, func(ctx context.Context, userID string) (*service.NavigationState, error) {
		return h.service.Pop(ctx, userID)
	})
}

// Reset godoc
// @Summary Return to the overview
// @Tags Navigation
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /navigation/reset [post]
func (h *NavigationHandler) Reset(c *gin.Context) {
	h.respond(c, func(ctx context.Context, userID string) (*service.NavigationState, error) {
		return h.service.Reset(ctx, userID)
	})
}

// Filters godoc
// @Summary Replace the filters of the current level
// @Tags Navigation
// @Accept json
// @Produce json
// @Param payload body dto.ListQuery true "Filter state"
// @Success 200 {object} response.Envelope
// @Router /navigation/filters [put]
func (h *NavigationHandler) Filters(c *gin.Context) {
	var req dto.ListQuery
	if err := bindJSON(c, h.validate, &req); err != nil {
		response.Error(c, err)
		return
	}
	filters := req.Filters(h.defaultPageSize)
	h.respond(c, func(ctx context.Context, userID string) (*service.NavigationState, error) {
		return h.service.UpdateFilters(ctx, userID, filters)
	})
}

// Context godoc
// @Summary Store selection context on the current level
// @Tags Navigation
// @Accept json
// @Produce json
// @Param payload body dto.NavigationContextRequest true "Selection"
// @Success 200 {object} response.Envelope
// @Router /navigation/context [put]
func (h *NavigationHandler) Context(c *gin.Context) {
	var req dto.NavigationContextRequest
	if err := bindJSON(c, h.validate, &req); err != nil {
		response.Error(c, err)
		return
	}
	selection := analytics.SelectionContext{ScrollOffset: req.ScrollOffset, HighlightedID: req.HighlightedID}
	h.respond(c, func(ctx context.Context, userID string) (*service.NavigationState, error) {
		return h.service.UpdateContext(ctx, userID, selection)
	})
}

// End godoc
// @Summary Discard the drill-down session
// @Tags Navigation
// @Success 204
// @Router /navigation [delete]
func (h *NavigationHandler) End(c *gin.Context) {
	claims, ok := h.claims(c)
	if !ok {
		return
	}
	if err := h.service.End(c.Request.Context(), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *NavigationHandler) respond(c *gin.Context, op func(ctx context.Context, userID string) (*service.NavigationState, error)) {
	claims, ok := h.claims(c)
	if !ok {
		return
	}
	state, err := op(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}

func (h *NavigationHandler) claims(c *gin.Context) (*models.JWTClaims, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}
