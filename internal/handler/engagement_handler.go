package handler

import (
	"context"
	"net/http"
	"strings"
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

type engagementService interface {
	Overview(ctx context.Context, schoolID string, req analytics.WindowRequest) (*service.View[models.SchoolOverview], error)
	Classes(ctx context.Context, schoolID string, req analytics.WindowRequest, filters analytics.FilterState) (*service.View[[]models.ClassRollup], error)
	Class(ctx context.Context, scopeSchool, classID string, req analytics.WindowRequest, filters analytics.FilterState) (*service.View[models.ClassDetail], error)
	Students(ctx context.Context, schoolID string, req analytics.WindowRequest, filters analytics.FilterState) (*service.View[[]models.StudentStanding], error)
	Student(ctx context.Context, scopeSchool, studentID string, req analytics.WindowRequest) (*service.View[models.StudentHistory], error)
	Leaderboard(ctx context.Context, schoolID string, req analytics.WindowRequest, limit int) (*service.View[models.Leaderboard], error)
	Trend(ctx context.Context, q service.TrendQuery) (*service.View[[]models.SeriesPoint], error)
	Refresh(ctx context.Context, schoolID string) (int, error)
}

// EngagementHandler serves the dashboard read endpoints.
type EngagementHandler struct {
	service         engagementService
	validate        *validator.Validate
	loc             *time.Location
	defaultPageSize int
}

// NewEngagementHandler constructs the handler. Query dates are read in loc.
func NewEngagementHandler(svc engagementService, validate *validator.Validate, loc *time.Location, defaultPageSize int) *EngagementHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &EngagementHandler{service: svc, validate: validate, loc: loc, defaultPageSize: defaultPageSize}
}

// Overview godoc
// @Summary School engagement overview
// @Tags Engagement
// @Produce json
// @Param schoolId path string true "School ID"
// @Param period query string false "today, week, month, year or custom"
// @Param from query string false "Custom start date (YYYY-MM-DD)"
// @Param to query string false "Custom end date (YYYY-MM-DD), inclusive"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /schools/{schoolId}/overview [get]
func (h *EngagementHandler) Overview(c *gin.Context) {
	var q dto.WindowQuery
	req, ok := h.window(c, &q)
	if !ok {
		return
	}
	view, err := h.service.Overview(c.Request.Context(), c.Param("schoolId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeView(c, view)
}

// Classes godoc
// @Summary Class rollups for a school
// @Tags Engagement
// @Produce json
// @Param schoolId path string true "School ID"
// @Param period query string false "Window preset"
// @Param search query string false "Free text search"
// @Param grade query string false "Comma separated grades"
// @Param status query string false "on_track or at_risk"
// @Param sort query string false "Sort key"
// @Param order query string false "asc or desc"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /schools/{schoolId}/classes [get]
func (h *EngagementHandler) Classes(c *gin.Context) {
	var q dto.ListQuery
	req, filters, ok := h.list(c, &q)
	if !ok {
		return
	}
	view, err := h.service.Classes(c.Request.Context(), c.Param("schoolId"), req, filters)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeView(c, view)
}

// Class godoc
// @Summary Class detail with member standings
// @Tags Engagement
// @Produce json
// @Param classId path string true "Class ID"
// @Param period query string false "Window preset"
// @Param risk query string false "Comma separated risk levels"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{classId} [get]
func (h *EngagementHandler) Class(c *gin.Context) {
	var q dto.ListQuery
	req, filters, ok := h.list(c, &q)
	if !ok {
		return
	}
	scope, ok := readScope(c)
	if !ok {
		return
	}
	view, err := h.service.Class(c.Request.Context(), scope, c.Param("classId"), req, filters)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeView(c, view)
}

// Students godoc
// @Summary Student standings for a school
// @Tags Engagement
// @Produce json
// @Param schoolId path string true "School ID"
// @Param class query string false "Comma separated class IDs"
// @Param risk query string false "Comma separated risk levels"
// @Param status query string false "active or inactive"
// @Success 200 {object} response.Envelope
// @Router /schools/{schoolId}/students [get]
func (h *EngagementHandler) Students(c *gin.Context) {
	var q dto.ListQuery
	req, filters, ok := h.list(c, &q)
	if !ok {
		return
	}
	view, err := h.service.Students(c.Request.Context(), c.Param("schoolId"), req, filters)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeView(c, view)
}

// Student godoc
// @Summary Student engagement history
// @Tags Engagement
// @Produce json
// @Param studentId path string true "Student ID"
// @Param period query string false "Window preset"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId} [get]
func (h *EngagementHandler) Student(c *gin.Context) {
	var q dto.WindowQuery
	req, ok := h.window(c, &q)
	if !ok {
		return
	}
	scope, ok := readScope(c)
	if !ok {
		return
	}
	view, err := h.service.Student(c.Request.Context(), scope, c.Param("studentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeView(c, view)
}

// Leaderboard godoc
// @Summary Top performers, streaks, at-risk and non-submitters
// @Tags Engagement
// @Produce json
// @Param schoolId path string true "School ID"
// @Param limit query int false "Entries per list"
// @Success 200 {object} response.Envelope
// @Router /schools/{schoolId}/leaderboard [get]
func (h *EngagementHandler) Leaderboard(c *gin.Context) {
	var q dto.LeaderboardQuery
	req, ok := h.window(c, &q)
	if !ok {
		return
	}
	view, err := h.service.Leaderboard(c.Request.Context(), c.Param("schoolId"), req, q.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeView(c, view)
}

// Trend godoc
// @Summary Fixed length trend series
// @Tags Engagement
// @Produce json
// @Param schoolId path string true "School ID"
// @Param bucket query string false "week or month"
// @Param metric query string false "Series metric"
// @Param classId query string false "Restrict to one class"
// @Success 200 {object} response.Envelope
// @Router /schools/{schoolId}/trend [get]
func (h *EngagementHandler) Trend(c *gin.Context) {
	var q dto.TrendQuery
	req, ok := h.window(c, &q)
	if !ok {
		return
	}
	bucket, err := analytics.ParseBucket(q.Bucket)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	metric, err := analytics.ParseMetric(q.Metric)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	view, err := h.service.Trend(c.Request.Context(), service.TrendQuery{
		SchoolID: c.Param("schoolId"),
		ClassID:  strings.TrimSpace(q.ClassID),
		Window:   req,
		Bucket:   bucket,
		Metric:   metric,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	writeView(c, view)
}

// Refresh godoc
// @Summary Drop cached records of a school
// @Description The next read of the school loads from the record store. Use it to retry after an upstream failure with fresh data.
// @Tags Engagement
// @Produce json
// @Param schoolId path string true "School ID"
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /schools/{schoolId}/refresh [post]
func (h *EngagementHandler) Refresh(c *gin.Context) {
	removed, err := h.service.Refresh(c.Request.Context(), c.Param("schoolId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"removed": removed}, nil)
}

type windowQuery interface {
	Request(loc *time.Location) (analytics.WindowRequest, error)
}

// window binds q from the query string and resolves its window request. It
// writes the error response itself and reports whether to continue.
func (h *EngagementHandler) window(c *gin.Context, q windowQuery) (analytics.WindowRequest, bool) {
	if err := bindQuery(c, h.validate, q); err != nil {
		response.Error(c, err)
		return analytics.WindowRequest{}, false
	}
	req, err := q.Request(h.loc)
	if err != nil {
		response.Error(c, appErrors.ErrValidation.Wrap(err, "invalid window"))
		return analytics.WindowRequest{}, false
	}
	return req, true
}

func (h *EngagementHandler) list(c *gin.Context, q *dto.ListQuery) (analytics.WindowRequest, analytics.FilterState, bool) {
	req, ok := h.window(c, q)
	if !ok {
		return analytics.WindowRequest{}, analytics.FilterState{}, false
	}
	return req, q.Filters(h.defaultPageSize), true
}
