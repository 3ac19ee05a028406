package handler

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/wellness-analytics-api/internal/dto"
	"github.com/noah-isme/wellness-analytics-api/internal/service"
	appErrors "github.com/noah-isme/wellness-analytics-api/pkg/errors"
	"github.com/noah-isme/wellness-analytics-api/pkg/response"
)

type exportService interface {
	Generate(ctx context.Context, req service.ExportRequest) (*service.ExportResult, error)
	Download(token string) (*service.ExportFile, error)
}

// ExportHandler creates exports and serves signed downloads.
type ExportHandler struct {
	service         exportService
	validate        *validator.Validate
	loc             *time.Location
	defaultPageSize int
}

// NewExportHandler constructs the handler.
func NewExportHandler(svc exportService, validate *validator.Validate, loc *time.Location, defaultPageSize int) *ExportHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ExportHandler{service: svc, validate: validate, loc: loc, defaultPageSize: defaultPageSize}
}

// Create godoc
// @Summary Export an engagement view as CSV or PDF
// @Tags Exports
// @Accept json
// @Produce json
// @Param schoolId path string true "School ID"
// @Param payload body dto.ExportCreateRequest true "Export request"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schools/{schoolId}/exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	var req dto.ExportCreateRequest
	if err := bindJSON(c, h.validate, &req); err != nil {
		response.Error(c, err)
		return
	}
	window, err := req.Request(h.loc)
	if err != nil {
		response.Error(c, appErrors.ErrValidation.Wrap(err, "invalid window"))
		return
	}
	result, err := h.service.Generate(c.Request.Context(), service.ExportRequest{
		SchoolID: c.Param("schoolId"),
		Dataset:  service.ExportDataset(req.Dataset),
		Format:   service.ExportFormat(req.Format),
		Window:   window,
		Filters:  req.Filters(h.defaultPageSize),
		Limit:    req.Limit,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download an export through its signed token
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200
// @Failure 403 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	file, err := h.service.Download(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Body.Close() //nolint:errcheck

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, file.Size, contentType(file.Name), file.Body, nil)
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".pdf":
		return "application/pdf"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
