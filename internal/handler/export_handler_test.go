package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/wellness-analytics-api/internal/analytics"
	"github.com/noah-isme/wellness-analytics-api/internal/service"
	appErrors "github.com/noah-isme/wellness-analytics-api/pkg/errors"
)

type fakeExportSrv struct {
	last     service.ExportRequest
	result   *service.ExportResult
	err      error
	filePath string
}

func (f *fakeExportSrv) Generate(_ context.Context, req service.ExportRequest) (*service.ExportResult, error) {
	f.last = req
	return f.result, f.err
}

func (f *fakeExportSrv) Download(token string) (*service.ExportFile, error) {
	if f.err != nil {
		return nil, f.err
	}
	file, err := os.Open(f.filePath)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	return &service.ExportFile{Name: filepath.Base(f.filePath), Size: info.Size(), Body: file}, nil
}

func newExportRouter(srv *fakeExportSrv) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewExportHandler(srv, validator.New(), time.UTC, 20)
	r := gin.New()
	r.POST("/schools/:schoolId/exports", h.Create)
	r.GET("/exports/:token", h.Download)
	return r
}

func TestExportHandlerCreate(t *testing.T) {
	srv := &fakeExportSrv{result: &service.ExportResult{ID: "e-1", URL: "/api/v1/exports/tok", Rows: 3}}
	r := newExportRouter(srv)

	rec := sendJSON(r, http.MethodPost, "/schools/sch-1/exports", map[string]interface{}{
		"dataset": "students", "format": "pdf", "period": "month", "risk": "high",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "sch-1", srv.last.SchoolID)
	assert.Equal(t, service.ExportStudents, srv.last.Dataset)
	assert.Equal(t, service.ExportPDF, srv.last.Format)
	assert.Equal(t, analytics.PeriodMonth, srv.last.Window.Period)
	assert.Equal(t, []string{"high"}, srv.last.Filters.Risk)
	assert.Contains(t, string(decodeEnvelope(t, rec).Data), `"url":"/api/v1/exports/tok"`)
}

func TestExportHandlerCreateValidation(t *testing.T) {
	r := newExportRouter(&fakeExportSrv{})

	rec := sendJSON(r, http.MethodPost, "/schools/sch-1/exports", map[string]interface{}{"dataset": "grades"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = sendJSON(r, http.MethodPost, "/schools/sch-1/exports", map[string]interface{}{"dataset": "classes", "format": "xlsx"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportHandlerDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes_1.csv")
	require.NoError(t, os.WriteFile(path, []byte("Class,Grade\n7A,7\n"), 0o600))
	r := newExportRouter(&fakeExportSrv{filePath: path})

	rec := serve(r, http.MethodGet, "/exports/tok")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="classes_1.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "Class,Grade\n7A,7\n", rec.Body.String())
}

func TestExportHandlerDownloadForbidden(t *testing.T) {
	r := newExportRouter(&fakeExportSrv{err: appErrors.Clone(appErrors.ErrForbidden, "download link expired")})

	rec := serve(r, http.MethodGet, "/exports/tok")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
