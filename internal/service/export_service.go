package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/wellness-analytics-api/internal/analytics"
	"github.com/noah-isme/wellness-analytics-api/internal/models"
	appErrors "github.com/noah-isme/wellness-analytics-api/pkg/errors"
	"github.com/noah-isme/wellness-analytics-api/pkg/export"
	"github.com/noah-isme/wellness-analytics-api/pkg/storage"
)

// exportRowLimit bounds how many rows one export may carry.
const exportRowLimit = 10000

// ExportDataset names the view being exported.
type ExportDataset string

// ExportFormat names the rendered file type.
type ExportFormat string

const (
	ExportClasses     ExportDataset = "classes"
	ExportStudents    ExportDataset = "students"
	ExportLeaderboard ExportDataset = "leaderboard"

	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// ExportSource provides the views that can be exported.
type ExportSource interface {
	Classes(ctx context.Context, schoolID string, req analytics.WindowRequest, filters analytics.FilterState) (*View[[]models.ClassRollup], error)
	Students(ctx context.Context, schoolID string, req analytics.WindowRequest, filters analytics.FilterState) (*View[[]models.StudentStanding], error)
	Leaderboard(ctx context.Context, schoolID string, req analytics.WindowRequest, limit int) (*View[models.Leaderboard], error)
}

type fileStorage interface {
	Put(name string, data []byte) (storage.Object, error)
	Get(name string) (io.ReadCloser, storage.Object, error)
	Expire(maxAge time.Duration) ([]storage.Object, error)
}

type linkSigner interface {
	Sign(exportID, object string) (string, time.Time, error)
	Verify(token string) (*storage.DownloadClaims, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportRequest describes one export.
type ExportRequest struct {
	SchoolID string
	Dataset  ExportDataset
	Format   ExportFormat
	Window   analytics.WindowRequest
	Filters  analytics.FilterState
	Limit    int
}

// ExportFile is an opened export ready to stream. The caller closes Body.
type ExportFile struct {
	Name string
	Size int64
	Body io.ReadCloser
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	ID           string        `json:"id"`
	Dataset      ExportDataset `json:"dataset"`
	Format       ExportFormat  `json:"format"`
	RelativePath string        `json:"-"`
	Token        string        `json:"token"`
	URL          string        `json:"url"`
	Rows         int           `json:"rows"`
	ExpiresAt    time.Time     `json:"expires_at"`
}

// ExportService renders engagement views and stores them behind signed URLs.
type ExportService struct {
	source  ExportSource
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  linkSigner
	metrics *MetricsService
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(source ExportSource, store fileStorage, signer linkSigner, metrics *MetricsService, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		source:  source,
		storage: store,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate renders the requested view and stores the file.
func (s *ExportService) Generate(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	if strings.TrimSpace(req.SchoolID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schoolId is required")
	}
	if req.Format == "" {
		req.Format = ExportCSV
	}
	if req.Format != ExportCSV && req.Format != ExportPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %s", req.Format))
	}

	dataset, title, err := s.buildDataset(ctx, req)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if req.Format == ExportPDF {
		payload, err = s.pdf.Render(dataset, title)
	} else {
		payload, err = s.csv.Render(dataset)
	}
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to render export")
	}

	id := uuid.NewString()
	obj, err := s.storage.Put(s.buildFilename(id, req), payload)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to store export")
	}

	token, expiresAt, err := s.signer.Sign(id, obj.Name)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to sign export")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.metrics.RecordExport(string(req.Dataset), string(req.Format))
	s.logger.Info("export generated",
		zap.String("export_id", id),
		zap.String("dataset", string(req.Dataset)),
		zap.String("format", string(req.Format)),
		zap.Int("rows", len(dataset.Rows)),
	)

	return &ExportResult{
		ID:           id,
		Dataset:      req.Dataset,
		Format:       req.Format,
		RelativePath: obj.Name,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", prefix, token),
		Rows:         len(dataset.Rows),
		ExpiresAt:    expiresAt,
	}, nil
}

// Download verifies a link token and opens the export it points at.
func (s *ExportService) Download(token string) (*ExportFile, error) {
	claims, err := s.signer.Verify(token)
	if errors.Is(err, storage.ErrLinkExpired) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
	}
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	body, obj, err := s.storage.Get(claims.Object)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to open export")
	}
	return &ExportFile{Name: path.Base(obj.Name), Size: obj.Size, Body: body}, nil
}

// Cleanup removes exports older than ttl, or the configured ResultTTL when
// ttl <= 0, and returns their names.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	removed, err := s.storage.Expire(ttl)
	names := make([]string, 0, len(removed))
	for _, obj := range removed {
		names = append(names, obj.Name)
	}
	return names, err
}

// RunCleanup removes stale exports every interval until ctx is done.
func (s *ExportService) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Cleanup(0)
			if err != nil {
				s.logger.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
			}
		}
	}
}

func (s *ExportService) buildFilename(id string, req ExportRequest) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s/%s_%s_%s.%s", sanitizeFilename(req.SchoolID), req.Dataset, timestamp, id[:8], req.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, req ExportRequest) (export.Dataset, string, error) {
	filters := req.Filters.WithPage(1).WithPageSize(exportRowLimit)
	switch req.Dataset {
	case ExportClasses:
		view, err := s.source.Classes(ctx, req.SchoolID, req.Window, filters)
		if err != nil {
			return export.Dataset{}, "", err
		}
		return classDataset(view), fmt.Sprintf("Class Engagement %s", req.SchoolID), nil
	case ExportStudents:
		view, err := s.source.Students(ctx, req.SchoolID, req.Window, filters)
		if err != nil {
			return export.Dataset{}, "", err
		}
		return standingDataset(view.Data, windowSubtitle(view.Window)), fmt.Sprintf("Student Engagement %s", req.SchoolID), nil
	case ExportLeaderboard:
		view, err := s.source.Leaderboard(ctx, req.SchoolID, req.Window, req.Limit)
		if err != nil {
			return export.Dataset{}, "", err
		}
		return leaderboardDataset(view), fmt.Sprintf("Leaderboard %s", req.SchoolID), nil
	default:
		return export.Dataset{}, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported dataset %s", req.Dataset))
	}
}

var classHeaders = []string{"Class", "Grade", "Teacher", "Students", "Assessments (%)", "Activities (%)", "Webinars (%)", "At Risk", "Avg Wellbeing"}

func classDataset(view *View[[]models.ClassRollup]) export.Dataset {
	rows := make([]map[string]string, 0, len(view.Data))
	for _, c := range view.Data {
		rows = append(rows, map[string]string{
			"Class":           c.ClassID,
			"Grade":           c.Grade,
			"Teacher":         c.TeacherName,
			"Students":        strconv.Itoa(c.TotalStudents),
			"Assessments (%)": formatRate(c.Assessments.Rate),
			"Activities (%)":  formatRate(c.Activities.Rate),
			"Webinars (%)":    formatRate(c.Webinars.Rate),
			"At Risk":         strconv.Itoa(c.AtRiskCount),
			"Avg Wellbeing":   strconv.Itoa(c.AvgWellbeing),
		})
	}
	return export.Dataset{Subtitle: windowSubtitle(view.Window), Headers: classHeaders, Rows: rows}
}

var standingHeaders = []string{"Student", "Name", "Class", "Overall (%)", "Risk", "Streak", "Days Inactive", "Wellbeing"}

func standingDataset(standings []models.StudentStanding, subtitle string) export.Dataset {
	return export.Dataset{Subtitle: subtitle, Headers: standingHeaders, Rows: standingRows(standings, "")}
}

func standingRows(standings []models.StudentStanding, section string) []map[string]string {
	rows := make([]map[string]string, 0, len(standings))
	for _, st := range standings {
		inactive := strconv.Itoa(st.DaysInactive)
		if st.NeverActive {
			inactive = "never"
		}
		wellbeing := ""
		if st.WellbeingScore != nil {
			wellbeing = strconv.FormatFloat(*st.WellbeingScore, 'f', 0, 64)
		}
		rows = append(rows, map[string]string{
			"Section":       section,
			"Student":       st.StudentID,
			"Name":          st.StudentName,
			"Class":         st.ClassID,
			"Overall (%)":   formatRate(st.OverallRate),
			"Risk":          string(st.RiskLevel),
			"Streak":        strconv.Itoa(st.DailyStreak),
			"Days Inactive": inactive,
			"Wellbeing":     wellbeing,
		})
	}
	return rows
}

func leaderboardDataset(view *View[models.Leaderboard]) export.Dataset {
	board := view.Data
	rows := standingRows(board.TopPerformers, "top")
	rows = append(rows, standingRows(board.AtRisk, "at_risk")...)
	rows = append(rows, standingRows(board.NonSubmitters, "non_submitter")...)
	subtitle := fmt.Sprintf("%s | risk low %d, medium %d, high %d",
		windowSubtitle(view.Window), board.Distribution.Low, board.Distribution.Medium, board.Distribution.High)
	return export.Dataset{
		Subtitle: subtitle,
		Headers:  append([]string{"Section"}, standingHeaders...),
		Rows:     rows,
	}
}

func formatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', 1, 64)
}

func windowSubtitle(w analytics.Window) string {
	if w.Start.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s to %s", w.Start.Format("2006-01-02"), w.End.Add(-time.Nanosecond).Format("2006-01-02"))
}
