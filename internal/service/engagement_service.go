package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/wellness-analytics-api/internal/analytics"
	"github.com/noah-isme/wellness-analytics-api/internal/models"
	appErrors "github.com/noah-isme/wellness-analytics-api/pkg/errors"
)

var errOutsideScope = appErrors.Clone(appErrors.ErrForbidden, "school outside of token scope")

// EngagementRepository describes the record store required by EngagementService.
type EngagementRepository interface {
	DailyEngagement(ctx context.Context, filter models.EngagementFilter) ([]models.DailyEngagement, error)
	ListClasses(ctx context.Context, schoolID, search string) ([]models.Class, error)
	GetClass(ctx context.Context, classID string) (*models.Class, error)
}

// ClassPrefetcher warms class detail data in the background.
type ClassPrefetcher interface {
	PrefetchClasses(schoolID string, req analytics.WindowRequest, classIDs []string)
}

// EngagementConfig tunes EngagementService. HistoryDays is how far before a
// window rows are still loaded so streaks can run into it; it never drops
// below InactiveDays.
type EngagementConfig struct {
	CacheTTL        time.Duration
	InactiveDays    int
	HistoryDays     int
	LeaderboardSize int
	Trend           analytics.TrendPoints
}

// View wraps a computed payload with the window it covers.
type View[T any] struct {
	Data       T
	Window     analytics.Window
	CacheHit   bool
	Pagination *models.Pagination
}

// EngagementService resolves windows, loads records through the cache and runs
// the analytics engine over them.
type EngagementService struct {
	repo     EngagementRepository
	cache    *CacheService
	metrics  *MetricsService
	memo     *analytics.Memo
	resolver analytics.WindowResolver
	cfg      EngagementConfig
	logger   *zap.Logger
	prefetch ClassPrefetcher
}

// NewEngagementService constructs the service.
func NewEngagementService(repo EngagementRepository, cache *CacheService, metrics *MetricsService, memo *analytics.Memo, resolver analytics.WindowResolver, cfg EngagementConfig, logger *zap.Logger) *EngagementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.InactiveDays <= 0 {
		cfg.InactiveDays = analytics.DefaultInactiveDays
	}
	if cfg.HistoryDays < cfg.InactiveDays {
		cfg.HistoryDays = cfg.InactiveDays
	}
	if cfg.LeaderboardSize <= 0 {
		cfg.LeaderboardSize = 10
	}
	if memo == nil {
		memo, _ = analytics.NewMemo(0, analytics.DefaultRiskPolicy())
	}
	return &EngagementService{
		repo:     repo,
		cache:    cache,
		metrics:  metrics,
		memo:     memo,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
	}
}

// SetPrefetcher enables background warming of class details after overview requests.
func (s *EngagementService) SetPrefetcher(p ClassPrefetcher) {
	s.prefetch = p
}

// ResolveWindow validates and resolves a window request.
func (s *EngagementService) ResolveWindow(req analytics.WindowRequest) (analytics.Window, error) {
	window, err := s.resolver.Resolve(req)
	if err != nil {
		return analytics.Window{}, appErrors.Clone(appErrors.ErrInvalidRange, err.Error())
	}
	return window, nil
}

// Overview returns the school summary for the window.
func (s *EngagementService) Overview(ctx context.Context, schoolID string, req analytics.WindowRequest) (*View[models.SchoolOverview], error) {
	if strings.TrimSpace(schoolID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schoolId is required")
	}
	window, err := s.ResolveWindow(req)
	if err != nil {
		return nil, err
	}

	var (
		rows     []models.DailyEngagement
		classes  []models.Class
		rowsHit  bool
		rosterOK bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, rowsHit, err = s.loadRows(gctx, string(analytics.LevelOverview), models.EngagementFilter{SchoolID: schoolID}, window)
		return err
	})
	g.Go(func() error {
		var err error
		classes, _, err = s.loadRoster(gctx, schoolID)
		if err != nil {
			// the overview still renders without roster metadata
			s.logger.Warn("load roster for overview", zap.String("school_id", schoolID), zap.Error(err))
			return nil
		}
		rosterOK = true
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	start := time.Now()
	records := analytics.Collapse(rows, window)
	overview := analytics.Overview(schoolID, records, s.memo.Policy())
	if rosterOK && len(classes) > overview.TotalClasses {
		overview.TotalClasses = len(classes)
	}
	s.metrics.ObserveCompute("overview", time.Since(start))

	if s.prefetch != nil && rosterOK {
		ids := make([]string, 0, len(classes))
		for _, c := range classes {
			ids = append(ids, c.ID)
		}
		s.prefetch.PrefetchClasses(schoolID, req, ids)
	}

	return &View[models.SchoolOverview]{Data: overview, Window: window, CacheHit: rowsHit}, nil
}

// Classes returns the filtered, paginated class rollups of a school.
func (s *EngagementService) Classes(ctx context.Context, schoolID string, req analytics.WindowRequest, filters analytics.FilterState) (*View[[]models.ClassRollup], error) {
	if strings.TrimSpace(schoolID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schoolId is required")
	}
	window, err := s.ResolveWindow(req)
	if err != nil {
		return nil, err
	}

	var (
		rows    []models.DailyEngagement
		classes []models.Class
		rowsHit bool
		rostHit bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, rowsHit, err = s.loadRows(gctx, string(analytics.LevelOverview), models.EngagementFilter{SchoolID: schoolID}, window)
		return err
	})
	g.Go(func() error {
		var err error
		classes, rostHit, err = s.loadRoster(gctx, schoolID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	start := time.Now()
	records := analytics.Collapse(rows, window)
	rollups, memoHit := s.memo.Aggregate(records, window, analytics.GroupByClass)
	s.metrics.RecordMemoLookup(memoHit)
	page := analytics.ClassPipeline().Apply(analytics.JoinRoster(rollups, classes), filters)
	s.metrics.ObserveCompute("classes", time.Since(start))

	pagination := page.Pagination()
	return &View[[]models.ClassRollup]{Data: page.Items, Window: window, CacheHit: rowsHit && rostHit, Pagination: &pagination}, nil
}

// Class returns one class rollup plus its filtered, paginated student
// standings. A non-empty scopeSchool refuses classes of any other school.
func (s *EngagementService) Class(ctx context.Context, scopeSchool, classID string, req analytics.WindowRequest, filters analytics.FilterState) (*View[models.ClassDetail], error) {
	if strings.TrimSpace(classID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "classId is required")
	}
	window, err := s.ResolveWindow(req)
	if err != nil {
		return nil, err
	}

	class, err := s.repo.GetClass(ctx, classID)
	if err != nil {
		return nil, s.upstream(string(analytics.LevelClass), err)
	}
	if scopeSchool != "" && class.SchoolID != scopeSchool {
		return nil, errOutsideScope
	}
	rows, hit, err := s.loadRows(ctx, string(analytics.LevelClass), models.EngagementFilter{SchoolID: class.SchoolID, ClassID: classID}, window)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	records := analytics.Collapse(rows, window)
	rollups, memoHit := s.memo.Aggregate(records, window, analytics.GroupByClass)
	s.metrics.RecordMemoLookup(memoHit)
	joined := analytics.JoinRoster(rollups, []models.Class{*class})
	standings := analytics.RankWindow(records, window, s.memo.Policy())
	page := analytics.StudentPipeline(s.cfg.InactiveDays).Apply(standings, filters)
	s.metrics.ObserveCompute("class", time.Since(start))

	detail := models.ClassDetail{Rollup: joined[0], Students: page.Items}
	pagination := page.Pagination()
	return &View[models.ClassDetail]{Data: detail, Window: window, CacheHit: hit, Pagination: &pagination}, nil
}

// Students returns the filtered, paginated student standings of a school.
func (s *EngagementService) Students(ctx context.Context, schoolID string, req analytics.WindowRequest, filters analytics.FilterState) (*View[[]models.StudentStanding], error) {
	standings, window, hit, err := s.standings(ctx, schoolID, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	page := analytics.StudentPipeline(s.cfg.InactiveDays).Apply(standings, filters)
	s.metrics.ObserveCompute("students", time.Since(start))

	pagination := page.Pagination()
	return &View[[]models.StudentStanding]{Data: page.Items, Window: window, CacheHit: hit, Pagination: &pagination}, nil
}

// Student returns a student's classified record and day-by-day history. A
// non-empty scopeSchool refuses students of any other school.
func (s *EngagementService) Student(ctx context.Context, scopeSchool, studentID string, req analytics.WindowRequest) (*View[models.StudentHistory], error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}
	window, err := s.ResolveWindow(req)
	if err != nil {
		return nil, err
	}

	rows, hit, err := s.loadRows(ctx, string(analytics.LevelStudent), models.EngagementFilter{StudentID: studentID}, window)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	if scopeSchool != "" && rows[0].SchoolID != scopeSchool {
		return nil, errOutsideScope
	}

	start := time.Now()
	records := analytics.Collapse(rows, window)
	standings := analytics.RankWindow(records, window, s.memo.Policy())
	days := make([]models.DailyEngagement, 0, len(rows))
	for _, row := range rows {
		if row.ActivityDate != nil && window.Contains(*row.ActivityDate) {
			days = append(days, row)
		}
	}
	sort.SliceStable(days, func(i, j int) bool { return days[i].ActivityDate.Before(*days[j].ActivityDate) })
	s.metrics.ObserveCompute("student", time.Since(start))

	return &View[models.StudentHistory]{Data: models.StudentHistory{Standing: standings[0], Days: days}, Window: window, CacheHit: hit}, nil
}

// Leaderboard returns top performers, at-risk students, non-submitters and the
// risk distribution. limit <= 0 uses the configured size.
func (s *EngagementService) Leaderboard(ctx context.Context, schoolID string, req analytics.WindowRequest, limit int) (*View[models.Leaderboard], error) {
	standings, window, hit, err := s.standings(ctx, schoolID, req)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.cfg.LeaderboardSize
	}

	start := time.Now()
	board := analytics.BuildLeaderboard(standings, limit, s.cfg.InactiveDays)
	s.metrics.ObserveCompute("leaderboard", time.Since(start))

	return &View[models.Leaderboard]{Data: board, Window: window, CacheHit: hit}, nil
}

// TrendQuery selects a trend series.
type TrendQuery struct {
	SchoolID string
	ClassID  string
	Window   analytics.WindowRequest
	Bucket   analytics.Bucket
	Metric   analytics.Metric
}

// Trend partitions the resolved window into the configured number of points
// for the bucket.
func (s *EngagementService) Trend(ctx context.Context, q TrendQuery) (*View[[]models.SeriesPoint], error) {
	if strings.TrimSpace(q.SchoolID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schoolId is required")
	}
	window, err := s.ResolveWindow(q.Window)
	if err != nil {
		return nil, err
	}

	level := string(analytics.LevelOverview)
	if q.ClassID != "" {
		level = string(analytics.LevelClass)
	}
	rows, hit, err := s.loadRows(ctx, level, models.EngagementFilter{SchoolID: q.SchoolID, ClassID: q.ClassID}, window)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	series, err := analytics.BuildSeries(rows, window, q.Bucket, q.Metric, s.cfg.Trend, s.memo.Policy())
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	s.metrics.ObserveCompute("trend", time.Since(start))

	return &View[[]models.SeriesPoint]{Data: series, Window: window, CacheHit: hit}, nil
}

// WarmClass loads a class's rows into the cache.
func (s *EngagementService) WarmClass(ctx context.Context, schoolID, classID string, req analytics.WindowRequest) error {
	window, err := s.ResolveWindow(req)
	if err != nil {
		return err
	}
	_, _, err = s.loadRows(ctx, string(analytics.LevelClass), models.EngagementFilter{SchoolID: schoolID, ClassID: classID}, window)
	return err
}

func (s *EngagementService) standings(ctx context.Context, schoolID string, req analytics.WindowRequest) ([]models.StudentStanding, analytics.Window, bool, error) {
	if strings.TrimSpace(schoolID) == "" {
		return nil, analytics.Window{}, false, appErrors.Clone(appErrors.ErrValidation, "schoolId is required")
	}
	window, err := s.ResolveWindow(req)
	if err != nil {
		return nil, analytics.Window{}, false, err
	}
	rows, hit, err := s.loadRows(ctx, string(analytics.LevelOverview), models.EngagementFilter{SchoolID: schoolID}, window)
	if err != nil {
		return nil, analytics.Window{}, false, err
	}
	records := analytics.Collapse(rows, window)
	return analytics.RankWindow(records, window, s.memo.Policy()), window, hit, nil
}

// Refresh drops the cached records and roster of a school so the next read
// goes to the record store, and reports how many record entries went. Student
// histories are cached per student and age out on their own TTL.
func (s *EngagementService) Refresh(ctx context.Context, schoolID string) (int, error) {
	if strings.TrimSpace(schoolID) == "" {
		return 0, appErrors.Clone(appErrors.ErrValidation, "schoolId is required")
	}
	if !s.cache.Active() {
		return 0, nil
	}
	removed, err := s.cache.Sweep(ctx, makeCacheKey("engagement:rows", schoolID)+":")
	if err != nil {
		return removed, appErrors.ErrServiceUnavailable.Wrap(err, "cache refresh failed")
	}
	if err := s.cache.Forget(ctx, makeCacheKey("engagement:roster", schoolID)); err != nil {
		return removed, appErrors.ErrServiceUnavailable.Wrap(err, "cache refresh failed")
	}
	s.logger.Info("school cache refreshed", zap.String("school_id", schoolID), zap.Int("entries", removed))
	return removed, nil
}

func (s *EngagementService) loadRows(ctx context.Context, level string, filter models.EngagementFilter, window analytics.Window) ([]models.DailyEngagement, bool, error) {
	filter.Start = window.Start
	filter.End = window.End
	filter.HistoryFrom = window.Start.AddDate(0, 0, -s.cfg.HistoryDays)
	key := makeCacheKey("engagement:rows", filter.SchoolID, "c="+filter.ClassID, "s="+filter.StudentID, window.Key())

	rows, hit, err := Remember(ctx, s.cache, key, s.cfg.CacheTTL, func(ctx context.Context) ([]models.DailyEngagement, error) {
		start := time.Now()
		rows, err := s.repo.DailyEngagement(ctx, filter)
		s.metrics.ObserveDBQuery("daily_engagement_"+level, time.Since(start))
		return rows, err
	})
	if err != nil {
		return nil, false, s.upstream(level, err)
	}
	return rows, hit, nil
}

func (s *EngagementService) loadRoster(ctx context.Context, schoolID string) ([]models.Class, bool, error) {
	key := makeCacheKey("engagement:roster", schoolID)
	classes, hit, err := Remember(ctx, s.cache, key, s.cfg.CacheTTL, func(ctx context.Context) ([]models.Class, error) {
		start := time.Now()
		classes, err := s.repo.ListClasses(ctx, schoolID, "")
		s.metrics.ObserveDBQuery("list_classes", time.Since(start))
		return classes, err
	})
	if err != nil {
		return nil, false, s.upstream(string(analytics.LevelOverview), err)
	}
	return classes, hit, nil
}

// upstream keeps typed errors (not found, validation) and wraps everything else
// as a record store failure for level.
func (s *EngagementService) upstream(level string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var typed *appErrors.Error
	if errors.As(err, &typed) {
		return typed
	}
	s.metrics.RecordUpstreamError(level)
	s.logger.Error("record store fetch failed", zap.String("level", level), zap.Error(err))
	return appErrors.ErrUpstreamFetch.Wrap(err, fmt.Sprintf("failed to load %s data", level))
}
