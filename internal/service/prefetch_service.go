package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/wellness-analytics-api/internal/analytics"
	"github.com/noah-isme/wellness-analytics-api/internal/models"
	"github.com/noah-isme/wellness-analytics-api/pkg/jobs"
)

// ClassWarmer loads class data into the cache.
type ClassWarmer interface {
	WarmClass(ctx context.Context, schoolID, classID string, req analytics.WindowRequest) error
}

// SchoolLister lists schools worth warming at boot.
type SchoolLister interface {
	ActiveSchools(ctx context.Context) ([]string, error)
}

// OverviewLoader computes a school overview.
type OverviewLoader interface {
	Overview(ctx context.Context, schoolID string, req analytics.WindowRequest) (*View[models.SchoolOverview], error)
}

// PrefetchConfig tunes the prefetch worker pool.
type PrefetchConfig struct {
	Workers    int
	BufferSize int
	Retries    int
	RetryDelay time.Duration
}

type prefetchPayload struct {
	SchoolID string
	ClassID  string
	Request  analytics.WindowRequest
}

// PrefetchService warms class detail views off the request path. A class that
// is already queued, warming or awaiting retry is not queued again.
type PrefetchService struct {
	queue   *jobs.Queue[prefetchPayload]
	warmer  ClassWarmer
	metrics *MetricsService
	logger  *zap.Logger
}

// NewPrefetchService builds the service and its queue. Call Start before use.
func NewPrefetchService(warmer ClassWarmer, cfg PrefetchConfig, metrics *MetricsService, logger *zap.Logger) *PrefetchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PrefetchService{
		warmer:  warmer,
		metrics: metrics,
		logger:  logger,
	}
	s.queue = jobs.New("prefetch", s.handle, jobs.Options{
		Workers:  cfg.Workers,
		Capacity: cfg.BufferSize,
		Retries:  cfg.Retries,
		Backoff:  cfg.RetryDelay,
		Observe: func(o jobs.Outcome) {
			metrics.RecordPrefetch(string(o))
		},
		Logger: logger,
	})
	metrics.TrackQueueDepth(s.queue.Pending)
	return s
}

// Start launches the workers.
func (s *PrefetchService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop cancels running warm-ups and waits for the workers.
func (s *PrefetchService) Stop() {
	s.queue.Stop()
}

// Pending reports the queue backlog.
func (s *PrefetchService) Pending() int {
	return s.queue.Pending()
}

// PrefetchClasses queues one warm-up per class. A full queue drops the rest.
func (s *PrefetchService) PrefetchClasses(schoolID string, req analytics.WindowRequest, classIDs []string) {
	for _, classID := range classIDs {
		err := s.queue.Offer(jobs.Task[prefetchPayload]{
			Key:     makeCacheKey("prefetch", schoolID, classID, string(req.Period)),
			Payload: prefetchPayload{SchoolID: schoolID, ClassID: classID, Request: req},
		})
		switch {
		case err == nil, errors.Is(err, jobs.ErrDuplicate):
		case errors.Is(err, jobs.ErrQueueFull):
			s.logger.Debug("prefetch queue full", zap.String("class_id", classID))
		default:
			s.logger.Warn("enqueue prefetch", zap.String("class_id", classID), zap.Error(err))
		}
	}
}

// WarmAll computes the overview of every active school, which in turn queues
// their class prefetches.
func (s *PrefetchService) WarmAll(ctx context.Context, lister SchoolLister, loader OverviewLoader, req analytics.WindowRequest) error {
	schools, err := lister.ActiveSchools(ctx)
	if err != nil {
		return fmt.Errorf("list schools to warm: %w", err)
	}
	for _, schoolID := range schools {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := loader.Overview(ctx, schoolID, req); err != nil {
			s.logger.Warn("warm overview", zap.String("school_id", schoolID), zap.Error(err))
		}
	}
	s.logger.Info("cache warm-up queued", zap.Int("schools", len(schools)))
	return nil
}

func (s *PrefetchService) handle(ctx context.Context, task jobs.Task[prefetchPayload]) error {
	p := task.Payload
	if err := s.warmer.WarmClass(ctx, p.SchoolID, p.ClassID, p.Request); err != nil {
		return fmt.Errorf("warm class %s: %w", p.ClassID, err)
	}
	return nil
}
