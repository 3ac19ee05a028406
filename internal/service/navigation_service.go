package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/wellness-analytics-api/internal/analytics"
	"github.com/noah-isme/wellness-analytics-api/internal/models"
	appErrors "github.com/noah-isme/wellness-analytics-api/pkg/errors"
)

const (
	maxTrackedSessions = 1024
	sessionLockStripes = 64
)

// LevelLoader computes the data shown at each drill-down level.
type LevelLoader interface {
	Overview(ctx context.Context, schoolID string, req analytics.WindowRequest) (*View[models.SchoolOverview], error)
	Classes(ctx context.Context, schoolID string, req analytics.WindowRequest, filters analytics.FilterState) (*View[[]models.ClassRollup], error)
	Class(ctx context.Context, scopeSchool, classID string, req analytics.WindowRequest, filters analytics.FilterState) (*View[models.ClassDetail], error)
	Student(ctx context.Context, scopeSchool, studentID string, req analytics.WindowRequest) (*View[models.StudentHistory], error)
}

// NavigationSession is the persisted drill-down state of one user.
type NavigationSession struct {
	UserID    string                  `json:"user_id"`
	SchoolID  string                  `json:"school_id"`
	Window    analytics.WindowRequest `json:"window"`
	Snapshot  analytics.Snapshot      `json:"snapshot"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// OverviewLevel is the payload of the overview frame.
type OverviewLevel struct {
	Overview   models.SchoolOverview `json:"overview"`
	Classes    []models.ClassRollup  `json:"classes"`
	Pagination *models.Pagination    `json:"pagination,omitempty"`
}

// ClassLevel is the payload of a class frame.
type ClassLevel struct {
	Detail     models.ClassDetail `json:"detail"`
	Pagination *models.Pagination `json:"pagination,omitempty"`
}

// EntityLevel identifies an item or response frame; their content is served by
// the assessment system, not the record store.
type EntityLevel struct {
	Level analytics.Level `json:"level"`
	ID    string          `json:"id"`
}

// NavigationState is returned by every navigation operation.
type NavigationState struct {
	SchoolID string                `json:"school_id"`
	Path     []analytics.Frame     `json:"path"`
	Current  analytics.Frame       `json:"current"`
	Status   analytics.FetchStatus `json:"status"`
	Error    string                `json:"error,omitempty"`
	// Retryable marks a failed level whose load may succeed if repeated.
	Retryable bool `json:"retryable,omitempty"`
	// Stale marks Data loaded by an earlier request, shown beside the error.
	Stale  bool              `json:"stale,omitempty"`
	Data   interface{}       `json:"data,omitempty"`
	Window *analytics.Window `json:"window,omitempty"`
}

// NavigationService persists per-user drill-down sessions and loads the data
// for the current level with last-request-wins semantics.
type NavigationService struct {
	loader   LevelLoader
	cache    *CacheService
	metrics  *MetricsService
	ttl      time.Duration
	logger   *zap.Logger
	local    *lru.Cache[string, NavigationSession]
	trackers *lru.Cache[string, *analytics.FetchTracker]
	locks    [sessionLockStripes]sync.Mutex
	now      func() time.Time
}

// NewNavigationService constructs the service. Sessions are kept in a bounded
// local cache and, when enabled, in Redis.
func NewNavigationService(loader LevelLoader, cache *CacheService, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) (*NavigationService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	local, err := lru.New[string, NavigationSession](maxTrackedSessions)
	if err != nil {
		return nil, err
	}
	trackers, err := lru.New[string, *analytics.FetchTracker](maxTrackedSessions)
	if err != nil {
		return nil, err
	}
	return &NavigationService{
		loader:   loader,
		cache:    cache,
		metrics:  metrics,
		ttl:      ttl,
		logger:   logger,
		local:    local,
		trackers: trackers,
		now:      time.Now,
	}, nil
}

// Start begins (or restarts) a session at the overview of schoolID.
func (s *NavigationService) Start(ctx context.Context, userID, schoolID string, window analytics.WindowRequest) (*NavigationState, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "user is required")
	}
	if strings.TrimSpace(schoolID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "school_id is required")
	}
	session := NavigationSession{
		UserID:   userID,
		SchoolID: schoolID,
		Window:   window,
		Snapshot: analytics.NewNavigator().Snapshot(),
	}
	unlock := s.lock(userID)
	err := s.save(ctx, &session)
	unlock()
	if err != nil {
		return nil, err
	}
	return s.render(ctx, session, analytics.NewNavigator()), nil
}

// State returns the current session state with freshly loaded level data.
func (s *NavigationService) State(ctx context.Context, userID string) (*NavigationState, error) {
	session, nav, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.render(ctx, session, nav), nil
}

// Push drills into level/id.
func (s *NavigationService) Push(ctx context.Context, userID string, level analytics.Level, id string) (*NavigationState, error) {
	session, next, err := s.mutate(ctx, userID, func(nav analytics.Navigator) (analytics.Navigator, error) {
		return nav.Push(level, id)
	})
	if err != nil {
		return nil, err
	}
	return s.render(ctx, session, next), nil
}

// Pop returns to the parent level, restoring its filters and context.
func (s *NavigationService) Pop(ctx context.Context, userID string) (*NavigationState, error) {
	session, next, err := s.mutate(ctx, userID, func(nav analytics.Navigator) (analytics.Navigator, error) {
		left := nav.Current().Level
		next, err := nav.Pop()
		if err != nil {
			return nav, err
		}
		s.tracker(userID).Forget(left)
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return s.render(ctx, session, next), nil
}

// Reset returns to the overview.
func (s *NavigationService) Reset(ctx context.Context, userID string) (*NavigationState, error) {
	session, next, err := s.mutate(ctx, userID, func(nav analytics.Navigator) (analytics.Navigator, error) {
		for _, frame := range nav.Path()[1:] {
			s.tracker(userID).Forget(frame.Level)
		}
		return nav.Reset(), nil
	})
	if err != nil {
		return nil, err
	}
	return s.render(ctx, session, next), nil
}

// UpdateFilters replaces the filters of the current level.
func (s *NavigationService) UpdateFilters(ctx context.Context, userID string, filters analytics.FilterState) (*NavigationState, error) {
	session, next, err := s.mutate(ctx, userID, func(nav analytics.Navigator) (analytics.Navigator, error) {
		return nav.WithFilters(filters), nil
	})
	if err != nil {
		return nil, err
	}
	return s.render(ctx, session, next), nil
}

// UpdateContext stores scroll/selection context on the current level.
func (s *NavigationService) UpdateContext(ctx context.Context, userID string, selection analytics.SelectionContext) (*NavigationState, error) {
	session, next, err := s.mutate(ctx, userID, func(nav analytics.Navigator) (analytics.Navigator, error) {
		return nav.WithContext(selection), nil
	})
	if err != nil {
		return nil, err
	}
	state := s.describe(session, next)
	tracked := s.tracker(userID).State(next.Current().Level)
	state.Status, state.Error, state.Data, state.Stale = tracked.Status, tracked.Error, tracked.Data, tracked.Stale
	return state, nil
}

// End discards the session.
func (s *NavigationService) End(ctx context.Context, userID string) error {
	s.local.Remove(userID)
	s.trackers.Remove(userID)
	return s.cache.Forget(ctx, sessionKey(userID))
}

// mutate applies step to the user's stored navigator and saves the result.
// Steps of one user run one at a time; level loads happen after the lock is
// released so a newer request can still supersede them.
func (s *NavigationService) mutate(ctx context.Context, userID string, step func(analytics.Navigator) (analytics.Navigator, error)) (NavigationSession, analytics.Navigator, error) {
	unlock := s.lock(userID)
	defer unlock()

	session, nav, err := s.load(ctx, userID)
	if err != nil {
		return NavigationSession{}, analytics.Navigator{}, err
	}
	next, err := step(nav)
	if err != nil {
		return NavigationSession{}, analytics.Navigator{}, mapNavigationError(err)
	}
	session.Snapshot = next.Snapshot()
	if err := s.save(ctx, &session); err != nil {
		return NavigationSession{}, analytics.Navigator{}, err
	}
	return session, next, nil
}

func (s *NavigationService) lock(userID string) func() {
	mu := &s.locks[xxhash.Sum64String(userID)%uint64(len(s.locks))]
	mu.Lock()
	return mu.Unlock
}

// render loads the current level. Failures are reported on the level, not as
// an error of the call; superseded loads report the tracker's current state.
func (s *NavigationService) render(ctx context.Context, session NavigationSession, nav analytics.Navigator) *NavigationState {
	state := s.describe(session, nav)
	frame := nav.Current()
	tracker := s.tracker(session.UserID)

	fetchCtx, ticket := tracker.Begin(ctx, frame.Level)
	data, window, err := s.loadLevel(fetchCtx, session, frame)
	if err != nil && s.logger != nil {
		s.logger.Debug("navigation level failed", zap.String("level", string(frame.Level)), zap.Error(err))
	}
	if cerr := tracker.Complete(ticket, data, err); errors.Is(cerr, analytics.ErrStaleSelection) {
		s.metrics.RecordStaleDiscard()
	}

	current := tracker.State(frame.Level)
	state.Status = current.Status
	state.Error = current.Error
	state.Data = current.Data
	state.Stale = current.Stale
	if err != nil && current.Status == analytics.FetchFailed {
		state.Retryable = appErrors.FromError(err).Retryable
	}
	if err == nil && window != nil {
		state.Window = window
	}
	return state
}

func (s *NavigationService) describe(session NavigationSession, nav analytics.Navigator) *NavigationState {
	return &NavigationState{
		SchoolID: session.SchoolID,
		Path:     nav.Path(),
		Current:  nav.Current(),
		Status:   analytics.FetchIdle,
	}
}

func (s *NavigationService) loadLevel(ctx context.Context, session NavigationSession, frame analytics.Frame) (interface{}, *analytics.Window, error) {
	switch frame.Level {
	case analytics.LevelOverview:
		overview, err := s.loader.Overview(ctx, session.SchoolID, session.Window)
		if err != nil {
			return nil, nil, err
		}
		classes, err := s.loader.Classes(ctx, session.SchoolID, session.Window, frame.Filters)
		if err != nil {
			return nil, nil, err
		}
		return OverviewLevel{Overview: overview.Data, Classes: classes.Data, Pagination: classes.Pagination}, &overview.Window, nil
	case analytics.LevelClass:
		view, err := s.loader.Class(ctx, session.SchoolID, frame.ID, session.Window, frame.Filters)
		if err != nil {
			return nil, nil, err
		}
		return ClassLevel{Detail: view.Data, Pagination: view.Pagination}, &view.Window, nil
	case analytics.LevelStudent:
		view, err := s.loader.Student(ctx, session.SchoolID, frame.ID, session.Window)
		if err != nil {
			return nil, nil, err
		}
		return view.Data, &view.Window, nil
	default:
		return EntityLevel{Level: frame.Level, ID: frame.ID}, nil, nil
	}
}

func (s *NavigationService) load(ctx context.Context, userID string) (NavigationSession, analytics.Navigator, error) {
	if strings.TrimSpace(userID) == "" {
		return NavigationSession{}, analytics.Navigator{}, appErrors.Clone(appErrors.ErrUnauthorized, "user is required")
	}

	session, ok := s.local.Get(userID)
	if !ok {
		hit, err := s.cache.Read(ctx, sessionKey(userID), &session)
		if err != nil || !hit {
			return NavigationSession{}, analytics.Navigator{}, appErrors.Clone(appErrors.ErrNotFound, "navigation session not found")
		}
		s.local.Add(userID, session)
	}

	nav, err := analytics.Restore(session.Snapshot)
	if err != nil {
		s.logger.Warn("discarding corrupt navigation session", zap.String("user_id", userID), zap.Error(err))
		nav = analytics.NewNavigator()
	}
	return session, nav, nil
}

func (s *NavigationService) save(ctx context.Context, session *NavigationSession) error {
	session.UpdatedAt = s.now().UTC()
	s.local.Add(session.UserID, *session)
	if err := s.cache.Write(ctx, sessionKey(session.UserID), session, s.ttl); err != nil {
		// the local copy still serves this instance
		s.logger.Warn("persist navigation session", zap.String("user_id", session.UserID), zap.Error(err))
	}
	return nil
}

func (s *NavigationService) tracker(userID string) *analytics.FetchTracker {
	if t, ok := s.trackers.Get(userID); ok {
		return t
	}
	t := analytics.NewFetchTracker()
	if existing, ok, _ := s.trackers.PeekOrAdd(userID, t); ok {
		return existing
	}
	return t
}

func sessionKey(userID string) string {
	return makeCacheKey("nav", userID)
}

func mapNavigationError(err error) error {
	switch {
	case errors.Is(err, analytics.ErrInvalidTransition):
		return appErrors.Clone(appErrors.ErrInvalidTransition, err.Error())
	case errors.Is(err, analytics.ErrAtRoot):
		return appErrors.Clone(appErrors.ErrInvalidTransition, err.Error())
	default:
		return err
	}
}
