package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/wellness-analytics-api/internal/analytics"
	"github.com/noah-isme/wellness-analytics-api/internal/models"
)

type blockingWarmer struct {
	mu      sync.Mutex
	calls   []string
	started chan string
	release chan struct{}
	err     error
}

func newBlockingWarmer() *blockingWarmer {
	return &blockingWarmer{started: make(chan string, 16), release: make(chan struct{})}
}

func (w *blockingWarmer) WarmClass(ctx context.Context, _ string, classID string, _ analytics.WindowRequest) error {
	w.started <- classID
	select {
	case <-w.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.mu.Lock()
	w.calls = append(w.calls, classID)
	w.mu.Unlock()
	return w.err
}

func (w *blockingWarmer) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.calls)
}

func TestPrefetchServiceWarmsEachClassOnce(t *testing.T) {
	warmer := newBlockingWarmer()
	metrics := NewMetricsService()
	svc := NewPrefetchService(warmer, PrefetchConfig{Workers: 1, BufferSize: 4, RetryDelay: time.Millisecond}, metrics, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	svc.PrefetchClasses("sch-1", weekRequest(), []string{"7A"})
	require.Equal(t, "7A", <-warmer.started)

	// still in flight, so the duplicate is skipped
	svc.PrefetchClasses("sch-1", weekRequest(), []string{"7A"})
	close(warmer.release)

	require.Eventually(t, func() bool { return warmer.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.prefetchJobs.WithLabelValues("queued")))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.prefetchJobs.WithLabelValues("done")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestPrefetchServiceDropsWhenFull(t *testing.T) {
	warmer := newBlockingWarmer()
	metrics := NewMetricsService()
	svc := NewPrefetchService(warmer, PrefetchConfig{Workers: 1, BufferSize: 1}, metrics, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	svc.PrefetchClasses("sch-1", weekRequest(), []string{"7A"})
	require.Equal(t, "7A", <-warmer.started)

	svc.PrefetchClasses("sch-1", weekRequest(), []string{"7B", "7C"})
	assert.Equal(t, 1, svc.Pending())
	assert.Equal(t, 1, metrics.Snapshot().PrefetchQueueDepth)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.prefetchJobs.WithLabelValues("dropped")))

	close(warmer.release)
}

func TestPrefetchServiceRecordsFailures(t *testing.T) {
	warmer := newBlockingWarmer()
	warmer.err = errors.New("db down")
	close(warmer.release)
	metrics := NewMetricsService()
	svc := NewPrefetchService(warmer, PrefetchConfig{Workers: 1, Retries: 1, RetryDelay: time.Millisecond}, metrics, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	svc.PrefetchClasses("sch-1", weekRequest(), []string{"7A"})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.prefetchJobs.WithLabelValues("failed")) == 2
	}, time.Second, 5*time.Millisecond)
}

type schoolListerStub struct {
	schools []string
	err     error
}

func (s schoolListerStub) ActiveSchools(context.Context) ([]string, error) {
	return s.schools, s.err
}

type overviewLoaderStub struct {
	mu    sync.Mutex
	calls []string
}

func (o *overviewLoaderStub) Overview(_ context.Context, schoolID string, _ analytics.WindowRequest) (*View[models.SchoolOverview], error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, schoolID)
	if schoolID == "broken" {
		return nil, errors.New("boom")
	}
	return &View[models.SchoolOverview]{Data: models.SchoolOverview{SchoolID: schoolID}}, nil
}

func TestPrefetchServiceWarmAll(t *testing.T) {
	svc := NewPrefetchService(newBlockingWarmer(), PrefetchConfig{}, nil, zap.NewNop())
	loader := &overviewLoaderStub{}

	err := svc.WarmAll(context.Background(), schoolListerStub{schools: []string{"sch-1", "broken", "sch-2"}}, loader, weekRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{"sch-1", "broken", "sch-2"}, loader.calls)

	err = svc.WarmAll(context.Background(), schoolListerStub{err: errors.New("no db")}, loader, weekRequest())
	require.Error(t, err)
}
