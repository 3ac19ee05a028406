package service

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/wellness-analytics-api/pkg/errors"
)

type memoryCacheRepo struct {
	mu       sync.Mutex
	store    map[string][]byte
	fetchErr error
}

func (s *memoryCacheRepo) Fetch(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	payload, ok := s.store[key]
	if !ok {
		return nil, appErrors.ErrCacheMiss
	}
	return payload, nil
}

func (s *memoryCacheRepo) Put(_ context.Context, key string, payload []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	s.store[key] = payload
	return nil
}

func (s *memoryCacheRepo) Remove(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.store, k)
	}
	return nil
}

func (s *memoryCacheRepo) Sweep(_ context.Context, pattern string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.store {
		if ok, _ := path.Match(pattern, k); ok {
			delete(s.store, k)
			n++
		}
	}
	return n, nil
}

func (s *memoryCacheRepo) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.store)
}

func TestRememberCachesLoadedValue(t *testing.T) {
	repo := &memoryCacheRepo{}
	metrics := NewMetricsService()
	cache := NewCacheService(repo, metrics, time.Minute, zap.NewNop())
	calls := 0
	load := func(context.Context) ([]string, error) {
		calls++
		return []string{"7A", "7B"}, nil
	}

	first, hit, err := Remember(context.Background(), cache, "roster:s1", 0, load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{"7A", "7B"}, first)

	second, hit, err := Remember(context.Background(), cache, "roster:s1", 0, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.CacheHits)
	assert.Equal(t, uint64(1), snapshot.CacheMisses)
}

func TestRememberSharesConcurrentLoads(t *testing.T) {
	cache := NewCacheService(nil, nil, time.Minute, nil)
	var calls int32
	gate := make(chan struct{})
	load := func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-gate
		return 7, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, _ = Remember(context.Background(), cache, "roster:s1", 0, load)
		}(i)
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, []int{7, 7, 7, 7}, results)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRememberDegradesOnCacheFailure(t *testing.T) {
	repo := &memoryCacheRepo{fetchErr: errors.New("connection refused")}
	cache := NewCacheService(repo, nil, time.Minute, zap.NewNop())

	value, hit, err := Remember(context.Background(), cache, "k", 0, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 42, value)
}

func TestRememberPropagatesLoadError(t *testing.T) {
	cache := NewCacheService(&memoryCacheRepo{}, nil, time.Minute, zap.NewNop())
	_, _, err := Remember(context.Background(), cache, "k", 0, func(context.Context) (int, error) { return 0, errors.New("db down") })
	require.Error(t, err)

	var nilCache *CacheService
	v, hit, err := Remember(context.Background(), nilCache, "k", 0, func(context.Context) (int, error) { return 3, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 3, v)
}

func TestCacheServiceWithoutStoreIsInert(t *testing.T) {
	cache := NewCacheService(nil, nil, time.Minute, nil)

	require.NoError(t, cache.Write(context.Background(), "k", 1, 0))
	var dest int
	hit, err := cache.Read(context.Background(), "k", &dest)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.False(t, cache.Active())

	var nilCache *CacheService
	assert.False(t, nilCache.Active())
	require.NoError(t, nilCache.Forget(context.Background(), "k"))
}

func TestCacheServiceDropsUndecodableEntries(t *testing.T) {
	repo := &memoryCacheRepo{}
	require.NoError(t, repo.Put(context.Background(), "k", []byte("{not json"), 0))
	cache := NewCacheService(repo, nil, time.Minute, nil)

	var dest map[string]int
	hit, err := cache.Read(context.Background(), "k", &dest)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Zero(t, repo.len())
}

func TestCacheServiceSweep(t *testing.T) {
	repo := &memoryCacheRepo{}
	cache := NewCacheService(repo, nil, time.Minute, nil)
	ctx := context.Background()
	require.NoError(t, cache.Write(ctx, "engagement:rows:a", 1, 0))
	require.NoError(t, cache.Write(ctx, "engagement:rows:b", 2, 0))
	require.NoError(t, cache.Write(ctx, "nav:u1", 3, 0))

	n, err := cache.Sweep(ctx, "engagement:rows:")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, repo.len())
}

func TestMakeCacheKeyEscapesSeparators(t *testing.T) {
	assert.Equal(t, "engagement:rows:s1:week|1|2", makeCacheKey("engagement:rows", "s1", "", "week:1:2"))
}
