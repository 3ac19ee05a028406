package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	appErrors "github.com/noah-isme/wellness-analytics-api/pkg/errors"
)

// CacheRepository is the shared byte store behind CacheService.
type CacheRepository interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Remove(ctx context.Context, keys ...string) error
	Sweep(ctx context.Context, pattern string) (int, error)
}

// CacheService stores JSON encoded values in the shared cache. With no store
// it is inert: reads miss and writes succeed silently. A nil *CacheService
// behaves the same way.
type CacheService struct {
	store   CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	flights singleflight.Group
}

// NewCacheService wires store. ttl applies to writes that do not name one.
func NewCacheService(store CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *CacheService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{store: store, metrics: metrics, ttl: ttl, logger: logger}
}

// Active reports whether a shared store is attached.
func (s *CacheService) Active() bool {
	return s != nil && s.store != nil
}

// Read decodes the value at key into dest and reports a hit. Entries that no
// longer decode are removed and count as a miss.
func (s *CacheService) Read(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Active() {
		return false, nil
	}
	start := time.Now()
	payload, err := s.store.Fetch(ctx, key)
	if errors.Is(err, appErrors.ErrCacheMiss) {
		s.metrics.RecordCacheOperation(false, time.Since(start))
		return false, nil
	}
	if err != nil {
		s.metrics.RecordCacheOperation(false, time.Since(start))
		s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		s.metrics.RecordCacheOperation(false, time.Since(start))
		s.logger.Debug("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = s.store.Remove(ctx, key)
		return false, nil
	}
	s.metrics.RecordCacheOperation(true, time.Since(start))
	return true, nil
}

// Write encodes value and stores it at key. ttl <= 0 uses the default.
func (s *CacheService) Write(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Active() {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value %s: %w", key, err)
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	start := time.Now()
	err = s.store.Put(ctx, key, payload, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Forget removes keys.
func (s *CacheService) Forget(ctx context.Context, keys ...string) error {
	if !s.Active() {
		return nil
	}
	if err := s.store.Remove(ctx, keys...); err != nil {
		s.logger.Warn("cache forget failed", zap.Strings("keys", keys), zap.Error(err))
		return err
	}
	return nil
}

// Sweep removes every key under prefix and reports how many went.
func (s *CacheService) Sweep(ctx context.Context, prefix string) (int, error) {
	if !s.Active() {
		return 0, nil
	}
	n, err := s.store.Sweep(ctx, prefix+"*")
	if err != nil {
		s.logger.Warn("cache sweep failed", zap.String("prefix", prefix), zap.Error(err))
	}
	return n, err
}

// Remember is cache-aside around load. Concurrent misses on one key share a
// single load. Cache failures fall through to load; the boolean reports a hit.
func Remember[T any](ctx context.Context, cache *CacheService, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, bool, error) {
	var zero T
	if cache == nil {
		v, err := load(ctx)
		return v, false, err
	}

	var cached T
	if hit, err := cache.Read(ctx, key, &cached); err == nil && hit {
		return cached, true, nil
	}

	v, err, _ := cache.flights.Do(key, func() (interface{}, error) {
		loaded, err := load(ctx)
		if err != nil {
			return nil, err
		}
		_ = cache.Write(ctx, key, loaded, ttl)
		return loaded, nil
	})
	if err != nil {
		return zero, false, err
	}
	return v.(T), false, nil
}

func makeCacheKey(namespace string, parts ...string) string {
	var b strings.Builder
	b.WriteString(namespace)
	for _, part := range parts {
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(strings.ReplaceAll(part, ":", "|"))
	}
	return b.String()
}
