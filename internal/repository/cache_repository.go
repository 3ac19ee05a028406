package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/wellness-analytics-api/pkg/errors"
)

const sweepBatch = 250

// CacheRepository is a Redis byte store. Every key lives under namespace so
// several deployments can share one Redis. A nil client makes every read a
// miss and every write a no-op.
type CacheRepository struct {
	client    redis.UniversalClient
	namespace string
	logger    *zap.Logger
}

// NewCacheRepository wraps client.
func NewCacheRepository(client redis.UniversalClient, namespace string, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{client: client, namespace: namespace, logger: logger}
}

// Fetch returns the payload stored at key or appErrors.ErrCacheMiss.
func (r *CacheRepository) Fetch(ctx context.Context, key string) ([]byte, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}
	payload, err := r.client.Get(ctx, r.scoped(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, appErrors.ErrCacheMiss
	case err != nil:
		return nil, fmt.Errorf("redis GET %s: %w", key, err)
	}
	return payload, nil
}

// Put stores payload at key for ttl.
func (r *CacheRepository) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Set(ctx, r.scoped(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", key, err)
	}
	return nil
}

// Remove deletes keys. Missing keys are ignored.
func (r *CacheRepository) Remove(ctx context.Context, keys ...string) error {
	if r.client == nil || len(keys) == 0 {
		return nil
	}
	scoped := make([]string, len(keys))
	for i, k := range keys {
		scoped[i] = r.scoped(k)
	}
	if err := r.client.Unlink(ctx, scoped...).Err(); err != nil {
		return fmt.Errorf("redis UNLINK: %w", err)
	}
	return nil
}

// Sweep unlinks every key matching the glob pattern and reports how many were
// removed. Keys are scanned incrementally so large namespaces do not block Redis.
func (r *CacheRepository) Sweep(ctx context.Context, pattern string) (int, error) {
	if r.client == nil {
		return 0, nil
	}
	removed := 0
	flush := func(keys []string) error {
		if len(keys) == 0 {
			return nil
		}
		n, err := r.client.Unlink(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("redis UNLINK %s: %w", pattern, err)
		}
		removed += int(n)
		return nil
	}

	iter := r.client.Scan(ctx, 0, r.scoped(pattern), sweepBatch).Iterator()
	batch := make([]string, 0, sweepBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) < sweepBatch {
			continue
		}
		if err := flush(batch); err != nil {
			return removed, err
		}
		batch = batch[:0]
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis SCAN %s: %w", pattern, err)
	}
	if err := flush(batch); err != nil {
		return removed, err
	}
	r.logger.Debug("cache swept", zap.String("pattern", pattern), zap.Int("removed", removed))
	return removed, nil
}

// Ping checks Redis. A cache without a client is always healthy.
func (r *CacheRepository) Ping(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	return r.client.Ping(ctx).Err()
}

// Close releases the client.
func (r *CacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *CacheRepository) scoped(key string) string {
	if r.namespace == "" {
		return key
	}
	return r.namespace + ":" + key
}
