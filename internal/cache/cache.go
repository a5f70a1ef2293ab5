// Package cache provides a small key/value cache used for read-mostly data
// such as the company catalog. Values are JSON encoded so the in-process and
// Redis backends are interchangeable.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Creecly/cleaninvest/internal/logger"
)

// Cache stores opaque values under string keys with a time-to-live.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// InvalidatePrefix removes every key starting with prefix.
	InvalidatePrefix(ctx context.Context, prefix string) error
}

// Loader fills a cache miss for one key, collapsing concurrent misses into a
// single call to load.
type Loader struct {
	cache Cache
	group singleflight.Group
	log   *zap.SugaredLogger
}

// NewLoader wraps c.
func NewLoader(c Cache) *Loader {
	return &Loader{cache: c, log: logger.Named("cache")}
}

// Cache returns the wrapped cache.
func (l *Loader) Cache() Cache { return l.cache }

// Remember decodes the cached value for key into T, or calls load, stores
// its result for ttl and returns it. Cache errors degrade to calling load.
func Remember[T any](ctx context.Context, l *Loader, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	var zero T

	raw, ok, err := l.cache.Get(ctx, key)
	switch {
	case err != nil:
		l.log.Warnw("cache read failed", "key", key, "error", err)
	case ok:
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		l.log.Warnw("discarding undecodable cache entry", "key", key, "error", err)
	}

	v, err, _ := l.group.Do(key, func() (interface{}, error) {
		fresh, err := load()
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(fresh)
		if err != nil {
			l.log.Warnw("cache encode failed", "key", key, "error", err)
			return fresh, nil
		}
		if err := l.cache.Set(ctx, key, raw, ttl); err != nil {
			l.log.Warnw("cache write failed", "key", key, "error", err)
		}
		return fresh, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}
