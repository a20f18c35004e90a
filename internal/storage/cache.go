package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultTTL is how long a cached search stays fresh.
const DefaultTTL = 30 * time.Minute

// CacheConfig configures a Cache.
type CacheConfig struct {
	TTL    time.Duration
	Now    func() time.Time
	Logger *slog.Logger
}

// Cache applies the freshness policy on top of a Backend. Backend failures
// are logged and treated as a miss; they never reach the caller.
type Cache struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewCache wraps backend. Zero config values get defaults.
func NewCache(backend Backend, cfg CacheConfig) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Cache{
		backend: backend,
		ttl:     cfg.TTL,
		now:     cfg.Now,
		logger:  cfg.Logger,
	}
}

// Get returns the cached posts for fingerprint when an entry exists and is
// younger than the TTL.
func (c *Cache) Get(ctx context.Context, fingerprint string) ([]PostResult, bool) {
	res, err := c.backend.Load(ctx, fingerprint)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("cache load failed", "fingerprint", fingerprint, "err", err)
		}
		return nil, false
	}
	if c.now().Sub(res.Timestamp) >= c.ttl {
		return nil, false
	}
	return res.Posts, true
}

// Put stores posts under fingerprint, stamped with the current time.
func (c *Cache) Put(ctx context.Context, fingerprint string, posts []PostResult) {
	err := c.backend.Save(ctx, &CachedResult{
		Fingerprint: fingerprint,
		Timestamp:   c.now(),
		Posts:       posts,
	})
	if err != nil {
		c.logger.Warn("cache save failed", "fingerprint", fingerprint, "err", err)
	}
}

// Close releases the underlying backend. A nil Cache is a no-op.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.backend.Close()
}
