package serp

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/FranksOps/liaison/internal/metrics"
	"github.com/FranksOps/liaison/internal/storage"
)

// DefaultRateLimitDelay is the pause after a provider answers 429.
const DefaultRateLimitDelay = 2 * time.Second

// CascadeConfig configures a Cascade.
type CascadeConfig struct {
	Providers []Provider
	// Cache is optional; nil disables caching.
	Cache *storage.Cache
	// RateLimitDelay is the pause after a 429. Zero means the default and a
	// negative value disables the pause.
	RateLimitDelay time.Duration
	Site           string
	Logger         *slog.Logger
}

// Cascade tries search providers in order until one yields posts.
type Cascade struct {
	providers []Provider
	cache     *storage.Cache
	delay     time.Duration
	site      string
	logger    *slog.Logger
}

// NewCascade creates a Cascade. Zero config values get defaults.
func NewCascade(cfg CascadeConfig) *Cascade {
	if cfg.RateLimitDelay == 0 {
		cfg.RateLimitDelay = DefaultRateLimitDelay
	}
	if cfg.Site == "" {
		cfg.Site = DefaultSite
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Cascade{
		providers: cfg.Providers,
		cache:     cfg.Cache,
		delay:     cfg.RateLimitDelay,
		site:      cfg.Site,
		logger:    cfg.Logger,
	}
}

// Search returns up to max posts for topic; max <= 0 means no cap. A fresh
// cache entry short-circuits every provider. Otherwise the first provider
// whose page yields at least one post wins and its results are cached.
// Provider failures never surface: exhausting the cascade returns nil.
func (c *Cascade) Search(ctx context.Context, topic string, max int) []storage.PostResult {
	query := BuildQuery(c.site, topic)
	fp := storage.Fingerprint(query)

	if c.cache != nil {
		posts, ok := c.cache.Get(ctx, fp)
		metrics.RecordCacheLookup(ok)
		if ok {
			c.logger.Debug("search cache hit", "query", query, "fingerprint", fp)
			return limit(posts, max)
		}
	}

	for _, p := range c.providers {
		if ctx.Err() != nil {
			break
		}

		body, err := p.Search(ctx, query)
		if err != nil {
			var se *StatusError
			switch {
			case errors.As(err, &se) && se.RateLimited():
				metrics.RecordSearchOutcome(p.Name(), metrics.OutcomeRateLimited)
				c.logger.Warn("search provider rate limited", "provider", p.Name())
				if !c.sleep(ctx) {
					return nil
				}
			case errors.As(err, &se) && se.BlockSource != "":
				metrics.RecordSearchOutcome(p.Name(), metrics.OutcomeBlocked)
				c.logger.Warn("search provider blocked", "provider", p.Name(), "source", se.BlockSource)
			default:
				metrics.RecordSearchOutcome(p.Name(), metrics.OutcomeError)
				c.logger.Warn("search provider failed", "provider", p.Name(), "err", err)
			}
			continue
		}

		posts := ExtractPosts(body)
		if len(posts) == 0 {
			metrics.RecordSearchOutcome(p.Name(), metrics.OutcomeEmpty)
			c.logger.Info("search provider returned no posts", "provider", p.Name(), "bytes", len(body))
			continue
		}

		metrics.RecordSearchOutcome(p.Name(), metrics.OutcomeOK)
		c.logger.Info("search provider succeeded", "provider", p.Name(), "posts", len(posts))
		if c.cache != nil {
			c.cache.Put(ctx, fp, posts)
		}
		return limit(posts, max)
	}

	c.logger.Warn("search cascade exhausted", "query", query, "providers", len(c.providers))
	return nil
}

func (c *Cascade) sleep(ctx context.Context) bool {
	if c.delay < 0 {
		return true
	}
	timer := time.NewTimer(c.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func limit(posts []storage.PostResult, max int) []storage.PostResult {
	if max > 0 && len(posts) > max {
		return posts[:max]
	}
	return posts
}
