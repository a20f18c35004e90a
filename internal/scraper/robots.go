package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// RobotsGate checks a host's robots.txt before a page fetch. Hosts whose
// robots.txt cannot be fetched or parsed are allowed.
type RobotsGate struct {
	fetcher   *Fetcher
	userAgent string
	logger    *slog.Logger
	mu        sync.RWMutex
	cache     map[string]*robotstxt.RobotsData
}

// NewRobotsGate creates a gate that fetches robots.txt through fetcher and
// evaluates rules for userAgent.
func NewRobotsGate(fetcher *Fetcher, userAgent string, logger *slog.Logger) *RobotsGate {
	if logger == nil {
		logger = slog.Default()
	}
	if userAgent == "" {
		userAgent = "*"
	}
	return &RobotsGate{
		fetcher:   fetcher,
		userAgent: userAgent,
		logger:    logger,
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether targetURL may be fetched.
func (r *RobotsGate) Allowed(ctx context.Context, targetURL string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("robots: invalid url: %w", err)
	}

	host := u.Scheme + "://" + u.Host

	data, err := r.getOrFetch(ctx, host)
	if err != nil {
		r.logger.Debug("robots.txt fetch failed, defaulting to allow", "host", host, "err", err)
		return true, nil
	}
	if data == nil {
		return true, nil
	}

	return data.FindGroup(r.userAgent).Test(u.EscapedPath()), nil
}

func (r *RobotsGate) getOrFetch(ctx context.Context, host string) (*robotstxt.RobotsData, error) {
	r.mu.RLock()
	data, exists := r.cache[host]
	r.mu.RUnlock()
	if exists {
		return data, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if data, exists = r.cache[host]; exists {
		return data, nil
	}

	page, err := r.fetcher.Get(ctx, host+"/robots.txt")
	if err != nil {
		r.cache[host] = nil
		return nil, fmt.Errorf("robots: fetch: %w", err)
	}
	if page.StatusCode >= 400 {
		r.cache[host] = nil
		return nil, nil
	}

	parsed, err := robotstxt.FromStatusAndBytes(page.StatusCode, page.Body)
	if err != nil {
		r.cache[host] = nil
		return nil, fmt.Errorf("robots: parse: %w", err)
	}

	r.cache[host] = parsed
	return parsed, nil
}
