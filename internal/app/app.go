// Package app builds every component once from a Config and hands them to
// the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/FranksOps/liaison/internal/auth"
	"github.com/FranksOps/liaison/internal/config"
	"github.com/FranksOps/liaison/internal/fingerprint"
	"github.com/FranksOps/liaison/internal/httpserver"
	"github.com/FranksOps/liaison/internal/linkedin"
	"github.com/FranksOps/liaison/internal/pipeline"
	"github.com/FranksOps/liaison/internal/reply"
	"github.com/FranksOps/liaison/internal/scraper"
	"github.com/FranksOps/liaison/internal/serp"
	"github.com/FranksOps/liaison/internal/storage"
	"github.com/FranksOps/liaison/internal/storage/jsonbackend"
	"github.com/FranksOps/liaison/internal/storage/postgres"
	"github.com/FranksOps/liaison/internal/storage/sqlite"
	"github.com/FranksOps/liaison/pkg/proxy"
	"github.com/FranksOps/liaison/pkg/ratelimit"
)

// App holds the constructed components.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Pipeline  *pipeline.Pipeline
	Tokens    *auth.TokenStore
	OAuth     *auth.OAuth
	Official  *linkedin.Official
	Submitter *linkedin.Submitter

	cache *storage.Cache
}

// New wires the application. Close releases the cache backend.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	profile, err := fingerprint.ParseProfile(cfg.Scraper.Fingerprint)
	if err != nil {
		return nil, err
	}

	pool := proxy.NewPool(proxy.Config{})
	if cfg.Scraper.ProxyFile != "" {
		if err := pool.LoadFile(cfg.Scraper.ProxyFile); err != nil {
			return nil, fmt.Errorf("app: load proxies: %w", err)
		}
		logger.Info("proxy pool loaded", "count", pool.Len())
		if profile != fingerprint.ProfileGo {
			logger.Warn("proxied requests use the standard TLS handshake; the fingerprint profile only applies to direct connections",
				"fingerprint", profile)
		}
	}

	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:      cfg.Scraper.Timeout,
		MaxRedirects: cfg.Scraper.MaxRedirects,
		UseCookieJar: cfg.Scraper.CookieJar,
		ProxyPool:    pool,
		Fingerprint:  profile,
		Limiter:      ratelimit.NewLimiter(cfg.Scraper.RPS, cfg.Scraper.Jitter),
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	cache, err := openCache(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, err
	}

	providers, err := serp.BuildProviders(cfg.Search.Providers, fetcher)
	if err != nil {
		cache.Close()
		return nil, err
	}
	cascade := serp.NewCascade(serp.CascadeConfig{
		Providers:      providers,
		Cache:          cache,
		RateLimitDelay: cfg.Search.RateLimitDelay,
		Site:           cfg.Search.Site,
		Logger:         logger,
	})

	var robots *scraper.RobotsGate
	if cfg.Scraper.Robots {
		robots = scraper.NewRobotsGate(fetcher, fetcher.UserAgent(), logger)
	}
	content := scraper.NewContentFetcher(scraper.ContentConfig{
		Fetcher:     fetcher,
		Robots:      robots,
		Concurrency: cfg.Scraper.Concurrency,
		Logger:      logger,
	})

	backend, err := reply.NewBackend(cfg.Generation.Provider, reply.BackendConfig{
		BaseURL: cfg.Generation.BaseURL,
		Model:   cfg.Generation.Model,
		APIKey:  cfg.Generation.APIKey,
		Timeout: cfg.Generation.Timeout,
	})
	if err != nil {
		cache.Close()
		return nil, err
	}
	persona := cfg.Generation.Persona
	if persona == "" {
		persona = reply.DefaultPersona
	}
	generator := reply.New(reply.Config{
		Backend:      backend,
		MaxPostChars: cfg.Generation.MaxPostChars,
		Persona:      persona,
		Logger:       logger,
	})

	tokens := auth.NewTokenStore(cfg.LinkedIn.TokenPath)
	oauth := auth.NewOAuth(auth.OAuthConfig{
		ClientID:     cfg.LinkedIn.ClientID,
		ClientSecret: cfg.LinkedIn.ClientSecret,
		RedirectURI:  cfg.LinkedIn.RedirectURI,
		Timeout:      cfg.LinkedIn.Timeout,
	})

	transport, err := linkedin.ParseTransport(cfg.LinkedIn.Transport)
	if err != nil {
		cache.Close()
		return nil, err
	}
	official := linkedin.NewOfficial(linkedin.OfficialConfig{
		BaseURL:    cfg.LinkedIn.APIBaseURL,
		APIVersion: cfg.LinkedIn.APIVersion,
		Tokens:     tokens,
		Timeout:    cfg.LinkedIn.Timeout,
	})
	voyager := linkedin.NewVoyager(linkedin.VoyagerConfig{
		BaseURL:    cfg.LinkedIn.VoyagerBaseURL,
		LiAt:       cfg.LinkedIn.LiAt,
		JSessionID: cfg.LinkedIn.JSessionID,
		UserAgent:  fetcher.UserAgent(),
		Timeout:    cfg.LinkedIn.Timeout,
	})
	submitter := linkedin.NewSubmitter(logger, linkedin.Compose(transport, official, voyager)...)

	var identity pipeline.Identity = tokens
	switch transport {
	case linkedin.TransportVoyager:
		identity = nil
	case linkedin.TransportAuto:
		identity = optionalIdentity{tokens}
	}

	submitLimiter := ratelimit.NewLimiter(cfg.LinkedIn.SubmitRPS, 0.2)
	if submitLimiter.Limited() {
		logger.Info("submission pacing enabled", "rps", cfg.LinkedIn.SubmitRPS)
	}

	p := pipeline.New(pipeline.Deps{
		Searcher:      cascade,
		Fetcher:       content,
		Generator:     generator,
		Submitter:     submitter,
		Identity:      identity,
		Reader:        official,
		SubmitLimiter: submitLimiter,
		Logger:        logger,
	})

	return &App{
		Config:    cfg,
		Logger:    logger,
		Pipeline:  p,
		Tokens:    tokens,
		OAuth:     oauth,
		Official:  official,
		Submitter: submitter,
		cache:     cache,
	}, nil
}

// Handler returns the HTTP API for the app.
func (a *App) Handler() http.Handler {
	return httpserver.New(httpserver.Deps{
		Service:       a.Pipeline,
		OAuth:         a.OAuth,
		Tokens:        a.Tokens,
		Profile:       a.Official,
		DefaultTopic:  a.Config.Search.DefaultTopic,
		DefaultMax:    a.Config.Search.MaxPosts,
		SecureCookies: a.Config.Server.SecureCookies,
		Logger:        a.Logger,
	})
}

// Close releases resources.
func (a *App) Close() error {
	return a.cache.Close()
}

// openCache returns nil for the none backend.
func openCache(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (*storage.Cache, error) {
	var (
		backend storage.Backend
		err     error
	)
	switch cfg.Backend {
	case "none":
		return nil, nil
	case "sqlite":
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("app: create cache dir: %w", err)
		}
		backend, err = sqlite.New(filepath.Join(cfg.Dir, "cache.db"))
	case "postgres":
		backend, err = postgres.New(ctx, cfg.DSN)
	default:
		backend, err = jsonbackend.New(cfg.Dir)
	}
	if err != nil {
		return nil, fmt.Errorf("app: open %s cache: %w", cfg.Backend, err)
	}
	return storage.NewCache(backend, storage.CacheConfig{TTL: cfg.TTL, Logger: logger}), nil
}

// optionalIdentity lets the auto transport fall through to session cookies
// when no OAuth token is stored.
type optionalIdentity struct {
	tokens *auth.TokenStore
}

func (o optionalIdentity) MemberURN(ctx context.Context) (string, error) {
	urn, err := o.tokens.MemberURN(ctx)
	if errors.Is(err, auth.ErrNotAuthenticated) {
		return "", nil
	}
	return urn, err
}
