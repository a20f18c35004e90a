// Package httpserver exposes the pipeline and the OAuth flow over HTTP.
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/FranksOps/liaison/internal/auth"
	"github.com/FranksOps/liaison/internal/linkedin"
	"github.com/FranksOps/liaison/internal/metrics"
	"github.com/FranksOps/liaison/internal/pipeline"
	"github.com/FranksOps/liaison/internal/postid"
)

// Service is the pipeline surface the API drives.
type Service interface {
	Discover(ctx context.Context, topic string, max int) ([]pipeline.DiscoveredPost, error)
	GenerateAndSubmit(ctx context.Context, req pipeline.SingleRequest) (*pipeline.SingleResult, error)
	Batch(ctx context.Context, req pipeline.BatchRequest) ([]pipeline.Item, error)
	Suggest(ctx context.Context, req pipeline.SuggestRequest) ([]string, error)
	Submit(ctx context.Context, urn, text string) (*linkedin.Receipt, error)
	Analyze(ctx context.Context, address string) (*pipeline.Analysis, error)
}

// Profile looks up the authenticated member.
type Profile interface {
	UserInfo(ctx context.Context) (*linkedin.UserInfo, error)
}

// Deps wires a Server.
type Deps struct {
	Service Service
	OAuth   *auth.OAuth
	Tokens  *auth.TokenStore
	Profile Profile

	DefaultTopic  string
	DefaultMax    int
	SecureCookies bool
	Logger        *slog.Logger
}

// Server holds the handlers.
type Server struct {
	deps   Deps
	logger *slog.Logger
}

var _ Service = (*pipeline.Pipeline)(nil)

// New returns the API router.
func New(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.DefaultMax <= 0 {
		deps.DefaultMax = 8
	}
	s := &Server{deps: deps, logger: deps.Logger}

	r := chi.NewRouter()
	r.Use(recoverer(s.logger))
	r.Use(requestLogger(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", s.login)
		r.Get("/callback", s.callback)
		r.Get("/status", s.status)
		r.Post("/logout", s.logout)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/analyze-post", s.analyzePost)
		r.Post("/generate-replies", s.generateReplies)
		r.Post("/post-comment", s.postComment)

		r.Route("/auto", func(r chi.Router) {
			r.Post("/discover", s.discover)
			r.Post("/generate-and-post", s.generateAndPost)
			r.Post("/batch", s.batch)
		})
	})

	return r
}

// Run serves h on addr until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("api server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// analysisResponse keeps the urn field name the web client expects.
type analysisResponse struct {
	URN    string `json:"urn"`
	Text   string `json:"text"`
	Author string `json:"author"`
	Manual bool   `json:"manual,omitempty"`
}

func urnOf(id postid.ID) string { return id.URN() }
