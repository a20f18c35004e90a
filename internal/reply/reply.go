// Package reply generates comment suggestions for a post through a chat
// model and normalizes whatever the model sends back.
package reply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FranksOps/liaison/internal/metrics"
)

// Request asks for Count comments on PostText.
type Request struct {
	PostText string
	Count    int
	Tone     string
	// Context is optional free text about the commenter.
	Context string
}

// Generator produces comment suggestions.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]string, error)
}

// Backend is a chat model endpoint returning the assistant message text.
type Backend interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config configures a Client.
type Config struct {
	Backend Backend
	// MaxPostChars caps how much post text goes into the prompt.
	MaxPostChars int
	Persona      string
	MinLength    int
	Logger       *slog.Logger
}

var _ Generator = (*Client)(nil)

// Client implements Generator on top of a Backend.
type Client struct {
	backend      Backend
	maxPostChars int
	persona      string
	minLength    int
	logger       *slog.Logger
}

// New creates a Client. Zero config values get defaults.
func New(cfg Config) *Client {
	if cfg.MaxPostChars <= 0 {
		cfg.MaxPostChars = 500
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultMinLength
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		backend:      cfg.Backend,
		maxPostChars: cfg.MaxPostChars,
		persona:      cfg.Persona,
		minLength:    cfg.MinLength,
		logger:       cfg.Logger,
	}
}

// Generate asks the backend for comments and returns at most req.Count of
// them. Only transport failures and empty responses are errors; malformed
// model output degrades to whatever text could be recovered.
func (c *Client) Generate(ctx context.Context, req Request) ([]string, error) {
	if req.Count <= 0 {
		req.Count = 1
	}
	if strings.TrimSpace(req.Tone) == "" {
		req.Tone = "professional"
	}

	start := time.Now()
	raw, err := c.backend.Complete(ctx, systemPrompt(c.persona), userPrompt(req, c.maxPostChars))
	metrics.RecordGeneration(c.backend.Name(), err, time.Since(start))
	if err != nil {
		return nil, err
	}

	comments, err := ParseComments(raw, c.minLength)
	if err != nil {
		return nil, fmt.Errorf("reply: %s: %w", c.backend.Name(), err)
	}
	if len(comments) < req.Count {
		c.logger.Debug("model returned fewer comments than requested",
			"provider", c.backend.Name(), "requested", req.Count, "got", len(comments))
	}
	if len(comments) > req.Count {
		comments = comments[:req.Count]
	}
	return comments, nil
}
