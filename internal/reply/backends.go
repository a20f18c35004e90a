package reply

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func messages(system, user string) []chatMessage {
	return []chatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

// BackendConfig configures an HTTP chat backend.
type BackendConfig struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

func newRestyClient(cfg BackendConfig) *resty.Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return client
}

var _ Backend = (*Ollama)(nil)

// Ollama talks to an Ollama server's /api/chat endpoint in JSON mode.
type Ollama struct {
	http  *resty.Client
	model string
}

// NewOllama creates an Ollama backend. BaseURL defaults to localhost:11434.
func NewOllama(cfg BackendConfig) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.1"
	}
	return &Ollama{http: newRestyClient(cfg), model: cfg.Model}
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Complete(ctx context.Context, system, user string) (string, error) {
	var out struct {
		Message chatMessage `json:"message"`
	}
	res, err := o.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"model":    o.model,
			"messages": messages(system, user),
			"stream":   false,
			"format":   "json",
		}).
		SetResult(&out).
		Post("/api/chat")
	if err != nil {
		return "", fmt.Errorf("%w: ollama: %w", ErrUpstream, err)
	}
	if res.IsError() {
		return "", fmt.Errorf("%w: ollama returned status %d: %s", ErrUpstream, res.StatusCode(), snippet(res.Body()))
	}
	return out.Message.Content, nil
}

var _ Backend = (*OpenAI)(nil)

// OpenAI talks to any OpenAI-compatible /chat/completions endpoint.
type OpenAI struct {
	http  *resty.Client
	model string
}

// NewOpenAI creates an OpenAI-compatible backend.
func NewOpenAI(cfg BackendConfig) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &OpenAI{http: newRestyClient(cfg), model: cfg.Model}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Complete(ctx context.Context, system, user string) (string, error) {
	var out struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	res, err := o.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"model":           o.model,
			"messages":        messages(system, user),
			"response_format": map[string]string{"type": "json_object"},
		}).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("%w: openai: %w", ErrUpstream, err)
	}
	if res.IsError() {
		return "", fmt.Errorf("%w: openai returned status %d: %s", ErrUpstream, res.StatusCode(), snippet(res.Body()))
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return out.Choices[0].Message.Content, nil
}

// NewBackend builds the named backend.
func NewBackend(provider string, cfg BackendConfig) (Backend, error) {
	switch strings.ToLower(provider) {
	case "", "ollama":
		return NewOllama(cfg), nil
	case "openai":
		return NewOpenAI(cfg), nil
	default:
		return nil, fmt.Errorf("reply: unknown provider %q", provider)
	}
}

func snippet(b []byte) string {
	const max = 300
	if len(b) > max {
		b = b[:max]
	}
	return strings.TrimSpace(string(b))
}
