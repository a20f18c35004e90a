package serp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/FranksOps/liaison/internal/bypass"
	"github.com/FranksOps/liaison/internal/scraper"
)

// DefaultSite restricts searches to public LinkedIn posts.
const DefaultSite = "linkedin.com/posts"

// Provider abstracts a search engine that returns a raw result page for a
// query. Implementations may scrape HTML or call an API.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) ([]byte, error)
}

// StatusError reports a non-2xx or blocked response from a provider.
type StatusError struct {
	Provider    string
	Code        int
	BlockSource string
}

func (e *StatusError) Error() string {
	if e.BlockSource != "" {
		return fmt.Sprintf("serp: %s blocked by %s (status %d)", e.Provider, e.BlockSource, e.Code)
	}
	return fmt.Sprintf("serp: %s returned status %d", e.Provider, e.Code)
}

// RateLimited reports an HTTP 429.
func (e *StatusError) RateLimited() bool {
	return e.Code == http.StatusTooManyRequests
}

// BuildQuery returns the site-restricted query for topic.
func BuildQuery(site, topic string) string {
	if site == "" {
		site = DefaultSite
	}
	return "site:" + site + " " + strings.TrimSpace(topic)
}

// Doer executes a page fetch. *scraper.Fetcher satisfies it.
type Doer interface {
	Do(ctx context.Context, r scraper.Request) (*scraper.Page, error)
}

// Engine describes how to query one HTML search engine.
type Engine struct {
	Name       string
	Method     string
	Endpoint   string
	QueryParam string
	Params     url.Values
}

// Engines are the built-in search engines, keyed by name.
var Engines = map[string]Engine{
	"brave": {
		Name:       "brave",
		Method:     http.MethodGet,
		Endpoint:   "https://search.brave.com/search",
		QueryParam: "q",
		Params:     url.Values{"source": {"web"}},
	},
	"yahoo": {
		Name:       "yahoo",
		Method:     http.MethodGet,
		Endpoint:   "https://search.yahoo.com/search",
		QueryParam: "p",
	},
	"ecosia": {
		Name:       "ecosia",
		Method:     http.MethodGet,
		Endpoint:   "https://www.ecosia.org/search",
		QueryParam: "q",
		Params:     url.Values{"method": {"index"}},
	},
	"startpage": {
		Name:       "startpage",
		Method:     http.MethodPost,
		Endpoint:   "https://www.startpage.com/sp/search",
		QueryParam: "query",
		Params:     url.Values{"cat": {"web"}},
	},
}

// DefaultOrder is the cascade order used when none is configured.
var DefaultOrder = []string{"brave", "yahoo", "ecosia", "startpage"}

var _ Provider = (*HTMLProvider)(nil)

// HTMLProvider queries an Engine and returns the raw result page.
type HTMLProvider struct {
	engine Engine
	doer   Doer
}

// NewHTMLProvider creates a provider for e that fetches through doer.
func NewHTMLProvider(e Engine, doer Doer) *HTMLProvider {
	return &HTMLProvider{engine: e, doer: doer}
}

func (p *HTMLProvider) Name() string { return p.engine.Name }

func (p *HTMLProvider) Search(ctx context.Context, query string) ([]byte, error) {
	params := url.Values{}
	for k, vs := range p.engine.Params {
		params[k] = append([]string(nil), vs...)
	}
	params.Set(p.engine.QueryParam, query)

	req := scraper.Request{Method: p.engine.Method, URL: p.engine.Endpoint, Detectors: bypass.SearchDetectors()}
	if p.engine.Method == http.MethodPost {
		req.Form = params
	} else {
		req.Query = params
	}

	page, err := p.doer.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("serp: %s: %w", p.engine.Name, err)
	}
	if page.StatusCode == http.StatusTooManyRequests {
		return nil, &StatusError{Provider: p.engine.Name, Code: page.StatusCode}
	}
	if page.Blocked {
		return nil, &StatusError{Provider: p.engine.Name, Code: page.StatusCode, BlockSource: page.BlockSource}
	}
	if !page.OK() {
		return nil, &StatusError{Provider: p.engine.Name, Code: page.StatusCode}
	}
	return page.Body, nil
}

// BuildProviders returns providers for the named engines in order. An empty
// list means DefaultOrder.
func BuildProviders(names []string, doer Doer) ([]Provider, error) {
	if len(names) == 0 {
		names = DefaultOrder
	}
	providers := make([]Provider, 0, len(names))
	for _, n := range names {
		e, ok := Engines[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return nil, fmt.Errorf("serp: unknown provider %q", n)
		}
		providers = append(providers, NewHTMLProvider(e, doer))
	}
	return providers, nil
}
