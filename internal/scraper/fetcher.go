package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/liaison/internal/bypass"
	"github.com/FranksOps/liaison/internal/fingerprint"
	"github.com/FranksOps/liaison/internal/metrics"
	"github.com/FranksOps/liaison/pkg/httpclient"
	"github.com/FranksOps/liaison/pkg/proxy"
	"github.com/FranksOps/liaison/pkg/ratelimit"
	"github.com/FranksOps/liaison/pkg/useragent"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// FetchConfig configures the shared Fetcher.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	MaxBody      int64
	ProxyPool    *proxy.Pool
	UserAgents   *useragent.Rotator
	Fingerprint  fingerprint.Profile
	Limiter      *ratelimit.Limiter
	Detectors    []bypass.Detector
	Logger       *slog.Logger
	// InsecureSkipVerify is for tests against self-signed servers.
	InsecureSkipVerify bool
}

// Request describes one outbound fetch. A non-nil Form turns it into a
// form-encoded POST unless Method says otherwise.
type Request struct {
	Method string
	URL    string
	Query  url.Values
	Form   url.Values
	Header http.Header
	// Detectors overrides the fetcher's block detectors for this request.
	Detectors []bypass.Detector
}

// Page is a fetched response with block detection applied.
type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	Headers     http.Header
	Body        []byte
	Duration    time.Duration
	Blocked     bool
	BlockSource string
}

// OK reports a 2xx status.
func (p *Page) OK() bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}

// Fetcher performs outbound page fetches with browser-like TLS, rotating
// User-Agents, optional proxies and pacing. It is safe for concurrent use.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
	logger *slog.Logger
}

// NewFetcher initializes a Fetcher. The transport is built once so
// connections (and the cookie jar, if enabled) are reused across requests.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = httpclient.DefaultMaxBody
	}
	if cfg.UserAgents == nil {
		cfg.UserAgents = useragent.NewRotator(nil)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}
	if cfg.Detectors == nil {
		cfg.Detectors = bypass.DefaultDetectors()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// Per-request proxy rotation: the pool's pick rides on the request context.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if u, ok := req.Context().Value(proxyKey).(*url.URL); ok && u != nil {
			return u, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.Transport(fingerprint.Options{
		Profile:            cfg.Fingerprint,
		Proxy:              proxyFunc,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("scraper: setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
		Headers: http.Header{
			"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"},
			"Accept-Language": {"en-US,en;q=0.5"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scraper: create client: %w", err)
	}

	return &Fetcher{
		config: cfg,
		client: client,
		logger: cfg.Logger,
	}, nil
}

// UserAgent returns the next User-Agent in rotation.
func (f *Fetcher) UserAgent() string {
	return f.config.UserAgents.Next()
}

// Get fetches targetURL with a GET request.
func (f *Fetcher) Get(ctx context.Context, targetURL string) (*Page, error) {
	return f.Do(ctx, Request{Method: http.MethodGet, URL: targetURL})
}

// Do executes r. Transport failures are returned as errors; any HTTP
// response, including blocks and non-2xx statuses, is returned as a Page.
func (f *Fetcher) Do(ctx context.Context, r Request) (*Page, error) {
	if err := f.config.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("scraper: rate limiter: %w", err)
	}

	req, err := f.buildRequest(ctx, r)
	if err != nil {
		return nil, err
	}
	host := req.URL.Hostname()

	var activeProxy *url.URL
	if f.config.ProxyPool != nil {
		activeProxy = f.config.ProxyPool.Next()
	}
	if activeProxy != nil {
		req = req.WithContext(context.WithValue(req.Context(), proxyKey, activeProxy))
	}
	req.Header.Set("User-Agent", f.config.UserAgents.Next())

	start := time.Now()
	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil {
			_ = f.config.ProxyPool.MarkFailure(activeProxy)
			metrics.ProxyFailures.WithLabelValues(activeProxy.Redacted()).Inc()
		}
		metrics.RecordFetch(host, 0, false, "", 0, time.Since(start))
		return nil, fmt.Errorf("scraper: %s %s: %w", req.Method, r.URL, err)
	}
	if activeProxy != nil {
		_ = f.config.ProxyPool.MarkSuccess(activeProxy)
	}

	body, err := httpclient.ReadBody(resp, f.config.MaxBody)
	if err != nil {
		metrics.RecordFetch(host, resp.StatusCode, false, "", len(body), time.Since(start))
		return nil, fmt.Errorf("scraper: read %s: %w", r.URL, err)
	}

	page := &Page{
		URL:        r.URL,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
		Duration:   time.Since(start),
	}

	detectors := f.config.Detectors
	if r.Detectors != nil {
		detectors = r.Detectors
	}
	det := bypass.Analyze(&bypass.Response{
		StatusCode: page.StatusCode,
		Headers:    page.Headers,
		Body:       page.Body,
		FinalURL:   page.FinalURL,
	}, detectors)
	page.Blocked = det.Blocked
	page.BlockSource = det.Source

	metrics.RecordFetch(host, page.StatusCode, page.Blocked, page.BlockSource, len(page.Body), page.Duration)
	if page.Blocked {
		f.logger.Debug("fetch blocked", "url", r.URL, "status", page.StatusCode, "source", page.BlockSource)
	}
	return page, nil
}

func (f *Fetcher) buildRequest(ctx context.Context, r Request) (*http.Request, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, fmt.Errorf("scraper: parse url %q: %w", r.URL, err)
	}
	if len(r.Query) > 0 {
		q := u.Query()
		for k, vs := range r.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
		if r.Form != nil {
			method = http.MethodPost
		}
	}

	var body io.Reader
	if r.Form != nil {
		body = strings.NewReader(r.Form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("scraper: build request: %w", err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if r.Form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req, nil
}
