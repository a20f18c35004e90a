package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/FranksOps/liaison/internal/metrics"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrPlaceholderContent means the page served generic login-wall copy
	// instead of the post.
	ErrPlaceholderContent = errors.New("scraper: placeholder content")
	// ErrBlocked means bot protection or a login wall intercepted the fetch.
	ErrBlocked = errors.New("scraper: blocked")
	// ErrDisallowed means robots.txt forbids the fetch.
	ErrDisallowed = errors.New("scraper: disallowed by robots.txt")
)

// placeholderPhrases mark LinkedIn's generic pages; matched case-insensitively.
var placeholderPhrases = []string{
	"manage your professional identity",
	"500 million",
	"sign up",
	"join linkedin",
	"sign in to view",
}

// PostContent is the public text of one post.
type PostContent struct {
	URL    string `json:"url"`
	Text   string `json:"text"`
	Author string `json:"author"`
}

// ContentConfig configures a ContentFetcher.
type ContentConfig struct {
	Fetcher *Fetcher
	// Robots, when set, is consulted before each fetch.
	Robots *RobotsGate
	// Concurrency caps parallel fetches in FetchAll; 0 means unbounded.
	Concurrency int
	Logger      *slog.Logger
}

// ContentFetcher pulls post text from public post pages.
type ContentFetcher struct {
	fetcher     *Fetcher
	robots      *RobotsGate
	concurrency int
	policy      *bluemonday.Policy
	logger      *slog.Logger
}

// NewContentFetcher creates a ContentFetcher.
func NewContentFetcher(cfg ContentConfig) *ContentFetcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ContentFetcher{
		fetcher:     cfg.Fetcher,
		robots:      cfg.Robots,
		concurrency: cfg.Concurrency,
		policy:      bluemonday.StrictPolicy(),
		logger:      cfg.Logger,
	}
}

// FetchPost fetches one post page and extracts its text and author.
func (c *ContentFetcher) FetchPost(ctx context.Context, postURL string) (*PostContent, error) {
	if c.robots != nil {
		allowed, err := c.robots.Allowed(ctx, postURL)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%w: %s", ErrDisallowed, postURL)
		}
	}

	page, err := c.fetcher.Get(ctx, postURL)
	if err != nil {
		return nil, err
	}
	if page.Blocked {
		return nil, fmt.Errorf("%w by %s: %s", ErrBlocked, page.BlockSource, postURL)
	}
	if !page.OK() {
		return nil, fmt.Errorf("scraper: %s returned status %d", postURL, page.StatusCode)
	}

	text, author, err := c.parse(page.Body)
	if err != nil {
		return nil, fmt.Errorf("scraper: parse %s: %w", postURL, err)
	}
	if text == "" || isPlaceholder(text) {
		return nil, fmt.Errorf("%w: %s", ErrPlaceholderContent, postURL)
	}

	return &PostContent{URL: postURL, Text: text, Author: author}, nil
}

// FetchAll fetches every URL concurrently. Failures are logged and dropped
// without affecting the other fetches. The result keeps input order.
func (c *ContentFetcher) FetchAll(ctx context.Context, urls []string) []PostContent {
	results := make([]*PostContent, len(urls))

	var g errgroup.Group
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i, u := range urls {
		g.Go(func() error {
			post, err := c.FetchPost(ctx, u)
			if err != nil {
				metrics.RecordContentDrop(dropReason(err))
				c.logger.Info("post fetch dropped", "url", u, "err", err)
				return nil
			}
			results[i] = post
			return nil
		})
	}
	_ = g.Wait()

	out := make([]PostContent, 0, len(urls))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (c *ContentFetcher) parse(body []byte) (text, author string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}

	text = metaContent(doc, `meta[property="og:description"]`)
	if text == "" {
		text = metaContent(doc, `meta[name="description"]`)
	}
	text = c.clean(text)

	if title := metaContent(doc, `meta[property="og:title"]`); title != "" {
		name, _, _ := strings.Cut(title, " on LinkedIn")
		author = c.clean(name)
	}
	return text, author, nil
}

// clean strips any markup smuggled into meta content and undoes the entity
// escaping the sanitizer applies.
func (c *ContentFetcher) clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(c.policy.Sanitize(s)))
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(v)
}

func isPlaceholder(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range placeholderPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrPlaceholderContent):
		return "placeholder"
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.Is(err, ErrDisallowed):
		return "robots"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
