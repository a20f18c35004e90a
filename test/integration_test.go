//go:build integration

package test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/liaison/internal/fingerprint"
	"github.com/FranksOps/liaison/internal/linkedin"
	"github.com/FranksOps/liaison/internal/pipeline"
	"github.com/FranksOps/liaison/internal/reply"
	"github.com/FranksOps/liaison/internal/scraper"
	"github.com/FranksOps/liaison/internal/serp"
	"github.com/FranksOps/liaison/internal/storage"
	"github.com/FranksOps/liaison/internal/storage/sqlite"
	"github.com/FranksOps/liaison/pkg/ratelimit"
)

var postIDs = []string{"7100000000000000001", "7100000000000000002", "7100000000000000003"}

// mirrorSearcher points linkedin.com result URLs at the local mirror so the
// content fetcher can reach them.
type mirrorSearcher struct {
	inner  pipeline.Searcher
	mirror string
}

func (m mirrorSearcher) Search(ctx context.Context, topic string, max int) []storage.PostResult {
	results := m.inner.Search(ctx, topic, max)
	for i := range results {
		results[i].URL = strings.Replace(results[i].URL, "https://www.linkedin.com", m.mirror, 1)
	}
	return results
}

func TestIntegration_BatchAutoPost(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Search engine: first call is rate limited, so the cascade falls through
	// to the second engine.
	var searchCalls atomic.Int32
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		searchCalls.Add(1)
		if r.URL.Path == "/limited" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><ol>")
		for i, id := range postIDs {
			fmt.Fprintf(w, `<li><a href="https://www.linkedin.com/posts/user%d_topic-activity-%s-abcd">Post %d</a><p>snippet %d</p></li>`, i, id, i, i)
		}
		fmt.Fprint(w, "</ol></body></html>")
	}))
	defer engine.Close()

	// Public post pages. The second one is a login wall.
	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		for i, id := range postIDs {
			if !strings.Contains(r.URL.Path, id) {
				continue
			}
			desc := fmt.Sprintf("Post number %d about distributed systems &amp; Go.", i)
			if i == 1 {
				desc = "Sign in to view more content. Join LinkedIn today."
			}
			fmt.Fprintf(w, `<html><head><meta property="og:description" content="%s"><meta property="og:title" content="Author %d on LinkedIn: topic"></head></html>`, desc, i)
			return
		}
		http.NotFound(w, r)
	}))
	defer mirror.Close()

	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": `{"comments": ["A thoughtful and specific reply to this post."]}`},
		})
	}))
	defer ollama.Close()

	// Voyager: the first payload variant is always rejected.
	var mu sync.Mutex
	var posted []string
	voyagerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["parentUrn"]; ok {
			http.Error(w, `{"status":400}`, http.StatusBadRequest)
			return
		}
		mu.Lock()
		posted = append(posted, fmt.Sprint(body["threadUrn"]))
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer voyagerSrv.Close()

	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:     5 * time.Second,
		Fingerprint: fingerprint.ProfileGo,
		Limiter:     ratelimit.NewLimiter(0, 0),
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	backend, err := sqlite.New(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	cache := storage.NewCache(backend, storage.CacheConfig{Logger: logger})
	defer cache.Close()

	providers := []serp.Provider{
		serp.NewHTMLProvider(serp.Engine{Name: "limited", Method: http.MethodGet, Endpoint: engine.URL + "/limited", QueryParam: "q"}, fetcher),
		serp.NewHTMLProvider(serp.Engine{Name: "local", Method: http.MethodPost, Endpoint: engine.URL + "/search", QueryParam: "query"}, fetcher),
	}
	cascade := serp.NewCascade(serp.CascadeConfig{
		Providers:      providers,
		Cache:          cache,
		RateLimitDelay: 10 * time.Millisecond,
		Logger:         logger,
	})

	voyager := linkedin.NewVoyager(linkedin.VoyagerConfig{BaseURL: voyagerSrv.URL, LiAt: "li", JSessionID: `"ajax:1"`})

	p := pipeline.New(pipeline.Deps{
		Searcher:  mirrorSearcher{inner: cascade, mirror: mirror.URL},
		Fetcher:   scraper.NewContentFetcher(scraper.ContentConfig{Fetcher: fetcher, Concurrency: 2, Logger: logger}),
		Generator: reply.New(reply.Config{Backend: reply.NewOllama(reply.BackendConfig{BaseURL: ollama.URL}), Logger: logger}),
		Submitter: linkedin.NewSubmitter(logger, linkedin.Compose(linkedin.TransportVoyager, nil, voyager)...),
		Logger:    logger,
	})

	items, err := p.Batch(context.Background(), pipeline.BatchRequest{Topic: "golang", Max: 5, AutoPost: true})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items after dropping the login wall, got %d: %+v", len(items), items)
	}
	for _, it := range items {
		if !it.Posted || it.Error != "" {
			t.Errorf("item %s not posted: %q", it.ID.URN(), it.Error)
		}
	}
	if !strings.Contains(items[0].PostText, "distributed systems & Go") {
		t.Errorf("entity not unescaped: %q", items[0].PostText)
	}
	if items[0].Author != "Author 0" {
		t.Errorf("author = %q", items[0].Author)
	}

	mu.Lock()
	if len(posted) != 2 || posted[0] != "urn:li:fsd_update:(urn:li:activity:"+postIDs[0]+",FEED_DETAIL,EMPTY,DEFAULT,false)" {
		t.Errorf("unexpected voyager posts: %v", posted)
	}
	mu.Unlock()

	// A second discovery for the same topic is served from the cache.
	before := searchCalls.Load()
	if _, err := p.Discover(context.Background(), "golang", 5); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if searchCalls.Load() != before {
		t.Errorf("expected a cache hit, search engine was called %d more times", searchCalls.Load()-before)
	}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}
