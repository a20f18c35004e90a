// Package pipeline composes search, content fetching, comment generation,
// and submission into the operations exposed by the CLI and HTTP API.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/FranksOps/liaison/internal/linkedin"
	"github.com/FranksOps/liaison/internal/metrics"
	"github.com/FranksOps/liaison/internal/postid"
	"github.com/FranksOps/liaison/internal/reply"
	"github.com/FranksOps/liaison/internal/scraper"
	"github.com/FranksOps/liaison/internal/storage"
)

// ErrEmptyPostText is returned when there is no post text to comment on.
var ErrEmptyPostText = errors.New("pipeline: post text is required")

// MaxItemText caps the post text copied into a batch item.
const MaxItemText = 200

// Searcher finds candidate posts for a topic.
type Searcher interface {
	Search(ctx context.Context, topic string, max int) []storage.PostResult
}

// Fetcher pulls the public text of posts.
type Fetcher interface {
	FetchPost(ctx context.Context, url string) (*scraper.PostContent, error)
	FetchAll(ctx context.Context, urls []string) []scraper.PostContent
}

// Identity resolves the member URN comments are posted as.
type Identity interface {
	MemberURN(ctx context.Context) (string, error)
}

// PostReader reads a post through the authenticated API.
type PostReader interface {
	GetPost(ctx context.Context, urn string) (*linkedin.Post, error)
}

// Limiter paces submissions.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Deps are the components a Pipeline drives. Identity, Reader and
// SubmitLimiter may be nil.
type Deps struct {
	Searcher      Searcher
	Fetcher       Fetcher
	Generator     reply.Generator
	Submitter     linkedin.Poster
	Identity      Identity
	Reader        PostReader
	SubmitLimiter Limiter
	Logger        *slog.Logger
}

// Pipeline runs discover, generate, and submit flows.
type Pipeline struct {
	deps   Deps
	logger *slog.Logger
}

// New creates a Pipeline.
func New(deps Deps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{deps: deps, logger: logger}
}

// DiscoveredPost is a post with fetched text and a canonical id.
type DiscoveredPost struct {
	URL    string    `json:"url"`
	ID     postid.ID `json:"id"`
	Text   string    `json:"text"`
	Author string    `json:"author"`
}

// Discover searches topic, fetches every hit, and keeps the posts whose
// address normalizes. Finding nothing is not an error.
func (p *Pipeline) Discover(ctx context.Context, topic string, max int) ([]DiscoveredPost, error) {
	results := p.deps.Searcher.Search(ctx, topic, max)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		p.logger.Info("no posts found", "topic", topic)
		return nil, nil
	}

	urls := make([]string, len(results))
	for i, r := range results {
		urls[i] = r.URL
	}
	contents := p.deps.Fetcher.FetchAll(ctx, urls)

	posts := make([]DiscoveredPost, 0, len(contents))
	for _, c := range contents {
		id, err := postid.Normalize(c.URL)
		if err != nil {
			p.logger.Debug("dropping post with unrecognized address", "url", c.URL, "err", err)
			continue
		}
		posts = append(posts, DiscoveredPost{URL: c.URL, ID: id, Text: c.Text, Author: c.Author})
	}
	p.logger.Info("discovery finished", "topic", topic, "found", len(results), "kept", len(posts))
	return posts, nil
}

// SingleRequest asks for one comment on one post, posted immediately.
type SingleRequest struct {
	URL string `json:"post_url"`
	// PostText is fetched from URL when empty.
	PostText string `json:"post_text"`
	Tone     string `json:"tone"`
	Context  string `json:"user_context"`
}

// SingleResult is the outcome of GenerateAndSubmit.
type SingleResult struct {
	ID      postid.ID         `json:"id"`
	Comment string            `json:"comment"`
	Receipt *linkedin.Receipt `json:"receipt"`
}

// GenerateAndSubmit normalizes the address, generates one comment, and
// posts it. The first failing stage aborts the call.
func (p *Pipeline) GenerateAndSubmit(ctx context.Context, req SingleRequest) (*SingleResult, error) {
	id, err := postid.Normalize(req.URL)
	if err != nil {
		return nil, err
	}

	text := req.PostText
	if strings.TrimSpace(text) == "" {
		content, err := p.deps.Fetcher.FetchPost(ctx, req.URL)
		if err != nil {
			return nil, fmt.Errorf("pipeline: fetch post text: %w", err)
		}
		text = content.Text
	}

	comment, err := p.generateOne(ctx, text, req.Tone, req.Context)
	if err != nil {
		return nil, err
	}

	actor, err := p.actor(ctx)
	if err != nil {
		return nil, err
	}

	receipt, err := p.deps.Submitter.Submit(ctx, id, actor, comment)
	if err != nil {
		return nil, err
	}
	return &SingleResult{ID: id, Comment: comment, Receipt: receipt}, nil
}

// BatchRequest drives a full discover, generate, and optional post run.
type BatchRequest struct {
	Topic    string `json:"topic"`
	Tone     string `json:"tone"`
	Context  string `json:"user_context"`
	Max      int    `json:"max_posts"`
	AutoPost bool   `json:"auto_post"`
}

// Item is one post processed by Batch.
type Item struct {
	URL      string    `json:"url"`
	ID       postid.ID `json:"id"`
	Author   string    `json:"author"`
	PostText string    `json:"post_text"`
	Comment  string    `json:"generated_reply"`
	Posted   bool      `json:"posted"`
	Error    string    `json:"error,omitempty"`
}

// Batch discovers posts and processes them one at a time. Failures are
// recorded on the item and never stop the run.
func (p *Pipeline) Batch(ctx context.Context, req BatchRequest) ([]Item, error) {
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)

	posts, err := p.Discover(ctx, req.Topic, req.Max)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(posts))
	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		item := Item{
			URL:      post.URL,
			ID:       post.ID,
			Author:   post.Author,
			PostText: truncate(post.Text, MaxItemText),
		}
		p.process(ctx, logger, &item, post.Text, req)
		metrics.RecordBatchItem(item.Posted, item.Error != "")
		items = append(items, item)
	}

	logger.Info("batch finished", "topic", req.Topic, "items", len(items), "auto_post", req.AutoPost)
	return items, nil
}

func (p *Pipeline) process(ctx context.Context, logger *slog.Logger, item *Item, text string, req BatchRequest) {
	comment, err := p.generateOne(ctx, text, req.Tone, req.Context)
	if err != nil {
		item.Error = err.Error()
		logger.Warn("generation failed", "post", item.ID.URN(), "err", err)
		return
	}
	item.Comment = comment
	if !req.AutoPost {
		return
	}

	actor, err := p.actor(ctx)
	if err != nil {
		item.Error = err.Error()
		return
	}
	if p.deps.SubmitLimiter != nil {
		if err := p.deps.SubmitLimiter.Wait(ctx); err != nil {
			item.Error = err.Error()
			return
		}
	}
	if _, err := p.deps.Submitter.Submit(ctx, item.ID, actor, comment); err != nil {
		item.Error = err.Error()
		logger.Warn("submission failed", "post", item.ID.URN(), "err", err)
		return
	}
	item.Posted = true
}

// SuggestRequest asks for Count comment options on PostText.
type SuggestRequest struct {
	PostText string `json:"post_text"`
	Tone     string `json:"tone"`
	Context  string `json:"user_context"`
	Count    int    `json:"num_suggestions"`
}

// Suggest generates comment options without posting anything.
func (p *Pipeline) Suggest(ctx context.Context, req SuggestRequest) ([]string, error) {
	if strings.TrimSpace(req.PostText) == "" {
		return nil, ErrEmptyPostText
	}
	return p.deps.Generator.Generate(ctx, reply.Request{
		PostText: req.PostText,
		Count:    req.Count,
		Tone:     req.Tone,
		Context:  req.Context,
	})
}

// Submit posts text on the post identified by urn, which must be an
// explicit activity or ugcPost URN.
func (p *Pipeline) Submit(ctx context.Context, urn, text string) (*linkedin.Receipt, error) {
	id, err := postid.Parse(urn)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("pipeline: comment text is required: %w", ErrEmptyPostText)
	}
	actor, err := p.actor(ctx)
	if err != nil {
		return nil, err
	}
	return p.deps.Submitter.Submit(ctx, id, actor, text)
}

// Analysis is what could be learned about a post from its address.
type Analysis struct {
	ID     postid.ID `json:"id"`
	Text   string    `json:"text"`
	Author string    `json:"author"`
	// Manual is set when the text could not be fetched and has to be
	// supplied by the user.
	Manual bool `json:"manual,omitempty"`
}

// Analyze normalizes address and looks the post up, first through the
// authenticated API and then on the public page. When neither works the
// result is Manual rather than an error.
func (p *Pipeline) Analyze(ctx context.Context, address string) (*Analysis, error) {
	id, err := postid.Normalize(address)
	if err != nil {
		return nil, err
	}
	if p.deps.Reader != nil {
		post, err := p.deps.Reader.GetPost(ctx, id.URN())
		switch {
		case err != nil:
			p.logger.Debug("api post read failed", "urn", id.URN(), "err", err)
		case strings.TrimSpace(post.Text) != "":
			return &Analysis{ID: id, Text: post.Text, Author: post.Author}, nil
		}
	}
	if !strings.HasPrefix(address, "http") {
		return &Analysis{ID: id, Manual: true}, nil
	}
	content, err := p.deps.Fetcher.FetchPost(ctx, address)
	if err != nil {
		p.logger.Info("post text unavailable, manual entry needed", "url", address, "err", err)
		return &Analysis{ID: id, Manual: true}, nil
	}
	return &Analysis{ID: id, Text: content.Text, Author: content.Author}, nil
}

func (p *Pipeline) generateOne(ctx context.Context, text, tone, userContext string) (string, error) {
	comments, err := p.deps.Generator.Generate(ctx, reply.Request{
		PostText: text,
		Count:    1,
		Tone:     tone,
		Context:  userContext,
	})
	if err != nil {
		return "", err
	}
	if len(comments) == 0 {
		return "", fmt.Errorf("pipeline: %w", reply.ErrUnparseable)
	}
	return comments[0], nil
}

func (p *Pipeline) actor(ctx context.Context) (string, error) {
	if p.deps.Identity == nil {
		return "", nil
	}
	return p.deps.Identity.MemberURN(ctx)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
