package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FranksOps/liaison/internal/auth"
	"github.com/FranksOps/liaison/internal/linkedin"
	"github.com/FranksOps/liaison/internal/pipeline"
	"github.com/FranksOps/liaison/internal/postid"
	"github.com/FranksOps/liaison/internal/reply"
)

type fakeService struct {
	posts       []pipeline.DiscoveredPost
	items       []pipeline.Item
	err         error
	gotTopic    string
	gotMax      int
	gotBatch    pipeline.BatchRequest
	gotSuggest  pipeline.SuggestRequest
	panicOnCall bool
}

func (f *fakeService) Discover(_ context.Context, topic string, max int) ([]pipeline.DiscoveredPost, error) {
	if f.panicOnCall {
		panic("boom")
	}
	f.gotTopic, f.gotMax = topic, max
	return f.posts, f.err
}

func (f *fakeService) GenerateAndSubmit(_ context.Context, req pipeline.SingleRequest) (*pipeline.SingleResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	id, err := postid.Normalize(req.URL)
	if err != nil {
		return nil, err
	}
	return &pipeline.SingleResult{ID: id, Comment: "nice", Receipt: &linkedin.Receipt{ID: "r1", Variant: "rest-social-actions"}}, nil
}

func (f *fakeService) Batch(_ context.Context, req pipeline.BatchRequest) ([]pipeline.Item, error) {
	f.gotBatch = req
	return f.items, f.err
}

func (f *fakeService) Suggest(_ context.Context, req pipeline.SuggestRequest) ([]string, error) {
	f.gotSuggest = req
	if f.err != nil {
		return nil, f.err
	}
	if strings.TrimSpace(req.PostText) == "" {
		return nil, pipeline.ErrEmptyPostText
	}
	return []string{"one", "two", "three"}[:req.Count], nil
}

func (f *fakeService) Submit(_ context.Context, urn, _ string) (*linkedin.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &linkedin.Receipt{ID: "r2", Variant: "voyager-dash"}, nil
}

func (f *fakeService) Analyze(_ context.Context, address string) (*pipeline.Analysis, error) {
	id, err := postid.Normalize(address)
	if err != nil {
		return nil, err
	}
	return &pipeline.Analysis{ID: id, Manual: true}, nil
}

type fakeProfile struct{}

func (fakeProfile) UserInfo(context.Context) (*linkedin.UserInfo, error) {
	return &linkedin.UserInfo{Sub: "member42"}, nil
}

func newTestServer(t *testing.T, svc *fakeService, oauth *auth.OAuth) (*httptest.Server, *auth.TokenStore) {
	t.Helper()
	tokens := auth.NewTokenStore(filepath.Join(t.TempDir(), "tokens.json"))
	h := New(Deps{
		Service:      svc,
		OAuth:        oauth,
		Tokens:       tokens,
		Profile:      fakeProfile{},
		DefaultTopic: "golang",
	})
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts, tokens
}

func post(t *testing.T, ts *httptest.Server, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestDiscover_DefaultsAndEmpty(t *testing.T) {
	svc := &fakeService{}
	ts, _ := newTestServer(t, svc, nil)

	resp, out := post(t, ts, "/api/auto/discover", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "golang", svc.gotTopic)
	assert.Equal(t, 8, svc.gotMax)
	assert.Equal(t, "No posts found", out["message"])
	assert.Equal(t, []any{}, out["posts"])
}

func TestDiscover_WithPosts(t *testing.T) {
	svc := &fakeService{posts: []pipeline.DiscoveredPost{{URL: "u", ID: postid.ID{Kind: postid.KindActivity, Value: "1"}, Text: "t", Author: "a"}}}
	ts, _ := newTestServer(t, svc, nil)

	_, out := post(t, ts, "/api/auto/discover", `{"topic":"rust","max_posts":2}`)
	assert.Equal(t, "rust", svc.gotTopic)
	assert.Equal(t, 2, svc.gotMax)
	assert.Len(t, out["posts"], 1)
	assert.NotContains(t, out, "message")
}

func TestBatch_Body(t *testing.T) {
	svc := &fakeService{items: []pipeline.Item{{URL: "u", Posted: true}}}
	ts, _ := newTestServer(t, svc, nil)

	resp, out := post(t, ts, "/api/auto/batch", `{"tone":"witty","auto_post":true}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "golang", svc.gotBatch.Topic)
	assert.Equal(t, 5, svc.gotBatch.Max)
	assert.Equal(t, "witty", svc.gotBatch.Tone)
	assert.True(t, svc.gotBatch.AutoPost)
	assert.Len(t, out["items"], 1)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		path   string
		body   string
		status int
		code   string
	}{
		{"bad json", nil, "/api/auto/generate-and-post", `{not json`, http.StatusBadRequest, "BAD_REQUEST"},
		{"unrecognized id", nil, "/api/auto/generate-and-post", `{"post_url":"https://example.com"}`, http.StatusBadRequest, "UNRECOGNIZED_POST"},
		{"empty text", nil, "/api/generate-replies", `{"post_text":"  "}`, http.StatusBadRequest, "EMPTY_TEXT"},
		{"not authenticated", auth.ErrNotAuthenticated, "/api/post-comment", `{"post_urn":"urn:li:activity:1","comment_text":"x"}`, http.StatusUnauthorized, "NOT_AUTHENTICATED"},
		{"submission failed", &linkedin.SubmissionError{Attempts: []linkedin.Attempt{{Variant: "v", StatusCode: 403}}}, "/api/post-comment", `{}`, http.StatusBadGateway, "SUBMISSION_FAILED"},
		{"generation failed", fmt.Errorf("%w: ollama: dial tcp", reply.ErrUpstream), "/api/generate-replies", `{"post_text":"x"}`, http.StatusBadGateway, "GENERATION_FAILED"},
		{"other", errors.New("disk on fire"), "/api/generate-replies", `{"post_text":"x"}`, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := newTestServer(t, &fakeService{err: tt.err}, nil)
			resp, out := post(t, ts, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, out["code"])
			assert.NotEmpty(t, out["message"])
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "internal error", out["message"])
			}
		})
	}
}

func TestGenerateReplies_DefaultCount(t *testing.T) {
	svc := &fakeService{}
	ts, _ := newTestServer(t, svc, nil)
	_, out := post(t, ts, "/api/generate-replies", `{"post_text":"hello"}`)
	assert.Equal(t, 3, svc.gotSuggest.Count)
	assert.Len(t, out["suggestions"], 3)
}

func TestAnalyzePost(t *testing.T) {
	ts, _ := newTestServer(t, &fakeService{}, nil)
	_, out := post(t, ts, "/api/analyze-post", `{"url":"urn:li:ugcPost:77"}`)
	assert.Equal(t, "urn:li:ugcPost:77", out["urn"])
	assert.Equal(t, true, out["manual"])
}

func TestRecoverer(t *testing.T) {
	ts, _ := newTestServer(t, &fakeService{panicOnCall: true}, nil)
	resp, out := post(t, ts, "/api/auto/discover", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "INTERNAL_ERROR", out["code"])
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t, &fakeService{}, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOAuthFlow(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	oauth := auth.NewOAuth(auth.OAuthConfig{ClientID: "cid", ClientSecret: "sec", TokenURL: tokenSrv.URL})
	ts, tokens := newTestServer(t, &fakeService{}, oauth)

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	resp, err := client.Get(ts.URL + "/auth/login")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	var stateCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == oauthStateCookie {
			stateCookie = c
		}
	}
	require.NotNil(t, stateCookie)
	assert.Equal(t, state, stateCookie.Value)

	// Wrong state is rejected.
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/auth/callback?code=c&state=wrong", nil)
	req.AddCookie(stateCookie)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/auth/callback?code=c&state="+state, nil)
	req.AddCookie(stateCookie)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	urn, err := tokens.MemberURN(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "urn:li:person:member42", urn)

	resp, err = http.Get(ts.URL + "/auth/status")
	require.NoError(t, err)
	var status map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.True(t, status["authenticated"])

	_, out := post(t, ts, "/auth/logout", "")
	assert.Equal(t, true, out["ok"])
	assert.False(t, tokens.Authenticated(context.Background()))
}

func TestLogin_NotConfigured(t *testing.T) {
	ts, _ := newTestServer(t, &fakeService{}, auth.NewOAuth(auth.OAuthConfig{}))
	resp, err := http.Get(ts.URL + "/auth/login")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
