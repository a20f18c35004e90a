package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, now time.Time) *TokenStore {
	t.Helper()
	s := NewTokenStore(filepath.Join(t.TempDir(), "nested", "tokens.json"))
	s.now = func() time.Time { return now }
	return s
}

func TestTokenStore_SaveComputesExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := newStore(t, now)

	require.NoError(t, s.Save(&Token{AccessToken: "abc", ExpiresIn: 3600}))

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, float64(1_700_003_600), onDisk["expires_at"])

	tok, err := s.ValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}

func TestTokenStore_Expired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := newStore(t, now)
	require.NoError(t, s.Save(&Token{AccessToken: "abc", ExpiresAt: float64(now.Unix())}))

	_, err := s.ValidToken(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.False(t, s.Authenticated(context.Background()))
}

func TestTokenStore_NoExpiryIsExpired(t *testing.T) {
	s := newStore(t, time.Now())
	require.NoError(t, s.Save(&Token{AccessToken: "abc"}))
	_, err := s.ValidToken(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestTokenStore_Missing(t *testing.T) {
	s := newStore(t, time.Now())
	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = s.MemberURN(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestTokenStore_MemberURN(t *testing.T) {
	s := newStore(t, time.Unix(100, 0))
	require.NoError(t, s.Save(&Token{AccessToken: "abc", ExpiresAt: 200}))

	_, err := s.MemberURN(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	require.NoError(t, s.SetMemberURN("urn:li:person:xyz"))
	urn, err := s.MemberURN(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "urn:li:person:xyz", urn)

	tok, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, float64(200), tok.ExpiresAt, "expiry must survive SetMemberURN")
}

func TestTokenStore_Clear(t *testing.T) {
	s := newStore(t, time.Unix(100, 0))
	require.NoError(t, s.Clear(), "clearing an empty store")
	require.NoError(t, s.Save(&Token{AccessToken: "abc", ExpiresAt: 200}))
	require.NoError(t, s.Clear())
	_, err := s.Load()
	assert.True(t, errors.Is(err, ErrNotAuthenticated))
}

func TestOAuth_AuthorizeURL(t *testing.T) {
	o := NewOAuth(OAuthConfig{ClientID: "cid", RedirectURI: "http://localhost:9000/auth/callback"})
	u, err := url.Parse(o.AuthorizeURL("st4te"))
	require.NoError(t, err)

	assert.Equal(t, "www.linkedin.com", u.Host)
	assert.Equal(t, "/oauth/v2/authorization", u.Path)
	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, "st4te", q.Get("state"))
	assert.Equal(t, Scopes, q.Get("scope"))
	assert.Equal(t, "http://localhost:9000/auth/callback", q.Get("redirect_uri"))
}

func TestOAuth_Exchange(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":5184000}`))
	}))
	defer ts.Close()

	o := NewOAuth(OAuthConfig{ClientID: "cid", ClientSecret: "secret", TokenURL: ts.URL})
	require.True(t, o.Configured())
	tok, err := o.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "tok", tok.AccessToken)
	assert.Equal(t, int64(5184000), tok.ExpiresIn)
}

func TestOAuth_ExchangeError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer ts.Close()

	o := NewOAuth(OAuthConfig{TokenURL: ts.URL})
	_, err := o.Exchange(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestNewState(t *testing.T) {
	a, b := NewState(), NewState()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
