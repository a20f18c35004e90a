// Package auth handles the LinkedIn OAuth flow and persists the resulting
// access token on disk.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNotAuthenticated is returned when no usable credentials are available.
var ErrNotAuthenticated = errors.New("auth: not authenticated")

// Token is the on-disk token record. ExpiresAt is unix seconds.
type Token struct {
	AccessToken  string  `json:"access_token"`
	ExpiresIn    int64   `json:"expires_in,omitempty"`
	ExpiresAt    float64 `json:"expires_at,omitempty"`
	RefreshToken string  `json:"refresh_token,omitempty"`
	MemberURN    string  `json:"member_urn,omitempty"`
}

// Expired reports whether the token is past its expiry at now. A token
// without an expiry is treated as expired.
func (t *Token) Expired(now time.Time) bool {
	if t == nil || t.ExpiresAt == 0 {
		return true
	}
	return float64(now.UnixNano())/1e9 >= t.ExpiresAt
}

// DefaultTokenPath returns ~/.liaison/tokens.json.
func DefaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".liaison", "tokens.json")
	}
	return filepath.Join(home, ".liaison", "tokens.json")
}

// TokenStore keeps a single Token in a JSON file.
type TokenStore struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// NewTokenStore returns a store backed by path. An empty path uses
// DefaultTokenPath.
func NewTokenStore(path string) *TokenStore {
	if path == "" {
		path = DefaultTokenPath()
	}
	return &TokenStore{path: path, now: time.Now}
}

// Path returns the backing file.
func (s *TokenStore) Path() string { return s.path }

// Save writes tok, filling ExpiresAt from ExpiresIn when it is unset.
func (s *TokenStore) Save(tok *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(tok)
}

func (s *TokenStore) save(tok *Token) error {
	if tok.ExpiresAt == 0 && tok.ExpiresIn > 0 {
		tok.ExpiresAt = float64(s.now().Unix() + tok.ExpiresIn)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("auth: create token dir: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("auth: encode token: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("auth: write token: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("auth: write token: %w", err)
	}
	return nil
}

// Load reads the stored token. A missing file is ErrNotAuthenticated.
func (s *TokenStore) Load() (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *TokenStore) load() (*Token, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("auth: read token: %w", err)
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("auth: decode token %s: %w", s.path, err)
	}
	return &tok, nil
}

// ValidToken returns the access token if one is stored and unexpired.
func (s *TokenStore) ValidToken(_ context.Context) (string, error) {
	tok, err := s.Load()
	if err != nil {
		return "", err
	}
	if tok.Expired(s.now()) || tok.AccessToken == "" {
		return "", ErrNotAuthenticated
	}
	return tok.AccessToken, nil
}

// MemberURN returns the member URN saved next to a valid token.
func (s *TokenStore) MemberURN(ctx context.Context) (string, error) {
	if _, err := s.ValidToken(ctx); err != nil {
		return "", err
	}
	tok, err := s.Load()
	if err != nil {
		return "", err
	}
	if tok.MemberURN == "" {
		return "", fmt.Errorf("%w: no member urn stored", ErrNotAuthenticated)
	}
	return tok.MemberURN, nil
}

// SetMemberURN records urn on the stored token.
func (s *TokenStore) SetMemberURN(urn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, err := s.load()
	if err != nil {
		return err
	}
	tok.MemberURN = urn
	return s.save(tok)
}

// Authenticated reports whether a valid token is stored.
func (s *TokenStore) Authenticated(ctx context.Context) bool {
	_, err := s.ValidToken(ctx)
	return err == nil
}

// Clear removes the stored token. Clearing an empty store is not an error.
func (s *TokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("auth: remove token: %w", err)
	}
	return nil
}
