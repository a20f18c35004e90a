package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by a Backend when no entry exists for a fingerprint.
var ErrNotFound = errors.New("storage: entry not found")

// PostResult is one post reference found by a search provider.
type PostResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// CachedResult is a stored search result set for one query fingerprint.
type CachedResult struct {
	Fingerprint string
	Timestamp   time.Time
	Posts       []PostResult
}

// Backend persists cached search results keyed by fingerprint.
type Backend interface {
	// Load returns ErrNotFound when nothing is stored for fingerprint.
	Load(ctx context.Context, fingerprint string) (*CachedResult, error)
	// Save overwrites any existing entry for result.Fingerprint.
	Save(ctx context.Context, result *CachedResult) error
	Close() error
}

// Fingerprint returns a stable key for a search query. Queries that differ
// only in case or whitespace share a fingerprint.
func Fingerprint(query string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}
