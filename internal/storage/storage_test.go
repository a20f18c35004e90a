package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	a := Fingerprint("site:linkedin.com/posts  Go Generics")
	b := Fingerprint("  site:linkedin.com/posts go\tgenerics ")
	c := Fingerprint("site:linkedin.com/posts rust")

	assert.Len(t, a, 16)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

type memBackend struct {
	entries map[string]*CachedResult
	loadErr error
	saveErr error
	loads   int
}

var _ Backend = (*memBackend)(nil)

func newMemBackend() *memBackend {
	return &memBackend{entries: map[string]*CachedResult{}}
}

func (m *memBackend) Load(_ context.Context, fp string) (*CachedResult, error) {
	m.loads++
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	r, ok := m.entries[fp]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (m *memBackend) Save(_ context.Context, r *CachedResult) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.entries[r.Fingerprint] = r
	return nil
}

func (m *memBackend) Close() error { return nil }

func TestCache_TTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	backend := newMemBackend()
	cache := NewCache(backend, CacheConfig{
		TTL: time.Minute,
		Now: func() time.Time { return now },
	})
	ctx := context.Background()
	posts := []PostResult{{URL: "https://www.linkedin.com/posts/a_b-activity-1-x", Title: "t"}}

	_, ok := cache.Get(ctx, "fp")
	assert.False(t, ok, "empty cache should miss")

	cache.Put(ctx, "fp", posts)

	got, ok := cache.Get(ctx, "fp")
	require.True(t, ok)
	assert.Equal(t, posts, got)

	now = now.Add(59 * time.Second)
	_, ok = cache.Get(ctx, "fp")
	assert.True(t, ok, "entry younger than TTL should hit")

	now = now.Add(time.Second)
	_, ok = cache.Get(ctx, "fp")
	assert.False(t, ok, "entry exactly TTL old should miss")
}

func TestCache_PutOverwrites(t *testing.T) {
	backend := newMemBackend()
	cache := NewCache(backend, CacheConfig{})
	ctx := context.Background()

	cache.Put(ctx, "fp", []PostResult{{URL: "one"}})
	cache.Put(ctx, "fp", []PostResult{{URL: "two"}})

	got, ok := cache.Get(ctx, "fp")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "two", got[0].URL)
}

func TestCache_BackendErrorsAreSwallowed(t *testing.T) {
	backend := newMemBackend()
	backend.loadErr = errors.New("disk on fire")
	backend.saveErr = errors.New("disk on fire")
	cache := NewCache(backend, CacheConfig{})
	ctx := context.Background()

	cache.Put(ctx, "fp", []PostResult{{URL: "x"}})
	_, ok := cache.Get(ctx, "fp")
	assert.False(t, ok)
	assert.Equal(t, 1, backend.loads)
}
