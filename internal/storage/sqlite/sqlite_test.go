package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/liaison/internal/storage"
	"github.com/google/go-cmp/cmp"
)

func TestSQLiteBackend(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "cache.db")
	b, err := New(dsn)
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.UnixMilli(time.Now().UnixMilli())

	if _, err := b.Load(ctx, "nothing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	first := &storage.CachedResult{
		Fingerprint: "0123456789abcdef",
		Timestamp:   now.Add(-time.Hour),
		Posts: []storage.PostResult{
			{URL: "https://www.linkedin.com/posts/a_b-activity-1-x", Title: "A", Snippet: "a"},
		},
	}
	if err := b.Save(ctx, first); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	got, err := b.Load(ctx, first.Fingerprint)
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if diff := cmp.Diff(first.Posts, got.Posts); diff != "" {
		t.Errorf("posts mismatch (-want +got):\n%s", diff)
	}
	if !got.Timestamp.Equal(first.Timestamp) {
		t.Errorf("Expected timestamp %v, got %v", first.Timestamp, got.Timestamp)
	}

	second := &storage.CachedResult{
		Fingerprint: first.Fingerprint,
		Timestamp:   now,
		Posts:       nil,
	}
	if err := b.Save(ctx, second); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}
	got, err = b.Load(ctx, first.Fingerprint)
	if err != nil {
		t.Fatalf("Failed to load after upsert: %v", err)
	}
	if len(got.Posts) != 0 || !got.Timestamp.Equal(now) {
		t.Errorf("Expected upsert to replace entry, got %+v", got)
	}
}
