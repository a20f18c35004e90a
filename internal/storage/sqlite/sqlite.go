package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/FranksOps/liaison/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS search_cache (
	fingerprint TEXT PRIMARY KEY,
	ts_unix_ms INTEGER NOT NULL,
	posts TEXT NOT NULL
);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Load(ctx context.Context, fingerprint string) (*storage.CachedResult, error) {
	var (
		tsMs      int64
		postsJSON string
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT ts_unix_ms, posts FROM search_cache WHERE fingerprint = ?`,
		fingerprint,
	).Scan(&tsMs, &postsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load %s: %w", fingerprint, err)
	}

	res := &storage.CachedResult{
		Fingerprint: fingerprint,
		Timestamp:   time.UnixMilli(tsMs),
	}
	if err := json.Unmarshal([]byte(postsJSON), &res.Posts); err != nil {
		return nil, fmt.Errorf("sqlite: decode posts for %s: %w", fingerprint, err)
	}
	return res, nil
}

func (b *sqliteBackend) Save(ctx context.Context, result *storage.CachedResult) error {
	posts := result.Posts
	if posts == nil {
		posts = []storage.PostResult{}
	}
	postsJSON, err := json.Marshal(posts)
	if err != nil {
		return fmt.Errorf("sqlite: encode posts: %w", err)
	}

	query := `
	INSERT INTO search_cache (fingerprint, ts_unix_ms, posts) VALUES (?, ?, ?)
	ON CONFLICT(fingerprint) DO UPDATE SET ts_unix_ms = excluded.ts_unix_ms, posts = excluded.posts
	`
	_, err = b.db.ExecContext(ctx, query,
		result.Fingerprint,
		result.Timestamp.UnixMilli(),
		string(postsJSON),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save %s: %w", result.Fingerprint, err)
	}
	return nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
