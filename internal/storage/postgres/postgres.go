package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/FranksOps/liaison/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS search_cache (
	fingerprint TEXT PRIMARY KEY,
	ts TIMESTAMPTZ NOT NULL,
	posts JSONB NOT NULL
);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Load(ctx context.Context, fingerprint string) (*storage.CachedResult, error) {
	res := &storage.CachedResult{Fingerprint: fingerprint}
	var postsJSON []byte

	err := b.pool.QueryRow(ctx,
		`SELECT ts, posts FROM search_cache WHERE fingerprint = $1`,
		fingerprint,
	).Scan(&res.Timestamp, &postsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load %s: %w", fingerprint, err)
	}

	if err := json.Unmarshal(postsJSON, &res.Posts); err != nil {
		return nil, fmt.Errorf("postgres: decode posts for %s: %w", fingerprint, err)
	}
	return res, nil
}

func (b *postgresBackend) Save(ctx context.Context, result *storage.CachedResult) error {
	posts := result.Posts
	if posts == nil {
		posts = []storage.PostResult{}
	}
	postsJSON, err := json.Marshal(posts)
	if err != nil {
		return fmt.Errorf("postgres: encode posts: %w", err)
	}

	query := `
	INSERT INTO search_cache (fingerprint, ts, posts) VALUES ($1, $2, $3)
	ON CONFLICT (fingerprint) DO UPDATE SET ts = EXCLUDED.ts, posts = EXCLUDED.posts
	`
	if _, err := b.pool.Exec(ctx, query, result.Fingerprint, result.Timestamp, postsJSON); err != nil {
		return fmt.Errorf("postgres: save %s: %w", result.Fingerprint, err)
	}
	return nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
