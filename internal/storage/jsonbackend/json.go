package jsonbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/FranksOps/liaison/internal/storage"
)

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

// record is the on-disk shape of one cache file.
type record struct {
	TS    float64              `json:"ts"`
	Posts []storage.PostResult `json:"posts"`
}

type jsonBackend struct {
	dir string
}

// New creates a storage.Backend that keeps one JSON file per fingerprint
// under dir, creating dir if needed.
func New(dir string) (storage.Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("jsonbackend: create %s: %w", dir, err)
	}
	return &jsonBackend{dir: dir}, nil
}

func (b *jsonBackend) path(fingerprint string) (string, error) {
	if fingerprint == "" || strings.ContainsAny(fingerprint, `/\.`) {
		return "", fmt.Errorf("jsonbackend: invalid fingerprint %q", fingerprint)
	}
	return filepath.Join(b.dir, fingerprint+".json"), nil
}

func (b *jsonBackend) Load(ctx context.Context, fingerprint string) (*storage.CachedResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := b.path(fingerprint)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jsonbackend: read %s: %w", p, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("jsonbackend: decode %s: %w", p, err)
	}

	sec, frac := math.Modf(rec.TS)
	return &storage.CachedResult{
		Fingerprint: fingerprint,
		Timestamp:   time.Unix(int64(sec), int64(frac*1e9)),
		Posts:       rec.Posts,
	}, nil
}

// Save writes to a temp file in the same directory and renames it over the
// target, so readers never see a partial file. Concurrent writers race and
// the last rename wins.
func (b *jsonBackend) Save(ctx context.Context, result *storage.CachedResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := b.path(result.Fingerprint)
	if err != nil {
		return err
	}

	posts := result.Posts
	if posts == nil {
		posts = []storage.PostResult{}
	}
	data, err := json.Marshal(record{
		TS:    float64(result.Timestamp.UnixNano()) / 1e9,
		Posts: posts,
	})
	if err != nil {
		return fmt.Errorf("jsonbackend: encode: %w", err)
	}

	tmp, err := os.CreateTemp(b.dir, result.Fingerprint+".*.tmp")
	if err != nil {
		return fmt.Errorf("jsonbackend: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("jsonbackend: write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("jsonbackend: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("jsonbackend: rename to %s: %w", p, err)
	}
	return nil
}

func (b *jsonBackend) Close() error {
	return nil
}
