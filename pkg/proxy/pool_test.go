package proxy

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPool_AddAndNext(t *testing.T) {
	pool := NewPool(Config{})

	if err := pool.Add("127.0.0.1:8080", "http://127.0.0.1:8081", "socks5://127.0.0.1:9050", "127.0.0.1:8080"); err != nil {
		t.Fatalf("unexpected error adding proxies: %v", err)
	}
	if pool.Len() != 3 {
		t.Fatalf("expected duplicates to be ignored, got %d proxies", pool.Len())
	}

	want := []string{
		"http://127.0.0.1:8080",
		"http://127.0.0.1:8081",
		"socks5://127.0.0.1:9050",
		"http://127.0.0.1:8080",
	}
	for i, w := range want {
		if got := pool.Next(); got == nil || got.String() != w {
			t.Errorf("call %d: expected %s, got %v", i, w, got)
		}
	}
}

func TestPool_Empty(t *testing.T) {
	pool := NewPool(Config{})
	if got := pool.Next(); got != nil {
		t.Errorf("expected nil from empty pool, got %v", got)
	}
}

func TestPool_BenchAndRevive(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	pool := NewPool(Config{
		MaxFailures: 2,
		Cooldown:    time.Minute,
		Now:         func() time.Time { return now },
	})
	if err := pool.Add("http://a", "http://b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a := pool.Next()
	if a.String() != "http://a" {
		t.Fatalf("expected http://a, got %v", a)
	}
	_ = pool.MarkFailure(a)
	_ = pool.MarkFailure(a)

	for i := 0; i < 2; i++ {
		if got := pool.Next(); got.String() != "http://b" {
			t.Fatalf("expected http://b while a is benched, got %v", got)
		}
	}

	now = now.Add(2 * time.Minute)
	if got := pool.Next(); got.String() != "http://a" {
		t.Fatalf("expected http://a after cooldown, got %v", got)
	}
}

func TestPool_AllBenched(t *testing.T) {
	pool := NewPool(Config{MaxFailures: 1, Cooldown: time.Hour})
	_ = pool.Add("http://only")

	u := pool.Next()
	_ = pool.MarkFailure(u)
	if got := pool.Next(); got != nil {
		t.Errorf("expected nil when every proxy is benched, got %v", got)
	}
}

func TestPool_SuccessForgivesFailure(t *testing.T) {
	pool := NewPool(Config{MaxFailures: 2, Cooldown: time.Hour})
	_ = pool.Add("http://a")

	u := pool.Next()
	_ = pool.MarkFailure(u)
	_ = pool.MarkSuccess(u)
	_ = pool.MarkFailure(u)

	if got := pool.Next(); got == nil {
		t.Errorf("expected proxy to stay usable after success offset a failure")
	}
}

func TestPool_UnknownProxy(t *testing.T) {
	pool := NewPool(Config{})
	stranger, _ := url.Parse("http://stranger:1")

	if err := pool.MarkFailure(stranger); !errors.Is(err, ErrUnknownProxy) {
		t.Errorf("expected ErrUnknownProxy, got %v", err)
	}
	if err := pool.MarkSuccess(nil); err == nil {
		t.Errorf("expected error for nil url")
	}
}

func TestPool_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	content := "# office egress\nhttp://10.0.0.1:3128\n\n10.0.0.2:3128\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write proxies: %v", err)
	}

	pool := NewPool(Config{})
	if err := pool.LoadFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if pool.Len() != 2 {
		t.Errorf("expected 2 proxies, got %d", pool.Len())
	}

	if err := pool.LoadFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Errorf("expected error for missing file")
	}
}
