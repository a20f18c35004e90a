package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrUnknownProxy is returned when reporting on a proxy the pool never handed out.
var ErrUnknownProxy = errors.New("proxy: not in pool")

type endpoint struct {
	url       *url.URL
	failures  int
	successes int
	benchedAt time.Time
	benched   bool
}

// Config defines settings for the Proxy Pool.
type Config struct {
	// MaxFailures consecutive failures bench a proxy.
	MaxFailures int
	// Cooldown is how long a benched proxy sits out.
	Cooldown time.Duration
	// Now is the clock; tests replace it.
	Now func() time.Time
}

// Pool rotates outbound requests across proxies, benching the ones that
// keep failing. The zero-length pool hands out nil, meaning "direct".
type Pool struct {
	mu          sync.Mutex
	endpoints   []*endpoint
	byKey       map[string]*endpoint
	next        int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// NewPool creates an empty pool. Zero config values get defaults.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pool{
		byKey:       make(map[string]*endpoint),
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         cfg.Now,
	}
}

// LoadFile adds one proxy per line. Blank lines and '#' comments are skipped.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: open %s: %w", path, err)
	}
	defer f.Close()

	var raws []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raws = append(raws, line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("proxy: read %s: %w", path, err)
	}
	return p.Add(raws...)
}

// Add parses proxy URLs, defaulting to http:// when no scheme is given.
// Duplicates are ignored.
func (p *Pool) Add(raws ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, raw := range raws {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy: parse %q: %w", raw, err)
		}
		key := u.String()
		if _, dup := p.byKey[key]; dup {
			continue
		}
		ep := &endpoint{url: u}
		p.endpoints = append(p.endpoints, ep)
		p.byKey[key] = ep
	}
	return nil
}

// Len reports the number of proxies, healthy or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// Next returns the next usable proxy, or nil when the pool is empty or every
// proxy is benched.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.endpoints)
	now := p.now()
	for i := 0; i < n; i++ {
		ep := p.endpoints[p.next]
		p.next = (p.next + 1) % n

		if ep.benched && now.Sub(ep.benchedAt) >= p.cooldown {
			ep.benched = false
			ep.failures = 0
		}
		if !ep.benched {
			return ep.url
		}
	}
	return nil
}

// MarkSuccess records a good response through u and forgives one failure.
func (p *Pool) MarkSuccess(u *url.URL) error {
	ep, err := p.lookup(u)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ep.successes++
	if ep.failures > 0 {
		ep.failures--
	}
	return nil
}

// MarkFailure records a failed request through u, benching it once it
// reaches MaxFailures.
func (p *Pool) MarkFailure(u *url.URL) error {
	ep, err := p.lookup(u)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ep.failures++
	if ep.failures >= p.maxFailures {
		ep.benched = true
		ep.benchedAt = p.now()
	}
	return nil
}

func (p *Pool) lookup(u *url.URL) (*endpoint, error) {
	if u == nil {
		return nil, errors.New("proxy: nil url")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ep, ok := p.byKey[u.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProxy, u.Redacted())
	}
	return ep, nil
}
