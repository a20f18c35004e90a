package useragent

import (
	"crypto/rand"
	"math/big"
	"strings"
	"sync/atomic"
)

// Desktop is the built-in rotation of desktop browser User-Agents. Search
// engines and LinkedIn's public post pages both serve full markup to these.
var Desktop = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

// Rotator hands out User-Agent strings round-robin or at random.
// It is safe for concurrent use.
type Rotator struct {
	agents  []string
	counter atomic.Uint64
}

// NewRotator copies agents, dropping blank entries. With nothing left it
// falls back to Desktop.
func NewRotator(agents []string) *Rotator {
	kept := make([]string, 0, len(agents))
	for _, a := range agents {
		if a = strings.TrimSpace(a); a != "" {
			kept = append(kept, a)
		}
	}
	if len(kept) == 0 {
		kept = append(kept, Desktop...)
	}
	return &Rotator{agents: kept}
}

// Next returns the next agent in round-robin order.
func (r *Rotator) Next() string {
	if len(r.agents) == 0 {
		return ""
	}
	idx := r.counter.Add(1) - 1
	return r.agents[idx%uint64(len(r.agents))]
}

// Random returns a uniformly chosen agent, falling back to Next if
// crypto/rand is unavailable.
func (r *Rotator) Random() string {
	if len(r.agents) == 0 {
		return ""
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(r.agents))))
	if err != nil {
		return r.Next()
	}
	return r.agents[n.Int64()]
}

// Len reports how many agents are in rotation.
func (r *Rotator) Len() int { return len(r.agents) }
