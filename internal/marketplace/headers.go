package marketplace

import (
	"net/http"
	"sync/atomic"
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// HeaderRotator hands out browser-like request headers, cycling through a
// user-agent list round-robin.
type HeaderRotator struct {
	agents []string
	next   atomic.Uint64
}

// NewHeaderRotator creates a rotator. An empty list uses the built-in agents.
func NewHeaderRotator(agents []string) *HeaderRotator {
	if len(agents) == 0 {
		agents = defaultUserAgents
	}
	return &HeaderRotator{agents: agents}
}

// UserAgent returns the next user agent in the rotation.
func (h *HeaderRotator) UserAgent() string {
	n := h.next.Add(1) - 1
	return h.agents[n%uint64(len(h.agents))]
}

// Apply sets the rotated headers on req.
func (h *HeaderRotator) Apply(req *http.Request) {
	req.Header.Set("User-Agent", h.UserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}
