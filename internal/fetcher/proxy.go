package fetcher

import (
	"sync"
	"time"
)

// Proxy is one upstream proxy endpoint.
type Proxy struct {
	Addr string

	mu          sync.Mutex
	lastFailure time.Time
	failures    int
}

// ProxyPool rotates through proxies round-robin, skipping ones that failed
// recently. When every proxy is cooling down the least recently failed one is
// used anyway so fetching never stalls. All proxies share one optional set of
// credentials, answered to the browser's 407 challenge.
type ProxyPool struct {
	mu       sync.Mutex
	proxies  []*Proxy
	next     int
	cooldown time.Duration
	username string
	password string
}

// NewProxyPool builds a pool from proxy addresses ("host:port" or full URL).
// username and password may be empty for unauthenticated proxies. Returns nil
// for an empty list, which callers treat as direct connection.
func NewProxyPool(addrs []string, username, password string, cooldown time.Duration) *ProxyPool {
	if len(addrs) == 0 {
		return nil
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	pool := &ProxyPool{
		cooldown: cooldown,
		username: username,
		password: password,
	}
	for _, addr := range addrs {
		pool.proxies = append(pool.proxies, &Proxy{Addr: addr})
	}
	return pool
}

// Credentials returns the shared proxy credentials. ok is false when the pool
// is unauthenticated.
func (p *ProxyPool) Credentials() (username, password string, ok bool) {
	if p.username == "" {
		return "", "", false
	}
	return p.username, p.password, true
}

// Next returns the proxy to use for the next request.
func (p *ProxyPool) Next() *Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.proxies)
	var oldest *Proxy
	for i := 0; i < n; i++ {
		candidate := p.proxies[p.next]
		p.next = (p.next + 1) % n

		candidate.mu.Lock()
		coolingDown := !candidate.lastFailure.IsZero() && time.Since(candidate.lastFailure) < p.cooldown
		candidate.mu.Unlock()

		if !coolingDown {
			return candidate
		}
		if oldest == nil || candidate.lastFailure.Before(oldest.lastFailure) {
			oldest = candidate
		}
	}
	return oldest
}

// MarkFailure records a failed request through the proxy.
func (p *ProxyPool) MarkFailure(proxy *Proxy) {
	proxy.mu.Lock()
	defer proxy.mu.Unlock()
	proxy.lastFailure = time.Now()
	proxy.failures++
}

// MarkSuccess clears a proxy's failure state.
func (p *ProxyPool) MarkSuccess(proxy *Proxy) {
	proxy.mu.Lock()
	defer proxy.mu.Unlock()
	proxy.lastFailure = time.Time{}
	proxy.failures = 0
}

// Size returns the number of configured proxies.
func (p *ProxyPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}
