package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientLimiter keeps one token bucket per client address.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewClientLimiter(perSecond float64, burst int) *ClientLimiter {
	return &ClientLimiter{
		clients: make(map[string]*client),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		ttl:     10 * time.Minute,
		now:     time.Now,
	}
}

// Allow reports whether addr may make a request now.
func (c *ClientLimiter) Allow(addr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.evict(now)

	cl, ok := c.clients[addr]
	if !ok {
		cl = &client{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.clients[addr] = cl
	}
	cl.lastSeen = now

	return cl.limiter.AllowN(now, 1)
}

// evict drops clients idle for longer than ttl. Caller holds mu.
func (c *ClientLimiter) evict(now time.Time) {
	for addr, cl := range c.clients {
		if now.Sub(cl.lastSeen) > c.ttl {
			delete(c.clients, addr)
		}
	}
}

// Middleware rejects requests over the limit with 429. It keys on
// RemoteAddr, so it belongs after middleware.RealIP.
func (c *ClientLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.Allow(clientAddr(r)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
