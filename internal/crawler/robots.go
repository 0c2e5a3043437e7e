package crawler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// RobotsCache fetches robots.txt once per host and answers whether a URL may
// be crawled by our user agent. robots.txt is always read over plain HTTP,
// since a browser wraps text/plain bodies in HTML.
type RobotsCache struct {
	mu        sync.Mutex
	fetcher   Fetcher
	userAgent string
	hosts     map[string]*robotsEntry
	logger    *slog.Logger
}

// robotsEntry is filled in once; ready is closed when data is set.
type robotsEntry struct {
	ready chan struct{}
	data  *robotstxt.RobotsData
}

func NewRobotsCache(client *http.Client, userAgent string, logger *slog.Logger) *RobotsCache {
	return &RobotsCache{
		fetcher:   NewHTTPFetcher(client, userAgent),
		userAgent: userAgent,
		hosts:     make(map[string]*robotsEntry),
		logger:    logger.With("component", "robots"),
	}
}

// Allowed reports whether rawURL may be fetched. A robots.txt that cannot be
// fetched allows everything; 5xx answers disallow everything for that host.
func (r *RobotsCache) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}

	data := r.forHost(ctx, u)
	if data == nil {
		return true
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	return data.TestAgent(path, r.userAgent)
}

// forHost returns the parsed robots.txt of u's host. Only the first caller
// for a host fetches; other callers for that host wait, callers for other
// hosts do not.
func (r *RobotsCache) forHost(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	key := u.Scheme + "://" + u.Host

	r.mu.Lock()
	entry, ok := r.hosts[key]
	if !ok {
		entry = &robotsEntry{ready: make(chan struct{})}
		r.hosts[key] = entry
	}
	r.mu.Unlock()

	if ok {
		select {
		case <-entry.ready:
			return entry.data
		case <-ctx.Done():
			return nil
		}
	}

	entry.data = r.fetch(ctx, key, u.Host)
	if ctx.Err() != nil {
		// a cancelled fetch is not an answer; let the next caller retry
		r.mu.Lock()
		delete(r.hosts, key)
		r.mu.Unlock()
	}
	close(entry.ready)
	return entry.data
}

func (r *RobotsCache) fetch(ctx context.Context, key, host string) *robotstxt.RobotsData {
	resp, err := r.fetcher.Fetch(ctx, key+"/robots.txt")
	if err != nil {
		r.logger.Warn("failed to fetch robots.txt", "host", host, "error", err)
		return nil
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		r.logger.Warn("failed to parse robots.txt", "host", host, "error", err)
		return nil
	}

	return data
}
