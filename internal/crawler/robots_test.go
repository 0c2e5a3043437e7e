package crawler

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chromiumRenderer serves pages the way a headless Chromium reports them:
// text/plain bodies come back wrapped in a <pre> element.
type chromiumRenderer struct {
	client *http.Client
	urls   []string
}

func (c *chromiumRenderer) Render(ctx context.Context, url string) (string, int, string, error) {
	c.urls = append(c.urls, url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, "", err
	}

	content := string(body)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		content = `<html><head></head><body><pre style="word-wrap: break-word; white-space: pre-wrap;">` +
			html.EscapeString(content) + `</pre></body></html>`
	}

	return url, resp.StatusCode, content, nil
}

func TestCrawler_BrowserModeObeysRobots(t *testing.T) {
	srv := newShop(t)
	sink := &memorySink{}
	renderer := &chromiumRenderer{client: srv.Client()}

	c := newCrawler(NewBrowserFetcher(renderer), sink, Options{
		MaxPages: 10,
		Robots:   NewRobotsCache(srv.Client(), "GlamifyAI/1.0", slog.Default()),
	})

	stats, err := c.Run(context.Background(), []string{srv.URL + "/private/list", srv.URL + "/page/2"})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.PagesSkipped)
	assert.NotContains(t, sink.names(), "Hidden")
	assert.Contains(t, sink.names(), "Serum")
	assert.NotContains(t, renderer.urls, srv.URL+"/robots.txt", "robots.txt is not rendered")
}

func TestRobotsCache_ReadsPlainText(t *testing.T) {
	srv := newShop(t)

	resp, err := NewBrowserFetcher(&chromiumRenderer{client: srv.Client()}).Fetch(context.Background(), srv.URL+"/robots.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(resp.Body), "<html>"))

	robots := NewRobotsCache(srv.Client(), "GlamifyAI/1.0", slog.Default())
	assert.False(t, robots.Allowed(context.Background(), srv.URL+"/private/x"))
	assert.True(t, robots.Allowed(context.Background(), srv.URL+"/products"))
}

func TestRobotsCache_SlowHostDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, "User-agent: *\nDisallow: /\n")
	}))
	defer slow.Close()
	defer close(release)

	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
	}))
	defer fast.Close()

	robots := NewRobotsCache(&http.Client{Timeout: 5 * time.Second}, "GlamifyAI/1.0", slog.Default())

	go robots.Allowed(context.Background(), slow.URL+"/products")

	done := make(chan bool, 1)
	go func() { done <- robots.Allowed(context.Background(), fast.URL+"/private/x") }()

	select {
	case allowed := <-done:
		assert.False(t, allowed)
	case <-time.After(2 * time.Second):
		t.Fatal("fast host waited on the slow host's robots.txt")
	}
}

func TestRobotsCache_FetchesOncePerHost(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			hits.Add(1)
		}
		fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
	}))
	defer srv.Close()

	robots := NewRobotsCache(srv.Client(), "GlamifyAI/1.0", slog.Default())
	for i := 0; i < 3; i++ {
		robots.Allowed(context.Background(), srv.URL+"/products")
	}

	assert.Equal(t, int32(1), hits.Load())
}
