package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxBodySize caps how much of a listing page is read.
const maxBodySize = 10 << 20

// Response is a fetched page.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// HTTPFetcher fetches pages with a plain HTTP client.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

func NewHTTPFetcher(client *http.Client, userAgent string) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPFetcher{client: client, userAgent: userAgent}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", url, err)
	}

	return &Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

// Renderer is implemented by browser.Browser.
type Renderer interface {
	Render(ctx context.Context, url string) (finalURL string, status int, html string, err error)
}

// BrowserFetcher fetches pages through a headless browser.
type BrowserFetcher struct {
	renderer Renderer
}

func NewBrowserFetcher(r Renderer) *BrowserFetcher {
	return &BrowserFetcher{renderer: r}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	finalURL, status, html, err := f.renderer.Render(ctx, url)
	if err != nil {
		return nil, err
	}

	if finalURL == "" || strings.HasPrefix(finalURL, "about:") {
		finalURL = url
	}

	return &Response{URL: finalURL, StatusCode: status, Body: []byte(html)}, nil
}
