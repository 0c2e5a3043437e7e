package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maltedev/glamify-scraper/internal/extractor"
	"github.com/maltedev/glamify-scraper/internal/feed"
	"github.com/maltedev/glamify-scraper/internal/queue"
	"github.com/maltedev/glamify-scraper/internal/ratelimit"
)

// Stats summarises one crawl.
type Stats struct {
	PagesFetched  int `json:"pages_fetched"`
	PagesSkipped  int `json:"pages_skipped"`
	PagesFailed   int `json:"pages_failed"`
	RecordsStored int `json:"records_stored"`
}

type Options struct {
	Platform string
	MaxPages int
	Workers  int
	// Robots may be nil to crawl without consulting robots.txt.
	Robots *RobotsCache
}

// Crawler feeds fetched pages to the extractor and schedules every
// continuation it reports until the frontier drains or MaxPages is reached.
type Crawler struct {
	fetcher   Fetcher
	extractor *extractor.Extractor
	limiter   ratelimit.RateLimiter
	sink      feed.Sink
	opts      Options
	logger    *slog.Logger
}

func New(fetcher Fetcher, ex *extractor.Extractor, limiter ratelimit.RateLimiter, sink feed.Sink, opts Options, logger *slog.Logger) *Crawler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}

	return &Crawler{
		fetcher:   fetcher,
		extractor: ex,
		limiter:   limiter,
		sink:      sink,
		opts:      opts,
		logger:    logger.With("component", "crawler"),
	}
}

type run struct {
	q         *queue.InMemoryQueue
	mu        sync.Mutex
	seen      map[string]bool
	scheduled int
	stats     Stats
}

// schedule queues url unless it was seen before or the page budget is spent.
func (r *run) schedule(task *queue.Task, maxPages int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seen[task.URL] || r.scheduled >= maxPages {
		return false, nil
	}

	if err := r.q.Push(task); err != nil {
		return false, err
	}

	r.seen[task.URL] = true
	r.scheduled++
	return true, nil
}

func (r *run) update(fn func(*Stats)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.stats)
}

// Run crawls from startURLs. It returns early only on context cancellation
// or a sink error; pages that fail to fetch are logged and counted.
func (c *Crawler) Run(ctx context.Context, startURLs []string) (Stats, error) {
	r := &run{
		q:    queue.NewInMemoryQueue(),
		seen: make(map[string]bool),
	}
	defer r.q.Close()

	for _, u := range startURLs {
		if _, err := r.schedule(&queue.Task{URL: u}, c.opts.MaxPages); err != nil {
			return r.stats, err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	for i := 0; i < c.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for {
				task, err := r.q.Pop(ctx)
				if err != nil {
					if !errors.Is(err, queue.ErrQueueEmpty) && !errors.Is(err, queue.ErrQueueClosed) {
						errOnce.Do(func() { firstErr = err })
					}
					return
				}

				err = c.process(ctx, r, task)
				r.q.Done()

				if err != nil {
					errOnce.Do(func() { firstErr = err })
					cancel()
					return
				}
			}
		}()
	}

	wg.Wait()

	c.logger.Info("crawl finished",
		"pages_fetched", r.stats.PagesFetched,
		"pages_skipped", r.stats.PagesSkipped,
		"pages_failed", r.stats.PagesFailed,
		"records", r.stats.RecordsStored,
	)

	return r.stats, firstErr
}

func (c *Crawler) process(ctx context.Context, r *run, task *queue.Task) error {
	logger := c.logger.With("url", task.URL, "depth", task.Depth)

	if c.opts.Robots != nil && !c.opts.Robots.Allowed(ctx, task.URL) {
		logger.Info("disallowed by robots.txt")
		r.update(func(s *Stats) { s.PagesSkipped++ })
		return nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.fetcher.Fetch(ctx, task.URL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("failed to fetch page", "error", err)
		r.update(func(s *Stats) { s.PagesFailed++ })
		return nil
	}

	if !resp.OK() {
		logger.Warn("unexpected status", "status", resp.StatusCode)
		r.update(func(s *Stats) { s.PagesFailed++ })
		return nil
	}

	page, err := c.extractor.ExtractReader(bytes.NewReader(resp.Body), resp.URL)
	if err != nil {
		logger.Warn("failed to extract page", "error", err)
		r.update(func(s *Stats) { s.PagesFailed++ })
		return nil
	}
	r.update(func(s *Stats) { s.PagesFetched++ })

	stored := 0
	for rec := range page.Records() {
		item := feed.Item{Record: rec, SourceURL: resp.URL, Platform: c.opts.Platform}
		if err := c.sink.Write(ctx, item); err != nil {
			return fmt.Errorf("failed to store record from %s: %w", resp.URL, err)
		}
		stored++
	}
	r.update(func(s *Stats) { s.RecordsStored += stored })

	logger.Info("page extracted", "records", stored)

	next, ok := page.Next()
	if !ok {
		return nil
	}

	queued, err := r.schedule(&queue.Task{URL: next, Referer: task.URL, Depth: task.Depth + 1}, c.opts.MaxPages)
	if err != nil {
		return err
	}
	if queued {
		logger.Debug("following pagination", "next", next)
	}

	return nil
}
