package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/glamify-scraper/internal/affiliate"
	"github.com/maltedev/glamify-scraper/internal/browser"
	"github.com/maltedev/glamify-scraper/internal/catalog"
	"github.com/maltedev/glamify-scraper/internal/config"
	"github.com/maltedev/glamify-scraper/internal/crawler"
	"github.com/maltedev/glamify-scraper/internal/database"
	"github.com/maltedev/glamify-scraper/internal/extractor"
	"github.com/maltedev/glamify-scraper/internal/feed"
	"github.com/maltedev/glamify-scraper/internal/ratelimit"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		startURL = flag.String("url", "", "Start URL (overrides CRAWLER_START_URLS)")
		platform = flag.String("platform", "", "Platform the crawled products belong to")
		output   = flag.String("output", "", "Feed file (overrides FEED_PATH)")
		maxPages = flag.Int("pages", 0, "Maximum pages to fetch (overrides CRAWLER_MAX_PAGES)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if *startURL != "" {
		cfg.Crawler.StartURLs = []string{*startURL}
	}
	if *platform != "" {
		cfg.Crawler.Platform = *platform
	}
	if *output != "" {
		cfg.Feed.Path = *output
	}
	if *maxPages > 0 {
		cfg.Crawler.MaxPages = *maxPages
	}

	logger := cfg.Logging.Logger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("crawl failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	fetcher, closeFetcher, err := newFetcher(cfg, logger)
	if err != nil {
		return err
	}
	defer closeFetcher()

	sink, err := feed.Open(cfg.Feed.Path, cfg.Feed.Format)
	if err != nil {
		return err
	}
	sinks := feed.MultiSink{sink}

	if cfg.Database.Enabled {
		db, err := database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Name,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			sink.Close()
			return err
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			sink.Close()
			return err
		}

		linker := affiliate.NewLinker(cfg.Affiliate)
		sinks = append(sinks, catalog.NewPostgresService(db, linker, logger))

		if cfg.Redis.Enabled {
			stopRelay, err := startRelay(ctx, cfg, db, logger)
			if err != nil {
				sink.Close()
				return err
			}
			defer stopRelay()
		}
	}

	var robots *crawler.RobotsCache
	if cfg.Crawler.ObeyRobots {
		robots = crawler.NewRobotsCache(&http.Client{Timeout: cfg.Crawler.Timeout}, cfg.Crawler.UserAgent, logger)
	}

	c := crawler.New(
		fetcher,
		extractor.New(extractor.DefaultOptions()),
		ratelimit.NewDelayLimiter(cfg.Crawler.DownloadDelay, cfg.Crawler.RandomDelay),
		sinks,
		crawler.Options{
			Platform: cfg.Crawler.Platform,
			MaxPages: cfg.Crawler.MaxPages,
			Workers:  cfg.Crawler.Workers,
			Robots:   robots,
		},
		logger,
	)

	logger.Info("starting crawl",
		"start_urls", cfg.Crawler.StartURLs,
		"platform", cfg.Crawler.Platform,
		"feed", cfg.Feed.Path,
		"persist", cfg.Database.Enabled,
	)

	stats, runErr := c.Run(ctx, cfg.Crawler.StartURLs)
	closeErr := sinks.Close()

	logger.Info("crawl complete",
		"pages_fetched", stats.PagesFetched,
		"pages_skipped", stats.PagesSkipped,
		"pages_failed", stats.PagesFailed,
		"records", stats.RecordsStored,
	)

	if errors.Is(runErr, context.Canceled) {
		logger.Info("crawl interrupted")
		runErr = nil
	}

	return errors.Join(runErr, closeErr)
}

func newFetcher(cfg *config.Config, logger *slog.Logger) (crawler.Fetcher, func(), error) {
	if !cfg.Crawler.UseBrowser {
		client := &http.Client{Timeout: cfg.Crawler.Timeout}
		return crawler.NewHTTPFetcher(client, cfg.Crawler.UserAgent), func() {}, nil
	}

	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Browser.Timeout
	opts.UserAgent = cfg.Crawler.UserAgent
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	opts.Locale = cfg.Browser.Locale

	b, err := browser.New(opts, logger)
	if err != nil {
		return nil, nil, err
	}

	return crawler.NewBrowserFetcher(b), func() {
		if err := b.Close(); err != nil {
			logger.Warn("failed to close browser", "error", err)
		}
	}, nil
}

// startRelay runs the outbox relay until the returned func is called. The
// relay gets a final flush so events from the last pages are not left behind.
func startRelay(ctx context.Context, cfg *config.Config, db *database.DB, logger *slog.Logger) (func(), error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, err
	}

	relay := database.NewRelay(database.NewOutboxRepository(db), redisClient, logger, database.RelayConfig{
		PollInterval: cfg.Redis.PollInterval,
		BatchSize:    cfg.Redis.BatchSize,
	})

	relayCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := relay.Start(relayCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("relay stopped with error", "error", err)
		}
	}()

	return func() {
		cancel()
		<-done

		if n, err := relay.Drain(context.WithoutCancel(ctx)); err != nil {
			logger.Error("final relay flush failed", "error", err, "published", n)
		} else if n > 0 {
			logger.Info("final relay flush", "published", n)
		}
		redisClient.Close()
	}, nil
}
