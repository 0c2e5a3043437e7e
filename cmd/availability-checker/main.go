package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/glamify-scraper/internal/availability"
	"github.com/maltedev/glamify-scraper/internal/config"
	"github.com/maltedev/glamify-scraper/internal/database"
	"github.com/maltedev/glamify-scraper/internal/events"
	"github.com/redis/go-redis/v9"
)

// availability-checker consumes PRODUCT_SCRAPED events from the relay stream
// and marks products whose pages have disappeared as unavailable.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.Logging.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err, "addr", cfg.Redis.Addr)
		os.Exit(1)
	}

	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	checker := availability.NewChecker(
		&http.Client{Timeout: cfg.Crawler.Timeout},
		cfg.Crawler.UserAgent,
		database.NewProductRepository(),
		db,
		logger,
	)

	consumer := events.NewConsumer(rdb, events.ConsumerConfig{
		Stream:        cfg.Redis.Stream,
		Group:         cfg.Redis.Group,
		Consumer:      cfg.Redis.Consumer,
		MinIdle:       cfg.Redis.MinIdle,
		MaxDeliveries: int64(cfg.Redis.MaxDeliveries),
	}, logger)

	if err := consumer.Run(ctx, checker.Handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("consumer stopped")
}
