package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/glamify-scraper/internal/affiliate"
	"github.com/maltedev/glamify-scraper/internal/api"
	"github.com/maltedev/glamify-scraper/internal/catalog"
	"github.com/maltedev/glamify-scraper/internal/config"
	"github.com/maltedev/glamify-scraper/internal/database"
	"github.com/maltedev/glamify-scraper/internal/extractor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.Logging.Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		outbox   api.OutboxStats
		products api.Catalog
	)
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
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		outbox = database.NewOutboxRepository(db)
		products = catalog.NewPostgresReader(db)
	}

	handlers := api.NewHandlers(
		affiliate.NewLinker(cfg.Affiliate),
		extractor.New(extractor.DefaultOptions()),
		outbox,
		products,
		logger,
	)

	router := api.NewRouter(handlers, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestsPerSec: cfg.Server.RequestsPerSec,
		Burst:          cfg.Server.Burst,
		Timeout:        cfg.Server.WriteTimeout,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "port", cfg.Server.Port, "platforms", len(cfg.Affiliate))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
