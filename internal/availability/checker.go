package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/maltedev/glamify-scraper/internal/database"
	"github.com/maltedev/glamify-scraper/internal/events"
)

// ProductStore is implemented by database.ProductRepository.
type ProductStore interface {
	SetAvailability(ctx context.Context, q database.Querier, productID uuid.UUID, available bool) error
}

// Checker re-visits the page of every scraped product and records whether it
// is still listed.
type Checker struct {
	client    *http.Client
	userAgent string
	products  ProductStore
	q         database.Querier
	logger    *slog.Logger
}

func NewChecker(client *http.Client, userAgent string, products ProductStore, q database.Querier, logger *slog.Logger) *Checker {
	return &Checker{
		client:    client,
		userAgent: userAgent,
		products:  products,
		q:         q,
		logger:    logger.With("component", "availability"),
	}
}

// Handle is an events.Handler for PRODUCT_SCRAPED messages. Other event
// types and products without a url are acknowledged without a check.
func (c *Checker) Handle(ctx context.Context, msg events.Message) error {
	if msg.EventType != string(events.EventTypeProductScraped) {
		return nil
	}

	var payload events.ProductScrapedPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	if payload.URL == nil || *payload.URL == "" {
		return nil
	}

	productID, err := uuid.Parse(payload.ProductID)
	if err != nil {
		return fmt.Errorf("invalid product id %q: %w", payload.ProductID, err)
	}

	available, err := c.Check(ctx, *payload.URL)
	if err != nil {
		return err
	}

	if err := c.products.SetAvailability(ctx, c.q, productID, available); err != nil {
		return err
	}

	c.logger.Info("product checked", "product_id", productID, "url", *payload.URL, "available", available)
	return nil
}

// Check requests productURL and reports whether the product is still listed.
// Only 404 and 410 count as gone; other failures are returned as errors so
// the message is retried.
func (c *Checker) Check(ctx context.Context, productURL string) (bool, error) {
	status, err := c.status(ctx, http.MethodHead, productURL)
	if err != nil {
		return false, err
	}

	if status == http.StatusMethodNotAllowed {
		status, err = c.status(ctx, http.MethodGet, productURL)
		if err != nil {
			return false, err
		}
	}

	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return false, nil
	case status >= 200 && status < 400:
		return true, nil
	default:
		return false, fmt.Errorf("unexpected status %d for %s", status, productURL)
	}
}

func (c *Checker) status(ctx context.Context, method, productURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, productURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to request %s: %w", productURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return resp.StatusCode, nil
}
