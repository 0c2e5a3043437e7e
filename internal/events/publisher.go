package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/glamify-scraper/internal/database"
	"github.com/maltedev/glamify-scraper/internal/models"
)

type EventType string

const (
	EventTypeProductScraped EventType = "PRODUCT_SCRAPED"
)

// ProductScrapedPayload is published for every product stored from a crawl.
type ProductScrapedPayload struct {
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	Timestamp    time.Time `json:"timestamp"`
	ProductID    string    `json:"product_id"`
	Platform     string    `json:"platform"`
	Name         *string   `json:"name,omitempty"`
	Brand        *string   `json:"brand,omitempty"`
	Category     *string   `json:"category,omitempty"`
	Price        *float64  `json:"price,omitempty"`
	Currency     string    `json:"currency"`
	Rating       *float64  `json:"rating,omitempty"`
	URL          *string   `json:"url,omitempty"`
	ImageURL     *string   `json:"image_url,omitempty"`
	AffiliateURL string    `json:"affiliate_url,omitempty"`
	SourceURL    string    `json:"source_url"`
}

// OutboxWriter is implemented by database.OutboxRepository.
type OutboxWriter interface {
	Insert(ctx context.Context, q database.Querier, event *database.OutboxEvent) error
}

// Publisher writes events into the transactional outbox.
type Publisher struct {
	outbox OutboxWriter
	logger *slog.Logger
}

func NewPublisher(outbox OutboxWriter, logger *slog.Logger) *Publisher {
	return &Publisher{
		outbox: outbox,
		logger: logger.With("component", "event_publisher"),
	}
}

// NewProductScraped builds the payload for a stored product.
func NewProductScraped(p *models.AffiliateProduct, affiliateURL, sourceURL string) *ProductScrapedPayload {
	return &ProductScrapedPayload{
		ProductID:    p.ID.String(),
		Platform:     p.Platform,
		Name:         p.Name,
		Brand:        p.Brand,
		Category:     p.Category,
		Price:        p.Price,
		Currency:     p.Currency,
		Rating:       p.Rating,
		URL:          p.URL,
		ImageURL:     p.ImageURL,
		AffiliateURL: affiliateURL,
		SourceURL:    sourceURL,
	}
}

// PublishProductScraped adds the event to the outbox using q, which should be
// the transaction that stored the product.
func (p *Publisher) PublishProductScraped(ctx context.Context, q database.Querier, payload *ProductScrapedPayload) error {
	if payload.EventID == "" {
		payload.EventID = uuid.New().String()
	}
	if payload.EventType == "" {
		payload.EventType = string(EventTypeProductScraped)
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	event := &database.OutboxEvent{
		AggregateType: "affiliate_product",
		AggregateID:   payload.ProductID,
		EventType:     string(EventTypeProductScraped),
		Payload:       data,
		TargetStream:  database.DefaultTargetStream,
	}

	if err := p.outbox.Insert(ctx, q, event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("event written to outbox",
		"event_id", payload.EventID,
		"product_id", payload.ProductID,
		"outbox_id", event.ID,
	)

	return nil
}
