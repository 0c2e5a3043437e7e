package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/glamify-scraper/internal/affiliate"
	"github.com/maltedev/glamify-scraper/internal/database"
	"github.com/maltedev/glamify-scraper/internal/events"
	"github.com/maltedev/glamify-scraper/internal/feed"
	"github.com/maltedev/glamify-scraper/internal/models"
)

type TxRunner interface {
	InTx(ctx context.Context, fn func(q database.Querier) error) error
}

type ProductStore interface {
	Upsert(ctx context.Context, q database.Querier, p *models.AffiliateProduct) error
	SetAffiliateLink(ctx context.Context, q database.Querier, productID, linkID uuid.UUID) error
}

type LinkStore interface {
	Upsert(ctx context.Context, q database.Querier, l *models.AffiliateLink) error
}

type EventPublisher interface {
	PublishProductScraped(ctx context.Context, q database.Querier, payload *events.ProductScrapedPayload) error
}

// Service stores crawled products together with their affiliate link and a
// PRODUCT_SCRAPED event, all in one transaction. It is a feed.Sink.
type Service struct {
	tx        TxRunner
	products  ProductStore
	links     LinkStore
	publisher EventPublisher
	linker    *affiliate.Linker
	logger    *slog.Logger
}

func NewService(tx TxRunner, products ProductStore, links LinkStore, publisher EventPublisher, linker *affiliate.Linker, logger *slog.Logger) *Service {
	return &Service{
		tx:        tx,
		products:  products,
		links:     links,
		publisher: publisher,
		linker:    linker,
		logger:    logger.With("component", "catalog"),
	}
}

// NewPostgresService wires the service to a database.
func NewPostgresService(db *database.DB, linker *affiliate.Linker, logger *slog.Logger) *Service {
	publisher := events.NewPublisher(database.NewOutboxRepository(db), logger)
	return NewService(PostgresTx{DB: db}, database.NewProductRepository(), database.NewLinkRepository(), publisher, linker, logger)
}

var _ feed.Sink = (*Service)(nil)

func (s *Service) Write(ctx context.Context, item feed.Item) error {
	product := models.NewAffiliateProduct(item.Platform, item.Record)

	err := s.tx.InTx(ctx, func(q database.Querier) error {
		if err := s.products.Upsert(ctx, q, product); err != nil {
			return err
		}

		affiliateURL, err := s.storeLink(ctx, q, product)
		if err != nil {
			return err
		}

		payload := events.NewProductScraped(product, affiliateURL, item.SourceURL)
		return s.publisher.PublishProductScraped(ctx, q, payload)
	})
	if err != nil {
		return fmt.Errorf("failed to store product: %w", err)
	}

	s.logger.Debug("product stored", "product_id", product.ID, "platform", product.Platform)
	return nil
}

// storeLink records the affiliate link for product when the platform
// rewrites links. Products without a url get no link.
func (s *Service) storeLink(ctx context.Context, q database.Querier, product *models.AffiliateProduct) (string, error) {
	if product.URL == nil || !s.linker.Rewrites(product.Platform) {
		return "", nil
	}

	affiliateID, _ := s.linker.AffiliateID(product.Platform)
	link := &models.AffiliateLink{
		ProductID:   product.ID,
		Platform:    product.Platform,
		AffiliateID: affiliateID,
		LinkURL:     s.linker.GenerateLink(product.Platform, *product.URL),
	}

	if err := s.links.Upsert(ctx, q, link); err != nil {
		return "", err
	}

	if err := s.products.SetAffiliateLink(ctx, q, product.ID, link.ID); err != nil {
		return "", err
	}

	product.AffiliateLinkID = &link.ID
	return link.LinkURL, nil
}

func (s *Service) Close() error {
	return nil
}

// PostgresTx runs catalog writes in a database transaction.
type PostgresTx struct {
	DB *database.DB
}

func (p PostgresTx) InTx(ctx context.Context, fn func(q database.Querier) error) error {
	return p.DB.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(tx)
	})
}
