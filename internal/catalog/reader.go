package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/maltedev/glamify-scraper/internal/database"
	"github.com/maltedev/glamify-scraper/internal/models"
)

type ProductReader interface {
	Get(ctx context.Context, q database.Querier, id uuid.UUID) (*models.AffiliateProduct, error)
	CountByPlatform(ctx context.Context, q database.Querier) (map[string]int, error)
}

type LinkToucher interface {
	Touch(ctx context.Context, q database.Querier, id uuid.UUID) error
}

// Reader serves stored products outside of a transaction.
type Reader struct {
	q        database.Querier
	products ProductReader
	links    LinkToucher
}

func NewReader(q database.Querier, products ProductReader, links LinkToucher) *Reader {
	return &Reader{q: q, products: products, links: links}
}

func NewPostgresReader(db *database.DB) *Reader {
	return NewReader(db, database.NewProductRepository(), database.NewLinkRepository())
}

// Product returns nil when id is unknown.
func (r *Reader) Product(ctx context.Context, id uuid.UUID) (*models.AffiliateProduct, error) {
	return r.products.Get(ctx, r.q, id)
}

func (r *Reader) CountByPlatform(ctx context.Context) (map[string]int, error) {
	return r.products.CountByPlatform(ctx, r.q)
}

// TouchLink marks an affiliate link as used.
func (r *Reader) TouchLink(ctx context.Context, id uuid.UUID) error {
	return r.links.Touch(ctx, r.q, id)
}
