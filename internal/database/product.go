package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/glamify-scraper/internal/models"
)

// ProductRepository persists scraped products into affiliate_products.
type ProductRepository struct{}

func NewProductRepository() *ProductRepository {
	return &ProductRepository{}
}

// Upsert inserts p or, when a row with the same platform and url exists,
// refreshes it. p.ID, CreatedAt and UpdatedAt are set from the stored row.
func (r *ProductRepository) Upsert(ctx context.Context, q Querier, p *models.AffiliateProduct) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	query := `
		INSERT INTO affiliate_products (
			id, platform, name, description, price, currency,
			rating, brand, category, url, image_url, availability
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (platform, url) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			rating = EXCLUDED.rating,
			brand = EXCLUDED.brand,
			category = EXCLUDED.category,
			image_url = EXCLUDED.image_url,
			availability = EXCLUDED.availability,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id, created_at, updated_at`

	err := q.QueryRow(ctx, query,
		p.ID, p.Platform, p.Name, p.Description, p.Price, p.Currency,
		p.Rating, p.Brand, p.Category, p.URL, p.ImageURL, p.Availability,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}

	return nil
}

// SetAffiliateLink points a product at its current affiliate link.
func (r *ProductRepository) SetAffiliateLink(ctx context.Context, q Querier, productID, linkID uuid.UUID) error {
	_, err := q.Exec(ctx, `
		UPDATE affiliate_products
		SET affiliate_link_id = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`, productID, linkID)
	if err != nil {
		return fmt.Errorf("failed to set affiliate link: %w", err)
	}
	return nil
}

// SetAvailability records whether the product page is still reachable.
func (r *ProductRepository) SetAvailability(ctx context.Context, q Querier, productID uuid.UUID, available bool) error {
	result, err := q.Exec(ctx, `
		UPDATE affiliate_products
		SET availability = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`, productID, available)
	if err != nil {
		return fmt.Errorf("failed to set availability: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("product not found: %s", productID)
	}

	return nil
}

// Get returns the product with id, or nil when it does not exist.
func (r *ProductRepository) Get(ctx context.Context, q Querier, id uuid.UUID) (*models.AffiliateProduct, error) {
	query := `
		SELECT id, product_id, platform, name, description, price::float8, currency,
		       rating::float8, brand, category, url, image_url, availability,
		       affiliate_link_id, created_at, updated_at
		FROM affiliate_products
		WHERE id = $1`

	p := &models.AffiliateProduct{}
	err := q.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.ProductID, &p.Platform, &p.Name, &p.Description, &p.Price, &p.Currency,
		&p.Rating, &p.Brand, &p.Category, &p.URL, &p.ImageURL, &p.Availability,
		&p.AffiliateLinkID, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return p, nil
}

// CountByPlatform returns how many products are stored per platform.
func (r *ProductRepository) CountByPlatform(ctx context.Context, q Querier) (map[string]int, error) {
	rows, err := q.Query(ctx, `
		SELECT platform, COUNT(*)
		FROM affiliate_products
		GROUP BY platform`)
	if err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var platform string
		var count int
		if err := rows.Scan(&platform, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[platform] = count
	}

	return counts, rows.Err()
}
