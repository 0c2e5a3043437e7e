package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/maltedev/glamify-scraper/internal/models"
)

// LinkRepository persists generated links into affiliate_links.
type LinkRepository struct{}

func NewLinkRepository() *LinkRepository {
	return &LinkRepository{}
}

// Upsert stores the link for (product, platform), replacing an older one.
func (r *LinkRepository) Upsert(ctx context.Context, q Querier, l *models.AffiliateLink) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}

	query := `
		INSERT INTO affiliate_links (id, product_id, platform, affiliate_id, link_url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id, platform) DO UPDATE SET
			affiliate_id = EXCLUDED.affiliate_id,
			link_url = EXCLUDED.link_url
		RETURNING id, created_at, last_used`

	err := q.QueryRow(ctx, query,
		l.ID, l.ProductID, l.Platform, l.AffiliateID, l.LinkURL,
	).Scan(&l.ID, &l.CreatedAt, &l.LastUsed)
	if err != nil {
		return fmt.Errorf("failed to upsert affiliate link: %w", err)
	}

	return nil
}

// Touch records that a link was handed out.
func (r *LinkRepository) Touch(ctx context.Context, q Querier, id uuid.UUID) error {
	result, err := q.Exec(ctx, `UPDATE affiliate_links SET last_used = CURRENT_TIMESTAMP WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to touch affiliate link: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("affiliate link not found: %s", id)
	}

	return nil
}
