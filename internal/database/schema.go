package database

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS beauty_profiles (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		skin_type TEXT CHECK (skin_type IN ('oily', 'dry', 'combination', 'normal', 'sensitive')),
		hair_concerns TEXT[],
		preferred_styles TEXT[],
		favorite_influencers TEXT[],
		budget_range TEXT CHECK (budget_range IN ('low', 'mid', 'high')),
		favorite_colors TEXT[],
		preferred_brands TEXT[],
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS affiliate_products (
		id UUID PRIMARY KEY,
		product_id VARCHAR(255),
		platform VARCHAR(50) NOT NULL,
		name VARCHAR(255),
		description TEXT,
		price DECIMAL(10, 2),
		currency VARCHAR(3) NOT NULL DEFAULT 'AED',
		rating DECIMAL(3, 2),
		review_count INTEGER,
		seller VARCHAR(255),
		brand VARCHAR(255),
		category VARCHAR(100),
		subcategory VARCHAR(100),
		url TEXT,
		image_url TEXT,
		availability BOOLEAN NOT NULL DEFAULT TRUE,
		features TEXT[],
		ai_tags TEXT[],
		affiliate_link_id UUID,
		commission_rate DECIMAL(5, 2),
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (platform, url)
	)`,
	`CREATE TABLE IF NOT EXISTS user_preferences (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		product_id UUID NOT NULL REFERENCES affiliate_products (id) ON DELETE CASCADE,
		action TEXT NOT NULL CHECK (action IN ('saved', 'clicked', 'purchased', 'disliked')),
		timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS affiliate_links (
		id UUID PRIMARY KEY,
		product_id UUID NOT NULL REFERENCES affiliate_products (id) ON DELETE CASCADE,
		platform VARCHAR(50) NOT NULL,
		affiliate_id VARCHAR(255) NOT NULL,
		link_url TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_used TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (product_id, platform)
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_event (
		id UUID PRIMARY KEY,
		aggregate_type VARCHAR(50) NOT NULL,
		aggregate_id VARCHAR(255) NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		payload JSONB NOT NULL,
		target_stream VARCHAR(255) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		processed_at TIMESTAMPTZ,
		next_retry_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_event_pending ON outbox_event (status, next_retry_at)`,
}

// Migrate creates the tables used by the scraper if they do not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
