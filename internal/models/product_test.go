package models

import (
	"testing"

	"github.com/maltedev/glamify-scraper/internal/extractor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		input    string
		amount   float64
		currency string
		ok       bool
	}{
		{"AED 95.00", 95, "AED", true},
		{"AED 1,299.50", 1299.5, "AED", true},
		{"1.299,50 EUR", 1299.5, "EUR", true},
		{"$24", 24, "USD", true},
		{"12,50 €", 12.5, "EUR", true},
		{"1,200", 1200, "", true},
		{"AED 1.299", 1299, "AED", true},
		{"1.299.000 EGP", 1299000, "EGP", true},
		{"AED 0.500", 0.5, "AED", true},
		{"AED 95.5", 95.5, "AED", true},
		{"95 SPF", 95, "", true},
		{"SPF 50 Sunscreen", 50, "", true},
		{"NEW 24.00", 24, "", true},
		{"Price: AED 95", 95, "AED", true},
		{"95 AED incl. VAT", 95, "AED", true},
		{"Sold out", 0, "", false},
		{"", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			amount, currency, ok := ParsePrice(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.amount, amount, 0.001)
			assert.Equal(t, tt.currency, currency)
		})
	}
}

func TestParseRating(t *testing.T) {
	rating, ok := ParseRating("4.6")
	assert.True(t, ok)
	assert.InDelta(t, 4.6, rating, 0.001)

	rating, ok = ParseRating("4,5 out of 5 stars")
	assert.True(t, ok)
	assert.InDelta(t, 4.5, rating, 0.001)

	_, ok = ParseRating("87")
	assert.False(t, ok)

	_, ok = ParseRating("no reviews")
	assert.False(t, ok)
}

func TestNewAffiliateProduct(t *testing.T) {
	p := NewAffiliateProduct("sephora", extractor.Record{
		extractor.FieldName:   "Velvet Matte Lipstick",
		extractor.FieldPrice:  "AED 95.00",
		extractor.FieldRating: "4.6",
		extractor.FieldURL:    "https://sephora.com/p/1",
	})

	require.NotNil(t, p.Name)
	assert.Equal(t, "Velvet Matte Lipstick", *p.Name)
	require.NotNil(t, p.Price)
	assert.InDelta(t, 95.0, *p.Price, 0.001)
	assert.Equal(t, "AED", p.Currency)
	require.NotNil(t, p.Rating)
	assert.Nil(t, p.Brand)
	assert.Nil(t, p.Description)
	assert.True(t, p.Availability)
	assert.Equal(t, "sephora", p.Platform)
}

func TestNewAffiliateProduct_UnparsablePrice(t *testing.T) {
	p := NewAffiliateProduct("amazon", extractor.Record{extractor.FieldPrice: "Price on request"})

	assert.Nil(t, p.Price)
	assert.Equal(t, DefaultCurrency, p.Currency)
}
