package models

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/glamify-scraper/internal/extractor"
)

const DefaultCurrency = "AED"

// AffiliateProduct is a row of affiliate_products.
type AffiliateProduct struct {
	ID              uuid.UUID  `json:"id"`
	ProductID       *string    `json:"product_id,omitempty"`
	Platform        string     `json:"platform"`
	Name            *string    `json:"name,omitempty"`
	Description     *string    `json:"description,omitempty"`
	Price           *float64   `json:"price,omitempty"`
	Currency        string     `json:"currency"`
	Rating          *float64   `json:"rating,omitempty"`
	Brand           *string    `json:"brand,omitempty"`
	Category        *string    `json:"category,omitempty"`
	URL             *string    `json:"url,omitempty"`
	ImageURL        *string    `json:"image_url,omitempty"`
	Availability    bool       `json:"availability"`
	AffiliateLinkID *uuid.UUID `json:"affiliate_link_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// AffiliateLink is a row of affiliate_links.
type AffiliateLink struct {
	ID          uuid.UUID `json:"id"`
	ProductID   uuid.UUID `json:"product_id"`
	Platform    string    `json:"platform"`
	AffiliateID string    `json:"affiliate_id"`
	LinkURL     string    `json:"link_url"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsed    time.Time `json:"last_used"`
}

// NewAffiliateProduct maps an extracted record onto a product row. Price and
// rating text that does not parse is left NULL.
func NewAffiliateProduct(platform string, rec extractor.Record) *AffiliateProduct {
	p := &AffiliateProduct{
		ID:           uuid.New(),
		Platform:     platform,
		Name:         field(rec, extractor.FieldName),
		Description:  field(rec, extractor.FieldDescription),
		Brand:        field(rec, extractor.FieldBrand),
		Category:     field(rec, extractor.FieldCategory),
		URL:          field(rec, extractor.FieldURL),
		ImageURL:     field(rec, extractor.FieldImageURL),
		Currency:     DefaultCurrency,
		Availability: true,
	}

	if text, ok := rec.Get(extractor.FieldPrice); ok {
		if amount, currency, ok := ParsePrice(text); ok {
			p.Price = &amount
			if currency != "" {
				p.Currency = currency
			}
		}
	}

	if text, ok := rec.Get(extractor.FieldRating); ok {
		if rating, ok := ParseRating(text); ok {
			p.Rating = &rating
		}
	}

	return p
}

func field(rec extractor.Record, name string) *string {
	if v, ok := rec.Get(name); ok {
		return &v
	}
	return nil
}

var (
	numberPattern   = regexp.MustCompile(`\d[\d.,]*`)
	leadingCode     = regexp.MustCompile(`\b([A-Z]{3})$`)
	trailingCode    = regexp.MustCompile(`^([A-Z]{3})\b`)
	currencySymbols = map[string]string{
		"$": "USD",
		"€": "EUR",
		"£": "GBP",
	}
	currencyCodes = map[string]bool{
		"AED": true, "SAR": true, "KWD": true, "QAR": true, "BHD": true, "OMR": true,
		"EGP": true, "JOD": true, "USD": true, "EUR": true, "GBP": true, "CHF": true,
		"INR": true, "JPY": true, "CAD": true, "AUD": true,
	}
)

// ParsePrice reads amounts like "AED 1,299.50", "$24" or "95 درهم". A
// currency is only taken from an ISO code or symbol right next to the amount.
func ParsePrice(text string) (float64, string, bool) {
	text = strings.TrimSpace(text)

	loc := numberPattern.FindStringIndex(text)
	if loc == nil {
		return 0, "", false
	}

	amount, err := strconv.ParseFloat(normalizeNumber(text[loc[0]:loc[1]]), 64)
	if err != nil {
		return 0, "", false
	}

	return amount, adjacentCurrency(text[:loc[0]], text[loc[1]:]), true
}

func adjacentCurrency(before, after string) string {
	before = strings.TrimSpace(before)
	after = strings.TrimSpace(after)

	if m := leadingCode.FindStringSubmatch(before); m != nil && currencyCodes[m[1]] {
		return m[1]
	}
	if m := trailingCode.FindStringSubmatch(after); m != nil && currencyCodes[m[1]] {
		return m[1]
	}

	for symbol, code := range currencySymbols {
		if strings.HasSuffix(before, symbol) || strings.HasPrefix(after, symbol) {
			return code
		}
	}

	return ""
}

// ParseRating reads a rating like "4.6" or "4,6 out of 5" and rejects
// values outside 0..5.
func ParseRating(text string) (float64, bool) {
	match := numberPattern.FindString(text)
	if match == "" {
		return 0, false
	}

	rating, err := strconv.ParseFloat(strings.Replace(match, ",", ".", 1), 64)
	if err != nil || rating < 0 || rating > 5 {
		return 0, false
	}

	return rating, true
}

// normalizeNumber handles "1,299.50", "1.299,50" and "1.299".
func normalizeNumber(s string) string {
	s = strings.TrimRight(s, ".,")

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastComma > lastDot:
		// comma is the decimal separator unless it groups thousands
		if len(s)-lastComma-1 == 3 && lastDot == -1 {
			return strings.ReplaceAll(s, ",", "")
		}
		s = strings.ReplaceAll(s, ".", "")
		return strings.Replace(s, ",", ".", 1)
	case lastComma == -1 && lastDot != -1:
		// dots group thousands when repeated or followed by exactly three digits
		if strings.Count(s, ".") > 1 || (len(s)-lastDot-1 == 3 && s[:lastDot] != "0") {
			return strings.ReplaceAll(s, ".", "")
		}
		return s
	default:
		return strings.ReplaceAll(s, ",", "")
	}
}
