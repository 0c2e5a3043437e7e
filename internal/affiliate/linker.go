package affiliate

import (
	"sort"
	"strings"
)

const (
	PlatformSephora = "sephora"
	PlatformAmazon  = "amazon"
	PlatformNamshi  = "namshi"
)

// Table maps a platform identifier to the affiliate id assigned to us by that platform.
type Table map[string]string

// DefaultTable returns placeholder ids for the platforms we partner with.
func DefaultTable() Table {
	return Table{
		PlatformSephora: "your_sephora_affiliate_id",
		PlatformAmazon:  "your_amazon_affiliate_id",
		PlatformNamshi:  "your_namshi_affiliate_id",
	}
}

type rewriteFunc func(productURL, affiliateID string) string

var rewriters = map[string]rewriteFunc{
	PlatformSephora: func(productURL, affiliateID string) string {
		separator := "?"
		if strings.Contains(productURL, "?") {
			separator = "&"
		}
		return productURL + separator + "affiliate=" + affiliateID
	},
	// Amazon links get the tag appended without looking for an existing query
	// string, so "…?x=1" becomes "…?x=1?tag=…".
	// TODO: confirm with the Amazon Associates integration whether tagged links
	// should join an existing query with "&" before fixing this.
	PlatformAmazon: func(productURL, affiliateID string) string {
		return productURL + "?tag=" + affiliateID
	},
}

// Linker rewrites product URLs into affiliate links. The id table is copied
// on construction and never modified afterwards.
type Linker struct {
	ids Table
}

func NewLinker(ids Table) *Linker {
	copied := make(Table, len(ids))
	for platform, id := range ids {
		copied[platform] = id
	}
	return &Linker{ids: copied}
}

// GenerateLink returns productURL rewritten to carry our affiliate id for
// platform. Unknown platforms, and known platforms without a rewrite rule
// (namshi), get productURL back unchanged.
func (l *Linker) GenerateLink(platform, productURL string) string {
	affiliateID, ok := l.ids[platform]
	if !ok {
		return productURL
	}

	rewrite, ok := rewriters[platform]
	if !ok {
		return productURL
	}

	return rewrite(productURL, affiliateID)
}

// AffiliateID returns the id configured for platform.
func (l *Linker) AffiliateID(platform string) (string, bool) {
	id, ok := l.ids[platform]
	return id, ok
}

// Platforms lists the configured platforms in sorted order.
func (l *Linker) Platforms() []string {
	platforms := make([]string, 0, len(l.ids))
	for platform := range l.ids {
		platforms = append(platforms, platform)
	}
	sort.Strings(platforms)
	return platforms
}

// Rewrites reports whether platform is configured and has a rewrite rule.
func (l *Linker) Rewrites(platform string) bool {
	if _, ok := l.ids[platform]; !ok {
		return false
	}
	_, ok := rewriters[platform]
	return ok
}
