package affiliate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateLink(t *testing.T) {
	linker := NewLinker(DefaultTable())

	tests := []struct {
		name     string
		platform string
		url      string
		expected string
	}{
		{
			name:     "sephora without query",
			platform: "sephora",
			url:      "https://sephora.com/p/1",
			expected: "https://sephora.com/p/1?affiliate=your_sephora_affiliate_id",
		},
		{
			name:     "sephora with query",
			platform: "sephora",
			url:      "https://sephora.com/p/1?color=red",
			expected: "https://sephora.com/p/1?color=red&affiliate=your_sephora_affiliate_id",
		},
		{
			name:     "amazon",
			platform: "amazon",
			url:      "https://amazon.ae/p/1",
			expected: "https://amazon.ae/p/1?tag=your_amazon_affiliate_id",
		},
		{
			name:     "amazon keeps appending with question mark",
			platform: "amazon",
			url:      "https://amazon.ae/p/1?x=1",
			expected: "https://amazon.ae/p/1?x=1?tag=your_amazon_affiliate_id",
		},
		{
			name:     "unknown platform",
			platform: "unknown",
			url:      "https://x.com/p/1",
			expected: "https://x.com/p/1",
		},
		{
			name:     "namshi has an id but no rule",
			platform: "namshi",
			url:      "https://namshi.com/p/1",
			expected: "https://namshi.com/p/1",
		},
		{
			name:     "platform match is case sensitive",
			platform: "Sephora",
			url:      "https://sephora.com/p/1",
			expected: "https://sephora.com/p/1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, linker.GenerateLink(tt.platform, tt.url))
		})
	}
}

func TestNewLinker_CopiesTable(t *testing.T) {
	ids := Table{"sephora": "abc"}
	linker := NewLinker(ids)

	ids["sephora"] = "changed"
	ids["amazon"] = "added"

	assert.Equal(t, "https://sephora.com/p?affiliate=abc", linker.GenerateLink("sephora", "https://sephora.com/p"))
	assert.Equal(t, "https://amazon.ae/p", linker.GenerateLink("amazon", "https://amazon.ae/p"))
}

func TestLinker_Lookup(t *testing.T) {
	linker := NewLinker(DefaultTable())

	id, ok := linker.AffiliateID("namshi")
	assert.True(t, ok)
	assert.Equal(t, "your_namshi_affiliate_id", id)

	_, ok = linker.AffiliateID("ulta")
	assert.False(t, ok)

	assert.Equal(t, []string{"amazon", "namshi", "sephora"}, linker.Platforms())

	assert.True(t, linker.Rewrites("sephora"))
	assert.True(t, linker.Rewrites("amazon"))
	assert.False(t, linker.Rewrites("namshi"))
	assert.False(t, linker.Rewrites("ulta"))
}
