package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Source identifies a marketplace.
type Source string

const (
	SourceAmazon     Source = "amazon"
	SourceAliExpress Source = "aliexpress"
	SourceTemu       Source = "temu"
	SourceEbay       Source = "ebay"
)

// AllSources lists every supported marketplace in aggregation order.
var AllSources = []Source{SourceAmazon, SourceAliExpress, SourceTemu, SourceEbay}

// ParseSource validates a source name.
func ParseSource(s string) (Source, error) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllSources {
		if src == known {
			return src, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", s)
}

// WinningScore is the minimum ai_score for a product to be recommended.
const WinningScore = 70

// Product is a marketplace product as stored in the products cache table.
type Product struct {
	ID            int64           `json:"id,omitempty"`
	Source        Source          `json:"source"`
	ExternalID    string          `json:"external_id"`
	Title         string          `json:"title"`
	Price         float64         `json:"price"`
	OriginalPrice float64         `json:"original_price,omitempty"`
	Rating        float64         `json:"rating"`
	ReviewsCount  int             `json:"reviews_count"`
	SalesCount    int             `json:"sales_count"`
	Category      string          `json:"category,omitempty"`
	ImageURL      string          `json:"image_url,omitempty"`
	SupplierURL   string          `json:"supplier_url"`
	AIScore       *float64        `json:"ai_score"`
	AIAnalysis    json.RawMessage `json:"ai_analysis,omitempty"`
	AIAnalyzedAt  *time.Time      `json:"ai_analyzed_at,omitempty"`
	CachedAt      time.Time       `json:"cached_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

// Key returns the (source, external_id) uniqueness key.
func (p *Product) Key() string {
	return string(p.Source) + ":" + p.ExternalID
}

// IsWinning reports whether the product has a recommendation-grade score.
func (p *Product) IsWinning() bool {
	return p.AIScore != nil && *p.AIScore >= WinningScore
}

// SearchFilters narrows an adapter search.
type SearchFilters struct {
	MinPrice  *float64 `json:"min_price,omitempty"`
	MaxPrice  *float64 `json:"max_price,omitempty"`
	MinRating *float64 `json:"min_rating,omitempty"`
	Category  string   `json:"category,omitempty"`
	Limit     int      `json:"limit,omitempty"`
}

// Matches reports whether p satisfies the price, rating and category filters.
// Category matches case-insensitively on a substring, so "home" keeps
// "Home & Kitchen". A product without a category is kept: the category was
// already pushed upstream as a keyword.
func (f SearchFilters) Matches(p *Product) bool {
	if f.MinPrice != nil && p.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && p.Price > *f.MaxPrice {
		return false
	}
	if f.MinRating != nil && p.Rating < *f.MinRating {
		return false
	}
	if c := strings.TrimSpace(f.Category); c != "" && p.Category != "" &&
		!strings.Contains(strings.ToLower(p.Category), strings.ToLower(c)) {
		return false
	}
	return true
}

// Origin records which path produced an adapter result.
type Origin string

const (
	OriginAPI     Origin = "api"
	OriginScrape  Origin = "scrape"
	OriginFixture Origin = "fixture"
	OriginNone    Origin = "none"
)

// AdapterResult is what every marketplace adapter returns. Degraded results
// carry a reason instead of synthetic products.
type AdapterResult struct {
	Source   Source        `json:"source"`
	Products []*Product    `json:"-"`
	Degraded bool          `json:"degraded"`
	Reason   string        `json:"reason,omitempty"`
	Origin   Origin        `json:"origin"`
	Latency  time.Duration `json:"-"`
}

// DegradedResult builds an empty result for a failed source.
func DegradedResult(src Source, reason string) AdapterResult {
	return AdapterResult{
		Source:   src,
		Products: []*Product{},
		Degraded: true,
		Reason:   reason,
		Origin:   OriginNone,
	}
}
