package marketplace

import (
	"math"
	"strings"

	"dropship-rest-api/internal/model"
)

// applyFilters drops duplicates and products outside the filter bounds,
// then truncates to f.Limit. Input order is preserved.
func applyFilters(products []*model.Product, f model.SearchFilters) []*model.Product {
	seen := make(map[string]struct{}, len(products))
	out := make([]*model.Product, 0, len(products))

	for _, p := range products {
		if p == nil || p.ExternalID == "" {
			continue
		}
		if _, dup := seen[p.ExternalID]; dup {
			continue
		}
		seen[p.ExternalID] = struct{}{}

		if !f.Matches(p) {
			continue
		}
		out = append(out, p)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// withCategory narrows the upstream keywords with the category filter unless
// the query already names it.
func withCategory(query, category string) string {
	category = strings.TrimSpace(category)
	if category == "" || strings.Contains(strings.ToLower(query), strings.ToLower(category)) {
		return query
	}
	return query + " " + category
}

// priceParam formats a price bound for a marketplace query string.
func priceParam(v *float64) string {
	if v == nil {
		return ""
	}
	return trimFloat(*v)
}

// cents converts a dollar bound to integer cents.
func cents(v float64) int64 {
	return int64(math.Round(v * 100))
}
