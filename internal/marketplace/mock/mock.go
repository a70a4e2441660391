// Package mock provides deterministic fixture adapters for local development
// and demos. It is wired only when MARKETPLACE_MODE=mock; every result it
// returns is tagged with the fixture origin.
package mock

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"time"

	"dropship-rest-api/internal/marketplace"
	"dropship-rest-api/internal/model"
)

var adjectives = []string{"Premium", "Portable", "Wireless", "Compact", "Smart", "Eco", "Pro", "Mini"}

var categories = []string{"Electronics", "Home & Kitchen", "Sports", "Beauty", "Toys", "Pet Supplies"}

// Adapter returns synthetic products seeded from (source, query), so the
// same search always yields the same products.
type Adapter struct {
	source model.Source
	now    func() time.Time
}

// New creates a fixture adapter for src.
func New(src model.Source) *Adapter {
	return &Adapter{source: src, now: time.Now}
}

// NewAll creates one fixture adapter per supported source.
func NewAll() []marketplace.Adapter {
	out := make([]marketplace.Adapter, 0, len(model.AllSources))
	for _, src := range model.AllSources {
		out = append(out, New(src))
	}
	return out
}

func (a *Adapter) Source() model.Source { return a.source }

func (a *Adapter) Search(ctx context.Context, query string, f model.SearchFilters) model.AdapterResult {
	start := a.now()
	if err := ctx.Err(); err != nil {
		return model.DegradedResult(a.source, err.Error())
	}

	limit := f.Limit
	if limit <= 0 {
		limit = marketplace.DefaultLimit
	}

	seed := seedFor(a.source, query)
	rng := rand.New(rand.NewSource(int64(seed)))

	lo, hi := 5.0, 120.0
	if f.MinPrice != nil {
		lo = *f.MinPrice
	}
	if f.MaxPrice != nil {
		hi = *f.MaxPrice
	}
	if hi < lo {
		hi = lo
	}
	minRating := 3.5
	if f.MinRating != nil && *f.MinRating > minRating {
		minRating = *f.MinRating
	}

	name := strings.TrimSpace(query)
	products := make([]*model.Product, 0, limit)
	for i := 0; i < limit; i++ {
		id := fmt.Sprintf("fx-%x-%d", seed&0xffffffff, i+1)
		price := round2(lo + rng.Float64()*(hi-lo))
		p := &model.Product{
			Source:       a.source,
			ExternalID:   id,
			Title:        fmt.Sprintf("%s %s #%d", adjectives[rng.Intn(len(adjectives))], name, i+1),
			Price:        price,
			Rating:       round2(minRating + rng.Float64()*(5-minRating)),
			ReviewsCount: rng.Intn(5000),
			SalesCount:   rng.Intn(20000),
			Category:     pickCategory(categories[rng.Intn(len(categories))], f.Category),
			ImageURL:     fmt.Sprintf("https://fixtures.invalid/%s/%s.jpg", a.source, id),
			SupplierURL:  fmt.Sprintf("https://fixtures.invalid/%s/item/%s", a.source, id),
		}
		if rng.Intn(3) == 0 {
			p.OriginalPrice = round2(price * 1.4)
		}
		products = append(products, p)
	}

	return model.AdapterResult{
		Source:   a.source,
		Products: products,
		Origin:   model.OriginFixture,
		Latency:  a.now().Sub(start),
	}
}

// pickCategory keeps fixtures inside a requested category.
func pickCategory(drawn, wanted string) string {
	wanted = strings.TrimSpace(wanted)
	if wanted == "" {
		return drawn
	}
	for _, c := range categories {
		if strings.Contains(strings.ToLower(c), strings.ToLower(wanted)) {
			return c
		}
	}
	return wanted
}

func seedFor(src model.Source, query string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(string(src)))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(query))))
	return h.Sum64()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var _ marketplace.Adapter = (*Adapter)(nil)
