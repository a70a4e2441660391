package marketplace

import (
	"context"
	"net/url"
	"regexp"

	"dropship-rest-api/internal/model"
)

const temuDefaultSearchURL = "https://www.temu.com/search_result.html"

// TemuConfig holds the Temu search endpoint. Temu has no public product API.
type TemuConfig struct {
	SearchURL string
}

// Temu scrapes the Temu search page. Results are rendered client-side, so in
// production it is usually paired with a BrowserFetcher via Options.Pages.
type Temu struct {
	base
	cfg    TemuConfig
	layout scrapeSpec
}

// NewTemu creates the Temu adapter.
func NewTemu(cfg TemuConfig, opts Options) *Temu {
	if cfg.SearchURL == "" {
		cfg.SearchURL = temuDefaultSearchURL
	}

	origin := siteOrigin(cfg.SearchURL)
	return &Temu{
		base: newBase(model.SourceTemu, opts),
		cfg:  cfg,
		layout: scrapeSpec{
			Items: selectors{
				`div[data-tooltip-title]`,
				`div[class*="goods-item"]`,
				`a[href*="-g-"]`,
			},
			Title:         selectors{"@data-tooltip-title", `[class*="title"]`, "h2", "img@alt"},
			Price:         selectors{`[data-type="price"]`, `[class*="price"]`},
			OriginalPrice: selectors{`[class*="market-price"]`, `[class*="origin-price"]`},
			Rating:        selectors{`[class*="star"]@aria-label`, `[class*="rating"]`},
			Reviews:       selectors{`[class*="review"]`, `[class*="comment"]`},
			Sales:         selectors{`[class*="sold"]`, `[class*="sales"]`},
			URL:           selectors{`a[href*="-g-"]@href`, "@href"},
			Image:         selectors{"img@src", "img@data-src"},
			IDPattern:     regexp.MustCompile(`-g-(\d+)\.html`),
			BaseURL:       origin,
		},
	}
}

func (t *Temu) Search(ctx context.Context, query string, f model.SearchFilters) model.AdapterResult {
	return t.search(ctx, query, f, nil, t.scrape)
}

func (t *Temu) scrape(ctx context.Context, query string, f model.SearchFilters) ([]*model.Product, error) {
	q := url.Values{}
	q.Set("search_key", query)

	body, err := t.fetchPage(ctx, t.cfg.SearchURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	return t.layout.extract(body, model.SourceTemu)
}
