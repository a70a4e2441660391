package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"dropship-rest-api/internal/model"
)

const (
	ebayDefaultAPIEndpoint = "https://api.ebay.com/buy/browse/v1/item_summary/search"
	ebayDefaultTokenURL    = "https://api.ebay.com/identity/v1/oauth2/token"
	ebayDefaultSearchURL   = "https://www.ebay.com/sch/i.html"
	ebayBrowseScope        = "https://api.ebay.com/oauth/api_scope"
	ebayMaxLimit           = 200
)

// EbayConfig holds Browse API credentials and endpoints.
type EbayConfig struct {
	ClientID     string
	ClientSecret string

	APIEndpoint string
	TokenURL    string
	SearchURL   string
}

func (c EbayConfig) hasCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

var ebayItemIDPattern = regexp.MustCompile(`/itm/(?:[^/?]+/)?(\d+)`)

// Ebay searches via the Browse API with an application token when
// credentials are configured, falling back to the public search page.
type Ebay struct {
	base
	cfg    EbayConfig
	tokens oauth2.TokenSource
	layout scrapeSpec
}

// NewEbay creates the eBay adapter.
func NewEbay(cfg EbayConfig, opts Options) *Ebay {
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = ebayDefaultAPIEndpoint
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = ebayDefaultTokenURL
	}
	if cfg.SearchURL == "" {
		cfg.SearchURL = ebayDefaultSearchURL
	}

	origin := siteOrigin(cfg.SearchURL)
	e := &Ebay{
		base: newBase(model.SourceEbay, opts),
		cfg:  cfg,
		layout: scrapeSpec{
			Items:         selectors{"li.s-item", "div.s-item", "li.s-card"},
			Title:         selectors{".s-item__title span", ".s-item__title", ".s-card__title"},
			Price:         selectors{".s-item__price", ".s-card__price"},
			OriginalPrice: selectors{".s-item__trending-price .STRIKETHROUGH", ".s-item__original-price"},
			Rating:        selectors{".x-star-rating .clipped", ".s-item__reviews .clipped"},
			Reviews:       selectors{".s-item__reviews-count span", ".s-item__reviews-count"},
			Sales:         selectors{".s-item__quantitySold", ".s-item__hotness", ".s-item__additionalItemHotness"},
			URL:           selectors{"a.s-item__link@href", "a@href"},
			Image:         selectors{".s-item__image-wrapper img@src", "img@src"},
			IDPattern:     ebayItemIDPattern,
			BaseURL:       origin,
			Canonical:     func(id string) string { return origin + "/itm/" + id },
			Skip: func(title string) bool {
				return strings.EqualFold(title, "Shop on eBay")
			},
		},
	}

	if cfg.hasCredentials() {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       []string{ebayBrowseScope},
		}
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, e.client)
		e.tokens = cc.TokenSource(tokenCtx)
	}
	return e
}

func (e *Ebay) Search(ctx context.Context, query string, f model.SearchFilters) model.AdapterResult {
	var api searchFunc
	if e.tokens != nil {
		api = e.searchAPI
	}
	return e.search(ctx, query, f, api, e.scrape)
}

func (e *Ebay) scrape(ctx context.Context, query string, f model.SearchFilters) ([]*model.Product, error) {
	q := url.Values{}
	q.Set("_nkw", query)
	q.Set("_ipg", "60")
	if v := priceParam(f.MinPrice); v != "" {
		q.Set("_udlo", v)
	}
	if v := priceParam(f.MaxPrice); v != "" {
		q.Set("_udhi", v)
	}

	body, err := e.fetchPage(ctx, e.cfg.SearchURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	return e.layout.extract(body, model.SourceEbay)
}

type ebayAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type ebaySearchResponse struct {
	ItemSummaries []struct {
		ItemID         string     `json:"itemId"`
		LegacyItemID   string     `json:"legacyItemId"`
		Title          string     `json:"title"`
		Price          ebayAmount `json:"price"`
		MarketingPrice struct {
			OriginalPrice ebayAmount `json:"originalPrice"`
		} `json:"marketingPrice"`
		Image struct {
			ImageURL string `json:"imageUrl"`
		} `json:"image"`
		ItemWebURL string `json:"itemWebUrl"`
		Categories []struct {
			CategoryName string `json:"categoryName"`
		} `json:"categories"`
		Seller struct {
			FeedbackPercentage string `json:"feedbackPercentage"`
			FeedbackScore      int    `json:"feedbackScore"`
		} `json:"seller"`
	} `json:"itemSummaries"`
}

func (e *Ebay) searchAPI(ctx context.Context, query string, f model.SearchFilters) ([]*model.Product, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(min(f.Limit, ebayMaxLimit)))
	if filter := ebayPriceFilter(f); filter != "" {
		q.Set("filter", filter)
	}
	endpoint := e.cfg.APIEndpoint + "?" + q.Encode()

	body, err := e.callAPI(ctx, "ebay browse search", func(ctx context.Context) (*http.Request, error) {
		tok, err := e.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("ebay token: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		tok.SetAuthHeader(req)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-EBAY-C-MARKETPLACE-ID", "EBAY_US")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var resp ebaySearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode ebay response: %w", err)
	}

	products := make([]*model.Product, 0, len(resp.ItemSummaries))
	for _, it := range resp.ItemSummaries {
		id := ebayLegacyID(it.LegacyItemID, it.ItemID)
		price := parsePrice(it.Price.Value)
		if id == "" || price <= 0 {
			continue
		}
		p := &model.Product{
			Source:       model.SourceEbay,
			ExternalID:   id,
			Title:        strings.TrimSpace(it.Title),
			Price:        price,
			Rating:       percentToRating(it.Seller.FeedbackPercentage),
			ReviewsCount: it.Seller.FeedbackScore,
			ImageURL:     it.Image.ImageURL,
			SupplierURL:  it.ItemWebURL,
		}
		if len(it.Categories) > 0 {
			p.Category = it.Categories[0].CategoryName
		}
		if orig := parsePrice(it.MarketingPrice.OriginalPrice.Value); orig > price {
			p.OriginalPrice = orig
		}
		if p.SupplierURL == "" {
			p.SupplierURL = e.layout.Canonical(id)
		}
		products = append(products, p)
	}
	return products, nil
}

// ebayPriceFilter builds the Browse API price filter, e.g. "price:[10..50],priceCurrency:USD".
func ebayPriceFilter(f model.SearchFilters) string {
	if f.MinPrice == nil && f.MaxPrice == nil {
		return ""
	}
	return fmt.Sprintf("price:[%s..%s],priceCurrency:USD", priceParam(f.MinPrice), priceParam(f.MaxPrice))
}

// ebayLegacyID returns the numeric listing id so API and scrape results share
// one external id. Browse ids look like "v1|123456789|0".
func ebayLegacyID(legacy, itemID string) string {
	if legacy != "" {
		return legacy
	}
	parts := strings.Split(itemID, "|")
	if len(parts) >= 2 {
		return parts[1]
	}
	return itemID
}
