package marketplace

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"

	"dropship-rest-api/internal/model"
)

const (
	amazonDefaultAPIEndpoint = "https://webservices.amazon.com/paapi5/searchitems"
	amazonDefaultSearchURL   = "https://www.amazon.com/s"
	amazonPAAPIService       = "ProductAdvertisingAPI"
	amazonSearchTarget       = "com.amazon.paapi5.v1.ProductAdvertisingAPIv1.SearchItems"
	// PA-API returns at most 10 items per SearchItems call.
	amazonMaxItemCount = 10
)

// AmazonConfig holds Product Advertising API credentials and endpoints.
type AmazonConfig struct {
	AccessKey  string
	SecretKey  string
	PartnerTag string
	Region     string

	APIEndpoint string
	SearchURL   string
}

func (c AmazonConfig) hasCredentials() bool {
	return c.AccessKey != "" && c.SecretKey != "" && c.PartnerTag != ""
}

// Amazon searches amazon.com via PA-API 5 when credentials are configured,
// falling back to the public search page.
type Amazon struct {
	base
	cfg    AmazonConfig
	signer *v4.Signer
	layout scrapeSpec
}

// NewAmazon creates the Amazon adapter.
func NewAmazon(cfg AmazonConfig, opts Options) *Amazon {
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = amazonDefaultAPIEndpoint
	}
	if cfg.SearchURL == "" {
		cfg.SearchURL = amazonDefaultSearchURL
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	origin := siteOrigin(cfg.SearchURL)
	return &Amazon{
		base:   newBase(model.SourceAmazon, opts),
		cfg:    cfg,
		signer: v4.NewSigner(),
		layout: scrapeSpec{
			Items: selectors{
				`div[data-component-type="s-search-result"]`,
				`div.s-result-item[data-asin]`,
			},
			Title: selectors{"h2 a span", "h2 span", "h2"},
			Price: selectors{
				".a-price:not(.a-text-price) .a-offscreen",
				".a-price .a-offscreen",
				".a-color-price",
			},
			OriginalPrice: selectors{".a-price.a-text-price .a-offscreen"},
			Rating:        selectors{".a-icon-star-small .a-icon-alt", ".a-icon-alt", "i[class*=a-star] span"},
			Reviews: selectors{
				`a[href*="customerReviews"] span`,
				"span.s-underline-text",
				`span[aria-label$="ratings"]@aria-label`,
			},
			Sales:     selectors{`span.a-size-base.a-color-secondary:contains("bought")`},
			URL:       selectors{"h2 a@href", "a.a-link-normal.s-no-outline@href"},
			Image:     selectors{"img.s-image@src"},
			IDAttr:    "data-asin",
			IDPattern: regexp.MustCompile(`/dp/([A-Z0-9]{10})`),
			BaseURL:   origin,
			Canonical: func(id string) string { return origin + "/dp/" + id },
		},
	}
}

func (a *Amazon) Search(ctx context.Context, query string, f model.SearchFilters) model.AdapterResult {
	var api searchFunc
	if a.cfg.hasCredentials() {
		api = a.searchAPI
	}
	return a.search(ctx, query, f, api, a.scrape)
}

func (a *Amazon) scrape(ctx context.Context, query string, f model.SearchFilters) ([]*model.Product, error) {
	q := url.Values{}
	q.Set("k", query)
	if v := priceParam(f.MinPrice); v != "" {
		q.Set("low-price", v)
	}
	if v := priceParam(f.MaxPrice); v != "" {
		q.Set("high-price", v)
	}

	body, err := a.fetchPage(ctx, a.cfg.SearchURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	return a.layout.extract(body, model.SourceAmazon)
}

type paapiSearchRequest struct {
	Keywords         string   `json:"Keywords"`
	PartnerTag       string   `json:"PartnerTag"`
	PartnerType      string   `json:"PartnerType"`
	Marketplace      string   `json:"Marketplace"`
	ItemCount        int      `json:"ItemCount"`
	Resources        []string `json:"Resources"`
	MinPrice         int64    `json:"MinPrice,omitempty"`
	MaxPrice         int64    `json:"MaxPrice,omitempty"`
	MinReviewsRating int      `json:"MinReviewsRating,omitempty"`
}

type paapiDisplayValue struct {
	DisplayValue string `json:"DisplayValue"`
}

type paapiSearchResponse struct {
	SearchResult struct {
		Items []struct {
			ASIN          string `json:"ASIN"`
			DetailPageURL string `json:"DetailPageURL"`
			ItemInfo      struct {
				Title           paapiDisplayValue `json:"Title"`
				Classifications struct {
					ProductGroup paapiDisplayValue `json:"ProductGroup"`
				} `json:"Classifications"`
			} `json:"ItemInfo"`
			Images struct {
				Primary struct {
					Large struct {
						URL string `json:"URL"`
					} `json:"Large"`
				} `json:"Primary"`
			} `json:"Images"`
			Offers struct {
				Listings []struct {
					Price struct {
						Amount float64 `json:"Amount"`
					} `json:"Price"`
					SavingBasis struct {
						Amount float64 `json:"Amount"`
					} `json:"SavingBasis"`
				} `json:"Listings"`
			} `json:"Offers"`
			CustomerReviews struct {
				Count      int `json:"Count"`
				StarRating struct {
					Value float64 `json:"Value"`
				} `json:"StarRating"`
			} `json:"CustomerReviews"`
		} `json:"Items"`
	} `json:"SearchResult"`
	Errors []struct {
		Code    string `json:"Code"`
		Message string `json:"Message"`
	} `json:"Errors"`
}

func (a *Amazon) searchAPI(ctx context.Context, query string, f model.SearchFilters) ([]*model.Product, error) {
	reqBody := paapiSearchRequest{
		Keywords:    query,
		PartnerTag:  a.cfg.PartnerTag,
		PartnerType: "Associates",
		Marketplace: "www.amazon.com",
		ItemCount:   min(f.Limit, amazonMaxItemCount),
		Resources: []string{
			"ItemInfo.Title",
			"ItemInfo.Classifications",
			"Images.Primary.Large",
			"Offers.Listings.Price",
			"Offers.Listings.SavingBasis",
			"CustomerReviews.Count",
			"CustomerReviews.StarRating",
		},
	}
	if f.MinPrice != nil {
		reqBody.MinPrice = cents(*f.MinPrice)
	}
	if f.MaxPrice != nil {
		reqBody.MaxPrice = cents(*f.MaxPrice)
	}
	if f.MinRating != nil && *f.MinRating >= 1 {
		reqBody.MinReviewsRating = int(*f.MinRating)
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode paapi request: %w", err)
	}
	sum := sha256.Sum256(payload)
	payloadHash := hex.EncodeToString(sum[:])

	creds := aws.Credentials{AccessKeyID: a.cfg.AccessKey, SecretAccessKey: a.cfg.SecretKey}

	body, err := a.callAPI(ctx, "paapi SearchItems", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIEndpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
		req.Header.Set("Content-Encoding", "amz-1.0")
		req.Header.Set("X-Amz-Target", amazonSearchTarget)
		if err := a.signer.SignHTTP(ctx, creds, req, payloadHash, amazonPAAPIService, a.cfg.Region, time.Now()); err != nil {
			return nil, fmt.Errorf("sign paapi request: %w", err)
		}
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var resp paapiSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode paapi response: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("paapi %s: %s", resp.Errors[0].Code, resp.Errors[0].Message)
	}

	products := make([]*model.Product, 0, len(resp.SearchResult.Items))
	for _, it := range resp.SearchResult.Items {
		if it.ASIN == "" || len(it.Offers.Listings) == 0 {
			continue
		}
		listing := it.Offers.Listings[0]
		p := &model.Product{
			Source:       model.SourceAmazon,
			ExternalID:   it.ASIN,
			Title:        strings.TrimSpace(it.ItemInfo.Title.DisplayValue),
			Price:        round2(listing.Price.Amount),
			Rating:       it.CustomerReviews.StarRating.Value,
			ReviewsCount: it.CustomerReviews.Count,
			Category:     it.ItemInfo.Classifications.ProductGroup.DisplayValue,
			ImageURL:     it.Images.Primary.Large.URL,
			SupplierURL:  it.DetailPageURL,
		}
		if listing.SavingBasis.Amount > listing.Price.Amount {
			p.OriginalPrice = round2(listing.SavingBasis.Amount)
		}
		if p.SupplierURL == "" {
			p.SupplierURL = siteOrigin(a.cfg.SearchURL) + "/dp/" + it.ASIN
		}
		products = append(products, p)
	}
	return products, nil
}

// siteOrigin returns scheme://host of rawURL.
func siteOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
