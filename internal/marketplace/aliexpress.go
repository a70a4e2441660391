package marketplace

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"dropship-rest-api/internal/model"
)

const (
	aliexpressDefaultAPIEndpoint = "https://api-sg.aliexpress.com/sync"
	aliexpressDefaultSearchURL   = "https://www.aliexpress.com/w/wholesale"
	aliexpressQueryMethod        = "aliexpress.affiliate.product.query"
	aliexpressMaxPageSize        = 50
)

// AliExpressConfig holds Affiliate API credentials and endpoints.
type AliExpressConfig struct {
	AppKey     string
	AppSecret  string
	TrackingID string

	APIEndpoint string
	SearchURL   string
}

func (c AliExpressConfig) hasCredentials() bool {
	return c.AppKey != "" && c.AppSecret != ""
}

// AliExpress searches via the affiliate product query API when credentials
// are configured, falling back to the wholesale search page.
type AliExpress struct {
	base
	cfg    AliExpressConfig
	now    func() time.Time
	layout scrapeSpec
}

// NewAliExpress creates the AliExpress adapter.
func NewAliExpress(cfg AliExpressConfig, opts Options) *AliExpress {
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = aliexpressDefaultAPIEndpoint
	}
	if cfg.SearchURL == "" {
		cfg.SearchURL = aliexpressDefaultSearchURL
	}

	origin := siteOrigin(cfg.SearchURL)
	return &AliExpress{
		base: newBase(model.SourceAliExpress, opts),
		cfg:  cfg,
		now:  time.Now,
		layout: scrapeSpec{
			Items: selectors{
				`a.search-card-item`,
				`div[class*="search-item-card-wrapper"]`,
				`div[class*="list--gallery"] > a`,
			},
			Title: selectors{"h3", `[class*="title--"]`, "@title"},
			Price: selectors{
				`[class*="price-sale"]`,
				`[class*="price--current"]`,
				`[class*="price"]`,
			},
			OriginalPrice: selectors{`[class*="price--original"]`, `[class*="price-del"]`},
			Rating:        selectors{`[class*="evaluation"]`, `[class*="star--"]`},
			Sales:         selectors{`[class*="trade--trade"]`, `[class*="sold"]`},
			URL:           selectors{"@href", "a@href"},
			Image:         selectors{"img@src", "img@data-src"},
			IDPattern:     regexp.MustCompile(`/item/(\d+)\.html`),
			BaseURL:       origin,
			Canonical: func(id string) string {
				return origin + "/item/" + id + ".html"
			},
		},
	}
}

func (a *AliExpress) Search(ctx context.Context, query string, f model.SearchFilters) model.AdapterResult {
	var api searchFunc
	if a.cfg.hasCredentials() {
		api = a.searchAPI
	}
	return a.search(ctx, query, f, api, a.scrape)
}

func (a *AliExpress) scrape(ctx context.Context, query string, f model.SearchFilters) ([]*model.Product, error) {
	slug := strings.Join(strings.Fields(query), "-")
	q := url.Values{}
	q.Set("SearchText", query)
	if v := priceParam(f.MinPrice); v != "" {
		q.Set("minPrice", v)
	}
	if v := priceParam(f.MaxPrice); v != "" {
		q.Set("maxPrice", v)
	}

	pageURL := fmt.Sprintf("%s-%s.html?%s", a.cfg.SearchURL, url.PathEscape(slug), q.Encode())
	body, err := a.fetchPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return a.layout.extract(body, model.SourceAliExpress)
}

// flexString decodes JSON strings and numbers alike; the affiliate API is
// inconsistent about which it sends.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	if string(b) == "null" {
		*s = ""
		return nil
	}
	*s = flexString(bytes.TrimSpace(b))
	return nil
}

type aliexpressProduct struct {
	ProductID           flexString `json:"product_id"`
	Title               string     `json:"product_title"`
	SalePrice           flexString `json:"target_sale_price"`
	OriginalPrice       flexString `json:"target_original_price"`
	EvaluateRate        flexString `json:"evaluate_rate"`
	LatestVolume        flexString `json:"lastest_volume"`
	FirstLevelCategory  string     `json:"first_level_category_name"`
	SecondLevelCategory string     `json:"second_level_category_name"`
	MainImageURL        string     `json:"product_main_image_url"`
	DetailURL           string     `json:"product_detail_url"`
	PromotionLink       string     `json:"promotion_link"`
}

type aliexpressQueryResponse struct {
	Response struct {
		RespResult struct {
			RespCode flexString `json:"resp_code"`
			RespMsg  string     `json:"resp_msg"`
			Result   struct {
				Products struct {
					Product []aliexpressProduct `json:"product"`
				} `json:"products"`
			} `json:"result"`
		} `json:"resp_result"`
	} `json:"aliexpress_affiliate_product_query_response"`
	ErrorResponse *struct {
		Code flexString `json:"code"`
		Msg  string     `json:"msg"`
	} `json:"error_response"`
}

func (a *AliExpress) searchAPI(ctx context.Context, query string, f model.SearchFilters) ([]*model.Product, error) {
	params := map[string]string{
		"app_key":         a.cfg.AppKey,
		"method":          aliexpressQueryMethod,
		"sign_method":     "sha256",
		"format":          "json",
		"v":               "2.0",
		"keywords":        query,
		"page_no":         "1",
		"page_size":       strconv.Itoa(min(f.Limit, aliexpressMaxPageSize)),
		"target_currency": "USD",
		"target_language": "EN",
		"ship_to_country": "US",
	}
	if a.cfg.TrackingID != "" {
		params["tracking_id"] = a.cfg.TrackingID
	}
	if f.MinPrice != nil {
		params["min_sale_price"] = strconv.FormatInt(cents(*f.MinPrice), 10)
	}
	if f.MaxPrice != nil {
		params["max_sale_price"] = strconv.FormatInt(cents(*f.MaxPrice), 10)
	}

	body, err := a.callAPI(ctx, "aliexpress product.query", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIEndpoint,
			strings.NewReader(signedForm(params, a.cfg.AppSecret, a.now())))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var resp aliexpressQueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode aliexpress response: %w", err)
	}
	if resp.ErrorResponse != nil {
		return nil, fmt.Errorf("aliexpress api error %s: %s", resp.ErrorResponse.Code, resp.ErrorResponse.Msg)
	}
	rr := resp.Response.RespResult
	if rr.RespCode != "" && rr.RespCode != "200" {
		return nil, fmt.Errorf("aliexpress api resp_code %s: %s", rr.RespCode, rr.RespMsg)
	}

	items := rr.Result.Products.Product
	products := make([]*model.Product, 0, len(items))
	for _, it := range items {
		id := string(it.ProductID)
		price := parsePrice(string(it.SalePrice))
		if id == "" || price <= 0 {
			continue
		}
		link := it.PromotionLink
		if link == "" {
			link = it.DetailURL
		}
		if link == "" {
			link = a.layout.Canonical(id)
		}
		category := it.SecondLevelCategory
		if category == "" {
			category = it.FirstLevelCategory
		}

		p := &model.Product{
			Source:      model.SourceAliExpress,
			ExternalID:  id,
			Title:       strings.TrimSpace(it.Title),
			Price:       price,
			Rating:      percentToRating(string(it.EvaluateRate)),
			SalesCount:  parseCount(string(it.LatestVolume)),
			Category:    category,
			ImageURL:    it.MainImageURL,
			SupplierURL: link,
		}
		if orig := parsePrice(string(it.OriginalPrice)); orig > price {
			p.OriginalPrice = orig
		}
		products = append(products, p)
	}
	return products, nil
}

// signedForm stamps params with the current time, signs them and encodes the
// form body. The timestamp must be fresh on every attempt.
func signedForm(params map[string]string, secret string, now time.Time) string {
	stamped := make(map[string]string, len(params)+2)
	for k, v := range params {
		stamped[k] = v
	}
	stamped["timestamp"] = strconv.FormatInt(now.UnixMilli(), 10)
	stamped["sign"] = signAliExpress(stamped, secret)

	form := url.Values{}
	for k, v := range stamped {
		form.Set(k, v)
	}
	return form.Encode()
}

// signAliExpress computes the open platform signature: parameters sorted by
// key, concatenated as key+value, HMAC-SHA256 with the app secret, upper hex.
func signAliExpress(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "sign" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(params[k])
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sb.String()))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}
