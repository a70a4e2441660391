package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"dropship-rest-api/internal/model"
)

func fp(v float64) *float64 { return &v }

func testOptions(client *http.Client) Options {
	return Options{
		Timeout:        5 * time.Second,
		RPS:            1000,
		Burst:          100,
		Retries:        1,
		RetryBaseDelay: time.Millisecond,
		HTTPClient:     client,
	}
}

const amazonSearchHTML = `<html><body>
<div data-component-type="s-search-result" data-asin="">
  <h2><a href="/sponsored"><span>Sponsored placeholder</span></a></h2>
</div>
<div data-component-type="s-search-result" data-asin="B000000001">
  <h2><a href="/Earbuds-One/dp/B000000001/ref=sr_1_1"><span>Wireless Earbuds One</span></a></h2>
  <span class="a-price"><span class="a-offscreen">$24.99</span></span>
  <span class="a-price a-text-price"><span class="a-offscreen">$39.99</span></span>
  <i class="a-icon a-icon-star-small"><span class="a-icon-alt">4.4 out of 5 stars</span></i>
  <a href="/dp/B000000001#customerReviews"><span>1,024</span></a>
  <img class="s-image" src="https://m.media-amazon.com/images/I/one.jpg">
</div>
<div data-component-type="s-search-result" data-asin="B000000002">
  <h2><a href="/dp/B000000002"><span>Budget Earbuds</span></a></h2>
  <span class="a-price"><span class="a-offscreen">$8.50</span></span>
</div>
<div data-component-type="s-search-result" data-asin="B000000003">
  <h2><a href="/dp/B000000003"><span>Studio Earbuds</span></a></h2>
  <span class="a-price"><span class="a-offscreen">$49.00</span></span>
  <span class="a-icon-alt">4.8 out of 5 stars</span>
</div>
</body></html>`

func TestAmazonScrapeAppliesFilters(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "Mozilla") {
			t.Errorf("User-Agent = %q, want a browser agent", ua)
		}
		fmt.Fprint(w, amazonSearchHTML)
	}))
	defer srv.Close()

	a := NewAmazon(AmazonConfig{SearchURL: srv.URL + "/s"}, testOptions(srv.Client()))
	res := a.Search(context.Background(), "earbuds", model.SearchFilters{
		MinPrice: fp(10), MaxPrice: fp(50), Limit: 5,
	})

	if res.Degraded {
		t.Fatalf("unexpected degraded result: %s", res.Reason)
	}
	if res.Origin != model.OriginScrape {
		t.Errorf("origin = %v, want scrape", res.Origin)
	}
	if len(res.Products) != 2 {
		t.Fatalf("len(products) = %d, want 2", len(res.Products))
	}

	first := res.Products[0]
	if first.ExternalID != "B000000001" || first.Price != 24.99 || first.OriginalPrice != 39.99 {
		t.Errorf("first product = %+v", first)
	}
	if first.Rating != 4.4 || first.ReviewsCount != 1024 {
		t.Errorf("rating/reviews = %v/%v, want 4.4/1024", first.Rating, first.ReviewsCount)
	}
	if first.SupplierURL != srv.URL+"/dp/B000000001" {
		t.Errorf("supplier url = %q", first.SupplierURL)
	}
	for _, p := range res.Products {
		if p.Price < 10 || p.Price > 50 || p.Source != model.SourceAmazon {
			t.Errorf("product %s violates filters: %+v", p.ExternalID, p)
		}
	}

	q := gotQuery.Load().(url.Values)
	if q["low-price"][0] != "10" || q["high-price"][0] != "50" {
		t.Errorf("price bounds not pushed upstream: %v", q)
	}
}

func TestScrapeFailureDegrades(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewAmazon(AmazonConfig{SearchURL: srv.URL + "/s"}, testOptions(srv.Client()))
	res := a.Search(context.Background(), "earbuds", model.SearchFilters{})

	if !res.Degraded || len(res.Products) != 0 {
		t.Fatalf("got degraded=%v products=%d, want degraded empty", res.Degraded, len(res.Products))
	}
	if !strings.Contains(res.Reason, "scrape failed") {
		t.Errorf("reason = %q", res.Reason)
	}
	if res.Origin != model.OriginNone {
		t.Errorf("origin = %v, want none", res.Origin)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("upstream hits = %d, want 2 (one retry)", got)
	}
}

func TestScrapeClientErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	a := NewEbay(EbayConfig{SearchURL: srv.URL + "/sch/i.html"}, testOptions(srv.Client()))
	a.Search(context.Background(), "lamp", model.SearchFilters{})

	if got := hits.Load(); got != 1 {
		t.Errorf("upstream hits = %d, want 1", got)
	}
}

func TestEmptyPageDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><p>captcha</p></body></html>")
	}))
	defer srv.Close()

	a := NewAliExpress(AliExpressConfig{SearchURL: srv.URL + "/w/wholesale"}, testOptions(srv.Client()))
	res := a.Search(context.Background(), "phone holder", model.SearchFilters{})

	if !res.Degraded || res.Reason != "no products extracted" {
		t.Errorf("got degraded=%v reason=%q", res.Degraded, res.Reason)
	}
}

func TestAmazonAPISignsRequest(t *testing.T) {
	var scraped atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/s" {
			scraped.Store(true)
			return
		}
		if auth := r.Header.Get("Authorization"); !strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=AKID/") {
			t.Errorf("Authorization = %q", auth)
		}
		if !strings.Contains(r.Header.Get("Authorization"), "/ProductAdvertisingAPI/aws4_request") {
			t.Errorf("Authorization scope = %q", r.Header.Get("Authorization"))
		}
		if got := r.Header.Get("X-Amz-Target"); got != amazonSearchTarget {
			t.Errorf("X-Amz-Target = %q", got)
		}

		var req paapiSearchRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Keywords != "earbuds" || req.PartnerTag != "tag-20" || req.MinPrice != 1000 {
			t.Errorf("request body = %+v", req)
		}

		fmt.Fprint(w, `{"SearchResult":{"Items":[
			{"ASIN":"B0API00001","DetailPageURL":"https://www.amazon.com/dp/B0API00001",
			 "ItemInfo":{"Title":{"DisplayValue":"API Earbuds"},"Classifications":{"ProductGroup":{"DisplayValue":"Electronics"}}},
			 "Offers":{"Listings":[{"Price":{"Amount":19.5},"SavingBasis":{"Amount":29}}]},
			 "CustomerReviews":{"Count":88,"StarRating":{"Value":4.6}}}
		]}}`)
	}))
	defer srv.Close()

	a := NewAmazon(AmazonConfig{
		AccessKey:   "AKID",
		SecretKey:   "secret",
		PartnerTag:  "tag-20",
		APIEndpoint: srv.URL + "/paapi5/searchitems",
		SearchURL:   srv.URL + "/s",
	}, testOptions(srv.Client()))

	res := a.Search(context.Background(), "earbuds", model.SearchFilters{MinPrice: fp(10)})
	if res.Origin != model.OriginAPI || len(res.Products) != 1 {
		t.Fatalf("origin=%v len=%d reason=%q", res.Origin, len(res.Products), res.Reason)
	}
	p := res.Products[0]
	if p.ExternalID != "B0API00001" || p.Price != 19.5 || p.OriginalPrice != 29 || p.Category != "Electronics" {
		t.Errorf("product = %+v", p)
	}
	if scraped.Load() {
		t.Error("scrape path should not run when the api succeeds")
	}
}

func TestAliExpressAPIFallsBackToScrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sync" {
			r.ParseForm()
			params := map[string]string{}
			for k := range r.PostForm {
				params[k] = r.PostForm.Get(k)
			}
			if got, want := params["sign"], signAliExpress(params, "s3cret"); got != want {
				t.Errorf("sign = %s, want %s", got, want)
			}
			fmt.Fprint(w, `{"error_response":{"code":"IncompleteSignature","msg":"bad"}}`)
			return
		}
		fmt.Fprint(w, `<html><body>
			<a class="search-card-item" href="//www.aliexpress.com/item/1005001.html">
			  <h3>Phone Holder</h3><div class="price-sale">US $3.20</div>
			  <span class="trade--trade">5,000+ sold</span>
			</a></body></html>`)
	}))
	defer srv.Close()

	a := NewAliExpress(AliExpressConfig{
		AppKey:      "key",
		AppSecret:   "s3cret",
		APIEndpoint: srv.URL + "/sync",
		SearchURL:   srv.URL + "/w/wholesale",
	}, testOptions(srv.Client()))

	res := a.Search(context.Background(), "phone holder", model.SearchFilters{})
	if res.Origin != model.OriginScrape || len(res.Products) != 1 {
		t.Fatalf("origin=%v len=%d reason=%q", res.Origin, len(res.Products), res.Reason)
	}
	p := res.Products[0]
	if p.ExternalID != "1005001" || p.Price != 3.2 || p.SalesCount != 5000 {
		t.Errorf("product = %+v", p)
	}
}

func TestAliExpressAPIDecodesNumbers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"aliexpress_affiliate_product_query_response":{"resp_result":{"resp_code":200,"result":{"products":{"product":[
			{"product_id":1005006543210,"product_title":"LED Strip","target_sale_price":"7.49","target_original_price":"12.00",
			 "evaluate_rate":"90%","lastest_volume":321,"first_level_category_name":"Home","promotion_link":"https://s.click.aliexpress.com/x"}
		]}}}}}`)
	}))
	defer srv.Close()

	a := NewAliExpress(AliExpressConfig{AppKey: "k", AppSecret: "s", APIEndpoint: srv.URL}, testOptions(srv.Client()))
	res := a.Search(context.Background(), "led strip", model.SearchFilters{})

	if res.Origin != model.OriginAPI || len(res.Products) != 1 {
		t.Fatalf("origin=%v len=%d reason=%q", res.Origin, len(res.Products), res.Reason)
	}
	p := res.Products[0]
	if p.ExternalID != "1005006543210" || p.Price != 7.49 || p.OriginalPrice != 12 || p.Rating != 4.5 || p.SalesCount != 321 {
		t.Errorf("product = %+v", p)
	}
}

func TestAliExpressRetryResignsRequest(t *testing.T) {
	var (
		hits       atomic.Int32
		timestamps = make(chan string, 2)
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		params := map[string]string{}
		for k := range r.PostForm {
			params[k] = r.PostForm.Get(k)
		}
		if got, want := params["sign"], signAliExpress(params, "s3cret"); got != want {
			t.Errorf("sign = %s, want %s", got, want)
		}
		timestamps <- params["timestamp"]
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"aliexpress_affiliate_product_query_response":{"resp_result":{"resp_code":200,"result":{"products":{"product":[
			{"product_id":1005001,"product_title":"Desk Lamp","target_sale_price":"9.99"}
		]}}}}}`)
	}))
	defer srv.Close()

	a := NewAliExpress(AliExpressConfig{AppKey: "k", AppSecret: "s3cret", APIEndpoint: srv.URL}, testOptions(srv.Client()))
	clock := time.UnixMilli(1_700_000_000_000)
	a.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	res := a.Search(context.Background(), "desk lamp", model.SearchFilters{})
	if res.Origin != model.OriginAPI || len(res.Products) != 1 {
		t.Fatalf("origin=%v len=%d reason=%q", res.Origin, len(res.Products), res.Reason)
	}
	first, second := <-timestamps, <-timestamps
	if first == second {
		t.Errorf("retry reused timestamp %s", first)
	}
}

func TestCategoryNarrowsUpstreamQuery(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query().Get("_nkw"))
		fmt.Fprint(w, `<html><body><ul>
			<li class="s-item"><a class="s-item__link" href="https://www.ebay.com/itm/111"><div class="s-item__title">Dog Toy</div></a><span class="s-item__price">$5.00</span></li>
		</ul></body></html>`)
	}))
	defer srv.Close()

	e := NewEbay(EbayConfig{SearchURL: srv.URL + "/sch/i.html"}, testOptions(srv.Client()))
	e.Search(context.Background(), "squeaky ball", model.SearchFilters{Category: "Pet Supplies"})

	if got, _ := gotQuery.Load().(string); got != "squeaky ball Pet Supplies" {
		t.Errorf("_nkw = %q, want query narrowed by category", got)
	}
}

func TestWithCategory(t *testing.T) {
	tests := []struct {
		query, category, want string
	}{
		{"earbuds", "", "earbuds"},
		{"earbuds", "Electronics", "earbuds Electronics"},
		{"toys for dogs", "toys", "toys for dogs"},
		{"lamp", "  Home  ", "lamp Home"},
	}
	for _, tt := range tests {
		if got := withCategory(tt.query, tt.category); got != tt.want {
			t.Errorf("withCategory(%q, %q) = %q, want %q", tt.query, tt.category, got, tt.want)
		}
	}
}

func TestEbayAPIUsesClientCredentials(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"app-token","token_type":"Bearer","expires_in":7200}`)
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer app-token" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.URL.Query().Get("filter"); got != "price:[10..50],priceCurrency:USD" {
			t.Errorf("filter = %q", got)
		}
		fmt.Fprint(w, `{"itemSummaries":[
			{"itemId":"v1|2345|0","title":"Desk Lamp","price":{"value":"22.00","currency":"USD"},
			 "itemWebUrl":"https://www.ebay.com/itm/2345","categories":[{"categoryName":"Lamps"}],
			 "seller":{"feedbackPercentage":"100.0","feedbackScore":900}},
			{"itemId":"v1|9999|0","title":"Too Expensive","price":{"value":"80.00","currency":"USD"}}
		]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := NewEbay(EbayConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		APIEndpoint:  srv.URL + "/search",
		TokenURL:     srv.URL + "/token",
	}, testOptions(srv.Client()))

	f := model.SearchFilters{MinPrice: fp(10), MaxPrice: fp(50)}
	for i := 0; i < 2; i++ {
		res := e.Search(context.Background(), "desk lamp", f)
		if res.Origin != model.OriginAPI || len(res.Products) != 1 {
			t.Fatalf("origin=%v len=%d reason=%q", res.Origin, len(res.Products), res.Reason)
		}
		if p := res.Products[0]; p.ExternalID != "2345" || p.Rating != 5 || p.Category != "Lamps" {
			t.Errorf("product = %+v", p)
		}
	}
	if got := tokenCalls.Load(); got != 1 {
		t.Errorf("token requests = %d, want 1 (token reused)", got)
	}
}

func TestEbayScrapeSkipsPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("_udlo") != "5" {
			t.Errorf("_udlo = %q", r.URL.Query().Get("_udlo"))
		}
		fmt.Fprint(w, `<ul>
			<li class="s-item"><div class="s-item__title">Shop on eBay</div><span class="s-item__price">$20.00</span>
			  <a class="s-item__link" href="https://ebay.com/itm/123456"></a></li>
			<li class="s-item"><div class="s-item__title"><span>Ceramic Mug</span></div>
			  <span class="s-item__price">$12.00 to $15.00</span><span class="s-item__quantitySold">250 sold</span>
			  <a class="s-item__link" href="https://www.ebay.com/itm/ceramic-mug/987654?hash=x"></a></li>
		</ul>`)
	}))
	defer srv.Close()

	e := NewEbay(EbayConfig{SearchURL: srv.URL + "/sch/i.html"}, testOptions(srv.Client()))
	res := e.Search(context.Background(), "mug", model.SearchFilters{MinPrice: fp(5)})

	if len(res.Products) != 1 {
		t.Fatalf("len = %d, want 1 (reason %q)", len(res.Products), res.Reason)
	}
	p := res.Products[0]
	if p.ExternalID != "987654" || p.Price != 12 || p.SalesCount != 250 {
		t.Errorf("product = %+v", p)
	}
	if p.SupplierURL != srv.URL+"/itm/987654" {
		t.Errorf("supplier url = %q", p.SupplierURL)
	}
}

type stubFetcher struct {
	body string
	urls []string
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	s.urls = append(s.urls, url)
	return []byte(s.body), nil
}

func TestTemuUsesConfiguredFetcher(t *testing.T) {
	pages := &stubFetcher{body: `<div>
		<div data-tooltip-title="Silicone Baking Mat">
		  <a href="/silicone-baking-mat-g-601099512345.html"><img src="https://img.kwcdn.com/mat.jpg"></a>
		  <div data-type="price">$4.18</div><span class="sold-count">12K+ sold</span>
		</div></div>`}

	opts := testOptions(nil)
	opts.Pages = pages
	tm := NewTemu(TemuConfig{SearchURL: "https://www.temu.com/search_result.html"}, opts)

	res := tm.Search(context.Background(), "baking mat", model.SearchFilters{})
	if len(res.Products) != 1 {
		t.Fatalf("len = %d, want 1 (reason %q)", len(res.Products), res.Reason)
	}
	p := res.Products[0]
	if p.ExternalID != "601099512345" || p.Title != "Silicone Baking Mat" || p.Price != 4.18 || p.SalesCount != 12000 {
		t.Errorf("product = %+v", p)
	}
	if p.SupplierURL != "https://www.temu.com/silicone-baking-mat-g-601099512345.html" {
		t.Errorf("supplier url = %q", p.SupplierURL)
	}
	if len(pages.urls) != 1 || !strings.Contains(pages.urls[0], "search_key=baking+mat") {
		t.Errorf("fetched urls = %v", pages.urls)
	}
}

func TestCancelledContextDegrades(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tm := NewTemu(TemuConfig{}, Options{Pages: &stubFetcher{body: "<html></html>"}})
	res := tm.Search(ctx, "anything", model.SearchFilters{})
	if !res.Degraded {
		t.Error("cancelled search should degrade")
	}
}
