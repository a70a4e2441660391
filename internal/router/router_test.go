package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"dropship-rest-api/internal/analysis"
	"dropship-rest-api/internal/cache"
	"dropship-rest-api/internal/handler"
	"dropship-rest-api/internal/marketplace/mock"
	"dropship-rest-api/internal/middleware"
	"dropship-rest-api/internal/repository"
	"dropship-rest-api/internal/resilience"
	"dropship-rest-api/internal/service"
)

const (
	testSecret   = "router-secret"
	testLoginKey = "admin-key"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details []struct {
			Field string `json:"field"`
		} `json:"details"`
	} `json:"error"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "router.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	c := cache.NewMemoryCache(time.Hour)
	t.Cleanup(func() { c.Close() })

	breakers := resilience.NewBreakerSet(5, time.Minute)
	usage := service.NewUsageService(store)
	search := service.NewSearchService(mock.NewAll(), breakers, c, store, usage, service.SearchConfig{
		Concurrency: 4,
		Timeout:     5 * time.Second,
	})
	analyses := service.NewAnalysisService(store, usage, analysis.HeuristicAnalyzer{Markup: 2.5}, 24*time.Hour)
	imports := service.NewImportService(store, store, usage, 2.5)

	r := New(Config{
		Handler:        handler.New("dropship-api", "test", store),
		ProductHandler: handler.NewProductHandler(search, analyses, imports),
		ImportHandler:  handler.NewImportHandler(imports),
		UsageHandler:   handler.NewUsageHandler(usage),
		AdminHandler:   handler.NewAdminHandler(store, c, breakers, testLoginKey),
		AuthMiddleware: middleware.NewAuthMiddleware(middleware.AuthConfig{JWTSecret: testSecret}),
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func bearer(t *testing.T, sub, tier string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":          sub,
		"exp":          time.Now().Add(time.Hour).Unix(),
		"app_metadata": map[string]string{"tier": tier},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + token
}

func do(t *testing.T, srv *httptest.Server, method, path, auth, body string, headers ...string) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()

	var env envelope
	if strings.HasPrefix(res.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return res.StatusCode, env
}

func TestPublicRoutes(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/api/status", "/api/health", "/api/ready"} {
		if status, env := do(t, srv, http.MethodGet, path, "", ""); status != http.StatusOK || !env.Success {
			t.Errorf("GET %s = %d %+v", path, status, env)
		}
	}

	res, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Errorf("GET /metrics = %d", res.StatusCode)
	}
}

func TestSearchRequiresAuth(t *testing.T) {
	srv := newTestServer(t)
	status, env := do(t, srv, http.MethodGet, "/api/products/search?q=earbuds", "", "")
	if status != http.StatusUnauthorized || env.Error == nil || env.Error.Code != "UNAUTHORIZED" {
		t.Errorf("status = %d, env = %+v", status, env)
	}
}

func TestSearchEndToEnd(t *testing.T) {
	srv := newTestServer(t)
	auth := bearer(t, "user-1", "free")

	path := "/api/products/search?q=earbuds&source=amazon&minPrice=10&maxPrice=50&limit=5"
	status, env := do(t, srv, http.MethodGet, path, auth, "")
	if status != http.StatusOK {
		t.Fatalf("status = %d, env = %+v", status, env)
	}

	var data service.SearchResponse
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if len(data.Products) == 0 || len(data.Products) > 5 {
		t.Fatalf("got %d products", len(data.Products))
	}
	for _, p := range data.Products {
		if p.Source != "amazon" || p.Price < 10 || p.Price > 50 {
			t.Errorf("product %s at %v violates filters", p.Key(), p.Price)
		}
	}
	if data.Cached {
		t.Error("first response cached")
	}

	_, env = do(t, srv, http.MethodGet, path, auth, "")
	var again service.SearchResponse
	json.Unmarshal(env.Data, &again)
	if !again.Cached {
		t.Error("repeat response not cached")
	}

	// product detail, analysis and import of the first hit
	id := data.Products[0].ID
	idPath := "/api/products/" + strconv.FormatInt(id, 10)
	if status, _ := do(t, srv, http.MethodGet, idPath, auth, ""); status != http.StatusOK {
		t.Errorf("GET %s = %d", idPath, status)
	}
	if status, env := do(t, srv, http.MethodPost, idPath+"/analyze", auth, ""); status != http.StatusOK {
		t.Errorf("analyze = %d %+v", status, env)
	}

	status, env = do(t, srv, http.MethodPost, idPath+"/import", auth, `{"store_id":"shop","selling_price":99.5}`)
	if status != http.StatusCreated {
		t.Fatalf("import = %d %+v", status, env)
	}
	var imp struct {
		ID           string  `json:"id"`
		Status       string  `json:"status"`
		SellingPrice float64 `json:"selling_price"`
	}
	json.Unmarshal(env.Data, &imp)
	if imp.Status != "draft" || imp.SellingPrice != 99.5 {
		t.Errorf("import = %+v", imp)
	}

	if status, env := do(t, srv, http.MethodPatch, "/api/imports/"+imp.ID, auth, `{"status":"active"}`); status != http.StatusOK {
		t.Errorf("patch = %d %+v", status, env)
	}
	if status, _ := do(t, srv, http.MethodGet, "/api/imports?status=active", auth, ""); status != http.StatusOK {
		t.Errorf("list imports = %d", status)
	}

	status, env = do(t, srv, http.MethodGet, "/api/usage", auth, "")
	if status != http.StatusOK {
		t.Fatalf("usage = %d", status)
	}
	var usage struct {
		Tier   string `json:"tier"`
		Quotas []struct {
			Action string `json:"action"`
			Used   int    `json:"used"`
		} `json:"quotas"`
	}
	json.Unmarshal(env.Data, &usage)
	used := map[string]int{}
	for _, q := range usage.Quotas {
		used[q.Action] = q.Used
	}
	if usage.Tier != "free" || used["search"] != 1 || used["import"] != 1 || used["ai_analysis"] != 1 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestSearchValidationEnvelope(t *testing.T) {
	srv := newTestServer(t)
	status, env := do(t, srv, http.MethodGet, "/api/products/search?source=walmart&limit=0", bearer(t, "u", "pro"), "")
	if status != http.StatusBadRequest || env.Success || env.Error == nil {
		t.Fatalf("status = %d, env = %+v", status, env)
	}
	if env.Error.Code != "VALIDATION_ERROR" || len(env.Error.Details) != 3 {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestProductRoutesRejectBadIDs(t *testing.T) {
	srv := newTestServer(t)
	auth := bearer(t, "u", "free")

	if status, _ := do(t, srv, http.MethodGet, "/api/products/abc", auth, ""); status != http.StatusBadRequest {
		t.Errorf("GET /api/products/abc = %d, want 400", status)
	}
	if status, _ := do(t, srv, http.MethodGet, "/api/products/12345", auth, ""); status != http.StatusNotFound {
		t.Errorf("GET unknown product = %d, want 404", status)
	}
	if status, _ := do(t, srv, http.MethodPatch, "/api/imports/not-a-uuid", auth, `{"status":"active"}`); status != http.StatusNotFound {
		t.Errorf("PATCH unknown import = %d, want 404", status)
	}
	if status, _ := do(t, srv, http.MethodPost, "/api/products/1/import", auth, `{"bogus":true}`); status != http.StatusBadRequest {
		t.Errorf("import with unknown field = %d, want 400", status)
	}
}

func TestAdminStats(t *testing.T) {
	srv := newTestServer(t)

	if status, _ := do(t, srv, http.MethodGet, "/api/admin/stats", "", ""); status != http.StatusUnauthorized {
		t.Errorf("no key = %d, want 401", status)
	}
	if status, _ := do(t, srv, http.MethodGet, "/api/admin/stats", "", "", "X-Login-Key", "wrong"); status != http.StatusForbidden {
		t.Errorf("wrong key = %d, want 403", status)
	}

	status, env := do(t, srv, http.MethodGet, "/api/admin/stats", "", "", "X-Login-Key", testLoginKey)
	if status != http.StatusOK {
		t.Fatalf("stats = %d", status)
	}
	var stats map[string]json.RawMessage
	json.Unmarshal(env.Data, &stats)
	for _, key := range []string{"database", "cache", "breakers", "runtime"} {
		if _, ok := stats[key]; !ok {
			t.Errorf("stats missing %q", key)
		}
	}
}

func TestAdminClearCache(t *testing.T) {
	srv := newTestServer(t)
	auth := bearer(t, "user-1", "pro")
	path := "/api/products/search?q=earbuds&source=ebay&limit=3"

	do(t, srv, http.MethodGet, path, auth, "")
	_, env := do(t, srv, http.MethodGet, path, auth, "")
	var resp service.SearchResponse
	json.Unmarshal(env.Data, &resp)
	if !resp.Cached {
		t.Fatal("repeat search not served from cache")
	}

	if status, _ := do(t, srv, http.MethodDelete, "/api/admin/cache", "", ""); status != http.StatusUnauthorized {
		t.Errorf("clear without key = %d, want 401", status)
	}
	status, env := do(t, srv, http.MethodDelete, "/api/admin/cache", "", "", "X-Login-Key", testLoginKey)
	if status != http.StatusOK || !env.Success {
		t.Fatalf("clear = %d %+v", status, env)
	}

	_, env = do(t, srv, http.MethodGet, "/api/admin/stats", "", "", "X-Login-Key", testLoginKey)
	var stats struct {
		Cache struct {
			Backend string `json:"backend"`
			Entries int    `json:"entries"`
		} `json:"cache"`
	}
	json.Unmarshal(env.Data, &stats)
	if stats.Cache.Backend != "memory" || stats.Cache.Entries != 0 {
		t.Errorf("cache stats after clear = %+v", stats.Cache)
	}

	_, env = do(t, srv, http.MethodGet, path, auth, "")
	resp = service.SearchResponse{}
	json.Unmarshal(env.Data, &resp)
	if resp.Cached {
		t.Error("search after clear still served from cache")
	}
}
