package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"dropship-rest-api/internal/model"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestAuthMiddleware(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	tests := []struct {
		name     string
		header   string
		status   int
		wantUser model.User
	}{
		{
			name:     "supabase app_metadata tier",
			header:   "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "u1", "exp": exp, "iss": "issuer", "app_metadata": map[string]string{"tier": "pro"}}),
			status:   http.StatusOK,
			wantUser: model.User{ID: "u1", Tier: model.TierPro},
		},
		{
			name:     "top-level tier wins",
			header:   "bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "u2", "exp": exp, "iss": "issuer", "tier": "free", "email": "a@b.c", "app_metadata": map[string]string{"tier": "pro"}}),
			status:   http.StatusOK,
			wantUser: model.User{ID: "u2", Email: "a@b.c", Tier: model.TierFree},
		},
		{
			name:     "missing tier defaults to free",
			header:   "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "u3", "exp": exp, "iss": "issuer"}),
			status:   http.StatusOK,
			wantUser: model.User{ID: "u3", Tier: model.TierFree},
		},
		{name: "no header", status: http.StatusUnauthorized},
		{
			name:   "wrong secret",
			header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "u1", "exp": exp, "iss": "issuer"}),
			status: http.StatusUnauthorized,
		},
		{
			name:   "expired",
			header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Hour).Unix(), "iss": "issuer"}),
			status: http.StatusUnauthorized,
		},
		{
			name:   "no expiry",
			header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "u1", "iss": "issuer"}),
			status: http.StatusUnauthorized,
		},
		{
			name:   "wrong issuer",
			header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "u1", "exp": exp, "iss": "elsewhere"}),
			status: http.StatusUnauthorized,
		},
		{
			name:   "HS512 rejected",
			header: "Bearer " + signToken(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{"sub": "u1", "exp": exp, "iss": "issuer"}),
			status: http.StatusUnauthorized,
		},
		{
			name:   "no subject",
			header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"exp": exp, "iss": "issuer"}),
			status: http.StatusUnauthorized,
		},
	}

	mw := NewAuthMiddleware(AuthConfig{JWTSecret: testSecret, Issuer: "issuer"})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got model.User
			h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = UserFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.status == http.StatusOK && got != tt.wantUser {
				t.Errorf("user = %+v, want %+v", got, tt.wantUser)
			}
		})
	}
}

func TestAuthWithoutSecret(t *testing.T) {
	h := NewAuthMiddleware(AuthConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached without a configured secret")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestRequestIDAndRecovery(t *testing.T) {
	var seen string
	h := RequestID(Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if seen == "" || rec.Header().Get("X-Request-ID") != seen {
		t.Errorf("request id %q, header %q", seen, rec.Header().Get("X-Request-ID"))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "client-id" {
		t.Errorf("request id = %q, want client-id", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "forged\r\nSet-Cookie: x")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen == "" || strings.ContainsAny(seen, "\r\n ") {
		t.Errorf("unsafe client request id kept: %q", seen)
	}
}
