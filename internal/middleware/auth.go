package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"dropship-rest-api/internal/model"
	"dropship-rest-api/pkg/apierror"
	"dropship-rest-api/pkg/logger"
)

// UserKey is the context key for the authenticated user.
const UserKey contextKey = "user"

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// JWTSecret verifies HS256 access tokens issued by the identity provider.
	JWTSecret string
	// Issuer, when set, must match the iss claim.
	Issuer string
}

// Claims are the access token claims the API reads. Supabase puts the
// subscription tier under app_metadata; other issuers may use a top-level claim.
type Claims struct {
	Email       string `json:"email"`
	Tier        string `json:"tier"`
	AppMetadata struct {
		Tier string `json:"tier"`
	} `json:"app_metadata"`
	jwt.RegisteredClaims
}

// User maps the claims to the caller identity.
func (c *Claims) User() model.User {
	tier := c.Tier
	if tier == "" {
		tier = c.AppMetadata.Tier
	}
	return model.User{ID: c.Subject, Email: c.Email, Tier: model.ParseTier(strings.ToLower(tier))}
}

// NewAuthMiddleware creates an authentication middleware with injected dependencies.
func NewAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)
	secret := []byte(cfg.JWTSecret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(secret) == 0 {
				writeError(w, apierror.ServiceUnavailable("Authentication is not configured"))
				return
			}

			token := extractToken(r)
			if token == "" {
				writeError(w, apierror.Unauthorized("Authentication required. Use a Bearer token."))
				return
			}

			claims, err := validateToken(parser, token, secret)
			if err != nil {
				logger.FromContext(r.Context()).Debug().Err(err).Msg("token rejected")
				writeError(w, apierror.Unauthorized("Invalid or expired token"))
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, claims.User())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validateToken(parser *jwt.Parser, tokenString string, secret []byte) (*Claims, error) {
	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

func extractToken(r *http.Request) string {
	bearer := r.Header.Get("Authorization")
	if len(bearer) > 7 && strings.EqualFold(bearer[:7], "bearer ") {
		return strings.TrimSpace(bearer[7:])
	}
	return ""
}

// writeError writes an API error response.
func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	w.Write(err.ToJSON())
}

// UserFromContext retrieves the authenticated user from request context.
func UserFromContext(ctx context.Context) (model.User, bool) {
	user, ok := ctx.Value(UserKey).(model.User)
	return user, ok
}

// WithUser stores user in ctx.
func WithUser(ctx context.Context, user model.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}
