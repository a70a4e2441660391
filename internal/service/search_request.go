package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"dropship-rest-api/internal/model"
	"dropship-rest-api/pkg/apierror"
)

const (
	// SourceAll selects every registered marketplace.
	SourceAll = "all"

	maxQueryLength    = 200
	defaultPageLimit  = 20
	maxPageLimit      = 100
	maxAdapterResults = 100
)

// SearchRequest is a validated product search.
type SearchRequest struct {
	Query     string
	Source    string
	MinPrice  *float64
	MaxPrice  *float64
	MinRating *float64
	Category  string
	Page      int
	Limit     int
}

// ParseSearchRequest reads and validates the search query parameters. Every
// violation is reported as a field detail of one VALIDATION_ERROR.
func ParseSearchRequest(values url.Values) (SearchRequest, error) {
	req := SearchRequest{
		Query:    strings.TrimSpace(values.Get("q")),
		Source:   strings.ToLower(strings.TrimSpace(values.Get("source"))),
		Category: strings.TrimSpace(values.Get("category")),
		Page:     1,
		Limit:    defaultPageLimit,
	}
	var details []apierror.FieldError
	invalid := func(field, msg string) {
		details = append(details, apierror.FieldError{Field: field, Message: msg})
	}

	switch n := utf8.RuneCountInString(req.Query); {
	case n == 0:
		invalid("q", "search query is required")
	case n > maxQueryLength:
		invalid("q", fmt.Sprintf("must be at most %d characters", maxQueryLength))
	}

	if req.Source == "" {
		req.Source = SourceAll
	} else if req.Source != SourceAll {
		if _, err := model.ParseSource(req.Source); err != nil {
			invalid("source", "must be one of all, amazon, aliexpress, temu, ebay")
		}
	}

	req.MinPrice = parseBound(values, "minPrice", 0, -1, invalid)
	req.MaxPrice = parseBound(values, "maxPrice", 0, -1, invalid)
	req.MinRating = parseBound(values, "minRating", 0, 5, invalid)
	if req.MinPrice != nil && req.MaxPrice != nil && *req.MinPrice > *req.MaxPrice {
		invalid("minPrice", "must not exceed maxPrice")
	}

	if v := values.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			invalid("page", "must be a positive integer")
		} else {
			req.Page = page
		}
	}
	if v := values.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxPageLimit {
			invalid("limit", fmt.Sprintf("must be an integer between 1 and %d", maxPageLimit))
		} else {
			req.Limit = limit
		}
	}

	if len(details) > 0 {
		return req, apierror.ValidationError("Invalid search parameters", details...)
	}
	return req, nil
}

// parseBound parses an optional number in [lo, hi]; hi < 0 means no upper bound.
func parseBound(values url.Values, field string, lo, hi float64, invalid func(field, msg string)) *float64 {
	raw := strings.TrimSpace(values.Get(field))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	switch {
	case err != nil:
		invalid(field, "must be a number")
		return nil
	case v < lo:
		invalid(field, fmt.Sprintf("must be at least %g", lo))
		return nil
	case hi >= 0 && v > hi:
		invalid(field, fmt.Sprintf("must be at most %g", hi))
		return nil
	}
	return &v
}

// Sources returns the marketplaces the request targets, in aggregation order.
func (r SearchRequest) Sources() []model.Source {
	if r.Source == "" || r.Source == SourceAll {
		return model.AllSources
	}
	return []model.Source{model.Source(r.Source)}
}

// Filters returns the filters handed to each adapter. Adapters are asked for
// enough results to fill the requested page.
func (r SearchRequest) Filters() model.SearchFilters {
	want := r.Page * r.Limit
	if want > maxAdapterResults || want <= 0 {
		want = maxAdapterResults
	}
	return model.SearchFilters{
		MinPrice:  r.MinPrice,
		MaxPrice:  r.MaxPrice,
		MinRating: r.MinRating,
		Category:  r.Category,
		Limit:     want,
	}
}

// CacheKey derives the response cache key from the full normalized tuple.
func (r SearchRequest) CacheKey() string {
	tuple := strings.Join([]string{
		strings.ToLower(r.Query),
		r.Source,
		formatBound(r.MinPrice),
		formatBound(r.MaxPrice),
		formatBound(r.MinRating),
		strings.ToLower(r.Category),
		strconv.Itoa(r.Page),
		strconv.Itoa(r.Limit),
	}, "\x1f")
	sum := sha256.Sum256([]byte(tuple))
	return "search:" + hex.EncodeToString(sum[:])
}

func formatBound(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
