package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"dropship-rest-api/internal/cache"
	"dropship-rest-api/internal/marketplace"
	"dropship-rest-api/internal/metrics"
	"dropship-rest-api/internal/model"
	"dropship-rest-api/internal/repository"
	"dropship-rest-api/internal/resilience"
	"dropship-rest-api/pkg/apierror"
	"dropship-rest-api/pkg/logger"
)

// SearchConfig holds aggregation settings.
type SearchConfig struct {
	Concurrency int
	Timeout     time.Duration
	CacheTTL    time.Duration
	ProductTTL  time.Duration
}

// Pagination describes the page returned by Search.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// SourceReport tells the caller how each requested marketplace fared.
type SourceReport struct {
	Source   model.Source `json:"source"`
	Count    int          `json:"count"`
	Degraded bool         `json:"degraded"`
	Reason   string       `json:"reason,omitempty"`
	Origin   model.Origin `json:"origin"`
}

// SearchResponse is the aggregated, paginated search result. It is cached as-is.
type SearchResponse struct {
	Products   []*model.Product `json:"products"`
	Pagination Pagination       `json:"pagination"`
	Sources    []SourceReport   `json:"sources"`
	Cached     bool             `json:"cached"`
}

// SearchService aggregates product searches across marketplaces.
type SearchService struct {
	adapters map[model.Source]marketplace.Adapter
	breakers *resilience.BreakerSet
	cache    cache.Cache
	products repository.ProductRepository
	usage    *UsageService
	config   SearchConfig
	log      zerolog.Logger
}

// NewSearchService creates a new search service.
func NewSearchService(
	adapters []marketplace.Adapter,
	breakers *resilience.BreakerSet,
	c cache.Cache,
	products repository.ProductRepository,
	usage *UsageService,
	config SearchConfig,
) *SearchService {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 25 * time.Second
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = time.Hour
	}
	if config.ProductTTL <= 0 {
		config.ProductTTL = 24 * time.Hour
	}

	bySource := make(map[model.Source]marketplace.Adapter, len(adapters))
	for _, a := range adapters {
		bySource[a.Source()] = a
	}

	return &SearchService{
		adapters: bySource,
		breakers: breakers,
		cache:    c,
		products: products,
		usage:    usage,
		config:   config,
		log:      logger.Component("search"),
	}
}

// Search runs one aggregated product search for user.
func (s *SearchService) Search(ctx context.Context, user model.User, req SearchRequest) (*SearchResponse, error) {
	allowed, err := s.usage.CheckUsageLimit(ctx, user.ID, model.ActionSearch, user.Tier)
	if err != nil {
		return nil, err
	}
	if !allowed {
		metrics.RecordQuotaRejection(string(model.ActionSearch), string(user.Tier))
		return nil, limitReached(model.ActionSearch, model.LimitFor(user.Tier, model.ActionSearch))
	}

	key := req.CacheKey()
	if resp, ok := s.cached(ctx, key); ok {
		return resp, nil
	}

	if _, err := s.usage.Consume(ctx, user.ID, model.ActionSearch, user.Tier); err != nil {
		return nil, err
	}

	results := s.fanOut(ctx, req)
	merged, reports := merge(results, req.Filters())

	if err := s.products.BatchUpsertProducts(ctx, merged, s.config.ProductTTL); err != nil {
		return nil, fmt.Errorf("persist products: %w", err)
	}

	resp := &SearchResponse{
		Products:   paginate(merged, req.Page, req.Limit),
		Pagination: paginationFor(len(merged), req.Page, req.Limit),
		Sources:    reports,
	}

	if data, err := json.Marshal(resp); err == nil {
		if err := s.cache.Set(ctx, key, data, s.config.CacheTTL); err != nil {
			s.log.Warn().Err(err).Msg("failed to cache search response")
		}
	}

	s.log.Info().
		Str("user_id", user.ID).
		Str("query", req.Query).
		Str("source", req.Source).
		Int("total", len(merged)).
		Msg("search completed")

	return resp, nil
}

func (s *SearchService) cached(ctx context.Context, key string) (*SearchResponse, bool) {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn().Err(err).Msg("cache lookup failed")
		}
		metrics.RecordCacheLookup(false)
		return nil, false
	}

	var resp SearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		s.log.Warn().Err(err).Msg("discarding unreadable cached response")
		metrics.RecordCacheLookup(false)
		return nil, false
	}
	metrics.RecordCacheLookup(true)
	resp.Cached = true
	return &resp, true
}

// fanOut queries every targeted adapter with bounded concurrency under one
// shared deadline. The result slice is in request source order.
func (s *SearchService) fanOut(ctx context.Context, req SearchRequest) []model.AdapterResult {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	sources := req.Sources()
	filters := req.Filters()
	results := make([]model.AdapterResult, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for i, src := range sources {
		adapter, ok := s.adapters[src]
		if !ok {
			results[i] = model.DegradedResult(src, "adapter not configured")
			continue
		}
		g.Go(func() error {
			results[i] = s.runAdapter(gctx, adapter, req.Query, filters)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// runAdapter calls one adapter behind its circuit breaker. A panic degrades
// only this source.
func (s *SearchService) runAdapter(ctx context.Context, a marketplace.Adapter, query string, f model.SearchFilters) (res model.AdapterResult) {
	src := a.Source()
	breaker := s.breakers.Get(string(src))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("source", string(src)).Interface("panic", r).Msg("adapter panicked")
			res = model.DegradedResult(src, fmt.Sprintf("adapter panic: %v", r))
		}
		res.Source = src
		if res.Products == nil {
			res.Products = []*model.Product{}
		}
		if res.Degraded && len(res.Products) == 0 {
			if res.Reason != resilience.ErrCircuitOpen.Error() {
				breaker.RecordFailure()
			}
		} else {
			breaker.RecordSuccess()
		}

		outcome := "ok"
		switch {
		case res.Degraded:
			outcome = "degraded"
		case len(res.Products) == 0:
			outcome = "empty"
		}
		metrics.RecordAdapter(string(src), string(res.Origin), outcome, time.Since(start))

		if res.Degraded {
			s.log.Warn().Str("source", string(src)).Str("reason", res.Reason).Msg("source degraded")
		}
	}()

	if !breaker.Allow() {
		return model.DegradedResult(src, resilience.ErrCircuitOpen.Error())
	}
	return a.Search(ctx, query, f)
}

// merge de-duplicates on (source, external_id), re-applies the filters and
// interleaves the sources round-robin in source order, so every healthy source
// is represented on the first page.
func merge(results []model.AdapterResult, f model.SearchFilters) ([]*model.Product, []SourceReport) {
	seen := make(map[string]struct{})
	perSource := make([][]*model.Product, 0, len(results))
	reports := make([]SourceReport, 0, len(results))
	total, longest := 0, 0

	for _, res := range results {
		kept := make([]*model.Product, 0, len(res.Products))
		for _, p := range res.Products {
			if p == nil || p.ExternalID == "" {
				continue
			}
			p.Source = res.Source
			if _, dup := seen[p.Key()]; dup {
				continue
			}
			if !f.Matches(p) {
				continue
			}
			seen[p.Key()] = struct{}{}
			kept = append(kept, p)
		}
		perSource = append(perSource, kept)
		total += len(kept)
		longest = max(longest, len(kept))
		reports = append(reports, SourceReport{
			Source:   res.Source,
			Count:    len(kept),
			Degraded: res.Degraded,
			Reason:   res.Reason,
			Origin:   res.Origin,
		})
	}

	merged := make([]*model.Product, 0, total)
	for i := 0; i < longest; i++ {
		for _, kept := range perSource {
			if i < len(kept) {
				merged = append(merged, kept[i])
			}
		}
	}
	return merged, reports
}

func paginate(products []*model.Product, page, limit int) []*model.Product {
	start := (page - 1) * limit
	if start >= len(products) {
		return []*model.Product{}
	}
	end := start + limit
	if end > len(products) {
		end = len(products)
	}
	return products[start:end]
}

func paginationFor(total, page, limit int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

// Product returns a cached product by id.
func (s *SearchService) Product(ctx context.Context, id int64) (*model.Product, error) {
	p, err := s.products.GetProduct(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apierror.NotFound("Product not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}
