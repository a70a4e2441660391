package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"dropship-rest-api/internal/analysis"
	"dropship-rest-api/internal/metrics"
	"dropship-rest-api/internal/model"
	"dropship-rest-api/internal/repository"
	"dropship-rest-api/pkg/apierror"
	"dropship-rest-api/pkg/logger"
)

// AnalysisResponse is returned by Analyze. Fresh is false when a stored
// analysis was reused.
type AnalysisResponse struct {
	Product *model.Product `json:"product"`
	Fresh   bool           `json:"fresh"`
	Quota   *model.Quota   `json:"quota,omitempty"`
}

// AnalysisService scores products and lists winning ones.
type AnalysisService struct {
	products repository.ProductRepository
	usage    *UsageService
	analyzer analysis.Analyzer
	ttl      time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewAnalysisService creates a new analysis service. A zero ttl keeps
// analyses until forced.
func NewAnalysisService(
	products repository.ProductRepository,
	usage *UsageService,
	analyzer analysis.Analyzer,
	ttl time.Duration,
) *AnalysisService {
	return &AnalysisService{
		products: products,
		usage:    usage,
		analyzer: analyzer,
		ttl:      ttl,
		now:      time.Now,
		log:      logger.Component("analysis"),
	}
}

// needsAnalysis reports whether p has no score or a stale one.
func (s *AnalysisService) needsAnalysis(p *model.Product, force bool) bool {
	if force || p.AIScore == nil || p.AIAnalyzedAt == nil {
		return true
	}
	return s.ttl > 0 && s.now().Sub(*p.AIAnalyzedAt) > s.ttl
}

// Analyze scores a product. A still-fresh stored analysis is returned without
// consuming quota unless force is set. A failed analysis is not charged.
func (s *AnalysisService) Analyze(ctx context.Context, user model.User, productID int64, force bool) (*AnalysisResponse, error) {
	p, err := s.products.GetProduct(ctx, productID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apierror.NotFound("Product not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}

	if !s.needsAnalysis(p, force) {
		return &AnalysisResponse{Product: p}, nil
	}

	allowed, err := s.usage.CheckUsageLimit(ctx, user.ID, model.ActionAIAnalysis, user.Tier)
	if err != nil {
		return nil, err
	}
	if !allowed {
		metrics.RecordQuotaRejection(string(model.ActionAIAnalysis), string(user.Tier))
		return nil, limitReached(model.ActionAIAnalysis, model.LimitFor(user.Tier, model.ActionAIAnalysis))
	}

	res, err := s.analyzer.Analyze(ctx, p)
	if err != nil {
		s.log.Error().Err(err).Int64("product_id", p.ID).Msg("analysis failed")
		return nil, apierror.ServiceUnavailable("Product analysis is temporarily unavailable")
	}

	// Charged only for a completed analysis.
	quota, err := s.usage.Consume(ctx, user.ID, model.ActionAIAnalysis, user.Tier)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode analysis: %w", err)
	}
	analyzedAt := s.now().UTC()
	if err := s.products.UpdateAnalysis(ctx, p.ID, res.Score, raw, analyzedAt); err != nil {
		return nil, fmt.Errorf("store analysis: %w", err)
	}

	score := res.Score
	p.AIScore, p.AIAnalysis, p.AIAnalyzedAt = &score, raw, &analyzedAt

	s.log.Info().
		Str("user_id", user.ID).
		Int64("product_id", p.ID).
		Float64("score", score).
		Str("analyzer", res.Analyzer).
		Msg("product analyzed")

	return &AnalysisResponse{Product: p, Fresh: true, Quota: &quota}, nil
}

// Winning returns unexpired products scored at or above the winning threshold.
func (s *AnalysisService) Winning(ctx context.Context, limit int) ([]*model.Product, error) {
	if limit < 1 || limit > maxPageLimit {
		limit = defaultPageLimit
	}
	products, err := s.products.ListWinning(ctx, model.WinningScore, limit, s.now())
	if err != nil {
		return nil, fmt.Errorf("list winning: %w", err)
	}
	return products, nil
}
