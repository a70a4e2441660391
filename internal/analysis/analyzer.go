// Package analysis scores cached products as dropshipping candidates.
package analysis

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"dropship-rest-api/internal/model"
	"dropship-rest-api/pkg/logger"
)

// Result is the stored ai_analysis document.
type Result struct {
	Score          float64  `json:"score"`
	Verdict        string   `json:"verdict"`
	Summary        string   `json:"summary"`
	Strengths      []string `json:"strengths,omitempty"`
	Risks          []string `json:"risks,omitempty"`
	SuggestedPrice float64  `json:"suggested_price,omitempty"`
	Analyzer       string   `json:"analyzer"`
}

// Analyzer scores one product.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, p *model.Product) (*Result, error)
}

// Verdict maps a score to a label.
func Verdict(score float64) string {
	switch {
	case score >= model.WinningScore:
		return "winning"
	case score >= 50:
		return "promising"
	default:
		return "weak"
	}
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Round(math.Max(0, math.Min(100, v))*10) / 10
}

// fallback tries primary and, when it fails, scores with secondary.
type fallback struct {
	primary   Analyzer
	secondary Analyzer
	log       zerolog.Logger
}

// WithFallback returns an Analyzer that uses secondary whenever primary errors.
func WithFallback(primary, secondary Analyzer) Analyzer {
	return &fallback{primary: primary, secondary: secondary, log: logger.Component("analysis")}
}

func (f *fallback) Name() string { return f.primary.Name() }

func (f *fallback) Analyze(ctx context.Context, p *model.Product) (*Result, error) {
	res, err := f.primary.Analyze(ctx, p)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	f.log.Warn().Err(err).
		Str("analyzer", f.primary.Name()).
		Int64("product_id", p.ID).
		Msg("falling back to heuristic analysis")
	return f.secondary.Analyze(ctx, p)
}
