package analysis

import (
	"context"
	"fmt"
	"math"

	"dropship-rest-api/internal/model"
)

// HeuristicAnalyzer scores products from their marketplace signals alone.
// The same product always gets the same score.
type HeuristicAnalyzer struct {
	// Markup is the multiplier used for the suggested selling price.
	Markup float64
}

func (h HeuristicAnalyzer) Name() string { return "heuristic" }

func (h HeuristicAnalyzer) Analyze(ctx context.Context, p *model.Product) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var strengths, risks []string

	// rating: up to 30
	score := p.Rating / 5 * 30
	switch {
	case p.Rating >= 4.5:
		strengths = append(strengths, fmt.Sprintf("excellent rating (%.1f)", p.Rating))
	case p.Rating > 0 && p.Rating < 3.8:
		risks = append(risks, fmt.Sprintf("low rating (%.1f)", p.Rating))
	}

	// social proof: up to 20 for reviews, 25 for sales
	score += logScale(p.ReviewsCount) * 20
	score += logScale(p.SalesCount) * 25
	if p.SalesCount >= 1000 {
		strengths = append(strengths, fmt.Sprintf("proven demand (%d sold)", p.SalesCount))
	}
	if p.ReviewsCount < 10 {
		risks = append(risks, "few reviews")
	}

	// price band and discount: up to 25
	switch {
	case p.Price >= 10 && p.Price <= 60:
		score += 15
		strengths = append(strengths, "price suits impulse purchases")
	case (p.Price >= 5 && p.Price < 10) || (p.Price > 60 && p.Price <= 120):
		score += 8
	default:
		score += 3
		risks = append(risks, "price outside the typical dropshipping range")
	}
	if p.OriginalPrice > p.Price && p.OriginalPrice > 0 {
		discount := (p.OriginalPrice - p.Price) / p.OriginalPrice
		score += math.Min(discount*20, 10)
	}

	score = clampScore(score)
	markup := h.Markup
	if markup <= 0 {
		markup = 2.5
	}

	return &Result{
		Score:          score,
		Verdict:        Verdict(score),
		Summary:        fmt.Sprintf("%s candidate from %s at $%.2f", Verdict(score), p.Source, p.Price),
		Strengths:      strengths,
		Risks:          risks,
		SuggestedPrice: math.Round(p.Price*markup*100) / 100,
		Analyzer:       h.Name(),
	}, nil
}

// logScale maps a count to [0, 1], saturating at 10,000.
func logScale(n int) float64 {
	if n <= 0 {
		return 0
	}
	return math.Min(math.Log10(float64(n)+1)/4, 1)
}
