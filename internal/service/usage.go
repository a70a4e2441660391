package service

import (
	"context"
	"fmt"
	"time"

	"dropship-rest-api/internal/metrics"
	"dropship-rest-api/internal/model"
	"dropship-rest-api/internal/repository"
	"dropship-rest-api/pkg/apierror"
)

// UsageService enforces the per-tier daily quotas.
type UsageService struct {
	repo repository.UsageRepository
	now  func() time.Time
}

// NewUsageService creates a new usage service.
func NewUsageService(repo repository.UsageRepository) *UsageService {
	return &UsageService{repo: repo, now: time.Now}
}

// CheckUsageLimit reports whether the user may still perform action today.
func (s *UsageService) CheckUsageLimit(ctx context.Context, userID string, action model.Action, tier model.Tier) (bool, error) {
	limit := model.LimitFor(tier, action)
	if limit == model.Unlimited {
		return true, nil
	}
	used, err := s.repo.GetUsage(ctx, userID, action, model.UsageDate(s.now()))
	if err != nil {
		return false, fmt.Errorf("check usage: %w", err)
	}
	return used < limit, nil
}

// TrackUsage records one use of action today.
func (s *UsageService) TrackUsage(ctx context.Context, userID string, action model.Action) error {
	if _, err := s.repo.IncrementUsage(ctx, userID, action, model.UsageDate(s.now())); err != nil {
		return fmt.Errorf("track usage: %w", err)
	}
	return nil
}

// Consume atomically checks and records one use of action. It returns a 429
// LIMIT_REACHED error when today's quota is exhausted.
func (s *UsageService) Consume(ctx context.Context, userID string, action model.Action, tier model.Tier) (model.Quota, error) {
	now := s.now()
	date := model.UsageDate(now)
	limit := model.LimitFor(tier, action)

	if limit == model.Unlimited {
		used, err := s.repo.IncrementUsage(ctx, userID, action, date)
		if err != nil {
			return model.Quota{}, fmt.Errorf("track usage: %w", err)
		}
		return quota(action, used, limit, now), nil
	}

	used, ok, err := s.repo.IncrementUsageIfBelow(ctx, userID, action, date, limit)
	if err != nil {
		return model.Quota{}, fmt.Errorf("consume usage: %w", err)
	}
	if !ok {
		metrics.RecordQuotaRejection(string(action), string(tier))
		return quota(action, used, limit, now), limitReached(action, limit)
	}
	return quota(action, used, limit, now), nil
}

// Quotas returns the user's standing for every action today.
func (s *UsageService) Quotas(ctx context.Context, userID string, tier model.Tier) ([]model.Quota, error) {
	now := s.now()
	date := model.UsageDate(now)

	actions := []model.Action{model.ActionSearch, model.ActionImport, model.ActionAIAnalysis}
	quotas := make([]model.Quota, 0, len(actions))
	for _, action := range actions {
		used, err := s.repo.GetUsage(ctx, userID, action, date)
		if err != nil {
			return nil, fmt.Errorf("get usage: %w", err)
		}
		quotas = append(quotas, quota(action, used, model.LimitFor(tier, action), now))
	}
	return quotas, nil
}

func quota(action model.Action, used, limit int, now time.Time) model.Quota {
	remaining := model.Unlimited
	if limit != model.Unlimited {
		remaining = limit - used
		if remaining < 0 {
			remaining = 0
		}
	}
	y, m, d := now.UTC().Date()
	return model.Quota{
		Action:    action,
		Used:      used,
		Limit:     limit,
		Remaining: remaining,
		ResetsAt:  time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC),
	}
}

func limitReached(action model.Action, limit int) *apierror.Error {
	return apierror.LimitReached(fmt.Sprintf(
		"Daily %s limit of %d reached. Upgrade your plan for more.", action, limit))
}
