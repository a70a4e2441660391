package model

import (
	"fmt"
	"time"
)

// Tier is a subscription level.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// ParseTier maps a claim value to a Tier, defaulting to free.
func ParseTier(s string) Tier {
	switch Tier(s) {
	case TierPro:
		return TierPro
	default:
		return TierFree
	}
}

// Action is a quota-limited operation.
type Action string

const (
	ActionSearch     Action = "search"
	ActionImport     Action = "import"
	ActionAIAnalysis Action = "ai_analysis"
)

// Unlimited marks an action without a daily cap.
const Unlimited = -1

// TierLimits is the static daily quota table.
var TierLimits = map[Tier]map[Action]int{
	TierFree: {
		ActionSearch:     20,
		ActionImport:     10,
		ActionAIAnalysis: 5,
	},
	TierPro: {
		ActionSearch:     Unlimited,
		ActionImport:     Unlimited,
		ActionAIAnalysis: 200,
	},
}

// LimitFor returns the daily limit for tier/action. Unknown pairs get zero.
func LimitFor(tier Tier, action Action) int {
	actions, ok := TierLimits[tier]
	if !ok {
		actions = TierLimits[TierFree]
	}
	return actions[action]
}

// UsageLog is a per-user, per-action, per-day counter row.
type UsageLog struct {
	UserID string `json:"user_id"`
	Action Action `json:"action"`
	Date   string `json:"date"`
	Count  int    `json:"count"`
}

// UsageDate formats t as the UTC day key used by usage_logs.
func UsageDate(t time.Time) string {
	y, m, d := t.UTC().Date()
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

// Quota describes the caller's standing for one action today.
type Quota struct {
	Action    Action    `json:"action"`
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
}
