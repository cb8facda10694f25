// Package service provides the ledger engines: play, reward redemption,
// payment reconciliation, promo redemption and admin overrides.
package service

import (
	"context"
	"errors"
	"time"

	"scare-cat-bot/internal/config"
	"scare-cat-bot/internal/model"
	"scare-cat-bot/internal/pkg/ids"
)

// Errors shared by the engines. Business-rule rejections are outcomes, not errors.
var (
	ErrUnknownRewardTier = errors.New("unknown reward tier")
	ErrNotAdmin          = errors.New("not an admin")
	ErrInvalidValue      = errors.New("invalid value: must be non-negative")
	ErrInvalidTier       = errors.New("invalid tier")
	ErrInvalidField      = errors.New("unknown account field")
)

// TierRules holds the per-tier play parameters.
type TierRules struct {
	DailyQuota     int
	WinProbability float64
}

// Rules is the immutable game configuration shared by all engines.
type Rules struct {
	tiers         map[model.Tier]TierRules
	rewards       map[string]model.RewardTier
	rewardOrder   []string
	packs         map[int]int64
	packSizes     []int
	currency      string
	elevatedPrice int64
	maxAttempts   int64
	promos        []model.PromoCode
}

// NewRules builds Rules from a validated configuration.
func NewRules(cfg *config.Config) *Rules {
	r := &Rules{
		tiers: map[model.Tier]TierRules{
			model.TierStandard: {
				DailyQuota:     cfg.Game.Tiers.Standard.DailyQuota,
				WinProbability: cfg.Game.Tiers.Standard.WinProbability,
			},
			model.TierElevated: {
				DailyQuota:     cfg.Game.Tiers.Elevated.DailyQuota,
				WinProbability: cfg.Game.Tiers.Elevated.WinProbability,
			},
		},
		rewards:       make(map[string]model.RewardTier, len(cfg.Rewards)),
		packs:         make(map[int]int64, len(cfg.Packs)),
		packSizes:     cfg.PackSizes(),
		currency:      cfg.Payments.Currency,
		elevatedPrice: cfg.Payments.ElevatedPrice,
		maxAttempts:   cfg.Payments.MaxAttempts,
	}
	for _, rc := range cfg.Rewards {
		r.rewards[rc.ID] = model.RewardTier{
			ID:                    rc.ID,
			GiftID:                rc.GiftID,
			FundCost:              rc.FundCost,
			WinsThreshold:         rc.WinsThreshold,
			WinsThresholdElevated: rc.WinsThresholdElevated,
		}
		r.rewardOrder = append(r.rewardOrder, rc.ID)
	}
	for n, price := range cfg.Packs {
		r.packs[n] = price
	}
	for _, p := range cfg.PromoCodes {
		r.promos = append(r.promos, model.PromoCode{
			Code:          model.CanonicalPromoCode(p.Code),
			RewardWins:    p.RewardWins,
			GlobalOneTime: p.GlobalOneTime,
		})
	}
	if r.currency == "" {
		r.currency = "XTR"
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = config.DefaultMaxAttempts
	}
	return r
}

// Tier returns the rules of t; unknown tiers fall back to standard.
func (r *Rules) Tier(t model.Tier) TierRules {
	if tr, ok := r.tiers[t]; ok {
		return tr
	}
	return r.tiers[model.TierStandard]
}

// Ceiling is the daily free-attempt quota of t.
func (r *Rules) Ceiling(t model.Tier) int {
	return r.Tier(t).DailyQuota
}

// Reward looks up a reward tier by id.
func (r *Rules) Reward(id string) (model.RewardTier, bool) {
	rt, ok := r.rewards[id]
	return rt, ok
}

// Rewards returns the reward tiers in configuration order.
func (r *Rules) Rewards() []model.RewardTier {
	out := make([]model.RewardTier, 0, len(r.rewardOrder))
	for _, id := range r.rewardOrder {
		out = append(out, r.rewards[id])
	}
	return out
}

// PromoCodes returns the configured promo catalogue seed.
func (r *Rules) PromoCodes() []model.PromoCode {
	return append([]model.PromoCode(nil), r.promos...)
}

// freeLeft is the number of free attempts still available after any reset was applied.
func (r *Rules) freeLeft(acc *model.Account) int64 {
	left := r.Ceiling(acc.Tier) - acc.FreeAttemptsUsedToday
	if left < 0 {
		return 0
	}
	return int64(left)
}

// resetQuota zeroes the free pool if the last reset was not today. Purchased
// attempts are untouched. Reports whether anything changed.
func resetQuota(acc *model.Account, today time.Time) bool {
	if acc.LastQuotaResetDate.Equal(today) {
		return false
	}
	acc.FreeAttemptsUsedToday = 0
	acc.LastQuotaResetDate = today
	return true
}

// clampFree keeps the free pool within the ceiling of the account's current tier.
func (r *Rules) clampFree(acc *model.Account) {
	if ceiling := r.Ceiling(acc.Tier); acc.FreeAttemptsUsedToday > ceiling {
		acc.FreeAttemptsUsedToday = ceiling
	}
}

// eventWriter is the part of repository.Tx used to journal mutations.
type eventWriter interface {
	AppendEvent(ctx context.Context, ev model.LedgerEvent) error
}

func appendEvent(ctx context.Context, tx eventWriter, accountID int64, typ string, delta int64, note string) error {
	return tx.AppendEvent(ctx, model.LedgerEvent{
		ID:        ids.New(),
		AccountID: accountID,
		Type:      typ,
		Delta:     delta,
		Note:      note,
	})
}
