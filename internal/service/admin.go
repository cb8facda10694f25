package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"scare-cat-bot/internal/config"
	"scare-cat-bot/internal/model"
	"scare-cat-bot/internal/obs"
	"scare-cat-bot/internal/pkg/clock"
	"scare-cat-bot/internal/repository"
)

// AccountField names an account counter an admin may override.
type AccountField string

const (
	FieldLifetimeWins          AccountField = "lifetime_wins"
	FieldRedeemableWins        AccountField = "redeemable_wins"
	FieldFulfilledRewardCount  AccountField = "fulfilled_reward_count"
	FieldFreeAttemptsUsedToday AccountField = "free_attempts_used_today"
	FieldPurchasedAttempts     AccountField = "purchased_attempts"
)

// ParseAccountField resolves a field name as typed by an operator.
func ParseAccountField(name string) (AccountField, error) {
	f := AccountField(strings.ToLower(strings.TrimSpace(name)))
	switch f {
	case FieldLifetimeWins, FieldRedeemableWins, FieldFulfilledRewardCount,
		FieldFreeAttemptsUsedToday, FieldPurchasedAttempts:
		return f, nil
	}
	return "", ErrInvalidField
}

// AdminService performs privileged overrides. Each call is one atomic write;
// ban membership is ignored, only the non-negative floors are enforced.
type AdminService struct {
	store repository.Store
	rules *Rules
	cfg   *config.Config
}

// NewAdminService creates a new AdminService instance.
func NewAdminService(store repository.Store, rules *Rules, cfg *config.Config) *AdminService {
	return &AdminService{store: store, rules: rules, cfg: cfg}
}

func (s *AdminService) authorize(adminID int64) error {
	if !s.cfg.IsAdmin(adminID) {
		log.Warn().Int64("admin_id", adminID).Msg("Rejected admin operation from non-admin")
		return ErrNotAdmin
	}
	return nil
}

func logAdmin(adminID, targetID int64, operation string, value string) {
	log.Info().
		Int64("admin_id", adminID).
		Int64("target_id", targetID).
		Str("operation", operation).
		Str("value", value).
		Msg("Admin operation executed")
}

// SetAccountField overwrites one counter of an account.
// free_attempts_used_today is clamped to the tier ceiling.
func (s *AdminService) SetAccountField(ctx context.Context, adminID, accountID int64, field AccountField, value int64) (acc *model.Account, err error) {
	started := time.Now()
	defer func() { obs.ObserveOperation("admin_set", "ok", err, started) }()

	if err := s.authorize(adminID); err != nil {
		return nil, err
	}
	if value < 0 {
		return nil, ErrInvalidValue
	}
	if _, err := ParseAccountField(string(field)); err != nil {
		return nil, err
	}

	err = s.store.Atomically(ctx, repository.ForAccount(accountID), func(tx repository.Tx) error {
		a, err := tx.Account(ctx)
		if err != nil {
			return err
		}
		switch field {
		case FieldLifetimeWins:
			a.LifetimeWins = value
		case FieldRedeemableWins:
			a.RedeemableWins = value
		case FieldFulfilledRewardCount:
			a.FulfilledRewardCount = value
		case FieldFreeAttemptsUsedToday:
			a.FreeAttemptsUsedToday = int(min(value, int64(s.rules.Ceiling(a.Tier))))
		case FieldPurchasedAttempts:
			a.PurchasedAttempts = value
		}
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		acc = a
		return appendEvent(ctx, tx, accountID, model.EventAdminSet, value, fmt.Sprintf("%s by %d", field, adminID))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set %s: %w", field, err)
	}

	logAdmin(adminID, accountID, "set_"+string(field), fmt.Sprint(value))
	return acc, nil
}

// SetTier changes the account tier, clamping the free pool to the new ceiling.
func (s *AdminService) SetTier(ctx context.Context, adminID, accountID int64, tier model.Tier) (acc *model.Account, err error) {
	started := time.Now()
	defer func() { obs.ObserveOperation("admin_set_tier", "ok", err, started) }()

	if err := s.authorize(adminID); err != nil {
		return nil, err
	}
	if !tier.Valid() {
		return nil, ErrInvalidTier
	}

	err = s.store.Atomically(ctx, repository.ForAccount(accountID), func(tx repository.Tx) error {
		a, err := tx.Account(ctx)
		if err != nil {
			return err
		}
		a.Tier = tier
		s.rules.clampFree(a)
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		acc = a
		return appendEvent(ctx, tx, accountID, model.EventAdminSet, 0, fmt.Sprintf("tier=%s by %d", tier, adminID))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set tier: %w", err)
	}

	logAdmin(adminID, accountID, "set_tier", string(tier))
	return acc, nil
}

// SetQuotaResetDate overwrites the date of the last daily quota reset. The
// zero time marks the quota as never reset, so the next attempt resets it.
func (s *AdminService) SetQuotaResetDate(ctx context.Context, adminID, accountID int64, date time.Time) (acc *model.Account, err error) {
	started := time.Now()
	defer func() { obs.ObserveOperation("admin_set_reset_date", "ok", err, started) }()

	if err := s.authorize(adminID); err != nil {
		return nil, err
	}
	if !date.IsZero() {
		date = clock.Day(date)
	}

	err = s.store.Atomically(ctx, repository.ForAccount(accountID), func(tx repository.Tx) error {
		a, err := tx.Account(ctx)
		if err != nil {
			return err
		}
		a.LastQuotaResetDate = date
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		acc = a
		return appendEvent(ctx, tx, accountID, model.EventAdminSet, 0,
			fmt.Sprintf("last_quota_reset_date=%s by %d", formatDate(date), adminID))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set quota reset date: %w", err)
	}

	logAdmin(adminID, accountID, "set_last_quota_reset_date", formatDate(date))
	return acc, nil
}

func formatDate(d time.Time) string {
	if d.IsZero() {
		return "never"
	}
	return d.Format(time.DateOnly)
}

// SetFundBalance overwrites the fund ledger balance.
func (s *AdminService) SetFundBalance(ctx context.Context, adminID, balance int64) (err error) {
	started := time.Now()
	defer func() { obs.ObserveOperation("admin_set_fund", "ok", err, started) }()

	if err := s.authorize(adminID); err != nil {
		return err
	}
	if balance < 0 {
		return ErrInvalidValue
	}

	err = s.store.Atomically(ctx, repository.Scope{Fund: true}, func(tx repository.Tx) error {
		if err := tx.SetFundBalance(ctx, balance); err != nil {
			return err
		}
		return appendEvent(ctx, tx, model.FundAccountID, model.EventFundSet, balance, fmt.Sprintf("by %d", adminID))
	})
	if err != nil {
		return fmt.Errorf("failed to set fund balance: %w", err)
	}

	logAdmin(adminID, model.FundAccountID, "set_fund", fmt.Sprint(balance))
	return nil
}

// Ban suspends an account. Banning an already banned account updates the reason.
func (s *AdminService) Ban(ctx context.Context, adminID, accountID int64, reason string) (err error) {
	started := time.Now()
	defer func() { obs.ObserveOperation("admin_ban", "ok", err, started) }()

	if err := s.authorize(adminID); err != nil {
		return err
	}

	err = s.store.Atomically(ctx, repository.ForAccount(accountID), func(tx repository.Tx) error {
		if err := tx.PutBan(ctx, model.BanEntry{AccountID: accountID, Reason: reason}); err != nil {
			return err
		}
		return appendEvent(ctx, tx, accountID, model.EventBan, 0, reason)
	})
	if err != nil {
		return fmt.Errorf("failed to ban account: %w", err)
	}

	logAdmin(adminID, accountID, "ban", reason)
	return nil
}

// Unban lifts a suspension. Reports whether the account was banned.
func (s *AdminService) Unban(ctx context.Context, adminID, accountID int64) (removed bool, err error) {
	started := time.Now()
	defer func() { obs.ObserveOperation("admin_unban", "ok", err, started) }()

	if err := s.authorize(adminID); err != nil {
		return false, err
	}

	err = s.store.Atomically(ctx, repository.ForAccount(accountID), func(tx repository.Tx) error {
		var err error
		removed, err = tx.DeleteBan(ctx)
		if err != nil || !removed {
			return err
		}
		return appendEvent(ctx, tx, accountID, model.EventUnban, 0, "")
	})
	if err != nil {
		return false, fmt.Errorf("failed to unban account: %w", err)
	}

	logAdmin(adminID, accountID, "unban", fmt.Sprint(removed))
	return removed, nil
}

// AddPromo creates or replaces a catalogue entry.
func (s *AdminService) AddPromo(ctx context.Context, adminID int64, code string, rewardWins int64, globalOneTime bool) (promo model.PromoCode, err error) {
	started := time.Now()
	defer func() { obs.ObserveOperation("admin_add_promo", "ok", err, started) }()

	if err := s.authorize(adminID); err != nil {
		return model.PromoCode{}, err
	}
	promo = model.PromoCode{
		Code:          model.CanonicalPromoCode(code),
		RewardWins:    rewardWins,
		GlobalOneTime: globalOneTime,
	}
	if promo.Code == "" || rewardWins <= 0 {
		return model.PromoCode{}, ErrInvalidValue
	}

	err = s.store.Atomically(ctx, repository.Scope{Promo: true}, func(tx repository.Tx) error {
		return tx.PutPromo(ctx, promo)
	})
	if err != nil {
		return model.PromoCode{}, fmt.Errorf("failed to add promo: %w", err)
	}

	logAdmin(adminID, model.FundAccountID, "add_promo", promo.Code)
	return promo, nil
}

// RemovePromo deletes a catalogue entry. Reports whether it existed.
func (s *AdminService) RemovePromo(ctx context.Context, adminID int64, code string) (removed bool, err error) {
	started := time.Now()
	defer func() { obs.ObserveOperation("admin_remove_promo", "ok", err, started) }()

	if err := s.authorize(adminID); err != nil {
		return false, err
	}
	canonical := model.CanonicalPromoCode(code)

	err = s.store.Atomically(ctx, repository.Scope{Promo: true}, func(tx repository.Tx) error {
		var err error
		removed, err = tx.DeletePromo(ctx, canonical)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to remove promo: %w", err)
	}

	logAdmin(adminID, model.FundAccountID, "remove_promo", canonical)
	return removed, nil
}
