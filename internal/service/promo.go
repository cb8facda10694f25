package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"scare-cat-bot/internal/model"
	"scare-cat-bot/internal/obs"
	"scare-cat-bot/internal/repository"
)

// PromoOutcome discriminates the result of RedeemPromo.
type PromoOutcome string

const (
	PromoGranted         PromoOutcome = "granted"
	PromoUnknownCode     PromoOutcome = "unknown_code"
	PromoAlreadyRedeemed PromoOutcome = "already_redeemed"
	PromoBanned          PromoOutcome = "banned"
)

// PromoResult is returned by RedeemPromo.
type PromoResult struct {
	Outcome    PromoOutcome
	Code       string
	RewardWins int64
}

// PromoService applies promo codes at most once per account.
type PromoService struct {
	store repository.Store
	rules *Rules
}

// NewPromoService creates a new PromoService instance.
func NewPromoService(store repository.Store, rules *Rules) *PromoService {
	return &PromoService{store: store, rules: rules}
}

// SeedCatalogue inserts the configured promo codes that are missing.
// Global one-time codes that were already consumed are not brought back.
func (s *PromoService) SeedCatalogue(ctx context.Context) (int, error) {
	n, err := s.store.SeedPromos(ctx, s.rules.PromoCodes())
	if err != nil {
		return 0, fmt.Errorf("failed to seed promo catalogue: %w", err)
	}
	return n, nil
}

// RedeemPromo credits the code's wins. The catalogue row is locked for the
// whole unit, so when two accounts race for a global one-time code the loser
// finds it gone and gets PromoUnknownCode.
func (s *PromoService) RedeemPromo(ctx context.Context, accountID int64, code string) (res PromoResult, err error) {
	started := time.Now()
	defer func() { obs.ObserveOperation("redeem_promo", string(res.Outcome), err, started) }()

	canonical := model.CanonicalPromoCode(code)

	scope := repository.Scope{AccountID: accountID, Promo: true}
	err = s.store.Atomically(ctx, scope, func(tx repository.Tx) error {
		res = PromoResult{Code: canonical}

		ban, err := tx.Ban(ctx)
		if err != nil {
			return err
		}
		if ban != nil {
			res.Outcome = PromoBanned
			return nil
		}

		if canonical == "" {
			res.Outcome = PromoUnknownCode
			return nil
		}
		promo, err := tx.Promo(ctx, canonical)
		if errors.Is(err, repository.ErrPromoNotFound) {
			res.Outcome = PromoUnknownCode
			return nil
		}
		if err != nil {
			return err
		}

		redeemed, err := tx.Redeemed(ctx, canonical)
		if err != nil {
			return err
		}
		if redeemed {
			res.Outcome = PromoAlreadyRedeemed
			return nil
		}

		acc, err := tx.Account(ctx)
		if err != nil {
			return err
		}
		acc.RedeemableWins += promo.RewardWins
		if err := tx.SaveAccount(ctx, acc); err != nil {
			return err
		}
		if err := tx.InsertRedemption(ctx, canonical); err != nil {
			return err
		}
		if promo.GlobalOneTime {
			if _, err := tx.DeletePromo(ctx, canonical); err != nil {
				return err
			}
		}
		if err := appendEvent(ctx, tx, accountID, model.EventPromo, promo.RewardWins, canonical); err != nil {
			return err
		}

		res.Outcome = PromoGranted
		res.RewardWins = promo.RewardWins
		return nil
	})
	if err != nil {
		log.Error().Err(err).Int64("account_id", accountID).Str("code", canonical).Msg("Promo redemption failed")
		return PromoResult{}, fmt.Errorf("failed to redeem promo: %w", err)
	}

	log.Info().
		Int64("account_id", accountID).
		Str("code", canonical).
		Str("outcome", string(res.Outcome)).
		Int64("reward_wins", res.RewardWins).
		Msg("Promo redemption")

	return res, nil
}
