package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"scare-cat-bot/internal/config"
	"scare-cat-bot/internal/model"
	"scare-cat-bot/internal/obs"
	"scare-cat-bot/internal/repository"
)

// RedeemOutcome discriminates the result of RedeemReward.
type RedeemOutcome string

const (
	RedeemSuccess          RedeemOutcome = "success"
	RedeemInsufficientWins RedeemOutcome = "insufficient_wins"
	RedeemInsufficientFund RedeemOutcome = "insufficient_fund"
	RedeemDispatchFailed   RedeemOutcome = "dispatch_failed"
	RedeemBanned           RedeemOutcome = "banned"
)

// RedeemResult is returned by RedeemReward.
type RedeemResult struct {
	Outcome RedeemOutcome
	Reward  model.RewardTier
	// WinsRequired is the threshold applied for the account's tier.
	WinsRequired int64
	// RedeemableWins is the balance after the call.
	RedeemableWins int64
}

// GiftDispatcher delivers a reward to the account holder. A nil error means
// the gift was delivered; any error means it was not.
type GiftDispatcher interface {
	Dispatch(ctx context.Context, accountID int64, reward model.RewardTier) error
}

// GiftThrottle is implemented by dispatchers that pace their sends.
// RedeemReward waits on it before taking any ledger lock.
type GiftThrottle interface {
	Throttle(ctx context.Context) error
}

// RewardService converts redeemable wins into dispatched gifts.
type RewardService struct {
	store      repository.Store
	rules      *Rules
	dispatcher GiftDispatcher
	timeout    time.Duration
}

// NewRewardService creates a new RewardService. timeout bounds one dispatch;
// zero uses config.DefaultGiftTimeout.
func NewRewardService(store repository.Store, rules *Rules, dispatcher GiftDispatcher, timeout time.Duration) *RewardService {
	if timeout <= 0 {
		timeout = config.DefaultGiftTimeout
	}
	return &RewardService{store: store, rules: rules, dispatcher: dispatcher, timeout: timeout}
}

// Rewards lists the configured reward tiers.
func (s *RewardService) Rewards() []model.RewardTier {
	return s.rules.Rewards()
}

// RedeemReward checks wins and fund, dispatches the gift and only then debits
// both. The account and fund ledger stay locked across the dispatch, so the
// verified balances cannot move before the debit commits. A failed dispatch
// leaves the ledger untouched. Rate limiting happens before the locks are
// taken, so the fund is held for at most one dispatch timeout.
func (s *RewardService) RedeemReward(ctx context.Context, accountID int64, rewardID string) (res RedeemResult, err error) {
	started := time.Now()
	defer func() { obs.ObserveOperation("redeem_reward", string(res.Outcome), err, started) }()

	reward, ok := s.rules.Reward(rewardID)
	if !ok {
		return RedeemResult{}, ErrUnknownRewardTier
	}

	if th, ok := s.dispatcher.(GiftThrottle); ok {
		if err := th.Throttle(ctx); err != nil {
			return RedeemResult{}, fmt.Errorf("failed to redeem reward: %w", err)
		}
	}

	dispatched := false
	scope := repository.Scope{AccountID: accountID, Fund: true}
	err = s.store.Atomically(ctx, scope, func(tx repository.Tx) error {
		res = RedeemResult{Reward: reward}

		ban, err := tx.Ban(ctx)
		if err != nil {
			return err
		}
		if ban != nil {
			res.Outcome = RedeemBanned
			return nil
		}

		acc, err := tx.Account(ctx)
		if err != nil {
			return err
		}
		res.WinsRequired = reward.ThresholdFor(acc.Tier)
		res.RedeemableWins = acc.RedeemableWins
		if acc.RedeemableWins < res.WinsRequired {
			res.Outcome = RedeemInsufficientWins
			return nil
		}

		fund, err := tx.FundBalance(ctx)
		if err != nil {
			return err
		}
		if fund < reward.FundCost {
			res.Outcome = RedeemInsufficientFund
			return nil
		}

		dctx, cancel := context.WithTimeout(ctx, s.timeout)
		dispatchErr := s.dispatcher.Dispatch(dctx, accountID, reward)
		cancel()
		obs.ObserveDispatch(reward.ID, dispatchErr == nil)
		if dispatchErr != nil {
			log.Warn().
				Err(dispatchErr).
				Int64("account_id", accountID).
				Str("reward", reward.ID).
				Msg("Gift dispatch failed, ledger untouched")
			res.Outcome = RedeemDispatchFailed
			return nil
		}
		dispatched = true

		acc.RedeemableWins -= res.WinsRequired
		acc.FulfilledRewardCount++
		if err := tx.SaveAccount(ctx, acc); err != nil {
			return err
		}
		if err := tx.SetFundBalance(ctx, fund-reward.FundCost); err != nil {
			return err
		}
		if err := appendEvent(ctx, tx, accountID, model.EventReward, -res.WinsRequired, reward.ID); err != nil {
			return err
		}

		res.Outcome = RedeemSuccess
		res.RedeemableWins = acc.RedeemableWins
		return nil
	})
	if err != nil {
		ev := log.Error().Err(err).Int64("account_id", accountID).Str("reward", reward.ID)
		if dispatched {
			// The gift left but the debit did not commit; an operator must reconcile by hand.
			ev = ev.Bool("gift_dispatched", true)
		}
		ev.Msg("Reward redemption failed")
		return RedeemResult{}, fmt.Errorf("failed to redeem reward: %w", err)
	}

	log.Info().
		Int64("account_id", accountID).
		Str("reward", reward.ID).
		Str("outcome", string(res.Outcome)).
		Int64("redeemable_wins", res.RedeemableWins).
		Msg("Reward redemption")

	return res, nil
}
