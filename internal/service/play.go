package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"

	"scare-cat-bot/internal/model"
	"scare-cat-bot/internal/obs"
	"scare-cat-bot/internal/pkg/clock"
	"scare-cat-bot/internal/repository"
)

// PlayOutcome discriminates the result of PlayAttempt.
type PlayOutcome string

const (
	PlayOK         PlayOutcome = "ok"
	PlayNoAttempts PlayOutcome = "no_attempts"
	PlayBanned     PlayOutcome = "banned"
)

// AttemptPool names the pool an attempt was debited from.
type AttemptPool string

const (
	PoolNone      AttemptPool = ""
	PoolFree      AttemptPool = "free"
	PoolPurchased AttemptPool = "purchased"
)

// PlayResult is returned by PlayAttempt.
type PlayResult struct {
	Outcome           PlayOutcome
	Won               bool
	AttemptsRemaining int64
	Pool              AttemptPool
}

// RollFunc returns a uniform sample in [0, 1).
type RollFunc func() float64

// PlayService consumes attempts and records wins.
type PlayService struct {
	store repository.Store
	rules *Rules
	clock clock.Clock
	roll  RollFunc
}

// NewPlayService creates a new PlayService. A nil roll uses math/rand/v2.
func NewPlayService(store repository.Store, rules *Rules, clk clock.Clock, roll RollFunc) *PlayService {
	if roll == nil {
		roll = rand.Float64
	}
	return &PlayService{store: store, rules: rules, clock: clk, roll: roll}
}

// PlayAttempt runs one attempt for the account: daily reset, pool debit
// (free first, then purchased), a Bernoulli trial at the tier's win
// probability, all committed as one unit.
func (s *PlayService) PlayAttempt(ctx context.Context, accountID int64) (res PlayResult, err error) {
	started := time.Now()
	defer func() { obs.ObserveOperation("play", string(res.Outcome), err, started) }()

	today := s.clock.Today()

	err = s.store.Atomically(ctx, repository.ForAccount(accountID), func(tx repository.Tx) error {
		res = PlayResult{}

		ban, err := tx.Ban(ctx)
		if err != nil {
			return err
		}
		if ban != nil {
			res.Outcome = PlayBanned
			return nil
		}

		acc, err := tx.Account(ctx)
		if err != nil {
			return err
		}

		resetQuota(acc, today)
		if s.rules.freeLeft(acc)+acc.PurchasedAttempts <= 0 {
			res.Outcome = PlayNoAttempts
			return nil
		}

		if s.rules.freeLeft(acc) > 0 {
			acc.FreeAttemptsUsedToday++
			res.Pool = PoolFree
		} else {
			acc.PurchasedAttempts--
			res.Pool = PoolPurchased
		}

		res.Won = s.roll() < s.rules.Tier(acc.Tier).WinProbability
		if res.Won {
			acc.LifetimeWins++
			acc.RedeemableWins++
		}

		if err := tx.SaveAccount(ctx, acc); err != nil {
			return err
		}

		evType, delta := model.EventPlayLoss, int64(0)
		if res.Won {
			evType, delta = model.EventPlayWin, 1
		}
		if err := appendEvent(ctx, tx, accountID, evType, delta, string(res.Pool)); err != nil {
			return err
		}

		res.Outcome = PlayOK
		res.AttemptsRemaining = s.rules.freeLeft(acc) + acc.PurchasedAttempts
		return nil
	})
	if err != nil {
		log.Error().Err(err).Int64("account_id", accountID).Msg("Play attempt failed")
		return PlayResult{}, fmt.Errorf("failed to play attempt: %w", err)
	}

	log.Info().
		Int64("account_id", accountID).
		Str("outcome", string(res.Outcome)).
		Bool("won", res.Won).
		Str("pool", string(res.Pool)).
		Int64("remaining", res.AttemptsRemaining).
		Msg("Play attempt")

	return res, nil
}
