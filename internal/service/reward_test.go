package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scare-cat-bot/internal/model"
)

func TestRedeemReward_ExactThreshold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const id = 100

	env.setWins(t, id, 50)
	env.setFund(t, 15)

	res, err := env.reward.RedeemReward(ctx, id, "gift15")
	require.NoError(t, err)
	assert.Equal(t, RedeemSuccess, res.Outcome)
	assert.Equal(t, int64(50), res.WinsRequired)
	assert.Equal(t, int64(0), res.RedeemableWins)

	acc := env.mustAccount(t, id)
	assert.Equal(t, int64(0), acc.RedeemableWins)
	assert.Equal(t, int64(1), acc.FulfilledRewardCount)
	assert.Equal(t, int64(0), env.mustFund(t))
	assert.Equal(t, 1, env.dispatcher.count())
}

func TestRedeemReward_ElevatedThreshold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const id = 101

	_, err := env.admin.SetTier(ctx, testAdminID, id, model.TierElevated)
	require.NoError(t, err)
	env.setWins(t, id, 40)
	env.setFund(t, 100)

	res, err := env.reward.RedeemReward(ctx, id, "gift15")
	require.NoError(t, err)
	assert.Equal(t, RedeemSuccess, res.Outcome)
	assert.Equal(t, int64(40), res.WinsRequired)
	assert.Equal(t, int64(85), env.mustFund(t))
}

func TestRedeemReward_InsufficientWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const id = 102

	env.setWins(t, id, 49)
	env.setFund(t, 100)

	res, err := env.reward.RedeemReward(ctx, id, "gift15")
	require.NoError(t, err)
	assert.Equal(t, RedeemInsufficientWins, res.Outcome)
	assert.Equal(t, int64(49), env.mustAccount(t, id).RedeemableWins)
	assert.Equal(t, int64(100), env.mustFund(t))
	assert.Zero(t, env.dispatcher.count())
}

func TestRedeemReward_InsufficientFund(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const id = 103

	env.setWins(t, id, 100)
	env.setFund(t, 24)

	res, err := env.reward.RedeemReward(ctx, id, "gift25")
	require.NoError(t, err)
	assert.Equal(t, RedeemInsufficientFund, res.Outcome)
	assert.Equal(t, int64(100), env.mustAccount(t, id).RedeemableWins)
	assert.Equal(t, int64(24), env.mustFund(t))
	assert.Zero(t, env.dispatcher.count())
}

func TestRedeemReward_DispatchFailureLeavesLedgerUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const id = 104

	env.setWins(t, id, 60)
	env.setFund(t, 15)
	env.dispatcher.setErr(errGiftRejected)
	before := env.mustAccount(t, id)

	res, err := env.reward.RedeemReward(ctx, id, "gift15")
	require.NoError(t, err)
	assert.Equal(t, RedeemDispatchFailed, res.Outcome)
	assert.Equal(t, before, env.mustAccount(t, id))
	assert.Equal(t, int64(15), env.mustFund(t))

	env.dispatcher.setErr(nil)
	res, err = env.reward.RedeemReward(ctx, id, "gift15")
	require.NoError(t, err)
	assert.Equal(t, RedeemSuccess, res.Outcome)
	assert.Equal(t, int64(10), res.RedeemableWins)
}

func TestRedeemReward_UnknownTier(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.reward.RedeemReward(context.Background(), 1, "gift99")
	assert.ErrorIs(t, err, ErrUnknownRewardTier)
}

func TestRedeemReward_Banned(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const id = 105

	env.setWins(t, id, 100)
	env.setFund(t, 100)
	require.NoError(t, env.admin.Ban(ctx, testAdminID, id, "abuse"))

	res, err := env.reward.RedeemReward(ctx, id, "gift15")
	require.NoError(t, err)
	assert.Equal(t, RedeemBanned, res.Outcome)
	assert.Equal(t, int64(100), env.mustFund(t))
	assert.Zero(t, env.dispatcher.count())
}

// Two accounts racing for a fund that covers one gift: exactly one wins.
func TestRedeemReward_ConcurrentFundContention(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.setWins(t, 201, 50)
	env.setWins(t, 202, 50)
	env.setFund(t, 15)

	var wg sync.WaitGroup
	results := make([]RedeemOutcome, 2)
	for i, id := range []int64{201, 202} {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			res, err := env.reward.RedeemReward(ctx, id, "gift15")
			assert.NoError(t, err)
			results[i] = res.Outcome
		}(i, id)
	}
	wg.Wait()

	assert.ElementsMatch(t, []RedeemOutcome{RedeemSuccess, RedeemInsufficientFund}, results)
	assert.Equal(t, int64(0), env.mustFund(t))
	assert.Equal(t, 1, env.dispatcher.count())
}

// gatedDispatcher holds every redemption in Throttle until the gate opens.
type gatedDispatcher struct {
	fakeDispatcher
	waiting chan struct{}
	gate    chan struct{}
}

func (d *gatedDispatcher) Throttle(ctx context.Context) error {
	d.waiting <- struct{}{}
	select {
	case <-d.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestRedeemReward_ThrottleWaitHoldsNoLocks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const id = 140

	env.setWins(t, id, 50)
	env.setFund(t, 15)

	gated := &gatedDispatcher{waiting: make(chan struct{}, 1), gate: make(chan struct{})}
	reward := NewRewardService(env.store, env.rules, gated, time.Second)

	done := make(chan RedeemResult, 1)
	go func() {
		res, err := reward.RedeemReward(ctx, id, "gift15")
		assert.NoError(t, err)
		done <- res
	}()
	<-gated.waiting

	// The redemption is throttled; payments on the same account and fund go through.
	payCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	res, err := env.payment.ApplyPayment(payCtx, PaymentRequest{Identity: "during-throttle", AccountID: id, Amount: 10, Payload: "attempts_10"})
	require.NoError(t, err)
	assert.Equal(t, PaymentApplied, res.Outcome)

	close(gated.gate)
	redeemed := <-done
	assert.Equal(t, RedeemSuccess, redeemed.Outcome)
	assert.Equal(t, int64(10), env.mustFund(t))
	assert.Equal(t, 1, gated.count())
}

func TestRedeemReward_ThrottleCancelled(t *testing.T) {
	env := newTestEnv(t)
	const id = 141

	env.setWins(t, id, 50)
	env.setFund(t, 15)

	gated := &gatedDispatcher{waiting: make(chan struct{}, 1), gate: make(chan struct{})}
	reward := NewRewardService(env.store, env.rules, gated, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := reward.RedeemReward(ctx, id, "gift15")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, gated.count())
	assert.Equal(t, int64(15), env.mustFund(t))
	assert.Equal(t, int64(50), env.mustAccount(t, id).RedeemableWins)
}

// slowDispatcher never answers before ctx is done.
type slowDispatcher struct{}

func (slowDispatcher) Dispatch(ctx context.Context, accountID int64, reward model.RewardTier) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRedeemReward_DispatchTimeoutFromConfig(t *testing.T) {
	env := newTestEnv(t)
	cfg := testConfig()
	cfg.Bot.GiftTimeout = 30 * time.Millisecond
	engine := NewEngine(cfg, env.store, env.clock, slowDispatcher{}, nil)
	ctx := context.Background()
	const id = 142

	env.setWins(t, id, 50)
	env.setFund(t, 15)

	started := time.Now()
	res, err := engine.Reward.RedeemReward(ctx, id, "gift15")
	require.NoError(t, err)
	assert.Equal(t, RedeemDispatchFailed, res.Outcome)
	assert.Less(t, time.Since(started), 5*time.Second)
	assert.Equal(t, int64(15), env.mustFund(t))
}
