package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scare-cat-bot/internal/model"
)

func TestAdmin_RejectsNonAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const stranger = 1

	_, err := env.admin.SetAccountField(ctx, stranger, 2, FieldRedeemableWins, 1000)
	assert.ErrorIs(t, err, ErrNotAdmin)
	assert.ErrorIs(t, env.admin.SetFundBalance(ctx, stranger, 1000), ErrNotAdmin)
	assert.ErrorIs(t, env.admin.Ban(ctx, stranger, 2, ""), ErrNotAdmin)
	_, err = env.admin.SetTier(ctx, stranger, 2, model.TierElevated)
	assert.ErrorIs(t, err, ErrNotAdmin)
	_, err = env.admin.AddPromo(ctx, stranger, "MINE", 1000, false)
	assert.ErrorIs(t, err, ErrNotAdmin)
	_, err = env.admin.SetQuotaResetDate(ctx, stranger, 2, time.Time{})
	assert.ErrorIs(t, err, ErrNotAdmin)

	assert.Equal(t, int64(0), env.mustFund(t))
}

func TestAdmin_SetAccountField(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc, err := env.admin.SetAccountField(ctx, testAdminID, 2, FieldLifetimeWins, 77)
	require.NoError(t, err)
	assert.Equal(t, int64(77), acc.LifetimeWins)

	_, err = env.admin.SetAccountField(ctx, testAdminID, 2, FieldRedeemableWins, -1)
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = env.admin.SetAccountField(ctx, testAdminID, 2, AccountField("balance"), 1)
	assert.ErrorIs(t, err, ErrInvalidField)

	acc, err = env.admin.SetAccountField(ctx, testAdminID, 2, FieldFreeAttemptsUsedToday, 99)
	require.NoError(t, err)
	assert.Equal(t, 15, acc.FreeAttemptsUsedToday, "free pool clamps to the tier ceiling")
}

func TestAdmin_SetTierClampsFreePool(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const id = 3

	_, err := env.admin.SetTier(ctx, testAdminID, id, model.TierElevated)
	require.NoError(t, err)
	_, err = env.admin.SetAccountField(ctx, testAdminID, id, FieldFreeAttemptsUsedToday, 25)
	require.NoError(t, err)

	acc, err := env.admin.SetTier(ctx, testAdminID, id, model.TierStandard)
	require.NoError(t, err)
	assert.Equal(t, model.TierStandard, acc.Tier)
	assert.Equal(t, 15, acc.FreeAttemptsUsedToday)

	_, err = env.admin.SetTier(ctx, testAdminID, id, model.Tier("gold"))
	assert.ErrorIs(t, err, ErrInvalidTier)
}

func TestAdmin_BanUnban(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.admin.Ban(ctx, testAdminID, 4, "spam"))
	ok, err := env.account.CheckAccess(ctx, 4)
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := env.admin.Unban(ctx, testAdminID, 4)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = env.admin.Unban(ctx, testAdminID, 4)
	require.NoError(t, err)
	assert.False(t, removed)

	ok, err = env.account.CheckAccess(ctx, 4)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAdmin_FundAndPromos(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assert.ErrorIs(t, env.admin.SetFundBalance(ctx, testAdminID, -5), ErrInvalidValue)
	require.NoError(t, env.admin.SetFundBalance(ctx, testAdminID, 250))
	assert.Equal(t, int64(250), env.mustFund(t))

	promo, err := env.admin.AddPromo(ctx, testAdminID, " spooky ", 3, false)
	require.NoError(t, err)
	assert.Equal(t, "SPOOKY", promo.Code)

	_, err = env.admin.AddPromo(ctx, testAdminID, "ZERO", 0, false)
	assert.ErrorIs(t, err, ErrInvalidValue)

	res, err := env.promo.RedeemPromo(ctx, 5, "spooky")
	require.NoError(t, err)
	assert.Equal(t, PromoGranted, res.Outcome)

	removed, err := env.admin.RemovePromo(ctx, testAdminID, "SPOOKY")
	require.NoError(t, err)
	assert.True(t, removed)

	res, err = env.promo.RedeemPromo(ctx, 6, "spooky")
	require.NoError(t, err)
	assert.Equal(t, PromoUnknownCode, res.Outcome)
}

func TestParseAccountField(t *testing.T) {
	f, err := ParseAccountField(" Redeemable_Wins ")
	require.NoError(t, err)
	assert.Equal(t, FieldRedeemableWins, f)

	_, err = ParseAccountField("tier")
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestAdmin_SetQuotaResetDate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const id = 60

	_, err := env.admin.SetAccountField(ctx, testAdminID, id, FieldFreeAttemptsUsedToday, 15)
	require.NoError(t, err)

	// Marking today as reset keeps the used pool; the next play has no free attempt.
	today := env.clock.Today()
	acc, err := env.admin.SetQuotaResetDate(ctx, testAdminID, id, today.Add(15*time.Hour))
	require.NoError(t, err)
	assert.True(t, acc.LastQuotaResetDate.Equal(today))
	assert.True(t, env.mustAccount(t, id).LastQuotaResetDate.Equal(today))

	snap, err := env.account.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.FreeAttemptsLeft)
	res, err := env.play.PlayAttempt(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, PlayNoAttempts, res.Outcome)

	// Clearing the date makes the next play reset the pool.
	acc, err = env.admin.SetQuotaResetDate(ctx, testAdminID, id, time.Time{})
	require.NoError(t, err)
	assert.True(t, acc.LastQuotaResetDate.IsZero())
	res, err = env.play.PlayAttempt(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, PlayOK, res.Outcome)
	assert.Equal(t, 1, env.mustAccount(t, id).FreeAttemptsUsedToday)

	events, err := env.account.History(ctx, id, 10)
	require.NoError(t, err)
	var notes []string
	for _, ev := range events {
		if ev.Type == model.EventAdminSet {
			notes = append(notes, ev.Note)
		}
	}
	assert.Contains(t, notes, "last_quota_reset_date=2026-10-17 by 9000")
	assert.Contains(t, notes, "last_quota_reset_date=never by 9000")
}
