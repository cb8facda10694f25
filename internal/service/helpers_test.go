package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"scare-cat-bot/internal/config"
	"scare-cat-bot/internal/model"
	"scare-cat-bot/internal/pkg/clock"
	"scare-cat-bot/internal/repository"
)

const testAdminID int64 = 9000

var errGiftRejected = errors.New("gift rejected")

func testConfig() *config.Config {
	return &config.Config{
		Admin: config.AdminConfig{IDs: []int64{testAdminID}},
		Game: config.GameConfig{Tiers: config.TiersConfig{
			Standard: config.TierConfig{DailyQuota: 15, WinProbability: 0.27},
			Elevated: config.TierConfig{DailyQuota: 30, WinProbability: 0.40},
		}},
		Rewards: []config.RewardConfig{
			{ID: "gift15", GiftID: "5170233102089322756", FundCost: 15, WinsThreshold: 50, WinsThresholdElevated: 40},
			{ID: "gift25", GiftID: "5170250947678437525", FundCost: 25, WinsThreshold: 100, WinsThresholdElevated: 85},
		},
		Packs: map[int]int64{10: 5, 20: 8, 50: 13},
		PromoCodes: []config.PromoCodeConfig{
			{Code: "FREE10", RewardWins: 10},
			{Code: "BIGSTAR", RewardWins: 25},
			{Code: "WELCOME", RewardWins: 5},
		},
		Payments: config.PaymentsConfig{Currency: "XTR", ElevatedPrice: 30},
	}
}

// fakeDispatcher records dispatches and fails while err is set.
type fakeDispatcher struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, accountID int64, reward model.RewardTier) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, reward.ID)
	return d.err
}

func (d *fakeDispatcher) setErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// switchRoll is a RollFunc whose result can be flipped between win and loss.
type switchRoll struct {
	lose atomic.Bool
}

func (r *switchRoll) roll() float64 {
	if r.lose.Load() {
		return 0.999
	}
	return 0
}

type testEnv struct {
	cfg        *config.Config
	store      *repository.MemoryStore
	rules      *Rules
	clock      *clock.Fixed
	roll       *switchRoll
	dispatcher *fakeDispatcher

	play    *PlayService
	reward  *RewardService
	payment *PaymentService
	promo   *PromoService
	admin   *AdminService
	account *AccountService
	ranking *RankingService
}

func newTestEnv(t testing.TB) *testEnv {
	t.Helper()
	cfg := testConfig()
	env := &testEnv{
		cfg:        cfg,
		store:      repository.NewMemoryStore(),
		rules:      NewRules(cfg),
		clock:      clock.NewFixed(time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)),
		roll:       &switchRoll{},
		dispatcher: &fakeDispatcher{},
	}
	env.play = NewPlayService(env.store, env.rules, env.clock, env.roll.roll)
	env.reward = NewRewardService(env.store, env.rules, env.dispatcher, time.Second)
	env.payment = NewPaymentService(env.store, env.rules)
	env.promo = NewPromoService(env.store, env.rules)
	env.admin = NewAdminService(env.store, env.rules, cfg)
	env.account = NewAccountService(env.store, env.rules, env.clock)
	env.ranking = NewRankingService(env.store)

	_, err := env.promo.SeedCatalogue(context.Background())
	require.NoError(t, err)
	return env
}

func (e *testEnv) mustAccount(t testing.TB, id int64) *model.Account {
	t.Helper()
	acc, err := e.store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return acc
}

func (e *testEnv) mustFund(t testing.TB) int64 {
	t.Helper()
	fund, err := e.store.FundBalance(context.Background())
	require.NoError(t, err)
	return fund
}

func (e *testEnv) setWins(t testing.TB, id, wins int64) {
	t.Helper()
	_, err := e.admin.SetAccountField(context.Background(), testAdminID, id, FieldRedeemableWins, wins)
	require.NoError(t, err)
}

func (e *testEnv) setFund(t testing.TB, balance int64) {
	t.Helper()
	require.NoError(t, e.admin.SetFundBalance(context.Background(), testAdminID, balance))
}

func configPromo(code string, wins int64, global bool) config.PromoCodeConfig {
	return config.PromoCodeConfig{Code: code, RewardWins: wins, GlobalOneTime: global}
}

func accountsIn(e *testEnv) []*model.Account {
	accounts, _ := e.store.ListAccounts(context.Background(), 1000)
	return accounts
}
