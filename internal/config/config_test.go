package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.Game.Tiers.Standard.DailyQuota)
	assert.Equal(t, 30, cfg.Game.Tiers.Elevated.DailyQuota)
	assert.InDelta(t, 0.27, cfg.Game.Tiers.Standard.WinProbability, 1e-9)
	assert.InDelta(t, 0.40, cfg.Game.Tiers.Elevated.WinProbability, 1e-9)

	require.Len(t, cfg.Rewards, 2)
	assert.Equal(t, "gift15", cfg.Rewards[0].ID)
	assert.Equal(t, int64(15), cfg.Rewards[0].FundCost)
	assert.Equal(t, int64(50), cfg.Rewards[0].WinsThreshold)
	assert.Equal(t, int64(40), cfg.Rewards[0].WinsThresholdElevated)
	assert.Equal(t, "gift25", cfg.Rewards[1].ID)
	assert.Equal(t, int64(85), cfg.Rewards[1].WinsThresholdElevated)

	assert.Equal(t, map[int]int64{10: 5, 20: 8, 50: 13}, cfg.Packs)
	assert.Equal(t, []int{10, 20, 50}, cfg.PackSizes())

	require.Len(t, cfg.PromoCodes, 3)
	assert.Equal(t, "FREE10", cfg.PromoCodes[0].Code)
	assert.Equal(t, int64(10), cfg.PromoCodes[0].RewardWins)

	assert.Equal(t, "XTR", cfg.Payments.Currency)
	assert.Equal(t, int64(30), cfg.Payments.ElevatedPrice)
	assert.Equal(t, int64(DefaultMaxAttempts), cfg.Payments.MaxAttempts)
	assert.Equal(t, 15*time.Second, cfg.Bot.GiftDeadline())
	assert.Equal(t, 30*time.Second, cfg.Bot.ApplyDeadline())
	assert.Equal(t, 10*time.Minute, cfg.Session.TTL)
	assert.Equal(t, 20, cfg.Database.PoolSize)
}

func TestLoad_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	body := `
admin:
  ids: [42, 7]
game:
  tiers:
    standard:
      daily_quota: 10
    elevated:
      daily_quota: 20
      win_probability: 0.5
clock:
  timezone: UTC
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Game.Tiers.Standard.DailyQuota)
	assert.Equal(t, 20, cfg.Game.Tiers.Elevated.DailyQuota)
	assert.InDelta(t, 0.27, cfg.Game.Tiers.Standard.WinProbability, 1e-9)
	assert.InDelta(t, 0.5, cfg.Game.Tiers.Elevated.WinProbability, 1e-9)
	assert.True(t, cfg.IsAdmin(42))
	assert.False(t, cfg.IsAdmin(43))
	assert.Equal(t, time.UTC, cfg.Clock.Location())
}

func TestLoad_RejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	body := `
game:
  tiers:
    elevated:
      daily_quota: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func validConfig() *Config {
	return &Config{
		Game: GameConfig{Tiers: TiersConfig{
			Standard: TierConfig{DailyQuota: 15, WinProbability: 0.27},
			Elevated: TierConfig{DailyQuota: 30, WinProbability: 0.40},
		}},
		Rewards: []RewardConfig{
			{ID: "gift15", FundCost: 15, WinsThreshold: 50, WinsThresholdElevated: 40},
		},
		Packs:      map[int]int64{10: 5},
		PromoCodes: []PromoCodeConfig{{Code: "WELCOME", RewardWins: 5}},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"elevated quota not above standard", func(c *Config) { c.Game.Tiers.Elevated.DailyQuota = 15 }},
		{"probability above one", func(c *Config) { c.Game.Tiers.Elevated.WinProbability = 1.5 }},
		{"elevated probability not above standard", func(c *Config) { c.Game.Tiers.Elevated.WinProbability = 0.2 }},
		{"duplicate reward id", func(c *Config) { c.Rewards = append(c.Rewards, c.Rewards[0]) }},
		{"zero fund cost", func(c *Config) { c.Rewards[0].FundCost = 0 }},
		{"non-positive pack price", func(c *Config) { c.Packs[20] = 0 }},
		{"blank promo code", func(c *Config) { c.PromoCodes[0].Code = "  " }},
		{"zero promo reward", func(c *Config) { c.PromoCodes[0].RewardWins = 0 }},
		{"negative attempt cap", func(c *Config) { c.Payments.MaxAttempts = -1 }},
		{"pack above attempt cap", func(c *Config) { c.Payments.MaxAttempts = 5 }},
		{"apply timeout not above gift timeout", func(c *Config) {
			c.Bot.GiftTimeout = 20 * time.Second
			c.Bot.ApplyTimeout = 20 * time.Second
		}},
		{"default apply timeout below gift timeout", func(c *Config) { c.Bot.GiftTimeout = time.Minute }},
	}

	require.NoError(t, validConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestClockLocation_FallsBackToLocal(t *testing.T) {
	assert.Equal(t, time.Local, (&ClockConfig{}).Location())
	assert.Equal(t, time.Local, (&ClockConfig{Timezone: "Not/AZone"}).Location())
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "ledger"}
	assert.Equal(t, "postgres://u:p@db:5433/ledger?sslmode=disable", d.DSN())
}

// TestIsAdminProperty checks IsAdmin against membership in the configured list.
func TestIsAdminProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		adminIDs := rapid.SliceOfN(rapid.Int64Range(1, 1000000000), 1, 10).Draw(t, "adminIDs")
		cfg := &Config{Admin: AdminConfig{IDs: adminIDs}}

		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")
		if got, want := cfg.IsAdmin(userID), slices.Contains(adminIDs, userID); got != want {
			t.Fatalf("IsAdmin(%d) = %v with admins %v, want %v", userID, got, adminIDs, want)
		}

		known := adminIDs[rapid.IntRange(0, len(adminIDs)-1).Draw(t, "adminIndex")]
		if !cfg.IsAdmin(known) {
			t.Fatalf("configured admin %d not recognized", known)
		}
	})
}
