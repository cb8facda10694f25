// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults applied when the corresponding setting is zero.
const (
	DefaultGiftTimeout  = 15 * time.Second
	DefaultApplyTimeout = 30 * time.Second
	DefaultMaxAttempts  = 10000
)

// Config holds all application configuration.
type Config struct {
	Bot        BotConfig         `mapstructure:"bot"`
	Database   DatabaseConfig    `mapstructure:"database"`
	Admin      AdminConfig       `mapstructure:"admin"`
	Log        LogConfig         `mapstructure:"log"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
	Clock      ClockConfig       `mapstructure:"clock"`
	Game       GameConfig        `mapstructure:"game"`
	Rewards    []RewardConfig    `mapstructure:"rewards"`
	Packs      map[int]int64     `mapstructure:"attempt_packs"`
	PromoCodes []PromoCodeConfig `mapstructure:"promo_codes"`
	Payments   PaymentsConfig    `mapstructure:"payments"`
	Session    SessionConfig     `mapstructure:"session"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
	// GiftsPerSecond limits outgoing sendGift calls.
	GiftsPerSecond float64 `mapstructure:"gifts_per_second"`
	GiftBurst      int     `mapstructure:"gift_burst"`
	// GiftTimeout bounds one sendGift call while the fund ledger is locked.
	GiftTimeout time.Duration `mapstructure:"gift_timeout"`
	// ApplyTimeout bounds applying one successful payment. It must exceed
	// GiftTimeout so a payment can outwait a redemption holding the fund.
	ApplyTimeout time.Duration `mapstructure:"apply_timeout"`
}

// GiftDeadline returns GiftTimeout or its default.
func (b *BotConfig) GiftDeadline() time.Duration {
	if b.GiftTimeout > 0 {
		return b.GiftTimeout
	}
	return DefaultGiftTimeout
}

// ApplyDeadline returns ApplyTimeout or its default.
func (b *BotConfig) ApplyDeadline() time.Duration {
	if b.ApplyTimeout > 0 {
		return b.ApplyTimeout
	}
	return DefaultApplyTimeout
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// LogConfig controls zerolog output. An empty File logs to stderr only.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// MetricsConfig holds the prometheus listener address. Empty disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// ClockConfig holds the timezone used to decide calendar days for quota resets.
type ClockConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// GameConfig holds per-tier play parameters.
type GameConfig struct {
	Tiers TiersConfig `mapstructure:"tiers"`
}

// TiersConfig holds the standard and elevated tier parameters.
type TiersConfig struct {
	Standard TierConfig `mapstructure:"standard"`
	Elevated TierConfig `mapstructure:"elevated"`
}

// TierConfig holds the daily quota ceiling and win probability of one tier.
type TierConfig struct {
	DailyQuota     int     `mapstructure:"daily_quota"`
	WinProbability float64 `mapstructure:"win_probability"`
}

// RewardConfig describes a redeemable reward tier.
type RewardConfig struct {
	ID                    string `mapstructure:"id"`
	GiftID                string `mapstructure:"gift_id"`
	FundCost              int64  `mapstructure:"fund_cost"`
	WinsThreshold         int64  `mapstructure:"wins_threshold"`
	WinsThresholdElevated int64  `mapstructure:"wins_threshold_elevated"`
}

// PromoCodeConfig describes a promo code seeded into the catalogue at startup.
type PromoCodeConfig struct {
	Code          string `mapstructure:"code"`
	RewardWins    int64  `mapstructure:"reward_wins"`
	GlobalOneTime bool   `mapstructure:"global_one_time"`
}

// PaymentsConfig holds payment related settings.
type PaymentsConfig struct {
	Currency      string `mapstructure:"currency"`
	ElevatedPrice int64  `mapstructure:"elevated_price"`
	// MaxAttempts caps the attempt count of one purchase.
	MaxAttempts int64 `mapstructure:"max_attempts"`
}

// SessionConfig bounds the pending-input state machine.
type SessionConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g., BOT_TOKEN, DATABASE_HOST, DATABASE_PORT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "scarecat")
	v.SetDefault("database.name", "scarecat")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("bot.gifts_per_second", 1.0)
	v.SetDefault("bot.gift_burst", 3)
	v.SetDefault("bot.gift_timeout", DefaultGiftTimeout.String())
	v.SetDefault("bot.apply_timeout", DefaultApplyTimeout.String())

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("clock.timezone", "Local")

	v.SetDefault("game.tiers.standard.daily_quota", 15)
	v.SetDefault("game.tiers.standard.win_probability", 0.27)
	v.SetDefault("game.tiers.elevated.daily_quota", 30)
	v.SetDefault("game.tiers.elevated.win_probability", 0.40)

	v.SetDefault("rewards", []map[string]any{
		{"id": "gift15", "gift_id": "5170233102089322756", "fund_cost": 15, "wins_threshold": 50, "wins_threshold_elevated": 40},
		{"id": "gift25", "gift_id": "5170250947678437525", "fund_cost": 25, "wins_threshold": 100, "wins_threshold_elevated": 85},
	})
	v.SetDefault("attempt_packs", map[string]any{"10": 5, "20": 8, "50": 13})
	v.SetDefault("promo_codes", []map[string]any{
		{"code": "FREE10", "reward_wins": 10},
		{"code": "BIGSTAR", "reward_wins": 25},
		{"code": "WELCOME", "reward_wins": 5},
	})

	v.SetDefault("payments.currency", "XTR")
	v.SetDefault("payments.elevated_price", 30)
	v.SetDefault("payments.max_attempts", DefaultMaxAttempts)

	v.SetDefault("session.ttl", "10m")
	v.SetDefault("session.max_entries", 10000)
}

// Validate checks the cross-field constraints between tiers and rewards.
func (c *Config) Validate() error {
	std, elev := c.Game.Tiers.Standard, c.Game.Tiers.Elevated
	if std.DailyQuota < 0 || elev.DailyQuota <= std.DailyQuota {
		return errors.New("elevated daily quota must exceed the standard daily quota")
	}
	for _, p := range []float64{std.WinProbability, elev.WinProbability} {
		if p < 0 || p > 1 {
			return fmt.Errorf("win probability %v out of range [0,1]", p)
		}
	}
	if elev.WinProbability <= std.WinProbability {
		return errors.New("elevated win probability must exceed the standard win probability")
	}

	seen := make(map[string]bool, len(c.Rewards))
	for _, r := range c.Rewards {
		if r.ID == "" || seen[r.ID] {
			return fmt.Errorf("reward tier id %q is empty or duplicated", r.ID)
		}
		seen[r.ID] = true
		if r.FundCost <= 0 || r.WinsThreshold <= 0 || r.WinsThresholdElevated < 0 {
			return fmt.Errorf("reward tier %q has non-positive cost or threshold", r.ID)
		}
	}

	for n, price := range c.Packs {
		if n <= 0 || price <= 0 {
			return fmt.Errorf("attempt pack %d has non-positive size or price", n)
		}
	}

	if c.Payments.MaxAttempts < 0 {
		return errors.New("payments.max_attempts must not be negative")
	}
	for n := range c.Packs {
		if c.Payments.MaxAttempts > 0 && int64(n) > c.Payments.MaxAttempts {
			return fmt.Errorf("attempt pack %d exceeds payments.max_attempts", n)
		}
	}
	if c.Bot.ApplyDeadline() <= c.Bot.GiftDeadline() {
		return fmt.Errorf("bot.apply_timeout %s must exceed bot.gift_timeout %s",
			c.Bot.ApplyDeadline(), c.Bot.GiftDeadline())
	}

	for _, p := range c.PromoCodes {
		if strings.TrimSpace(p.Code) == "" || p.RewardWins <= 0 {
			return fmt.Errorf("promo code %q needs a name and positive reward", p.Code)
		}
	}
	return nil
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// PackSizes returns the configured attempt pack sizes in ascending order.
func (c *Config) PackSizes() []int {
	sizes := make([]int, 0, len(c.Packs))
	for n := range c.Packs {
		sizes = append(sizes, n)
	}
	sort.Ints(sizes)
	return sizes
}

// Location resolves the configured timezone, falling back to time.Local.
func (c *ClockConfig) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
