package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// migrations are applied in order; each statement is idempotent.
var migrations = []struct {
	name string
	sql  string
}{
	{"accounts table", `
		CREATE TABLE IF NOT EXISTS accounts (
			account_id BIGINT PRIMARY KEY,
			lifetime_wins BIGINT NOT NULL DEFAULT 0 CHECK (lifetime_wins >= 0),
			redeemable_wins BIGINT NOT NULL DEFAULT 0 CHECK (redeemable_wins >= 0),
			fulfilled_reward_count BIGINT NOT NULL DEFAULT 0 CHECK (fulfilled_reward_count >= 0),
			free_attempts_used_today INT NOT NULL DEFAULT 0 CHECK (free_attempts_used_today >= 0),
			purchased_attempts BIGINT NOT NULL DEFAULT 0 CHECK (purchased_attempts >= 0),
			last_quota_reset_date DATE,
			tier VARCHAR(16) NOT NULL DEFAULT 'standard',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_accounts_lifetime_wins ON accounts(lifetime_wins DESC);
	`},
	{"fund ledger", `
		CREATE TABLE IF NOT EXISTS fund_ledger (
			id SMALLINT PRIMARY KEY CHECK (id = 1),
			balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		INSERT INTO fund_ledger (id, balance) VALUES (1, 0) ON CONFLICT (id) DO NOTHING;
	`},
	{"payment journal", `
		CREATE TABLE IF NOT EXISTS payments (
			identity TEXT PRIMARY KEY,
			account_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			currency_tag VARCHAR(16) NOT NULL,
			purpose_payload TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_payments_applied ON payments(applied_at DESC);
	`},
	{"promo registry", `
		CREATE TABLE IF NOT EXISTS promo_codes (
			code TEXT PRIMARY KEY,
			reward_wins BIGINT NOT NULL CHECK (reward_wins > 0),
			global_one_time BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE TABLE IF NOT EXISTS promo_redemptions (
			account_id BIGINT NOT NULL,
			code TEXT NOT NULL,
			redeemed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (account_id, code)
		);
		CREATE INDEX IF NOT EXISTS idx_promo_redemptions_code ON promo_redemptions(code);
	`},
	{"ban list", `
		CREATE TABLE IF NOT EXISTS bans (
			account_id BIGINT PRIMARY KEY,
			reason TEXT NOT NULL DEFAULT '',
			banned_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`},
	{"ledger events", `
		CREATE TABLE IF NOT EXISTS ledger_events (
			id CHAR(26) PRIMARY KEY,
			account_id BIGINT NOT NULL,
			type VARCHAR(32) NOT NULL,
			delta BIGINT NOT NULL DEFAULT 0,
			note TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_events_account ON ledger_events(account_id, id DESC);
	`},
}

// Migrate applies the ledger schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations...")
	for i, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d (%s): %w", i+1, m.name, err)
		}
		log.Info().Int("step", i+1).Str("name", m.name).Msg("Migration applied")
	}
	log.Info().Msg("All migrations completed successfully")
	return nil
}
