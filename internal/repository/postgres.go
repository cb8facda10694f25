package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"scare-cat-bot/internal/model"
)

const accountColumns = `account_id, lifetime_wins, redeemable_wins, fulfilled_reward_count,
	free_attempts_used_today, purchased_attempts, last_quota_reset_date, tier, created_at, updated_at`

// PostgresStore persists the ledger in PostgreSQL. Each atomic unit is one
// transaction that row-locks the scoped account and the fund ledger up front.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// scanAccount reads one row selected with accountColumns.
func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		acc  model.Account
		date pgtype.Date
		tier string
	)
	err := row.Scan(
		&acc.ID,
		&acc.LifetimeWins,
		&acc.RedeemableWins,
		&acc.FulfilledRewardCount,
		&acc.FreeAttemptsUsedToday,
		&acc.PurchasedAttempts,
		&date,
		&tier,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if date.Valid {
		acc.LastQuotaResetDate = date.Time
	}
	acc.Tier = model.Tier(tier)
	return &acc, nil
}

func dateParam(t time.Time) pgtype.Date {
	return pgtype.Date{Time: t, Valid: !t.IsZero()}
}

// Atomically implements Store.
func (s *PostgresStore) Atomically(ctx context.Context, scope Scope, fn func(tx Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		ptx := &pgTx{tx: tx, scope: scope}

		if scope.AccountID != model.FundAccountID {
			if _, err := tx.Exec(ctx,
				`INSERT INTO accounts (account_id) VALUES ($1) ON CONFLICT (account_id) DO NOTHING`,
				scope.AccountID,
			); err != nil {
				return fmt.Errorf("failed to ensure account: %w", err)
			}
			acc, err := scanAccount(tx.QueryRow(ctx,
				`SELECT `+accountColumns+` FROM accounts WHERE account_id = $1 FOR UPDATE`,
				scope.AccountID,
			))
			if err != nil {
				return fmt.Errorf("failed to lock account: %w", err)
			}
			ptx.account = acc
		}

		if scope.Fund {
			var balance int64
			if err := tx.QueryRow(ctx,
				`SELECT balance FROM fund_ledger WHERE id = 1 FOR UPDATE`,
			).Scan(&balance); err != nil {
				return fmt.Errorf("failed to lock fund ledger: %w", err)
			}
			ptx.fund = balance
		}

		return fn(ptx)
	})
}

// pgTx implements Tx on top of a pgx transaction.
type pgTx struct {
	tx      pgx.Tx
	scope   Scope
	account *model.Account
	fund    int64
}

func (t *pgTx) Account(ctx context.Context) (*model.Account, error) {
	if t.account == nil {
		return nil, ErrOutOfScope
	}
	return t.account.Clone(), nil
}

func (t *pgTx) SaveAccount(ctx context.Context, acc *model.Account) error {
	if t.account == nil || acc.ID != t.scope.AccountID {
		return ErrOutOfScope
	}
	const query = `
		UPDATE accounts
		SET lifetime_wins = $2, redeemable_wins = $3, fulfilled_reward_count = $4,
			free_attempts_used_today = $5, purchased_attempts = $6,
			last_quota_reset_date = $7, tier = $8, updated_at = NOW()
		WHERE account_id = $1
		RETURNING ` + accountColumns

	saved, err := scanAccount(t.tx.QueryRow(ctx, query,
		acc.ID,
		acc.LifetimeWins,
		acc.RedeemableWins,
		acc.FulfilledRewardCount,
		acc.FreeAttemptsUsedToday,
		acc.PurchasedAttempts,
		dateParam(acc.LastQuotaResetDate),
		string(acc.Tier),
	))
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	t.account = saved
	return nil
}

func (t *pgTx) Ban(ctx context.Context) (*model.BanEntry, error) {
	if t.account == nil {
		return nil, ErrOutOfScope
	}
	var ban model.BanEntry
	err := t.tx.QueryRow(ctx,
		`SELECT account_id, reason, banned_at FROM bans WHERE account_id = $1`,
		t.scope.AccountID,
	).Scan(&ban.AccountID, &ban.Reason, &ban.BannedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ban: %w", err)
	}
	return &ban, nil
}

func (t *pgTx) PutBan(ctx context.Context, ban model.BanEntry) error {
	if t.account == nil || ban.AccountID != t.scope.AccountID {
		return ErrOutOfScope
	}
	const query = `
		INSERT INTO bans (account_id, reason, banned_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (account_id) DO UPDATE SET reason = EXCLUDED.reason
	`
	if _, err := t.tx.Exec(ctx, query, ban.AccountID, ban.Reason); err != nil {
		return fmt.Errorf("failed to put ban: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteBan(ctx context.Context) (bool, error) {
	if t.account == nil {
		return false, ErrOutOfScope
	}
	result, err := t.tx.Exec(ctx, `DELETE FROM bans WHERE account_id = $1`, t.scope.AccountID)
	if err != nil {
		return false, fmt.Errorf("failed to delete ban: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (t *pgTx) FundBalance(ctx context.Context) (int64, error) {
	if !t.scope.Fund {
		return 0, ErrOutOfScope
	}
	return t.fund, nil
}

func (t *pgTx) SetFundBalance(ctx context.Context, balance int64) error {
	if !t.scope.Fund {
		return ErrOutOfScope
	}
	if _, err := t.tx.Exec(ctx,
		`UPDATE fund_ledger SET balance = $1, updated_at = NOW() WHERE id = 1`, balance,
	); err != nil {
		return fmt.Errorf("failed to set fund balance: %w", err)
	}
	t.fund = balance
	return nil
}

func (t *pgTx) PaymentApplied(ctx context.Context, identity string) (bool, error) {
	if !t.scope.Fund {
		return false, ErrOutOfScope
	}
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM payments WHERE identity = $1)`, identity,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check payment: %w", err)
	}
	return exists, nil
}

func (t *pgTx) InsertPayment(ctx context.Context, rec model.PaymentRecord) error {
	if !t.scope.Fund {
		return ErrOutOfScope
	}
	const query = `
		INSERT INTO payments (identity, account_id, amount, currency_tag, purpose_payload, applied_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (identity) DO NOTHING
	`
	result, err := t.tx.Exec(ctx, query,
		rec.Identity, rec.AccountID, rec.Amount, rec.CurrencyTag, rec.PurposePayload)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrDuplicatePayment
	}
	return nil
}

func (t *pgTx) Promo(ctx context.Context, code string) (*model.PromoCode, error) {
	if !t.scope.Promo {
		return nil, ErrOutOfScope
	}
	var p model.PromoCode
	err := t.tx.QueryRow(ctx,
		`SELECT code, reward_wins, global_one_time FROM promo_codes WHERE code = $1 FOR UPDATE`, code,
	).Scan(&p.Code, &p.RewardWins, &p.GlobalOneTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPromoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get promo: %w", err)
	}
	return &p, nil
}

func (t *pgTx) PutPromo(ctx context.Context, promo model.PromoCode) error {
	if !t.scope.Promo {
		return ErrOutOfScope
	}
	const query = `
		INSERT INTO promo_codes (code, reward_wins, global_one_time)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE
		SET reward_wins = EXCLUDED.reward_wins, global_one_time = EXCLUDED.global_one_time
	`
	if _, err := t.tx.Exec(ctx, query, promo.Code, promo.RewardWins, promo.GlobalOneTime); err != nil {
		return fmt.Errorf("failed to put promo: %w", err)
	}
	return nil
}

func (t *pgTx) DeletePromo(ctx context.Context, code string) (bool, error) {
	if !t.scope.Promo {
		return false, ErrOutOfScope
	}
	result, err := t.tx.Exec(ctx, `DELETE FROM promo_codes WHERE code = $1`, code)
	if err != nil {
		return false, fmt.Errorf("failed to delete promo: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (t *pgTx) Redeemed(ctx context.Context, code string) (bool, error) {
	if t.account == nil {
		return false, ErrOutOfScope
	}
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM promo_redemptions WHERE account_id = $1 AND code = $2)`,
		t.scope.AccountID, code,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check redemption: %w", err)
	}
	return exists, nil
}

func (t *pgTx) InsertRedemption(ctx context.Context, code string) error {
	if t.account == nil {
		return ErrOutOfScope
	}
	result, err := t.tx.Exec(ctx, `
		INSERT INTO promo_redemptions (account_id, code, redeemed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (account_id, code) DO NOTHING
	`, t.scope.AccountID, code)
	if err != nil {
		return fmt.Errorf("failed to insert redemption: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrDuplicateRedemption
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, ev model.LedgerEvent) error {
	const query = `
		INSERT INTO ledger_events (id, account_id, type, delta, note, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	if _, err := t.tx.Exec(ctx, query, ev.ID, ev.AccountID, ev.Type, ev.Delta, ev.Note); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// GetAccount retrieves an account without locking it.
// Returns ErrAccountNotFound if the account was never referenced.
func (s *PostgresStore) GetAccount(ctx context.Context, accountID int64) (*model.Account, error) {
	acc, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_id = $1`, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}

// GetBan returns the ban entry for an account or nil.
func (s *PostgresStore) GetBan(ctx context.Context, accountID int64) (*model.BanEntry, error) {
	var ban model.BanEntry
	err := s.pool.QueryRow(ctx,
		`SELECT account_id, reason, banned_at FROM bans WHERE account_id = $1`, accountID,
	).Scan(&ban.AccountID, &ban.Reason, &ban.BannedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ban: %w", err)
	}
	return &ban, nil
}

// FundBalance returns the current fund ledger balance.
func (s *PostgresStore) FundBalance(ctx context.Context) (int64, error) {
	var balance int64
	if err := s.pool.QueryRow(ctx, `SELECT balance FROM fund_ledger WHERE id = 1`).Scan(&balance); err != nil {
		return 0, fmt.Errorf("failed to get fund balance: %w", err)
	}
	return balance, nil
}

// Events returns the newest ledger events of an account.
func (s *PostgresStore) Events(ctx context.Context, accountID int64, limit int) ([]model.LedgerEvent, error) {
	if limit <= 0 {
		return nil, nil
	}
	const query = `
		SELECT id, account_id, type, delta, note, created_at
		FROM ledger_events
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []model.LedgerEvent
	for rows.Next() {
		var ev model.LedgerEvent
		if err := rows.Scan(&ev.ID, &ev.AccountID, &ev.Type, &ev.Delta, &ev.Note, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// ListAccounts returns up to limit accounts ordered by id.
func (s *PostgresStore) ListAccounts(ctx context.Context, limit int) ([]*model.Account, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY account_id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*model.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// TopWinners returns accounts with at least one win, best first.
func (s *PostgresStore) TopWinners(ctx context.Context, limit int) ([]*model.Account, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE lifetime_wins > 0
		ORDER BY lifetime_wins DESC, account_id ASC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top winners: %w", err)
	}
	defer rows.Close()

	var accounts []*model.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top winners: %w", err)
	}
	return accounts, nil
}

// RecentPayments returns the newest payment journal entries.
func (s *PostgresStore) RecentPayments(ctx context.Context, limit int) ([]model.PaymentRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	const query = `
		SELECT identity, account_id, amount, currency_tag, purpose_payload, applied_at
		FROM payments
		ORDER BY applied_at DESC, identity DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []model.PaymentRecord
	for rows.Next() {
		var p model.PaymentRecord
		if err := rows.Scan(&p.Identity, &p.AccountID, &p.Amount, &p.CurrencyTag, &p.PurposePayload, &p.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}

// ListPromos returns the promo catalogue ordered by code.
func (s *PostgresStore) ListPromos(ctx context.Context) ([]model.PromoCode, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT code, reward_wins, global_one_time FROM promo_codes ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list promos: %w", err)
	}
	defer rows.Close()

	var promos []model.PromoCode
	for rows.Next() {
		var p model.PromoCode
		if err := rows.Scan(&p.Code, &p.RewardWins, &p.GlobalOneTime); err != nil {
			return nil, fmt.Errorf("failed to scan promo: %w", err)
		}
		promos = append(promos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating promos: %w", err)
	}
	return promos, nil
}

// SeedPromos implements Store.
func (s *PostgresStore) SeedPromos(ctx context.Context, promos []model.PromoCode) (int, error) {
	const query = `
		INSERT INTO promo_codes (code, reward_wins, global_one_time)
		SELECT $1::text, $2::bigint, $3::boolean
		WHERE NOT ($3::boolean AND EXISTS (SELECT 1 FROM promo_redemptions WHERE code = $1::text))
		ON CONFLICT (code) DO NOTHING
	`
	inserted := 0
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, p := range promos {
			result, err := tx.Exec(ctx, query, p.Code, p.RewardWins, p.GlobalOneTime)
			if err != nil {
				return fmt.Errorf("failed to seed promo %s: %w", p.Code, err)
			}
			inserted += int(result.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
