package service

import (
	"context"
	"errors"
	"fmt"

	"scare-cat-bot/internal/model"
	"scare-cat-bot/internal/pkg/clock"
	"scare-cat-bot/internal/repository"
)

const defaultHistoryLimit = 20

// Snapshot is a read-only view of an account as the UI renders it.
type Snapshot struct {
	Account *model.Account
	Banned  bool
	// BanReason is empty unless Banned.
	BanReason         string
	FreeAttemptsLeft  int64
	DailyQuota        int
	AttemptsRemaining int64
	FundBalance       int64
}

// AccountService answers read queries about accounts.
type AccountService struct {
	store repository.Store
	rules *Rules
	clock clock.Clock
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(store repository.Store, rules *Rules, clk clock.Clock) *AccountService {
	return &AccountService{store: store, rules: rules, clock: clk}
}

// Snapshot returns the account state with today's reset applied virtually.
// Unknown accounts are reported as fresh ones and are not created.
func (s *AccountService) Snapshot(ctx context.Context, accountID int64) (*Snapshot, error) {
	acc, err := s.store.GetAccount(ctx, accountID)
	if errors.Is(err, repository.ErrAccountNotFound) {
		acc = model.NewAccount(accountID)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	ban, err := s.store.GetBan(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ban: %w", err)
	}
	fund, err := s.store.FundBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get fund balance: %w", err)
	}

	resetQuota(acc, s.clock.Today())
	snap := &Snapshot{
		Account:          acc,
		FreeAttemptsLeft: s.rules.freeLeft(acc),
		DailyQuota:       s.rules.Ceiling(acc.Tier),
		FundBalance:      fund,
	}
	snap.AttemptsRemaining = snap.FreeAttemptsLeft + acc.PurchasedAttempts
	if ban != nil {
		snap.Banned = true
		snap.BanReason = ban.Reason
	}
	return snap, nil
}

// CheckAccess reports whether the account may use the engines.
func (s *AccountService) CheckAccess(ctx context.Context, accountID int64) (bool, error) {
	ban, err := s.store.GetBan(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("failed to check access: %w", err)
	}
	return ban == nil, nil
}

// History returns the newest journal entries of an account.
func (s *AccountService) History(ctx context.Context, accountID int64, limit int) ([]model.LedgerEvent, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	events, err := s.store.Events(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return events, nil
}
