// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"

	"scare-cat-bot/internal/model"
)

// Common errors for repository operations.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrPromoNotFound   = errors.New("promo code not found")
	// ErrOutOfScope is returned when a Tx touches a record its Scope did not lock.
	ErrOutOfScope = errors.New("record outside transaction scope")
	// ErrDuplicatePayment is returned by InsertPayment when the identity is already journaled.
	ErrDuplicatePayment = errors.New("payment identity already applied")
	// ErrDuplicateRedemption is returned by InsertRedemption when the pair already exists.
	ErrDuplicateRedemption = errors.New("promo already redeemed by account")
)

// Scope declares which records an atomic unit locks. Locks are always taken in
// the order account, fund ledger, promo registry, so scopes never deadlock.
type Scope struct {
	// AccountID is the account row to lock; model.FundAccountID means none.
	AccountID int64
	Fund      bool
	Promo     bool
}

// ForAccount returns a scope locking only the account row.
func ForAccount(accountID int64) Scope {
	return Scope{AccountID: accountID}
}

// Tx is the view of the store inside one atomic unit. All writes made through
// a Tx commit together when the function passed to Atomically returns nil and
// are discarded otherwise.
type Tx interface {
	// Account returns the locked account, creating it lazily on first reference.
	Account(ctx context.Context) (*model.Account, error)
	SaveAccount(ctx context.Context, acc *model.Account) error

	// Ban returns the ban entry of the scoped account or nil.
	Ban(ctx context.Context) (*model.BanEntry, error)
	PutBan(ctx context.Context, ban model.BanEntry) error
	DeleteBan(ctx context.Context) (bool, error)

	FundBalance(ctx context.Context) (int64, error)
	SetFundBalance(ctx context.Context, balance int64) error

	PaymentApplied(ctx context.Context, identity string) (bool, error)
	InsertPayment(ctx context.Context, rec model.PaymentRecord) error

	// Promo returns the locked catalogue entry or ErrPromoNotFound.
	Promo(ctx context.Context, code string) (*model.PromoCode, error)
	PutPromo(ctx context.Context, promo model.PromoCode) error
	DeletePromo(ctx context.Context, code string) (bool, error)
	Redeemed(ctx context.Context, code string) (bool, error)
	InsertRedemption(ctx context.Context, code string) error

	AppendEvent(ctx context.Context, ev model.LedgerEvent) error
}

// Store is the durable ledger backend.
type Store interface {
	// Atomically runs fn as a single committed unit holding the locks named by scope.
	// A non-nil error means nothing was committed.
	Atomically(ctx context.Context, scope Scope, fn func(tx Tx) error) error

	GetAccount(ctx context.Context, accountID int64) (*model.Account, error)
	GetBan(ctx context.Context, accountID int64) (*model.BanEntry, error)
	FundBalance(ctx context.Context) (int64, error)
	// List queries return no rows for a non-positive limit.
	Events(ctx context.Context, accountID int64, limit int) ([]model.LedgerEvent, error)
	ListAccounts(ctx context.Context, limit int) ([]*model.Account, error)
	// TopWinners returns accounts by lifetime wins descending, ties by id.
	TopWinners(ctx context.Context, limit int) ([]*model.Account, error)
	RecentPayments(ctx context.Context, limit int) ([]model.PaymentRecord, error)
	ListPromos(ctx context.Context) ([]model.PromoCode, error)

	// SeedPromos inserts catalogue entries that are missing, skipping global
	// one-time codes that were already redeemed. Returns the number inserted.
	SeedPromos(ctx context.Context, promos []model.PromoCode) (int, error)
}
