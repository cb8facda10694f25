package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"scare-cat-bot/internal/model"
	"scare-cat-bot/internal/pkg/lock"
)

type redemptionKey struct {
	accountID int64
	code      string
}

// Keys of the singleton rows in MemoryStore.rowLock.
const (
	fundRow int64 = iota
	promoRow
)

// MemoryStore is an in-process Store. Accounts are serialized with one KeyLock,
// the fund ledger and promo registry with another; every wait gives up when
// ctx is done. Mutations are staged and applied only when the unit succeeds.
type MemoryStore struct {
	accountLock *lock.KeyLock
	rowLock     *lock.KeyLock

	mu          sync.RWMutex // guards the maps below
	accounts    map[int64]*model.Account
	bans        map[int64]model.BanEntry
	fund        int64
	payments    map[string]model.PaymentRecord
	paymentSeq  []string
	promos      map[string]model.PromoCode
	redemptions map[redemptionKey]time.Time
	events      []model.LedgerEvent
	now         func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accountLock: lock.NewKeyLock(),
		rowLock:     lock.NewKeyLock(),
		accounts:    make(map[int64]*model.Account),
		bans:        make(map[int64]model.BanEntry),
		payments:    make(map[string]model.PaymentRecord),
		promos:      make(map[string]model.PromoCode),
		redemptions: make(map[redemptionKey]time.Time),
		now:         time.Now,
	}
}

// Atomically implements Store.
func (s *MemoryStore) Atomically(ctx context.Context, scope Scope, fn func(tx Tx) error) error {
	if scope.AccountID != model.FundAccountID {
		if err := s.accountLock.Lock(ctx, scope.AccountID); err != nil {
			return err
		}
		defer s.accountLock.Unlock(scope.AccountID)
	}
	if scope.Fund {
		if err := s.rowLock.Lock(ctx, fundRow); err != nil {
			return err
		}
		defer s.rowLock.Unlock(fundRow)
	}
	if scope.Promo {
		if err := s.rowLock.Lock(ctx, promoRow); err != nil {
			return err
		}
		defer s.rowLock.Unlock(promoRow)
	}

	tx := &memTx{store: s, scope: scope}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// memTx stages writes until commit.
type memTx struct {
	store *MemoryStore
	scope Scope

	account     *model.Account
	accountDirt bool
	ban         *model.BanEntry
	banLoaded   bool
	banDirty    bool
	fund        *int64
	payments    []model.PaymentRecord
	promoPuts   map[string]model.PromoCode
	promoDels   map[string]bool
	redemptions []string
	events      []model.LedgerEvent
}

func (tx *memTx) Account(ctx context.Context) (*model.Account, error) {
	if tx.scope.AccountID == model.FundAccountID {
		return nil, ErrOutOfScope
	}
	if tx.account == nil {
		tx.store.mu.RLock()
		acc, ok := tx.store.accounts[tx.scope.AccountID]
		tx.store.mu.RUnlock()
		if ok {
			tx.account = acc.Clone()
		} else {
			now := tx.store.now()
			tx.account = model.NewAccount(tx.scope.AccountID)
			tx.account.CreatedAt, tx.account.UpdatedAt = now, now
			tx.accountDirt = true
		}
	}
	return tx.account.Clone(), nil
}

func (tx *memTx) SaveAccount(ctx context.Context, acc *model.Account) error {
	if tx.scope.AccountID == model.FundAccountID || acc.ID != tx.scope.AccountID {
		return ErrOutOfScope
	}
	tx.account = acc.Clone()
	tx.account.UpdatedAt = tx.store.now()
	tx.accountDirt = true
	return nil
}

func (tx *memTx) Ban(ctx context.Context) (*model.BanEntry, error) {
	if tx.scope.AccountID == model.FundAccountID {
		return nil, ErrOutOfScope
	}
	if !tx.banLoaded {
		tx.store.mu.RLock()
		if b, ok := tx.store.bans[tx.scope.AccountID]; ok {
			tx.ban = &b
		}
		tx.store.mu.RUnlock()
		tx.banLoaded = true
	}
	if tx.ban == nil {
		return nil, nil
	}
	b := *tx.ban
	return &b, nil
}

func (tx *memTx) PutBan(ctx context.Context, ban model.BanEntry) error {
	if tx.scope.AccountID == model.FundAccountID || ban.AccountID != tx.scope.AccountID {
		return ErrOutOfScope
	}
	if ban.BannedAt.IsZero() {
		ban.BannedAt = tx.store.now()
	}
	tx.ban, tx.banLoaded, tx.banDirty = &ban, true, true
	return nil
}

func (tx *memTx) DeleteBan(ctx context.Context) (bool, error) {
	existing, err := tx.Ban(ctx)
	if err != nil {
		return false, err
	}
	tx.ban, tx.banDirty = nil, true
	return existing != nil, nil
}

func (tx *memTx) FundBalance(ctx context.Context) (int64, error) {
	if !tx.scope.Fund {
		return 0, ErrOutOfScope
	}
	if tx.fund != nil {
		return *tx.fund, nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	return tx.store.fund, nil
}

func (tx *memTx) SetFundBalance(ctx context.Context, balance int64) error {
	if !tx.scope.Fund {
		return ErrOutOfScope
	}
	tx.fund = &balance
	return nil
}

func (tx *memTx) PaymentApplied(ctx context.Context, identity string) (bool, error) {
	if !tx.scope.Fund {
		return false, ErrOutOfScope
	}
	for _, p := range tx.payments {
		if p.Identity == identity {
			return true, nil
		}
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	_, ok := tx.store.payments[identity]
	return ok, nil
}

func (tx *memTx) InsertPayment(ctx context.Context, rec model.PaymentRecord) error {
	applied, err := tx.PaymentApplied(ctx, rec.Identity)
	if err != nil {
		return err
	}
	if applied {
		return ErrDuplicatePayment
	}
	if rec.AppliedAt.IsZero() {
		rec.AppliedAt = tx.store.now()
	}
	tx.payments = append(tx.payments, rec)
	return nil
}

func (tx *memTx) Promo(ctx context.Context, code string) (*model.PromoCode, error) {
	if !tx.scope.Promo {
		return nil, ErrOutOfScope
	}
	if tx.promoDels[code] {
		return nil, ErrPromoNotFound
	}
	if p, ok := tx.promoPuts[code]; ok {
		return &p, nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	p, ok := tx.store.promos[code]
	if !ok {
		return nil, ErrPromoNotFound
	}
	return &p, nil
}

func (tx *memTx) PutPromo(ctx context.Context, promo model.PromoCode) error {
	if !tx.scope.Promo {
		return ErrOutOfScope
	}
	if tx.promoPuts == nil {
		tx.promoPuts = make(map[string]model.PromoCode)
	}
	tx.promoPuts[promo.Code] = promo
	delete(tx.promoDels, promo.Code)
	return nil
}

func (tx *memTx) DeletePromo(ctx context.Context, code string) (bool, error) {
	_, err := tx.Promo(ctx, code)
	if err == ErrPromoNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if tx.promoDels == nil {
		tx.promoDels = make(map[string]bool)
	}
	tx.promoDels[code] = true
	delete(tx.promoPuts, code)
	return true, nil
}

func (tx *memTx) Redeemed(ctx context.Context, code string) (bool, error) {
	if tx.scope.AccountID == model.FundAccountID {
		return false, ErrOutOfScope
	}
	for _, c := range tx.redemptions {
		if c == code {
			return true, nil
		}
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	_, ok := tx.store.redemptions[redemptionKey{tx.scope.AccountID, code}]
	return ok, nil
}

func (tx *memTx) InsertRedemption(ctx context.Context, code string) error {
	done, err := tx.Redeemed(ctx, code)
	if err != nil {
		return err
	}
	if done {
		return ErrDuplicateRedemption
	}
	tx.redemptions = append(tx.redemptions, code)
	return nil
}

func (tx *memTx) AppendEvent(ctx context.Context, ev model.LedgerEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = tx.store.now()
	}
	tx.events = append(tx.events, ev)
	return nil
}

func (tx *memTx) commit() {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.accountDirt {
		s.accounts[tx.account.ID] = tx.account.Clone()
	}
	if tx.banDirty {
		if tx.ban == nil {
			delete(s.bans, tx.scope.AccountID)
		} else {
			s.bans[tx.scope.AccountID] = *tx.ban
		}
	}
	if tx.fund != nil {
		s.fund = *tx.fund
	}
	for _, p := range tx.payments {
		s.payments[p.Identity] = p
		s.paymentSeq = append(s.paymentSeq, p.Identity)
	}
	for code := range tx.promoDels {
		delete(s.promos, code)
	}
	for code, p := range tx.promoPuts {
		s.promos[code] = p
	}
	now := s.now()
	for _, code := range tx.redemptions {
		s.redemptions[redemptionKey{tx.scope.AccountID, code}] = now
	}
	s.events = append(s.events, tx.events...)
}

// GetAccount implements Store.
func (s *MemoryStore) GetAccount(ctx context.Context, accountID int64) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc.Clone(), nil
}

// GetBan implements Store.
func (s *MemoryStore) GetBan(ctx context.Context, accountID int64) (*model.BanEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bans[accountID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

// FundBalance implements Store.
func (s *MemoryStore) FundBalance(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fund, nil
}

// Events implements Store, newest first.
func (s *MemoryStore) Events(ctx context.Context, accountID int64, limit int) ([]model.LedgerEvent, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.LedgerEvent
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if s.events[i].AccountID == accountID {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

// ListAccounts implements Store, ordered by account id.
func (s *MemoryStore) ListAccounts(ctx context.Context, limit int) ([]*model.Account, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		out = append(out, acc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TopWinners implements Store.
func (s *MemoryStore) TopWinners(ctx context.Context, limit int) ([]*model.Account, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		if acc.LifetimeWins > 0 {
			out = append(out, acc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LifetimeWins != out[j].LifetimeWins {
			return out[i].LifetimeWins > out[j].LifetimeWins
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecentPayments implements Store, newest first.
func (s *MemoryStore) RecentPayments(ctx context.Context, limit int) ([]model.PaymentRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.PaymentRecord
	for i := len(s.paymentSeq) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.payments[s.paymentSeq[i]])
	}
	return out, nil
}

// ListPromos implements Store, ordered by code.
func (s *MemoryStore) ListPromos(ctx context.Context) ([]model.PromoCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PromoCode, 0, len(s.promos))
	for _, p := range s.promos {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// SeedPromos implements Store.
func (s *MemoryStore) SeedPromos(ctx context.Context, promos []model.PromoCode) (int, error) {
	if err := s.rowLock.Lock(ctx, promoRow); err != nil {
		return 0, err
	}
	defer s.rowLock.Unlock(promoRow)
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, p := range promos {
		if _, ok := s.promos[p.Code]; ok {
			continue
		}
		if p.GlobalOneTime && s.codeRedeemedLocked(p.Code) {
			continue
		}
		s.promos[p.Code] = p
		inserted++
	}
	return inserted, nil
}

func (s *MemoryStore) codeRedeemedLocked(code string) bool {
	for k := range s.redemptions {
		if k.code == code {
			return true
		}
	}
	return false
}
