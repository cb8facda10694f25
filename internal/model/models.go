// Package model defines the data models for the ledger.
package model

import (
	"strings"
	"time"
)

// Tier selects the quota ceiling and win probability of an account.
type Tier string

const (
	TierStandard Tier = "standard"
	TierElevated Tier = "elevated"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierStandard || t == TierElevated
}

// Account is the persisted per-user ledger record.
// A zero LastQuotaResetDate means the quota has never been reset.
type Account struct {
	ID                    int64     `db:"account_id" yaml:"account_id"`
	LifetimeWins          int64     `db:"lifetime_wins" yaml:"lifetime_wins"`
	RedeemableWins        int64     `db:"redeemable_wins" yaml:"redeemable_wins"`
	FulfilledRewardCount  int64     `db:"fulfilled_reward_count" yaml:"fulfilled_reward_count"`
	FreeAttemptsUsedToday int       `db:"free_attempts_used_today" yaml:"free_attempts_used_today"`
	PurchasedAttempts     int64     `db:"purchased_attempts" yaml:"purchased_attempts"`
	LastQuotaResetDate    time.Time `db:"last_quota_reset_date" yaml:"last_quota_reset_date"`
	Tier                  Tier      `db:"tier" yaml:"tier"`
	CreatedAt             time.Time `db:"created_at" yaml:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" yaml:"updated_at"`
}

// NewAccount returns the lazily created record for id: all counters zero, standard tier.
func NewAccount(id int64) *Account {
	return &Account{ID: id, Tier: TierStandard}
}

// Clone returns a copy of a.
func (a *Account) Clone() *Account {
	c := *a
	return &c
}

// PaymentRecord is the append-only journal entry proving a payment was applied.
type PaymentRecord struct {
	Identity       string    `db:"identity" yaml:"identity"`
	AccountID      int64     `db:"account_id" yaml:"account_id"`
	Amount         int64     `db:"amount" yaml:"amount"`
	CurrencyTag    string    `db:"currency_tag" yaml:"currency_tag"`
	PurposePayload string    `db:"purpose_payload" yaml:"purpose_payload"`
	AppliedAt      time.Time `db:"applied_at" yaml:"applied_at"`
}

// PromoCode is a catalogue entry.
type PromoCode struct {
	Code          string `db:"code"`
	RewardWins    int64  `db:"reward_wins"`
	GlobalOneTime bool   `db:"global_one_time"`
}

// CanonicalPromoCode trims and upper-cases a user supplied code.
func CanonicalPromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// PromoRedemption records that an account redeemed a code.
type PromoRedemption struct {
	AccountID  int64     `db:"account_id"`
	Code       string    `db:"code"`
	RedeemedAt time.Time `db:"redeemed_at"`
}

// BanEntry marks a suspended account.
type BanEntry struct {
	AccountID int64     `db:"account_id" yaml:"account_id"`
	Reason    string    `db:"reason" yaml:"reason"`
	BannedAt  time.Time `db:"banned_at" yaml:"banned_at"`
}

// LedgerEvent is one committed ledger mutation, written in the same atomic unit.
type LedgerEvent struct {
	ID        string    `db:"id" yaml:"id"`
	AccountID int64     `db:"account_id" yaml:"account_id"`
	Type      string    `db:"type" yaml:"type"`
	Delta     int64     `db:"delta" yaml:"delta"`
	Note      string    `db:"note" yaml:"note"`
	CreatedAt time.Time `db:"created_at" yaml:"created_at"`
}

// Ledger event types.
const (
	EventPlayWin  = "play_win"  // Attempt consumed, win recorded
	EventPlayLoss = "play_loss" // Attempt consumed, no win
	EventReward   = "reward"    // Redeemable wins converted into a dispatched gift
	EventPromo    = "promo"     // Promo code granted wins
	EventPayment  = "payment"   // External payment applied
	EventAdminSet = "admin_set" // Admin override of an account field
	EventBan      = "ban"
	EventUnban    = "unban"
	EventFundSet  = "fund_set" // Admin override of the fund balance
)

// FundAccountID is the account id recorded on events that only touch the fund ledger.
const FundAccountID int64 = 0

// RewardTier is a redeemable reward: what it costs the player in wins and the operator in fund credit.
type RewardTier struct {
	ID       string
	GiftID   string
	FundCost int64
	// WinsThreshold applies to standard accounts, WinsThresholdElevated to elevated ones.
	WinsThreshold         int64
	WinsThresholdElevated int64
}

// ThresholdFor returns the wins an account of tier t must spend.
func (r RewardTier) ThresholdFor(t Tier) int64 {
	if t == TierElevated && r.WinsThresholdElevated > 0 {
		return r.WinsThresholdElevated
	}
	return r.WinsThreshold
}
