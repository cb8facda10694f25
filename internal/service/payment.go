package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"scare-cat-bot/internal/model"
	"scare-cat-bot/internal/obs"
	"scare-cat-bot/internal/repository"
)

// Payment purpose payload tags.
const (
	PurposeAttemptsPrefix = "attempts_"
	PurposeCreditFund     = "credit-fund"
	PurposeElevate        = "vip"
)

// PaymentOutcome discriminates the result of ApplyPayment.
type PaymentOutcome string

const (
	PaymentApplied        PaymentOutcome = "applied"
	PaymentAlreadyApplied PaymentOutcome = "already_applied"
	PaymentUnknownPurpose PaymentOutcome = "unknown_purpose"
	PaymentInvalid        PaymentOutcome = "invalid"
	PaymentBanned         PaymentOutcome = "banned"
)

// Purpose and quote errors.
var (
	ErrInvalidAttemptCount = errors.New("attempt count must be positive")
	ErrAttemptsOutOfRange  = errors.New("attempt count above the purchase limit")
	ErrUnknownPurpose      = errors.New("unknown payment purpose")
)

// PaymentRequest is a confirmed external payment.
type PaymentRequest struct {
	// Identity is the external idempotency key, e.g. the platform charge id.
	Identity  string
	AccountID int64
	Amount    int64
	Currency  string
	Payload   string
}

// PaymentEffect summarizes what an applied payment credited.
type PaymentEffect struct {
	AttemptsCredited int64
	FundCredited     int64
	Elevated         bool
}

// PaymentResult is returned by ApplyPayment.
type PaymentResult struct {
	Outcome PaymentOutcome
	Effect  PaymentEffect
}

// Purpose is a parsed purpose payload.
type Purpose struct {
	Attempts int64
	Elevate  bool
}

// ParsePurpose maps a payload tag to its effect on the account. Every known
// purpose also credits the fund ledger with the paid amount. Attempt counts
// above maxAttempts fail with ErrAttemptsOutOfRange; unrecognised payloads
// with ErrUnknownPurpose.
func ParsePurpose(payload string, maxAttempts int64) (Purpose, error) {
	switch {
	case payload == PurposeCreditFund:
		return Purpose{}, nil
	case payload == PurposeElevate:
		return Purpose{Elevate: true}, nil
	case strings.HasPrefix(payload, PurposeAttemptsPrefix):
		n, err := strconv.ParseInt(strings.TrimPrefix(payload, PurposeAttemptsPrefix), 10, 64)
		if errors.Is(err, strconv.ErrRange) {
			return Purpose{}, ErrAttemptsOutOfRange
		}
		if err != nil || n <= 0 {
			return Purpose{}, ErrUnknownPurpose
		}
		if n > maxAttempts {
			return Purpose{}, ErrAttemptsOutOfRange
		}
		return Purpose{Attempts: n}, nil
	default:
		return Purpose{}, ErrUnknownPurpose
	}
}

// Invoice is what the UI needs to request a payment for attempts.
type Invoice struct {
	Attempts int64
	Price    int64
	Currency string
	Payload  string
}

// PaymentService applies confirmed payments exactly once per identity.
type PaymentService struct {
	store repository.Store
	rules *Rules
}

// NewPaymentService creates a new PaymentService instance.
func NewPaymentService(store repository.Store, rules *Rules) *PaymentService {
	return &PaymentService{store: store, rules: rules}
}

// ParsePurpose parses payload against the configured purchase limit.
func (s *PaymentService) ParsePurpose(payload string) (Purpose, error) {
	return ParsePurpose(payload, s.rules.maxAttempts)
}

// Currency is the currency tag invoices are issued in.
func (s *PaymentService) Currency() string {
	return s.rules.currency
}

// Packs returns invoices for the configured attempt packs, smallest first.
func (s *PaymentService) Packs() []Invoice {
	out := make([]Invoice, 0, len(s.rules.packSizes))
	for _, n := range s.rules.packSizes {
		out = append(out, s.invoice(int64(n), s.rules.packs[n]))
	}
	return out
}

// QuoteAttempts prices n attempts. Exact pack sizes use the pack price; other
// counts use the cheapest per-attempt pack rate, rounded up.
func (s *PaymentService) QuoteAttempts(n int64) (Invoice, error) {
	if n <= 0 {
		return Invoice{}, ErrInvalidAttemptCount
	}
	if n > s.rules.maxAttempts {
		return Invoice{}, ErrAttemptsOutOfRange
	}
	if price, ok := s.rules.packs[int(n)]; ok {
		return s.invoice(n, price), nil
	}
	if len(s.rules.packSizes) == 0 {
		return Invoice{}, ErrInvalidAttemptCount
	}

	// Cheapest rate as price/size, compared by cross-multiplication.
	bestSize, bestPrice := int64(s.rules.packSizes[0]), s.rules.packs[s.rules.packSizes[0]]
	for _, size := range s.rules.packSizes[1:] {
		price := s.rules.packs[size]
		if price*bestSize < bestPrice*int64(size) {
			bestSize, bestPrice = int64(size), price
		}
	}
	if bestPrice > (math.MaxInt64-bestSize)/n {
		return Invoice{}, ErrAttemptsOutOfRange
	}
	price := (n*bestPrice + bestSize - 1) / bestSize
	return s.invoice(n, price), nil
}

// QuoteElevation returns the invoice for upgrading to the elevated tier.
func (s *PaymentService) QuoteElevation() Invoice {
	return Invoice{Price: s.rules.elevatedPrice, Currency: s.rules.currency, Payload: PurposeElevate}
}

func (s *PaymentService) invoice(n, price int64) Invoice {
	return Invoice{
		Attempts: n,
		Price:    price,
		Currency: s.rules.currency,
		Payload:  PurposeAttemptsPrefix + strconv.FormatInt(n, 10),
	}
}

// ApplyPayment credits the effect of a confirmed payment and journals its
// identity in the same atomic unit. Repeated identities are a no-op.
func (s *PaymentService) ApplyPayment(ctx context.Context, req PaymentRequest) (res PaymentResult, err error) {
	started := time.Now()
	defer func() { obs.ObserveOperation("apply_payment", string(res.Outcome), err, started) }()

	if req.Identity == "" || req.Amount < 0 {
		return PaymentResult{Outcome: PaymentInvalid}, nil
	}
	purpose, perr := s.ParsePurpose(req.Payload)
	if perr != nil {
		outcome := PaymentUnknownPurpose
		if errors.Is(perr, ErrAttemptsOutOfRange) {
			outcome = PaymentInvalid
		}
		log.Warn().
			Err(perr).
			Str("identity", req.Identity).
			Int64("account_id", req.AccountID).
			Str("payload", req.Payload).
			Msg("Payment ignored")
		return PaymentResult{Outcome: outcome}, nil
	}
	currency := req.Currency
	if currency == "" {
		currency = s.rules.currency
	}

	scope := repository.Scope{AccountID: req.AccountID, Fund: true}
	err = s.store.Atomically(ctx, scope, func(tx repository.Tx) error {
		res = PaymentResult{}

		ban, err := tx.Ban(ctx)
		if err != nil {
			return err
		}
		if ban != nil {
			res.Outcome = PaymentBanned
			return nil
		}

		applied, err := tx.PaymentApplied(ctx, req.Identity)
		if err != nil {
			return err
		}
		if applied {
			res.Outcome = PaymentAlreadyApplied
			return nil
		}

		acc, err := tx.Account(ctx)
		if err != nil {
			return err
		}
		fund, err := tx.FundBalance(ctx)
		if err != nil {
			return err
		}
		if acc.PurchasedAttempts > math.MaxInt64-purpose.Attempts || fund > math.MaxInt64-req.Amount {
			log.Warn().
				Str("identity", req.Identity).
				Int64("account_id", req.AccountID).
				Int64("purchased_attempts", acc.PurchasedAttempts).
				Int64("fund", fund).
				Msg("Payment would overflow a balance, not applied")
			res.Outcome = PaymentInvalid
			return nil
		}

		if purpose.Attempts > 0 || purpose.Elevate {
			acc.PurchasedAttempts += purpose.Attempts
			if purpose.Elevate {
				acc.Tier = model.TierElevated
				s.rules.clampFree(acc)
			}
			if err := tx.SaveAccount(ctx, acc); err != nil {
				return err
			}
		}

		if err := tx.SetFundBalance(ctx, fund+req.Amount); err != nil {
			return err
		}

		if err := tx.InsertPayment(ctx, model.PaymentRecord{
			Identity:       req.Identity,
			AccountID:      req.AccountID,
			Amount:         req.Amount,
			CurrencyTag:    currency,
			PurposePayload: req.Payload,
		}); err != nil {
			return err
		}
		if err := appendEvent(ctx, tx, req.AccountID, model.EventPayment, req.Amount, req.Payload); err != nil {
			return err
		}

		res.Outcome = PaymentApplied
		res.Effect = PaymentEffect{
			AttemptsCredited: purpose.Attempts,
			FundCredited:     req.Amount,
			Elevated:         purpose.Elevate,
		}
		return nil
	})
	if errors.Is(err, repository.ErrDuplicatePayment) {
		// Lost a race on the journal insert; the other delivery applied it.
		return PaymentResult{Outcome: PaymentAlreadyApplied}, nil
	}
	if err != nil {
		log.Error().Err(err).Str("identity", req.Identity).Int64("account_id", req.AccountID).Msg("Payment apply failed")
		return PaymentResult{}, fmt.Errorf("failed to apply payment: %w", err)
	}

	log.Info().
		Str("identity", req.Identity).
		Int64("account_id", req.AccountID).
		Int64("amount", req.Amount).
		Str("payload", req.Payload).
		Str("outcome", string(res.Outcome)).
		Msg("Payment reconciled")

	return res, nil
}
