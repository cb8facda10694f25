// Package bot connects the Telegram payment updates to the payment reconciler.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"scare-cat-bot/internal/service"
)

// Telegram drops a pre-checkout query that is not answered within 10 seconds.
const checkoutTimeout = 5 * time.Second

// Bot wraps the telebot instance with the ledger services it feeds.
type Bot struct {
	bot          *tele.Bot
	payments     *service.PaymentService
	accounts     *service.AccountService
	applyTimeout time.Duration
}

// NewTeleBot creates the telebot instance. An empty token yields an offline
// bot that can neither poll nor send, which keeps the ledger usable without Telegram.
func NewTeleBot(token string) (*tele.Bot, error) {
	pref := tele.Settings{
		Token:   token,
		Poller:  &tele.LongPoller{Timeout: 10 * time.Second},
		Offline: token == "",
	}
	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return teleBot, nil
}

// New registers the payment handlers on teleBot. applyTimeout bounds applying
// one successful payment and must exceed the gift dispatch timeout, since the
// payment may queue behind a redemption holding the fund ledger.
func New(teleBot *tele.Bot, payments *service.PaymentService, accounts *service.AccountService, applyTimeout time.Duration) *Bot {
	b := &Bot{bot: teleBot, payments: payments, accounts: accounts, applyTimeout: applyTimeout}
	b.registerMiddleware()
	b.registerHandlers()
	return b
}

func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(LoggingMiddleware())
}

func (b *Bot) registerHandlers() {
	b.bot.Handle(tele.OnCheckout, b.handleCheckout)
	b.bot.Handle(tele.OnPayment, b.handlePayment)
}

// handleCheckout answers pre-checkout queries. Only lock-free reads run here.
func (b *Bot) handleCheckout(c tele.Context) error {
	q := c.PreCheckoutQuery()
	if q == nil || q.Sender == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), checkoutTimeout)
	defer cancel()

	allowed, err := b.accounts.CheckAccess(ctx, q.Sender.ID)
	if err != nil {
		log.Error().Err(err).Int64("account_id", q.Sender.ID).Msg("Pre-checkout access check failed")
		return c.Accept("temporarily unavailable")
	}
	if reason := checkoutRejection(b.payments, q, allowed); reason != "" {
		log.Warn().
			Int64("account_id", q.Sender.ID).
			Str("payload", q.Payload).
			Str("currency", q.Currency).
			Int("total", q.Total).
			Str("reason", reason).
			Msg("Pre-checkout rejected")
		return c.Accept(reason)
	}
	return c.Accept()
}

// handlePayment applies a successful payment. Telegram may deliver the same
// update more than once; the charge id makes the second delivery a no-op.
func (b *Bot) handlePayment(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.Payment == nil || c.Sender() == nil {
		return nil
	}

	req := paymentRequest(c.Sender().ID, msg.Payment)

	ctx, cancel := context.WithTimeout(context.Background(), b.applyTimeout)
	defer cancel()

	res, err := b.payments.ApplyPayment(ctx, req)
	if err != nil {
		// Returning the error lets telebot log it; the charge id is in the log for manual replay.
		return fmt.Errorf("apply payment %s: %w", req.Identity, err)
	}
	if res.Outcome != service.PaymentApplied && res.Outcome != service.PaymentAlreadyApplied {
		log.Warn().
			Str("identity", req.Identity).
			Int64("account_id", req.AccountID).
			Str("outcome", string(res.Outcome)).
			Msg("Paid update was not applied")
	}
	return nil
}

// checkoutRejection returns the error text for a pre-checkout query, or "" to accept.
func checkoutRejection(payments *service.PaymentService, q *tele.PreCheckoutQuery, allowed bool) string {
	if !allowed {
		return "account suspended"
	}
	if q.Currency != payments.Currency() {
		return "unsupported currency"
	}
	if q.Total < 0 {
		return "invalid amount"
	}
	if _, err := payments.ParsePurpose(q.Payload); err != nil {
		if errors.Is(err, service.ErrAttemptsOutOfRange) {
			return "too many attempts in one purchase"
		}
		return "unknown purchase"
	}
	return ""
}

// paymentRequest maps a Telegram payment to a reconciler request. The
// Telegram charge id is the idempotency key.
func paymentRequest(accountID int64, p *tele.Payment) service.PaymentRequest {
	return service.PaymentRequest{
		Identity:  p.TelegramChargeID,
		AccountID: accountID,
		Amount:    int64(p.Total),
		Currency:  p.Currency,
		Payload:   p.Payload,
	}
}

// Start starts the bot polling.
func (b *Bot) Start() {
	log.Info().Msg("Starting payment intake...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping payment intake...")
	b.bot.Stop()
}
