// Package gift delivers reward gifts through the Telegram Bot API.
package gift

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"scare-cat-bot/internal/model"
)

// ErrDispatchDisabled is returned by Disabled for every gift.
var ErrDispatchDisabled = errors.New("gift dispatch disabled")

const sendGiftMethod = "sendGift"

// RawAPI is the subset of *telebot.Bot used to call Bot API methods
// telebot has no typed wrapper for.
type RawAPI interface {
	Raw(method string, payload interface{}) ([]byte, error)
}

// TelegramDispatcher sends gifts with sendGift. Sends are paced by a token
// bucket that callers drain with Throttle before they take any ledger lock.
type TelegramDispatcher struct {
	api     RawAPI
	limiter *rate.Limiter
}

// NewTelegramDispatcher creates a dispatcher allowing perSecond gifts with the given burst.
// A non-positive perSecond disables throttling.
func NewTelegramDispatcher(api RawAPI, perSecond float64, burst int) *TelegramDispatcher {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &TelegramDispatcher{api: api, limiter: rate.NewLimiter(limit, burst)}
}

// Throttle implements service.GiftThrottle. It blocks until one send is allowed.
func (d *TelegramDispatcher) Throttle(ctx context.Context) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("gift rate limit: %w", err)
	}
	return nil
}

// Dispatch implements service.GiftDispatcher. The API call itself is not
// cancellable; when ctx expires first the gift is reported as not delivered.
func (d *TelegramDispatcher) Dispatch(ctx context.Context, accountID int64, reward model.RewardTier) error {
	payload := map[string]string{
		"user_id": strconv.FormatInt(accountID, 10),
		"gift_id": reward.GiftID,
	}

	done := make(chan error, 1)
	go func() {
		_, err := d.api.Raw(sendGiftMethod, payload)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("sendGift %s to %d: %w", reward.ID, accountID, err)
		}
		log.Info().
			Int64("account_id", accountID).
			Str("reward", reward.ID).
			Str("gift_id", reward.GiftID).
			Msg("Gift sent")
		return nil
	case <-ctx.Done():
		log.Warn().
			Int64("account_id", accountID).
			Str("reward", reward.ID).
			Msg("sendGift did not answer before the deadline")
		return fmt.Errorf("sendGift %s to %d: %w", reward.ID, accountID, ctx.Err())
	}
}

// Disabled rejects every gift. It is used when no bot token is configured.
type Disabled struct{}

// Dispatch implements service.GiftDispatcher.
func (Disabled) Dispatch(ctx context.Context, accountID int64, reward model.RewardTier) error {
	return ErrDispatchDisabled
}
