package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v3"

	"scare-cat-bot/internal/config"
	"scare-cat-bot/internal/service"
)

func TestCheckoutRejection(t *testing.T) {
	cfg := &config.Config{Payments: config.PaymentsConfig{Currency: "XTR", MaxAttempts: 100}}
	payments := service.NewPaymentService(nil, service.NewRules(cfg))

	tests := []struct {
		name    string
		query   tele.PreCheckoutQuery
		allowed bool
		want    string
	}{
		{"attempt pack", tele.PreCheckoutQuery{Payload: "attempts_10", Currency: "XTR", Total: 5}, true, ""},
		{"elevation", tele.PreCheckoutQuery{Payload: "vip", Currency: "XTR", Total: 30}, true, ""},
		{"fund credit", tele.PreCheckoutQuery{Payload: "credit-fund", Currency: "XTR", Total: 0}, true, ""},
		{"banned", tele.PreCheckoutQuery{Payload: "attempts_10", Currency: "XTR", Total: 5}, false, "account suspended"},
		{"unknown purpose", tele.PreCheckoutQuery{Payload: "mystery_box", Currency: "XTR", Total: 5}, true, "unknown purchase"},
		{"empty count", tele.PreCheckoutQuery{Payload: "attempts_", Currency: "XTR", Total: 5}, true, "unknown purchase"},
		{"count above limit", tele.PreCheckoutQuery{Payload: "attempts_101", Currency: "XTR", Total: 5}, true, "too many attempts in one purchase"},
		{"other currency", tele.PreCheckoutQuery{Payload: "attempts_10", Currency: "USD", Total: 5}, true, "unsupported currency"},
		{"negative amount", tele.PreCheckoutQuery{Payload: "attempts_10", Currency: "XTR", Total: -1}, true, "invalid amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkoutRejection(payments, &tt.query, tt.allowed))
		})
	}
}

func TestPaymentRequest(t *testing.T) {
	p := &tele.Payment{
		Currency:         "XTR",
		Total:            13,
		Payload:          "attempts_50",
		TelegramChargeID: "stxAbC123",
	}

	assert.Equal(t, service.PaymentRequest{
		Identity:  "stxAbC123",
		AccountID: 777,
		Amount:    13,
		Currency:  "XTR",
		Payload:   "attempts_50",
	}, paymentRequest(777, p))
}
