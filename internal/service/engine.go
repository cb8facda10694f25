package service

import (
	"scare-cat-bot/internal/config"
	"scare-cat-bot/internal/pkg/clock"
	"scare-cat-bot/internal/repository"
	"scare-cat-bot/internal/session"
)

// Engine bundles the ledger engines over one store. A chat front end holds
// one Engine and calls into it; the engines share no state besides the store.
type Engine struct {
	Rules    *Rules
	Play     *PlayService
	Reward   *RewardService
	Payment  *PaymentService
	Promo    *PromoService
	Admin    *AdminService
	Account  *AccountService
	Ranking  *RankingService
	Sessions *session.Manager
}

// NewEngine wires every engine to store. A nil roll uses math/rand/v2.
func NewEngine(cfg *config.Config, store repository.Store, clk clock.Clock, dispatcher GiftDispatcher, roll RollFunc) *Engine {
	rules := NewRules(cfg)
	return &Engine{
		Rules:    rules,
		Play:     NewPlayService(store, rules, clk, roll),
		Reward:   NewRewardService(store, rules, dispatcher, cfg.Bot.GiftDeadline()),
		Payment:  NewPaymentService(store, rules),
		Promo:    NewPromoService(store, rules),
		Admin:    NewAdminService(store, rules, cfg),
		Account:  NewAccountService(store, rules, clk),
		Ranking:  NewRankingService(store),
		Sessions: session.NewManager(cfg.Session.TTL, cfg.Session.MaxEntries),
	}
}
