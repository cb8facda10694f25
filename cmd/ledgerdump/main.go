// Package main prints a YAML snapshot of the ledger: accounts, the fund
// balance, the promo catalogue and the most recent payments.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"scare-cat-bot/internal/config"
	"scare-cat-bot/internal/model"
	"scare-cat-bot/internal/pkg/db"
	"scare-cat-bot/internal/pkg/logging"
	"scare-cat-bot/internal/repository"
)

type promoEntry struct {
	Code          string `yaml:"code"`
	RewardWins    int64  `yaml:"reward_wins"`
	GlobalOneTime bool   `yaml:"global_one_time"`
}

type dump struct {
	GeneratedAt time.Time             `yaml:"generated_at"`
	FundBalance int64                 `yaml:"fund_balance"`
	Accounts    []*model.Account      `yaml:"accounts"`
	Promos      []promoEntry          `yaml:"promo_codes"`
	Payments    []model.PaymentRecord `yaml:"recent_payments"`
}

func main() {
	configPath := flag.String("config", "config", "directory containing config.yaml")
	accounts := flag.Int("accounts", 100, "maximum number of accounts to print")
	payments := flag.Int("payments", 20, "number of recent payments to print")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	// Keep stdout clean for the YAML document.
	cfg.Log.Level = "warn"
	closer := logging.Setup(cfg.Log)
	defer closer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	d, err := collect(ctx, repository.NewPostgresStore(pool.Pool), *accounts, *payments)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read ledger")
	}
	if err := write(os.Stdout, d); err != nil {
		log.Fatal().Err(err).Msg("Failed to write dump")
	}
}

func collect(ctx context.Context, store repository.Store, accountLimit, paymentLimit int) (*dump, error) {
	fund, err := store.FundBalance(ctx)
	if err != nil {
		return nil, err
	}
	accounts, err := store.ListAccounts(ctx, accountLimit)
	if err != nil {
		return nil, err
	}
	promos, err := store.ListPromos(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := store.RecentPayments(ctx, paymentLimit)
	if err != nil {
		return nil, err
	}

	d := &dump{
		GeneratedAt: time.Now().UTC(),
		FundBalance: fund,
		Accounts:    accounts,
		Payments:    recent,
	}
	for _, p := range promos {
		d.Promos = append(d.Promos, promoEntry{Code: p.Code, RewardWins: p.RewardWins, GlobalOneTime: p.GlobalOneTime})
	}
	return d, nil
}

func write(w io.Writer, d *dump) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}
