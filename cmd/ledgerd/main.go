// Package main runs the account ledger: PostgreSQL-backed engines, the
// Telegram payment intake and gift dispatch, and the metrics endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"scare-cat-bot/internal/bot"
	"scare-cat-bot/internal/config"
	"scare-cat-bot/internal/gift"
	"scare-cat-bot/internal/obs"
	"scare-cat-bot/internal/pkg/clock"
	"scare-cat-bot/internal/pkg/db"
	"scare-cat-bot/internal/pkg/logging"
	"scare-cat-bot/internal/repository"
	"scare-cat-bot/internal/service"
)

func main() {
	configPath := flag.String("config", "config", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logging is not configured yet; the zerolog default still prints this.
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	closer := logging.Setup(cfg.Log)
	defer closer.Close()

	log.Info().Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := db.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	store := repository.NewPostgresStore(dbPool.Pool)
	clk := clock.NewSystem(cfg.Clock.Location())

	teleBot, err := bot.NewTeleBot(cfg.Bot.Token)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Telegram client")
	}

	var dispatcher service.GiftDispatcher = gift.Disabled{}
	if cfg.Bot.Token != "" {
		dispatcher = gift.NewTelegramDispatcher(teleBot, cfg.Bot.GiftsPerSecond, cfg.Bot.GiftBurst)
	} else {
		log.Warn().Msg("No bot token configured, gift dispatch and payment intake are disabled")
	}

	engine := service.NewEngine(cfg, store, clk, dispatcher, nil)

	seeded, err := engine.Promo.SeedCatalogue(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed promo catalogue")
	}
	log.Info().Int("seeded", seeded).Msg("Promo catalogue ready")

	go sweepSessions(ctx, engine)

	obs.Init()
	prometheus.MustRegister(dbPool.Collectors()...)
	metricsServer := startMetrics(cfg.Metrics.Addr)

	var intake *bot.Bot
	if cfg.Bot.Token != "" {
		intake = bot.New(teleBot, engine.Payment, engine.Account, cfg.Bot.ApplyDeadline())
		go intake.Start()
	}

	<-ctx.Done()
	log.Info().Msg("Received shutdown signal")

	if intake != nil {
		intake.Stop()
	}
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown failed")
		}
	}
	log.Info().Msg("Ledger stopped gracefully")
}

func startMetrics(addr string) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", obs.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", addr).Msg("Metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
			os.Exit(1)
		}
	}()
	return srv
}

// sweepSessions drops expired pending-input sessions until ctx is done.
func sweepSessions(ctx context.Context, engine *service.Engine) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := engine.Sessions.Sweep(); n > 0 {
				log.Debug().Int("expired", n).Msg("Swept pending-input sessions")
			}
		case <-ctx.Done():
			return
		}
	}
}
