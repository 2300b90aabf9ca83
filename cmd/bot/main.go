// Command bot runs the referral-gated AI Telegram bot.
//
// Purpose:
//
//	Loads configuration, bootstraps Postgres/Redis/audit/AI gateway, applies
//	database migrations, starts the ops HTTP server and runs the Telegram
//	long-polling loop until SIGINT/SIGTERM.
//
// Debugging Notes:
//   - The ops server exposes /healthz, /readyz and /metrics on OPS_PORT
//   - Shutdown cancels the polling loop and any in-flight broadcast, then
//     shuts the ops server down with a 10s timeout
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/access"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/bootstrap"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/bot"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/broadcast"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/config"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/logging"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/referral"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/server"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/stats"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/telegram"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/migrations"
)

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()
	logger := logging.New(cfg.ServiceName, cfg.Environment, cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runtime, err := bootstrap.Initialize(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("bootstrap failed", zap.Error(err))
	}
	defer func() {
		if err := runtime.Close(); err != nil {
			logger.Warn("runtime close", zap.Error(err))
		}
	}()

	if err := applyMigrations(cfg.DatabaseURL); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		logger.Fatal("telegram init failed", zap.Error(err))
	}
	api.Debug = false

	transport := telegram.NewTransport(api)

	ledger := referral.NewLedger(runtime.Postgres, runtime.Cache, transport, logger, referral.Options{
		Required: cfg.RequiredReferrals,
		CountTTL: cfg.ReferralCacheTTL,
	})
	policy := access.NewPolicy(runtime.Cache, ledger, access.Options{
		AdminID:  cfg.AdminID,
		Required: cfg.RequiredReferrals,
		FlagTTL:  cfg.FirstQuestionTTL,
	})
	coordinator := broadcast.NewCoordinator(transport, runtime.Postgres, runtime.Cache, logger, broadcast.Options{
		BatchSize:  cfg.BroadcastBatchSize,
		BatchPause: cfg.BroadcastBatchPause,
		StaleAfter: cfg.BroadcastLockStale,
	})
	statsService := stats.NewService(runtime.Postgres, runtime.Cache, logger, cfg.StatsCacheTTL)

	handler := bot.NewHandler(ctx, api, runtime.Postgres, runtime.Cache, ledger, policy,
		runtime.Gateway, coordinator, statsService, runtime.Audit, logger, bot.Options{
			AdminID:     cfg.AdminID,
			BotUsername: api.Self.UserName,
			FloodLimit:  cfg.FloodLimit,
			EnvFile:     cfg.EnvFile,
			LogFile:     cfg.LogFile,
		})

	ops := server.New(server.Options{
		Port:        cfg.OpsPort,
		ServiceName: cfg.ServiceName,
		Logger:      logger,
		Readiness:   runtime.Readiness,
	})
	go func() {
		if err := ops.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops server failed", zap.Error(err))
		}
	}()

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 60
	updates := api.GetUpdatesChan(updateCfg)

	logger.Info("bot started",
		zap.String("username", api.Self.UserName),
		zap.Int("ops_port", cfg.OpsPort),
	)

	// Each update runs on its own goroutine so one slow completion call never
	// queues other users' messages. The recover middleware keeps a failing
	// update from escaping its goroutine.
	var inFlight sync.WaitGroup
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case upd, ok := <-updates:
			if !ok {
				break loop
			}
			inFlight.Add(1)
			go func(upd tgbotapi.Update) {
				defer inFlight.Done()
				handler.HandleUpdate(ctx, upd)
			}(upd)
		}
	}

	api.StopReceivingUpdates()
	inFlight.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ops.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ops server shutdown", zap.Error(err))
	}

	logger.Info("bot stopped")
}

// applyMigrations runs pending goose migrations against the ledger database
// from the embedded migration set.
func applyMigrations(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "sql")
}
