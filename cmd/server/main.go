// Package main is the entry point for the clicker backend.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"telegram-clicker/internal/auth"
	"telegram-clicker/internal/bot"
	"telegram-clicker/internal/config"
	"telegram-clicker/internal/handler"
	"telegram-clicker/internal/pkg/db"
	"telegram-clicker/internal/repository"
	"telegram-clicker/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().
		Str("driver", cfg.Database.Driver).
		Int64("wait_time_ms", cfg.Tasks.WaitTimeMs).
		Bool("admin_enabled", cfg.Admin.Enabled).
		Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer store.Close()

	if cfg.Tasks.SeedFile != "" {
		tasks, err := service.LoadSeedTasks(cfg.Tasks.SeedFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.Tasks.SeedFile).Msg("Failed to load seed tasks")
		}
		if _, err := service.SeedTasks(ctx, store, tasks); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed tasks")
		}
	}

	if cfg.Tasks.WaitTimeMs <= 0 {
		log.Warn().Msg("tasks.wait_time_ms is not positive; visit task claims will fail")
	}

	// Initialize services
	clock := clockwork.NewRealClock()
	verifier := auth.NewTelegramVerifier(cfg.Telegram.BotToken, cfg.Telegram.InitDataTTL)

	accountService := service.NewAccountService(store, verifier)
	taskService := service.NewTaskService(store, accountService, clock)
	claimService := service.NewClaimService(store, verifier, clock, cfg.Tasks.WaitDuration())
	adminService := service.NewAdminService(store, cfg.Admin.ExportPageSize)

	app := handler.NewApp(&handler.Dependencies{
		Config:         cfg,
		Store:          store,
		AccountService: accountService,
		TaskService:    taskService,
		ClaimService:   claimService,
		AdminService:   adminService,
	})

	// The launcher bot only runs when there is a Mini App to open.
	var telegramBot *bot.Bot
	if cfg.Telegram.WebAppURL != "" {
		telegramBot, err = bot.New(&bot.Dependencies{
			Config:         cfg,
			AccountService: accountService,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create bot")
		}
		go telegramBot.Start()
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("HTTP server is starting...")
		if err := app.Listen(cfg.Server.Addr); err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info().Msg("Received shutdown signal")

	if telegramBot != nil {
		telegramBot.Stop()
	}

	if err := app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Server stopped gracefully")
}

// openStore connects the configured store and prepares its schema.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Warn().Msg("Using in-memory store; data is lost on restart")
		return repository.NewMemoryStore(), nil
	}

	pool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return repository.NewPostgresStore(pool), nil
}
