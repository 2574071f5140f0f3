package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ChannovDenis/dobro20-sub000/internal/api"
	"github.com/ChannovDenis/dobro20-sub000/internal/api/middleware"
	"github.com/ChannovDenis/dobro20-sub000/internal/auth"
	"github.com/ChannovDenis/dobro20-sub000/internal/config"
	"github.com/ChannovDenis/dobro20-sub000/internal/gateway"
	"github.com/ChannovDenis/dobro20-sub000/internal/handlers"
	"github.com/ChannovDenis/dobro20-sub000/internal/notify"
	"github.com/ChannovDenis/dobro20-sub000/internal/store"
	"github.com/ChannovDenis/dobro20-sub000/internal/tenant"
	"github.com/ChannovDenis/dobro20-sub000/internal/topics"
)

func main() {
	// Initialize logger
	var logger zerolog.Logger
	cfg, err := config.Load()
	if cfg != nil && cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	// Initialize the relational store: Postgres when configured, SQLite otherwise
	var db store.DataStore
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		ver, err := store.RunMigrations(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Uint("version", ver).Msg("migrations completed")

		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		db = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			logger.Fatal().Err(err).Msg("create sqlite directory")
		}
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		db = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite store")
	}
	defer db.Close()

	// Initialize Redis store
	var redisStore *store.RedisStore
	var tenantCache tenant.Cache
	if cfg.RedisURL != "" {
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		tenantCache = redisStore
		logger.Info().Msg("connected to Redis")
	} else {
		logger.Warn().Msg("REDIS_URL not set; rate limiting and tenant cache disabled")
	}

	// Bearer verification: local JWT secret first, then the hosted auth service
	var verifier auth.Verifier
	switch {
	case cfg.JWTSecret != "":
		verifier = auth.NewJWTVerifier(cfg.JWTSecret)
	case cfg.SupabaseURL != "":
		verifier = auth.NewRemoteVerifier(cfg.SupabaseURL, cfg.SupabasePublishableKey)
	default:
		logger.Warn().Msg("no bearer verifier configured; only session headers are accepted")
	}

	// Expert hand-off
	var notifier notify.Notifier = notify.Nop{}
	if cfg.TelegramEnabled() {
		tg, err := notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramExpertChatID)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram notifier init failed")
		}
		notifier = tg
		logger.Info().Int64("chat_id", cfg.TelegramExpertChatID).Msg("escalations go to Telegram")
	}

	gw := gateway.New(gateway.Config{
		BaseURL:    cfg.GatewayURL,
		APIKey:     cfg.GatewayKey,
		ChatModel:  cfg.ChatModel,
		ImageModel: cfg.ImageModel,
	})

	deps := handlers.Deps{
		DB:         db,
		Redis:      redisStore,
		Gateway:    gw,
		Topics:     topics.NewManager(db, notifier, logger),
		Tenants:    tenant.NewService(db, tenantCache, cfg.DefaultTenant, logger),
		Resolver:   tenant.Resolver{BaseDomain: cfg.TenantBaseDomain, Default: cfg.DefaultTenant},
		ImageHosts: cfg.ImageHostAllowlist,
		Logger:     logger,
	}

	// Create router
	router := api.NewRouter(logger, deps, api.Options{
		Verifier: verifier,
		RateLimit: middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
	})

	// Create server. Streamed replies can take minutes.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting dobro server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
