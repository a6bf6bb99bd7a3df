package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salesforce-lead-backend/internal/config"
	"salesforce-lead-backend/internal/db"
	"salesforce-lead-backend/internal/llm"
	"salesforce-lead-backend/internal/logger"
	"salesforce-lead-backend/internal/server"
	"salesforce-lead-backend/internal/store"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.AppEnv)
	if err := cfg.Validate(); err != nil {
		log.Error("configuration rejected", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := server.Deps{Logger: log}

	if cfg.OpenAIAPIKey != "" {
		deps.Completer = llm.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model)
	}

	if cfg.RedisURL != "" {
		rs, err := store.OpenRedisStore(ctx, cfg.RedisURL, cfg.OAuthStateTTL)
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rs.Close()
		deps.Verifiers = rs
		log.Info("pkce verifiers stored in redis")
	} else {
		log.Info("REDIS_URL not provided, pkce verifiers kept in memory")
	}

	if cfg.DatabaseURL != "" {
		database, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer database.Close()
		if err := database.RunMigrations(ctx, db.Migrations()); err != nil {
			log.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		log.Info("database connection established")
		deps.Database = database
		deps.Tokens = append(deps.Tokens, store.NewDatabaseStore(database, cfg.SalesforceClientID))
	} else {
		log.Warn("DB_URL not provided, using file-based token storage only")
	}
	if cfg.SalesforceTokenFile != "" {
		deps.Tokens = append(deps.Tokens, store.NewFileTokenStore(cfg.SalesforceTokenFile))
	}

	s, err := server.NewServer(cfg, deps)
	if err != nil {
		log.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("lead server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
