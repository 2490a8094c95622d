// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adiadia/agent-progress/internal/config"
	"github.com/adiadia/agent-progress/internal/logging"
	"github.com/adiadia/agent-progress/internal/persistence/postgres"
	"github.com/adiadia/agent-progress/internal/plantemplate"
	"github.com/adiadia/agent-progress/internal/repository"
	httptransport "github.com/adiadia/agent-progress/internal/transport/http"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.Component(logging.NewLogger(cfg.Env), "api")

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
			log.Fatalf("schema migration failed: %v", err)
		}
	}

	templates, err := plantemplate.Load(cfg.PlanTemplatesPath)
	if err != nil {
		log.Fatalf("plan templates load failed: %v", err)
	}

	threadRepo := repository.NewThreadRepository(pool, templates, logger)
	stepRepo := repository.NewStepRepository(pool, logger)
	eventRepo := repository.NewEventRepository(pool, logger)
	progressRepo := repository.NewProgressRepository(pool, logger)
	apiKeyRepo := repository.NewAPIKeyRepository(pool, logger)

	handler := httptransport.NewRouter(httptransport.Deps{
		ThreadRepo:     threadRepo,
		StepRepo:       stepRepo,
		EventRepo:      eventRepo,
		ProgressRepo:   progressRepo,
		APIKeyAdmin:    apiKeyRepo,
		Logger:         logger,
		APIKeyResolver: apiKeyRepo,
		Health:         postgres.NewSchemaHealthChecker(pool),
		AdminToken:     cfg.AdminToken,
		Version:        Version,
		Commit:         Commit,
		BuildDate:      BuildDate,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening",
			"addr", cfg.HTTPAddr,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)

		if err := srv.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}
