// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adiadia/agent-progress/internal/config"
	"github.com/adiadia/agent-progress/internal/logging"
	"github.com/adiadia/agent-progress/internal/persistence/postgres"
	"github.com/adiadia/agent-progress/internal/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.Component(logging.NewLogger(cfg.Env), "worker")

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	// The api binary owns migrations; the reconciler only verifies.
	if err := postgres.SchemaReady(ctx, pool); err != nil {
		log.Fatalf("schema not ready: %v", err)
	}

	w := worker.New(worker.Deps{
		Pool:          pool,
		Logger:        logger,
		WebhookSecret: cfg.WebhookSecret,
	})

	logger.Info("reconciler started",
		"reconcilers", cfg.Reconcilers,
		"interval", cfg.ReconcileInterval,
	)

	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Reconcilers; i++ {
		group.Go(func() error {
			return runReconcileLoop(groupCtx, w, cfg.ReconcileInterval, logger)
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("reconciler stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("reconciler stopped")
}

// runReconcileLoop drains the backlog on every tick: as long as a pass
// claims a thread there may be more work waiting, so it keeps going until
// a pass comes up empty.
func runReconcileLoop(ctx context.Context, w *worker.Worker, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for {
			processed, err := w.ProcessOnce(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return ctx.Err()
				}
				logger.Error("reconcile pass failed", "error", err)
				break
			}
			if !processed {
				break
			}
		}
	}
}
