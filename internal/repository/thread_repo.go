// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/adiadia/agent-progress/internal/auth"
	"github.com/adiadia/agent-progress/internal/domain"
	"github.com/adiadia/agent-progress/internal/plantemplate"
	"github.com/adiadia/agent-progress/internal/progress"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ThreadRepository struct {
	pool      *pgxpool.Pool
	templates *plantemplate.Registry
	logger    *slog.Logger
}

func NewThreadRepository(pool *pgxpool.Pool, templates *plantemplate.Registry, logger *slog.Logger) *ThreadRepository {
	if templates == nil {
		templates = plantemplate.Builtin()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ThreadRepository{
		pool:      pool,
		templates: templates,
		logger:    logger,
	}
}

// CreateThread opens a thread and materializes its plan. The plan comes
// from params.Steps when given, otherwise from the named (or default)
// template. An Idempotency-Key on the context makes the call replayable:
// the same key returns the originally created thread id.
func (r *ThreadRepository) CreateThread(ctx context.Context, params domain.CreateThreadParams) (uuid.UUID, error) {
	apiKeyID, err := apiKeyIDFromContext(ctx)
	if err != nil {
		r.logger.Warn("create thread denied: missing api key id", "error", err)
		return uuid.Nil, err
	}

	idempotencyKey, hasIdempotencyKey := auth.IdempotencyKeyFromContext(ctx)
	if hasIdempotencyKey {
		existing, found, err := r.lookupThreadRequest(ctx, apiKeyID, idempotencyKey)
		if err != nil {
			return uuid.Nil, err
		}
		if found {
			r.logger.Info("thread create replayed",
				"thread_id", existing,
				"api_key_id", apiKeyID,
			)
			return existing, nil
		}
	}

	templateName := params.TemplateName
	steps := params.Steps
	if len(steps) == 0 {
		tpl, ok := r.templates.Get(templateName)
		if !ok {
			return uuid.Nil, fmt.Errorf("template %q: %w", templateName, domain.ErrPlanTemplateNotFound)
		}
		templateName = tpl.Name
		steps = tpl.Plan()
	}

	totalSteps := params.TotalSteps
	if totalSteps <= 0 {
		totalSteps = len(steps)
	}
	if totalSteps <= 0 {
		totalSteps = domain.DefaultTotalSteps
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("begin tx failed", "error", err)
		return uuid.Nil, err
	}
	defer tx.Rollback(ctx)

	maxActive, err := r.maxActiveThreads(ctx, tx, apiKeyID)
	if err != nil {
		return uuid.Nil, err
	}

	var active int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM threads
		WHERE api_key_id=$1
		  AND status NOT IN ($2, $3, $4)
	`,
		apiKeyID,
		domain.ThreadCompleted,
		domain.ThreadFailed,
		domain.ThreadCancelled,
	).Scan(&active); err != nil {
		r.logger.Error("count active threads failed", "api_key_id", apiKeyID, "error", err)
		return uuid.Nil, err
	}
	if active >= maxActive {
		r.logger.Warn("create thread rejected: limit reached",
			"api_key_id", apiKeyID,
			"active", active,
			"max_active_threads", maxActive,
		)
		return uuid.Nil, domain.ErrMaxActiveThreadsExceeded
	}

	threadID := uuid.New()
	if _, err := tx.Exec(ctx, `
		INSERT INTO threads (id, api_key_id, status, template, total_steps, webhook_url)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		threadID,
		apiKeyID,
		domain.ThreadIdle,
		templateName,
		totalSteps,
		params.WebhookURL,
	); err != nil {
		r.logger.Error("insert thread failed", "thread_id", threadID, "error", err)
		return uuid.Nil, err
	}

	for i, step := range steps {
		deps := step.Dependencies
		if deps == nil {
			deps = []string{}
		}
		depsJSON, err := json.Marshal(deps)
		if err != nil {
			return uuid.Nil, fmt.Errorf("marshal step dependencies: %w", err)
		}

		meta := step.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return uuid.Nil, fmt.Errorf("marshal step metadata: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO thread_steps (thread_id, step_id, name, kind, status, progress, dependencies, metadata, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			threadID,
			step.ID,
			step.Name,
			step.Kind,
			step.Status,
			step.Progress,
			depsJSON,
			metaJSON,
			i+1,
		); err != nil {
			r.logger.Error("insert thread step failed",
				"thread_id", threadID,
				"step", step.ID,
				"error", err,
			)
			return uuid.Nil, err
		}
	}

	csi := progress.New("", totalSteps, nil)
	completedJSON, err := json.Marshal(csi.CompletedSteps)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal csi completed steps: %w", err)
	}
	csiMetaJSON, err := json.Marshal(csi.Metadata)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal csi metadata: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO thread_csi (thread_id, completed_steps, current_progress, total_steps, current_step, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		threadID,
		completedJSON,
		csi.CurrentProgress,
		csi.TotalSteps,
		csi.CurrentStep,
		csiMetaJSON,
	); err != nil {
		r.logger.Error("insert thread csi failed", "thread_id", threadID, "error", err)
		return uuid.Nil, err
	}

	if hasIdempotencyKey {
		tag, err := tx.Exec(ctx, `
			INSERT INTO thread_requests (api_key_id, idempotency_key, thread_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (api_key_id, idempotency_key) DO NOTHING
		`, apiKeyID, idempotencyKey, threadID)
		if err != nil {
			r.logger.Error("insert thread request failed", "thread_id", threadID, "error", err)
			return uuid.Nil, err
		}
		if tag.RowsAffected() == 0 {
			// A concurrent request with the same key won. Its row is
			// committed by the time the conflict resolves, so surface
			// its thread and let ours roll back.
			existing, found, err := r.lookupThreadRequest(ctx, apiKeyID, idempotencyKey)
			if err != nil {
				return uuid.Nil, err
			}
			if !found {
				return uuid.Nil, errors.New("idempotency conflict without winning request row")
			}
			r.logger.Info("thread create replayed",
				"thread_id", existing,
				"api_key_id", apiKeyID,
			)
			return existing, nil
		}
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("commit failed", "thread_id", threadID, "error", err)
		return uuid.Nil, err
	}

	r.logger.Info("thread created",
		"thread_id", threadID,
		"api_key_id", apiKeyID,
		"template", templateName,
		"steps", len(steps),
	)
	return threadID, nil
}

func (r *ThreadRepository) GetThread(ctx context.Context, threadID uuid.UUID) (domain.ThreadRecord, error) {
	apiKeyID, err := apiKeyIDFromContext(ctx)
	if err != nil {
		r.logger.Warn("get thread denied: missing api key id", "thread_id", threadID, "error", err)
		return domain.ThreadRecord{}, err
	}

	var record domain.ThreadRecord
	if err := r.pool.QueryRow(ctx, `
		SELECT id, status, template, current_step, progress, completed_steps,
		       total_steps, error, started_at, completed_at, created_at, updated_at
		FROM threads
		WHERE id=$1 AND api_key_id=$2
	`,
		threadID,
		apiKeyID,
	).Scan(
		&record.ID,
		&record.Status,
		&record.Template,
		&record.CurrentStep,
		&record.Progress,
		&record.CompletedSteps,
		&record.TotalSteps,
		&record.Error,
		&record.StartedAt,
		&record.CompletedAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			r.logger.Error("get thread failed", "thread_id", threadID, "error", err)
		}
		return domain.ThreadRecord{}, err
	}

	return record, nil
}

// CancelThread moves a live thread to cancelled, skips its unfinished plan
// steps, and appends a cancellation event to the stream. Cancelling a
// terminal thread is a no-op, not an error.
func (r *ThreadRepository) CancelThread(ctx context.Context, threadID uuid.UUID) error {
	apiKeyID, err := apiKeyIDFromContext(ctx)
	if err != nil {
		r.logger.Warn("cancel thread denied: missing api key id", "thread_id", threadID, "error", err)
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("begin tx failed", "error", err)
		return err
	}
	defer tx.Rollback(ctx)

	var status domain.ThreadStatus
	if err := tx.QueryRow(ctx, `
		SELECT status
		FROM threads
		WHERE id=$1 AND api_key_id=$2
		FOR UPDATE
	`,
		threadID,
		apiKeyID,
	).Scan(&status); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			r.logger.Error("read thread status failed", "thread_id", threadID, "error", err)
		}
		return err
	}

	if status.IsTerminal() {
		r.logger.Info("cancel skipped (terminal)",
			"thread_id", threadID,
			"status", status,
		)
		return tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE threads
		SET status=$2,
		    error=$3,
		    completed_at=COALESCE(completed_at, NOW()),
		    updated_at=NOW()
		WHERE id=$1
	`,
		threadID,
		domain.ThreadCancelled,
		"cancelled by user",
	); err != nil {
		r.logger.Error("update thread cancel failed", "thread_id", threadID, "error", err)
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE thread_steps
		SET status=$2,
		    finished_at=COALESCE(finished_at, NOW())
		WHERE thread_id=$1
		  AND status IN ($3, $4)
	`,
		threadID,
		domain.StepSkipped,
		domain.StepPending,
		domain.StepRunning,
	); err != nil {
		r.logger.Error("update steps cancel failed", "thread_id", threadID, "error", err)
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO step_events (id, thread_id, status, payload)
		VALUES ($1, $2, $3, $4)
	`,
		uuid.New(),
		threadID,
		domain.MessageCancelled,
		`{"reason":"user_request"}`,
	); err != nil {
		r.logger.Error("insert cancel event failed", "thread_id", threadID, "error", err)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("commit cancel failed", "thread_id", threadID, "error", err)
		return err
	}

	r.logger.Info("thread cancelled", "thread_id", threadID)
	return nil
}

func (r *ThreadRepository) lookupThreadRequest(ctx context.Context, apiKeyID uuid.UUID, idempotencyKey string) (uuid.UUID, bool, error) {
	var threadID uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT thread_id
		FROM thread_requests
		WHERE api_key_id=$1 AND idempotency_key=$2
	`, apiKeyID, idempotencyKey).Scan(&threadID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		r.logger.Error("lookup thread request failed", "api_key_id", apiKeyID, "error", err)
		return uuid.Nil, false, err
	}
	return threadID, true, nil
}

// maxActiveThreads prefers the limit resolved by auth middleware; direct
// repository callers fall back to the stored per-key limit.
func (r *ThreadRepository) maxActiveThreads(ctx context.Context, tx pgx.Tx, apiKeyID uuid.UUID) (int, error) {
	if key, ok := auth.APIKeyFromContext(ctx); ok && key.MaxActiveThreads > 0 {
		return key.MaxActiveThreads, nil
	}

	var maxActive int
	if err := tx.QueryRow(ctx,
		`SELECT max_active_threads FROM api_keys WHERE id=$1`,
		apiKeyID,
	).Scan(&maxActive); err != nil {
		r.logger.Error("read api key limit failed", "api_key_id", apiKeyID, "error", err)
		return 0, err
	}
	if maxActive <= 0 {
		maxActive = domain.DefaultMaxActiveThreads
	}
	return maxActive, nil
}
