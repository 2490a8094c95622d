// SPDX-License-Identifier: Apache-2.0

// Package worker materializes derived thread state. Each reconcile pass
// claims one thread with unreconciled events, recomputes the consolidated
// status from the full event window, and writes the thread snapshot, the
// per-step rows, and the cumulative progress row in one transaction. The
// row lock taken by the claim is the single-writer serialization the
// progress tracker asks its callers for.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/adiadia/agent-progress/internal/domain"
	"github.com/adiadia/agent-progress/internal/metrics"
	"github.com/adiadia/agent-progress/internal/progress"
	"github.com/adiadia/agent-progress/internal/thread"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultHTTPTimeout = 10 * time.Second

type Deps struct {
	Pool             *pgxpool.Pool
	Logger           *slog.Logger
	HTTPClient       *http.Client
	WebhookSecret    string
	WebhookRetryBase time.Duration
}

type Worker struct {
	pool             *pgxpool.Pool
	logger           *slog.Logger
	httpClient       *http.Client
	webhookSecret    string
	webhookRetryBase time.Duration
}

func New(deps Deps) *Worker {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	retryBase := deps.WebhookRetryBase
	if retryBase <= 0 {
		retryBase = defaultWebhookRetryBase
	}

	return &Worker{
		pool:             deps.Pool,
		logger:           logger,
		httpClient:       httpClient,
		webhookSecret:    deps.WebhookSecret,
		webhookRetryBase: retryBase,
	}
}

// claimedThread is the row snapshot taken under the claim lock.
type claimedThread struct {
	ID            uuid.UUID
	Status        domain.ThreadStatus
	TotalSteps    int
	ReconciledSeq int64
	WebhookURL    string
}

// ProcessOnce reconciles at most one thread and reports whether it found
// one. Callers loop on the flag to drain a backlog, then fall back to
// their poll interval once it returns false.
func (w *Worker) ProcessOnce(ctx context.Context) (bool, error) {
	start := time.Now()

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		w.logger.Error("begin tx failed", "error", err)
		return false, err
	}
	defer tx.Rollback(ctx)

	claimed, err := w.claimThread(ctx, tx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		w.logger.Error("claim thread failed", "error", err)
		return false, err
	}

	window, err := w.loadWindow(ctx, tx, claimed.ID)
	if err != nil {
		w.logger.Error("load event window failed", "thread_id", claimed.ID, "error", err)
		return false, err
	}

	derived := thread.Analyze(messages(window))
	fresh := eventsAfter(window, claimed.ReconciledSeq)
	last := lastSeq(window, claimed.ReconciledSeq)

	if err := w.applyStepEvents(ctx, tx, claimed.ID, fresh); err != nil {
		w.logger.Error("apply step events failed", "thread_id", claimed.ID, "error", err)
		return false, err
	}
	if err := w.applyProgress(ctx, tx, claimed, fresh, derived); err != nil {
		w.logger.Error("apply progress failed", "thread_id", claimed.ID, "error", err)
		return false, err
	}
	if err := w.applySnapshot(ctx, tx, claimed, derived, reportedTotalSteps(window, claimed.TotalSteps), last); err != nil {
		w.logger.Error("apply snapshot failed", "thread_id", claimed.ID, "error", err)
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		w.logger.Error("commit failed", "thread_id", claimed.ID, "error", err)
		return false, err
	}

	metrics.ObserveReconcileDuration(time.Since(start))
	if derived.Status != claimed.Status {
		metrics.IncThreadStatus(string(derived.Status))
	}

	w.logger.Info("thread reconciled",
		"thread_id", claimed.ID,
		"status", derived.Status,
		"events", len(fresh),
		"last_seq", last,
	)

	if derived.ShouldSwitchToHistorical && claimed.WebhookURL != "" {
		finishedAt := time.Now().UTC()
		if derived.CompletedAt != nil {
			finishedAt = *derived.CompletedAt
		}
		w.deliverTerminalWebhook(ctx, claimed.ID, derived.Status, finishedAt, claimed.WebhookURL, w.webhookSecret)
	}

	return true, nil
}

// claimThread locks one live thread that has events past its reconciled
// cursor. SKIP LOCKED keeps concurrent reconcilers off each other's
// claims; skipping terminal statuses means cancelled and failed threads
// are never resurrected by a straggling event.
func (w *Worker) claimThread(ctx context.Context, tx pgx.Tx) (claimedThread, error) {
	var claimed claimedThread
	err := tx.QueryRow(ctx, `
		SELECT t.id, t.status, t.total_steps, t.reconciled_seq, t.webhook_url
		FROM threads t
		WHERE t.status NOT IN ($1, $2, $3)
		  AND EXISTS (
		      SELECT 1 FROM step_events e
		      WHERE e.thread_id = t.id AND e.seq > t.reconciled_seq
		  )
		ORDER BY t.updated_at ASC
		FOR UPDATE OF t SKIP LOCKED
		LIMIT 1
	`,
		domain.ThreadCompleted,
		domain.ThreadFailed,
		domain.ThreadCancelled,
	).Scan(
		&claimed.ID,
		&claimed.Status,
		&claimed.TotalSteps,
		&claimed.ReconciledSeq,
		&claimed.WebhookURL,
	)
	return claimed, err
}

// loadWindow reads the thread's full event stream in seq order. The
// analyzer is order-independent, but recomputing from the whole window is
// what makes the snapshot immune to replays and out-of-order appends.
func (w *Worker) loadWindow(ctx context.Context, tx pgx.Tx, threadID uuid.UUID) ([]domain.EventRecord, error) {
	rows, err := tx.Query(ctx, `
		SELECT seq, step, status, progress, step_number, total_steps, created_at
		FROM step_events
		WHERE thread_id=$1
		ORDER BY seq ASC
	`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var window []domain.EventRecord
	for rows.Next() {
		ev := domain.EventRecord{ThreadID: threadID}
		if err := rows.Scan(
			&ev.Seq,
			&ev.Step,
			&ev.Status,
			&ev.Progress,
			&ev.StepNumber,
			&ev.TotalSteps,
			&ev.CreatedAt,
		); err != nil {
			return nil, err
		}
		window = append(window, ev)
	}
	return window, rows.Err()
}

// applyStepEvents folds newly observed events into their thread_steps
// rows. Events match a row by step id or display name; events without a
// step name (thread-level signals such as cancellation) have no row to
// touch. The latest observed status wins, except that a pending or
// running report never drags a finished step back to life.
func (w *Worker) applyStepEvents(ctx context.Context, tx pgx.Tx, threadID uuid.UUID, events []domain.EventRecord) error {
	for _, ev := range events {
		if ev.Step == "" {
			continue
		}

		status, ok := stepStatusForMessage(ev.Status)
		if !ok {
			if _, err := tx.Exec(ctx, `
				UPDATE thread_steps
				SET progress=$3
				WHERE thread_id=$1
				  AND (step_id=$2 OR name=$2)
				  AND status NOT IN ($4, $5, $6)
			`,
				threadID,
				ev.Step,
				ev.Progress,
				domain.StepCompleted,
				domain.StepFailed,
				domain.StepSkipped,
			); err != nil {
				return fmt.Errorf("apply progress event %q: %w", ev.Step, err)
			}
			continue
		}

		if status == domain.StepRunning {
			if _, err := tx.Exec(ctx, `
				UPDATE thread_steps
				SET status=$3,
				    progress=$4,
				    started_at=COALESCE(started_at, $5)
				WHERE thread_id=$1
				  AND (step_id=$2 OR name=$2)
				  AND status NOT IN ($6, $7, $8)
			`,
				threadID,
				ev.Step,
				status,
				ev.Progress,
				ev.CreatedAt,
				domain.StepCompleted,
				domain.StepFailed,
				domain.StepSkipped,
			); err != nil {
				return fmt.Errorf("apply running event %q: %w", ev.Step, err)
			}
			continue
		}

		if _, err := tx.Exec(ctx, `
			UPDATE thread_steps
			SET status=$3,
			    progress=$4,
			    started_at=COALESCE(started_at, $5),
			    finished_at=COALESCE(finished_at, $5)
			WHERE thread_id=$1
			  AND (step_id=$2 OR name=$2)
		`,
			threadID,
			ev.Step,
			status,
			terminalProgress(status, ev.Progress),
			ev.CreatedAt,
		); err != nil {
			return fmt.Errorf("apply terminal event %q: %w", ev.Step, err)
		}
	}
	return nil
}

// applyProgress folds newly completed steps into the thread_csi row. The
// claim lock on the thread serializes these read-modify-write cycles, so
// the tracker's pure operations can be applied without their own locking.
func (w *Worker) applyProgress(ctx context.Context, tx pgx.Tx, claimed claimedThread, events []domain.EventRecord, derived domain.ThreadExecutionStatus) error {
	var csi domain.CurrentStepInfo
	var completedJSON, metaJSON []byte
	err := tx.QueryRow(ctx, `
		SELECT completed_steps, current_progress, total_steps, current_step, metadata
		FROM thread_csi
		WHERE thread_id=$1
		FOR UPDATE
	`, claimed.ID).Scan(
		&completedJSON,
		&csi.CurrentProgress,
		&csi.TotalSteps,
		&csi.CurrentStep,
		&metaJSON,
	)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		csi = progress.New("", claimed.TotalSteps, nil)
	case err != nil:
		return err
	default:
		if err := json.Unmarshal(completedJSON, &csi.CompletedSteps); err != nil {
			return fmt.Errorf("decode completed steps: %w", err)
		}
		if err := json.Unmarshal(metaJSON, &csi.Metadata); err != nil {
			return fmt.Errorf("decode csi metadata: %w", err)
		}
	}

	next := nextCurrentStep(derived, csi)
	folded := applyCompletions(csi, events, next)
	if folded.CurrentStep != next {
		folded = progress.Merge(folded, progress.Patch{CurrentStep: &next})
	}

	completedOut, err := json.Marshal(folded.CompletedSteps)
	if err != nil {
		return fmt.Errorf("marshal completed steps: %w", err)
	}
	metaOut, err := json.Marshal(folded.Metadata)
	if err != nil {
		return fmt.Errorf("marshal csi metadata: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO thread_csi (thread_id, completed_steps, current_progress, total_steps, current_step, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (thread_id) DO UPDATE SET
			completed_steps=EXCLUDED.completed_steps,
			current_progress=EXCLUDED.current_progress,
			total_steps=EXCLUDED.total_steps,
			current_step=EXCLUDED.current_step,
			metadata=EXCLUDED.metadata,
			updated_at=NOW()
	`,
		claimed.ID,
		completedOut,
		folded.CurrentProgress,
		folded.TotalSteps,
		folded.CurrentStep,
		metaOut,
	)
	return err
}

// applySnapshot writes the derived status onto the thread row and
// advances the reconcile cursor past everything this pass observed.
func (w *Worker) applySnapshot(ctx context.Context, tx pgx.Tx, claimed claimedThread, derived domain.ThreadExecutionStatus, totalSteps int, last int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE threads
		SET status=$2,
		    current_step=$3,
		    progress=$4,
		    completed_steps=$5,
		    total_steps=$6,
		    reconciled_seq=$7,
		    started_at=COALESCE(started_at, $8),
		    completed_at=COALESCE(completed_at, $9),
		    updated_at=NOW()
		WHERE id=$1
	`,
		claimed.ID,
		derived.Status,
		derived.CurrentStep,
		derived.Progress,
		derived.CompletedSteps,
		totalSteps,
		last,
		derived.StartedAt,
		derived.CompletedAt,
	)
	return err
}

// stepStatusForMessage maps an event status onto the step row it updates.
// Pending reports carry progress but no status transition, so they map to
// nothing.
func stepStatusForMessage(status domain.MessageStatus) (domain.StepStatus, bool) {
	switch status {
	case domain.MessageRunning:
		return domain.StepRunning, true
	case domain.MessageCompleted:
		return domain.StepCompleted, true
	case domain.MessageFailed:
		return domain.StepFailed, true
	case domain.MessageCancelled:
		return domain.StepSkipped, true
	default:
		return "", false
	}
}

// terminalProgress pins a completed step at 100 even when its final event
// reported less. Failed and skipped steps keep whatever they reached.
func terminalProgress(status domain.StepStatus, reported int) int {
	if status == domain.StepCompleted && reported < 100 {
		return 100
	}
	return reported
}

// applyCompletions folds each newly completed step into the tracker.
// Sentinel completions count like any other step, and duplicates shift
// the percentage again on purpose: the tracker records observations, not
// set membership.
func applyCompletions(csi domain.CurrentStepInfo, events []domain.EventRecord, nextCurrent string) domain.CurrentStepInfo {
	for _, ev := range events {
		if ev.Status != domain.MessageCompleted || ev.Step == "" {
			continue
		}
		csi = progress.Update(csi, ev.Step, nextCurrent, nil)
	}
	return csi
}

// nextCurrentStep prefers the analyzer's pick and keeps the stored value
// when the window has nothing running yet.
func nextCurrentStep(derived domain.ThreadExecutionStatus, csi domain.CurrentStepInfo) string {
	if derived.CurrentStep != "" {
		return derived.CurrentStep
	}
	return csi.CurrentStep
}

// reportedTotalSteps returns the largest total declared anywhere on the
// stream, or the stored fallback when no event declared one. The analyzer
// defaults missing totals for its own output; the stored row keeps the
// plan's figure instead.
func reportedTotalSteps(events []domain.EventRecord, fallback int) int {
	total := 0
	for _, ev := range events {
		if ev.TotalSteps > total {
			total = ev.TotalSteps
		}
	}
	if total <= 0 {
		return fallback
	}
	return total
}

func eventsAfter(events []domain.EventRecord, seq int64) []domain.EventRecord {
	var fresh []domain.EventRecord
	for _, ev := range events {
		if ev.Seq > seq {
			fresh = append(fresh, ev)
		}
	}
	return fresh
}

func lastSeq(events []domain.EventRecord, fallback int64) int64 {
	last := fallback
	for _, ev := range events {
		if ev.Seq > last {
			last = ev.Seq
		}
	}
	return last
}

func messages(events []domain.EventRecord) []domain.StepMessage {
	msgs := make([]domain.StepMessage, len(events))
	for i, ev := range events {
		msgs[i] = ev.Message()
	}
	return msgs
}
