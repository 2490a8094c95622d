// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/adiadia/agent-progress/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EventRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewEventRepository(pool *pgxpool.Pool, logger *slog.Logger) *EventRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &EventRepository{
		pool:   pool,
		logger: logger,
	}
}

// AppendEvents stores a batch of step messages on the thread's stream in
// input order and returns the stored records with their assigned cursors.
// The payload column archives each message as received; CreatedAt defaults
// to the database clock when the producer reported none.
func (r *EventRepository) AppendEvents(ctx context.Context, threadID uuid.UUID, msgs []domain.StepMessage) ([]domain.EventRecord, error) {
	apiKeyID, err := apiKeyIDFromContext(ctx)
	if err != nil {
		r.logger.Warn("append events denied: missing api key id", "thread_id", threadID, "error", err)
		return nil, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("begin tx failed", "error", err)
		return nil, err
	}
	defer tx.Rollback(ctx)

	var exists int
	if err := tx.QueryRow(ctx,
		`SELECT 1 FROM threads WHERE id=$1 AND api_key_id=$2`,
		threadID,
		apiKeyID,
	).Scan(&exists); err != nil {
		r.logger.Error("thread ownership check failed",
			"thread_id", threadID,
			"api_key_id", apiKeyID,
			"error", err,
		)
		return nil, err
	}

	out := make([]domain.EventRecord, 0, len(msgs))
	for i, msg := range msgs {
		payload, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("events[%d]: marshal payload: %w", i, err)
		}

		var reportedAt any
		if !msg.CreatedAt.IsZero() {
			reportedAt = msg.CreatedAt.UTC()
		}

		record := domain.EventRecord{
			ID:         uuid.New(),
			ThreadID:   threadID,
			Step:       msg.Step,
			Status:     msg.Status,
			Progress:   msg.Progress,
			StepNumber: msg.StepNumber,
			TotalSteps: msg.TotalSteps,
			Payload:    payload,
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO step_events (id, thread_id, step, status, progress, step_number, total_steps, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9::timestamptz, NOW()))
			RETURNING seq, created_at
		`,
			record.ID,
			threadID,
			msg.Step,
			msg.Status,
			msg.Progress,
			msg.StepNumber,
			msg.TotalSteps,
			payload,
			reportedAt,
		).Scan(&record.Seq, &record.CreatedAt); err != nil {
			r.logger.Error("insert step event failed",
				"thread_id", threadID,
				"step", msg.Step,
				"error", err,
			)
			return nil, err
		}
		out = append(out, record)
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("commit failed", "thread_id", threadID, "error", err)
		return nil, err
	}

	r.logger.Info("events appended",
		"thread_id", threadID,
		"count", len(out),
	)
	return out, nil
}

func (r *EventRepository) ListEventsAfter(ctx context.Context, threadID uuid.UUID, afterSeq int64) ([]domain.EventRecord, error) {
	apiKeyID, err := apiKeyIDFromContext(ctx)
	if err != nil {
		r.logger.Warn("list events denied: missing api key id", "thread_id", threadID, "error", err)
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT e.id, e.seq, e.thread_id, e.step, e.status, e.progress,
		       e.step_number, e.total_steps, e.payload, e.created_at
		FROM step_events e
		JOIN threads t ON e.thread_id = t.id
		WHERE e.thread_id=$1
		  AND t.api_key_id=$2
		  AND e.seq > $3
		ORDER BY e.seq ASC
	`,
		threadID,
		apiKeyID,
		afterSeq,
	)
	if err != nil {
		r.logger.Error("list events query failed",
			"thread_id", threadID,
			"api_key_id", apiKeyID,
			"error", err,
		)
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.EventRecord, 0, 8)
	for rows.Next() {
		var ev domain.EventRecord
		if err := rows.Scan(
			&ev.ID,
			&ev.Seq,
			&ev.ThreadID,
			&ev.Step,
			&ev.Status,
			&ev.Progress,
			&ev.StepNumber,
			&ev.TotalSteps,
			&ev.Payload,
			&ev.CreatedAt,
		); err != nil {
			r.logger.Error("scan event row failed",
				"thread_id", threadID,
				"api_key_id", apiKeyID,
				"error", err,
			)
			return nil, err
		}
		out = append(out, ev)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("events rows iteration failed",
			"thread_id", threadID,
			"api_key_id", apiKeyID,
			"error", err,
		)
		return nil, err
	}

	return out, nil
}

// Window returns the thread's full event stream projected onto the
// analyzer's message shape.
func (r *EventRepository) Window(ctx context.Context, threadID uuid.UUID) ([]domain.StepMessage, error) {
	events, err := r.ListEventsAfter(ctx, threadID, 0)
	if err != nil {
		return nil, err
	}

	window := make([]domain.StepMessage, 0, len(events))
	for _, ev := range events {
		window = append(window, ev.Message())
	}
	return window, nil
}

func (r *EventRepository) ResolveCursorByEventID(ctx context.Context, threadID uuid.UUID, eventID uuid.UUID) (int64, error) {
	apiKeyID, err := apiKeyIDFromContext(ctx)
	if err != nil {
		r.logger.Warn("resolve cursor denied: missing api key id", "thread_id", threadID, "error", err)
		return 0, err
	}

	var seq int64
	if err := r.pool.QueryRow(ctx, `
		SELECT e.seq
		FROM step_events e
		JOIN threads t ON e.thread_id = t.id
		WHERE e.id=$1
		  AND e.thread_id=$2
		  AND t.api_key_id=$3
	`,
		eventID,
		threadID,
		apiKeyID,
	).Scan(&seq); err != nil {
		r.logger.Error("resolve event cursor failed",
			"thread_id", threadID,
			"event_id", eventID,
			"api_key_id", apiKeyID,
			"error", err,
		)
		return 0, err
	}

	return seq, nil
}
