// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/adiadia/agent-progress/internal/domain"
	"github.com/adiadia/agent-progress/internal/orchestration"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type StepRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewStepRepository(pool *pgxpool.Pool, logger *slog.Logger) *StepRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &StepRepository{
		pool:   pool,
		logger: logger,
	}
}

// ListSteps returns the thread's plan steps in plan order.
func (s *StepRepository) ListSteps(ctx context.Context, threadID uuid.UUID) ([]domain.Step, error) {
	apiKeyID, err := apiKeyIDFromContext(ctx)
	if err != nil {
		s.logger.Warn("list steps denied: missing api key id", "thread_id", threadID, "error", err)
		return nil, err
	}

	var exists int
	if err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM threads WHERE id=$1 AND api_key_id=$2`,
		threadID,
		apiKeyID,
	).Scan(&exists); err != nil {
		s.logger.Error("thread ownership check failed",
			"thread_id", threadID,
			"api_key_id", apiKeyID,
			"error", err,
		)
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT step_id, name, kind, status, progress, dependencies, metadata
		FROM thread_steps
		WHERE thread_id=$1
		ORDER BY position ASC
	`, threadID)
	if err != nil {
		s.logger.Error("list steps query failed",
			"thread_id", threadID,
			"error", err,
		)
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Step, 0, domain.DefaultTotalSteps)

	for rows.Next() {
		var st domain.Step
		var depsJSON, metaJSON []byte
		if err := rows.Scan(
			&st.ID,
			&st.Name,
			&st.Kind,
			&st.Status,
			&st.Progress,
			&depsJSON,
			&metaJSON,
		); err != nil {
			s.logger.Error("scan step row failed",
				"thread_id", threadID,
				"error", err,
			)
			return nil, err
		}
		if err := json.Unmarshal(depsJSON, &st.Dependencies); err != nil {
			return nil, fmt.Errorf("step %q: decode dependencies: %w", st.ID, err)
		}
		if err := json.Unmarshal(metaJSON, &st.Metadata); err != nil {
			return nil, fmt.Errorf("step %q: decode metadata: %w", st.ID, err)
		}
		out = append(out, st)
	}

	if err := rows.Err(); err != nil {
		s.logger.Error("rows iteration failed",
			"thread_id", threadID,
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("steps fetched",
		"thread_id", threadID,
		"count", len(out),
	)

	return out, nil
}

// NextSteps returns the executable frontier: pending steps whose
// dependencies have all completed, in plan order.
func (s *StepRepository) NextSteps(ctx context.Context, threadID uuid.UUID) ([]domain.Step, error) {
	steps, err := s.ListSteps(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return orchestration.NextExecutableSteps(steps), nil
}
