// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/adiadia/agent-progress/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProgressRepository reads the per-thread CSI record. Writes go through
// the reconciler, which owns the record and serializes its updates.
type ProgressRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewProgressRepository(pool *pgxpool.Pool, logger *slog.Logger) *ProgressRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &ProgressRepository{
		pool:   pool,
		logger: logger,
	}
}

func (r *ProgressRepository) GetProgress(ctx context.Context, threadID uuid.UUID) (domain.CurrentStepInfo, error) {
	apiKeyID, err := apiKeyIDFromContext(ctx)
	if err != nil {
		r.logger.Warn("get progress denied: missing api key id", "thread_id", threadID, "error", err)
		return domain.CurrentStepInfo{}, err
	}

	var csi domain.CurrentStepInfo
	var completedJSON, metaJSON []byte
	if err := r.pool.QueryRow(ctx, `
		SELECT c.completed_steps, c.current_progress, c.total_steps, c.current_step, c.metadata
		FROM thread_csi c
		JOIN threads t ON c.thread_id = t.id
		WHERE c.thread_id=$1 AND t.api_key_id=$2
	`,
		threadID,
		apiKeyID,
	).Scan(
		&completedJSON,
		&csi.CurrentProgress,
		&csi.TotalSteps,
		&csi.CurrentStep,
		&metaJSON,
	); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			r.logger.Error("get progress failed", "thread_id", threadID, "error", err)
		}
		return domain.CurrentStepInfo{}, err
	}

	if err := json.Unmarshal(completedJSON, &csi.CompletedSteps); err != nil {
		return domain.CurrentStepInfo{}, fmt.Errorf("decode completed steps: %w", err)
	}
	if err := json.Unmarshal(metaJSON, &csi.Metadata); err != nil {
		return domain.CurrentStepInfo{}, fmt.Errorf("decode csi metadata: %w", err)
	}

	return csi, nil
}
