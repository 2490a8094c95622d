// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"

	"github.com/adiadia/agent-progress/internal/auth"
	"github.com/adiadia/agent-progress/internal/domain"
	"github.com/google/uuid"
)

type ThreadManager interface {
	CreateThread(ctx context.Context, params domain.CreateThreadParams) (uuid.UUID, error)
	GetThread(ctx context.Context, id uuid.UUID) (domain.ThreadRecord, error)
	CancelThread(ctx context.Context, id uuid.UUID) error
}

type StepLister interface {
	ListSteps(ctx context.Context, threadID uuid.UUID) ([]domain.Step, error)
	NextSteps(ctx context.Context, threadID uuid.UUID) ([]domain.Step, error)
}

type EventStreamer interface {
	AppendEvents(ctx context.Context, threadID uuid.UUID, msgs []domain.StepMessage) ([]domain.EventRecord, error)
	ListEventsAfter(ctx context.Context, threadID uuid.UUID, afterSeq int64) ([]domain.EventRecord, error)
	Window(ctx context.Context, threadID uuid.UUID) ([]domain.StepMessage, error)
	ResolveCursorByEventID(ctx context.Context, threadID uuid.UUID, eventID uuid.UUID) (int64, error)
}

type ProgressReader interface {
	GetProgress(ctx context.Context, threadID uuid.UUID) (domain.CurrentStepInfo, error)
}

type APIKeyResolver interface {
	ResolveAPIKey(ctx context.Context, bearerToken string) (auth.APIKey, bool, error)
}

type APIKeyManager interface {
	CreateAPIKey(ctx context.Context, params domain.CreateAPIKeyParams) (domain.CreatedAPIKey, error)
	ListAPIKeys(ctx context.Context) ([]domain.APIKeyRecord, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

type HealthChecker interface {
	Check(ctx context.Context) error
}
