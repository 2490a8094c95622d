package domain

import (
	"time"

	"github.com/google/uuid"
)

type ThreadStatus string

const (
	ThreadIdle      ThreadStatus = "idle"
	ThreadPending   ThreadStatus = "pending"
	ThreadRunning   ThreadStatus = "running"
	ThreadCompleted ThreadStatus = "completed"
	ThreadFailed    ThreadStatus = "failed"
	ThreadCancelled ThreadStatus = "cancelled"
)

// IsTerminal reports whether no further status transitions are expected.
func (s ThreadStatus) IsTerminal() bool {
	return s == ThreadCompleted || s == ThreadFailed || s == ThreadCancelled
}

// ThreadExecutionStatus is the consolidated view derived from a thread's
// event stream. It has no identity of its own: recomputing it from the same
// window always yields the same value.
type ThreadExecutionStatus struct {
	Status                   ThreadStatus `json:"status"`
	CurrentStep              string       `json:"current_step,omitempty"`
	TotalSteps               int          `json:"total_steps"`
	CompletedSteps           int          `json:"completed_steps"`
	Progress                 int          `json:"progress"`
	ShouldEnableRealtime     bool         `json:"should_enable_realtime"`
	ShouldSwitchToHistorical bool         `json:"should_switch_to_historical"`
	StartedAt                *time.Time   `json:"started_at,omitempty"`
	CompletedAt              *time.Time   `json:"completed_at,omitempty"`
	Error                    string       `json:"error,omitempty"`
}

// ThreadRecord is the stored thread row: identity, bookkeeping, and the
// last reconciled status snapshot. Threads start idle and stay idle until
// the reconciler observes their first event.
type ThreadRecord struct {
	ID             uuid.UUID    `json:"id"`
	Status         ThreadStatus `json:"status"`
	Template       string       `json:"template,omitempty"`
	CurrentStep    string       `json:"current_step,omitempty"`
	Progress       int          `json:"progress"`
	CompletedSteps int          `json:"completed_steps"`
	TotalSteps     int          `json:"total_steps"`
	Error          string       `json:"error,omitempty"`
	StartedAt      *time.Time   `json:"started_at,omitempty"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// CreateThreadParams carries everything needed to open a thread. Steps and
// TemplateName are mutually exclusive; with neither set the default plan
// template is used. TotalSteps overrides the plan length when positive.
type CreateThreadParams struct {
	TemplateName string
	Steps        []Step
	TotalSteps   int
	WebhookURL   string
}
