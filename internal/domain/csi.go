// SPDX-License-Identifier: Apache-2.0

package domain

// DefaultTotalSteps is the expected step count used when no plan has
// declared one yet.
const DefaultTotalSteps = 4

// Sentinel CurrentStep values used when no named step is active.
const (
	CurrentStepPending   = "pending"
	CurrentStepCompleted = "completed"
)

// CurrentStepInfo summarizes a thread's progress as a single record: the
// ordered list of finished step names, a derived percentage, and the step
// presently active. One record exists per thread; updates replace it rather
// than mutating it in place.
//
// CurrentProgress is derived from CompletedSteps and TotalSteps on every
// update and is not clamped: a value over 100 means more completions were
// recorded than TotalSteps expected.
type CurrentStepInfo struct {
	CompletedSteps  []string       `json:"completed_steps"`
	CurrentProgress int            `json:"current_progress"`
	TotalSteps      int            `json:"total_steps"`
	CurrentStep     string         `json:"current_step"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}
