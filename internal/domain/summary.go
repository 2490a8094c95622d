// SPDX-License-Identifier: Apache-2.0

package domain

import "github.com/google/uuid"

// StepProgressBreakdown is one step's line in a progress summary.
type StepProgressBreakdown struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Kind     StepKind   `json:"kind"`
	Status   StepStatus `json:"status"`
	Progress int        `json:"progress"`
}

// ThreadProgressSummary aggregates a thread's step set: overall percentage,
// the reduced status, the completion flag, and the per-step breakdown.
//
// Status and IsComplete answer different questions and disagree on purpose:
// an all-failed plan is complete (nothing left to run) but its status is
// failed, while a plan with skipped steps can read completed while
// IsComplete stays false.
type ThreadProgressSummary struct {
	ThreadID   uuid.UUID               `json:"thread_id"`
	Progress   int                     `json:"progress"`
	Status     StepStatus              `json:"status"`
	IsComplete bool                    `json:"is_complete"`
	Steps      []StepProgressBreakdown `json:"steps"`
}
