// SPDX-License-Identifier: Apache-2.0

package orchestration

import (
	"math"

	"github.com/adiadia/agent-progress/internal/domain"
)

// OverallProgress returns the arithmetic mean of the steps' progress
// values, rounded to the nearest integer. An empty set reports zero.
func OverallProgress(steps []domain.Step) int {
	if len(steps) == 0 {
		return 0
	}
	sum := 0
	for _, step := range steps {
		sum += step.Progress
	}
	return int(math.Round(float64(sum) / float64(len(steps))))
}

// OverallStatus reduces a step set to a single status. Anything still
// running dominates, then failure; a set that is entirely completed or
// skipped reads completed. Failures therefore surface only once nothing is
// in flight anymore.
func OverallStatus(steps []domain.Step) domain.StepStatus {
	if len(steps) == 0 {
		return domain.StepPending
	}

	anyFailed := false
	finished := 0
	for _, step := range steps {
		switch step.Status {
		case domain.StepRunning:
			return domain.StepRunning
		case domain.StepFailed:
			anyFailed = true
		case domain.StepCompleted, domain.StepSkipped:
			finished++
		}
	}
	if anyFailed {
		return domain.StepFailed
	}
	if finished == len(steps) {
		return domain.StepCompleted
	}
	return domain.StepPending
}

// IsComplete reports whether every step reached completed or failed, i.e.
// nothing is left that could still run. An empty set is not complete.
//
// Note the asymmetry with OverallStatus: an all-failed set is complete here
// but failed there, and a set containing skipped steps can read completed
// there while staying incomplete here. Both readings are load-bearing for
// callers; keep them separate.
func IsComplete(steps []domain.Step) bool {
	if len(steps) == 0 {
		return false
	}
	for _, step := range steps {
		if step.Status != domain.StepCompleted && step.Status != domain.StepFailed {
			return false
		}
	}
	return true
}

// Summarize flattens a step set into the progress report served to clients.
// The caller fills in the thread id.
func Summarize(steps []domain.Step) domain.ThreadProgressSummary {
	breakdown := make([]domain.StepProgressBreakdown, 0, len(steps))
	for _, step := range steps {
		breakdown = append(breakdown, domain.StepProgressBreakdown{
			ID:       step.ID,
			Name:     step.Name,
			Kind:     step.Kind,
			Status:   step.Status,
			Progress: step.Progress,
		})
	}
	return domain.ThreadProgressSummary{
		Progress:   OverallProgress(steps),
		Status:     OverallStatus(steps),
		IsComplete: IsComplete(steps),
		Steps:      breakdown,
	}
}
