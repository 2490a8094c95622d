// SPDX-License-Identifier: Apache-2.0

// Package thread derives a consolidated execution status for one thread
// from a window of step messages.
package thread

import (
	"time"

	"github.com/adiadia/agent-progress/internal/domain"
)

// Analyze reduces a message window to a ThreadExecutionStatus. Every
// aggregate is an existence check, count, or maximum, so the reduction is
// order-independent and duplicate-tolerant: callers can recompute it from
// any consistent snapshot of the stream without worrying about delivery
// order or replays changing the answer.
//
// A completed message named "final_completion" or "enhanced_completion"
// finishes the thread regardless of anything else in the window; that is
// also the signal to stop live streaming and switch consumers to stored
// history.
func Analyze(window []domain.StepMessage) domain.ThreadExecutionStatus {
	var (
		hasRunning bool
		hasFinal   bool

		maxProgress    int
		completedSteps int
		totalSteps     int

		currentStep    string
		currentStepNum int
		haveCurrent    bool

		startedAt   time.Time
		completedAt time.Time
	)

	for _, msg := range window {
		switch msg.Status {
		case domain.MessageRunning, domain.MessagePending:
			hasRunning = true
		case domain.MessageCompleted:
			completedSteps++
		}

		if msg.IsFinalCompletion() {
			hasFinal = true
			if !msg.CreatedAt.IsZero() && msg.CreatedAt.After(completedAt) {
				completedAt = msg.CreatedAt
			}
		}

		if msg.Progress > maxProgress {
			maxProgress = msg.Progress
		}
		if msg.TotalSteps > totalSteps {
			totalSteps = msg.TotalSteps
		}
		if !msg.CreatedAt.IsZero() && (startedAt.IsZero() || msg.CreatedAt.Before(startedAt)) {
			startedAt = msg.CreatedAt
		}

		if msg.Status == domain.MessageRunning && msg.Step != "" {
			// Highest step number wins; names break ties so the pick stays
			// order-independent.
			if !haveCurrent || msg.StepNumber > currentStepNum ||
				(msg.StepNumber == currentStepNum && msg.Step > currentStep) {
				currentStep = msg.Step
				currentStepNum = msg.StepNumber
				haveCurrent = true
			}
		}
	}

	if totalSteps <= 0 {
		totalSteps = domain.DefaultTotalSteps
	}

	status := domain.ThreadPending
	switch {
	case hasFinal:
		status = domain.ThreadCompleted
		currentStep = domain.CurrentStepCompleted
	case hasRunning:
		status = domain.ThreadRunning
	}

	out := domain.ThreadExecutionStatus{
		Status:                   status,
		CurrentStep:              currentStep,
		TotalSteps:               totalSteps,
		CompletedSteps:           completedSteps,
		Progress:                 maxProgress,
		ShouldEnableRealtime:     !hasFinal,
		ShouldSwitchToHistorical: hasFinal,
	}
	if !startedAt.IsZero() {
		t := startedAt
		out.StartedAt = &t
	}
	if hasFinal && !completedAt.IsZero() {
		t := completedAt
		out.CompletedAt = &t
	}
	return out
}
