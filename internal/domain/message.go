// SPDX-License-Identifier: Apache-2.0

package domain

import "time"

type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"
	MessageRunning   MessageStatus = "running"
	MessageCompleted MessageStatus = "completed"
	MessageFailed    MessageStatus = "failed"
	MessageCancelled MessageStatus = "cancelled"
)

// Sentinel step names. A completed message carrying one of these marks the
// whole thread as finished, regardless of what else is in the stream.
const (
	StepFinalCompletion    = "final_completion"
	StepEnhancedCompletion = "enhanced_completion"
)

// StepMessage is one step event observed on a thread's stream. Every field
// is optional; producers report what they know and the analyzer treats
// zero values as "not reported".
type StepMessage struct {
	Step       string        `json:"step,omitempty"`
	Status     MessageStatus `json:"status,omitempty"`
	Progress   int           `json:"progress,omitempty"`
	StepNumber int           `json:"step_number,omitempty"`
	TotalSteps int           `json:"total_steps,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// IsFinalCompletion reports whether the message is a completed sentinel.
func (m StepMessage) IsFinalCompletion() bool {
	if m.Status != MessageCompleted {
		return false
	}
	return m.Step == StepFinalCompletion || m.Step == StepEnhancedCompletion
}
