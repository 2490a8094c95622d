// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventRecord is one stored step event. Seq is assigned by the database and
// is strictly increasing per thread, which makes it the resume cursor for
// both the streaming endpoint and the reconciler.
type EventRecord struct {
	ID         uuid.UUID       `json:"id"`
	Seq        int64           `json:"seq"`
	ThreadID   uuid.UUID       `json:"thread_id"`
	Step       string          `json:"step,omitempty"`
	Status     MessageStatus   `json:"status,omitempty"`
	Progress   int             `json:"progress,omitempty"`
	StepNumber int             `json:"step_number,omitempty"`
	TotalSteps int             `json:"total_steps,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Message projects the record onto the analyzer's input shape.
func (e EventRecord) Message() StepMessage {
	return StepMessage{
		Step:       e.Step,
		Status:     e.Status,
		Progress:   e.Progress,
		StepNumber: e.StepNumber,
		TotalSteps: e.TotalSteps,
		CreatedAt:  e.CreatedAt,
	}
}
