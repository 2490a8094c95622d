// SPDX-License-Identifier: Apache-2.0

// Package validation rejects malformed records at the pipeline entry
// points. The core packages assume their inputs already passed through
// here and do not re-validate.
package validation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/adiadia/agent-progress/internal/domain"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Error codes carried on ValidationError.Code. Clients branch on these, so
// they are part of the API surface.
const (
	CodeRequired     = "required"
	CodeInvalidValue = "invalid_value"
	CodeOutOfRange   = "out_of_range"
	CodeDuplicate    = "duplicate"
	CodeUnknownRef   = "unknown_reference"
	CodeConflict     = "conflict"
)

type ValidationError struct {
	Field    string   `json:"field"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Field, e.Message, e.Code)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation passed"
	}
	parts := make([]string, 0, len(e))
	for _, ve := range e {
		parts = append(parts, ve.Error())
	}
	return strings.Join(parts, "; ")
}

// OrNil returns the collected errors as an error value, or nil when the
// input validated cleanly. Returning a nil ValidationErrors directly would
// produce a non-nil error interface; use this instead.
func (e ValidationErrors) OrNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

func errorAt(field, code, message string) ValidationError {
	return ValidationError{Field: field, Code: code, Message: message, Severity: SeverityError}
}

var stepStatuses = map[domain.StepStatus]struct{}{
	domain.StepPending:   {},
	domain.StepRunning:   {},
	domain.StepCompleted: {},
	domain.StepFailed:    {},
	domain.StepSkipped:   {},
}

var stepKinds = map[domain.StepKind]struct{}{
	domain.KindAnalysis:     {},
	domain.KindPlanning:     {},
	domain.KindCoordination: {},
	domain.KindExecution:    {},
	domain.KindCompletion:   {},
}

var messageStatuses = map[domain.MessageStatus]struct{}{
	domain.MessagePending:   {},
	domain.MessageRunning:   {},
	domain.MessageCompleted: {},
	domain.MessageFailed:    {},
	domain.MessageCancelled: {},
}

// ValidateStep checks one step in isolation: identity fields present,
// vocabulary fields within their enums, progress within range, and no
// self-dependency. Cross-step checks live in ValidateSteps.
func ValidateStep(step domain.Step) ValidationErrors {
	return validateStepAt("", step)
}

func validateStepAt(prefix string, step domain.Step) ValidationErrors {
	field := func(name string) string {
		if prefix == "" {
			return name
		}
		return prefix + "." + name
	}

	var errs ValidationErrors
	if strings.TrimSpace(step.ID) == "" {
		errs = append(errs, errorAt(field("id"), CodeRequired, "step id is required"))
	}
	if strings.TrimSpace(step.Name) == "" {
		errs = append(errs, errorAt(field("name"), CodeRequired, "step name is required"))
	}
	if _, ok := stepKinds[step.Kind]; !ok {
		errs = append(errs, errorAt(field("kind"), CodeInvalidValue, fmt.Sprintf("unknown step kind %q", step.Kind)))
	}
	if _, ok := stepStatuses[step.Status]; !ok {
		errs = append(errs, errorAt(field("status"), CodeInvalidValue, fmt.Sprintf("unknown step status %q", step.Status)))
	}
	if step.Progress < 0 || step.Progress > 100 {
		errs = append(errs, errorAt(field("progress"), CodeOutOfRange, "progress must be between 0 and 100"))
	}
	for _, dep := range step.Dependencies {
		if dep == step.ID && step.ID != "" {
			errs = append(errs, errorAt(field("dependencies"), CodeInvalidValue, fmt.Sprintf("step %q depends on itself", step.ID)))
		}
	}
	return errs
}

// ValidateSteps runs the per-step checks and the cross-step ones: unique
// ids and dependency references that resolve within the set. Cycle
// detection is the dependency resolver's job, not this package's.
func ValidateSteps(steps []domain.Step) ValidationErrors {
	var errs ValidationErrors

	seen := make(map[string]struct{}, len(steps))
	ids := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		ids[step.ID] = struct{}{}
	}

	for i, step := range steps {
		prefix := fmt.Sprintf("steps[%d]", i)
		errs = append(errs, validateStepAt(prefix, step)...)

		if step.ID != "" {
			if _, dup := seen[step.ID]; dup {
				errs = append(errs, errorAt(prefix+".id", CodeDuplicate, fmt.Sprintf("duplicate step id %q", step.ID)))
			}
			seen[step.ID] = struct{}{}
		}

		for _, dep := range step.Dependencies {
			if dep == step.ID {
				continue // already reported as a self-dependency
			}
			if _, ok := ids[dep]; !ok {
				errs = append(errs, errorAt(prefix+".dependencies", CodeUnknownRef, fmt.Sprintf("dependency %q does not match any step id", dep)))
			}
		}
	}
	return errs
}

// ValidateMessage checks one inbound step message. Every field is optional
// (producers report what they know) but what is present must be sane.
func ValidateMessage(msg domain.StepMessage) ValidationErrors {
	var errs ValidationErrors
	if msg.Status != "" {
		if _, ok := messageStatuses[msg.Status]; !ok {
			errs = append(errs, errorAt("status", CodeInvalidValue, fmt.Sprintf("unknown message status %q", msg.Status)))
		}
	}
	if msg.Progress < 0 || msg.Progress > 100 {
		errs = append(errs, errorAt("progress", CodeOutOfRange, "progress must be between 0 and 100"))
	}
	if msg.StepNumber < 0 {
		errs = append(errs, errorAt("step_number", CodeOutOfRange, "step_number must not be negative"))
	}
	if msg.TotalSteps < 0 {
		errs = append(errs, errorAt("total_steps", CodeOutOfRange, "total_steps must not be negative"))
	}
	return errs
}

// ValidateCreateThread checks a thread creation request. A template name
// and an explicit step list are mutually exclusive; with neither present
// the default plan applies, which is fine.
func ValidateCreateThread(params domain.CreateThreadParams) ValidationErrors {
	var errs ValidationErrors

	if params.TemplateName != "" && len(params.Steps) > 0 {
		errs = append(errs, errorAt("template_name", CodeConflict, "template_name and steps are mutually exclusive"))
	}
	if params.TotalSteps < 0 {
		errs = append(errs, errorAt("total_steps", CodeOutOfRange, "total_steps must not be negative"))
	}
	if params.WebhookURL != "" {
		parsed, err := url.Parse(params.WebhookURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			errs = append(errs, errorAt("webhook_url", CodeInvalidValue, "webhook_url must be an absolute http(s) URL"))
		}
	}
	if len(params.Steps) > 0 {
		errs = append(errs, ValidateSteps(params.Steps)...)
	}
	return errs
}
