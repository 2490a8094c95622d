// SPDX-License-Identifier: Apache-2.0

package validation

import (
	"errors"
	"testing"

	"github.com/adiadia/agent-progress/internal/domain"
)

func validStep(id string, deps ...string) domain.Step {
	return domain.Step{
		ID:           id,
		Name:         "Step " + id,
		Kind:         domain.KindExecution,
		Status:       domain.StepPending,
		Progress:     0,
		Dependencies: deps,
	}
}

func hasCode(t *testing.T, errs ValidationErrors, field, code string) {
	t.Helper()
	for _, e := range errs {
		if e.Field == field && e.Code == code {
			return
		}
	}
	t.Fatalf("expected %s error on %q, got %v", code, field, errs)
}

func TestValidateStepValid(t *testing.T) {
	if errs := ValidateStep(validStep("a")); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidateStepFailures(t *testing.T) {
	step := domain.Step{
		ID:       " ",
		Name:     "",
		Kind:     "telepathy",
		Status:   "paused",
		Progress: 150,
	}
	errs := ValidateStep(step)

	hasCode(t, errs, "id", CodeRequired)
	hasCode(t, errs, "name", CodeRequired)
	hasCode(t, errs, "kind", CodeInvalidValue)
	hasCode(t, errs, "status", CodeInvalidValue)
	hasCode(t, errs, "progress", CodeOutOfRange)

	for _, e := range errs {
		if e.Severity != SeverityError {
			t.Fatalf("expected error severity, got %s on %s", e.Severity, e.Field)
		}
	}
}

func TestValidateStepSelfDependency(t *testing.T) {
	errs := ValidateStep(validStep("a", "a"))
	hasCode(t, errs, "dependencies", CodeInvalidValue)
}

func TestValidateStepsCrossChecks(t *testing.T) {
	steps := []domain.Step{
		validStep("a"),
		validStep("a"),
		validStep("b", "ghost"),
	}
	errs := ValidateSteps(steps)

	hasCode(t, errs, "steps[1].id", CodeDuplicate)
	hasCode(t, errs, "steps[2].dependencies", CodeUnknownRef)
}

func TestValidateStepsValidChain(t *testing.T) {
	steps := []domain.Step{
		validStep("a"),
		validStep("b", "a"),
		validStep("c", "a", "b"),
	}
	if errs := ValidateSteps(steps); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidateMessage(t *testing.T) {
	if errs := ValidateMessage(domain.StepMessage{}); len(errs) != 0 {
		t.Fatalf("empty message must validate (all fields optional), got %v", errs)
	}

	ok := domain.StepMessage{Step: "execute", Status: domain.MessageRunning, Progress: 50, StepNumber: 2, TotalSteps: 4}
	if errs := ValidateMessage(ok); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}

	bad := domain.StepMessage{Status: "paused", Progress: -1, StepNumber: -2, TotalSteps: -3}
	errs := ValidateMessage(bad)
	hasCode(t, errs, "status", CodeInvalidValue)
	hasCode(t, errs, "progress", CodeOutOfRange)
	hasCode(t, errs, "step_number", CodeOutOfRange)
	hasCode(t, errs, "total_steps", CodeOutOfRange)
}

func TestValidateCreateThread(t *testing.T) {
	if errs := ValidateCreateThread(domain.CreateThreadParams{}); len(errs) != 0 {
		t.Fatalf("empty params must validate (default plan applies), got %v", errs)
	}

	conflict := domain.CreateThreadParams{TemplateName: "default", Steps: []domain.Step{validStep("a")}}
	hasCode(t, ValidateCreateThread(conflict), "template_name", CodeConflict)

	badURL := domain.CreateThreadParams{WebhookURL: "ftp://example.com/hook"}
	hasCode(t, ValidateCreateThread(badURL), "webhook_url", CodeInvalidValue)

	relativeURL := domain.CreateThreadParams{WebhookURL: "/hooks/done"}
	hasCode(t, ValidateCreateThread(relativeURL), "webhook_url", CodeInvalidValue)

	negative := domain.CreateThreadParams{TotalSteps: -1}
	hasCode(t, ValidateCreateThread(negative), "total_steps", CodeOutOfRange)

	withSteps := domain.CreateThreadParams{Steps: []domain.Step{validStep("a"), validStep("a")}}
	hasCode(t, ValidateCreateThread(withSteps), "steps[1].id", CodeDuplicate)

	goodURL := domain.CreateThreadParams{WebhookURL: "https://example.com/hook"}
	if errs := ValidateCreateThread(goodURL); len(errs) != 0 {
		t.Fatalf("expected https webhook to validate, got %v", errs)
	}
}

func TestValidationErrorsAsError(t *testing.T) {
	var none ValidationErrors
	if err := none.OrNil(); err != nil {
		t.Fatalf("expected nil error for empty set, got %v", err)
	}

	errs := ValidationErrors{errorAt("id", CodeRequired, "step id is required")}
	err := errs.OrNil()
	if err == nil {
		t.Fatal("expected non-nil error")
	}

	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors via errors.As, got %T", err)
	}
	if got := err.Error(); got != "id: step id is required (required)" {
		t.Fatalf("unexpected error string: %q", got)
	}
}
