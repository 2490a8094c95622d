// SPDX-License-Identifier: Apache-2.0

package orchestration

import (
	"fmt"

	"github.com/adiadia/agent-progress/internal/domain"
)

// DependenciesSatisfied reports whether every dependency of step resolves
// to a completed step in all. The gate is strict: failed and skipped
// dependencies do not satisfy it, and a dependency id with no matching step
// counts as unsatisfied rather than being ignored.
func DependenciesSatisfied(step domain.Step, all []domain.Step) bool {
	return dependenciesSatisfied(step, indexByID(all))
}

// NextExecutableSteps returns the dependency frontier: every pending step
// whose dependencies are all completed, in the order the caller supplied
// the steps. Steps already running, finished, or skipped never appear.
func NextExecutableSteps(all []domain.Step) []domain.Step {
	byID := indexByID(all)
	var ready []domain.Step
	for _, step := range all {
		if step.Status != domain.StepPending {
			continue
		}
		if dependenciesSatisfied(step, byID) {
			ready = append(ready, step)
		}
	}
	return ready
}

// ValidateDependencies checks the shape of a step graph: duplicate ids,
// self-references, references to unknown steps, and cycles. The resolver
// functions above assume a valid graph and never call this; it belongs at
// the boundaries (template linting, thread creation) so a malformed plan is
// rejected before anything tries to schedule it.
func ValidateDependencies(all []domain.Step) error {
	byID := make(map[string]domain.Step, len(all))
	for _, step := range all {
		if _, dup := byID[step.ID]; dup {
			return fmt.Errorf("step %q: %w", step.ID, domain.ErrDuplicateStepID)
		}
		byID[step.ID] = step
	}

	for _, step := range all {
		for _, depID := range step.Dependencies {
			if depID == step.ID {
				return fmt.Errorf("step %q: %w", step.ID, domain.ErrSelfDependency)
			}
			if _, ok := byID[depID]; !ok {
				return fmt.Errorf("step %q depends on %q: %w", step.ID, depID, domain.ErrUnknownDependency)
			}
		}
	}

	// DFS with color marking: white is undiscovered, gray is on the current
	// path, black is fully explored. Hitting a gray node means a cycle.
	const (
		white = 0
		gray  = 1
		black = 2
	)
	colors := make(map[string]int, len(all))
	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = gray
		for _, depID := range byID[id].Dependencies {
			switch colors[depID] {
			case gray:
				return true
			case white:
				if visit(depID) {
					return true
				}
			}
		}
		colors[id] = black
		return false
	}
	for _, step := range all {
		if colors[step.ID] == white && visit(step.ID) {
			return fmt.Errorf("step %q: %w", step.ID, domain.ErrDependencyCycle)
		}
	}
	return nil
}

func dependenciesSatisfied(step domain.Step, byID map[string]domain.Step) bool {
	for _, depID := range step.Dependencies {
		dep, ok := byID[depID]
		if !ok || dep.Status != domain.StepCompleted {
			return false
		}
	}
	return true
}

func indexByID(all []domain.Step) map[string]domain.Step {
	byID := make(map[string]domain.Step, len(all))
	for _, step := range all {
		byID[step.ID] = step
	}
	return byID
}
