// SPDX-License-Identifier: Apache-2.0

// Package orchestration holds the pure planning logic for a thread's step
// graph: step construction and updates, dependency resolution, and the
// aggregate progress/status reductions. Nothing here performs I/O or holds
// locks; callers own persistence and the serialization of writes.
package orchestration

import (
	"time"

	"github.com/adiadia/agent-progress/internal/domain"
)

// Step lifecycle: pending -> running -> completed | failed | skipped.
// There is no transition back to pending; retries are modelled as new
// attempts (metadata retryCount), not status resets.

// NewStep returns a pending step with zero progress and metadata seeded
// with a creation timestamp and a zero retry counter.
func NewStep(id, name string, kind domain.StepKind, dependencies []string) domain.Step {
	return domain.Step{
		ID:           id,
		Name:         name,
		Kind:         kind,
		Status:       domain.StepPending,
		Progress:     0,
		Dependencies: copyDeps(dependencies),
		Metadata: map[string]any{
			domain.MetaCreatedAt:  time.Now().UTC(),
			domain.MetaRetryCount: 0,
		},
	}
}

// UpdateStep returns a copy of step carrying the new status and progress.
// The input is never mutated, so callers can hold snapshots of earlier
// states. result, when non-nil, lands under the "result" metadata key and
// patch entries are merged over the copied metadata. Completed and failed
// statuses stamp "completedAt"; when the metadata carries a usable
// "startedAt" the elapsed "durationMs" is recorded too, otherwise the
// duration is silently omitted.
func UpdateStep(step domain.Step, status domain.StepStatus, progress int, result any, patch map[string]any) domain.Step {
	meta := make(map[string]any, len(step.Metadata)+len(patch)+3)
	for k, v := range step.Metadata {
		meta[k] = v
	}
	for k, v := range patch {
		meta[k] = v
	}
	if result != nil {
		meta[domain.MetaResult] = result
	}

	if status == domain.StepCompleted || status == domain.StepFailed {
		completedAt := time.Now().UTC()
		meta[domain.MetaCompletedAt] = completedAt
		if startedAt, ok := timeValue(meta[domain.MetaStartedAt]); ok {
			meta[domain.MetaDurationMS] = completedAt.Sub(startedAt).Milliseconds()
		}
	}

	next := step
	next.Status = status
	next.Progress = progress
	next.Metadata = meta
	next.Dependencies = copyDeps(step.Dependencies)
	return next
}

func copyDeps(dependencies []string) []string {
	if len(dependencies) == 0 {
		return nil
	}
	deps := make([]string, len(dependencies))
	copy(deps, dependencies)
	return deps
}

// timeValue interprets a metadata timestamp that may have crossed a JSON
// boundary: time.Time survives in-process, RFC 3339 strings come back from
// storage.
func timeValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}
