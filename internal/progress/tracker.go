// SPDX-License-Identifier: Apache-2.0

// Package progress maintains the Current Step Information record, the
// compact per-thread progress summary read by status pages. All operations
// return new values and never mutate their input. The tracker recomputes
// the percentage from the completion list, so two uncoordinated writers can
// drop each other's appends; callers serialize updates per thread.
package progress

import (
	"math"
	"time"

	"github.com/adiadia/agent-progress/internal/domain"
)

// New returns a fresh tracker record. Zero arguments pick the documented
// defaults: current step "pending", four expected steps. The metadata bag
// starts from the caller-supplied entries with a creation timestamp
// stamped over them.
func New(currentStep string, totalSteps int, metadata map[string]any) domain.CurrentStepInfo {
	if currentStep == "" {
		currentStep = domain.CurrentStepPending
	}
	if totalSteps <= 0 {
		totalSteps = domain.DefaultTotalSteps
	}

	meta := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[domain.MetaCreatedAt] = time.Now().UTC()

	return domain.CurrentStepInfo{
		CompletedSteps:  []string{},
		CurrentProgress: 0,
		TotalSteps:      totalSteps,
		CurrentStep:     currentStep,
		Metadata:        meta,
	}
}

// Update records one finished step and moves the tracker onto the next.
// completedStep is appended as-is: duplicates are legal and each append
// shifts the percentage, which is round(len(completed)/totalSteps*100) and
// deliberately not clamped: a value over 100 means more completions were
// reported than totalSteps expected. patch entries are merged over the
// metadata and updatedAt is stamped last.
func Update(csi domain.CurrentStepInfo, completedStep, newCurrentStep string, patch map[string]any) domain.CurrentStepInfo {
	completed := make([]string, len(csi.CompletedSteps), len(csi.CompletedSteps)+1)
	copy(completed, csi.CompletedSteps)
	completed = append(completed, completedStep)

	totalSteps := csi.TotalSteps
	if totalSteps <= 0 {
		totalSteps = domain.DefaultTotalSteps
	}

	meta := make(map[string]any, len(csi.Metadata)+len(patch)+1)
	for k, v := range csi.Metadata {
		meta[k] = v
	}
	for k, v := range patch {
		meta[k] = v
	}
	meta[domain.MetaUpdatedAt] = time.Now().UTC()

	next := csi
	next.CompletedSteps = completed
	next.CurrentProgress = percentage(len(completed), totalSteps)
	next.TotalSteps = totalSteps
	next.CurrentStep = newCurrentStep
	next.Metadata = meta
	return next
}

// IsComplete reports whether the tracker shows a finished thread. Any one
// signal suffices: the percentage reached 100, the completion list reached
// totalSteps, or the current step is the "completed" sentinel.
func IsComplete(csi domain.CurrentStepInfo) bool {
	if csi.CurrentProgress >= 100 {
		return true
	}
	if csi.TotalSteps > 0 && len(csi.CompletedSteps) >= csi.TotalSteps {
		return true
	}
	return csi.CurrentStep == domain.CurrentStepCompleted
}

// Patch is a partial CurrentStepInfo for Merge. Nil fields are absent.
// Present fields replace the existing value wholesale (CompletedSteps is
// never concatenated), except Metadata, which deep-merges into the
// existing bag.
type Patch struct {
	CompletedSteps  []string
	CurrentProgress *int
	TotalSteps      *int
	CurrentStep     *string
	Metadata        map[string]any
}

// Merge lays patch over existing and stamps updatedAt.
func Merge(existing domain.CurrentStepInfo, patch Patch) domain.CurrentStepInfo {
	next := existing

	source := existing.CompletedSteps
	if patch.CompletedSteps != nil {
		source = patch.CompletedSteps
	}
	completed := make([]string, len(source))
	copy(completed, source)
	next.CompletedSteps = completed

	if patch.CurrentProgress != nil {
		next.CurrentProgress = *patch.CurrentProgress
	}
	if patch.TotalSteps != nil {
		next.TotalSteps = *patch.TotalSteps
	}
	if patch.CurrentStep != nil {
		next.CurrentStep = *patch.CurrentStep
	}

	meta := deepMerge(existing.Metadata, patch.Metadata)
	meta[domain.MetaUpdatedAt] = time.Now().UTC()
	next.Metadata = meta

	return next
}

func percentage(completed, total int) int {
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// deepMerge copies base and lays patch over it, recursing where both sides
// hold a map under the same key.
func deepMerge(base, patch map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range patch {
		if baseMap, ok := merged[k].(map[string]any); ok {
			if patchMap, ok := v.(map[string]any); ok {
				merged[k] = deepMerge(baseMap, patchMap)
				continue
			}
		}
		merged[k] = v
	}
	return merged
}
