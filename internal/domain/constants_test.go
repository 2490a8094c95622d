// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"testing"
	"time"
)

// The status and kind strings below are shared with non-Go producers and
// consumers. They are lowercase on the wire and must never change casing.

func TestStepStatusConstants(t *testing.T) {
	if StepPending != "pending" {
		t.Fatalf("unexpected StepPending value: %s", StepPending)
	}
	if StepRunning != "running" {
		t.Fatalf("unexpected StepRunning value: %s", StepRunning)
	}
	if StepCompleted != "completed" {
		t.Fatalf("unexpected StepCompleted value: %s", StepCompleted)
	}
	if StepFailed != "failed" {
		t.Fatalf("unexpected StepFailed value: %s", StepFailed)
	}
	if StepSkipped != "skipped" {
		t.Fatalf("unexpected StepSkipped value: %s", StepSkipped)
	}
}

func TestStepKindConstants(t *testing.T) {
	if KindAnalysis != "analysis" {
		t.Fatalf("unexpected KindAnalysis value: %s", KindAnalysis)
	}
	if KindPlanning != "planning" {
		t.Fatalf("unexpected KindPlanning value: %s", KindPlanning)
	}
	if KindCoordination != "coordination" {
		t.Fatalf("unexpected KindCoordination value: %s", KindCoordination)
	}
	if KindExecution != "execution" {
		t.Fatalf("unexpected KindExecution value: %s", KindExecution)
	}
	if KindCompletion != "completion" {
		t.Fatalf("unexpected KindCompletion value: %s", KindCompletion)
	}
}

func TestThreadStatusConstants(t *testing.T) {
	if ThreadIdle != "idle" {
		t.Fatalf("unexpected ThreadIdle value: %s", ThreadIdle)
	}
	if ThreadPending != "pending" {
		t.Fatalf("unexpected ThreadPending value: %s", ThreadPending)
	}
	if ThreadRunning != "running" {
		t.Fatalf("unexpected ThreadRunning value: %s", ThreadRunning)
	}
	if ThreadCompleted != "completed" {
		t.Fatalf("unexpected ThreadCompleted value: %s", ThreadCompleted)
	}
	if ThreadFailed != "failed" {
		t.Fatalf("unexpected ThreadFailed value: %s", ThreadFailed)
	}
	if ThreadCancelled != "cancelled" {
		t.Fatalf("unexpected ThreadCancelled value: %s", ThreadCancelled)
	}
}

func TestSentinelStepNames(t *testing.T) {
	if StepFinalCompletion != "final_completion" {
		t.Fatalf("unexpected StepFinalCompletion value: %s", StepFinalCompletion)
	}
	if StepEnhancedCompletion != "enhanced_completion" {
		t.Fatalf("unexpected StepEnhancedCompletion value: %s", StepEnhancedCompletion)
	}
	if DefaultTotalSteps != 4 {
		t.Fatalf("unexpected DefaultTotalSteps value: %d", DefaultTotalSteps)
	}
}

func TestIsFinalCompletion(t *testing.T) {
	cases := []struct {
		name string
		msg  StepMessage
		want bool
	}{
		{"final completed", StepMessage{Step: StepFinalCompletion, Status: MessageCompleted}, true},
		{"enhanced completed", StepMessage{Step: StepEnhancedCompletion, Status: MessageCompleted}, true},
		{"final but running", StepMessage{Step: StepFinalCompletion, Status: MessageRunning}, false},
		{"ordinary completed", StepMessage{Step: "execute", Status: MessageCompleted}, false},
		{"empty", StepMessage{}, false},
	}
	for _, tc := range cases {
		if got := tc.msg.IsFinalCompletion(); got != tc.want {
			t.Fatalf("%s: IsFinalCompletion() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestThreadStatusIsTerminal(t *testing.T) {
	terminal := []ThreadStatus{ThreadCompleted, ThreadFailed, ThreadCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	live := []ThreadStatus{ThreadIdle, ThreadPending, ThreadRunning}
	for _, s := range live {
		if s.IsTerminal() {
			t.Fatalf("expected %s not to be terminal", s)
		}
	}
}

func TestEventRecordMessage(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := EventRecord{
		Step:       "execute",
		Status:     MessageRunning,
		Progress:   40,
		StepNumber: 3,
		TotalSteps: 5,
		CreatedAt:  created,
	}
	msg := rec.Message()
	if msg.Step != "execute" || msg.Status != MessageRunning {
		t.Fatalf("unexpected message projection: %+v", msg)
	}
	if msg.Progress != 40 || msg.StepNumber != 3 || msg.TotalSteps != 5 {
		t.Fatalf("numeric fields not carried over: %+v", msg)
	}
	if !msg.CreatedAt.Equal(created) {
		t.Fatalf("created_at not carried over: %v", msg.CreatedAt)
	}
}
