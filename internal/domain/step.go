package domain

type StepStatus string
type StepKind string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

const (
	KindAnalysis     StepKind = "analysis"
	KindPlanning     StepKind = "planning"
	KindCoordination StepKind = "coordination"
	KindExecution    StepKind = "execution"
	KindCompletion   StepKind = "completion"
)

// Metadata keys stamped onto steps and trackers by the orchestration
// operations. Values cross a JSON boundary, so a key written as time.Time
// may read back as an RFC3339 string.
const (
	MetaCreatedAt   = "createdAt"
	MetaUpdatedAt   = "updatedAt"
	MetaStartedAt   = "startedAt"
	MetaCompletedAt = "completedAt"
	MetaDurationMS  = "durationMs"
	MetaRetryCount  = "retryCount"
	MetaResult      = "result"
)

// Step is one unit of work in a thread's plan. Steps are value objects:
// operations that change one return a new value and never mutate the
// input, so snapshots of earlier states stay valid.
type Step struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Kind         StepKind       `json:"kind"`
	Status       StepStatus     `json:"status"`
	Progress     int            `json:"progress"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}
