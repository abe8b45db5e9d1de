package core

import "time"

// Store defines the run history operations.
type Store interface {
	Close() error

	// Run operations
	CreateRun(title string) (*Run, error)
	GetRun(id string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	ListRuns(limit int) ([]*Run, error)

	// Condition result operations
	RecordResult(rec *ConditionRecord) error
	ListResults(runID string) ([]*ConditionRecord, error)
}

// RunStatus represents the status of an evaluation run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run represents one evaluation of a set of collections.
type Run struct {
	ID          string
	Title       string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// ConditionRecord is the persisted outcome of one condition in a run.
type ConditionRecord struct {
	ID          string
	RunID       string
	Collection  string
	ConditionID string
	Site        string
	MasterAlias string
	Condition   string
	State       string
	Result      Result
	Errors      []string
	ExecutionMS int64
	RecordedAt  time.Time
}
