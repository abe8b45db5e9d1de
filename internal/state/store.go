// Package state records evaluation runs and condition results in SQLite.
package state

import (
	"github.com/leapstack-labs/tsa/pkg/core"
)

// Type aliases for the run history types defined in pkg/core.
type (
	// Store is an alias for core.Store.
	Store = core.Store

	// RunStatus is an alias for core.RunStatus.
	RunStatus = core.RunStatus

	// Run is an alias for core.Run.
	Run = core.Run

	// ConditionRecord is an alias for core.ConditionRecord.
	ConditionRecord = core.ConditionRecord
)

// Run status constants, re-exported from core.
const (
	RunStatusRunning   = core.RunStatusRunning
	RunStatusCompleted = core.RunStatusCompleted
	RunStatusFailed    = core.RunStatusFailed
	RunStatusCancelled = core.RunStatusCancelled
)
