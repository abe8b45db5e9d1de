// Package core defines the shared language of the tsa system.
//
// This package contains:
//   - Three-valued truth (TriState) and its connectives
//   - Time types (Window, Interval) and the evaluation output (Partition, Result)
//   - Service contracts shared with adapters (Adapter, AdapterConfig, Rows)
//   - The run history contract (Store, Run, ConditionRecord)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
