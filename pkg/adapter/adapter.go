// Package adapter provides the database adapter registry and the shared
// database/sql plumbing used by the observation store adapters.
//
// Concrete adapters live in pkg/adapters/ subdirectories and register
// themselves from init. Import them with a blank identifier:
//
//	import _ "github.com/leapstack-labs/tsa/pkg/adapters/duckdb"
package adapter

import (
	"github.com/leapstack-labs/tsa/pkg/core"
)

// Type aliases so callers can stay inside this package.
type (
	// Config is an alias for core.AdapterConfig.
	Config = core.AdapterConfig

	// Rows is an alias for core.Rows.
	Rows = core.Rows

	// Adapter is an alias for core.Adapter.
	Adapter = core.Adapter
)
