package duckdb

import (
	"github.com/leapstack-labs/tsa/pkg/adapter"
	"github.com/rs/zerolog"
)

func init() {
	adapter.Register("duckdb", func(logger zerolog.Logger) adapter.Adapter { return New(logger) })
}
