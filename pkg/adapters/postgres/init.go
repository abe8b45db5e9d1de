package postgres

import (
	"github.com/leapstack-labs/tsa/pkg/adapter"
	"github.com/rs/zerolog"
)

func init() {
	adapter.Register("postgres", func(logger zerolog.Logger) adapter.Adapter { return New(logger) })
}
