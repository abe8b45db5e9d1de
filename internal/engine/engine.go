// Package engine evaluates condition collections and records the results.
// Collections run concurrently, each on its own database session; the
// conditions of one collection run in plan order on that session.
package engine

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/tsa/internal/source"
	"github.com/leapstack-labs/tsa/internal/telemetry"
	"github.com/leapstack-labs/tsa/pkg/adapter"
	"github.com/leapstack-labs/tsa/pkg/core"
	"github.com/leapstack-labs/tsa/pkg/sqlgen"
	"github.com/rs/zerolog"
)

// Mode selects the evaluator.
type Mode string

// Evaluation modes.
const (
	ModeInProcess Mode = "inprocess"
	ModePushdown  Mode = "pushdown"
)

// ParseMode converts a configuration value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeInProcess, ModePushdown:
		return m, nil
	case "":
		return ModeInProcess, nil
	default:
		return "", fmt.Errorf("unknown evaluation mode %q (want %s or %s)", s, ModeInProcess, ModePushdown)
	}
}

// Engine evaluates collections.
type Engine struct {
	adapter adapter.Adapter
	store   core.Store
	source  source.IntervalSource
	mode    Mode
	workers int
	params  sqlgen.Params
	metrics telemetry.Collector
	logger  zerolog.Logger
}

// Config holds engine configuration.
type Config struct {
	// Adapter is a connected observation store. It may be nil when Source
	// is set and Mode is in-process.
	Adapter adapter.Adapter
	// Store records runs and results (optional).
	Store core.Store
	// Source overrides the SQL interval source of the in-process mode.
	Source source.IntervalSource
	// Mode defaults to in-process.
	Mode Mode
	// Workers limits how many collections run at once (default 1).
	Workers int
	// MaxMinutes and ObsRelation are passed to the SQL generator.
	MaxMinutes  int
	ObsRelation string
	// Metrics defaults to a no-op collector.
	Metrics telemetry.Collector
	// Logger is the structured logger. The zero value logs nothing.
	Logger zerolog.Logger
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	mode := cfg.Mode
	if mode == "" {
		mode = ModeInProcess
	}
	switch mode {
	case ModeInProcess:
		if cfg.Adapter == nil && cfg.Source == nil {
			return nil, fmt.Errorf("in-process mode needs a database adapter or an interval source")
		}
	case ModePushdown:
		if cfg.Adapter == nil {
			return nil, fmt.Errorf("pushdown mode needs a database adapter")
		}
	default:
		return nil, fmt.Errorf("unknown evaluation mode %q", mode)
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.Noop()
	}

	cfg.Logger.Debug().Str("mode", string(mode)).Int("workers", workers).Msg("initializing engine")

	return &Engine{
		adapter: cfg.Adapter,
		store:   cfg.Store,
		source:  cfg.Source,
		mode:    mode,
		workers: workers,
		params: sqlgen.Params{
			ObsRelation: cfg.ObsRelation,
			MaxMinutes:  cfg.MaxMinutes,
		},
		metrics: metrics,
		logger:  cfg.Logger,
	}, nil
}

// usesDatabase reports whether evaluation reads the observation store.
func (e *Engine) usesDatabase() bool {
	return e.mode == ModePushdown || e.source == nil
}

// Mode returns the evaluation mode.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Close releases the adapter and the state store.
func (e *Engine) Close() error {
	e.logger.Debug().Msg("closing engine")

	var errs []error
	if e.adapter != nil {
		if err := e.adapter.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing engine: %v", errs)
	}
	return nil
}
