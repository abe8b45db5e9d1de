// Package config loads tsa configuration.
//
// Sources are merged in order of increasing precedence: built-in defaults,
// the tsa.yaml file, TSA_* environment variables and explicitly set
// command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/tsa/pkg/adapter"
	"github.com/leapstack-labs/tsa/pkg/core"
)

// Config holds all configuration options.
type Config struct {
	Logging     LoggingConfig     `koanf:"logging"`
	Target      *TargetConfig     `koanf:"target"`
	StatePath   string            `koanf:"state_path"`
	Workers     int               `koanf:"workers"`
	Mode        string            `koanf:"mode"`
	MaxMinutes  int               `koanf:"max_minutes"`
	ObsRelation string            `koanf:"obs_relation"`
	OutputDir   string            `koanf:"output_dir"`
	MetricsFile string            `koanf:"metrics_file"`
	DropSheets  []string          `koanf:"drop_sheets"`
	Timeout     time.Duration     `koanf:"timeout"`
	Output      string            `koanf:"output"`
	Verbose     bool              `koanf:"verbose"`
	DryValidate DryValidateConfig `koanf:"dryvalidate"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string     `koanf:"level"`
	Format string     `koanf:"format"`
	Loki   LokiConfig `koanf:"loki"`
}

// LokiConfig configures the optional Loki sink.
type LokiConfig struct {
	Enabled bool              `koanf:"enabled"`
	URL     string            `koanf:"url"`
	Labels  map[string]string `koanf:"labels"`
}

// TargetConfig holds the observation database target.
type TargetConfig struct {
	Type string `koanf:"type"` // duckdb, postgres

	// File-based databases (DuckDB)
	Database string `koanf:"database"` // file path or database name

	// Network databases
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	Schema string `koanf:"schema"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`

	// Params holds adapter-specific configuration (e.g. DuckDB settings)
	Params map[string]any `koanf:"params"`
}

// DryValidateConfig lists the stations and sensors known without a
// database, for validating input offline.
type DryValidateConfig struct {
	StationIDs []int          `koanf:"station_ids"`
	Sensors    map[string]int `koanf:"sensors"`
}

// Enabled reports whether any static ids are configured.
func (d DryValidateConfig) Enabled() bool {
	return len(d.StationIDs) > 0 || len(d.Sensors) > 0
}

// SensorIDs returns the sensor map with lowercase names.
func (d DryValidateConfig) SensorIDs() map[string]int {
	out := make(map[string]int, len(d.Sensors))
	for name, id := range d.Sensors {
		out[strings.ToLower(name)] = id
	}
	return out
}

// Validate checks if the target configuration is valid.
// It uses the adapter registry to determine which adapter types are available.
func (t *TargetConfig) Validate() error {
	if t.Type == "" {
		return fmt.Errorf("target type is required")
	}
	if !adapter.IsRegistered(strings.ToLower(t.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      t.Type,
			Available: adapter.ListAdapters(),
		}
	}
	return nil
}

// AdapterConfig converts the target to an adapter configuration.
func (t *TargetConfig) AdapterConfig() core.AdapterConfig {
	return core.AdapterConfig{
		Type:     strings.ToLower(t.Type),
		Path:     t.Database,
		Database: t.Database,
		Schema:   t.Schema,
		Host:     t.Host,
		Port:     t.Port,
		Username: t.User,
		Password: t.Password,
		Options:  t.Options,
		Params:   t.Params,
	}
}
