package config

// Default configuration values.
const (
	ConfigFileName    = "tsa.yaml"
	ConfigFileNameAlt = "tsa.yml"

	DefaultStateFile   = ".tsa/state.db"
	DefaultTargetType  = "duckdb"
	DefaultMode        = "inprocess"
	DefaultWorkers     = 1
	DefaultMaxMinutes  = 30
	DefaultObsRelation = "obs_main"
	DefaultOutputDir   = "results"
	DefaultOutput      = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "json"
)

// DefaultDropSheets are workbook sheets that never hold conditions.
var DefaultDropSheets = []string{"info"}

// defaults returns the base layer of the configuration.
func defaults() map[string]any {
	return map[string]any{
		"logging.level":  DefaultLogLevel,
		"logging.format": DefaultLogFormat,
		"state_path":     DefaultStateFile,
		"workers":        DefaultWorkers,
		"mode":           DefaultMode,
		"max_minutes":    DefaultMaxMinutes,
		"obs_relation":   DefaultObsRelation,
		"output_dir":     DefaultOutputDir,
		"drop_sheets":    DefaultDropSheets,
		"output":         DefaultOutput,
		"verbose":        false,
	}
}

// DefaultSchemaForType returns the default schema for a database type.
func DefaultSchemaForType(dbType string) string {
	if dbType == "postgres" {
		return "public"
	}
	return "main"
}

// ApplyTargetDefaults applies default values to a TargetConfig based on the target type.
func ApplyTargetDefaults(t *TargetConfig) {
	if t == nil {
		return
	}
	if t.Type == "" {
		t.Type = DefaultTargetType
	}
	if t.Schema == "" {
		t.Schema = DefaultSchemaForType(t.Type)
	}
	if t.Type == "postgres" {
		if t.Port == 0 {
			t.Port = 5432
		}
	}
}
