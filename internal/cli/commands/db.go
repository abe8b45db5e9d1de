package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/tsa/internal/cli/output"
	"github.com/leapstack-labs/tsa/internal/obsdb"
	"github.com/spf13/cobra"
)

// NewDBCommand creates the db command group.
func NewDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the observation database",
		Long: `Create the observation schema, load observations and list the known
stations and sensors of the target database.`,
	}
	cmd.AddCommand(newDBInitCommand(), newDBLoadCommand(), newDBSensorsCommand())
	return cmd
}

func newDBInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the observation schema",
		Example: `  # Create tables in a DuckDB file
  tsa db init --database obs.duckdb`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			a, err := cc.OpenAdapter(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := obsdb.New(a, cc.Logger).Init(ctx); err != nil {
				return err
			}
			if cc.Renderer.EffectiveMode() == output.ModeJSON {
				return cc.Renderer.JSON(map[string]string{"status": "initialized", "type": a.DialectName()})
			}
			cc.Renderer.Success(fmt.Sprintf("Observation schema ready (%s)", a.DialectName()))
			return nil
		},
	}
}

// LoadOutput is the JSON form of one loaded file.
type LoadOutput struct {
	File        string   `json:"file"`
	Rows        int      `json:"rows"`
	StationObs  int64    `json:"station_obs"`
	SensorObs   int64    `json:"sensor_obs"`
	NewStations []int    `json:"new_stations,omitempty"`
	NewSensors  []string `json:"new_sensors,omitempty"`
}

func newDBLoadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "load <csv>...",
		Short: "Load observations from long-format CSV files",
		Long: `Load observations from CSV files with the header station,sensor,tfrom,seval.

Rows sharing station and time become one station observation. Unknown
stations and sensors are registered automatically.`,
		Example: `  tsa db load january.csv february.csv`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			a, err := cc.OpenAdapter(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			db := obsdb.New(a, cc.Logger)
			if err := db.Init(ctx); err != nil {
				return err
			}

			var outs []LoadOutput
			for _, path := range args {
				stats, err := db.LoadObservationsCSV(ctx, path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				outs = append(outs, LoadOutput{
					File: path, Rows: stats.Rows, StationObs: stats.StationObs, SensorObs: stats.SensorObs,
					NewStations: stats.NewStations, NewSensors: stats.NewSensors,
				})
			}

			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(outs)
			}
			for _, o := range outs {
				r.Success(fmt.Sprintf("%s: %d rows, %d station observations, %d sensor observations",
					o.File, o.Rows, o.StationObs, o.SensorObs))
				if len(o.NewSensors) > 0 {
					r.Println(r.Muted("  new sensors: " + strings.Join(o.NewSensors, ", ")))
				}
				if len(o.NewStations) > 0 {
					r.Println(r.Muted(fmt.Sprintf("  new stations: %v", o.NewStations)))
				}
			}
			return nil
		},
	}
}

// SensorOutput is the JSON form of the known ids.
type SensorOutput struct {
	Stations []int          `json:"stations"`
	Sensors  map[string]int `json:"sensors"`
}

func newDBSensorsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sensors",
		Short: "List known stations and sensors",
		Long: `List the station ids and sensor names of the observation database.

The JSON output can be pasted into the dryvalidate section of tsa.yaml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			a, err := cc.OpenAdapter(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			db := obsdb.New(a, cc.Logger)
			out := SensorOutput{}
			if out.Stations, err = db.StationIDs(ctx); err != nil {
				return err
			}
			if out.Sensors, err = db.SensorIDs(ctx); err != nil {
				return err
			}
			return renderSensors(cc.Renderer, out)
		},
	}
}

func renderSensors(r *output.Renderer, out SensorOutput) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header("Stations")
	r.Println(fmt.Sprint(out.Stations))
	r.Println()
	r.Header("Sensors")

	names := make([]string, 0, len(out.Sensors))
	for name := range out.Sensors {
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Sensor", "ID"})
	for _, name := range names {
		t.AppendRow(table.Row{name, out.Sensors[name]})
	}
	if r.EffectiveMode() == output.ModeMarkdown {
		t.RenderMarkdown()
	} else {
		t.Render()
	}
	return nil
}
