package commands

import (
	"github.com/leapstack-labs/tsa/internal/cli/output"
	"github.com/leapstack-labs/tsa/internal/collection"
	"github.com/leapstack-labs/tsa/internal/obsdb"
	"github.com/spf13/cobra"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	var checkDB bool

	cmd := &cobra.Command{
		Use:   "validate <input>",
		Short: "Compile conditions without evaluating them",
		Long: `Compile every condition of an input workbook (.xlsx) or YAML file and
report syntax errors, unknown aliases and reference cycles.

Station and sensor ids are checked against the dryvalidate section of the
configuration, or against the observation database with --check-db.`,
		Example: `  # Validate a workbook
  tsa validate conditions.xlsx

  # Also check stations and sensors in the database
  tsa validate conditions.xlsx --check-db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0], checkDB)
		},
	}

	cmd.Flags().BoolVar(&checkDB, "check-db", false, "Check station and sensor ids against the observation database")
	return cmd
}

func runValidate(cmd *cobra.Command, input string, checkDB bool) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	colls, err := cc.ReadInput(input)
	if err != nil {
		return err
	}

	stations, sensors := cc.Cfg.DryValidate.StationIDs, cc.Cfg.DryValidate.SensorIDs()
	if checkDB {
		ctx := commandContext(cmd)
		a, err := cc.OpenAdapter(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		db := obsdb.New(a, cc.Logger)
		if stations, err = db.StationIDs(ctx); err != nil {
			return err
		}
		if sensors, err = db.SensorIDs(ctx); err != nil {
			return err
		}
	}
	checkIDs(colls, stations, sensors)

	ok, err := output.RenderValidation(cc.Renderer, colls)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidInput
	}
	return nil
}

// checkIDs checks the primaries of colls against known station and sensor
// ids. Empty lists skip the corresponding check.
func checkIDs(colls []*collection.Collection, stations []int, sensors map[string]int) {
	for _, c := range colls {
		if len(stations) > 0 {
			c.CheckStations(stations)
		}
		if len(sensors) > 0 {
			c.CheckSensors(sensors)
		}
		c.Resolve()
	}
}
