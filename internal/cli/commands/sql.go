package commands

import (
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/tsa/internal/cli/output"
	"github.com/leapstack-labs/tsa/internal/obsdb"
	"github.com/leapstack-labs/tsa/pkg/sqlgen"
	"github.com/spf13/cobra"
)

// SQLOutput is the JSON form of the statements of one condition.
type SQLOutput struct {
	Collection string   `json:"collection"`
	Condition  string   `json:"condition"`
	Statements []string `json:"statements"`
	Cleanup    []string `json:"cleanup,omitempty"`
	Result     string   `json:"result"`
	Error      string   `json:"error,omitempty"`
}

// NewSQLCommand creates the sql command.
func NewSQLCommand() *cobra.Command {
	var (
		conditions []string
		dialect    string
		offline    bool
	)

	cmd := &cobra.Command{
		Use:   "sql <input>",
		Short: "Print the evaluation SQL of conditions",
		Long: `Render the statements that evaluate each valid condition inside the
database, in evaluation order.

Sensor ids are read from the observation database, or from the dryvalidate
section of the configuration with --offline.`,
		Example: `  # SQL of every condition
  tsa sql conditions.xlsx

  # One condition, postgres flavour, no database connection
  tsa sql conditions.xlsx --condition tampere_d1 --dialect postgres --offline`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSQL(cmd, args[0], conditions, dialect, offline)
		},
	}

	cmd.Flags().StringSliceVar(&conditions, "condition", nil, "Only render these condition ids")
	cmd.Flags().StringVar(&dialect, "dialect", "", "SQL dialect (default: target type)")
	cmd.Flags().BoolVar(&offline, "offline", false, "Take sensor ids from the configuration instead of the database")
	_ = cmd.RegisterFlagCompletionFunc("dialect", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return sqlgen.List(), cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func runSQL(cmd *cobra.Command, input string, only []string, dialect string, offline bool) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	colls, err := cc.ReadInput(input)
	if err != nil {
		return err
	}

	sensors := cc.Cfg.DryValidate.SensorIDs()
	if !offline {
		ctx := commandContext(cmd)
		a, err := cc.OpenAdapter(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()
		if sensors, err = obsdb.New(a, cc.Logger).SensorIDs(ctx); err != nil {
			return err
		}
		if dialect == "" {
			dialect = a.DialectName()
		}
	}
	if dialect == "" && cc.Cfg.Target != nil {
		dialect = cc.Cfg.Target.Type
	}

	d, err := sqlgen.New(dialect, sqlgen.Params{
		ObsRelation: cc.Cfg.ObsRelation,
		MaxMinutes:  cc.Cfg.MaxMinutes,
		SensorIDs:   sensors,
	})
	if err != nil {
		return err
	}

	var outs []SQLOutput
	for _, coll := range colls {
		for _, cond := range coll.Plan() {
			if len(only) > 0 && !slices.Contains(only, cond.ID) {
				continue
			}
			o := SQLOutput{Collection: coll.Title, Condition: cond.ID}
			stmts, err := d.ConditionSQL(cond)
			if err != nil {
				o.Error = err.Error()
			} else {
				o.Statements, o.Cleanup, o.Result = stmts, d.CleanupSQL(cond), d.ResultSQL(cond)
			}
			outs = append(outs, o)
		}
	}
	if len(only) > 0 && len(outs) == 0 {
		return fmt.Errorf("no valid condition matches %s", strings.Join(only, ", "))
	}
	return renderSQL(cc.Renderer, outs)
}

func renderSQL(r *output.Renderer, outs []SQLOutput) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(outs)
	}
	markdown := r.EffectiveMode() == output.ModeMarkdown
	for _, o := range outs {
		if o.Error != "" {
			r.Warning(fmt.Sprintf("%s/%s: %s", o.Collection, o.Condition, o.Error))
			continue
		}
		if markdown {
			r.Header(fmt.Sprintf("%s / %s", o.Collection, o.Condition))
			r.Println("```sql")
		} else {
			r.Printf("-- %s / %s\n", o.Collection, o.Condition)
		}
		for _, s := range o.Statements {
			r.Printf("%s;\n", s)
		}
		r.Printf("%s;\n", o.Result)
		for _, s := range o.Cleanup {
			r.Printf("%s;\n", s)
		}
		if markdown {
			r.Println("```")
		}
		r.Println()
	}
	return nil
}
