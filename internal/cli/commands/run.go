package commands

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/leapstack-labs/tsa/internal/cli/output"
	"github.com/leapstack-labs/tsa/internal/engine"
	"github.com/leapstack-labs/tsa/internal/telemetry"
	"github.com/leapstack-labs/tsa/internal/workbook"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// runOptions holds the local flags of the run command.
type runOptions struct {
	title    string
	report   string
	noReport bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:     "run <input>",
		Aliases: []string{"eval"},
		Short:   "Evaluate conditions against the observation database",
		Long: `Compile and evaluate every condition of an input workbook (.xlsx) or
YAML file over its collection window.

Results are printed, written to a summary workbook in the output directory
and recorded in the state database.

Output adapts to environment:
  - Terminal: Styled, colored output
  - Piped/Scripted: Markdown format (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  # Evaluate a workbook in-process
  tsa run conditions.xlsx

  # Evaluate inside the database, four collections at a time
  tsa run conditions.xlsx --mode pushdown --workers 4

  # JSON output, no summary workbook
  tsa run conditions.yaml -o json --no-report`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.title, "title", "", "Run title (default: input file name)")
	cmd.Flags().StringVar(&opts.report, "report", "", "Summary workbook path (default: <output-dir>/<input>_<time>.xlsx)")
	cmd.Flags().BoolVar(&opts.noReport, "no-report", false, "Do not write a summary workbook")
	return cmd
}

func runRun(cmd *cobra.Command, input string, opts runOptions) (err error) {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	cfg := cc.Cfg

	mode, err := engine.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}
	colls, err := cc.ReadInput(input)
	if err != nil {
		return err
	}

	ctx, cancel := cc.withTimeout(commandContext(cmd))
	defer cancel()

	a, err := cc.OpenAdapter(ctx)
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	metrics, err := telemetry.NewPrometheusCollector(reg)
	if err != nil {
		_ = a.Close()
		return err
	}
	store, err := cc.OpenStore()
	if err != nil {
		_ = a.Close()
		return err
	}

	eng, err := engine.New(engine.Config{
		Adapter:     a,
		Store:       store,
		Mode:        mode,
		Workers:     cfg.Workers,
		MaxMinutes:  cfg.MaxMinutes,
		ObsRelation: cfg.ObsRelation,
		Metrics:     metrics,
		Logger:      cc.Logger,
	})
	if err != nil {
		_ = a.Close()
		if store != nil {
			_ = store.Close()
		}
		return err
	}
	defer func() {
		if cerr := eng.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	title := opts.title
	if title == "" {
		title = inputName(input)
	}

	analyzed := time.Now().UTC()
	rep, runErr := eng.Run(ctx, title, colls...)
	if rep == nil {
		return runErr
	}

	if rerr := output.RenderRun(cc.Renderer, rep); rerr != nil {
		runErr = errors.Join(runErr, rerr)
	}

	if !opts.noReport {
		path := opts.report
		if path == "" {
			path = filepath.Join(cfg.OutputDir, fmt.Sprintf("%s_%s.xlsx", inputName(input), analyzed.Format("20060102_150405")))
		}
		if werr := workbook.WriteSummary(path, rep, analyzed); werr != nil {
			runErr = errors.Join(runErr, werr)
		} else {
			cc.Logger.Info().Str("path", path).Msg("summary workbook written")
			if cc.Renderer.EffectiveMode() != output.ModeJSON {
				cc.Renderer.Success("Summary written to " + path)
			}
		}
	}

	if cfg.MetricsFile != "" {
		if merr := telemetry.WriteTextfile(cfg.MetricsFile, reg); merr != nil {
			runErr = errors.Join(runErr, merr)
		}
	}
	return runErr
}

// inputName is the file name of path without its extension.
func inputName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
