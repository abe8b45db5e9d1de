// Package cli provides the command-line interface for tsa.
package cli

import (
	"fmt"
	"os"

	"github.com/leapstack-labs/tsa/internal/cli/commands"
	"github.com/leapstack-labs/tsa/internal/cli/output"
	"github.com/leapstack-labs/tsa/internal/config"
	"github.com/leapstack-labs/tsa/internal/logging"
	"github.com/spf13/cobra"

	// Observation database adapters.
	_ "github.com/leapstack-labs/tsa/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/tsa/pkg/adapters/postgres"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var (
		cfgFile string
		cleanup = func() {}
	)

	rootCmd := &cobra.Command{
		Use:   "tsa",
		Short: "tsa - Time Series Analyzer",
		Long: `tsa evaluates Boolean conditions over station sensor time series.

Conditions such as "s1122#kitka3_luku >= 0.30" are compiled from a workbook
or YAML file, combined by alias ("d1 and not d2") and evaluated over a time
window into valid, invalid and no-data intervals.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, file, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}

			logger, closeLogs, err := logging.Setup(cfg.Logging, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cleanup = closeLogs

			renderer := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output))
			cmd.SetContext(commands.WithCommandContext(cmd.Context(), &commands.CommandContext{
				Cfg:        cfg,
				ConfigFile: file,
				Logger:     logger,
				Renderer:   renderer,
			}))

			if cfg.Verbose {
				if file != "" {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Using config file: %s\n", file)
				}
				if cfg.Target != nil {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Using target: %s\n", cfg.Target.Type)
				}
			}
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			cleanup()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Built with Go, DuckDB and PostgreSQL
`)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./tsa.yaml)")
	pf.String("database", "", "Observation database (DuckDB path or postgres database name)")
	pf.String("target-type", "", "Observation database type (duckdb|postgres)")
	pf.String("state", "", "Path to state database")
	pf.String("mode", "", "Evaluation mode (inprocess|pushdown)")
	pf.Int("workers", 0, "Collections evaluated concurrently")
	pf.Int("max-minutes", 0, "Minutes a single observation stays valid")
	pf.String("obs-relation", "", "Observation view name")
	pf.String("output-dir", "", "Directory for summary workbooks")
	pf.String("metrics-file", "", "Write Prometheus metrics to this file after a run")
	pf.StringSlice("drop-sheets", nil, "Workbook sheets that hold no conditions")
	pf.Duration("timeout", 0, "Abort a run after this duration")
	pf.String("log-level", "", "Log level (debug|info|warn|error)")
	pf.String("log-format", "", "Log format (json|text)")
	pf.BoolP("verbose", "v", false, "Verbose output")
	pf.StringP("output", "o", "", "Output format (auto|text|markdown|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "text", "markdown", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("mode", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"inprocess", "pushdown"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("target-type", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"duckdb", "postgres"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewValidateCommand())
	rootCmd.AddCommand(commands.NewSQLCommand())
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewDBCommand())
	rootCmd.AddCommand(commands.NewHistoryCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for tsa.

To load completions:

Bash:
  $ source <(tsa completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ tsa completion bash > /etc/bash_completion.d/tsa

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  $ tsa completion zsh > "${fpath[1]}/_tsa"

Fish:
  $ tsa completion fish > ~/.config/fish/completions/tsa.fish

PowerShell:
  PS> tsa completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
