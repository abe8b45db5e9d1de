package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/tsa/internal/cli/output"
	"github.com/leapstack-labs/tsa/internal/collection"
	"github.com/leapstack-labs/tsa/internal/config"
	"github.com/leapstack-labs/tsa/internal/state"
	"github.com/leapstack-labs/tsa/internal/workbook"
	"github.com/leapstack-labs/tsa/pkg/adapter"
	"github.com/leapstack-labs/tsa/pkg/core"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// ErrInvalidInput is returned when an input file compiles with errors.
var ErrInvalidInput = errors.New("input has errors")

type commandContextKey struct{}

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg        *config.Config
	ConfigFile string
	Logger     zerolog.Logger
	Renderer   *output.Renderer
}

// WithCommandContext stores cc in ctx.
func WithCommandContext(ctx context.Context, cc *CommandContext) context.Context {
	return context.WithValue(ctx, commandContextKey{}, cc)
}

// NewCommandContext returns the context prepared by the root command.
// Commands run on their own (tests, embedding) get the default
// configuration and a renderer on the command's streams.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	if ctx := cmd.Context(); ctx != nil {
		if cc, ok := ctx.Value(commandContextKey{}).(*CommandContext); ok && cc != nil {
			return cc, nil
		}
	}

	cfg, file, err := config.Load("", nil)
	if err != nil {
		return nil, err
	}
	return &CommandContext{
		Cfg:        cfg,
		ConfigFile: file,
		Logger:     zerolog.Nop(),
		Renderer:   output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output)),
	}, nil
}

// ReadInput compiles the collections of an input workbook or YAML file.
func (cc *CommandContext) ReadInput(path string) ([]*collection.Collection, error) {
	colls, err := workbook.Read(path, cc.Cfg.DropSheets, collection.WithLogger(cc.Logger))
	if err != nil {
		return nil, err
	}
	if len(colls) == 0 {
		return nil, fmt.Errorf("no collections found in %s", path)
	}
	cc.Logger.Debug().Str("input", path).Int("collections", len(colls)).Msg("input compiled")
	return colls, nil
}

// OpenAdapter connects to the configured observation database.
func (cc *CommandContext) OpenAdapter(ctx context.Context) (adapter.Adapter, error) {
	if cc.Cfg.Target == nil {
		return nil, fmt.Errorf("no target database configured")
	}
	acfg := cc.Cfg.Target.AdapterConfig()
	a, err := adapter.NewAdapter(acfg, cc.Logger)
	if err != nil {
		return nil, err
	}
	if err := a.Connect(ctx, acfg); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", acfg.Type, err)
	}
	return a, nil
}

// OpenStore opens the run history database. It returns nil when no
// state path is configured.
func (cc *CommandContext) OpenStore() (core.Store, error) {
	if cc.Cfg.StatePath == "" {
		return nil, nil
	}
	if dir := filepath.Dir(cc.Cfg.StatePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	store, err := state.Open(cc.Cfg.StatePath, cc.Logger)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// withTimeout applies the configured run timeout to ctx.
func (cc *CommandContext) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if cc.Cfg.Timeout > 0 {
		return context.WithTimeout(ctx, cc.Cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
