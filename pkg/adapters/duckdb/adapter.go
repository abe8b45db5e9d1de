// Package duckdb provides a DuckDB observation store adapter.
package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/leapstack-labs/tsa/pkg/adapter"
	"github.com/marcboeker/go-duckdb"
	"github.com/rs/zerolog"
)

// Adapter implements the adapter.Adapter interface for DuckDB.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new DuckDB adapter instance.
func New(logger zerolog.Logger) *Adapter {
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return "duckdb"
}

// Connect establishes a connection to DuckDB.
// Use ":memory:" as the path for an in-memory database. All sessions of one
// adapter share the database; temp tables stay per session.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	path := cfg.Path
	if path == "" || path == ":memory:" {
		path = ""
	}

	params, err := parseParams(cfg.Params)
	if err != nil {
		return err
	}
	settings := params.settingStatements()

	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		for _, s := range settings {
			if _, err := execer.ExecContext(context.Background(), s, nil); err != nil {
				return fmt.Errorf("failed to apply setting: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	db := sql.OpenDB(connector)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	for _, ext := range params.Extensions {
		for _, stmt := range []string{"INSTALL " + ext, "LOAD " + ext} {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				_ = db.Close()
				return fmt.Errorf("failed to load extension %s: %w", ext, err)
			}
		}
	}

	a.Logger.Debug().Str("path", cfg.Path).Strs("extensions", params.Extensions).Msg("connected to duckdb")

	a.DB = db
	a.Cfg = cfg
	return nil
}

// CopyRows appends rows to table with the DuckDB appender. Each row must
// hold a value for every column of the table, in table order; columns is
// only used in error messages.
func (a *Adapter) CopyRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if a.DB == nil {
		return 0, fmt.Errorf("database connection not established")
	}
	conn, err := a.DB.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	var n int64
	err = conn.Raw(func(driverConn any) error {
		app, err := duckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", table)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if len(row) != len(columns) {
				_ = app.Close()
				return fmt.Errorf("row %d has %d values, want %d (%v)", n+1, len(row), len(columns), columns)
			}
			values := make([]driver.Value, len(row))
			for i, v := range row {
				values[i] = v
			}
			if err := app.AppendRow(values...); err != nil {
				_ = app.Close()
				return err
			}
			n++
		}
		return app.Close()
	})
	if err != nil {
		return 0, fmt.Errorf("failed to copy rows into %s: %w", table, err)
	}
	return n, nil
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
