// Package obsdb manages the observation store: the station and sensor
// observation tables and the per-session views that evaluation queries read.
package obsdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/tsa/pkg/adapter"
	"github.com/leapstack-labs/tsa/pkg/core"
	"github.com/rs/zerolog"
)

// Copier bulk loads rows. Rows hold a value for every column in columns.
type Copier interface {
	CopyRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}

// Execer runs statements on a pinned session or a pool.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Querier runs queries on a pinned session or a pool.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// DB is the observation store behind an adapter.
type DB struct {
	a      adapter.Adapter
	logger zerolog.Logger
}

// New wraps a connected adapter.
func New(a adapter.Adapter, logger zerolog.Logger) *DB {
	return &DB{a: a, logger: logger}
}

// Adapter returns the underlying adapter.
func (d *DB) Adapter() adapter.Adapter {
	return d.a
}

// Init creates the observation tables. On PostgreSQL it also installs the
// pack_ranges function used by primary blocks.
func (d *DB) Init(ctx context.Context) error {
	for _, stmt := range schemaStatements(d.a.DialectName()) {
		if err := d.a.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize observation schema: %w", err)
		}
	}
	d.logger.Debug().Str("dialect", d.a.DialectName()).Msg("observation schema ready")
	return nil
}

// timestampLiteral renders t as a TIMESTAMP literal in its own wall clock.
func timestampLiteral(t time.Time) string {
	return "TIMESTAMP '" + t.Format("2006-01-02 15:04:05.999999") + "'"
}

// PrepareSession creates the session views read by evaluation queries:
// statobs_time holds the station observations inside w, and obs_main joins
// them with the sensor values.
func PrepareSession(ctx context.Context, conn Execer, w core.Window) error {
	stmts := []string{
		fmt.Sprintf("CREATE OR REPLACE TEMP VIEW statobs_time AS SELECT id, tfrom, statid FROM statobs WHERE tfrom BETWEEN %s AND %s",
			timestampLiteral(w.From), timestampLiteral(w.Until)),
		"CREATE OR REPLACE TEMP VIEW obs_main AS SELECT tfrom, statid, seid, seval FROM statobs_time INNER JOIN seobs ON statobs_time.id = seobs.obsid",
	}
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			view := "obs_main"
			if strings.Contains(stmt, "VIEW statobs_time") {
				view = "statobs_time"
			}
			return fmt.Errorf("failed to create view %s: %w", view, err)
		}
	}
	return nil
}

// SessionStationIDs returns the stations with observations in the session
// window. PrepareSession must have run on q.
func SessionStationIDs(ctx context.Context, q Querier) ([]int, error) {
	return queryInts(ctx, q, "SELECT DISTINCT statid FROM statobs_time ORDER BY statid")
}

// StationIDs returns every known station id, ascending.
func (d *DB) StationIDs(ctx context.Context) ([]int, error) {
	rows, err := d.a.Query(ctx, "SELECT id FROM stations ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to get station ids: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanInts(rows.Rows)
}

// SensorIDs maps lowercase sensor names to their ids.
func (d *DB) SensorIDs(ctx context.Context) (map[string]int, error) {
	rows, err := d.a.Query(ctx, "SELECT id, name FROM sensors")
	if err != nil {
		return nil, fmt.Errorf("failed to get sensor ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make(map[string]int)
	for rows.Next() {
		var (
			id   int
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan sensor: %w", err)
		}
		ids[strings.ToLower(name)] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sensors: %w", err)
	}
	return ids, nil
}

func queryInts(ctx context.Context, q Querier, query string) ([]int, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanInts(rows)
}

func scanInts(rows *sql.Rows) ([]int, error) {
	var out []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return out, nil
}

func (d *DB) maxID(ctx context.Context, table string) (int64, error) {
	rows, err := d.a.Query(ctx, fmt.Sprintf("SELECT coalesce(max(id), 0) FROM %s", table))
	if err != nil {
		return 0, fmt.Errorf("failed to get max id of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()
	var id int64
	if rows.Next() {
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to scan max id of %s: %w", table, err)
		}
	}
	return id, rows.Err()
}

// copyRows bulk loads through the adapter's Copier, or falls back to one
// multi-row INSERT per batch.
func (d *DB) copyRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if c, ok := d.a.(Copier); ok {
		return c.CopyRows(ctx, table, columns, rows)
	}
	const batch = 500
	for start := 0; start < len(rows); start += batch {
		end := min(start+batch, len(rows))
		values := make([]string, 0, end-start)
		for _, row := range rows[start:end] {
			lits := make([]string, len(row))
			for i, v := range row {
				lits[i] = literal(v)
			}
			values = append(values, "("+strings.Join(lits, ", ")+")")
		}
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(columns, ", "), strings.Join(values, ", "))
		if err := d.a.Exec(ctx, stmt); err != nil {
			return int64(start), fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return int64(len(rows)), nil
}

func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case time.Time:
		return timestampLiteral(x)
	default:
		return fmt.Sprint(x)
	}
}
