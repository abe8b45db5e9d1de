package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/leapstack-labs/tsa/internal/source"
	"github.com/leapstack-labs/tsa/pkg/adapter"
	"github.com/leapstack-labs/tsa/pkg/condition"
	"github.com/leapstack-labs/tsa/pkg/core"
	"github.com/leapstack-labs/tsa/pkg/diag"
	"github.com/leapstack-labs/tsa/pkg/planner"
	"github.com/leapstack-labs/tsa/pkg/sqlgen"
)

// Evaluator computes the validity partition of one condition. Conditions of
// a collection are passed in plan order, so a secondary condition is only
// evaluated after the conditions it references.
type Evaluator interface {
	Evaluate(ctx context.Context, c *condition.Condition, w core.Window) (*core.Partition, error)
}

// InProcess evaluates conditions with the interval planner. Primary blocks
// read an interval source; secondary blocks read the partitions of the
// conditions evaluated before.
type InProcess struct {
	source source.IntervalSource
	done   map[string]*core.Partition
}

// NewInProcess creates an in-process evaluator over src.
func NewInProcess(src source.IntervalSource) *InProcess {
	return &InProcess{source: src, done: make(map[string]*core.Partition)}
}

// Evaluate builds the partition of c.
func (e *InProcess) Evaluate(ctx context.Context, c *condition.Condition, w core.Window) (*core.Partition, error) {
	intervals := make(map[string][]core.Interval, len(c.Blocks))
	for _, b := range c.Blocks {
		if b.Secondary {
			p, ok := e.done[b.Ref]
			if !ok {
				return nil, diag.New(diag.IntervalSourceFailure,
					"block %s: referenced condition %s has no result", b.Alias, b.Ref)
			}
			intervals[b.Alias] = planner.Intervals(p)
			continue
		}
		ivs, err := e.source.Intervals(ctx, b, w)
		if err != nil {
			return nil, failure(err)
		}
		intervals[b.Alias] = ivs
	}

	p, err := planner.Build(c.Aliases(), c.Expr(), intervals)
	if err != nil {
		return nil, failure(err)
	}
	e.done[c.ID] = p
	return p, nil
}

// Pushdown evaluates conditions inside the database. Every condition leaves
// a temp result table named after its ID on the pinned session, which later
// secondary blocks select from.
type Pushdown struct {
	conn    *sql.Conn
	dialect sqlgen.Dialect
	tables  []string
}

// NewPushdown creates a pushdown evaluator on a pinned session. The session
// must hold the obs_main view.
func NewPushdown(conn *sql.Conn, d sqlgen.Dialect) *Pushdown {
	return &Pushdown{conn: conn, dialect: d}
}

// Evaluate runs the condition SQL and reads the result table back.
func (e *Pushdown) Evaluate(ctx context.Context, c *condition.Condition, _ core.Window) (*core.Partition, error) {
	for _, ref := range c.Refs() {
		if !slices.Contains(e.tables, ref) {
			return nil, diag.New(diag.IntervalSourceFailure, "referenced condition %s has no result table", ref)
		}
	}

	stmts, err := e.dialect.ConditionSQL(c)
	if err != nil {
		return nil, failure(err)
	}
	if err := adapter.ExecAll(ctx, e.conn, stmts); err != nil {
		return nil, failure(err)
	}
	e.tables = append(e.tables, c.ID)
	for _, stmt := range e.dialect.CleanupSQL(c) {
		if _, err := e.conn.ExecContext(ctx, stmt); err != nil {
			return nil, failure(fmt.Errorf("failed to clean up: %w", err))
		}
	}

	p, err := e.readResult(ctx, c)
	if err != nil {
		return nil, failure(err)
	}
	return planner.Compact(p), nil
}

func (e *Pushdown) readResult(ctx context.Context, c *condition.Condition) (*core.Partition, error) {
	rows, err := e.conn.QueryContext(ctx, e.dialect.ResultSQL(c))
	if err != nil {
		return nil, fmt.Errorf("failed to read result of %s: %w", c.ID, err)
	}
	defer func() { _ = rows.Close() }()

	aliases := c.Aliases()
	p := &core.Partition{Aliases: aliases}
	for rows.Next() {
		var from, until time.Time
		values := make([]sql.NullBool, len(aliases)+1)
		dest := make([]any, 0, len(values)+2)
		dest = append(dest, &from, &until)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan result of %s: %w", c.ID, err)
		}

		s := core.Slice{
			From:     from,
			Until:    until,
			PerBlock: make(map[string]core.TriState, len(aliases)),
			Master:   core.FromNullBool(values[len(aliases)]),
		}
		for i, a := range aliases {
			s.PerBlock[a] = core.FromNullBool(values[i])
		}
		p.Slices = append(p.Slices, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read result of %s: %w", c.ID, err)
	}
	return p, nil
}

// Release drops the result tables created on the session, dependents first.
func (e *Pushdown) Release(ctx context.Context) error {
	var errs []error
	for i := len(e.tables) - 1; i >= 0; i-- {
		if _, err := e.conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+e.tables[i]); err != nil {
			errs = append(errs, fmt.Errorf("failed to drop %s: %w", e.tables[i], err))
		}
	}
	e.tables = nil
	return errors.Join(errs...)
}

// failure keeps diagnostics as they are and classifies anything else as an
// interval source failure.
func failure(err error) error {
	if _, ok := diag.KindOf(err); ok {
		return err
	}
	return diag.New(diag.IntervalSourceFailure, "%v", err)
}
