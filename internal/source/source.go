// Package source provides interval sources: the capability that hands the
// planner the known-true and known-false spans of a primary block.
package source

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/leapstack-labs/tsa/pkg/condition"
	"github.com/leapstack-labs/tsa/pkg/core"
	"github.com/leapstack-labs/tsa/pkg/diag"
	"github.com/leapstack-labs/tsa/pkg/predicate"
	"github.com/leapstack-labs/tsa/pkg/sqlgen"
)

// IntervalSource returns the disjoint, time-ordered intervals of a block
// within a window. Time not covered by any interval is Unknown.
type IntervalSource interface {
	Intervals(ctx context.Context, b *condition.Block, w core.Window) ([]core.Interval, error)
}

// Func adapts a function to IntervalSource.
type Func func(ctx context.Context, b *condition.Block, w core.Window) ([]core.Interval, error)

// Intervals calls f.
func (f Func) Intervals(ctx context.Context, b *condition.Block, w core.Window) ([]core.Interval, error) {
	return f(ctx, b, w)
}

// Memory serves intervals from a map keyed by canonical predicate.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]core.Interval
}

// NewMemory returns an empty Memory source.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]core.Interval)}
}

// Set stores intervals for the predicate written in condition syntax, such as
// "s1122#kitka3_luku >= 0.30". Equal predicates share one entry.
func (m *Memory) Set(pred string, ivs ...core.Interval) error {
	p, err := predicate.Parse(pred)
	if err != nil {
		return err
	}
	sorted := slices.Clone(ivs)
	slices.SortFunc(sorted, func(a, b core.Interval) int { return a.From.Compare(b.From) })

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[p.Key()] = sorted
	return nil
}

// Intervals returns the stored intervals that overlap w. A predicate with no
// entry has no data.
func (m *Memory) Intervals(_ context.Context, b *condition.Block, w core.Window) ([]core.Interval, error) {
	if b.Predicate == nil {
		return nil, diag.New(diag.IntervalSourceFailure, "block %s is not a primary block", b.Alias)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	span := core.Interval{From: w.From, Until: w.Until}
	var out []core.Interval
	for _, iv := range m.data[b.Predicate.Key()] {
		if iv.Overlaps(span) {
			out = append(out, iv)
		}
	}
	return out, nil
}

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQL runs the dialect's interval query for each block. Run it on the
// session that holds the obs_main view.
type SQL struct {
	DB      Querier
	Dialect sqlgen.Dialect
}

// Intervals queries the packed ranges of b. Ranges with a NULL value are
// skipped.
func (s *SQL) Intervals(ctx context.Context, b *condition.Block, _ core.Window) ([]core.Interval, error) {
	q, err := s.Dialect.IntervalSQL(b)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, failure(b, err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.Interval
	for rows.Next() {
		var (
			from, until time.Time
			value       sql.NullBool
		)
		if err := rows.Scan(&from, &until, &value); err != nil {
			return nil, failure(b, err)
		}
		if !value.Valid {
			continue
		}
		out = append(out, core.Interval{From: from, Until: until, Value: value.Bool})
	}
	if err := rows.Err(); err != nil {
		return nil, failure(b, err)
	}
	return out, nil
}

func failure(b *condition.Block, err error) error {
	var d *diag.Error
	if errors.As(err, &d) {
		return err
	}
	return diag.New(diag.IntervalSourceFailure, "block %s: %s", b.Alias, strings.TrimSpace(err.Error()))
}
