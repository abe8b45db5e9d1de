package source

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/tsa/pkg/condition"
	"github.com/leapstack-labs/tsa/pkg/core"
	"github.com/leapstack-labs/tsa/pkg/diag"
	"github.com/leapstack-labs/tsa/pkg/sqlgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0     = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	window = core.Window{From: t0, Until: t0.Add(24 * time.Hour)}
)

func at(min int) time.Time { return t0.Add(time.Duration(min) * time.Minute) }

func block(t *testing.T, raw string) *condition.Block {
	t.Helper()
	c := condition.Compile("tampere", "d1", raw, 0)
	require.True(t, c.Valid(), "%v", c.Errors())
	require.Len(t, c.Blocks, 1)
	return c.Blocks[0]
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Set("s1122#KITKA3_LUKU >= 0.30",
		core.Interval{From: at(30), Until: at(40), Value: false},
		core.Interval{From: at(0), Until: at(10), Value: true},
		core.Interval{From: at(-60), Until: at(-10), Value: true},
	))

	tests := []struct {
		name string
		raw  string
		want []core.Interval
	}{
		{
			name: "canonical value matches",
			raw:  "s1122#kitka3_luku >= 0.3",
			want: []core.Interval{
				{From: at(0), Until: at(10), Value: true},
				{From: at(30), Until: at(40), Value: false},
			},
		},
		{
			name: "unknown predicate has no data",
			raw:  "s1122#kitka3_luku > 0.3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Intervals(context.Background(), block(t, tt.raw), window)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemory_Errors(t *testing.T) {
	m := NewMemory()
	require.Error(t, m.Set("no station"))

	c := condition.Compile("tampere", "d2", "d1", 0)
	require.Len(t, c.Blocks, 1)
	_, err := m.Intervals(context.Background(), c.Blocks[0], window)
	kind, ok := diag.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, diag.IntervalSourceFailure, kind)
}

func TestFunc(t *testing.T) {
	var called bool
	src := Func(func(context.Context, *condition.Block, core.Window) ([]core.Interval, error) {
		called = true
		return nil, nil
	})
	_, err := src.Intervals(context.Background(), nil, window)
	require.NoError(t, err)
	assert.True(t, called)
}

func newSQL(t *testing.T) (*SQL, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	d, err := sqlgen.New("duckdb", sqlgen.Params{SensorIDs: map[string]int{"kitka3_luku": 5}})
	require.NoError(t, err)
	return &SQL{DB: db, Dialect: d}, mock
}

func TestSQL_Intervals(t *testing.T) {
	src, mock := newSQL(t)

	rows := sqlmock.NewRows([]string{"vfrom", "vuntil", "istrue"}).
		AddRow(at(0), at(10), true).
		AddRow(at(10), at(20), nil).
		AddRow(at(20), at(50), false)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT vfrom, vuntil, d1_0 AS istrue FROM")).WillReturnRows(rows)

	got, err := src.Intervals(context.Background(), block(t, "s1122#kitka3_luku >= 0.3"), window)
	require.NoError(t, err)
	assert.Equal(t, []core.Interval{
		{From: at(0), Until: at(10), Value: true},
		{From: at(20), Until: at(50), Value: false},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQL_Failures(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		setup func(sqlmock.Sqlmock)
		kind  diag.Kind
	}{
		{
			name: "query error",
			raw:  "s1122#kitka3_luku >= 0.3",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("SELECT").WillReturnError(errors.New("connection reset"))
			},
			kind: diag.IntervalSourceFailure,
		},
		{
			name: "row error",
			raw:  "s1122#kitka3_luku >= 0.3",
			setup: func(m sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"vfrom", "vuntil", "istrue"}).
					AddRow(at(0), at(10), true).
					RowError(0, errors.New("broken pipe"))
				m.ExpectQuery("SELECT").WillReturnRows(rows)
			},
			kind: diag.IntervalSourceFailure,
		},
		{
			name:  "unknown sensor",
			raw:   "s1122#nosuch >= 0.3",
			setup: func(sqlmock.Sqlmock) {},
			kind:  diag.UnresolvedReference,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, mock := newSQL(t)
			tt.setup(mock)

			_, err := src.Intervals(context.Background(), block(t, tt.raw), window)
			require.Error(t, err)
			kind, ok := diag.KindOf(err)
			require.True(t, ok, "%v", err)
			assert.Equal(t, tt.kind, kind)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
