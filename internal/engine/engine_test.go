package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leapstack-labs/tsa/internal/collection"
	"github.com/leapstack-labs/tsa/internal/source"
	"github.com/leapstack-labs/tsa/internal/testutil"
	"github.com/leapstack-labs/tsa/pkg/condition"
	"github.com/leapstack-labs/tsa/pkg/core"
	"github.com/leapstack-labs/tsa/pkg/diag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func at(min int) time.Time { return t0.Add(time.Duration(min) * time.Minute) }

var day = core.Window{From: t0, Until: t0.Add(24 * time.Hour)}

// memStore records runs and results in memory.
type memStore struct {
	mu      sync.Mutex
	runs    map[string]*core.Run
	results []*core.ConditionRecord
}

func newMemStore() *memStore {
	return &memStore{runs: make(map[string]*core.Run)}
}

func (s *memStore) Close() error { return nil }

func (s *memStore) CreateRun(title string) (*core.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &core.Run{ID: fmt.Sprintf("run-%d", len(s.runs)+1), Title: title, Status: core.RunStatusRunning, StartedAt: time.Now()}
	s.runs[r.ID] = r
	return r, nil
}

func (s *memStore) GetRun(id string) (*core.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) CompleteRun(id string, status core.RunStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.runs[id].Status = status
	s.runs[id].Error = errMsg
	s.runs[id].CompletedAt = &now
	return nil
}

func (s *memStore) ListRuns(int) ([]*core.Run, error) { return nil, nil }

func (s *memStore) RecordResult(rec *core.ConditionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, rec)
	return nil
}

func (s *memStore) ListResults(string) ([]*core.ConditionRecord, error) { return s.results, nil }

func newCollection(t *testing.T, title string, w core.Window, rows ...[2]string) *collection.Collection {
	t.Helper()
	c, err := collection.New(title, w)
	require.NoError(t, err)
	for i, row := range rows {
		_, err := c.Add("s", row[0], row[1], i+4)
		require.NoError(t, err)
	}
	return c
}

func results(r *CollectionResult) map[string]*ConditionResult {
	out := make(map[string]*ConditionResult)
	for _, res := range r.Results {
		out[res.Condition.ID] = res
	}
	return out
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeInProcess, false},
		{"InProcess", ModeInProcess, false},
		{" pushdown ", ModePushdown, false},
		{"sql", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err, "in-process without adapter or source")

	_, err = New(Config{Mode: ModePushdown, Source: source.NewMemory()})
	assert.Error(t, err, "pushdown without adapter")

	_, err = New(Config{Mode: "fast", Source: source.NewMemory()})
	assert.Error(t, err)

	e, err := New(Config{Source: source.NewMemory()})
	require.NoError(t, err)
	assert.Equal(t, ModeInProcess, e.Mode())
	assert.Equal(t, 1, e.workers)
	assert.NoError(t, e.Close())
}

func TestRun_InProcess(t *testing.T) {
	mem := source.NewMemory()
	require.NoError(t, mem.Set("s1#a > 0", core.Interval{From: at(0), Until: at(10), Value: true}))
	require.NoError(t, mem.Set("s1#b > 0", core.Interval{From: at(5), Until: at(15), Value: true}))

	coll := newCollection(t, "winter", day,
		[2]string{"both", "s1#a > 0 and s1#b > 0"},
		[2]string{"a", "s1#a > 0"},
		[2]string{"b", "s1#b > 0"},
		[2]string{"ref", "a and b"},
	)

	store := newMemStore()
	e, err := New(Config{Source: mem, Store: store, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)

	report, err := e.Run(context.Background(), "test", coll)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, report.Run.Status)
	require.Len(t, report.Collections, 1)

	res := results(report.Collections[0])
	for _, id := range []string{"s_both", "s_ref"} {
		r := res[id]
		require.Equal(t, StateEvaluated, r.State, id)

		assert.Equal(t, []core.Interval{{From: at(5), Until: at(10), Value: true}}, trueSpans(r.Partition), id)
		assert.Equal(t, 5*time.Minute, r.Result.Valid, id)
		assert.Equal(t, 15*time.Minute, r.Result.TotalSpan, id)
		assert.InDelta(t, 1.0, r.Result.PctValid+r.Result.PctInvalid+r.Result.PctNoData, 1e-9)
	}

	assert.Len(t, store.results, 4)
	assert.Equal(t, "s_both", store.results[0].ConditionID)
}

func trueSpans(p *core.Partition) []core.Interval {
	var out []core.Interval
	for _, s := range p.Slices {
		if s.Master == core.True {
			out = append(out, core.Interval{From: s.From, Until: s.Until, Value: true})
		}
	}
	return out
}

func TestRun_FailureIsolation(t *testing.T) {
	mem := source.NewMemory()
	require.NoError(t, mem.Set("s1#a > 0", core.Interval{From: at(0), Until: at(10), Value: true}))
	src := source.Func(func(ctx context.Context, b *condition.Block, w core.Window) ([]core.Interval, error) {
		if b.Predicate.Sensor == "broken" {
			return nil, errors.New("connection reset by peer")
		}
		return mem.Intervals(ctx, b, w)
	})

	coll := newCollection(t, "winter", day,
		[2]string{"d1", "s1#a > 0"},
		[2]string{"d2", "s1#broken > 0"},
		[2]string{"d3", "d2 or d1"},
		[2]string{"d4", "d1"},
		[2]string{"d5", "s1#a >"},
	)

	store := newMemStore()
	e, err := New(Config{Source: src, Store: store, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)

	report, err := e.Run(context.Background(), "test", coll)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, report.Run.Status)

	res := results(report.Collections[0])
	assert.Equal(t, StateEvaluated, res["s_d1"].State)
	assert.Equal(t, StateEvaluated, res["s_d4"].State)
	assert.Equal(t, StateFailed, res["s_d2"].State)
	assert.Equal(t, StateFailed, res["s_d3"].State)
	assert.Equal(t, StateInvalid, res["s_d5"].State)

	kind, ok := diag.KindOf(res["s_d2"].Err)
	require.True(t, ok)
	assert.Equal(t, diag.IntervalSourceFailure, kind)
	assert.Contains(t, res["s_d2"].Err.Error(), "connection reset by peer")

	kind, _ = diag.KindOf(res["s_d3"].Err)
	assert.Equal(t, diag.IntervalSourceFailure, kind)
	assert.Equal(t, "referenced condition s_d2 failed", res["s_d3"].Err.(*diag.Error).Message)

	d2, _ := coll.Condition("s_d2")
	require.Len(t, d2.Errors(), 1)
	assert.Equal(t, diag.IntervalSourceFailure, d2.Errors()[0].Kind)

	var d3rec *core.ConditionRecord
	for _, rec := range store.results {
		if rec.ConditionID == "s_d3" {
			d3rec = rec
		}
	}
	require.NotNil(t, d3rec)
	assert.Equal(t, StateFailed, d3rec.State)
	require.Len(t, d3rec.Errors, 1)
	assert.True(t, strings.HasPrefix(d3rec.Errors[0], "IntervalSourceFailure: "))
}

func TestRun_DegenerateWindow(t *testing.T) {
	coll := newCollection(t, "instant", core.Window{From: t0, Until: t0},
		[2]string{"d1", "s1#a > 0"},
	)
	e, err := New(Config{Source: source.NewMemory()})
	require.NoError(t, err)

	report, err := e.Run(context.Background(), "test", coll)
	require.NoError(t, err)

	r := report.Collections[0].Results[0]
	assert.Equal(t, StateEvaluated, r.State)
	assert.True(t, r.Result.Degenerate())
	assert.Equal(t, 1.0, r.Result.PctNoData)
	assert.Zero(t, r.Result.PctValid)
	assert.Zero(t, r.Result.PctInvalid)

	require.Len(t, r.Condition.Errors(), 1)
	assert.Equal(t, diag.DegenerateWindow, r.Condition.Errors()[0].Kind)
	assert.Equal(t, diag.SeverityWarning, r.Condition.Errors()[0].Severity)
	assert.True(t, r.Condition.Valid())
}

func TestRun_Cancelled(t *testing.T) {
	coll := newCollection(t, "winter", day, [2]string{"d1", "s1#a > 0"})
	e, err := New(Config{Source: source.NewMemory()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := e.Run(ctx, "test", coll)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, core.RunStatusCancelled, report.Run.Status)
	assert.Equal(t, StateFailed, report.Collections[0].Results[0].State)
}

func TestRun_Concurrent(t *testing.T) {
	mem := source.NewMemory()
	require.NoError(t, mem.Set("s1#a > 0", core.Interval{From: at(0), Until: at(10), Value: true}))

	var colls []*collection.Collection
	for i := range 8 {
		colls = append(colls, newCollection(t, fmt.Sprintf("c%d", i), day,
			[2]string{"d1", "s1#a > 0"},
			[2]string{"d2", "not d1"},
		))
	}
	e, err := New(Config{Source: mem, Workers: 3})
	require.NoError(t, err)

	report, err := e.Run(context.Background(), "test", colls...)
	require.NoError(t, err)
	require.Len(t, report.Collections, 8)
	for i, cr := range report.Collections {
		assert.Equal(t, colls[i], cr.Collection)
		res := results(cr)
		assert.Equal(t, 10*time.Minute, res["s_d1"].Result.Valid)
		assert.Equal(t, 10*time.Minute, res["s_d2"].Result.Invalid)
	}
}
