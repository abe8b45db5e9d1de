package engine

// run.go - evaluation of collections

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/tsa/internal/collection"
	"github.com/leapstack-labs/tsa/internal/obsdb"
	"github.com/leapstack-labs/tsa/internal/source"
	"github.com/leapstack-labs/tsa/pkg/condition"
	"github.com/leapstack-labs/tsa/pkg/core"
	"github.com/leapstack-labs/tsa/pkg/diag"
	"github.com/leapstack-labs/tsa/pkg/planner"
	"github.com/leapstack-labs/tsa/pkg/sqlgen"
	"golang.org/x/sync/errgroup"
)

// Condition result states, as recorded in run history.
const (
	StateEvaluated = "evaluated"
	StateInvalid   = "invalid"
	StateFailed    = "failed"
)

// ConditionResult is the outcome of one condition.
type ConditionResult struct {
	Condition *condition.Condition
	State     string
	Partition *core.Partition
	Result    core.Result
	Err       error
	Elapsed   time.Duration
}

// CollectionResult holds the results of one collection in insertion order,
// invalid conditions included.
type CollectionResult struct {
	Collection *collection.Collection
	Results    []*ConditionResult
	// Err is set when the collection could not be evaluated at all.
	Err error
}

// Report is the outcome of a run.
type Report struct {
	Run         *core.Run
	Collections []*CollectionResult
}

// Run evaluates the collections. A failing condition is recorded on that
// condition and does not stop the others; an error is returned only when a
// collection as a whole could not be evaluated or ctx was cancelled.
func (e *Engine) Run(ctx context.Context, title string, colls ...*collection.Collection) (*Report, error) {
	e.logger.Info().Str("title", title).Int("collections", len(colls)).Str("mode", string(e.mode)).Msg("starting run")

	run, err := e.createRun(title)
	if err != nil {
		return nil, err
	}
	report := &Report{Run: run, Collections: make([]*CollectionResult, len(colls))}

	dialect, err := e.prepare(ctx, colls)
	if err != nil {
		e.completeRun(report, core.RunStatusFailed, err)
		return report, err
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(e.workers)
	for i, coll := range colls {
		g.Go(func() error {
			res := e.runCollection(ctx, run.ID, coll, dialect)
			mu.Lock()
			defer mu.Unlock()
			report.Collections[i] = res
			if res.Err != nil {
				errs = append(errs, fmt.Errorf("collection %s: %w", coll.Title, res.Err))
			}
			return nil
		})
	}
	_ = g.Wait()

	runErr := errors.Join(errs...)
	status := core.RunStatusCompleted
	switch {
	case ctx.Err() != nil:
		status = core.RunStatusCancelled
		runErr = errors.Join(runErr, ctx.Err())
	case runErr != nil:
		status = core.RunStatusFailed
	}
	e.completeRun(report, status, runErr)
	return report, runErr
}

func (e *Engine) createRun(title string) (*core.Run, error) {
	if e.store == nil {
		return &core.Run{
			ID:        uuid.NewString(),
			Title:     title,
			Status:    core.RunStatusRunning,
			StartedAt: time.Now(),
		}, nil
	}
	run, err := e.store.CreateRun(title)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	e.logger.Debug().Str("run_id", run.ID).Msg("created run")
	return run, nil
}

func (e *Engine) completeRun(report *Report, status core.RunStatus, runErr error) {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	e.metrics.IncRun(string(status))

	if e.store != nil {
		if err := e.store.CompleteRun(report.Run.ID, status, msg); err != nil {
			e.logger.Error().Err(err).Str("run_id", report.Run.ID).Msg("failed to complete run")
		}
		if run, err := e.store.GetRun(report.Run.ID); err == nil && run != nil {
			report.Run = run
		}
	} else {
		now := time.Now()
		report.Run.Status = status
		report.Run.CompletedAt = &now
		report.Run.Error = msg
	}

	ev := e.logger.Info()
	if runErr != nil {
		ev = e.logger.Error().Err(runErr)
	}
	ev.Str("run_id", report.Run.ID).Str("status", string(status)).Msg("run finished")
}

// prepare checks sensor names against the database and builds the SQL
// dialect. It returns nil when no database is used.
func (e *Engine) prepare(ctx context.Context, colls []*collection.Collection) (sqlgen.Dialect, error) {
	if !e.usesDatabase() {
		return nil, nil
	}
	sensorIDs, err := obsdb.New(e.adapter, e.logger).SensorIDs(ctx)
	if err != nil {
		return nil, err
	}
	for _, coll := range colls {
		coll.CheckSensors(sensorIDs)
	}

	p := e.params
	p.SensorIDs = sensorIDs
	d, err := sqlgen.New(e.adapter.DialectName(), p)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQL dialect: %w", err)
	}
	return d, nil
}

func (e *Engine) runCollection(ctx context.Context, runID string, coll *collection.Collection, dialect sqlgen.Dialect) *CollectionResult {
	log := e.logger.With().Str("collection", coll.Title).Logger()
	out := &CollectionResult{Collection: coll}
	start := time.Now()

	plan := coll.Plan()
	results := make(map[*condition.Condition]*ConditionResult, len(plan))

	ev, release, err := e.evaluator(ctx, coll, dialect)
	if err != nil {
		out.Err = err
		coll.AddError(diag.New(diag.IntervalSourceFailure, "%v", err))
	} else {
		failed := make(map[string]bool)
		for _, cond := range plan {
			if err := ctx.Err(); err != nil {
				out.Err = err
				break
			}
			res := e.evaluate(ctx, ev, cond, coll.Window, failed)
			if res.Err != nil {
				failed[cond.ID] = true
				log.Error().Str("condition", cond.ID).Err(res.Err).Msg("condition evaluation failed")
			} else {
				log.Debug().Str("condition", cond.ID).Int("slices", res.Partition.Len()).Dur("elapsed", res.Elapsed).Msg("condition evaluated")
			}
			results[cond] = res
		}
		if err := release(); err != nil {
			log.Warn().Err(err).Msg("failed to release session")
		}
	}

	for _, cond := range coll.Conditions() {
		res, ok := results[cond]
		if !ok {
			res = &ConditionResult{Condition: cond, State: StateInvalid}
			if cond.Valid() {
				res.State = StateFailed
				if out.Err != nil {
					res.Err = out.Err
				}
			}
		}
		out.Results = append(out.Results, res)
		e.record(runID, coll, res)
	}
	for _, entry := range coll.Errors().Entries() {
		e.metrics.IncError(entry.Kind)
	}

	log.Info().Int("conditions", coll.Len()).Int("evaluated", len(results)).Dur("elapsed", time.Since(start)).Msg("collection done")
	return out
}

// evaluator builds the evaluator of one collection. In database modes it
// pins a session and creates the observation views for the window.
func (e *Engine) evaluator(ctx context.Context, coll *collection.Collection, dialect sqlgen.Dialect) (Evaluator, func() error, error) {
	if !e.usesDatabase() {
		return NewInProcess(e.source), func() error { return nil }, nil
	}

	conn, err := e.adapter.Conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := obsdb.PrepareSession(ctx, conn, coll.Window); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if ids, err := obsdb.SessionStationIDs(ctx, conn); err != nil {
		e.logger.Warn().Err(err).Str("collection", coll.Title).Msg("could not list stations in window")
	} else {
		coll.CheckStations(ids)
	}

	if e.mode == ModePushdown {
		pd := NewPushdown(conn, dialect)
		return pd, func() error {
			err := pd.Release(context.WithoutCancel(ctx))
			return errors.Join(err, conn.Close())
		}, nil
	}
	src := &source.SQL{DB: conn, Dialect: dialect}
	return NewInProcess(src), conn.Close, nil
}

func (e *Engine) evaluate(ctx context.Context, ev Evaluator, cond *condition.Condition, w core.Window, failed map[string]bool) *ConditionResult {
	res := &ConditionResult{Condition: cond}
	start := time.Now()

	for _, ref := range cond.Refs() {
		if failed[ref] {
			res.Err = diag.New(diag.IntervalSourceFailure, "referenced condition %s failed", ref)
			break
		}
	}
	if res.Err == nil {
		res.Partition, res.Err = ev.Evaluate(ctx, cond, w)
	}
	res.Elapsed = time.Since(start)

	if res.Err != nil {
		res.State = StateFailed
		res.Partition = nil
		cond.Note(res.Err)
		return res
	}

	res.State = StateEvaluated
	res.Result = planner.Summarize(res.Partition, w)
	if res.Result.Degenerate() {
		cond.Note(diag.Warn(diag.DegenerateWindow, "total time span is zero, nothing to divide by"))
	}
	return res
}

func (e *Engine) record(runID string, coll *collection.Collection, res *ConditionResult) {
	cond := res.Condition
	e.metrics.ObserveCondition(coll.Title, res.State, res.Elapsed)

	var msgs []string
	for _, entry := range cond.Entries() {
		e.metrics.IncError(entry.Kind)
		msgs = append(msgs, entry.Kind+": "+entry.String())
	}
	if e.store == nil {
		return
	}

	rec := &core.ConditionRecord{
		RunID:       runID,
		Collection:  coll.Title,
		ConditionID: cond.ID,
		Site:        cond.Site,
		MasterAlias: cond.MasterAlias,
		Condition:   cond.Raw,
		State:       res.State,
		Result:      res.Result,
		Errors:      msgs,
		ExecutionMS: res.Elapsed.Milliseconds(),
	}
	if err := e.store.RecordResult(rec); err != nil {
		e.logger.Error().Err(err).Str("condition", cond.Scope()).Msg("failed to record result")
	}
}
