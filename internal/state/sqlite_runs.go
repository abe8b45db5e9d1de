package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/tsa/pkg/core"
)

const runColumns = `id, title, status, started_at, completed_at, error`

// CreateRun creates a new evaluation run.
func (s *SQLiteStore) CreateRun(title string) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &core.Run{
		ID:        generateID(),
		Title:     title,
		Status:    core.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	s.logger.Debug().Str("id", run.ID).Str("title", title).Msg("creating run")

	_, err := s.db.Exec(
		`INSERT INTO runs (id, title, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Title, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*core.Run, error) {
	run := &core.Run{}
	var (
		status      string
		completedAt sql.NullTime
		errMsg      sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Title, &status, &run.StartedAt, &completedAt, &errMsg); err != nil {
		return nil, err
	}
	run.Status = core.RunStatus(status)
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	run.Error = errMsg.String
	return run, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run as finished with the given status.
func (s *SQLiteStore) CompleteRun(id string, status core.RunStatus, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	var errorPtr *string
	if errMsg != "" {
		errorPtr = &errMsg
	}

	result, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(status), now, errorPtr, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. A limit of zero or
// less returns every run.
func (s *SQLiteStore) ListRuns(limit int) ([]*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*core.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RecordResult stores the outcome of one condition.
func (s *SQLiteStore) RecordResult(rec *core.ConditionRecord) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if rec.ID == "" {
		rec.ID = generateID()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}

	errs := rec.Errors
	if errs == nil {
		errs = []string{}
	}
	errorsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("failed to encode errors: %w", err)
	}

	r := rec.Result
	_, err = s.db.Exec(
		`INSERT INTO condition_results (
			id, run_id, collection, condition_id, site, master_alias, condition, state,
			data_from, data_until, total_span_ms, valid_ms, invalid_ms, nodata_ms,
			pct_valid, pct_invalid, pct_nodata, slices, errors, execution_ms, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.Collection, rec.ConditionID, rec.Site, rec.MasterAlias, rec.Condition, rec.State,
		nullTime(r.DataFrom), nullTime(r.DataUntil),
		r.TotalSpan.Milliseconds(), r.Valid.Milliseconds(), r.Invalid.Milliseconds(), r.NoData.Milliseconds(),
		r.PctValid, r.PctInvalid, r.PctNoData, r.Rows, string(errorsJSON), rec.ExecutionMS, rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}
	return nil
}

// ListResults returns the results of a run in recording order.
func (s *SQLiteStore) ListResults(runID string) ([]*core.ConditionRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(`SELECT
			id, run_id, collection, condition_id, site, master_alias, condition, state,
			data_from, data_until, total_span_ms, valid_ms, invalid_ms, nodata_ms,
			pct_valid, pct_invalid, pct_nodata, slices, errors, execution_ms, recorded_at
		FROM condition_results WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.ConditionRecord
	for rows.Next() {
		rec := &core.ConditionRecord{}
		var (
			from, until                           sql.NullTime
			totalMS, validMS, invalidMS, nodataMS int64
			errorsJSON                            string
		)
		err := rows.Scan(
			&rec.ID, &rec.RunID, &rec.Collection, &rec.ConditionID, &rec.Site, &rec.MasterAlias, &rec.Condition, &rec.State,
			&from, &until, &totalMS, &validMS, &invalidMS, &nodataMS,
			&rec.Result.PctValid, &rec.Result.PctInvalid, &rec.Result.PctNoData, &rec.Result.Rows,
			&errorsJSON, &rec.ExecutionMS, &rec.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if from.Valid {
			rec.Result.DataFrom = &from.Time
		}
		if until.Valid {
			rec.Result.DataUntil = &until.Time
		}
		rec.Result.TotalSpan = time.Duration(totalMS) * time.Millisecond
		rec.Result.Valid = time.Duration(validMS) * time.Millisecond
		rec.Result.Invalid = time.Duration(invalidMS) * time.Millisecond
		rec.Result.NoData = time.Duration(nodataMS) * time.Millisecond
		if err := json.Unmarshal([]byte(errorsJSON), &rec.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode errors of %s: %w", rec.ConditionID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
