package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/tsa/internal/testutil"
	"github.com/leapstack-labs/tsa/pkg/core"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(testutil.NewTestLogger(t))
	if err := store.Open(":memory:"); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := store.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_OpenClose(t *testing.T) {
	store := NewSQLiteStore(testutil.NewTestLogger(t))

	if err := store.Open(":memory:"); err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestSQLiteStore_InitSchema(t *testing.T) {
	store := setupTestStore(t)

	for _, table := range []string{"runs", "condition_results"} {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		if err != nil {
			t.Errorf("table %s does not exist: %v", table, err)
		} else {
			_ = rows.Close()
		}
	}

	version, err := store.GetMigrationVersion()
	if err != nil {
		t.Fatalf("failed to get migration version: %v", err)
	}
	if version != 1 {
		t.Errorf("migration version = %d, want 1", version)
	}

	if err := store.InitSchema(); err != nil {
		t.Errorf("second InitSchema should be a no-op: %v", err)
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := Open(path, testutil.NewTestLogger(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	run, err := store.CreateRun("persisted")
	if err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	_ = store.Close()

	store, err = Open(path, testutil.NewTestLogger(t))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = store.Close() }()
	got, err := store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("failed to get run after reopen: %v", err)
	}
	if got.Title != "persisted" {
		t.Errorf("title = %q, want %q", got.Title, "persisted")
	}
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	tests := []struct {
		name    string
		status  RunStatus
		errMsg  string
		wantErr string
	}{
		{name: "completed", status: RunStatusCompleted},
		{name: "failed", status: RunStatusFailed, errMsg: "collection winter: connection refused", wantErr: "collection winter: connection refused"},
		{name: "cancelled", status: RunStatusCancelled, errMsg: "context canceled", wantErr: "context canceled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupTestStore(t)

			run, err := store.CreateRun("winter 2024")
			if err != nil {
				t.Fatalf("failed to create run: %v", err)
			}
			if run.ID == "" {
				t.Error("run ID should not be empty")
			}
			if run.Status != RunStatusRunning {
				t.Errorf("expected status %q, got %q", RunStatusRunning, run.Status)
			}

			if err := store.CompleteRun(run.ID, tt.status, tt.errMsg); err != nil {
				t.Fatalf("failed to complete run: %v", err)
			}

			got, err := store.GetRun(run.ID)
			if err != nil {
				t.Fatalf("failed to get run: %v", err)
			}
			if got.Status != tt.status {
				t.Errorf("status = %q, want %q", got.Status, tt.status)
			}
			if got.CompletedAt == nil {
				t.Error("completed_at should be set")
			}
			if got.Error != tt.wantErr {
				t.Errorf("error = %q, want %q", got.Error, tt.wantErr)
			}
			if got.Title != "winter 2024" {
				t.Errorf("title = %q", got.Title)
			}
		})
	}
}

func TestSQLiteStore_RunNotFound(t *testing.T) {
	store := setupTestStore(t)

	if _, err := store.GetRun("missing"); err == nil {
		t.Error("expected error for missing run")
	}
	if err := store.CompleteRun("missing", RunStatusCompleted, ""); err == nil {
		t.Error("expected error completing missing run")
	}
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	store := setupTestStore(t)

	for _, title := range []string{"first", "second", "third"} {
		if _, err := store.CreateRun(title); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	runs, err := store.ListRuns(2)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].Title != "third" || runs[1].Title != "second" {
		t.Errorf("runs = %q, %q; want newest first", runs[0].Title, runs[1].Title)
	}

	all, err := store.ListRuns(0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d runs, want 3", len(all))
	}
}

func TestSQLiteStore_Results(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.CreateRun("winter")
	if err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	from := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	until := from.Add(90 * time.Minute)
	records := []*core.ConditionRecord{
		{
			RunID:       run.ID,
			Collection:  "winter",
			ConditionID: "tampere_d1",
			Site:        "tampere",
			MasterAlias: "d1",
			Condition:   "s1122#kitka3_luku >= 0.30",
			State:       "evaluated",
			Result: core.Result{
				DataFrom:   &from,
				DataUntil:  &until,
				TotalSpan:  90 * time.Minute,
				Valid:      60 * time.Minute,
				Invalid:    20 * time.Minute,
				NoData:     10 * time.Minute,
				PctValid:   60.0 / 90,
				PctInvalid: 20.0 / 90,
				PctNoData:  10.0 / 90,
				Rows:       4,
			},
			ExecutionMS: 12,
		},
		{
			RunID:       run.ID,
			Collection:  "winter",
			ConditionID: "tampere_d2",
			Site:        "tampere",
			MasterAlias: "d2",
			Condition:   "s1122#kitka3_luku >",
			State:       "invalid",
			Errors:      []string{"MalformedPredicate: tampere_d2: missing value"},
		},
	}
	for _, rec := range records {
		if err := store.RecordResult(rec); err != nil {
			t.Fatalf("failed to record result: %v", err)
		}
		if rec.ID == "" {
			t.Error("record ID should be generated")
		}
	}

	got, err := store.ListResults(run.ID)
	if err != nil {
		t.Fatalf("failed to list results: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}

	d1 := got[0]
	if d1.ConditionID != "tampere_d1" || d1.State != "evaluated" {
		t.Errorf("unexpected first record: %+v", d1)
	}
	if d1.Result.DataFrom == nil || !d1.Result.DataFrom.Equal(from) {
		t.Errorf("data_from = %v, want %v", d1.Result.DataFrom, from)
	}
	if d1.Result.Valid != 60*time.Minute || d1.Result.TotalSpan != 90*time.Minute {
		t.Errorf("durations = %v / %v", d1.Result.Valid, d1.Result.TotalSpan)
	}
	if d1.Result.Rows != 4 || d1.ExecutionMS != 12 {
		t.Errorf("rows = %d, execution_ms = %d", d1.Result.Rows, d1.ExecutionMS)
	}
	if len(d1.Errors) != 0 {
		t.Errorf("errors = %v, want none", d1.Errors)
	}

	d2 := got[1]
	if d2.Result.DataFrom != nil {
		t.Errorf("invalid condition should have no data_from, got %v", d2.Result.DataFrom)
	}
	if len(d2.Errors) != 1 || d2.Errors[0] != "MalformedPredicate: tampere_d2: missing value" {
		t.Errorf("errors = %v", d2.Errors)
	}

	other, err := store.ListResults("other")
	if err != nil {
		t.Fatalf("failed to list results: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("got %d results for unknown run", len(other))
	}
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(testutil.NewTestLogger(t))
	if _, err := store.CreateRun("x"); err == nil {
		t.Error("expected error on unopened store")
	}
	if err := store.RecordResult(&core.ConditionRecord{}); err == nil {
		t.Error("expected error on unopened store")
	}
	if err := store.Migrate(); err == nil {
		t.Error("expected error on unopened store")
	}
}
