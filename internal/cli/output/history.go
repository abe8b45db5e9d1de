package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/tsa/internal/engine"
	"github.com/leapstack-labs/tsa/pkg/core"
)

// RunSummary is the JSON form of a recorded run.
type RunSummary struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// RecordOutput is the JSON form of a recorded condition result.
type RecordOutput struct {
	Collection  string     `json:"collection"`
	ConditionID string     `json:"condition_id"`
	Condition   string     `json:"condition"`
	State       string     `json:"state"`
	DataFrom    *time.Time `json:"data_from,omitempty"`
	DataUntil   *time.Time `json:"data_until,omitempty"`
	Valid       float64    `json:"valid"`
	Invalid     float64    `json:"invalid"`
	NoData      float64    `json:"nodata"`
	Rows        int        `json:"rows"`
	Errors      []string   `json:"errors,omitempty"`
	ExecutionMS int64      `json:"execution_ms"`
}

// RunDetail is the JSON form of one run with its results.
type RunDetail struct {
	RunSummary
	Results []RecordOutput `json:"results"`
}

func runSummary(run *core.Run) RunSummary {
	return RunSummary{
		ID:          run.ID,
		Title:       run.Title,
		Status:      string(run.Status),
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Error:       run.Error,
	}
}

// RenderRuns renders the run history, newest first.
func RenderRuns(r *Renderer, runs []*core.Run) error {
	out := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, runSummary(run))
	}
	if r.EffectiveMode() == ModeJSON {
		return r.JSON(out)
	}
	if len(out) == 0 {
		r.Println("No runs recorded")
		return nil
	}

	t := r.newTable()
	t.AppendHeader(table.Row{"Run", "Title", "Status", "Started", "Completed"})
	for _, s := range out {
		t.AppendRow(table.Row{s.ID, s.Title, r.styled(r.styles.Status(s.Status).Render, s.Status),
			s.StartedAt.Format(time.DateTime), formatTime(s.CompletedAt)})
	}
	r.render(t)
	return nil
}

// RenderRunResults renders the recorded results of one run.
func RenderRunResults(r *Renderer, run *core.Run, recs []*core.ConditionRecord) error {
	detail := RunDetail{RunSummary: runSummary(run), Results: make([]RecordOutput, 0, len(recs))}
	for _, rec := range recs {
		detail.Results = append(detail.Results, RecordOutput{
			Collection:  rec.Collection,
			ConditionID: rec.ConditionID,
			Condition:   rec.Condition,
			State:       rec.State,
			DataFrom:    rec.Result.DataFrom,
			DataUntil:   rec.Result.DataUntil,
			Valid:       rec.Result.PctValid,
			Invalid:     rec.Result.PctInvalid,
			NoData:      rec.Result.PctNoData,
			Rows:        rec.Result.Rows,
			Errors:      rec.Errors,
			ExecutionMS: rec.ExecutionMS,
		})
	}
	if r.EffectiveMode() == ModeJSON {
		return r.JSON(detail)
	}

	r.Header(fmt.Sprintf("Run %s (%s)", run.ID, run.Title))
	r.Println(FormatKeyValue("Status:", detail.Status, 10))
	r.Println(FormatKeyValue("Started:", detail.StartedAt.Format(time.DateTime), 10))
	if detail.CompletedAt != nil {
		r.Println(FormatKeyValue("Completed:", formatTime(detail.CompletedAt), 10))
	}
	if detail.Error != "" {
		r.Error(detail.Error)
	}
	r.Println()

	t := r.newTable()
	t.AppendHeader(table.Row{"Collection", "Condition", "State", "Valid", "Invalid", "No data", "Rows", "Time", "Errors"})
	for _, o := range detail.Results {
		row := table.Row{o.Collection, o.ConditionID, r.styled(r.styles.State(o.State).Render, o.State),
			"", "", "", "", fmt.Sprintf("%d ms", o.ExecutionMS), strings.Join(o.Errors, "; ")}
		if o.State == engine.StateEvaluated {
			row[3], row[4], row[5], row[6] = pct(o.Valid), pct(o.Invalid), pct(o.NoData), o.Rows
		}
		t.AppendRow(row)
	}
	r.render(t)
	return nil
}
