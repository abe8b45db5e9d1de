package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/tsa/internal/collection"
	"github.com/leapstack-labs/tsa/internal/engine"
	"github.com/leapstack-labs/tsa/pkg/diag"
)

// RunOutput is the JSON form of a run.
type RunOutput struct {
	RunID       string             `json:"run_id"`
	Title       string             `json:"title"`
	Status      string             `json:"status"`
	Collections []CollectionOutput `json:"collections"`
}

// CollectionOutput is the JSON form of one collection.
type CollectionOutput struct {
	Title      string            `json:"title"`
	From       time.Time         `json:"from"`
	Until      time.Time         `json:"until"`
	Conditions []ConditionOutput `json:"conditions"`
	Errors     []diag.Entry      `json:"errors,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// ConditionOutput is the JSON form of one condition.
type ConditionOutput struct {
	ID              string     `json:"id"`
	Site            string     `json:"site"`
	MasterAlias     string     `json:"master_alias"`
	Condition       string     `json:"condition"`
	AliasExpression string     `json:"alias_expression,omitempty"`
	State           string     `json:"state"`
	DataFrom        *time.Time `json:"data_from,omitempty"`
	DataUntil       *time.Time `json:"data_until,omitempty"`
	Valid           float64    `json:"valid"`
	Invalid         float64    `json:"invalid"`
	NoData          float64    `json:"nodata"`
	Rows            int        `json:"rows"`
}

// BuildRunOutput converts a run report to its JSON form.
func BuildRunOutput(rep *engine.Report) *RunOutput {
	out := &RunOutput{}
	if rep.Run != nil {
		out.RunID, out.Title, out.Status = rep.Run.ID, rep.Run.Title, string(rep.Run.Status)
	}
	for _, cr := range rep.Collections {
		if cr == nil || cr.Collection == nil {
			continue
		}
		co := collectionOutput(cr.Collection)
		if cr.Err != nil {
			co.Error = cr.Err.Error()
		}
		for _, res := range cr.Results {
			c := res.Condition
			o := ConditionOutput{
				ID: c.ID, Site: c.Site, MasterAlias: c.MasterAlias, Condition: c.Raw,
				AliasExpression: c.AliasExpression, State: res.State,
			}
			if res.State == engine.StateEvaluated {
				r := res.Result
				o.DataFrom, o.DataUntil = r.DataFrom, r.DataUntil
				o.Valid, o.Invalid, o.NoData, o.Rows = r.PctValid, r.PctInvalid, r.PctNoData, r.Rows
			}
			co.Conditions = append(co.Conditions, o)
		}
		out.Collections = append(out.Collections, co)
	}
	return out
}

func collectionOutput(coll *collection.Collection) CollectionOutput {
	return CollectionOutput{
		Title:  coll.Title,
		From:   coll.Window.From,
		Until:  coll.Window.Until,
		Errors: coll.Report(),
	}
}

// RenderRun renders the results of a run.
func RenderRun(r *Renderer, rep *engine.Report) error {
	out := BuildRunOutput(rep)
	if r.EffectiveMode() == ModeJSON {
		return r.JSON(out)
	}

	for _, co := range out.Collections {
		r.Header(fmt.Sprintf("%s (%s to %s)", co.Title,
			co.From.Format(time.DateOnly), co.Until.Format(time.DateOnly)))

		t := r.newTable()
		t.AppendHeader(table.Row{"Condition", "State", "Valid", "Invalid", "No data", "Rows", "Data from", "Data until"})
		counts := make(map[string]int)
		for _, c := range co.Conditions {
			counts[c.State]++
			row := table.Row{c.ID, r.styled(r.styles.State(c.State).Render, c.State), "", "", "", "", "", ""}
			if c.State == engine.StateEvaluated {
				row[2], row[3], row[4] = pct(c.Valid), pct(c.Invalid), pct(c.NoData)
				row[5], row[6], row[7] = c.Rows, formatTime(c.DataFrom), formatTime(c.DataUntil)
			}
			t.AppendRow(row)
		}
		r.render(t)
		r.Printf("%d conditions: %d evaluated, %d invalid, %d failed\n",
			len(co.Conditions), counts[engine.StateEvaluated], counts[engine.StateInvalid], counts[engine.StateFailed])
		if co.Error != "" {
			r.Error(fmt.Sprintf("collection %s: %s", co.Title, co.Error))
		}
		renderEntries(r, co.Errors)
		r.Println()
	}
	if out.RunID != "" {
		r.Println(r.Muted(fmt.Sprintf("run %s %s", out.RunID, out.Status)))
	}
	return nil
}

// ValidationOutput is the JSON form of a validation.
type ValidationOutput struct {
	Valid       bool               `json:"valid"`
	Collections []CollectionOutput `json:"collections"`
}

// RenderValidation renders compiled collections without evaluating them.
// It reports whether every condition is valid and no error was recorded.
func RenderValidation(r *Renderer, colls []*collection.Collection) (bool, error) {
	out := ValidationOutput{Valid: true}
	for _, coll := range colls {
		co := collectionOutput(coll)
		for _, c := range coll.Conditions() {
			co.Conditions = append(co.Conditions, ConditionOutput{
				ID: c.ID, Site: c.Site, MasterAlias: c.MasterAlias, Condition: c.Raw,
				AliasExpression: c.AliasExpression, State: c.State().String(),
			})
		}
		for _, e := range co.Errors {
			if e.Severity == diag.SeverityError.String() {
				out.Valid = false
			}
		}
		out.Collections = append(out.Collections, co)
	}

	if r.EffectiveMode() == ModeJSON {
		return out.Valid, r.JSON(out)
	}
	for _, co := range out.Collections {
		r.Header(co.Title)
		t := r.newTable()
		t.AppendHeader(table.Row{"Condition", "State", "Expression"})
		for _, c := range co.Conditions {
			style := r.styles.Success.Render
			if c.State != "valid" {
				style = r.styles.Warning.Render
			}
			t.AppendRow(table.Row{c.ID, r.styled(style, c.State), c.AliasExpression})
		}
		r.render(t)
		renderEntries(r, co.Errors)
		r.Println()
	}
	if out.Valid {
		r.Success("all conditions are valid")
	} else {
		r.Error("input has errors")
	}
	return out.Valid, nil
}

func renderEntries(r *Renderer, entries []diag.Entry) {
	if len(entries) == 0 {
		return
	}
	t := r.newTable()
	t.AppendHeader(table.Row{"Scope", "Kind", "Severity", "Message"})
	for _, e := range entries {
		msg := e.Message
		if e.More > 0 {
			msg += fmt.Sprintf(" (%d more similar errors)", e.More)
		}
		t.AppendRow(table.Row{e.Scope, e.Kind, r.styled(r.styles.Severity(e.Severity).Render, e.Severity), msg})
	}
	r.render(t)
}

func (r *Renderer) newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	return t
}

func (r *Renderer) render(t table.Writer) {
	if r.EffectiveMode() == ModeMarkdown {
		t.RenderMarkdown()
		r.Println()
		return
	}
	t.Render()
}

// styled applies style only in text mode.
func (r *Renderer) styled(style func(...string) string, s string) string {
	if r.EffectiveMode() != ModeText {
		return s
	}
	return style(s)
}

func pct(v float64) string {
	return fmt.Sprintf("%.2f %%", v*100)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateTime)
}
