package output

import (
	"bytes"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/leapstack-labs/tsa/internal/collection"
	"github.com/leapstack-labs/tsa/internal/engine"
	"github.com/leapstack-labs/tsa/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ansi = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func newTestRenderer(mode OutputMode, isTTY bool) (*Renderer, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return NewRendererWithTTY(out, errOut, isTTY, mode), out, errOut
}

func testReport(t *testing.T) *engine.Report {
	t.Helper()
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	coll, err := collection.New("winter", collection.DateWindow(from, from.AddDate(0, 0, 30)))
	require.NoError(t, err)
	good, err := coll.Add("tampere", "d1", "s1122#kitka3_luku >= 0.30", 4)
	require.NoError(t, err)
	bad, err := coll.Add("tampere", "d2", "s1122#kitka3_luku>0.30", 5)
	require.NoError(t, err)
	coll.Resolve()

	dataFrom := from.Add(time.Hour)
	return &engine.Report{
		Run: &core.Run{ID: "run-1", Title: "january", Status: core.RunStatusCompleted},
		Collections: []*engine.CollectionResult{{
			Collection: coll,
			Results: []*engine.ConditionResult{
				{Condition: good, State: engine.StateEvaluated, Result: core.Result{
					DataFrom: &dataFrom, DataUntil: &dataFrom, PctValid: 0.5, PctInvalid: 0.25, PctNoData: 0.25, Rows: 7,
				}},
				{Condition: bad, State: engine.StateInvalid},
			},
		}},
	}
}

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		mode  OutputMode
		isTTY bool
		want  OutputMode
	}{
		{ModeAuto, true, ModeText},
		{ModeAuto, false, ModeMarkdown},
		{"", false, ModeMarkdown},
		{ModeText, false, ModeText},
		{ModeJSON, true, ModeJSON},
		{"bogus", true, ModeText},
	}
	for _, tt := range tests {
		r, _, _ := newTestRenderer(tt.mode, tt.isTTY)
		assert.Equal(t, tt.want, r.EffectiveMode(), "mode %q tty %v", tt.mode, tt.isTTY)
	}
}

func TestRenderRun_Text(t *testing.T) {
	r, out, _ := newTestRenderer(ModeText, false)
	require.NoError(t, RenderRun(r, testReport(t)))

	s := out.String()
	assert.NotRegexp(t, ansi, s, "no colours without a terminal")
	assert.Contains(t, s, "winter (2024-01-01 to 2024-01-31)")
	assert.Contains(t, s, "tampere_d1")
	assert.Contains(t, s, "50.00 %")
	assert.Contains(t, s, "2024-01-01 01:00:00")
	assert.Contains(t, s, "2 conditions: 1 evaluated, 1 invalid, 0 failed")
	assert.Contains(t, s, "MalformedPredicate")
	assert.Contains(t, s, "run run-1 completed")
}

func TestRenderRun_Markdown(t *testing.T) {
	r, out, _ := newTestRenderer(ModeAuto, false)
	require.NoError(t, RenderRun(r, testReport(t)))

	s := out.String()
	assert.Contains(t, s, "## winter")
	assert.Contains(t, s, "| Condition | State |")
	assert.NotRegexp(t, ansi, s)
}

func TestRenderRun_JSON(t *testing.T) {
	r, out, _ := newTestRenderer(ModeJSON, true)
	require.NoError(t, RenderRun(r, testReport(t)))

	var got RunOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	require.Len(t, got.Collections, 1)
	c := got.Collections[0]
	require.Len(t, c.Conditions, 2)
	assert.Equal(t, "evaluated", c.Conditions[0].State)
	assert.InDelta(t, 0.5, c.Conditions[0].Valid, 1e-9)
	assert.Equal(t, 7, c.Conditions[0].Rows)
	assert.Equal(t, "invalid", c.Conditions[1].State)
	assert.Nil(t, c.Conditions[1].DataFrom)
	require.NotEmpty(t, c.Errors)
	assert.Equal(t, "tampere_d2", c.Errors[0].Scope)
}

func TestRenderValidation(t *testing.T) {
	rep := testReport(t)
	colls := []*collection.Collection{rep.Collections[0].Collection}

	r, out, errOut := newTestRenderer(ModeText, false)
	ok, err := RenderValidation(r, colls)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, out.String(), "tampere_d1")
	assert.Contains(t, out.String(), "invalid")
	assert.Contains(t, errOut.String(), "input has errors")

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clean, err := collection.New("clean", collection.DateWindow(from, from))
	require.NoError(t, err)
	_, err = clean.Add("s", "a", "s1#x > 1", 4)
	require.NoError(t, err)
	clean.Resolve()

	r, out, _ = newTestRenderer(ModeJSON, false)
	ok, err = RenderValidation(r, []*collection.Collection{clean})
	require.NoError(t, err)
	assert.True(t, ok)
	var got ValidationOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.True(t, got.Valid)
	assert.Equal(t, "valid", got.Collections[0].Conditions[0].State)
	assert.NotEmpty(t, got.Collections[0].Conditions[0].AliasExpression)
}

func TestRenderer_Messages(t *testing.T) {
	r, out, errOut := newTestRenderer(ModeText, true)
	r.Success("done")
	r.Warning("careful")
	r.Error("broken")

	assert.Contains(t, out.String(), "done")
	assert.Contains(t, errOut.String(), "careful")
	assert.Contains(t, errOut.String(), "broken")
	assert.Regexp(t, ansi, out.String(), "terminal output is coloured")
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "mode:    pushdown", FormatKeyValue("mode", "pushdown", 8))
	assert.Equal(t, "Run\n---", FormatHeader("Run"))
	assert.Equal(t, "12.50 %", pct(0.125))
	assert.Empty(t, formatTime(nil))
}
