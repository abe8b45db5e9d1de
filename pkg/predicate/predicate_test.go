package predicate

import (
	"testing"

	"github.com/leapstack-labs/tsa/pkg/diag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		station  string
		sensor   string
		operator Operator
		value    string
	}{
		{
			name:     "numeric comparison",
			input:    "s1122#KITKA3_LUKU >= 0.30",
			station:  "s1122",
			sensor:   "kitka3_luku",
			operator: OpGe,
			value:    "0.30",
		},
		{
			name:     "in tuple",
			input:    "s1122#tie_1 in (1, 2, 3)",
			station:  "s1122",
			sensor:   "tie_1",
			operator: OpIn,
			value:    "(1, 2, 3)",
		},
		{
			name:     "uppercase IN",
			input:    "s1122#tie_1 IN (1,2)",
			station:  "s1122",
			sensor:   "tie_1",
			operator: OpIn,
			value:    "(1,2)",
		},
		{
			name:     "not equal",
			input:    "s1#x != -1.5",
			station:  "s1",
			sensor:   "x",
			operator: OpNe,
			value:    "-1.5",
		},
		{
			name:     "legacy not equal",
			input:    "s1#x <> 2",
			station:  "s1",
			sensor:   "x",
			operator: OpNe,
			value:    "2",
		},
		{
			name:     "station with diacritics",
			input:    " Ylöjärvi#ilma  < 0 ",
			station:  "ylojarvi",
			sensor:   "ilma",
			operator: OpLt,
			value:    "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.station, p.Station)
			assert.Equal(t, tt.sensor, p.Sensor)
			assert.Equal(t, tt.operator, p.Operator)
			assert.Equal(t, tt.value, p.Value)
			assert.Equal(t, tt.input, p.Raw)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  diag.Kind
	}{
		{"no hash", "s1122 kitka >= 1", diag.MalformedPredicate},
		{"two hashes", "s1#x#y >= 1", diag.MalformedPredicate},
		{"no operator", "s1#x", diag.MalformedPredicate},
		{"operator without spaces", "s1#x>1", diag.MalformedPredicate},
		{"two operators", "s1#x > 1 < 2", diag.MalformedPredicate},
		{"missing value", "s1#x >= ", diag.MalformedPredicate},
		{"missing sensor", "s1# >= 1", diag.MalformedPredicate},
		{"value not numeric", "s1#x >= abc", diag.MalformedPredicate},
		{"value not finite", "s1#x >= inf", diag.MalformedPredicate},
		{"in without parens", "s1#x in 1, 2", diag.MalformedPredicate},
		{"bad station", "1s#x >= 1", diag.InvalidIdentifier},
		{"bad sensor", "s1#x-y >= 1", diag.InvalidIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			kind, ok := diag.KindOf(err)
			require.True(t, ok, "expected a diag error, got %v", err)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestPredicate_Key(t *testing.T) {
	a, err := Parse("s1#X > 0.30")
	require.NoError(t, err)
	b, err := Parse("S1#x   >   0.3")
	require.NoError(t, err)
	c, err := Parse("s1#x > 0.31")
	require.NoError(t, err)

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
	assert.Equal(t, "s1#x > 0.3", a.String())
}

func TestPredicate_InValues(t *testing.T) {
	p, err := Parse("s1#x in (1, 2.50, 3)")
	require.NoError(t, err)

	vals, err := p.InValues()
	require.NoError(t, err)
	require.Len(t, vals, 3)
	assert.Equal(t, "2.5", vals[1].String())
	assert.Equal(t, "(1, 2.5, 3)", p.CanonicalValue())

	q, err := Parse("s1#x in (a, b)")
	require.NoError(t, err, "tuple members are only checked when rendered")
	_, err = q.InValues()
	assert.Error(t, err)
}

func TestPredicate_StationID(t *testing.T) {
	p, err := Parse("s1122#kitka3_luku >= 0.30")
	require.NoError(t, err)

	id, err := p.StationID()
	require.NoError(t, err)
	assert.Equal(t, 1122, id)
}

func TestOperator_SQL(t *testing.T) {
	assert.Equal(t, "<>", OpNe.SQL())
	assert.Equal(t, "IN", OpIn.SQL())
	assert.Equal(t, ">=", OpGe.SQL())
}
