package parser

import (
	"errors"
	"testing"

	"github.com/leapstack-labs/tsa/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]core.TriState) func(string) core.TriState {
	return func(alias string) core.TriState { return m[alias] }
}

func TestParseExpr_Precedence(t *testing.T) {
	tests := []struct {
		name string
		src  string
		vals map[string]core.TriState
		want core.TriState
	}{
		{
			name: "and binds tighter than or",
			src:  "a or b and c",
			vals: map[string]core.TriState{"a": core.True, "b": core.False, "c": core.False},
			want: core.True,
		},
		{
			name: "not binds tighter than and",
			src:  "not a and b",
			vals: map[string]core.TriState{"a": core.True, "b": core.True},
			want: core.False,
		},
		{
			name: "parens override",
			src:  "(a or b) and c",
			vals: map[string]core.TriState{"a": core.True, "b": core.False, "c": core.False},
			want: core.False,
		},
		{
			name: "unknown absorbed by false in and",
			src:  "a and b",
			vals: map[string]core.TriState{"a": core.False},
			want: core.False,
		},
		{
			name: "unknown absorbed by true in or",
			src:  "a or b",
			vals: map[string]core.TriState{"b": core.True},
			want: core.True,
		},
		{
			name: "unknown propagates",
			src:  "a and not b",
			vals: map[string]core.TriState{"a": core.True},
			want: core.Unknown,
		},
		{
			name: "double negation",
			src:  "not (not a)",
			vals: map[string]core.TriState{"a": core.False},
			want: core.False,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := ParseExpr(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Eval(env(tt.vals)))
		})
	}
}

func TestParseExpr_String(t *testing.T) {
	e, err := ParseExpr("(d2_0 AND not d2_1)  OR d2_2")
	require.NoError(t, err)
	assert.Equal(t, "(d2_0 and not d2_1) or d2_2", e.String())
	assert.Equal(t, []string{"d2_0", "d2_1", "d2_2"}, Idents(e))
}

func TestParseExpr_Errors(t *testing.T) {
	_, err := ParseExpr("d1 and")
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Message, "cannot be last element")

	_, err = ParseExpr("d1 and s1#x > 1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPredicateInAlias))
}

func TestTriStateTables(t *testing.T) {
	vals := []core.TriState{core.True, core.False, core.Unknown}
	for _, a := range vals {
		for _, b := range vals {
			assert.Equal(t, a.And(b), b.And(a), "and is commutative")
			assert.Equal(t, a.Or(b), b.Or(a), "or is commutative")
			assert.Equal(t, a.And(b).Not(), a.Not().Or(b.Not()), "de morgan")
		}
	}
}
