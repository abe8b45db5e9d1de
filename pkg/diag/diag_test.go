package diag

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{InvalidIdentifier, "InvalidIdentifier"},
		{MalformedPredicate, "MalformedPredicate"},
		{GrammarError, "GrammarError"},
		{NoBlocksProduced, "NoBlocksProduced"},
		{UnresolvedReference, "UnresolvedReference"},
		{IntervalSourceFailure, "IntervalSourceFailure"},
		{DegenerateWindow, "DegenerateWindow"},
		{Kind(99), "Kind(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.kind.String())
		})
	}
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("grammarerror")
	require.True(t, ok)
	assert.Equal(t, GrammarError, k)

	_, ok = ParseKind("nope")
	assert.False(t, ok)
}

func TestError_Is(t *testing.T) {
	err := fmt.Errorf("compile: %w", New(MalformedPredicate, "bad %q", "x"))

	assert.True(t, errors.Is(err, &Error{Kind: MalformedPredicate}))
	assert.False(t, errors.Is(err, &Error{Kind: GrammarError}))

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, MalformedPredicate, kind)
}

func TestList_DeduplicatesRepeats(t *testing.T) {
	l := NewList("site_d1")
	l.Addf(GrammarError, "unbalanced")
	l.Addf(GrammarError, "unbalanced")
	l.Addf(GrammarError, "unbalanced")
	l.Addf(NoBlocksProduced, "no blocks")

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "site_d1", entries[0].Scope)
	assert.Equal(t, 2, entries[0].More)
	assert.Equal(t, "site_d1: unbalanced (2 more similar errors)", entries[0].String())
	assert.Equal(t, 0, entries[1].More)
}

func TestList_KeepsExplicitScope(t *testing.T) {
	l := NewList("collection")
	l.Add(New(UnresolvedReference, "missing").WithScope("site_d2"))

	entries := l.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "site_d2", entries[0].Scope)
	assert.Equal(t, "UnresolvedReference", entries[0].Kind)
}

func TestList_ForeignErrorsAreSourceFailures(t *testing.T) {
	l := NewList("site_d1")
	l.Add(errors.New("connection refused"))

	assert.Equal(t, 1, l.Count(IntervalSourceFailure))
	assert.True(t, l.HasErrors())
}

func TestList_WarningsDoNotCountAsErrors(t *testing.T) {
	l := NewList("site_d1")
	l.Add(Warn(UnresolvedReference, "station 1 not available"))

	assert.False(t, l.HasErrors())
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, "warning", l.Entries()[0].Severity)
}

func TestList_Err(t *testing.T) {
	l := NewList("x")
	assert.NoError(t, l.Err())

	l.Addf(DegenerateWindow, "zero span")
	err := l.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x: DegenerateWindow: zero span")
}
