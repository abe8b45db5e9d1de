package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenType_Class(t *testing.T) {
	tests := []struct {
		typ  TokenType
		want Class
	}{
		{OpenParen, ClassOpenParen},
		{CloseParen, ClassCloseParen},
		{And, ClassAndOr},
		{Or, ClassAndOr},
		{Not, ClassNot},
		{PredicateRef, ClassBlockLike},
		{BlockRef, ClassBlockLike},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.Class())
		})
	}
}

func TestToken_String(t *testing.T) {
	assert.Equal(t, `PREDICATE("s1#x > 1")`, Token{Type: PredicateRef, Text: "s1#x > 1"}.String())
	assert.Equal(t, "AND", Token{Type: And, Text: "and"}.String())
	assert.Equal(t, "TOKEN(42)", TokenType(42).String())
	assert.Equal(t, "andor", ClassAndOr.String())
}
