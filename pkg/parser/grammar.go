package parser

import (
	"strings"

	"github.com/leapstack-labs/tsa/pkg/diag"
	"github.com/leapstack-labs/tsa/pkg/token"
)

// follows[a][b] is true when a token of class a may be directly followed by
// a token of class b.
var follows = [5][5]bool{
	token.ClassOpenParen: {
		token.ClassOpenParen: true, token.ClassNot: true, token.ClassBlockLike: true,
	},
	token.ClassCloseParen: {
		token.ClassCloseParen: true, token.ClassAndOr: true,
	},
	token.ClassAndOr: {
		token.ClassOpenParen: true, token.ClassNot: true, token.ClassBlockLike: true,
	},
	token.ClassNot: {
		token.ClassOpenParen: true, token.ClassBlockLike: true,
	},
	token.ClassBlockLike: {
		token.ClassCloseParen: true, token.ClassAndOr: true,
	},
}

var (
	firstAllowed = map[token.Class]bool{
		token.ClassOpenParen: true, token.ClassNot: true, token.ClassBlockLike: true,
	}
	lastAllowed = map[token.Class]bool{
		token.ClassCloseParen: true, token.ClassBlockLike: true,
	}
)

// Validate checks a token sequence against the condition grammar and returns
// every violation found. An empty result means the sequence is well formed.
//
// The parenthesis counts include parentheses inside predicate values, so
// they match a count over the raw expression.
func Validate(tokens []token.Token) []*diag.Error {
	var errs []*diag.Error

	var open, closed int
	for _, t := range tokens {
		open += strings.Count(t.Text, "(")
		closed += strings.Count(t.Text, ")")
	}
	if open != closed {
		errs = append(errs, diag.New(diag.GrammarError,
			`unequal number of "(" (%d) and ")" (%d) in condition`, open, closed))
	}

	if len(tokens) == 0 {
		return append(errs, diag.New(diag.GrammarError, "condition is empty"))
	}

	first := tokens[0]
	if !firstAllowed[first.Type.Class()] {
		errs = append(errs, at(first.Pos, diag.New(diag.GrammarError,
			"%q cannot be first element in condition", first.Text)))
	}

	last := tokens[len(tokens)-1]
	if !lastAllowed[last.Type.Class()] {
		errs = append(errs, at(last.Pos, diag.New(diag.GrammarError,
			"%q cannot be last element in condition", last.Text)))
	}

	for i := 1; i < len(tokens); i++ {
		a, b := tokens[i-1], tokens[i]
		if !follows[a.Type.Class()][b.Type.Class()] {
			errs = append(errs, at(b.Pos, diag.New(diag.GrammarError,
				"illegal combination in condition: %q before %q", a.Text, b.Text)))
		}
	}

	return errs
}

func at(pos token.Position, err *diag.Error) *diag.Error {
	err.Pos = pos.Column
	return err
}
