// Package parser turns condition expressions into tokens, checks them against
// the condition grammar and evaluates alias expressions in three-valued logic.
package parser

import (
	"strings"
	"unicode/utf8"

	"github.com/leapstack-labs/tsa/pkg/token"
)

// fragment is a piece of the collapsed expression before classification.
type fragment struct {
	text   string
	offset int
	typ    token.TokenType
	atom   bool
}

var connectives = [...]struct {
	word string
	typ  token.TokenType
}{
	{"and", token.And},
	{"or", token.Or},
	{"not", token.Not},
}

// Tokenize splits a condition expression into tokens.
//
// Whitespace runs collapse to single spaces. The expression is split at
// parentheses and at the words and, or, not (any case) where they stand
// alone between whitespace, parentheses or the ends of the string. Text
// following an " in" operator is glued back together so that value tuples
// such as "(1, 2)" stay inside their predicate. Remaining text containing
// "#" becomes a PredicateRef, anything else a BlockRef.
//
// Tokenize never fails; grammar problems are reported by Validate.
func Tokenize(expr string) []token.Token {
	s := strings.Join(strings.Fields(expr), " ")
	frags := mergeInTuples(split(s))

	tokens := make([]token.Token, 0, len(frags))
	for _, f := range frags {
		typ := f.typ
		if f.atom {
			typ = token.BlockRef
			if strings.Contains(f.text, "#") {
				typ = token.PredicateRef
			}
		}
		tokens = append(tokens, token.Token{
			Type: typ,
			Text: f.text,
			Pos: token.Position{
				Column: utf8.RuneCountInString(s[:f.offset]) + 1,
				Offset: f.offset,
			},
		})
	}
	return tokens
}

func split(s string) []fragment {
	var frags []fragment
	start := 0

	flush := func(end int) {
		raw := s[start:end]
		text := strings.TrimSpace(raw)
		if text == "" {
			return
		}
		lead := len(raw) - len(strings.TrimLeft(raw, " "))
		frags = append(frags, fragment{text: text, offset: start + lead, atom: true})
	}

	for i := 0; i < len(s); {
		switch c := s[i]; c {
		case '(', ')':
			flush(i)
			typ := token.OpenParen
			if c == ')' {
				typ = token.CloseParen
			}
			frags = append(frags, fragment{text: string(c), offset: i, typ: typ})
			i++
			start = i
			continue
		}
		if typ, n, ok := connectiveAt(s, i); ok {
			flush(i)
			frags = append(frags, fragment{text: s[i : i+n], offset: i, typ: typ})
			i += n
			start = i
			continue
		}
		i++
	}
	flush(len(s))
	return frags
}

func connectiveAt(s string, i int) (token.TokenType, int, bool) {
	if i > 0 && !isBoundary(s[i-1]) {
		return 0, 0, false
	}
	for _, c := range connectives {
		end := i + len(c.word)
		if end > len(s) || !strings.EqualFold(s[i:end], c.word) {
			continue
		}
		if end == len(s) || isBoundary(s[end]) {
			return c.typ, len(c.word), true
		}
	}
	return 0, 0, false
}

func isBoundary(c byte) bool {
	return c == ' ' || c == '(' || c == ')'
}

// mergeInTuples re-joins the pieces of "x#y in (a, b)" that split cut apart.
// A fragment ending in " in" absorbs the next fragment with a space; a
// fragment containing " in " that has not yet been closed by ")" absorbs the
// next one directly.
func mergeInTuples(frags []fragment) []fragment {
	out := make([]fragment, 0, len(frags))
	for _, f := range frags {
		if len(out) == 0 {
			out = append(out, f)
			continue
		}
		last := &out[len(out)-1]
		lower := strings.ToLower(last.text)
		switch {
		case len(lower) > 3 && strings.HasSuffix(lower, " in"):
			last.text += " " + f.text
			last.atom = true
		case strings.Contains(lower, " in ") && !strings.HasSuffix(lower, ")"):
			last.text += f.text
			last.atom = true
		default:
			out = append(out, f)
		}
	}
	return out
}
