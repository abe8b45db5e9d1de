// Package token defines the tokens of condition expressions.
//
// The variant set is closed: parentheses, the connectives and/or/not, and
// the two atom kinds. PredicateRef atoms contain a "#" and resolve to primary
// blocks; BlockRef atoms name another condition and resolve to secondary
// blocks.
package token

import "fmt"

// TokenType represents the type of a lexical token.
//
//nolint:revive // Accept stutter as token.TokenType is clear and widely used
type TokenType int

const (
	OpenParen TokenType = iota
	CloseParen
	And
	Or
	Not
	PredicateRef
	BlockRef
)

var tokenNames = map[TokenType]string{
	OpenParen:    "(",
	CloseParen:   ")",
	And:          "AND",
	Or:           "OR",
	Not:          "NOT",
	PredicateRef: "PREDICATE",
	BlockRef:     "BLOCKREF",
}

// String returns a human-readable representation of the token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TOKEN(%d)", t)
}

// Class is the grammar class of a token. And and Or share a class, as do the
// two atom kinds.
type Class int

const (
	ClassOpenParen Class = iota
	ClassCloseParen
	ClassAndOr
	ClassNot
	ClassBlockLike
)

var classNames = [...]string{"open_par", "close_par", "andor", "not", "block"}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("CLASS(%d)", int(c))
}

// Class returns the grammar class of t.
func (t TokenType) Class() Class {
	switch t {
	case OpenParen:
		return ClassOpenParen
	case CloseParen:
		return ClassCloseParen
	case And, Or:
		return ClassAndOr
	case Not:
		return ClassNot
	default:
		return ClassBlockLike
	}
}

// IsAtom reports whether t is a PredicateRef or BlockRef.
func (t TokenType) IsAtom() bool {
	return t == PredicateRef || t == BlockRef
}

// Token is a lexical token with its original text.
type Token struct {
	Type TokenType
	Text string
	Pos  Position
}

func (t Token) String() string {
	if t.Type.IsAtom() {
		return fmt.Sprintf("%s(%q)", t.Type, t.Text)
	}
	return t.Type.String()
}
