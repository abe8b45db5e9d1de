package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/tsa/pkg/core"
	"github.com/leapstack-labs/tsa/pkg/token"
)

// Expr is a node of a parsed alias expression.
type Expr interface {
	// Eval computes the node value. lookup returns the value of a block alias.
	Eval(lookup func(alias string) core.TriState) core.TriState
	String() string
	exprNode()
}

// Ident references a block by alias.
type Ident struct {
	Name string
}

// NotExpr negates its operand.
type NotExpr struct {
	X Expr
}

// BinaryExpr is a conjunction or disjunction.
type BinaryExpr struct {
	Op    token.TokenType // token.And or token.Or
	Left  Expr
	Right Expr
}

// ParenExpr is a parenthesized expression, kept so String round-trips.
type ParenExpr struct {
	X Expr
}

func (*Ident) exprNode()      {}
func (*NotExpr) exprNode()    {}
func (*BinaryExpr) exprNode() {}
func (*ParenExpr) exprNode()  {}

// Eval returns the block value.
func (e *Ident) Eval(lookup func(string) core.TriState) core.TriState {
	return lookup(e.Name)
}

// Eval negates the operand.
func (e *NotExpr) Eval(lookup func(string) core.TriState) core.TriState {
	return e.X.Eval(lookup).Not()
}

// Eval combines both sides.
func (e *BinaryExpr) Eval(lookup func(string) core.TriState) core.TriState {
	l, r := e.Left.Eval(lookup), e.Right.Eval(lookup)
	if e.Op == token.Or {
		return l.Or(r)
	}
	return l.And(r)
}

// Eval evaluates the inner expression.
func (e *ParenExpr) Eval(lookup func(string) core.TriState) core.TriState {
	return e.X.Eval(lookup)
}

func (e *Ident) String() string   { return e.Name }
func (e *NotExpr) String() string { return "not " + e.X.String() }
func (e *ParenExpr) String() string {
	return "(" + e.X.String() + ")"
}

func (e *BinaryExpr) String() string {
	op := " and "
	if e.Op == token.Or {
		op = " or "
	}
	return e.Left.String() + op + e.Right.String()
}

// Idents returns the distinct aliases referenced by e in first-seen order.
func Idents(e Expr) []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(Expr)
	walk = func(e Expr) {
		switch n := e.(type) {
		case *Ident:
			if !seen[n.Name] {
				seen[n.Name] = true
				out = append(out, n.Name)
			}
		case *NotExpr:
			walk(n.X)
		case *ParenExpr:
			walk(n.X)
		case *BinaryExpr:
			walk(n.Left)
			walk(n.Right)
		}
	}
	walk(e)
	return out
}

// ErrPredicateInAlias is returned when an alias expression still contains a
// raw predicate instead of a block alias.
var ErrPredicateInAlias = errors.New("alias expression contains an unresolved predicate")

// ParseExpr parses an alias expression such as "d2_0 and not (d2_1 or d2_2)".
// Precedence is not, then and, then or; operators associate to the left.
func ParseExpr(src string) (Expr, error) {
	tokens := Tokenize(src)
	if errs := Validate(tokens); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Message
		}
		return nil, &ParseError{Pos: errs[0].Pos, Message: strings.Join(msgs, "; ")}
	}

	p := &exprParser{tokens: tokens}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		t := p.tokens[p.pos]
		return nil, &ParseError{Pos: t.Pos.Column, Message: fmt.Sprintf(ErrUnexpectedToken, t, "end of expression")}
	}
	return e, nil
}

type exprParser struct {
	tokens []token.Token
	pos    int
}

func (p *exprParser) peek() (token.Token, bool) {
	if p.pos >= len(p.tokens) {
		return token.Token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *exprParser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.Type != token.Or {
			return left, nil
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: token.Or, Left: left, Right: right}
	}
}

func (p *exprParser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.Type != token.And {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: token.And, Left: left, Right: right}
	}
}

func (p *exprParser) parseUnary() (Expr, error) {
	t, ok := p.peek()
	if ok && t.Type == token.Not {
		p.pos++
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &NotExpr{X: x}, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (Expr, error) {
	t, ok := p.peek()
	if !ok {
		return nil, &ParseError{Message: "unexpected end of expression"}
	}
	p.pos++

	switch t.Type {
	case token.OpenParen:
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		c, ok := p.peek()
		if !ok || c.Type != token.CloseParen {
			return nil, &ParseError{Pos: t.Pos.Column, Message: "unclosed parenthesis"}
		}
		p.pos++
		return &ParenExpr{X: x}, nil
	case token.BlockRef:
		return &Ident{Name: t.Text}, nil
	case token.PredicateRef:
		return nil, &ParseError{Pos: t.Pos.Column, Message: fmt.Sprintf("%v: %q", ErrPredicateInAlias, t.Text), err: ErrPredicateInAlias}
	default:
		return nil, &ParseError{Pos: t.Pos.Column, Message: fmt.Sprintf(ErrUnexpectedToken, t, "alias or \"(\"")}
	}
}
