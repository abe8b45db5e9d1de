// Package condition compiles a condition expression into unique Blocks and an
// alias expression over them.
//
// Compilation never stops at the first problem. Every structural error found
// in the expression is recorded on the Condition, which then ends up Invalid.
package condition

import (
	"sort"
	"strings"

	"github.com/leapstack-labs/tsa/pkg/diag"
	"github.com/leapstack-labs/tsa/pkg/ident"
	"github.com/leapstack-labs/tsa/pkg/parser"
	"github.com/leapstack-labs/tsa/pkg/predicate"
	"github.com/leapstack-labs/tsa/pkg/token"
)

// State is the lifecycle stage of a Condition.
type State int

// Condition states. Valid and Invalid are terminal.
const (
	Unparsed State = iota
	Parsing
	Valid
	Invalid
)

func (s State) String() string {
	switch s {
	case Unparsed:
		return "unparsed"
	case Parsing:
		return "parsing"
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Condition is one compiled expression.
type Condition struct {
	ID          string
	Site        string
	MasterAlias string
	Raw         string
	Row         int

	Tokens []token.Token
	// Blocks holds the unique Blocks sorted by alias.
	Blocks          []*Block
	AliasExpression string
	Secondary       bool

	state State
	expr  parser.Expr
	// atoms maps the index of each atom token to its Block.
	atoms map[int]*Block
	errs  *diag.List
}

// Compile parses raw for the Condition identified by site and masterAlias.
// row is the source row used in diagnostics. The returned Condition is
// either Valid or Invalid; use Errors to inspect the problems.
func Compile(site, masterAlias, raw string, row int) *Condition {
	c := &Condition{
		Site:        site,
		MasterAlias: masterAlias,
		Raw:         raw,
		Row:         row,
		state:       Parsing,
		atoms:       make(map[int]*Block),
	}

	var identErrs []error
	siteID, siteErr := ident.Normalize(site)
	if siteErr != nil {
		identErrs = append(identErrs, siteErr)
	} else {
		c.Site = siteID
	}
	aliasID, aliasErr := ident.Normalize(masterAlias)
	if aliasErr != nil {
		identErrs = append(identErrs, aliasErr)
	} else {
		c.MasterAlias = aliasID
	}
	if len(identErrs) == 0 {
		id, err := ident.Join(siteID, aliasID)
		if err != nil {
			identErrs = append(identErrs, err)
		}
		c.ID = id
	}

	scope := c.ID
	if scope == "" {
		scope = strings.ToLower(strings.TrimSpace(site) + "_" + strings.TrimSpace(masterAlias))
	}
	c.errs = diag.NewList(scope)
	for _, err := range identErrs {
		c.errs.Add(err)
	}

	c.Tokens = parser.Tokenize(raw)
	for _, e := range parser.Validate(c.Tokens) {
		c.errs.Add(e)
	}

	if aliasErr == nil {
		c.resolveBlocks()
		if len(c.Blocks) == 0 {
			c.errs.Addf(diag.NoBlocksProduced, "condition %q produced no blocks", raw)
		}
	}

	if c.errs.HasErrors() {
		c.state = Invalid
		return c
	}

	c.AliasExpression = c.render(func(b *Block) string { return b.Alias })
	expr, err := parser.ParseExpr(c.AliasExpression)
	if err != nil {
		c.errs.Addf(diag.GrammarError, "alias expression %q: %v", c.AliasExpression, err)
		c.state = Invalid
		return c
	}
	c.expr = expr
	c.state = Valid
	return c
}

// resolveBlocks turns each atom token into a Block, reusing an existing Block
// when its normalized key matches.
func (c *Condition) resolveBlocks() {
	byKey := make(map[string]*Block)
	var order int

	for i, t := range c.Tokens {
		if !t.Type.IsAtom() {
			continue
		}
		cand, err := c.blockFor(t)
		if err != nil {
			c.errs.Add(err)
			continue
		}
		if existing, ok := byKey[cand.Key()]; ok {
			c.atoms[i] = existing
			continue
		}
		b := newBlock(c.MasterAlias, order)
		order++
		b.Secondary = cand.Secondary
		b.Predicate = cand.Predicate
		b.RefSite, b.RefAlias, b.Ref = cand.RefSite, cand.RefAlias, cand.Ref
		b.ownSite = c.Site
		byKey[cand.Key()] = b
		c.atoms[i] = b
		c.Blocks = append(c.Blocks, b)
		if b.Secondary {
			c.Secondary = true
		}
	}

	sort.SliceStable(c.Blocks, func(i, j int) bool {
		return c.Blocks[i].Alias < c.Blocks[j].Alias
	})
}

// blockFor builds an unnumbered candidate Block for an atom token.
func (c *Condition) blockFor(t token.Token) (*Block, error) {
	if t.Type == token.BlockRef {
		alias, err := ident.Normalize(t.Text)
		if err != nil {
			return nil, err
		}
		return c.secondary(c.Site, alias)
	}

	if site, alias, ok := crossSiteRef(t.Text); ok {
		return c.secondary(site, alias)
	}

	p, err := predicate.Parse(t.Text)
	if err != nil {
		return nil, err
	}
	return &Block{Predicate: p}, nil
}

// crossSiteRef recognizes the "site#alias" form: one "#" and identifiers on
// both sides.
func crossSiteRef(text string) (site, alias string, ok bool) {
	left, right, found := strings.Cut(text, "#")
	if !found || strings.Contains(right, "#") || strings.ContainsAny(strings.TrimSpace(right), " ") {
		return "", "", false
	}
	site, err := ident.Normalize(left)
	if err != nil {
		return "", "", false
	}
	alias, err = ident.Normalize(right)
	if err != nil {
		return "", "", false
	}
	return site, alias, true
}

func (c *Condition) secondary(site, alias string) (*Block, error) {
	ref, err := ident.Join(site, alias)
	if err != nil {
		return nil, err
	}
	return &Block{Secondary: true, RefSite: site, RefAlias: alias, Ref: ref}, nil
}

// render rebuilds the expression from the tokens, writing each atom with
// atomText and each connective in canonical lowercase form.
func (c *Condition) render(atomText func(*Block) string) string {
	var sb strings.Builder
	for i, t := range c.Tokens {
		switch t.Type {
		case token.OpenParen:
			sb.WriteString("(")
		case token.CloseParen:
			sb.WriteString(")")
		case token.And:
			sb.WriteString(" and ")
		case token.Or:
			sb.WriteString(" or ")
		case token.Not:
			sb.WriteString("not ")
		default:
			sb.WriteString(atomText(c.atoms[i]))
		}
	}
	return sb.String()
}

// ExpandedExpression is the alias expression with every alias replaced by
// its Block's canonical text.
func (c *Condition) ExpandedExpression() string {
	if c.state != Valid {
		return ""
	}
	return c.render(func(b *Block) string { return b.Text() })
}

// State returns the lifecycle state.
func (c *Condition) State() State {
	return c.state
}

// Valid reports whether the Condition compiled and has not been invalidated.
func (c *Condition) Valid() bool {
	return c.state == Valid
}

// Expr returns the parsed alias expression, or nil for an Invalid Condition.
func (c *Condition) Expr() parser.Expr {
	if c.state != Valid {
		return nil
	}
	return c.expr
}

// Invalidate marks the Condition Invalid and records err. It is used for
// problems found at collection scope.
func (c *Condition) Invalidate(err *diag.Error) {
	c.errs.Add(err)
	if err.Severity == diag.SeverityError {
		c.state = Invalid
	}
}

// Note records a problem that does not change the state, such as a
// degenerate window or an evaluation failure.
func (c *Condition) Note(err error) {
	c.errs.Add(err)
}

// Errors returns the recorded problems.
func (c *Condition) Errors() []*diag.Error {
	return c.errs.Errors()
}

// Entries returns the recorded problems as report entries.
func (c *Condition) Entries() []diag.Entry {
	return c.errs.Entries()
}

// Scope is the name errors of this Condition are reported under.
func (c *Condition) Scope() string {
	return c.errs.Scope()
}

// Aliases returns the Block aliases in Block order.
func (c *Condition) Aliases() []string {
	out := make([]string, len(c.Blocks))
	for i, b := range c.Blocks {
		out[i] = b.Alias
	}
	return out
}

// Block returns the Block with the given alias.
func (c *Condition) Block(alias string) (*Block, bool) {
	for _, b := range c.Blocks {
		if b.Alias == alias {
			return b, true
		}
	}
	return nil, false
}

// Refs returns the distinct Condition IDs referenced by secondary Blocks.
func (c *Condition) Refs() []string {
	var out []string
	for _, b := range c.Blocks {
		if b.Secondary {
			out = append(out, b.Ref)
		}
	}
	return out
}
