// Package predicate parses single sensor predicates of the form
//
//	station#sensor operator value
//
// such as "s1122#kitka3_luku >= 0.30" or "s1122#tie_1 in (1, 2, 3)".
package predicate

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/tsa/pkg/diag"
	"github.com/leapstack-labs/tsa/pkg/ident"
	"github.com/shopspring/decimal"
)

// Operator is a comparison operator.
type Operator string

// Supported operators.
const (
	OpEq Operator = "="
	OpNe Operator = "!="
	OpGt Operator = ">"
	OpLt Operator = "<"
	OpGe Operator = ">="
	OpLe Operator = "<="
	OpIn Operator = "in"
)

// operatorTokens are matched whitespace-delimited against the lowercased
// right-hand side. "<>" is an alternative spelling of "!=".
var operatorTokens = []struct {
	token string
	op    Operator
}{
	{" = ", OpEq},
	{" != ", OpNe},
	{" <> ", OpNe},
	{" > ", OpGt},
	{" < ", OpLt},
	{" >= ", OpGe},
	{" <= ", OpLe},
	{" in ", OpIn},
}

// SQL returns the operator as written in SQL.
func (o Operator) SQL() string {
	switch o {
	case OpNe:
		return "<>"
	case OpIn:
		return "IN"
	default:
		return string(o)
	}
}

// Predicate is a parsed station#sensor comparison.
type Predicate struct {
	Station  string
	Sensor   string
	Operator Operator
	// Value is the trimmed, lowercased right operand as written.
	Value string
	// Raw is the fragment the predicate was parsed from.
	Raw string
}

// Parse parses raw into a Predicate. All failures are *diag.Error of kind
// MalformedPredicate, or InvalidIdentifier for bad station or sensor names.
func Parse(raw string) (*Predicate, error) {
	if n := strings.Count(raw, "#"); n != 1 {
		return nil, diag.New(diag.MalformedPredicate,
			"expected exactly one \"#\" in %q, found %d; format is station#sensor operator value", raw, n)
	}
	left, right, _ := strings.Cut(raw, "#")

	station, err := ident.Normalize(left)
	if err != nil {
		return nil, fmt.Errorf("station in %q: %w", raw, err)
	}

	right = strings.ToLower(right)
	var (
		matches int
		matched string
		op      Operator
	)
	for _, t := range operatorTokens {
		if c := strings.Count(right, t.token); c > 0 {
			matches += c
			matched, op = t.token, t.op
		}
	}
	switch {
	case matches == 0:
		return nil, diag.New(diag.MalformedPredicate,
			"no operator in %q; operators must be surrounded by spaces", raw)
	case matches > 1:
		return nil, diag.New(diag.MalformedPredicate,
			"more than one operator in %q", raw)
	}

	sensorPart, valuePart, _ := strings.Cut(right, matched)
	sensorPart = strings.TrimSpace(sensorPart)
	valuePart = strings.TrimSpace(valuePart)
	if sensorPart == "" || valuePart == "" {
		return nil, diag.New(diag.MalformedPredicate,
			"operator %q in %q needs a sensor on the left and a value on the right", op, raw)
	}

	sensor, err := ident.Normalize(sensorPart)
	if err != nil {
		return nil, fmt.Errorf("sensor in %q: %w", raw, err)
	}

	if op == OpIn {
		if !strings.HasPrefix(valuePart, "(") || !strings.HasSuffix(valuePart, ")") {
			return nil, diag.New(diag.MalformedPredicate,
				"operator \"in\" must be followed by a tuple enclosed in \"()\": %q", raw)
		}
	} else if _, err := decimal.NewFromString(valuePart); err != nil {
		return nil, diag.New(diag.MalformedPredicate,
			"value %q in %q is not a number", valuePart, raw)
	}

	return &Predicate{
		Station:  station,
		Sensor:   sensor,
		Operator: op,
		Value:    valuePart,
		Raw:      raw,
	}, nil
}

// StationID returns the numeric id of the station.
func (p *Predicate) StationID() (int, error) {
	return ident.StationID(p.Station)
}

// Number returns the value of a numeric predicate.
func (p *Predicate) Number() (decimal.Decimal, error) {
	if p.Operator == OpIn {
		return decimal.Decimal{}, diag.New(diag.MalformedPredicate, "operator \"in\" has no single value")
	}
	return decimal.NewFromString(p.Value)
}

// InValues returns the members of an "in" tuple.
func (p *Predicate) InValues() ([]decimal.Decimal, error) {
	if p.Operator != OpIn {
		return nil, diag.New(diag.MalformedPredicate, "operator %q has no tuple", p.Operator)
	}
	inner := strings.TrimSpace(p.Value[1 : len(p.Value)-1])
	if inner == "" {
		return nil, diag.New(diag.MalformedPredicate, "empty tuple in %q", p.Raw)
	}
	parts := strings.Split(inner, ",")
	out := make([]decimal.Decimal, 0, len(parts))
	for _, part := range parts {
		d, err := decimal.NewFromString(strings.TrimSpace(part))
		if err != nil {
			return nil, diag.New(diag.MalformedPredicate,
				"tuple member %q in %q is not a number", strings.TrimSpace(part), p.Raw)
		}
		out = append(out, d)
	}
	return out, nil
}

// CanonicalValue renders the value so that numerically equal spellings
// compare equal: "0.30" and "0.3" both give "0.3".
func (p *Predicate) CanonicalValue() string {
	if p.Operator == OpIn {
		vals, err := p.InValues()
		if err != nil {
			return strings.Join(strings.Fields(p.Value), "")
		}
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = v.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
	d, err := decimal.NewFromString(p.Value)
	if err != nil {
		return p.Value
	}
	return d.String()
}

// Key identifies the predicate for deduplication.
func (p *Predicate) Key() string {
	return fmt.Sprintf("%s#%s %s %s", p.Station, p.Sensor, p.Operator, p.CanonicalValue())
}

// String renders the predicate in canonical form.
func (p *Predicate) String() string {
	return p.Key()
}
