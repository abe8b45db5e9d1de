// Package diag defines the error taxonomy shared by the condition compiler,
// the collection layer and the evaluators.
//
// Structural problems are accumulated into a List instead of aborting, so a
// single pass reports everything wrong with an input. Every entry is
// attributable to exactly one scope: a condition ID or a collection title.
package diag

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error.
type Kind int

// Error kinds.
const (
	InvalidIdentifier Kind = iota
	MalformedPredicate
	GrammarError
	NoBlocksProduced
	UnresolvedReference
	IntervalSourceFailure
	DegenerateWindow
)

var kindNames = map[Kind]string{
	InvalidIdentifier:     "InvalidIdentifier",
	MalformedPredicate:    "MalformedPredicate",
	GrammarError:          "GrammarError",
	NoBlocksProduced:      "NoBlocksProduced",
	UnresolvedReference:   "UnresolvedReference",
	IntervalSourceFailure: "IntervalSourceFailure",
	DegenerateWindow:      "DegenerateWindow",
}

// String returns the kind name used in reports.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind converts a report name back to a Kind.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if strings.EqualFold(name, s) {
			return k, true
		}
	}
	return 0, false
}

// Structural reports whether the kind is found while compiling a condition,
// as opposed to while resolving or evaluating it.
func (k Kind) Structural() bool {
	switch k {
	case InvalidIdentifier, MalformedPredicate, GrammarError, NoBlocksProduced:
		return true
	default:
		return false
	}
}

// Severity indicates whether an entry invalidates its scope.
type Severity int

// Severity levels.
const (
	SeverityError Severity = iota
	SeverityWarning
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// Error is a single diagnostic.
type Error struct {
	Kind     Kind
	Severity Severity
	// Scope is the condition ID or collection title the error belongs to.
	Scope   string
	Message string
	// Pos is the 1-based character position in the offending input, 0 if unknown.
	Pos int
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Warn creates a warning of the given kind.
func Warn(kind Kind, format string, args ...any) *Error {
	e := New(kind, format, args...)
	e.Severity = SeverityWarning
	return e
}

func (e *Error) Error() string {
	if e.Scope == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Scope, e.Kind, e.Message)
}

// WithScope returns a copy of e attributed to scope.
func (e *Error) WithScope(scope string) *Error {
	c := *e
	c.Scope = scope
	return &c
}

// Is matches errors of the same kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// KindOf returns the kind of err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Entry is one line of an error report.
type Entry struct {
	Scope    string `json:"scope"`
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	// More counts suppressed repeats of the same entry.
	More int `json:"more,omitempty"`
}

// String renders the entry on one line.
func (e Entry) String() string {
	s := fmt.Sprintf("%s: %s", e.Scope, e.Message)
	if e.More > 0 {
		s += fmt.Sprintf(" (%d more similar errors)", e.More)
	}
	return s
}
