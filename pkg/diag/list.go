package diag

import (
	"errors"
	"sync"
)

type item struct {
	err  *Error
	more int
}

// List accumulates errors for one scope. Repeats of the same
// (scope, kind, message) only bump a counter. A List is safe for concurrent use.
type List struct {
	mu    sync.Mutex
	scope string
	items []*item
}

// NewList returns an empty list whose entries default to scope.
func NewList(scope string) *List {
	return &List{scope: scope}
}

// Scope returns the default scope of the list.
func (l *List) Scope() string {
	return l.scope
}

// Add records err. Errors other than *Error are recorded as
// IntervalSourceFailure, since they come from the data layer.
func (l *List) Add(err error) {
	if err == nil {
		return
	}
	var e *Error
	if !errors.As(err, &e) {
		e = New(IntervalSourceFailure, "%s", err.Error())
	}
	if e.Scope == "" {
		e = e.WithScope(l.scope)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, it := range l.items {
		if it.err.Scope == e.Scope && it.err.Kind == e.Kind && it.err.Message == e.Message {
			it.more++
			return
		}
	}
	l.items = append(l.items, &item{err: e})
}

// Addf records a new error of the given kind.
func (l *List) Addf(kind Kind, format string, args ...any) {
	l.Add(New(kind, format, args...))
}

// Len returns the number of distinct entries.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// HasErrors reports whether any entry has error severity.
func (l *List) HasErrors() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, it := range l.items {
		if it.err.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Count returns the number of distinct entries of kind.
func (l *List) Count(kind Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, it := range l.items {
		if it.err.Kind == kind {
			n++
		}
	}
	return n
}

// Errors returns the distinct errors in insertion order.
func (l *List) Errors() []*Error {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Error, len(l.items))
	for i, it := range l.items {
		out[i] = it.err
	}
	return out
}

// Entries returns the report lines in insertion order.
func (l *List) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.items))
	for i, it := range l.items {
		out[i] = Entry{
			Scope:    it.err.Scope,
			Kind:     it.err.Kind.String(),
			Severity: it.err.Severity.String(),
			Message:  it.err.Message,
			More:     it.more,
		}
	}
	return out
}

// Err joins all entries into one error, or returns nil for an empty list.
func (l *List) Err() error {
	errs := l.Errors()
	if len(errs) == 0 {
		return nil
	}
	joined := make([]error, len(errs))
	for i, e := range errs {
		joined[i] = e
	}
	return errors.Join(joined...)
}
