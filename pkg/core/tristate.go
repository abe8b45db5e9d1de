package core

import "database/sql"

// TriState is a truth value that may be unknown. Unknown means no data covered
// the time in question.
type TriState int8

// TriState values. The zero value is Unknown.
const (
	Unknown TriState = iota
	False
	True
)

// FromBool converts a known boolean.
func FromBool(b bool) TriState {
	if b {
		return True
	}
	return False
}

// FromNullBool converts a nullable SQL boolean; NULL is Unknown.
func FromNullBool(b sql.NullBool) TriState {
	if !b.Valid {
		return Unknown
	}
	return FromBool(b.Bool)
}

// Known reports whether t is True or False.
func (t TriState) Known() bool {
	return t != Unknown
}

// Not negates t. Unknown stays Unknown.
func (t TriState) Not() TriState {
	switch t {
	case True:
		return False
	case False:
		return True
	default:
		return Unknown
	}
}

// And is False if either side is False, else Unknown if either is Unknown,
// else True.
func (t TriState) And(o TriState) TriState {
	switch {
	case t == False || o == False:
		return False
	case t == Unknown || o == Unknown:
		return Unknown
	default:
		return True
	}
}

// Or is True if either side is True, else Unknown if either is Unknown,
// else False.
func (t TriState) Or(o TriState) TriState {
	switch {
	case t == True || o == True:
		return True
	case t == Unknown || o == Unknown:
		return Unknown
	default:
		return False
	}
}

// String returns "true", "false" or "unknown".
func (t TriState) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}
