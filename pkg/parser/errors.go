package parser

import "fmt"

// ParseError represents an alias expression parsing error with position
// information.
type ParseError struct {
	Pos     int // 1-based column, 0 if unknown
	Message string
	err     error
}

func (e *ParseError) Error() string {
	if e.Pos == 0 {
		return fmt.Sprintf("parse error: %s", e.Message)
	}
	return fmt.Sprintf("parse error at column %d: %s", e.Pos, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.err
}

// Common error messages
const (
	ErrUnexpectedToken = "unexpected token %s, expected %s"
)
