package token

// Position represents a location in a condition expression. Expressions are
// single-line after whitespace collapsing, so only the column is tracked.
type Position struct {
	Column int // 1-based column number
	Offset int // 0-based byte offset
}

// IsValid returns true if the position is valid (column > 0).
func (p Position) IsValid() bool {
	return p.Column > 0
}
