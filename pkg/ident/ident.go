// Package ident normalizes free-text names into identifiers that are safe to
// use as table and column names.
package ident

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/leapstack-labs/tsa/pkg/diag"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// MaxLength is the longest accepted identifier. Generated names such as block
// aliases append a short suffix and must stay under the 63 byte PostgreSQL limit.
const MaxLength = 40

// DefaultFolds maps the diacritics found in station and site names to their
// base letters.
var DefaultFolds = map[rune]rune{
	'ä': 'a', 'Ä': 'A',
	'ö': 'o', 'Ö': 'O',
	'å': 'a', 'Å': 'A',
}

// Normalizer folds and validates identifiers.
// It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	folds map[rune]rune
	t     transform.Transformer
}

// New returns a Normalizer using DefaultFolds extended with extra.
func New(extra map[rune]rune) *Normalizer {
	folds := make(map[rune]rune, len(DefaultFolds)+len(extra))
	for k, v := range DefaultFolds {
		folds[k] = v
	}
	for k, v := range extra {
		folds[k] = v
	}
	n := &Normalizer{folds: folds}
	n.t = runes.Map(n.mapRune)
	return n
}

var std = New(nil)

// Normalize normalizes raw with the default fold table.
func Normalize(raw string) (string, error) {
	return std.Normalize(raw)
}

// Must is like Normalize but panics on error. For use with constants.
func Must(raw string) string {
	s, err := Normalize(raw)
	if err != nil {
		panic(err)
	}
	return s
}

// mapRune folds and lowercases a single rune. The mapping is one rune to one
// rune, so positions in the output match positions in the input.
func (n *Normalizer) mapRune(r rune) rune {
	if f, ok := n.folds[r]; ok {
		r = f
	}
	return unicode.ToLower(r)
}

// Normalize trims raw, folds diacritics and lowercases it, then checks the
// result is a valid identifier. Errors are *diag.Error of kind
// InvalidIdentifier; for invalid characters Pos is the 1-based position in
// raw.
func (n *Normalizer) Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	lead := utf8.RuneCountInString(raw) - utf8.RuneCountInString(strings.TrimLeftFunc(raw, unicode.IsSpace))
	if s == "" {
		return "", diag.New(diag.InvalidIdentifier, "identifier is empty")
	}

	out, _, err := transform.String(n.t, s)
	if err != nil {
		return "", diag.New(diag.InvalidIdentifier, "cannot normalize %q: %v", s, err)
	}

	first, _ := utf8.DecodeRuneInString(out)
	if unicode.IsDigit(first) {
		e := diag.New(diag.InvalidIdentifier, "identifier %q starts with a digit", s)
		e.Pos = lead + 1
		return "", e
	}

	if utf8.RuneCountInString(out) > MaxLength {
		return "", diag.New(diag.InvalidIdentifier,
			"identifier %q is too long, maximum is %d characters", s, MaxLength)
	}

	orig := []rune(s)
	for i, r := range []rune(out) {
		if !valid(r) {
			e := diag.New(diag.InvalidIdentifier,
				"identifier %q contains invalid character %q at position %d\n%s\n%s^",
				s, orig[i], lead+i+1, s, strings.Repeat("~", i))
			e.Pos = lead + i + 1
			return "", e
		}
	}

	return out, nil
}

func valid(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_'
}

// StationID extracts the numeric station id from a station identifier by
// concatenating its digits, so "s1122" gives 1122.
func StationID(station string) (int, error) {
	var b strings.Builder
	for _, r := range station {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, diag.New(diag.InvalidIdentifier, "station %q has no numeric id", station)
	}
	id, err := strconv.Atoi(b.String())
	if err != nil {
		return 0, diag.New(diag.InvalidIdentifier, "station %q: %v", station, err)
	}
	return id, nil
}

// Join normalizes the parts joined with underscores, as used for condition IDs.
func Join(parts ...string) (string, error) {
	id, err := Normalize(strings.Join(parts, "_"))
	if err != nil {
		return "", fmt.Errorf("invalid joined identifier: %w", err)
	}
	return id, nil
}
