package core

import (
	"fmt"
	"time"
)

// Window is the analysis time range [From, Until).
type Window struct {
	From  time.Time
	Until time.Time
}

// Duration returns the window length, or zero if it is empty or inverted.
func (w Window) Duration() time.Duration {
	if !w.Until.After(w.From) {
		return 0
	}
	return w.Until.Sub(w.From)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.From.Format(time.RFC3339), w.Until.Format(time.RFC3339))
}

// Interval is a half-open period [From, Until) with a known truth value.
type Interval struct {
	From  time.Time
	Until time.Time
	Value bool
}

// Empty reports whether the interval has no length.
func (i Interval) Empty() bool {
	return !i.Until.After(i.From)
}

// Contains reports whether t is inside [From, Until).
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.From) && t.Before(i.Until)
}

// Overlaps reports whether the two intervals share any instant.
func (i Interval) Overlaps(o Interval) bool {
	return i.From.Before(o.Until) && o.From.Before(i.Until)
}

// Duration returns Until - From.
func (i Interval) Duration() time.Duration {
	return i.Until.Sub(i.From)
}

// Slice is one element of a Partition: a half-open span over which every
// block value and the master value are constant.
type Slice struct {
	From     time.Time
	Until    time.Time
	PerBlock map[string]TriState
	Master   TriState
}

// Duration returns Until - From.
func (s Slice) Duration() time.Duration {
	return s.Until.Sub(s.From)
}

// SameValues reports whether s and o carry identical block and master values.
func (s Slice) SameValues(o Slice) bool {
	if s.Master != o.Master || len(s.PerBlock) != len(o.PerBlock) {
		return false
	}
	for k, v := range s.PerBlock {
		if w, ok := o.PerBlock[k]; !ok || w != v {
			return false
		}
	}
	return true
}

// AllUnknown reports whether no block has data in s.
func (s Slice) AllUnknown() bool {
	for _, v := range s.PerBlock {
		if v != Unknown {
			return false
		}
	}
	return true
}

// Partition is the ordered, non-overlapping sequence of slices produced for
// one condition. Aliases lists the block aliases in column order.
type Partition struct {
	Aliases []string
	Slices  []Slice
}

// Len returns the number of slices.
func (p *Partition) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Slices)
}

// Result summarizes a Partition over a Window. Percentages are fractions of
// TotalSpan in [0, 1].
type Result struct {
	DataFrom   *time.Time
	DataUntil  *time.Time
	TotalSpan  time.Duration
	Valid      time.Duration
	Invalid    time.Duration
	NoData     time.Duration
	PctValid   float64
	PctInvalid float64
	PctNoData  float64
	Rows       int
}

// Degenerate reports whether the result has no time span to divide by.
func (r Result) Degenerate() bool {
	return r.TotalSpan <= 0
}
