// Package planner evaluates an alias expression over the interval data of its
// blocks and reduces the resulting partition to durations and percentages.
//
// All Blocks' boundaries are merged into one sorted set. Every pair of
// consecutive boundaries is an elementary slice in which no block can change
// value, so the expression is evaluated once per slice.
package planner

import (
	"sort"
	"time"

	"github.com/leapstack-labs/tsa/pkg/core"
	"github.com/leapstack-labs/tsa/pkg/diag"
	"github.com/leapstack-labs/tsa/pkg/parser"
)

// Build computes the validity partition of expr. aliases lists the blocks in
// column order; intervals holds the known spans of each block. A block missing
// from intervals has no data.
//
// Slices in which no block has data are left out, and adjacent slices with
// equal values are merged.
func Build(aliases []string, expr parser.Expr, intervals map[string][]core.Interval) (*core.Partition, error) {
	if len(aliases) == 0 {
		return nil, diag.New(diag.NoBlocksProduced, "nothing to plan: no blocks")
	}

	sorted := make(map[string][]core.Interval, len(aliases))
	for _, a := range aliases {
		ivs, err := prepare(a, intervals[a])
		if err != nil {
			return nil, err
		}
		sorted[a] = ivs
	}

	var slices []core.Slice
	if len(aliases) == 1 {
		slices = single(aliases[0], expr, sorted[aliases[0]])
	} else {
		slices = elementary(aliases, expr, sorted)
	}

	return &core.Partition{
		Aliases: append([]string(nil), aliases...),
		Slices:  merge(slices),
	}, nil
}

// prepare sorts a copy of the intervals, drops empty ones and rejects overlaps.
func prepare(alias string, ivs []core.Interval) ([]core.Interval, error) {
	out := make([]core.Interval, 0, len(ivs))
	for _, iv := range ivs {
		if !iv.Empty() {
			out = append(out, iv)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].From.Before(out[j].From) })
	for i := 1; i < len(out); i++ {
		if out[i-1].Overlaps(out[i]) {
			return nil, diag.New(diag.IntervalSourceFailure,
				"intervals of block %s overlap: %s-%s and %s-%s", alias,
				out[i-1].From.Format(time.RFC3339), out[i-1].Until.Format(time.RFC3339),
				out[i].From.Format(time.RFC3339), out[i].Until.Format(time.RFC3339))
		}
	}
	return out, nil
}

func single(alias string, expr parser.Expr, ivs []core.Interval) []core.Slice {
	slices := make([]core.Slice, 0, len(ivs))
	for _, iv := range ivs {
		v := core.FromBool(iv.Value)
		slices = append(slices, core.Slice{
			From:     iv.From,
			Until:    iv.Until,
			PerBlock: map[string]core.TriState{alias: v},
			Master:   expr.Eval(func(string) core.TriState { return v }),
		})
	}
	return slices
}

func elementary(aliases []string, expr parser.Expr, ivs map[string][]core.Interval) []core.Slice {
	bounds := boundaries(ivs)
	if len(bounds) < 2 {
		return nil
	}

	next := make(map[string]int, len(aliases))
	slices := make([]core.Slice, 0, len(bounds)-1)

	for i := 0; i+1 < len(bounds); i++ {
		from, until := bounds[i], bounds[i+1]
		per := make(map[string]core.TriState, len(aliases))
		known := false

		for _, a := range aliases {
			list := ivs[a]
			j := next[a]
			for j < len(list) && !list[j].Until.After(from) {
				j++
			}
			next[a] = j
			if j < len(list) && !list[j].From.After(from) {
				per[a] = core.FromBool(list[j].Value)
				known = true
			} else {
				per[a] = core.Unknown
			}
		}
		if !known {
			continue
		}

		slices = append(slices, core.Slice{
			From:     from,
			Until:    until,
			PerBlock: per,
			Master:   expr.Eval(func(a string) core.TriState { return per[a] }),
		})
	}
	return slices
}

// boundaries returns the sorted distinct start and end times of all intervals.
func boundaries(ivs map[string][]core.Interval) []time.Time {
	var all []time.Time
	for _, list := range ivs {
		for _, iv := range list {
			all = append(all, iv.From, iv.Until)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Before(all[j]) })

	out := all[:0]
	for _, t := range all {
		if len(out) == 0 || !out[len(out)-1].Equal(t) {
			out = append(out, t)
		}
	}
	return out
}

// merge joins touching slices that carry the same values.
func merge(slices []core.Slice) []core.Slice {
	out := make([]core.Slice, 0, len(slices))
	for _, s := range slices {
		if n := len(out); n > 0 && out[n-1].Until.Equal(s.From) && out[n-1].SameValues(s) {
			out[n-1].Until = s.Until
			continue
		}
		out = append(out, s)
	}
	return out
}

// Compact normalizes a partition read back from another evaluator: it sorts
// the slices, drops those without any block data and merges touching slices
// with equal values. The result is comparable with the output of Build.
func Compact(p *core.Partition) *core.Partition {
	if p == nil {
		return nil
	}
	kept := make([]core.Slice, 0, len(p.Slices))
	for _, s := range p.Slices {
		if s.Duration() <= 0 || s.AllUnknown() {
			continue
		}
		kept = append(kept, s)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].From.Before(kept[j].From) })
	return &core.Partition{
		Aliases: append([]string(nil), p.Aliases...),
		Slices:  merge(kept),
	}
}

// Intervals converts the known slices of a partition into intervals, for use
// as the data of a block that references the partition's condition.
func Intervals(p *core.Partition) []core.Interval {
	if p == nil {
		return nil
	}
	var out []core.Interval
	for _, s := range p.Slices {
		if !s.Master.Known() {
			continue
		}
		v := s.Master == core.True
		if n := len(out); n > 0 && out[n-1].Until.Equal(s.From) && out[n-1].Value == v {
			out[n-1].Until = s.Until
			continue
		}
		out = append(out, core.Interval{From: s.From, Until: s.Until, Value: v})
	}
	return out
}
