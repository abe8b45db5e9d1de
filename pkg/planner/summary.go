package planner

import (
	"time"

	"github.com/leapstack-labs/tsa/pkg/core"
)

// Summarize reduces p to durations and percentages. Without any data the
// whole window counts as no data. A zero total span yields PctNoData = 1.
func Summarize(p *core.Partition, w core.Window) core.Result {
	var r core.Result

	if p.Len() == 0 {
		r.TotalSpan = w.Duration()
		r.NoData = r.TotalSpan
		r.PctNoData = 1
		return r
	}

	from, until := p.Slices[0].From, p.Slices[0].Until
	for _, s := range p.Slices {
		if s.From.Before(from) {
			from = s.From
		}
		if s.Until.After(until) {
			until = s.Until
		}
		switch s.Master {
		case core.True:
			r.Valid += s.Duration()
		case core.False:
			r.Invalid += s.Duration()
		}
	}
	r.DataFrom, r.DataUntil = &from, &until
	r.TotalSpan = until.Sub(from)
	r.NoData = r.TotalSpan - r.Valid - r.Invalid
	r.Rows = len(p.Slices)

	if r.TotalSpan <= 0 {
		r.PctNoData = 1
		return r
	}
	r.PctValid = ratio(r.Valid, r.TotalSpan)
	r.PctInvalid = ratio(r.Invalid, r.TotalSpan)
	r.PctNoData = ratio(r.NoData, r.TotalSpan)
	return r
}

func ratio(d, total time.Duration) float64 {
	return float64(d) / float64(total)
}
