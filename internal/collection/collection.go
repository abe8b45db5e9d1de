// Package collection groups conditions that share one analysis window.
//
// Conditions are compiled as they are added. Secondary references are
// resolved only once every condition is known, because they may point
// forward. Plan returns the evaluation order: primaries first, then
// secondaries in dependency order.
package collection

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/leapstack-labs/tsa/internal/dag"
	"github.com/leapstack-labs/tsa/pkg/condition"
	"github.com/leapstack-labs/tsa/pkg/core"
	"github.com/leapstack-labs/tsa/pkg/diag"
	"github.com/rs/zerolog"
)

// Collection is a set of conditions evaluated over one window.
type Collection struct {
	Title   string
	Window  core.Window
	Created time.Time

	conds    []*condition.Condition
	byID     map[string]*condition.Condition
	errs     *diag.List
	graph    *dag.Graph
	resolved bool
	logger   zerolog.Logger
}

// Option configures a Collection.
type Option func(*Collection)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Collection) { c.logger = l }
}

// WithCreated overrides the creation timestamp shown in reports.
func WithCreated(t time.Time) Option {
	return func(c *Collection) { c.Created = t }
}

// New creates an empty collection. An inverted window is rejected; an empty
// one is accepted and makes every result degenerate.
func New(title string, w core.Window, opts ...Option) (*Collection, error) {
	if w.Until.Before(w.From) {
		return nil, diag.New(diag.DegenerateWindow, "window end %s is before start %s",
			w.Until.Format(time.DateTime), w.From.Format(time.DateTime)).WithScope(title)
	}
	c := &Collection{
		Title:   title,
		Window:  w,
		Created: time.Now(),
		byID:    make(map[string]*condition.Condition),
		errs:    diag.NewList(title),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("collection", title).Logger()
	return c, nil
}

// DateWindow spans whole days: from 00:00:00 on the first date until
// 23:59:59 on the last one.
func DateWindow(from, until time.Time) core.Window {
	return core.Window{
		From:  time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location()),
		Until: time.Date(until.Year(), until.Month(), until.Day(), 23, 59, 59, 0, until.Location()),
	}
}

// Add compiles and adds a condition. A condition whose ID is already taken
// is not added; the error is recorded on the collection and returned.
func (c *Collection) Add(site, masterAlias, raw string, row int) (*condition.Condition, error) {
	cond := condition.Compile(site, masterAlias, raw, row)
	if cond.ID != "" {
		if _, taken := c.byID[cond.ID]; taken {
			msg := fmt.Sprintf("Site-master_alias combo %s already reserved, cannot add it twice", cond.ID)
			if row > 0 {
				msg += fmt.Sprintf(" (row %d)", row)
			}
			err := diag.New(diag.InvalidIdentifier, "%s", msg).WithScope(c.Title)
			c.logger.Error().Str("condition", cond.ID).Int("row", row).Msg(msg)
			c.errs.Add(err)
			return nil, err
		}
		c.byID[cond.ID] = cond
	}
	if !cond.Valid() {
		c.logger.Warn().Str("condition", cond.Scope()).Int("errors", len(cond.Errors())).Msg("condition is invalid")
	}
	c.conds = append(c.conds, cond)
	c.resolved = false
	return cond, nil
}

// AddError records a collection-scope problem.
func (c *Collection) AddError(err error) {
	c.errs.Add(err)
}

// Conditions returns all conditions in insertion order, including invalid
// ones.
func (c *Collection) Conditions() []*condition.Condition {
	return c.conds
}

// Condition returns the condition with the given ID.
func (c *Collection) Condition(id string) (*condition.Condition, bool) {
	cond, ok := c.byID[id]
	return cond, ok
}

// Len returns the number of conditions.
func (c *Collection) Len() int {
	return len(c.conds)
}

// Resolve checks secondary references at collection scope. Dangling
// references, self references, references to invalid conditions and cycles
// all invalidate the referencing condition with UnresolvedReference.
// Only conditions that are still valid are checked, so Resolve can be
// repeated after more problems are found.
func (c *Collection) Resolve() {
	g := dag.NewGraph()
	for _, cond := range c.conds {
		if cond.ID != "" {
			g.AddNode(cond.ID, cond)
		}
	}

	for _, cond := range c.conds {
		if !cond.Valid() || !cond.Secondary {
			continue
		}
		for _, b := range cond.Blocks {
			if !b.Secondary {
				continue
			}
			if b.Ref == cond.ID {
				cond.Invalidate(diag.New(diag.UnresolvedReference,
					"block %s references its own condition %s", b.Alias, cond.ID))
				continue
			}
			if _, ok := c.byID[b.Ref]; !ok {
				cond.Invalidate(diag.New(diag.UnresolvedReference,
					"block %s references %s, which is not in the collection", b.Alias, b.Ref))
				continue
			}
			_ = g.AddEdge(b.Ref, cond.ID)
		}
	}

	for _, cycle := range g.Cycles() {
		path := strings.Join(cycle, " -> ")
		for _, id := range cycle[:len(cycle)-1] {
			if cond := c.byID[id]; cond.Valid() {
				cond.Invalidate(diag.New(diag.UnresolvedReference, "reference cycle %s", path))
			}
		}
	}

	for changed := true; changed; {
		changed = false
		for _, cond := range c.conds {
			if !cond.Valid() {
				continue
			}
			for _, ref := range cond.Refs() {
				if target, ok := c.byID[ref]; ok && !target.Valid() {
					cond.Invalidate(diag.New(diag.UnresolvedReference, "references invalid condition %s", ref))
					changed = true
					break
				}
			}
		}
	}

	c.graph = g
	c.resolved = true
}

// Plan returns the valid conditions in evaluation order: primaries in
// insertion order, then secondaries so that every condition comes after the
// conditions it references. Ties keep insertion order.
func (c *Collection) Plan() []*condition.Condition {
	if !c.resolved {
		c.Resolve()
	}

	var valid []string
	for _, cond := range c.conds {
		if cond.Valid() {
			valid = append(valid, cond.ID)
		}
	}
	nodes, err := c.graph.Subgraph(valid).TopologicalSort()
	if err != nil {
		// Resolve invalidates every cycle member, so this is unreachable.
		c.logger.Error().Err(err).Msg("failed to order conditions")
		return nil
	}

	plan := make([]*condition.Condition, 0, len(nodes))
	for _, n := range nodes {
		if cond := n.Data.(*condition.Condition); !cond.Secondary {
			plan = append(plan, cond)
		}
	}
	for _, n := range nodes {
		if cond := n.Data.(*condition.Condition); cond.Secondary {
			plan = append(plan, cond)
		}
	}
	return plan
}

// Dependencies returns the IDs of the conditions id depends on, directly or
// transitively, in insertion order.
func (c *Collection) Dependencies(id string) []string {
	if !c.resolved {
		c.Resolve()
	}
	return c.graph.GetUpstreamNodes(id)
}

// Dependents returns id and every condition that depends on it.
func (c *Collection) Dependents(id string) []string {
	if !c.resolved {
		c.Resolve()
	}
	return c.graph.GetAffectedNodes([]string{id})
}

// Errors returns the collection-scope error list.
func (c *Collection) Errors() *diag.List {
	return c.errs
}

// Report returns every entry: collection entries first, then each condition
// in insertion order.
func (c *Collection) Report() []diag.Entry {
	out := c.errs.Entries()
	for _, cond := range c.conds {
		out = append(out, cond.Entries()...)
	}
	return out
}

// StationIDs returns the distinct station ids used by primary blocks of valid
// conditions, ascending.
func (c *Collection) StationIDs() []int {
	seen := make(map[int]bool)
	var ids []int
	c.eachPrimary(func(_ *condition.Condition, b *condition.Block) {
		id, err := b.Predicate.StationID()
		if err != nil || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	})
	slices.Sort(ids)
	return ids
}

// CheckStations warns about primary blocks whose station is not available.
func (c *Collection) CheckStations(available []int) {
	c.eachPrimary(func(cond *condition.Condition, b *condition.Block) {
		id, err := b.Predicate.StationID()
		if err != nil {
			cond.Invalidate(diag.New(diag.InvalidIdentifier, "block %s: %v", b.Alias, err))
			return
		}
		if !slices.Contains(available, id) {
			cond.Note(diag.Warn(diag.UnresolvedReference,
				"station id %d of block %s not in available station ids", id, b.Alias))
		}
	})
}

// CheckSensors invalidates conditions that use a sensor name missing from
// sensorIDs (lowercase name -> database id).
func (c *Collection) CheckSensors(sensorIDs map[string]int) {
	c.eachPrimary(func(cond *condition.Condition, b *condition.Block) {
		if _, ok := sensorIDs[b.Predicate.Sensor]; !ok {
			cond.Invalidate(diag.New(diag.UnresolvedReference,
				"sensor %q of block %s not found", b.Predicate.Sensor, b.Alias))
		}
	})
	c.resolved = false
}

func (c *Collection) eachPrimary(fn func(*condition.Condition, *condition.Block)) {
	for _, cond := range c.conds {
		if !cond.Valid() {
			continue
		}
		for _, b := range cond.Blocks {
			if !b.Secondary && b.Predicate != nil {
				fn(cond, b)
			}
		}
	}
}

func (c *Collection) String() string {
	title := c.Title
	if title == "" {
		title = "(no title)"
	}
	return fmt.Sprintf("Collection %s with %d conditions", title, len(c.conds))
}
