// Package sqlgen renders the SQL that evaluates conditions inside a
// relational store.
//
// Each block becomes a temp table of packed validity ranges. A condition
// becomes a result table built from the union of all block boundaries,
// consecutive boundary pairs as elementary ranges, each block left joined by
// overlap and the alias expression evaluated column-wise. SQL NULL plays the
// role of Unknown, so the result matches the in-process planner.
package sqlgen

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/tsa/pkg/condition"
	"github.com/leapstack-labs/tsa/pkg/diag"
	"github.com/leapstack-labs/tsa/pkg/predicate"
)

// Defaults used when Params leaves a field empty.
const (
	DefaultObsRelation = "obs_main"
	DefaultMaxMinutes  = 30
)

// Params configures rendering.
type Params struct {
	// ObsRelation is the view holding (tfrom, statid, seid, seval) rows.
	ObsRelation string
	// MaxMinutes limits how long a single observation stays valid.
	MaxMinutes int
	// SensorIDs maps lowercase sensor names to their database ids.
	SensorIDs map[string]int
}

func (p Params) withDefaults() Params {
	if p.ObsRelation == "" {
		p.ObsRelation = DefaultObsRelation
	}
	if p.MaxMinutes <= 0 {
		p.MaxMinutes = DefaultMaxMinutes
	}
	return p
}

// Dialect renders the evaluation SQL for one database flavour.
type Dialect interface {
	Name() string

	// BlockSQL returns the query producing the packed ranges of a block.
	BlockSQL(b *condition.Block) (string, error)

	// ConditionSQL returns the statements that build the result table of c.
	// They must run in one transaction on one session.
	ConditionSQL(c *condition.Condition) ([]string, error)

	// CleanupSQL returns statements to run after ConditionSQL has committed.
	CleanupSQL(c *condition.Condition) []string

	// ResultSQL selects the result rows of c ordered by time.
	ResultSQL(c *condition.Condition) string

	// IntervalSQL selects (vfrom, vuntil, value) rows of a block.
	IntervalSQL(b *condition.Block) (string, error)
}

// Factory creates a Dialect from Params.
type Factory func(Params) Dialect

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a dialect factory under name.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = f
}

// New returns the dialect registered under name.
func New(name string, p Params) (Dialect, error) {
	registryMu.RLock()
	f, ok := registry[strings.ToLower(name)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown SQL dialect %q, available: %v", name, List())
	}
	return f(p.withDefaults()), nil
}

// List returns the registered dialect names (sorted).
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("postgres", func(p Params) Dialect { return &Postgres{p: p} })
	Register("duckdb", func(p Params) Dialect { return &DuckDB{p: p} })
}

// primaryArgs resolves the station and sensor ids of a primary block.
func primaryArgs(b *condition.Block, p Params) (statID, seID int, err error) {
	if b.Predicate == nil {
		return 0, 0, fmt.Errorf("block %s has no predicate", b.Alias)
	}
	statID, err = b.Predicate.StationID()
	if err != nil {
		return 0, 0, err
	}
	seID, ok := p.SensorIDs[b.Predicate.Sensor]
	if !ok {
		return 0, 0, diag.New(diag.UnresolvedReference,
			"sensor %q of block %s not found in database", b.Predicate.Sensor, b.Alias)
	}
	return statID, seID, nil
}

// operand renders the SQL operator and right-hand value of a primary block
// with canonical numbers.
func operand(pr *predicate.Predicate) (op, value string, err error) {
	if pr.Operator == predicate.OpIn {
		vals, err := pr.InValues()
		if err != nil {
			return "", "", err
		}
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = v.String()
		}
		return pr.Operator.SQL(), "(" + strings.Join(parts, ", ") + ")", nil
	}
	v, err := pr.Number()
	if err != nil {
		return "", "", diag.New(diag.MalformedPredicate, "value %q is not a number", pr.Value)
	}
	return pr.Operator.SQL(), v.String(), nil
}

func columnList(c *condition.Condition) string {
	return strings.Join(c.Aliases(), ", ")
}
