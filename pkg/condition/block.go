package condition

import (
	"fmt"
	"strconv"

	"github.com/leapstack-labs/tsa/pkg/predicate"
)

// Block is one unique atom of a Condition. A primary Block wraps a sensor
// predicate; a secondary Block refers to another Condition by ID.
type Block struct {
	MasterAlias string
	OrderNumber int
	Alias       string
	Secondary   bool

	// Predicate is set for primary Blocks.
	Predicate *predicate.Predicate

	// RefSite and RefAlias name the referenced Condition of a secondary
	// Block; Ref is its Condition ID.
	RefSite  string
	RefAlias string
	Ref      string

	// ownSite is the site of the owning Condition, used when rendering.
	ownSite string
}

func newBlock(masterAlias string, order int) *Block {
	return &Block{
		MasterAlias: masterAlias,
		OrderNumber: order,
		Alias:       masterAlias + "_" + strconv.Itoa(order),
	}
}

// Key is the normalized identity used to deduplicate Blocks.
func (b *Block) Key() string {
	if b.Secondary {
		return "ref:" + b.Ref
	}
	return b.Predicate.Key()
}

// Text renders the Block in condition syntax: the canonical predicate, or the
// referenced alias (prefixed with "site#" when it lives at another site).
func (b *Block) Text() string {
	if !b.Secondary {
		return b.Predicate.String()
	}
	if b.RefSite == b.ownSite {
		return b.RefAlias
	}
	return b.RefSite + "#" + b.RefAlias
}

func (b *Block) String() string {
	kind := "primary"
	if b.Secondary {
		kind = "secondary"
	}
	return fmt.Sprintf("%s (%s): %s", b.Alias, kind, b.Text())
}
