// Package registry implements the node factory of spec §4.7: type
// registration (manifests), substitution rules for test doubles, tree
// registration with content-addressed parse caching, and the
// CreateTree construction algorithm that turns a parsed btxml.Document
// into a live node tree.
package registry

import (
	"github.com/danshapiro/bhtree/internal/bherr"
	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/btnode"
)

// Builder constructs one node instance. children is empty for leaves,
// exactly one element for decorators, and any length for composites;
// Manifest.MinChildren/MaxChildren are enforced before Builder runs.
type Builder func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error)

// Manifest is a registered node type: its declared ports, child-count
// contract, and the Builder that assembles an instance.
type Manifest struct {
	RegistrationID string
	Ports          bhtype.PortList
	MinChildren    int // -1 means "no constraint"
	MaxChildren    int // -1 means unlimited
	Build          Builder
}

func (m Manifest) checkChildCount(n int) error {
	if m.MinChildren >= 0 && n < m.MinChildren {
		return bherr.NewConstruction(nil, "node type %q requires at least %d children, got %d", m.RegistrationID, m.MinChildren, n)
	}
	if m.MaxChildren >= 0 && n > m.MaxChildren {
		return bherr.NewConstruction(nil, "node type %q allows at most %d children, got %d", m.RegistrationID, m.MaxChildren, n)
	}
	return nil
}
