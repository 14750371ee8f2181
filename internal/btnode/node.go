package btnode

import (
	"context"

	"github.com/danshapiro/bhtree/internal/bhtype"
)

// Node is what every tree node — leaf or composite — presents to its
// parent. Composites in package control hold children as []Node; action
// leaves in package action are Nodes with no children. *Core satisfies
// this directly, so any type embedding Core gets it for free.
type Node interface {
	ExecuteTick(ctx context.Context) (bhtype.Status, error)
	HaltNode()
	Status() bhtype.Status
	Name() string
	UID() string
	FullPath() string
}

var _ Node = (*Core)(nil)
