package control

import (
	"context"

	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/btnode"
)

// SubTree wraps the root node of an included tree so it presents as a
// single Node to its including parent, per spec §4.7's "a SubTree is
// opaque to its parent composite; halting it halts the whole subtree".
type SubTree struct {
	*btnode.Core
	root btnode.Node
}

func NewSubTree(name, uid, path string, cfg *btnode.Config, root btnode.Node) *SubTree {
	n := &SubTree{root: root}
	n.Core = btnode.NewCore(name, "SubTree", uid, path, cfg, n)
	return n
}

func (n *SubTree) DoTick(ctx context.Context) (bhtype.Status, error) {
	return n.root.ExecuteTick(ctx)
}

func (n *SubTree) DoHalt() {
	if n.root.Status() == bhtype.Running {
		n.root.HaltNode()
	}
}

// Children exposes the subtree's root, so an observer's recursive walk
// crosses the boundary instead of treating SubTree as a leaf.
func (n *SubTree) Children() []btnode.Node { return []btnode.Node{n.root} }
