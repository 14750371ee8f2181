// Package action implements the leaf node families of spec §4.6: the
// synchronous, stateful, threaded and coroutine-style action bases, plus
// TestNode (the substitution-rule mock) and the supplemented Sleep /
// SetBlackboard / UnsetBlackboard simple actions (SPEC_FULL.md §2.3).
package action

import (
	"context"

	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/btnode"
)

// SyncFunc is the user logic behind a SyncAction: it runs to completion in
// the calling goroutine and must not return Running.
type SyncFunc func(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error)

// SyncAction is the simplest leaf: DoTick calls fn once and returns
// whatever it reports. Returning Running from fn is a programmer error,
// turned into an error rather than silently accepted, since a
// "synchronous" action promising never to run long is the entire point
// of this node family.
type SyncAction struct {
	*btnode.Core
	fn SyncFunc
}

func NewSyncAction(name, uid, path string, cfg *btnode.Config, fn SyncFunc) *SyncAction {
	n := &SyncAction{fn: fn}
	n.Core = btnode.NewCore(name, name, uid, path, cfg, n)
	return n
}

func (n *SyncAction) DoTick(ctx context.Context) (bhtype.Status, error) {
	st, err := n.fn(ctx, n.Config())
	if err != nil {
		return "", err
	}
	if st == bhtype.Running {
		return "", &syncActionRanLongError{name: n.Name()}
	}
	return st, nil
}

func (n *SyncAction) DoHalt() {}

type syncActionRanLongError struct{ name string }

func (e *syncActionRanLongError) Error() string {
	return "btnode: SyncAction " + e.name + " returned Running, which is not allowed"
}
