package action

import (
	"context"

	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/btnode"
)

// StatefulHooks is the three-callback contract a StatefulAction is built
// from: OnStart runs once when the node transitions out of Idle,
// OnRunning runs on every subsequent tick while the previous call
// reported Running, and OnHalted runs if the node is halted mid-Running.
type StatefulHooks interface {
	OnStart(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error)
	OnRunning(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error)
	OnHalted(cfg *btnode.Config)
}

// StatefulAction tracks whether it is mid-run and dispatches to OnStart or
// OnRunning accordingly — the Go shape of the teacher's on_start/
// on_running/on_halted action base.
type StatefulAction struct {
	*btnode.Core
	hooks   StatefulHooks
	running bool
}

func NewStatefulAction(name, uid, path string, cfg *btnode.Config, hooks StatefulHooks) *StatefulAction {
	n := &StatefulAction{hooks: hooks}
	n.Core = btnode.NewCore(name, name, uid, path, cfg, n)
	return n
}

func (n *StatefulAction) DoTick(ctx context.Context) (bhtype.Status, error) {
	var st bhtype.Status
	var err error
	if n.running {
		st, err = n.hooks.OnRunning(ctx, n.Config())
	} else {
		st, err = n.hooks.OnStart(ctx, n.Config())
	}
	if err != nil {
		n.running = false
		return "", err
	}
	n.running = st == bhtype.Running
	return st, nil
}

func (n *StatefulAction) DoHalt() {
	if n.running {
		n.hooks.OnHalted(n.Config())
	}
	n.running = false
}
