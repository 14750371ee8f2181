package action

import (
	"context"

	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/btnode"
)

// Yielder is handed to a CoroFunc so it can suspend at an arbitrary point
// and be resumed on the next tick — the spec's "coroutine-style" action,
// approximated in Go with a goroutine and a pair of unbuffered channels
// rather than a true stackful/stackless coroutine, per the Design Notes'
// call for "no full async runtime": the goroutine blocks on Yield until
// the node's next tick asks it to resume.
type Yielder struct {
	resume chan struct{}
	yield  chan struct{}
	halted chan struct{}
}

// Yield suspends the coroutine, reporting Running for this tick, and
// blocks until the next tick resumes it or the node is halted.
func (y *Yielder) Yield() (resumed bool) {
	y.yield <- struct{}{}
	select {
	case <-y.resume:
		return true
	case <-y.halted:
		return false
	}
}

// CoroFunc is the coroutine body: it calls y.Yield() at suspension
// points and returns a terminal status when done.
type CoroFunc func(ctx context.Context, cfg *btnode.Config, y *Yielder) (bhtype.Status, error)

// CoroActionNode drives a CoroFunc across many ticks, resuming it once
// per tick and reporting Running each time it suspends.
type CoroActionNode struct {
	*btnode.Core
	fn CoroFunc

	running bool
	y       *Yielder
	done    chan struct{}
	result  bhtype.Status
	err     error
}

func NewCoroActionNode(name, uid, path string, cfg *btnode.Config, fn CoroFunc) *CoroActionNode {
	n := &CoroActionNode{fn: fn}
	n.Core = btnode.NewCore(name, name, uid, path, cfg, n)
	return n
}

func (n *CoroActionNode) DoTick(ctx context.Context) (bhtype.Status, error) {
	if !n.running {
		n.y = &Yielder{
			resume: make(chan struct{}),
			yield:  make(chan struct{}),
			halted: make(chan struct{}),
		}
		n.done = make(chan struct{})
		n.running = true
		go n.drive(ctx)
	} else {
		n.y.resume <- struct{}{}
	}

	select {
	case <-n.y.yield:
		return bhtype.Running, nil
	case <-n.done:
		n.running = false
		return n.result, n.err
	}
}

func (n *CoroActionNode) drive(ctx context.Context) {
	st, err := n.fn(ctx, n.Config(), n.y)
	n.result, n.err = st, err
	close(n.done)
}

func (n *CoroActionNode) DoHalt() {
	if !n.running {
		return
	}
	close(n.y.halted)
	<-n.done
	n.running = false
}
