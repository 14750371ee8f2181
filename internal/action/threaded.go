package action

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/btnode"
)

// ThreadedFunc is long-running user logic executed on a dedicated
// goroutine. It must poll stopRequested periodically and return promptly
// once it reports true — the cooperative halt contract spec §4.6 and
// §5 (CONCURRENCY & RESOURCE MODEL) require, since the tree has no way to
// forcibly kill a goroutine.
type ThreadedFunc func(ctx context.Context, cfg *btnode.Config, stopRequested func() bool) (bhtype.Status, error)

// ThreadedAction runs fn on its own goroutine, started on the first tick
// after Idle and polled (non-blocking) on every subsequent tick until it
// finishes. Halting sets the cooperative stop flag; the node itself
// reports whatever status it last observed (Running, until fn finishes).
type ThreadedAction struct {
	*btnode.Core
	fn ThreadedFunc

	mu      sync.Mutex
	started bool
	stop    atomic.Bool
	done    chan struct{}
	result  bhtype.Status
	err     error
}

func NewThreadedAction(name, uid, path string, cfg *btnode.Config, fn ThreadedFunc) *ThreadedAction {
	n := &ThreadedAction{fn: fn}
	n.Core = btnode.NewCore(name, name, uid, path, cfg, n)
	return n
}

func (n *ThreadedAction) DoTick(ctx context.Context) (bhtype.Status, error) {
	n.mu.Lock()
	if !n.started {
		n.started = true
		n.stop.Store(false)
		n.done = make(chan struct{})
		go n.run(ctx)
	}
	done := n.done
	n.mu.Unlock()

	select {
	case <-done:
		n.mu.Lock()
		st, err := n.result, n.err
		n.started = false
		n.mu.Unlock()
		return st, err
	default:
		return bhtype.Running, nil
	}
}

func (n *ThreadedAction) run(ctx context.Context) {
	st, err := n.fn(ctx, n.Config(), n.stop.Load)
	n.mu.Lock()
	n.result, n.err = st, err
	n.mu.Unlock()
	close(n.done)
}

func (n *ThreadedAction) DoHalt() {
	n.mu.Lock()
	started := n.started
	n.mu.Unlock()
	if !started {
		return
	}
	n.stop.Store(true)
	n.mu.Lock()
	done := n.done
	n.mu.Unlock()
	<-done
	n.mu.Lock()
	n.started = false
	n.mu.Unlock()
}
