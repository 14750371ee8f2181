// Package bttree implements the Tree type of spec §3/§5: the list of
// subtrees (here: one root per Tree, with nested <SubTree> nodes reachable
// through the ordinary node graph rather than flattened into a second
// list — an idiomatic simplification of the C++ model's indirection,
// since Go interfaces already let an observer cross those boundaries, see
// internal/observer's Parent walk), the root blackboard, TickOnce /
// TickWhileRunning, and an interruptible Sleep backed by a wake signal.
package bttree

import (
	"context"
	"sync"
	"time"

	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/blackboard"
	"github.com/danshapiro/bhtree/internal/btnode"
	"github.com/danshapiro/bhtree/internal/timerq"
)

// Tree owns a root node, its root blackboard, and a timer queue that is
// closed with the tree. Timeout, Delay and Sleep nodes measure time with
// the wall clock and do not schedule on this queue; TestNode mocks built
// by a registry.Factory use the factory's own queue.
type Tree struct {
	root   btnode.Node
	rootBB *blackboard.Blackboard
	Timers *timerq.TimerQueue

	mu   sync.Mutex
	wake chan struct{}

	closeOnce sync.Once
}

// New wraps root (as built by registry.CreateTree) and rootBB into a
// tickable Tree, starting its own background timer queue.
func New(root btnode.Node, rootBB *blackboard.Blackboard) *Tree {
	return &Tree{
		root:   root,
		rootBB: rootBB,
		Timers: timerq.New(),
		wake:   make(chan struct{}),
	}
}

// Root returns the tree's root node.
func (t *Tree) Root() btnode.Node { return t.root }

// RootBlackboard returns the tree's root blackboard scope.
func (t *Tree) RootBlackboard() *blackboard.Blackboard { return t.rootBB }

// TickOnce ticks the root node exactly once, per spec §5's
// single-threaded-cooperative scheduling model.
func (t *Tree) TickOnce(ctx context.Context) (bhtype.Status, error) {
	return t.root.ExecuteTick(ctx)
}

// TickWhileRunning ticks repeatedly until the root reports a terminal
// status, sleeping sleepDuration between ticks while Running. The sleep
// is interruptible: any call to EmitWakeUpSignal (e.g. from a node whose
// blackboard write should be observed sooner than the next scheduled
// tick) wakes it early.
func (t *Tree) TickWhileRunning(ctx context.Context, sleepDuration time.Duration) (bhtype.Status, error) {
	for {
		st, err := t.TickOnce(ctx)
		if err != nil {
			return "", err
		}
		if st != bhtype.Running {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		t.Sleep(ctx, sleepDuration)
	}
}

// Sleep blocks for timeout or until EmitWakeUpSignal fires, whichever
// comes first, or until ctx is cancelled. timeout <= 0 means "forever
// until woken or cancelled".
func (t *Tree) Sleep(ctx context.Context, timeout time.Duration) {
	t.mu.Lock()
	ch := t.wake
	t.mu.Unlock()

	if timeout <= 0 {
		select {
		case <-ch:
		case <-ctx.Done():
		}
		return
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
	case <-ctx.Done():
	}
}

// EmitWakeUpSignal wakes every goroutine currently blocked in Sleep. It
// is the condition-variable broadcast spec §5 requires, realized as the
// standard Go idiom of closing and replacing a channel.
func (t *Tree) EmitWakeUpSignal() {
	t.mu.Lock()
	close(t.wake)
	t.wake = make(chan struct{})
	t.mu.Unlock()
}

// Close stops the tree's timer queue. Safe to call more than once.
func (t *Tree) Close() {
	t.closeOnce.Do(func() {
		t.Timers.Close()
	})
}
