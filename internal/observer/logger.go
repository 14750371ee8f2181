// Package observer implements spec §4.9: a StatusChangeLogger base that
// fans out every node's status transitions, and a TreeObserver that
// aggregates per-node tick/result statistics indexed by both UID and
// hierarchical path. Neither package ever re-enters the tree from a
// callback — observer callbacks receive copies of the timestamp and
// status, matching the CONCURRENCY & RESOURCE MODEL's "observer must
// not re-enter the tree" rule.
package observer

import (
	"sync"

	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/btnode"
)

// Parent is implemented by every composite, decorator and SubTree node
// that has children (see package control). A plain leaf node doesn't
// implement it, which is how walk recognizes the bottom of a branch.
type Parent interface {
	Children() []btnode.Node
}

// subscribable is satisfied by any Node whose embedded *btnode.Core
// promotes Subscribe — which, in this module, is every node.
type subscribable interface {
	Subscribe(fn btnode.SubscriberFunc) btnode.Subscription
}

// coreAccessor is satisfied by any Node whose embedded *btnode.Core
// promotes CoreRef.
type coreAccessor interface {
	CoreRef() *btnode.Core
}

// walk visits n and, recursively, every descendant reachable through
// Parent.Children, crossing SubTree boundaries transparently since
// control.SubTree implements Parent too.
func walk(n btnode.Node, visit func(btnode.Node)) {
	visit(n)
	if p, ok := n.(Parent); ok {
		for _, c := range p.Children() {
			walk(c, visit)
		}
	}
}

// TransitionFunc receives a status transition. ts and n are safe to retain;
// n must not be ticked or halted from within TransitionFunc.
type TransitionFunc func(ts bhtype.Timestamp, n btnode.Node, prev, cur bhtype.Status)

// StatusChangeLogger subscribes to every node under root at construction
// and calls onTransition for each subsequent status change, subject to
// the Enabled and transitions-to-Idle filters.
type StatusChangeLogger struct {
	mu                     sync.Mutex
	Enabled                bool
	enableTransitionToIdle bool

	subs []btnode.Subscription
}

// NewStatusChangeLogger walks root once, subscribing onTransition to every
// node it finds. The logger starts enabled with Idle transitions filtered
// out (a node returning to Idle on halt is rarely interesting to a logger).
func NewStatusChangeLogger(root btnode.Node, onTransition TransitionFunc) *StatusChangeLogger {
	l := &StatusChangeLogger{Enabled: true}
	walk(root, func(n btnode.Node) {
		sub, ok := n.(subscribable)
		if !ok {
			return
		}
		node := n
		s := sub.Subscribe(func(ts bhtype.Timestamp, c *btnode.Core, prev, cur bhtype.Status) {
			l.mu.Lock()
			enabled := l.Enabled
			allowIdle := l.enableTransitionToIdle
			l.mu.Unlock()
			if !enabled {
				return
			}
			if cur == bhtype.Idle && !allowIdle {
				return
			}
			onTransition(ts, node, prev, cur)
		})
		l.subs = append(l.subs, s)
	})
	return l
}

// EnableTransitionToIdle controls whether transitions into Idle (fired on
// halt) reach onTransition.
func (l *StatusChangeLogger) EnableTransitionToIdle(flag bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enableTransitionToIdle = flag
}

// SetEnabled is the global on/off switch; disabled loggers still hold
// their subscriptions but drop every transition.
func (l *StatusChangeLogger) SetEnabled(flag bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Enabled = flag
}

// Close unsubscribes from every node, after which onTransition is never
// called again.
func (l *StatusChangeLogger) Close() {
	for _, s := range l.subs {
		s.Unsubscribe()
	}
	l.subs = nil
}
