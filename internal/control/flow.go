package control

import (
	"context"

	"github.com/danshapiro/bhtree/internal/bherr"
	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/btnode"
)

// IfThenElse ticks cond; on Success ticks thenChild, on Failure ticks
// elseChild (if present, else Fails). A Skipped condition ticks neither
// branch: the condition declined to run, so IfThenElse has nothing to
// branch on and reports Skipped itself.
type IfThenElse struct {
	*btnode.Core
	cond, thenChild, elseChild btnode.Node
	branch                     int // 0 = none chosen yet, 1 = then, 2 = else
}

func NewIfThenElse(name, uid, path string, cfg *btnode.Config, cond, thenChild, elseChild btnode.Node) *IfThenElse {
	n := &IfThenElse{cond: cond, thenChild: thenChild, elseChild: elseChild}
	n.Core = btnode.NewCore(name, "IfThenElse", uid, path, cfg, n)
	return n
}

func (n *IfThenElse) DoTick(ctx context.Context) (bhtype.Status, error) {
	if n.branch == 0 {
		st, err := n.cond.ExecuteTick(ctx)
		if err != nil {
			return "", err
		}
		switch st {
		case bhtype.Success:
			n.branch = 1
		case bhtype.Failure:
			n.branch = 2
		case bhtype.Skipped:
			return bhtype.Skipped, nil
		case bhtype.Running:
			return bhtype.Running, nil
		default:
			return "", bherr.NewLogic(nil, "IfThenElse: condition returned invalid status %q", st)
		}
	}

	var chosen btnode.Node
	if n.branch == 1 {
		chosen = n.thenChild
	} else {
		chosen = n.elseChild
	}
	if chosen == nil {
		n.branch = 0
		return bhtype.Failure, nil
	}
	st, err := chosen.ExecuteTick(ctx)
	if err != nil {
		return "", err
	}
	if st != bhtype.Running {
		n.branch = 0
	}
	return st, nil
}

func (n *IfThenElse) DoHalt() {
	for _, c := range []btnode.Node{n.cond, n.thenChild, n.elseChild} {
		if c != nil && c.Status() == bhtype.Running {
			c.HaltNode()
		}
	}
	n.branch = 0
}

// WhileDoElse is IfThenElse's reactive sibling: cond is re-evaluated
// every tick, halting whichever branch was running if the condition's
// answer flips.
type WhileDoElse struct {
	*btnode.Core
	cond, doChild, elseChild btnode.Node
	lastBranch               int
}

func NewWhileDoElse(name, uid, path string, cfg *btnode.Config, cond, doChild, elseChild btnode.Node) *WhileDoElse {
	n := &WhileDoElse{cond: cond, doChild: doChild, elseChild: elseChild}
	n.Core = btnode.NewCore(name, "WhileDoElse", uid, path, cfg, n)
	return n
}

func (n *WhileDoElse) DoTick(ctx context.Context) (bhtype.Status, error) {
	condSt, err := n.cond.ExecuteTick(ctx)
	if err != nil {
		return "", err
	}

	var branch int
	switch condSt {
	case bhtype.Success:
		branch = 1
	case bhtype.Failure:
		branch = 2
	case bhtype.Skipped:
		n.haltBranch(n.lastBranch)
		n.lastBranch = 0
		return bhtype.Skipped, nil
	case bhtype.Running:
		return bhtype.Running, nil
	default:
		return "", bherr.NewLogic(nil, "WhileDoElse: condition returned invalid status %q", condSt)
	}

	if branch != n.lastBranch {
		n.haltBranch(n.lastBranch)
	}
	n.lastBranch = branch

	var chosen btnode.Node
	if branch == 1 {
		chosen = n.doChild
	} else {
		chosen = n.elseChild
	}
	if chosen == nil {
		return bhtype.Failure, nil
	}
	return chosen.ExecuteTick(ctx)
}

func (n *WhileDoElse) haltBranch(branch int) {
	var chosen btnode.Node
	if branch == 1 {
		chosen = n.doChild
	} else if branch == 2 {
		chosen = n.elseChild
	}
	if chosen != nil && chosen.Status() == bhtype.Running {
		chosen.HaltNode()
	}
}

func (n *WhileDoElse) DoHalt() {
	for _, c := range []btnode.Node{n.cond, n.doChild, n.elseChild} {
		if c != nil && c.Status() == bhtype.Running {
			c.HaltNode()
		}
	}
	n.lastBranch = 0
}

// TryCatch ticks child; a Failure is caught and the catch child is
// ticked instead, reporting the catch child's result. catchOnHalt also
// runs catch when the node is halted mid-Running, matching the teacher's
// on_halted convention of giving cleanup code a chance to run.
type TryCatch struct {
	*btnode.Core
	child, catch btnode.Node
	catchOnHalt  bool
	inCatch      bool
}

func NewTryCatch(name, uid, path string, cfg *btnode.Config, child, catch btnode.Node, catchOnHalt bool) *TryCatch {
	n := &TryCatch{child: child, catch: catch, catchOnHalt: catchOnHalt}
	n.Core = btnode.NewCore(name, "TryCatch", uid, path, cfg, n)
	return n
}

func (n *TryCatch) DoTick(ctx context.Context) (bhtype.Status, error) {
	if n.inCatch {
		st, err := n.catch.ExecuteTick(ctx)
		if err != nil {
			return "", err
		}
		if st != bhtype.Running {
			n.inCatch = false
		}
		return st, nil
	}

	st, err := n.child.ExecuteTick(ctx)
	if err != nil {
		return "", err
	}
	if st != bhtype.Failure || n.catch == nil {
		return st, nil
	}
	n.inCatch = true
	st, err = n.catch.ExecuteTick(ctx)
	if err != nil {
		return "", err
	}
	if st != bhtype.Running {
		n.inCatch = false
	}
	return st, nil
}

func (n *TryCatch) DoHalt() {
	if n.child.Status() == bhtype.Running {
		n.child.HaltNode()
		if n.catchOnHalt && n.catch != nil {
			st, _ := n.catch.ExecuteTick(context.Background())
			if st == bhtype.Running {
				// Cleanup needs more ticks; leave it running so the next
				// ExecuteTick on this node resumes it via the inCatch path
				// instead of halting it mid-cleanup.
				n.inCatch = true
				return
			}
		}
	}
	if n.catch != nil && n.catch.Status() == bhtype.Running {
		n.catch.HaltNode()
	}
	n.inCatch = false
}

// Precondition ticks child only if cond Succeeds; otherwise it reports
// the elseStatus configured at construction (Failure for `_if`'s default,
// but `_else`-style wiring can set it to Skipped).
type Precondition struct {
	*btnode.Core
	cond, child btnode.Node
	elseStatus  bhtype.Status
}

func NewPrecondition(name, uid, path string, cfg *btnode.Config, cond, child btnode.Node, elseStatus bhtype.Status) *Precondition {
	n := &Precondition{cond: cond, child: child, elseStatus: elseStatus}
	n.Core = btnode.NewCore(name, "Precondition", uid, path, cfg, n)
	return n
}

func (n *Precondition) DoTick(ctx context.Context) (bhtype.Status, error) {
	st, err := n.cond.ExecuteTick(ctx)
	if err != nil {
		return "", err
	}
	if st == bhtype.Running {
		return bhtype.Running, nil
	}
	if st != bhtype.Success {
		return n.elseStatus, nil
	}
	return n.child.ExecuteTick(ctx)
}

func (n *Precondition) DoHalt() {
	for _, c := range []btnode.Node{n.cond, n.child} {
		if c.Status() == bhtype.Running {
			c.HaltNode()
		}
	}
}

// Loop feeds the elements of a queue fixed at construction to its child
// one at a time through set. When the child Succeeds (or is Skipped) the
// next element is fed within the same tick, so a child that completes
// immediately consumes the whole queue in one tick; a Running child holds
// the loop until a later tick, and a Failure empties the queue and
// reports Failure. Once the queue is empty Loop reports ifEmpty (default
// Success); a queue that starts empty never ticks the child.
type Loop struct {
	*btnode.Core
	child   btnode.Node
	queue   []bhtype.Any
	set     func(bhtype.Any) error
	ifEmpty bhtype.Status
}

func NewLoop(name, uid, path string, cfg *btnode.Config, child btnode.Node, items []bhtype.Any, set func(bhtype.Any) error, ifEmpty bhtype.Status) *Loop {
	if ifEmpty == "" {
		ifEmpty = bhtype.Success
	}
	n := &Loop{child: child, queue: append([]bhtype.Any{}, items...), set: set, ifEmpty: ifEmpty}
	n.Core = btnode.NewCore(name, "Loop", uid, path, cfg, n)
	return n
}

func (n *Loop) DoTick(ctx context.Context) (bhtype.Status, error) {
	for len(n.queue) > 0 {
		if n.child.Status() != bhtype.Running {
			if err := n.set(n.queue[0]); err != nil {
				return "", err
			}
		}
		st, err := n.child.ExecuteTick(ctx)
		if err != nil {
			return "", err
		}
		switch st {
		case bhtype.Running:
			return bhtype.Running, nil
		case bhtype.Failure:
			n.queue = nil
			return bhtype.Failure, nil
		case bhtype.Success, bhtype.Skipped:
			n.queue = n.queue[1:]
		default:
			return "", bherr.NewLogic(nil, "Loop: child returned invalid status %q", st)
		}
	}
	return n.ifEmpty, nil
}

func (n *Loop) DoHalt() {
	if n.child.Status() == bhtype.Running {
		n.child.HaltNode()
	}
	n.queue = nil
}

// Children exposes each node's declared children in declaration order
// (condition first where one exists), for observer tree walks. A nil
// elseChild is omitted rather than reported as a nil Node.
func (n *IfThenElse) Children() []btnode.Node {
	return compactNodes(n.cond, n.thenChild, n.elseChild)
}
func (n *WhileDoElse) Children() []btnode.Node {
	return compactNodes(n.cond, n.doChild, n.elseChild)
}
func (n *TryCatch) Children() []btnode.Node     { return compactNodes(n.child, n.catch) }
func (n *Precondition) Children() []btnode.Node { return compactNodes(n.cond, n.child) }
func (n *Loop) Children() []btnode.Node         { return compactNodes(n.child) }

func compactNodes(nodes ...btnode.Node) []btnode.Node {
	out := make([]btnode.Node, 0, len(nodes))
	for _, n := range nodes {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}
