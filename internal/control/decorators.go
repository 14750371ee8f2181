package control

import (
	"context"
	"time"

	"github.com/danshapiro/bhtree/internal/bherr"
	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/blackboard"
	"github.com/danshapiro/bhtree/internal/btnode"
)

// singleChild is embedded by every decorator that wraps exactly one node.
type singleChild struct {
	child btnode.Node
}

// Children reports the single wrapped node, for observer tree walks.
func (s singleChild) Children() []btnode.Node { return []btnode.Node{s.child} }

// Inverter flips Success<->Failure; Running and Skipped pass through.
type Inverter struct {
	*btnode.Core
	singleChild
}

func NewInverter(name, uid, path string, cfg *btnode.Config, child btnode.Node) *Inverter {
	n := &Inverter{singleChild: singleChild{child: child}}
	n.Core = btnode.NewCore(name, "Inverter", uid, path, cfg, n)
	return n
}

func (n *Inverter) DoTick(ctx context.Context) (bhtype.Status, error) {
	st, err := n.child.ExecuteTick(ctx)
	if err != nil {
		return "", err
	}
	switch st {
	case bhtype.Success:
		return bhtype.Failure, nil
	case bhtype.Failure:
		return bhtype.Success, nil
	default:
		return st, nil
	}
}

func (n *Inverter) DoHalt() {
	if n.child.Status() == bhtype.Running {
		n.child.HaltNode()
	}
}

// ForceSuccess always reports Success once the child finishes, regardless
// of its actual terminal status; Running passes through.
type ForceSuccess struct {
	*btnode.Core
	singleChild
}

func NewForceSuccess(name, uid, path string, cfg *btnode.Config, child btnode.Node) *ForceSuccess {
	n := &ForceSuccess{singleChild: singleChild{child: child}}
	n.Core = btnode.NewCore(name, "ForceSuccess", uid, path, cfg, n)
	return n
}

func (n *ForceSuccess) DoTick(ctx context.Context) (bhtype.Status, error) {
	st, err := n.child.ExecuteTick(ctx)
	if err != nil {
		return "", err
	}
	if st == bhtype.Running {
		return bhtype.Running, nil
	}
	return bhtype.Success, nil
}

func (n *ForceSuccess) DoHalt() {
	if n.child.Status() == bhtype.Running {
		n.child.HaltNode()
	}
}

// ForceFailure is ForceSuccess's mirror image.
type ForceFailure struct {
	*btnode.Core
	singleChild
}

func NewForceFailure(name, uid, path string, cfg *btnode.Config, child btnode.Node) *ForceFailure {
	n := &ForceFailure{singleChild: singleChild{child: child}}
	n.Core = btnode.NewCore(name, "ForceFailure", uid, path, cfg, n)
	return n
}

func (n *ForceFailure) DoTick(ctx context.Context) (bhtype.Status, error) {
	st, err := n.child.ExecuteTick(ctx)
	if err != nil {
		return "", err
	}
	if st == bhtype.Running {
		return bhtype.Running, nil
	}
	return bhtype.Failure, nil
}

func (n *ForceFailure) DoHalt() {
	if n.child.Status() == bhtype.Running {
		n.child.HaltNode()
	}
}

// KeepRunningUntilFailure reports Running for every child Success, only
// surfacing once the child Fails.
type KeepRunningUntilFailure struct {
	*btnode.Core
	singleChild
}

func NewKeepRunningUntilFailure(name, uid, path string, cfg *btnode.Config, child btnode.Node) *KeepRunningUntilFailure {
	n := &KeepRunningUntilFailure{singleChild: singleChild{child: child}}
	n.Core = btnode.NewCore(name, "KeepRunningUntilFailure", uid, path, cfg, n)
	return n
}

func (n *KeepRunningUntilFailure) DoTick(ctx context.Context) (bhtype.Status, error) {
	st, err := n.child.ExecuteTick(ctx)
	if err != nil {
		return "", err
	}
	if st == bhtype.Failure {
		return bhtype.Failure, nil
	}
	return bhtype.Running, nil
}

func (n *KeepRunningUntilFailure) DoHalt() {
	if n.child.Status() == bhtype.Running {
		n.child.HaltNode()
	}
}

// Retry ticks its child until it Succeeds or until maxAttempts attempts
// in total have Failed (so maxAttempts of 1 means no retry),
// resetting the attempt counter on Success or once attempts are
// exhausted.
type Retry struct {
	*btnode.Core
	singleChild
	maxAttempts int
	attempt     int
}

func NewRetry(name, uid, path string, cfg *btnode.Config, child btnode.Node, maxAttempts int) *Retry {
	n := &Retry{singleChild: singleChild{child: child}, maxAttempts: maxAttempts}
	n.Core = btnode.NewCore(name, "Retry", uid, path, cfg, n)
	return n
}

func (n *Retry) DoTick(ctx context.Context) (bhtype.Status, error) {
	for {
		st, err := n.child.ExecuteTick(ctx)
		if err != nil {
			return "", err
		}
		switch st {
		case bhtype.Running:
			return bhtype.Running, nil
		case bhtype.Success:
			n.attempt = 0
			return bhtype.Success, nil
		case bhtype.Failure:
			n.attempt++
			if n.attempt >= n.maxAttempts {
				n.attempt = 0
				return bhtype.Failure, nil
			}
			continue
		default:
			return "", bherr.NewLogic(nil, "Retry: child returned invalid status %q", st)
		}
	}
}

func (n *Retry) DoHalt() {
	if n.child.Status() == bhtype.Running {
		n.child.HaltNode()
	}
	n.attempt = 0
}

// Repeat ticks its child until it has Succeeded numCycles times in total,
// reporting Success only once the cycle count is reached; a Failure
// propagates immediately and resets the count.
type Repeat struct {
	*btnode.Core
	singleChild
	numCycles int
	done      int
}

func NewRepeat(name, uid, path string, cfg *btnode.Config, child btnode.Node, numCycles int) *Repeat {
	n := &Repeat{singleChild: singleChild{child: child}, numCycles: numCycles}
	n.Core = btnode.NewCore(name, "Repeat", uid, path, cfg, n)
	return n
}

func (n *Repeat) DoTick(ctx context.Context) (bhtype.Status, error) {
	for n.done < n.numCycles {
		st, err := n.child.ExecuteTick(ctx)
		if err != nil {
			return "", err
		}
		switch st {
		case bhtype.Running:
			return bhtype.Running, nil
		case bhtype.Success:
			n.done++
		case bhtype.Failure:
			n.done = 0
			return bhtype.Failure, nil
		default:
			return "", bherr.NewLogic(nil, "Repeat: child returned invalid status %q", st)
		}
	}
	n.done = 0
	return bhtype.Success, nil
}

func (n *Repeat) DoHalt() {
	if n.child.Status() == bhtype.Running {
		n.child.HaltNode()
	}
	n.done = 0
}

// Timeout fails the child (and halts it) if it is still Running once
// deadline elapses since the first tick of the current run.
type Timeout struct {
	*btnode.Core
	singleChild
	duration time.Duration
	deadline time.Time
	started  bool
}

func NewTimeout(name, uid, path string, cfg *btnode.Config, child btnode.Node, duration time.Duration) *Timeout {
	n := &Timeout{singleChild: singleChild{child: child}, duration: duration}
	n.Core = btnode.NewCore(name, "Timeout", uid, path, cfg, n)
	return n
}

func (n *Timeout) DoTick(ctx context.Context) (bhtype.Status, error) {
	if !n.started {
		n.started = true
		n.deadline = time.Now().Add(n.duration)
	}
	if time.Now().After(n.deadline) {
		if n.child.Status() == bhtype.Running {
			n.child.HaltNode()
		}
		n.started = false
		return bhtype.Failure, nil
	}
	st, err := n.child.ExecuteTick(ctx)
	if err != nil {
		return "", err
	}
	if st != bhtype.Running {
		n.started = false
	}
	return st, nil
}

func (n *Timeout) DoHalt() {
	if n.child.Status() == bhtype.Running {
		n.child.HaltNode()
	}
	n.started = false
}

// Delay reports Running until duration has elapsed since the decorator
// was first ticked, then ticks its child every tick thereafter.
type Delay struct {
	*btnode.Core
	singleChild
	duration time.Duration
	deadline time.Time
	started  bool
}

func NewDelay(name, uid, path string, cfg *btnode.Config, child btnode.Node, duration time.Duration) *Delay {
	n := &Delay{singleChild: singleChild{child: child}, duration: duration}
	n.Core = btnode.NewCore(name, "Delay", uid, path, cfg, n)
	return n
}

func (n *Delay) DoTick(ctx context.Context) (bhtype.Status, error) {
	if !n.started {
		n.started = true
		n.deadline = time.Now().Add(n.duration)
	}
	if time.Now().Before(n.deadline) {
		return bhtype.Running, nil
	}
	st, err := n.child.ExecuteTick(ctx)
	if err != nil {
		return "", err
	}
	if st != bhtype.Running {
		n.started = false
	}
	return st, nil
}

func (n *Delay) DoHalt() {
	if n.child.Status() == bhtype.Running {
		n.child.HaltNode()
	}
	n.started = false
}

// RunOnce ticks its child exactly once and caches the terminal result on
// every subsequent tick, skipping the child entirely thereafter.
type RunOnce struct {
	*btnode.Core
	singleChild
	done   bool
	result bhtype.Status
}

func NewRunOnce(name, uid, path string, cfg *btnode.Config, child btnode.Node) *RunOnce {
	n := &RunOnce{singleChild: singleChild{child: child}}
	n.Core = btnode.NewCore(name, "RunOnce", uid, path, cfg, n)
	return n
}

func (n *RunOnce) DoTick(ctx context.Context) (bhtype.Status, error) {
	if n.done {
		return n.result, nil
	}
	st, err := n.child.ExecuteTick(ctx)
	if err != nil {
		return "", err
	}
	if st == bhtype.Running {
		return bhtype.Running, nil
	}
	n.done = true
	n.result = st
	return st, nil
}

func (n *RunOnce) DoHalt() {
	if n.child.Status() == bhtype.Running {
		n.child.HaltNode()
	}
}

// WasEntryUpdated is a supplemented condition decorator (SPEC_FULL.md
// §2.3): if the blackboard entry at key changed sequence_id since the
// node's last tick (or this is the node's first tick and the entry
// exists), it ticks the child and reports the child's result; otherwise,
// or when the entry is absent, it Fails without ticking the child.
type WasEntryUpdated struct {
	*btnode.Core
	singleChild
	bb      *blackboard.Blackboard
	key     string
	lastSeq uint64
	seen    bool
}

func NewWasEntryUpdated(name, uid, path string, cfg *btnode.Config, child btnode.Node, bb *blackboard.Blackboard, key string) *WasEntryUpdated {
	n := &WasEntryUpdated{singleChild: singleChild{child: child}, bb: bb, key: key}
	n.Core = btnode.NewCore(name, "WasEntryUpdated", uid, path, cfg, n)
	return n
}

func (n *WasEntryUpdated) DoTick(ctx context.Context) (bhtype.Status, error) {
	_, stamp, err := n.bb.GetStamped(n.key)
	if err != nil {
		return bhtype.Failure, nil
	}
	updated := !n.seen || stamp.SequenceID != n.lastSeq
	n.seen = true
	n.lastSeq = stamp.SequenceID
	if !updated {
		return bhtype.Failure, nil
	}
	return n.child.ExecuteTick(ctx)
}

func (n *WasEntryUpdated) DoHalt() {
	if n.child.Status() == bhtype.Running {
		n.child.HaltNode()
	}
}

// SkipUnlessUpdated is WasEntryUpdated's Skipped-instead-of-Failed
// sibling, matching the _skipIf family's convention that "nothing
// happened" is Skipped rather than a failure.
type SkipUnlessUpdated struct {
	*btnode.Core
	singleChild
	bb      *blackboard.Blackboard
	key     string
	lastSeq uint64
	seen    bool
}

func NewSkipUnlessUpdated(name, uid, path string, cfg *btnode.Config, child btnode.Node, bb *blackboard.Blackboard, key string) *SkipUnlessUpdated {
	n := &SkipUnlessUpdated{singleChild: singleChild{child: child}, bb: bb, key: key}
	n.Core = btnode.NewCore(name, "SkipUnlessUpdated", uid, path, cfg, n)
	return n
}

func (n *SkipUnlessUpdated) DoTick(ctx context.Context) (bhtype.Status, error) {
	_, stamp, err := n.bb.GetStamped(n.key)
	if err != nil {
		return bhtype.Skipped, nil
	}
	updated := !n.seen || stamp.SequenceID != n.lastSeq
	n.seen = true
	n.lastSeq = stamp.SequenceID
	if !updated {
		return bhtype.Skipped, nil
	}
	return n.child.ExecuteTick(ctx)
}

func (n *SkipUnlessUpdated) DoHalt() {
	if n.child.Status() == bhtype.Running {
		n.child.HaltNode()
	}
}
