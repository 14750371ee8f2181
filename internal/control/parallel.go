package control

import (
	"context"

	"github.com/danshapiro/bhtree/internal/bherr"
	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/btnode"
)

// Parallel ticks, on every tick, each child that has not already
// Succeeded or Failed (completed children are counted, not re-ticked). It
// reports Success once successThreshold children have Succeeded, else
// Failure once failureThreshold children have Failed, else Running while
// any child runs, and Skipped when no child runs and neither threshold
// was reached.
// Thresholds follow spec §4.5's Python-style negative indexing: -1 means
// "all children", -2 means "all but one", and so on.
type Parallel struct {
	*btnode.Core
	children         []btnode.Node
	successThreshold int
	failureThreshold int
}

func NewParallel(name, uid, path string, cfg *btnode.Config, children []btnode.Node, successThreshold, failureThreshold int) *Parallel {
	p := &Parallel{
		children:         children,
		successThreshold: resolveThreshold(successThreshold, len(children)),
		failureThreshold: resolveThreshold(failureThreshold, len(children)),
	}
	p.Core = btnode.NewCore(name, "Parallel", uid, path, cfg, p)
	return p
}

// resolveThreshold turns a possibly-negative Python-style index into an
// absolute child count: -1 -> n, -2 -> n-1, and so on, clamped to [1, n].
func resolveThreshold(threshold, n int) int {
	if threshold < 0 {
		threshold = n + threshold + 1
	}
	if threshold < 1 {
		threshold = 1
	}
	if threshold > n {
		threshold = n
	}
	return threshold
}

func (p *Parallel) DoTick(ctx context.Context) (bhtype.Status, error) {
	successes, failures, running := 0, 0, 0
	for _, child := range p.children {
		st := child.Status()
		if st == bhtype.Success {
			successes++
			continue
		}
		if st == bhtype.Failure {
			failures++
			continue
		}
		newSt, err := child.ExecuteTick(ctx)
		if err != nil {
			return "", err
		}
		switch newSt {
		case bhtype.Success:
			successes++
		case bhtype.Failure:
			failures++
		case bhtype.Running:
			running++
		case bhtype.Skipped:
		default:
			return "", bherr.NewLogic(nil, "Parallel: child returned invalid status %q", newSt)
		}
	}

	switch {
	case successes >= p.successThreshold:
		p.reset()
		return bhtype.Success, nil
	case failures >= p.failureThreshold:
		p.reset()
		return bhtype.Failure, nil
	case running > 0:
		return bhtype.Running, nil
	default:
		// No child is Running and neither threshold was reached: only
		// possible when enough children were Skipped to make both
		// thresholds unreachable, per spec §4.5's "Skipped does not
		// count toward either threshold; if every child was skipped the
		// node returns Skipped" (generalized here to "can no longer
		// reach either threshold", which also covers a mixed
		// success/failure/skipped terminal state with no path forward).
		p.reset()
		return bhtype.Skipped, nil
	}
}

func (p *Parallel) reset() {
	for _, c := range p.children {
		if c.Status() == bhtype.Running {
			c.HaltNode()
		}
	}
}

func (p *Parallel) DoHalt() {
	p.reset()
}

// ParallelAll ticks every child to completion regardless of individual
// failures, succeeding unless more than maxFailures children fail.
type ParallelAll struct {
	*btnode.Core
	children    []btnode.Node
	maxFailures int
}

func NewParallelAll(name, uid, path string, cfg *btnode.Config, children []btnode.Node, maxFailures int) *ParallelAll {
	p := &ParallelAll{children: children, maxFailures: maxFailures}
	p.Core = btnode.NewCore(name, "ParallelAll", uid, path, cfg, p)
	return p
}

func (p *ParallelAll) DoTick(ctx context.Context) (bhtype.Status, error) {
	allDone := true
	failures, skipped := 0, 0
	for _, child := range p.children {
		st := child.Status()
		if st == bhtype.Success || st == bhtype.Failure {
			if st == bhtype.Failure {
				failures++
			}
			continue
		}
		newSt, err := child.ExecuteTick(ctx)
		if err != nil {
			return "", err
		}
		switch newSt {
		case bhtype.Success:
		case bhtype.Failure:
			failures++
		case bhtype.Skipped:
			skipped++
		case bhtype.Running:
			allDone = false
		default:
			return "", bherr.NewLogic(nil, "ParallelAll: child returned invalid status %q", newSt)
		}
	}
	if !allDone {
		return bhtype.Running, nil
	}
	p.reset()
	if skipped == len(p.children) {
		return bhtype.Skipped, nil
	}
	if p.maxFailures >= 0 && failures > p.maxFailures {
		return bhtype.Failure, nil
	}
	return bhtype.Success, nil
}

func (p *ParallelAll) reset() {
	for _, c := range p.children {
		if c.Status() == bhtype.Running {
			c.HaltNode()
		}
	}
}

func (p *ParallelAll) DoHalt() {
	p.reset()
}

// Children exposes each node's declaration-order child list, for observer
// tree walks.
func (p *Parallel) Children() []btnode.Node    { return p.children }
func (p *ParallelAll) Children() []btnode.Node { return p.children }
