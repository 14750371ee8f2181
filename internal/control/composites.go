// Package control implements the composite and decorator node families of
// spec §4.5: Sequence/Fallback/Parallel variants, Inverter and the other
// decorators, and the IfThenElse/WhileDoElse/TryCatch control-flow nodes.
// Every type here embeds *btnode.Core and satisfies btnode.Hooks, so the
// kernel's pre/post-condition wrapping, subscriber notification and status
// bookkeeping (package btnode) apply uniformly without reimplementing them
// per node type — the Go analogue of the teacher's virtual dispatch.
package control

import (
	"context"

	"github.com/danshapiro/bhtree/internal/bherr"
	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/btnode"
)

// Sequence ticks children left to right, resuming from the first child
// that previously returned Running. A Failure halts remaining children
// (conceptually; in practice it simply stops ticking) and resets the
// cursor so the next tick starts over from the first child.
type Sequence struct {
	*btnode.Core
	children   []btnode.Node
	cursor     int
	allSkipped bool
}

func NewSequence(name, uid, path string, cfg *btnode.Config, children []btnode.Node) *Sequence {
	s := &Sequence{children: children}
	s.Core = btnode.NewCore(name, "Sequence", uid, path, cfg, s)
	return s
}

func (s *Sequence) DoTick(ctx context.Context) (bhtype.Status, error) {
	if s.cursor == 0 {
		s.allSkipped = true
	}
	for s.cursor < len(s.children) {
		st, err := s.children[s.cursor].ExecuteTick(ctx)
		if err != nil {
			return "", err
		}
		switch st {
		case bhtype.Success:
			s.allSkipped = false
			s.cursor++
		case bhtype.Skipped:
			s.cursor++
		case bhtype.Running:
			return bhtype.Running, nil
		case bhtype.Failure:
			s.cursor = 0
			return bhtype.Failure, nil
		default:
			return "", bherr.NewLogic(nil, "Sequence: child returned invalid status %q", st)
		}
	}
	s.cursor = 0
	if s.allSkipped {
		return bhtype.Skipped, nil
	}
	return bhtype.Success, nil
}

func (s *Sequence) DoHalt() {
	haltRunningOrPast(s.children, s.cursor)
	s.cursor = 0
}

// SequenceWithMemory is a Sequence that never resets its cursor on
// Failure: once a child succeeds it is never re-ticked, even after the
// whole node later fails and is re-entered.
type SequenceWithMemory struct {
	*btnode.Core
	children   []btnode.Node
	cursor     int
	allSkipped bool
}

func NewSequenceWithMemory(name, uid, path string, cfg *btnode.Config, children []btnode.Node) *SequenceWithMemory {
	s := &SequenceWithMemory{children: children}
	s.Core = btnode.NewCore(name, "SequenceWithMemory", uid, path, cfg, s)
	return s
}

func (s *SequenceWithMemory) DoTick(ctx context.Context) (bhtype.Status, error) {
	if s.cursor == 0 {
		s.allSkipped = true
	}
	for s.cursor < len(s.children) {
		st, err := s.children[s.cursor].ExecuteTick(ctx)
		if err != nil {
			return "", err
		}
		switch st {
		case bhtype.Success:
			s.allSkipped = false
			s.cursor++
		case bhtype.Skipped:
			s.cursor++
		case bhtype.Running:
			return bhtype.Running, nil
		case bhtype.Failure:
			return bhtype.Failure, nil
		default:
			return "", bherr.NewLogic(nil, "SequenceWithMemory: child returned invalid status %q", st)
		}
	}
	s.cursor = 0
	if s.allSkipped {
		return bhtype.Skipped, nil
	}
	return bhtype.Success, nil
}

func (s *SequenceWithMemory) DoHalt() {
	haltRunningOrPast(s.children, s.cursor)
}

// ReactiveSequence re-ticks every child from the first one on every tick
// (no cursor memory). EnforceSingleRunning, off by default, makes DoTick
// raise a LogicError when a child returns Running while a different child
// was still Running from an earlier tick.
type ReactiveSequence struct {
	*btnode.Core
	children             []btnode.Node
	EnforceSingleRunning bool
}

func NewReactiveSequence(name, uid, path string, cfg *btnode.Config, children []btnode.Node) *ReactiveSequence {
	r := &ReactiveSequence{children: children}
	r.Core = btnode.NewCore(name, "ReactiveSequence", uid, path, cfg, r)
	return r
}

func (r *ReactiveSequence) DoTick(ctx context.Context) (bhtype.Status, error) {
	prevRunning := -1
	for i, child := range r.children {
		if child.Status() == bhtype.Running {
			prevRunning = i
			break
		}
	}
	allSkipped := true
	for i, child := range r.children {
		st, err := child.ExecuteTick(ctx)
		if err != nil {
			return "", err
		}
		switch st {
		case bhtype.Success:
			allSkipped = false
			continue
		case bhtype.Skipped:
			continue
		case bhtype.Running:
			if r.EnforceSingleRunning && prevRunning >= 0 && prevRunning != i {
				return "", bherr.NewLogic(nil, "ReactiveSequence: children %d and %d both Running", prevRunning, i)
			}
			haltFrom(r.children, i+1)
			return bhtype.Running, nil
		case bhtype.Failure:
			haltFrom(r.children, i+1)
			return bhtype.Failure, nil
		default:
			return "", bherr.NewLogic(nil, "ReactiveSequence: child returned invalid status %q", st)
		}
	}
	if allSkipped {
		return bhtype.Skipped, nil
	}
	return bhtype.Success, nil
}

func (r *ReactiveSequence) DoHalt() {
	haltFrom(r.children, 0)
}

// Fallback ticks children left to right until one Succeeds or Runs. A
// child that returned Running is resumed on the next tick without
// re-ticking the children before it; the cursor resets once the Fallback
// completes or is halted.
type Fallback struct {
	*btnode.Core
	children   []btnode.Node
	cursor     int
	allSkipped bool
}

func NewFallback(name, uid, path string, cfg *btnode.Config, children []btnode.Node) *Fallback {
	f := &Fallback{children: children}
	f.Core = btnode.NewCore(name, "Fallback", uid, path, cfg, f)
	return f
}

func (f *Fallback) DoTick(ctx context.Context) (bhtype.Status, error) {
	if f.cursor == 0 {
		f.allSkipped = true
	}
	for f.cursor < len(f.children) {
		st, err := f.children[f.cursor].ExecuteTick(ctx)
		if err != nil {
			return "", err
		}
		switch st {
		case bhtype.Failure:
			f.allSkipped = false
			f.cursor++
		case bhtype.Skipped:
			f.cursor++
		case bhtype.Running:
			return bhtype.Running, nil
		case bhtype.Success:
			f.cursor = 0
			return bhtype.Success, nil
		default:
			return "", bherr.NewLogic(nil, "Fallback: child returned invalid status %q", st)
		}
	}
	f.cursor = 0
	if f.allSkipped {
		return bhtype.Skipped, nil
	}
	return bhtype.Failure, nil
}

func (f *Fallback) DoHalt() {
	haltRunningOrPast(f.children, f.cursor)
	f.cursor = 0
}

// ReactiveFallback re-ticks every child from the first one each tick.
type ReactiveFallback struct {
	*btnode.Core
	children []btnode.Node
}

func NewReactiveFallback(name, uid, path string, cfg *btnode.Config, children []btnode.Node) *ReactiveFallback {
	r := &ReactiveFallback{children: children}
	r.Core = btnode.NewCore(name, "ReactiveFallback", uid, path, cfg, r)
	return r
}

func (r *ReactiveFallback) DoTick(ctx context.Context) (bhtype.Status, error) {
	allSkipped := true
	for i, child := range r.children {
		st, err := child.ExecuteTick(ctx)
		if err != nil {
			return "", err
		}
		switch st {
		case bhtype.Failure:
			allSkipped = false
			continue
		case bhtype.Skipped:
			continue
		case bhtype.Running:
			haltFrom(r.children, i+1)
			return bhtype.Running, nil
		case bhtype.Success:
			haltFrom(r.children, i+1)
			return bhtype.Success, nil
		default:
			return "", bherr.NewLogic(nil, "ReactiveFallback: child returned invalid status %q", st)
		}
	}
	if allSkipped {
		return bhtype.Skipped, nil
	}
	return bhtype.Failure, nil
}

func (r *ReactiveFallback) DoHalt() {
	haltFrom(r.children, 0)
}

// haltRunningOrPast halts every child up to and including cursor that is
// currently Running, in reverse order, per spec §4.5's "halt children in
// reverse order" invariant.
func haltRunningOrPast(children []btnode.Node, cursor int) {
	limit := cursor
	if limit >= len(children) {
		limit = len(children) - 1
	}
	for i := limit; i >= 0; i-- {
		if children[i].Status() == bhtype.Running {
			children[i].HaltNode()
		}
	}
}

// haltFrom halts every child at index >= from that is Running, in
// reverse order.
func haltFrom(children []btnode.Node, from int) {
	for i := len(children) - 1; i >= from; i-- {
		if children[i].Status() == bhtype.Running {
			children[i].HaltNode()
		}
	}
}

// Children exposes each composite's declaration-order child list, for
// observer tree walks.
func (s *Sequence) Children() []btnode.Node           { return s.children }
func (s *SequenceWithMemory) Children() []btnode.Node { return s.children }
func (r *ReactiveSequence) Children() []btnode.Node   { return r.children }
func (f *Fallback) Children() []btnode.Node           { return f.children }
func (r *ReactiveFallback) Children() []btnode.Node   { return r.children }
