package btnode

import (
	"context"
	"sync"
	"time"

	"github.com/danshapiro/bhtree/internal/bherr"
	"github.com/danshapiro/bhtree/internal/bhtype"
)

// Hooks is the pair of methods a concrete node (a control/decorator in
// package control, or a leaf base in package action) supplies to a Core:
// the concrete tick logic and the concrete halt logic. Core owns
// everything generic to every node (pre/post conditions, subscribers,
// status bookkeeping); Hooks is the one seam every node family fills in
// differently — the Design Notes' "flattened dispatch for the hot path,
// leaves open for extension".
type Hooks interface {
	DoTick(ctx context.Context) (bhtype.Status, error)
	DoHalt()
}

// SubscriberFunc is called on every status transition of a node.
type SubscriberFunc func(ts bhtype.Timestamp, n *Core, prev, cur bhtype.Status)

// Subscription is returned by Subscribe; call Unsubscribe to detach.
type Subscription struct {
	core *Core
	id   int
}

func (s Subscription) Unsubscribe() {
	s.core.subMu.Lock()
	defer s.core.subMu.Unlock()
	delete(s.core.subs, s.id)
}

// Core is the node kernel embedded by every tree node. It is not itself a
// node (it has no children and no tick logic) — Hooks supplies that.
type Core struct {
	name           string
	registrationID string
	uid            string
	path           string
	cfg            *Config
	impl           Hooks

	statusMu sync.Mutex
	status   bhtype.Status
	seq      uint64
	whileTrue bool

	subMu     sync.Mutex
	subs      map[int]SubscriberFunc
	nextSubID int

	PreTickCallback  func(ctx context.Context, c *Core)
	PostTickCallback func(ctx context.Context, c *Core)

	epoch time.Time
}

func NewCore(name, registrationID, uid, path string, cfg *Config, impl Hooks) *Core {
	return &Core{
		name:           name,
		registrationID: registrationID,
		uid:            uid,
		path:           path,
		cfg:            cfg,
		impl:           impl,
		status:         bhtype.Idle,
		subs:           map[int]SubscriberFunc{},
		epoch:          time.Now(),
	}
}

// CoreRef returns c itself, letting an observer holding only a Node
// interface value reach the shared kernel state (Subscribe,
// PreTickCallback/PostTickCallback) via embedding's method promotion.
func (c *Core) CoreRef() *Core { return c }

func (c *Core) Name() string           { return c.name }
func (c *Core) RegistrationID() string { return c.registrationID }
func (c *Core) UID() string            { return c.uid }
func (c *Core) FullPath() string       { return c.path }
func (c *Core) Config() *Config        { return c.cfg }

func (c *Core) Status() bhtype.Status {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.status
}

func (c *Core) Subscribe(fn SubscriberFunc) Subscription {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = fn
	return Subscription{core: c, id: id}
}

func (c *Core) notify(prev, cur bhtype.Status) {
	if prev == cur {
		return
	}
	c.seq++
	ts := bhtype.Timestamp{SequenceID: c.seq, Time: time.Since(c.epoch)}
	c.subMu.Lock()
	fns := make([]SubscriberFunc, 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()
	for _, fn := range fns {
		fn(ts, c, prev, cur)
	}
}

func (c *Core) setStatus(s bhtype.Status) {
	c.statusMu.Lock()
	prev := c.status
	c.status = s
	c.statusMu.Unlock()
	c.notify(prev, s)
}

func (c *Core) trail() []string {
	return []string{"node=" + c.path}
}

// evalBool runs the pre-compiled condition script stored under key,
// returning its truthiness and whether such a script is present.
func (c *Core) evalBool(key string) (bool, bool, error) {
	scr, ok := c.cfg.Pre[key]
	if !ok {
		return false, false, nil
	}
	v, err := scr.Run(c.cfg.env())
	if err != nil {
		return false, true, bherr.NewRuntime(c.trail(), "condition %s: %v", key, err)
	}
	b, err := v.Bool()
	if err != nil {
		return false, true, bherr.NewRuntime(c.trail(), "condition %s did not evaluate to a boolean: %v", key, err)
	}
	return b, true, nil
}

func (c *Core) runPost(key string, finalStatus bhtype.Status) error {
	scr, ok := c.cfg.Post[key]
	if !ok {
		return nil
	}
	if _, err := scr.Run(c.cfg.env()); err != nil {
		return bherr.NewRuntime(c.trail(), "post-condition %s: %v", key, err)
	}
	_ = finalStatus
	return nil
}

// ExecuteTick is the node kernel's tick wrapper: pre-conditions, the
// concrete tick, post-conditions, subscriber notification, status update —
// spec §4.4 and TESTABLE PROPERTIES #7's fixed evaluation order
// (_failureIf < _successIf < _skipIf < _while < tick < _onHalted|
// _onFailure|_onSuccess < _post). The pre-conditions are evaluated in
// that single fixed order every tick, stopping at the first one that
// short-circuits the tick, so a later precondition never runs ahead of an
// earlier one regardless of whileTrue's prior state.
func (c *Core) ExecuteTick(ctx context.Context) (bhtype.Status, error) {
	prev := c.Status()

	var shortCircuit bhtype.Status
	shortCircuited := false
	haltedByWhile := false

	for _, key := range []string{"_failureIf", "_successIf", "_skipIf", "_while"} {
		if key == "_while" {
			held, present, err := c.evalBool("_while")
			if err != nil {
				return "", err
			}
			if !present {
				break
			}
			wasTrue := c.whileTrue
			c.whileTrue = held
			if !held {
				shortCircuit = bhtype.Skipped
				shortCircuited = true
				// Only a true->false transition means the concrete node
				// was actually running and needs halting; _while false
				// from the start is a plain skip.
				if wasTrue {
					c.impl.DoHalt()
					haltedByWhile = true
				}
			}
			break
		}

		truthy, present, err := c.evalBool(key)
		if err != nil {
			return "", err
		}
		if present && truthy {
			switch key {
			case "_failureIf":
				shortCircuit = bhtype.Failure
			case "_successIf":
				shortCircuit = bhtype.Success
			case "_skipIf":
				shortCircuit = bhtype.Skipped
			}
			shortCircuited = true
			break
		}
	}

	var final bhtype.Status
	if shortCircuited {
		final = shortCircuit
	} else {
		if c.PreTickCallback != nil {
			c.PreTickCallback(ctx, c)
		}
		f, err := c.impl.DoTick(ctx)
		if c.PostTickCallback != nil {
			c.PostTickCallback(ctx, c)
		}
		if err != nil {
			return "", err
		}
		final = f
	}

	if haltedByWhile {
		if err := c.runPost("_onHalted", final); err != nil {
			return "", err
		}
	}
	if final == bhtype.Failure {
		if err := c.runPost("_onFailure", final); err != nil {
			return "", err
		}
	}
	if final == bhtype.Success {
		if err := c.runPost("_onSuccess", final); err != nil {
			return "", err
		}
	}
	if err := c.runPost("_post", final); err != nil {
		return "", err
	}

	c.setStatus(final)
	_ = prev
	return final, nil
}

// HaltNode drives the node into Idle, invoking the concrete halt logic and
// firing _onHalted if the node was Running.
func (c *Core) HaltNode() {
	wasRunning := c.Status() == bhtype.Running
	c.impl.DoHalt()
	c.whileTrue = false
	if wasRunning {
		_ = c.runPost("_onHalted", bhtype.Idle)
	}
	c.setStatus(bhtype.Idle)
}
