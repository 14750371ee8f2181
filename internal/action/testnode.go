package action

import (
	"context"
	"sync"
	"time"

	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/btnode"
	"github.com/danshapiro/bhtree/internal/script"
	"github.com/danshapiro/bhtree/internal/timerq"
)

// TestNode is the substitution-rule mock (spec §4.7's TestNodeConfig): it
// stands in for a real action during testing, returning a configured
// status — optionally after an async delay scheduled through a
// timerq.TimerQueue rather than polling the wall clock, to exercise
// Running/halt paths — running whichever of SuccessScript/FailureScript
// matches the outcome, then the mandatory PostScript regardless of
// outcome. It also records how many times it was ticked and halted.
type TestNode struct {
	*btnode.Core

	ReturnStatus  bhtype.Status
	AsyncDelay    time.Duration
	SuccessScript *script.CompiledScript
	FailureScript *script.CompiledScript
	PostScript    *script.CompiledScript

	Timers *timerq.TimerQueue

	TickCount int
	HaltCount int

	mu      sync.Mutex
	timerID uint64
	pending bool
	fired   bool
}

func NewTestNode(name, uid, path string, cfg *btnode.Config, returnStatus bhtype.Status, asyncDelay time.Duration, timers *timerq.TimerQueue) *TestNode {
	n := &TestNode{ReturnStatus: returnStatus, AsyncDelay: asyncDelay, Timers: timers}
	n.Core = btnode.NewCore(name, "TestNode", uid, path, cfg, n)
	return n
}

func (n *TestNode) DoTick(ctx context.Context) (bhtype.Status, error) {
	n.TickCount++
	if n.AsyncDelay > 0 {
		n.mu.Lock()
		if !n.pending {
			n.pending = true
			n.fired = false
			n.timerID = n.Timers.Add(n.AsyncDelay, n.onTimerFired)
		}
		fired := n.fired
		n.mu.Unlock()
		if !fired {
			return bhtype.Running, nil
		}
	}
	n.mu.Lock()
	n.pending = false
	n.mu.Unlock()

	if err := n.runOutcomeScripts(); err != nil {
		return "", err
	}
	return n.ReturnStatus, nil
}

func (n *TestNode) onTimerFired(aborted bool) {
	if aborted {
		return
	}
	n.mu.Lock()
	n.fired = true
	n.mu.Unlock()
}

// runOutcomeScripts runs SuccessScript or FailureScript depending on
// ReturnStatus (neither for Skipped), then PostScript unconditionally,
// matching spec §6's "pre-complete success/failure scripts (executed
// depending on outcome), and a mandatory post-script".
func (n *TestNode) runOutcomeScripts() error {
	env := &script.Env{Vars: n.Config().BB, Enums: n.Config().Enums}

	var outcome *script.CompiledScript
	switch n.ReturnStatus {
	case bhtype.Success:
		outcome = n.SuccessScript
	case bhtype.Failure:
		outcome = n.FailureScript
	}
	if outcome != nil {
		if _, err := outcome.Run(env); err != nil {
			return err
		}
	}
	if n.PostScript != nil {
		if _, err := n.PostScript.Run(env); err != nil {
			return err
		}
	}
	return nil
}

func (n *TestNode) DoHalt() {
	n.HaltCount++
	n.mu.Lock()
	if n.pending {
		n.Timers.Cancel(n.timerID)
		n.pending = false
	}
	n.mu.Unlock()
}
