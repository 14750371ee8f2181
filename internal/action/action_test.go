package action

import (
	"context"
	"testing"
	"time"

	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/blackboard"
	"github.com/danshapiro/bhtree/internal/btnode"
	"github.com/danshapiro/bhtree/internal/script"
	"github.com/danshapiro/bhtree/internal/timerq"
)

func newCfg() *btnode.Config {
	return btnode.NewConfig(blackboard.New(), script.NewEnumTable(), bhtype.PortList{})
}

func TestSyncAction_ReturnsConfiguredStatus(t *testing.T) {
	n := NewSyncAction("a", "u1", "root.a", newCfg(), func(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
		return bhtype.Success, nil
	})
	st, err := n.ExecuteTick(context.Background())
	if err != nil || st != bhtype.Success {
		t.Fatalf("status = %v, %v, want Success", st, err)
	}
}

func TestSyncAction_RunningIsRejected(t *testing.T) {
	n := NewSyncAction("a", "u1", "root.a", newCfg(), func(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
		return bhtype.Running, nil
	})
	if _, err := n.ExecuteTick(context.Background()); err == nil {
		t.Fatal("expected error when SyncAction returns Running")
	}
}

func TestStatefulAction_StartThenRunningThenDone(t *testing.T) {
	calls := 0
	hooks := &fnHooks{
		start: func(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
			calls++
			return bhtype.Running, nil
		},
		running: func(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
			calls++
			if calls >= 2 {
				return bhtype.Success, nil
			}
			return bhtype.Running, nil
		},
	}
	n := NewStatefulAction("s", "u1", "root.s", newCfg(), hooks)

	st, err := n.ExecuteTick(context.Background())
	if err != nil || st != bhtype.Running {
		t.Fatalf("first tick = %v, %v, want Running", st, err)
	}
	st, err = n.ExecuteTick(context.Background())
	if err != nil || st != bhtype.Success {
		t.Fatalf("second tick = %v, %v, want Success", st, err)
	}
}

type fnHooks struct {
	start, running func(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error)
	halted         func(cfg *btnode.Config)
}

func (h *fnHooks) OnStart(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
	return h.start(ctx, cfg)
}
func (h *fnHooks) OnRunning(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
	return h.running(ctx, cfg)
}
func (h *fnHooks) OnHalted(cfg *btnode.Config) {
	if h.halted != nil {
		h.halted(cfg)
	}
}

func TestThreadedAction_CompletesAfterPolling(t *testing.T) {
	n := NewThreadedAction("t", "u1", "root.t", newCfg(), func(ctx context.Context, cfg *btnode.Config, stopRequested func() bool) (bhtype.Status, error) {
		time.Sleep(20 * time.Millisecond)
		return bhtype.Success, nil
	})

	st, err := n.ExecuteTick(context.Background())
	if err != nil || st != bhtype.Running {
		t.Fatalf("first tick = %v, %v, want Running", st, err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		st, err = n.ExecuteTick(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if st == bhtype.Success {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("threaded action never completed")
}

func TestThreadedAction_HaltRequestsStop(t *testing.T) {
	stopped := make(chan struct{})
	n := NewThreadedAction("t", "u1", "root.t", newCfg(), func(ctx context.Context, cfg *btnode.Config, stopRequested func() bool) (bhtype.Status, error) {
		for !stopRequested() {
			time.Sleep(time.Millisecond)
		}
		close(stopped)
		return bhtype.Failure, nil
	})

	if _, err := n.ExecuteTick(context.Background()); err != nil {
		t.Fatal(err)
	}
	n.HaltNode()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("halt did not signal the worker goroutine to stop")
	}
}

func TestCoroActionNode_YieldsThenCompletes(t *testing.T) {
	n := NewCoroActionNode("c", "u1", "root.c", newCfg(), func(ctx context.Context, cfg *btnode.Config, y *Yielder) (bhtype.Status, error) {
		if !y.Yield() {
			return bhtype.Failure, nil
		}
		if !y.Yield() {
			return bhtype.Failure, nil
		}
		return bhtype.Success, nil
	})

	st, err := n.ExecuteTick(context.Background())
	if err != nil || st != bhtype.Running {
		t.Fatalf("first tick = %v, %v, want Running", st, err)
	}
	st, err = n.ExecuteTick(context.Background())
	if err != nil || st != bhtype.Running {
		t.Fatalf("second tick = %v, %v, want Running", st, err)
	}
	st, err = n.ExecuteTick(context.Background())
	if err != nil || st != bhtype.Success {
		t.Fatalf("third tick = %v, %v, want Success", st, err)
	}
}

func TestTestNode_DelaysThenReturnsConfiguredStatus(t *testing.T) {
	timers := timerq.New()
	defer timers.Close()
	n := NewTestNode("mock", "u1", "root.mock", newCfg(), bhtype.Failure, 10*time.Millisecond, timers)

	st, err := n.ExecuteTick(context.Background())
	if err != nil || st != bhtype.Running {
		t.Fatalf("first tick = %v, %v, want Running", st, err)
	}
	time.Sleep(15 * time.Millisecond)
	st, err = n.ExecuteTick(context.Background())
	if err != nil || st != bhtype.Failure {
		t.Fatalf("second tick = %v, %v, want Failure", st, err)
	}
	if n.TickCount != 2 {
		t.Fatalf("TickCount = %d, want 2", n.TickCount)
	}
}

func TestTestNode_HaltCancelsPendingTimer(t *testing.T) {
	timers := timerq.New()
	defer timers.Close()
	n := NewTestNode("mock", "u1", "root.mock", newCfg(), bhtype.Success, 20*time.Millisecond, timers)

	st, err := n.ExecuteTick(context.Background())
	if err != nil || st != bhtype.Running {
		t.Fatalf("first tick = %v, %v, want Running", st, err)
	}
	n.HaltNode()
	if n.HaltCount != 1 {
		t.Fatalf("HaltCount = %d, want 1", n.HaltCount)
	}
	time.Sleep(30 * time.Millisecond)
	if n.TickCount != 1 {
		t.Fatalf("TickCount = %d, want 1", n.TickCount)
	}
	n.mu.Lock()
	fired := n.fired
	n.mu.Unlock()
	if fired {
		t.Fatal("timer fired after HaltNode; it should have been cancelled")
	}
}

func TestTestNode_RunsOutcomeAndPostScripts(t *testing.T) {
	cfg := newCfg()
	n := NewTestNode("mock", "u1", "root.mock", cfg, bhtype.Success, 0, timerq.New())
	n.SuccessScript = mustCompileScript(t, "success_marker := 1")
	n.FailureScript = mustCompileScript(t, "failure_marker := 1")
	n.PostScript = mustCompileScript(t, "post_marker := 1")

	if _, err := n.ExecuteTick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if _, ok := blackboard.TryGet[int64](cfg.BB, "success_marker"); !ok {
		t.Fatal("success_marker should have been set on a Success outcome")
	}
	if _, ok := blackboard.TryGet[int64](cfg.BB, "failure_marker"); ok {
		t.Fatal("failure_marker should not run on a Success outcome")
	}
	if _, ok := blackboard.TryGet[int64](cfg.BB, "post_marker"); !ok {
		t.Fatal("post_marker should always run")
	}
}

func mustCompileScript(t *testing.T, src string) *script.CompiledScript {
	t.Helper()
	cs, err := script.Compile(src)
	if err != nil {
		t.Fatalf("compile %q: %v", src, err)
	}
	return cs
}

func TestSetAndUnsetBlackboard(t *testing.T) {
	bb := blackboard.New()
	cfg := btnode.NewConfig(bb, script.NewEnumTable(), bhtype.PortList{})

	setNode := SetBlackboard("set", "u1", "root.set", cfg, bb, "k", bhtype.NewInt(7))
	if _, err := setNode.ExecuteTick(context.Background()); err != nil {
		t.Fatal(err)
	}
	v, err := blackboard.Get[int64](bb, "k")
	if err != nil || v != 7 {
		t.Fatalf("k = %v, %v, want 7", v, err)
	}

	unsetNode := UnsetBlackboard("unset", "u2", "root.unset", cfg, bb, "k")
	if _, err := unsetNode.ExecuteTick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := bb.GetAny("k"); err == nil {
		t.Fatal("expected k to be unset")
	}
}
