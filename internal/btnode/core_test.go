package btnode

import (
	"context"
	"testing"

	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/blackboard"
	"github.com/danshapiro/bhtree/internal/script"
)

// recordingHooks counts DoTick/DoHalt calls and returns a fixed status.
type recordingHooks struct {
	ticks  int
	halts  int
	result bhtype.Status
	err    error
}

func (h *recordingHooks) DoTick(ctx context.Context) (bhtype.Status, error) {
	h.ticks++
	return h.result, h.err
}

func (h *recordingHooks) DoHalt() {
	h.halts++
}

func newTestCore(t *testing.T, hooks Hooks) (*Core, *Config) {
	t.Helper()
	bb := blackboard.New()
	enums := script.NewEnumTable()
	cfg := NewConfig(bb, enums, bhtype.PortList{})
	return NewCore("leaf", "Leaf", "uid-1", "root.leaf", cfg, hooks), cfg
}

func mustCompile(t *testing.T, src string) *script.CompiledScript {
	t.Helper()
	cs, err := script.Compile(src)
	if err != nil {
		t.Fatalf("compile %q: %v", src, err)
	}
	return cs
}

func TestCore_PlainTickDelegatesToHooks(t *testing.T) {
	hooks := &recordingHooks{result: bhtype.Success}
	core, _ := newTestCore(t, hooks)

	status, err := core.ExecuteTick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if status != bhtype.Success {
		t.Fatalf("status = %v, want Success", status)
	}
	if hooks.ticks != 1 {
		t.Fatalf("ticks = %d, want 1", hooks.ticks)
	}
}

func TestCore_FailureIfShortCircuitsBeforeConcreteTick(t *testing.T) {
	hooks := &recordingHooks{result: bhtype.Success}
	core, cfg := newTestCore(t, hooks)
	cfg.Pre["_failureIf"] = mustCompile(t, "1 == 1")

	status, err := core.ExecuteTick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if status != bhtype.Failure {
		t.Fatalf("status = %v, want Failure", status)
	}
	if hooks.ticks != 0 {
		t.Fatalf("concrete tick should not have run, ticks = %d", hooks.ticks)
	}
}

func TestCore_PreConditionOrderFailureBeforeSuccess(t *testing.T) {
	hooks := &recordingHooks{result: bhtype.Success}
	core, cfg := newTestCore(t, hooks)
	cfg.Pre["_failureIf"] = mustCompile(t, "1 == 1")
	cfg.Pre["_successIf"] = mustCompile(t, "1 == 1")

	status, err := core.ExecuteTick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if status != bhtype.Failure {
		t.Fatalf("status = %v, want Failure (checked before _successIf)", status)
	}
}

func TestCore_PostOnSuccessRunsOnlyOnSuccess(t *testing.T) {
	hooks := &recordingHooks{result: bhtype.Failure}
	core, cfg := newTestCore(t, hooks)

	bb := cfg.BB
	cfg.Post["_onSuccess"] = mustCompile(t, "marker := 1")

	if _, err := core.ExecuteTick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if _, ok := blackboard.TryGet[int64](bb, "marker"); ok {
		t.Fatalf("_onSuccess should not have run on a Failure tick")
	}

	hooks.result = bhtype.Success
	if _, err := core.ExecuteTick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	v, ok := blackboard.TryGet[int64](bb, "marker")
	if !ok || v != 1 {
		t.Fatalf("_onSuccess should have set marker=1, got %v, %v", v, ok)
	}
}

func TestCore_WhileFalseSkipsWithoutTicking(t *testing.T) {
	hooks := &recordingHooks{result: bhtype.Success}
	core, cfg := newTestCore(t, hooks)
	cfg.Pre["_while"] = mustCompile(t, "1 == 2")

	status, err := core.ExecuteTick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if status != bhtype.Skipped {
		t.Fatalf("status = %v, want Skipped", status)
	}
	if hooks.ticks != 0 {
		t.Fatalf("concrete tick should not run when _while is false")
	}
}

func TestCore_WhileBecomingFalseHaltsRunningNode(t *testing.T) {
	hooks := &recordingHooks{result: bhtype.Running}
	core, cfg := newTestCore(t, hooks)

	if err := blackboard.Set(cfg.BB, "gate", int64(1)); err != nil {
		t.Fatal(err)
	}
	cfg.Pre["_while"] = mustCompile(t, "gate == 1")

	status, err := core.ExecuteTick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if status != bhtype.Running {
		t.Fatalf("first tick status = %v, want Running", status)
	}

	if err := blackboard.Set(cfg.BB, "gate", int64(0)); err != nil {
		t.Fatal(err)
	}
	status, err = core.ExecuteTick(context.Background())
	if err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if status != bhtype.Skipped {
		t.Fatalf("status after _while flips false = %v, want Skipped", status)
	}
	if hooks.halts != 1 {
		t.Fatalf("halts = %d, want 1", hooks.halts)
	}
}

func TestCore_FailureIfTakesPriorityOverWhileBecomingFalse(t *testing.T) {
	hooks := &recordingHooks{result: bhtype.Running}
	core, cfg := newTestCore(t, hooks)

	if err := blackboard.Set(cfg.BB, "gate", int64(1)); err != nil {
		t.Fatal(err)
	}
	cfg.Pre["_while"] = mustCompile(t, "gate == 1")

	status, err := core.ExecuteTick(context.Background())
	if err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	if status != bhtype.Running {
		t.Fatalf("tick 1 status = %v, want Running", status)
	}

	// tick 2: _while flips false AND _failureIf is true. _failureIf is
	// earlier in the fixed order, so it must win even though _while also
	// transitioned true->false this same tick.
	if err := blackboard.Set(cfg.BB, "gate", int64(0)); err != nil {
		t.Fatal(err)
	}
	cfg.Pre["_failureIf"] = mustCompile(t, "1 == 1")

	status, err = core.ExecuteTick(context.Background())
	if err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	if status != bhtype.Failure {
		t.Fatalf("tick 2 status = %v, want Failure (checked before _while)", status)
	}
}

func TestCore_SubscribersNotifiedOnlyOnTransition(t *testing.T) {
	hooks := &recordingHooks{result: bhtype.Success}
	core, _ := newTestCore(t, hooks)

	var transitions int
	sub := core.Subscribe(func(ts bhtype.Timestamp, n *Core, prev, cur bhtype.Status) {
		transitions++
	})
	defer sub.Unsubscribe()

	if _, err := core.ExecuteTick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := core.ExecuteTick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if transitions != 1 {
		t.Fatalf("transitions = %d, want 1 (Idle->Success only once)", transitions)
	}
}

func TestCore_HaltNodeFiresOnHaltedOnlyWhenRunning(t *testing.T) {
	hooks := &recordingHooks{result: bhtype.Running}
	core, cfg := newTestCore(t, hooks)
	cfg.Post["_onHalted"] = mustCompile(t, "marker := 1")

	if _, err := core.ExecuteTick(context.Background()); err != nil {
		t.Fatal(err)
	}
	core.HaltNode()

	v, ok := blackboard.TryGet[int64](cfg.BB, "marker")
	if !ok || v != 1 {
		t.Fatalf("_onHalted should have run after halting a Running node, got %v, %v", v, ok)
	}
	if hooks.halts != 1 {
		t.Fatalf("halts = %d, want 1", hooks.halts)
	}
	if core.Status() != bhtype.Idle {
		t.Fatalf("status after halt = %v, want Idle", core.Status())
	}
}
