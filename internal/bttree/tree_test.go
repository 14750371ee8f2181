package bttree

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/danshapiro/bhtree/internal/action"
	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/blackboard"
	"github.com/danshapiro/bhtree/internal/btnode"
)

// countingAction returns Running for the first n-1 ticks, then Success.
type countingAction struct {
	remaining int
}

func newCountingLeaf(remaining int) btnode.Node {
	c := &countingAction{remaining: remaining}
	cfg := btnode.NewConfig(blackboard.New(), nil, bhtype.PortList{})
	return action.NewStatefulAction("Countdown", "uid-countdown", "Main/Countdown", cfg, c)
}

func (c *countingAction) OnStart(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
	return c.OnRunning(ctx, cfg)
}

func (c *countingAction) OnRunning(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
	c.remaining--
	if c.remaining <= 0 {
		return bhtype.Success, nil
	}
	return bhtype.Running, nil
}

func (c *countingAction) OnHalted(cfg *btnode.Config) {}

func TestTree_TickOnceReturnsRunningUntilDone(t *testing.T) {
	bb := blackboard.New()
	root := newCountingLeaf(2)
	tree := New(root, bb)
	defer tree.Close()

	st, err := tree.TickOnce(context.Background())
	if err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	if st != bhtype.Running {
		t.Fatalf("tick 1 status = %v, want Running", st)
	}

	st, err = tree.TickOnce(context.Background())
	if err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	if st != bhtype.Success {
		t.Fatalf("tick 2 status = %v, want Success", st)
	}
}

func TestTree_TickWhileRunningDrivesToCompletion(t *testing.T) {
	bb := blackboard.New()
	root := newCountingLeaf(3)
	tree := New(root, bb)
	defer tree.Close()

	st, err := tree.TickWhileRunning(context.Background(), time.Millisecond)
	if err != nil {
		t.Fatalf("TickWhileRunning: %v", err)
	}
	if st != bhtype.Success {
		t.Fatalf("status = %v, want Success", st)
	}
}

func TestTree_SleepWokenByEmitWakeUpSignal(t *testing.T) {
	bb := blackboard.New()
	root := newCountingLeaf(1)
	tree := New(root, bb)
	defer tree.Close()

	woke := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tree.Sleep(context.Background(), time.Hour)
		close(woke)
	}()

	time.Sleep(10 * time.Millisecond) // let the goroutine reach Sleep
	tree.EmitWakeUpSignal()

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("Sleep was not interrupted by EmitWakeUpSignal")
	}
	wg.Wait()
}

func TestTree_SleepRespectsContextCancellation(t *testing.T) {
	bb := blackboard.New()
	root := newCountingLeaf(1)
	tree := New(root, bb)
	defer tree.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tree.Sleep(ctx, time.Hour)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Sleep did not return after context cancellation")
	}
}

func TestTree_SleepTimesOutWithoutSignal(t *testing.T) {
	bb := blackboard.New()
	root := newCountingLeaf(1)
	tree := New(root, bb)
	defer tree.Close()

	start := time.Now()
	tree.Sleep(context.Background(), 20*time.Millisecond)
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("Sleep returned before its timeout elapsed")
	}
}
