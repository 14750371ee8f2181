package action

import (
	"context"
	"time"

	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/blackboard"
	"github.com/danshapiro/bhtree/internal/btnode"
)

// sleepHooks adapts the Sleep timing logic to StatefulHooks so Running
// is a legal return (SyncAction explicitly forbids it).
type sleepHooks struct {
	duration time.Duration
	deadline time.Time
}

func (h *sleepHooks) OnStart(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
	h.deadline = time.Now().Add(h.duration)
	return h.OnRunning(ctx, cfg)
}

func (h *sleepHooks) OnRunning(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
	if time.Now().Before(h.deadline) {
		return bhtype.Running, nil
	}
	return bhtype.Success, nil
}

func (h *sleepHooks) OnHalted(cfg *btnode.Config) {}

// Sleep is the supplemented timed-wait leaf (SPEC_FULL.md §2.3's Sleep
// action), built as a StatefulAction since it genuinely spans ticks.
func Sleep(name, uid, path string, cfg *btnode.Config, duration time.Duration) *StatefulAction {
	return NewStatefulAction(name, uid, path, cfg, &sleepHooks{duration: duration})
}

// SetBlackboard writes a literal value into the blackboard key named by
// key, then reports Success — SPEC_FULL.md §2.3's
// SetBlackboard supplemented action, ported from BehaviorTree.CPP's node
// of the same name.
func SetBlackboard(name, uid, path string, cfg *btnode.Config, bb *blackboard.Blackboard, key string, value bhtype.Any) *SyncAction {
	fn := func(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
		if err := bb.SetAny(key, value, value.TypeName(), nil); err != nil {
			return "", err
		}
		return bhtype.Success, nil
	}
	return NewSyncAction(name, uid, path, cfg, fn)
}

// UnsetBlackboard removes a blackboard key, reporting Success whether or
// not the key existed.
func UnsetBlackboard(name, uid, path string, cfg *btnode.Config, bb *blackboard.Blackboard, key string) *SyncAction {
	fn := func(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
		bb.Unset(key)
		return bhtype.Success, nil
	}
	return NewSyncAction(name, uid, path, cfg, fn)
}
