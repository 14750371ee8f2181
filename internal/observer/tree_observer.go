package observer

import (
	"context"
	"sync"

	"github.com/danshapiro/bhtree/internal/bherr"
	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/btnode"
)

// NodeStats is one node's running statistics, per spec §4.9.
type NodeStats struct {
	TickCount        uint64
	SuccessCount     uint64
	FailureCount     uint64
	SkipCount        uint64
	TransitionsCount uint64
	LastTimestamp    bhtype.Timestamp
	LastResult       bhtype.Status
	CurrentStatus    bhtype.Status
}

// TreeObserver aggregates per-node statistics for an entire tree, built
// once at construction by a recursive walk that also indexes every node
// by its hierarchical path — crossing SubTree boundaries so a SubTree
// node and its root child land under the same path prefix.
type TreeObserver struct {
	mu        sync.Mutex
	stats     map[string]*NodeStats // keyed by UID
	pathToUID map[string][]string   // a path can be shared if sibling trees reuse names; first entry wins lookups

	logger *StatusChangeLogger
}

// NewTreeObserver walks root, recording every node's UID and path, then
// attaches a StatusChangeLogger (transitions) and per-node tick callbacks
// (tick_count, which counts actual dispatches to DoTick — a node whose
// tick short-circuits on a pre-condition is not counted, since no concrete
// work happened).
func NewTreeObserver(root btnode.Node) *TreeObserver {
	o := &TreeObserver{
		stats:     map[string]*NodeStats{},
		pathToUID: map[string][]string{},
	}
	walk(root, func(n btnode.Node) {
		o.stats[n.UID()] = &NodeStats{CurrentStatus: n.Status()}
		o.pathToUID[n.FullPath()] = append(o.pathToUID[n.FullPath()], n.UID())

		if ca, ok := n.(coreAccessor); ok {
			core := ca.CoreRef()
			uid := n.UID()
			core.PreTickCallback = func(ctx context.Context, c *btnode.Core) {
				o.mu.Lock()
				if st := o.stats[uid]; st != nil {
					st.TickCount++
				}
				o.mu.Unlock()
			}
		}
	})
	o.logger = NewStatusChangeLogger(root, o.onTransition)
	o.logger.EnableTransitionToIdle(true)
	return o
}

func (o *TreeObserver) onTransition(ts bhtype.Timestamp, n btnode.Node, prev, cur bhtype.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.stats[n.UID()]
	if st == nil {
		return
	}
	st.TransitionsCount++
	st.LastTimestamp = ts
	st.CurrentStatus = cur
	switch cur {
	case bhtype.Success:
		st.SuccessCount++
		st.LastResult = cur
	case bhtype.Failure:
		st.FailureCount++
		st.LastResult = cur
	case bhtype.Skipped:
		st.SkipCount++
		st.LastResult = cur
	}
}

// StatsByUID returns a copy of the named node's statistics.
func (o *TreeObserver) StatsByUID(uid string) (NodeStats, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.stats[uid]
	if !ok {
		return NodeStats{}, false
	}
	return *st, true
}

// StatsByPath looks up a node by its hierarchical path (e.g.
// "MainTree/Sequence/Action"). If more than one node shares a path (only
// possible across distinct trees sharing identical tag sequences), the
// first one discovered by the construction-time walk is returned.
func (o *TreeObserver) StatsByPath(path string) (NodeStats, bool) {
	o.mu.Lock()
	uids, ok := o.pathToUID[path]
	o.mu.Unlock()
	if !ok || len(uids) == 0 {
		return NodeStats{}, false
	}
	return o.StatsByUID(uids[0])
}

// PathStats returns a snapshot of every indexed node's statistics, keyed
// by the hierarchical path recorded at construction time. Intended for a
// host (e.g. cmd/bhtree) printing a full run report.
func (o *TreeObserver) PathStats() map[string]NodeStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]NodeStats, len(o.pathToUID))
	for path, uids := range o.pathToUID {
		if len(uids) == 0 {
			continue
		}
		if st, ok := o.stats[uids[0]]; ok {
			out[path] = *st
		}
	}
	return out
}

// UIDForPath returns the UID recorded for path at construction time.
func (o *TreeObserver) UIDForPath(path string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	uids, ok := o.pathToUID[path]
	if !ok || len(uids) == 0 {
		return "", false
	}
	return uids[0], true
}

// Close releases the observer's subscriptions. It does not clear
// PreTickCallback on the tree's nodes, since tick counting is harmless
// to leave wired after Close and no other observer is expected to share
// the same tree instance.
func (o *TreeObserver) Close() {
	o.logger.Close()
}

// errNoSuchNode is returned by lookups against a UID the observer never
// indexed (a node built after the observer was constructed, or a typo).
var errNoSuchNode = bherr.NewRuntime(nil, "observer: no such node")

// MustStatsByUID panics-free variant kept for symmetry with StatsByUID;
// returns errNoSuchNode instead of the ok-bool when the UID is unknown.
func (o *TreeObserver) MustStatsByUID(uid string) (NodeStats, error) {
	st, ok := o.StatsByUID(uid)
	if !ok {
		return NodeStats{}, errNoSuchNode
	}
	return st, nil
}
