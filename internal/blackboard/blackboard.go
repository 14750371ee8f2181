// Package blackboard implements the scoped, typed key/value store that
// backs node ports: per-entry locking, parent chaining for autoremap and
// explicit subtree remaps, `@` root-scope keys, and timestamped entries.
package blackboard

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/danshapiro/bhtree/internal/bherr"
	"github.com/danshapiro/bhtree/internal/bhtype"
)

// Blackboard is a scoped mapping from key to Entry, plus the auxiliary
// remap/autoremap/parent state from spec §3.
type Blackboard struct {
	mu sync.RWMutex

	entries map[string]*Entry

	internalToExternal map[string]string
	externalToInternal map[string]string
	autoremap          bool

	parent *Blackboard
	root   *Blackboard

	epoch time.Time
	runID string // ULID minted at creation; carried into snapshots for provenance
}

// New creates a root blackboard (no parent).
func New() *Blackboard {
	return newScoped(nil)
}

// NewChild creates a blackboard scoped under parent, as happens once per
// subtree instance at tree build time.
func NewChild(parent *Blackboard) *Blackboard {
	if parent == nil {
		return New()
	}
	return newScoped(parent)
}

func newScoped(parent *Blackboard) *Blackboard {
	bb := &Blackboard{
		entries:            make(map[string]*Entry),
		internalToExternal: make(map[string]string),
		externalToInternal: make(map[string]string),
		parent:             parent,
	}
	if parent != nil {
		bb.root = parent.root
		bb.epoch = parent.epoch
	} else {
		bb.root = bb
		bb.epoch = time.Now()
	}
	bb.runID = ulid.Make().String()
	return bb
}

// Parent returns the enclosing blackboard, or nil at the root.
func (bb *Blackboard) Parent() *Blackboard { return bb.parent }

// Root returns the blackboard at the top of the parent chain.
func (bb *Blackboard) Root() *Blackboard { return bb.root }

func (bb *Blackboard) now() time.Duration { return time.Since(bb.epoch) }

// AddSubtreeRemapping wires an internal key to a parent-scope key,
// bidirectionally: a lookup for `internal` inside this scope resolves
// against `external` in the parent, and the reverse index lets debug output
// explain why a name isn't found locally.
func (bb *Blackboard) AddSubtreeRemapping(internal, external string) {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	bb.internalToExternal[internal] = external
	bb.externalToInternal[external] = internal
}

// EnableAutoremap sets the flag causing unmatched local lookups to fall
// back to the parent blackboard by identical name.
func (bb *Blackboard) EnableAutoremap(flag bool) {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	bb.autoremap = flag
}

// resolution describes where a key ultimately resolved.
type resolution struct {
	bb  *Blackboard
	key string
}

// resolve implements the key-resolution algorithm from spec §4.2:
//  1. `@key` always resolves against the root, stripping the `@`.
//  2. an explicit remap replaces the key and restarts resolution in the parent.
//  3. autoremap, if the key is locally absent, restarts resolution in the parent.
//  4. otherwise resolves locally.
//
// forWrite does not change the outcome: reads and writes resolve the same
// way, and step 3's "absent" test looks only at this scope's own entries.
func (bb *Blackboard) resolve(key string, forWrite bool) resolution {
	key = strings.TrimPrefix(strings.TrimSuffix(key, "}"), "{")
	return bb.resolveStripped(key, forWrite)
}

func (bb *Blackboard) resolveStripped(key string, forWrite bool) resolution {
	if strings.HasPrefix(key, "@") {
		return resolution{bb: bb.root, key: strings.TrimPrefix(key, "@")}
	}

	bb.mu.RLock()
	external, hasRemap := bb.internalToExternal[key]
	_, hasLocal := bb.entries[key]
	autoremap := bb.autoremap
	bb.mu.RUnlock()

	if hasRemap && bb.parent != nil {
		return bb.parent.resolveStripped(external, forWrite)
	}
	if autoremap && !hasLocal && bb.parent != nil {
		return bb.parent.resolveStripped(key, forWrite)
	}
	return resolution{bb: bb, key: key}
}

func (bb *Blackboard) entryAt(key string, createIfAbsent bool, declaredType string, conv bhtype.Converter) (*Entry, bool) {
	bb.mu.RLock()
	e, ok := bb.entries[key]
	bb.mu.RUnlock()
	if ok || !createIfAbsent {
		return e, ok
	}

	bb.mu.Lock()
	defer bb.mu.Unlock()
	if e, ok = bb.entries[key]; ok {
		return e, true
	}
	e = newEntry(declaredType, conv)
	bb.entries[key] = e
	return e, true
}

// SetAny creates-or-updates key with the given declared type hint (used by
// typed ports on first write) and converter (for string-literal coercion).
// declaredType may be "" (treated as "any").
func (bb *Blackboard) SetAny(key string, v bhtype.Any, declaredType string, conv bhtype.Converter) error {
	r := bb.resolve(key, true)
	e, _ := r.bb.entryAt(r.key, true, declaredType, conv)
	if err := e.writeTyped(v, declaredType, r.bb.now()); err != nil {
		return bherr.NewRuntime([]string{fmt.Sprintf("key=%s", key)}, "%v", err)
	}
	return nil
}

// GetAny reads key's current value. Returns an error if the key has never
// been written anywhere along the resolution chain.
func (bb *Blackboard) GetAny(key string) (bhtype.Any, error) {
	r := bb.resolve(key, false)
	e, ok := r.bb.entryAt(r.key, false, "", nil)
	if !ok {
		return bhtype.Any{}, bherr.NewRuntime(nil, "blackboard: key %q not found", key)
	}
	return e.read().Value, nil
}

// TryGetAny reads key's current value, returning ok=false instead of an
// error when the key is absent.
func (bb *Blackboard) TryGetAny(key string) (bhtype.Any, bool) {
	r := bb.resolve(key, false)
	e, ok := r.bb.entryAt(r.key, false, "", nil)
	if !ok {
		return bhtype.Any{}, false
	}
	return e.read().Value, true
}

// GetStamped reads key's value together with its timestamp atomically.
func (bb *Blackboard) GetStamped(key string) (bhtype.Any, bhtype.Timestamp, error) {
	r := bb.resolve(key, false)
	e, ok := r.bb.entryAt(r.key, false, "", nil)
	if !ok {
		return bhtype.Any{}, bhtype.Timestamp{}, bherr.NewRuntime(nil, "blackboard: key %q not found", key)
	}
	snap := e.read()
	return snap.Value, snap.Stamp, nil
}

// GetEntry returns a shared handle on the resolved entry for scripting and
// observation use, creating it (as an "any"-typed entry) if absent.
func (bb *Blackboard) GetEntry(key string) *Entry {
	r := bb.resolve(key, false)
	e, _ := r.bb.entryAt(r.key, true, "any", nil)
	return e
}

// GetAnyLocked resolves key and returns a guard holding the entry's mutex,
// backing ports whose value is a pointer the caller will mutate in place.
func (bb *Blackboard) GetAnyLocked(key string) *LockedAny {
	r := bb.resolve(key, true)
	e, _ := r.bb.entryAt(r.key, true, "any", nil)
	return e.Lock()
}

// DeclaredType returns the declared type of key, or "" if the key doesn't
// exist anywhere in the resolution chain.
func (bb *Blackboard) DeclaredType(key string) (string, bool) {
	r := bb.resolve(key, false)
	e, ok := r.bb.entryAt(r.key, false, "", nil)
	if !ok {
		return "", false
	}
	return e.declared(), true
}

// DebugMessage dumps local entries and their declared types, in key order.
func (bb *Blackboard) DebugMessage() string {
	bb.mu.RLock()
	keys := make([]string, 0, len(bb.entries))
	for k := range bb.entries {
		keys = append(keys, k)
	}
	bb.mu.RUnlock()
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		e, _ := bb.entryAt(k, false, "", nil)
		snap := e.read()
		fmt.Fprintf(&b, "%s (%s) = %s\n", k, e.declared(), snap.Value.String())
	}
	return b.String()
}

// RunID returns the ULID minted when this blackboard's root was created,
// used to tag backup/restore snapshots with their provenance.
func (bb *Blackboard) RunID() string { return bb.root.runID }

// Unset removes key from the blackboard along its resolution chain. It is
// a no-op if the key was never written.
func (bb *Blackboard) Unset(key string) {
	r := bb.resolve(key, true)
	r.bb.mu.Lock()
	delete(r.bb.entries, r.key)
	r.bb.mu.Unlock()
}
