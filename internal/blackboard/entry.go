package blackboard

import (
	"sync"
	"time"

	"github.com/danshapiro/bhtree/internal/bherr"
	"github.com/danshapiro/bhtree/internal/bhtype"
)

// Entry is a single blackboard slot: the current value, its declared type
// (the "port info"), a monotonic write sequence, a stamp, and the mutex
// protecting them. Once DeclaredType is set to something other than "any",
// later writes must convert into it or fail with ConstructionError/RuntimeError
// as appropriate for the caller.
type Entry struct {
	mu sync.Mutex

	value        bhtype.Any
	declaredType string
	converter    bhtype.Converter
	seq          uint64
	stamp        time.Duration
}

func newEntry(declaredType string, converter bhtype.Converter) *Entry {
	if declaredType == "" {
		declaredType = "any"
	}
	return &Entry{declaredType: declaredType, converter: converter}
}

// Snapshot is an atomic, consistent read of an entry's value and timestamp.
type Snapshot struct {
	Value bhtype.Any
	Stamp bhtype.Timestamp
}

func (e *Entry) read() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{Value: e.value, Stamp: bhtype.Timestamp{SequenceID: e.seq, Time: e.stamp}}
}

func (e *Entry) declared() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.declaredType
}

// write applies the coercion rule from spec §4.2: the first write (when
// DeclaredType is still "any" and the entry was never written) adopts the
// incoming kind as-is; later writes into a non-"any" entry must convert, a
// string with a port converter parses, and number<->number widening between
// int/uint/double is allowed.
func (e *Entry) write(v bhtype.Any, now time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.declaredType == "any" {
		// Unconstrained entries simply adopt whatever is written; the
		// declared type only narrows once a typed port has written here.
		e.value = v
	} else {
		converted, err := e.coerce(v)
		if err != nil {
			return err
		}
		e.value = converted
	}
	e.seq++
	e.stamp = now
	return nil
}

// writeTyped is used by the first write through a typed port: it adopts
// declaredType as the entry's permanent type if the entry has never been
// written (seq == 0), then defers to write's coercion rule.
func (e *Entry) writeTyped(v bhtype.Any, declaredType string, now time.Duration) error {
	e.mu.Lock()
	if e.seq == 0 && e.declaredType == "any" && declaredType != "" && declaredType != "any" {
		e.declaredType = declaredType
	}
	e.mu.Unlock()
	return e.write(v, now)
}

func (e *Entry) coerce(v bhtype.Any) (bhtype.Any, error) {
	switch {
	case e.value.IsNone():
		// Entry has a declared type but was never actually written (e.g. a
		// port default registered it); accept the first real value if it
		// matches or can be parsed.
	}
	if v.TypeName() == e.declaredType {
		return v, nil
	}
	if v.IsString() && e.converter != nil {
		converted, err := e.converter(v.String())
		if err != nil {
			return bhtype.Any{}, bherr.NewRuntime(nil, "blackboard: cannot parse %q as %s: %v", v.String(), e.declaredType, err)
		}
		return converted, nil
	}
	switch e.declaredType {
	case "int":
		n, err := v.Int64()
		if err != nil {
			return bhtype.Any{}, bherr.NewRuntime(nil, "blackboard: type mismatch writing %s into int entry: %v", v.TypeName(), err)
		}
		return bhtype.NewInt(n), nil
	case "double":
		f, err := v.Float64()
		if err != nil {
			return bhtype.Any{}, bherr.NewRuntime(nil, "blackboard: type mismatch writing %s into double entry: %v", v.TypeName(), err)
		}
		return bhtype.NewFloat(f), nil
	case "uint":
		n, err := v.Int64()
		if err != nil || n < 0 {
			return bhtype.Any{}, bherr.NewRuntime(nil, "blackboard: type mismatch writing %s into uint entry", v.TypeName())
		}
		return bhtype.NewUint(uint64(n)), nil
	case "bool":
		b, err := v.Bool()
		if err != nil {
			return bhtype.Any{}, bherr.NewRuntime(nil, "blackboard: type mismatch writing %s into bool entry: %v", v.TypeName(), err)
		}
		return bhtype.NewBool(b), nil
	case "string":
		return bhtype.NewString(v.String()), nil
	default:
		return bhtype.Any{}, bherr.NewRuntime(nil, "blackboard: type mismatch: entry declared %s, got %s", e.declaredType, v.TypeName())
	}
}

// Lock acquires the entry mutex and returns a guard the caller must Unlock,
// backing get_any_locked for pointer-valued ports.
func (e *Entry) Lock() *LockedAny {
	e.mu.Lock()
	return &LockedAny{e: e}
}

// LockedAny holds an entry's mutex for the lifetime of the guard, giving the
// caller read/write access to the raw Any without races against concurrent
// blackboard writers.
type LockedAny struct {
	e        *Entry
	released bool
}

func (l *LockedAny) Value() bhtype.Any { return l.e.value }

func (l *LockedAny) Set(v bhtype.Any) { l.e.value = v }

// Unlock releases the entry mutex. Calling it more than once is a no-op.
func (l *LockedAny) Unlock() {
	if l.released {
		return
	}
	l.released = true
	l.e.mu.Unlock()
}
