package blackboard

import (
	"encoding/json"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/danshapiro/bhtree/internal/bhtype"
)

// EntrySnapshot is the native, codec-agnostic representation of one
// blackboard entry. Only the five primitive Any kinds are captured here;
// KindOther values (pointers, user types) are out of scope for backup/
// restore, matching the spec's note that the JSON type-export layer for
// arbitrary registered types is an external, out-of-scope collaborator.
type EntrySnapshot struct {
	Key        string `json:"key" msgpack:"key"`
	Kind       string `json:"kind" msgpack:"kind"`
	Int        int64  `json:"int,omitempty" msgpack:"int,omitempty"`
	Uint       uint64 `json:"uint,omitempty" msgpack:"uint,omitempty"`
	Float      float64 `json:"float,omitempty" msgpack:"float,omitempty"`
	Bool       bool   `json:"bool,omitempty" msgpack:"bool,omitempty"`
	Str        string `json:"str,omitempty" msgpack:"str,omitempty"`
	SequenceID uint64 `json:"sequence_id" msgpack:"sequence_id"`
	StampNanos int64  `json:"stamp_nanos" msgpack:"stamp_nanos"`
}

// BoardSnapshot is the full native snapshot of one blackboard scope: the
// struct both BackupJSON/RestoreFromJSON and Backup/RestoreFromBackup
// (msgpack) encode —
// "one struct, two codecs" per the spec's native-snapshot-wrapped-by-JSON
// design.
type BoardSnapshot struct {
	RunID   string          `json:"run_id" msgpack:"run_id"`
	Entries []EntrySnapshot `json:"entries" msgpack:"entries"`
}

// Snapshot captures this scope's local entries (not its parent's) in a
// deterministic key order.
func (bb *Blackboard) Snapshot() BoardSnapshot {
	bb.mu.RLock()
	keys := make([]string, 0, len(bb.entries))
	for k := range bb.entries {
		keys = append(keys, k)
	}
	entries := make(map[string]*Entry, len(bb.entries))
	for k, e := range bb.entries {
		entries[k] = e
	}
	bb.mu.RUnlock()
	sort.Strings(keys)

	out := BoardSnapshot{RunID: bb.RunID(), Entries: make([]EntrySnapshot, 0, len(keys))}
	for _, k := range keys {
		e := entries[k]
		snap := e.read()
		es := EntrySnapshot{
			Key:        k,
			Kind:       snap.Value.TypeName(),
			SequenceID: snap.Stamp.SequenceID,
			StampNanos: int64(snap.Stamp.Time),
		}
		switch snap.Value.Kind() {
		case bhtype.KindInt:
			es.Int, _ = snap.Value.Int64()
		case bhtype.KindUint:
			u, _ := snap.Value.Int64()
			es.Uint = uint64(u)
		case bhtype.KindFloat:
			es.Float, _ = snap.Value.Float64()
		case bhtype.KindBool:
			es.Bool, _ = snap.Value.Bool()
		case bhtype.KindString:
			es.Str = snap.Value.String()
		default:
			continue // KindOther / KindNone: not backed up natively
		}
		out.Entries = append(out.Entries, es)
	}
	return out
}

// Restore applies a BoardSnapshot's entries back into bb as fresh writes
// (each bumps the entry's sequence_id, consistent with the monotonicity
// invariant — a restore is a write, not a time-machine).
func (bb *Blackboard) Restore(snap BoardSnapshot) error {
	for _, es := range snap.Entries {
		var a bhtype.Any
		switch es.Kind {
		case "int":
			a = bhtype.NewInt(es.Int)
		case "uint":
			a = bhtype.NewUint(es.Uint)
		case "double":
			a = bhtype.NewFloat(es.Float)
		case "bool":
			a = bhtype.NewBool(es.Bool)
		case "string":
			a = bhtype.NewString(es.Str)
		default:
			continue
		}
		if err := bb.SetAny(es.Key, a, es.Kind, nil); err != nil {
			return err
		}
	}
	return nil
}

// Backup encodes this scope's snapshot with msgpack — the native baseline
// format BackupJSON wraps.
func (bb *Blackboard) Backup() ([]byte, error) {
	return msgpack.Marshal(bb.Snapshot())
}

// RestoreFromBackup decodes a msgpack-encoded BoardSnapshot and restores it.
func (bb *Blackboard) RestoreFromBackup(data []byte) error {
	var snap BoardSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return err
	}
	return bb.Restore(snap)
}

// BackupJSON encodes this scope's snapshot as JSON, for hosts that prefer a
// human-readable backup format over the msgpack baseline.
func (bb *Blackboard) BackupJSON() ([]byte, error) {
	return json.Marshal(bb.Snapshot())
}

// RestoreFromJSON decodes a JSON-encoded BoardSnapshot and restores it.
func (bb *Blackboard) RestoreFromJSON(data []byte) error {
	var snap BoardSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	return bb.Restore(snap)
}
