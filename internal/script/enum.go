package script

import "sync"

// EnumTable is the registered-enum table scripts resolve bare identifiers
// against when comparing a string to a number (spec §4.3's
// "string_to_double ... honors the enum table"). It is immutable after
// factory setup, per spec §5.
type EnumTable struct {
	mu     sync.RWMutex
	values map[string]int64
}

func NewEnumTable() *EnumTable {
	return &EnumTable{values: make(map[string]int64)}
}

// Register adds (or overwrites) a single enum constant.
func (t *EnumTable) Register(name string, value int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[name] = value
}

// RegisterMany adds a whole enum's worth of name->value pairs in one call,
// the equivalent of register_scripting_enums<Enum>().
func (t *EnumTable) RegisterMany(values map[string]int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range values {
		t.values[k] = v
	}
}

func (t *EnumTable) Lookup(name string) (int64, bool) {
	if t == nil {
		return 0, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[name]
	return v, ok
}
