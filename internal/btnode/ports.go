package btnode

import (
	"strings"

	"github.com/danshapiro/bhtree/internal/bherr"
	"github.com/danshapiro/bhtree/internal/blackboard"
	"github.com/danshapiro/bhtree/internal/bhtype"
)

// pointerKey reports whether a remapping string is a blackboard pointer
// ("{key}") form, an identity remap ("{=}"), or a plain literal. The
// identity form resolves to a key equal to the port's own name, per spec
// §3 "the identity remap {=} meaning 'same name in parent'" — by the time a
// node ticks, that parent-scope wiring has already been established as an
// ordinary blackboard key of the same name in this node's own scope, so it
// is handled here identically to an explicit "{name}" pointer.
func pointerKey(remap, portName string) (key string, isPointer bool) {
	trimmed := strings.TrimSpace(remap)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return "", false
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(trimmed, "{"), "}")
	if inner == "=" {
		return portName, true
	}
	return inner, true
}

// IsBlackboardPointer reports whether remap is a "{key}" or "{=}" pointer
// form, as opposed to a plain literal. Exported for package registry's
// construction-time port validation (GetInput/SetOutput enforce the same
// rule lazily, at first use; registry checks it eagerly for every
// declared port before a tree is handed back to the caller).
func IsBlackboardPointer(remap string) bool {
	_, isPointer := pointerKey(remap, "")
	return isPointer
}

// literalToAny converts a literal XML attribute string into an Any using
// the port's converter if declared, else inferring from the declared type.
func literalToAny(lit string, port bhtype.Port) (bhtype.Any, error) {
	if port.Converter != nil {
		return port.Converter(lit)
	}
	switch port.TypeName {
	case "int":
		var a bhtype.Any
		n, err := bhtype.NewString(lit).Int64()
		if err != nil {
			return bhtype.Any{}, err
		}
		a = bhtype.NewInt(n)
		return a, nil
	case "double":
		f, err := bhtype.NewString(lit).Float64()
		if err != nil {
			return bhtype.Any{}, err
		}
		return bhtype.NewFloat(f), nil
	case "bool":
		b, err := bhtype.NewString(lit).Bool()
		if err != nil {
			return bhtype.Any{}, err
		}
		return bhtype.NewBool(b), nil
	default:
		return bhtype.NewString(lit), nil
	}
}

// GetInput resolves an input port: looks up its wiring in cfg.InputWiring,
// falling back to the port's declared default, then either parses a
// literal or reads a blackboard pointer through the full remap chain.
func GetInput[T any](cfg *Config, name string) (T, error) {
	var zero T
	port, ok := cfg.Ports.Get(name)
	if !ok {
		return zero, bherr.NewRuntime(nil, "btnode: port %q is not declared on this node", name)
	}

	remap, wired := cfg.InputWiring[name]
	if !wired {
		if !port.HasDefault {
			return zero, bherr.NewRuntime(nil, "btnode: required input port %q has no value and no default", name)
		}
		remap = port.Default
	}

	if key, isPointer := pointerKey(remap, name); isPointer {
		v, err := cfg.BB.GetAny(key)
		if err != nil {
			return zero, bherr.NewRuntime(nil, "btnode: input port %q: %v", name, err)
		}
		return anyTo[T](v)
	}

	a, err := literalToAny(remap, port)
	if err != nil {
		return zero, bherr.NewRuntime(nil, "btnode: input port %q: %v", name, err)
	}
	return anyTo[T](a)
}

// SetOutput resolves an output port and writes through the blackboard. Per
// spec §4.7 step 5, every output port must resolve to a blackboard pointer
// (enforced at construction time); a literal output wiring is a
// construction-time error, not a runtime one, so SetOutput here assumes a
// pointer and fails loudly if it isn't one.
func SetOutput[T any](cfg *Config, name string, value T) error {
	port, ok := cfg.Ports.Get(name)
	if !ok {
		return bherr.NewRuntime(nil, "btnode: port %q is not declared on this node", name)
	}
	remap, wired := cfg.OutputWiring[name]
	if !wired {
		if !port.HasDefault {
			return bherr.NewRuntime(nil, "btnode: output port %q has no wiring and no default", name)
		}
		remap = port.Default
	}
	key, isPointer := pointerKey(remap, name)
	if !isPointer {
		return bherr.NewRuntime(nil, "btnode: output port %q must be wired to a blackboard pointer, got literal %q", name, remap)
	}
	a, typeName := fromT(value, port)
	if err := cfg.BB.SetAny(key, a, typeName, port.Converter); err != nil {
		return bherr.NewRuntime(nil, "btnode: output port %q: %v", name, err)
	}
	return nil
}

// GetInputLocked returns a locked handle on an input port's blackboard
// pointer, for ports carrying pointer/shared values a node mutates in
// place. It is a ConstructionError-time invariant that such ports are
// always wired as pointers; this helper does not accept literals.
func GetInputLocked(cfg *Config, name string) (*blackboard.LockedAny, error) {
	remap, wired := cfg.InputWiring[name]
	if !wired {
		port, ok := cfg.Ports.Get(name)
		if !ok || !port.HasDefault {
			return nil, bherr.NewRuntime(nil, "btnode: locked port %q has no wiring", name)
		}
		remap = port.Default
	}
	key, isPointer := pointerKey(remap, name)
	if !isPointer {
		return nil, bherr.NewRuntime(nil, "btnode: locked port %q must be a blackboard pointer", name)
	}
	return cfg.BB.GetAnyLocked(key), nil
}

func anyTo[T any](a bhtype.Any) (T, error) {
	return blackboard.FromAnyPublic[T](a)
}

func fromT[T any](v T, port bhtype.Port) (bhtype.Any, string) {
	return blackboard.ToAnyPublic(v, port.TypeName)
}
