package blackboard

import (
	"fmt"

	"github.com/danshapiro/bhtree/internal/bhtype"
)

// Set is the typed create-or-update entry point: Set[int64](bb, "x", 3).
// T must be one of the primitive kinds Any supports, or any other type,
// which is stored opaquely (KindOther) keyed by its Go type name.
func Set[T any](bb *Blackboard, key string, value T) error {
	a, typeName := toAny(value)
	return bb.SetAny(key, a, typeName, nil)
}

// Get is the typed read entry point, returning an error if the key is
// absent or cannot convert into T.
func Get[T any](bb *Blackboard, key string) (T, error) {
	var zero T
	a, err := bb.GetAny(key)
	if err != nil {
		return zero, err
	}
	return fromAny[T](a)
}

// TryGet is Get without the error channel: ok is false when the key is
// absent or the stored value can't convert into T.
func TryGet[T any](bb *Blackboard, key string) (T, bool) {
	var zero T
	a, ok := bb.TryGetAny(key)
	if !ok {
		return zero, false
	}
	v, err := fromAny[T](a)
	if err != nil {
		return zero, false
	}
	return v, true
}

// ToAnyPublic converts a Go value into an Any, honoring declaredType as a
// hint (e.g. a port declared "double" fed an int64 still becomes a double).
// Exported for internal/btnode's SetOutput, which needs the same
// any<->primitive bridging logic the blackboard's own generics use.
func ToAnyPublic(value any, declaredType string) (bhtype.Any, string) {
	a, typeName := toAny(value)
	if declaredType == "" || declaredType == "any" || declaredType == typeName {
		return a, typeName
	}
	switch declaredType {
	case "int":
		if n, err := a.Int64(); err == nil {
			return bhtype.NewInt(n), "int"
		}
	case "uint":
		if n, err := a.Int64(); err == nil && n >= 0 {
			return bhtype.NewUint(uint64(n)), "uint"
		}
	case "double":
		if f, err := a.Float64(); err == nil {
			return bhtype.NewFloat(f), "double"
		}
	case "bool":
		if b, err := a.Bool(); err == nil {
			return bhtype.NewBool(b), "bool"
		}
	case "string":
		return bhtype.NewString(a.String()), "string"
	}
	return a, typeName
}

// FromAnyPublic exposes fromAny for internal/btnode's GetInput.
func FromAnyPublic[T any](a bhtype.Any) (T, error) {
	return fromAny[T](a)
}

func toAny(value any) (bhtype.Any, string) {
	switch v := value.(type) {
	case bhtype.Any:
		return v, v.TypeName()
	case int:
		return bhtype.NewInt(int64(v)), "int"
	case int32:
		return bhtype.NewInt(int64(v)), "int"
	case int64:
		return bhtype.NewInt(v), "int"
	case uint:
		return bhtype.NewUint(uint64(v)), "uint"
	case uint64:
		return bhtype.NewUint(v), "uint"
	case float32:
		return bhtype.NewFloat(float64(v)), "double"
	case float64:
		return bhtype.NewFloat(v), "double"
	case bool:
		return bhtype.NewBool(v), "bool"
	case string:
		return bhtype.NewString(v), "string"
	default:
		return bhtype.NewOther(fmt.Sprintf("%T", value), value), fmt.Sprintf("%T", value)
	}
}

func fromAny[T any](a bhtype.Any) (T, error) {
	var zero T
	switch any(zero).(type) {
	case int:
		n, err := a.Int64()
		return any(int(n)).(T), err
	case int32:
		n, err := a.Int64()
		return any(int32(n)).(T), err
	case int64:
		n, err := a.Int64()
		return any(n).(T), err
	case uint:
		n, err := a.Int64()
		return any(uint(n)).(T), err
	case uint64:
		n, err := a.Int64()
		return any(uint64(n)).(T), err
	case float32:
		f, err := a.Float64()
		return any(float32(f)).(T), err
	case float64:
		f, err := a.Float64()
		return any(f).(T), err
	case bool:
		b, err := a.Bool()
		return any(b).(T), err
	case string:
		return any(a.String()).(T), nil
	case bhtype.Any:
		return any(a).(T), nil
	default:
		other, typeName := a.Other()
		if other == nil {
			return zero, &bhtype.TypeMismatchError{From: a.TypeName(), To: fmt.Sprintf("%T", zero)}
		}
		v, ok := other.(T)
		if !ok {
			return zero, &bhtype.TypeMismatchError{From: typeName, To: fmt.Sprintf("%T", zero)}
		}
		return v, nil
	}
}
