package bhtype

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which alternative an Any currently holds.
type Kind int

const (
	KindNone Kind = iota
	KindInt
	KindUint
	KindFloat
	KindBool
	KindString
	KindOther // any registered user type, carried by TypeName
)

// TypeMismatchError is returned when an Any cannot be cast or converted into
// a requested type without a narrowing or otherwise lossy change.
type TypeMismatchError struct {
	From, To string
	Detail   string
}

func (e *TypeMismatchError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("bhtype: type mismatch converting %s to %s: %s", e.From, e.To, e.Detail)
	}
	return fmt.Sprintf("bhtype: type mismatch converting %s to %s", e.From, e.To)
}

// Any is a type-erased value container. It stores one of: a signed 64-bit
// integer, an unsigned 64-bit integer, a double, a bool, a string, or a
// user-registered value carried opaquely by its Go type name.
//
// Strings up to smallStringCap are kept inline in small to avoid a heap
// allocation for short identifiers, the small-string-optimization the spec
// calls for; longer strings spill into large.
type Any struct {
	kind Kind

	i   int64
	u   uint64
	f   float64
	b   bool
	len int
	sm  [smallStringCap]byte
	lg  string

	other    any
	typeName string
}

const smallStringCap = 15

func (a Any) str() string {
	if a.kind != KindString {
		return ""
	}
	if a.len <= smallStringCap {
		return string(a.sm[:a.len])
	}
	return a.lg
}

func NewInt(v int64) Any    { return Any{kind: KindInt, i: v} }
func NewUint(v uint64) Any  { return Any{kind: KindUint, u: v} }
func NewFloat(v float64) Any { return Any{kind: KindFloat, f: v} }
func NewBool(v bool) Any    { return Any{kind: KindBool, b: v} }

func NewString(v string) Any {
	a := Any{kind: KindString, len: len(v)}
	if len(v) <= smallStringCap {
		copy(a.sm[:], v)
	} else {
		a.lg = v
	}
	return a
}

// NewOther wraps a user-registered value, carried by its type identity.
func NewOther(typeName string, v any) Any {
	return Any{kind: KindOther, other: v, typeName: typeName}
}

func (a Any) Kind() Kind { return a.kind }
func (a Any) IsNone() bool { return a.kind == KindNone }

// IsNumber reports whether the value is int, uint or float.
func (a Any) IsNumber() bool {
	switch a.kind {
	case KindInt, KindUint, KindFloat:
		return true
	default:
		return false
	}
}

// IsString reports whether the value is a string.
func (a Any) IsString() bool { return a.kind == KindString }

// TypeName identifies the underlying alternative: "int", "uint", "double",
// "bool", "string", or the registered name for KindOther.
func (a Any) TypeName() string {
	switch a.kind {
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "double"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindOther:
		return a.typeName
	default:
		return "any"
	}
}

// Float64 returns the value coerced to float64. Bools become 0/1; strings
// are parsed; KindOther fails with TypeMismatchError.
func (a Any) Float64() (float64, error) {
	switch a.kind {
	case KindInt:
		return float64(a.i), nil
	case KindUint:
		return float64(a.u), nil
	case KindFloat:
		return a.f, nil
	case KindBool:
		if a.b {
			return 1, nil
		}
		return 0, nil
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(a.str()), 64)
		if err != nil {
			return 0, &TypeMismatchError{From: "string", To: "double", Detail: err.Error()}
		}
		return f, nil
	default:
		return 0, &TypeMismatchError{From: a.TypeName(), To: "double"}
	}
}

// Int64 returns the value coerced to int64. Floats must be integral
// (narrowing a fractional double into an int is refused, per the spec's
// "refuses narrowing silent changes").
func (a Any) Int64() (int64, error) {
	switch a.kind {
	case KindInt:
		return a.i, nil
	case KindUint:
		if a.u > math.MaxInt64 {
			return 0, &TypeMismatchError{From: "uint", To: "int", Detail: "overflow"}
		}
		return int64(a.u), nil
	case KindFloat:
		if a.f != math.Trunc(a.f) {
			return 0, &TypeMismatchError{From: "double", To: "int", Detail: "fractional value would be truncated"}
		}
		return int64(a.f), nil
	case KindBool:
		if a.b {
			return 1, nil
		}
		return 0, nil
	case KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(a.str()), 0, 64)
		if err != nil {
			return 0, &TypeMismatchError{From: "string", To: "int", Detail: err.Error()}
		}
		return n, nil
	default:
		return 0, &TypeMismatchError{From: a.TypeName(), To: "int"}
	}
}

// Bool returns the value coerced to bool: numbers are truthy if non-zero,
// strings accept "true"/"false"/"1"/"0" (case-insensitive).
func (a Any) Bool() (bool, error) {
	switch a.kind {
	case KindBool:
		return a.b, nil
	case KindInt:
		return a.i != 0, nil
	case KindUint:
		return a.u != 0, nil
	case KindFloat:
		return a.f != 0, nil
	case KindString:
		switch strings.ToLower(strings.TrimSpace(a.str())) {
		case "true", "1":
			return true, nil
		case "false", "0", "":
			return false, nil
		default:
			return false, &TypeMismatchError{From: "string", To: "bool", Detail: "unrecognized boolean literal"}
		}
	default:
		return false, &TypeMismatchError{From: a.TypeName(), To: "bool"}
	}
}

// String renders the value as a string; numbers use a compact decimal
// representation ("42", "3.14"), matching the spec's "42 -> \"42\"" example.
func (a Any) String() string {
	switch a.kind {
	case KindString:
		return a.str()
	case KindInt:
		return strconv.FormatInt(a.i, 10)
	case KindUint:
		return strconv.FormatUint(a.u, 10)
	case KindFloat:
		return strconv.FormatFloat(a.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(a.b)
	case KindOther:
		return fmt.Sprint(a.other)
	default:
		return ""
	}
}

// Other returns the underlying user-registered value and its type name.
func (a Any) Other() (any, string) { return a.other, a.typeName }

// Equal compares two Any values for equality. Numbers are compared after
// widening to float64; strings are compared as strings; bools as bools.
// Cross-kind comparisons between number and string coerce the string.
func (a Any) Equal(b Any) bool {
	switch {
	case a.IsNumber() && b.IsNumber():
		af, _ := a.Float64()
		bf, _ := b.Float64()
		return af == bf
	case a.kind == KindBool && b.kind == KindBool:
		return a.b == b.b
	case a.kind == KindString && b.kind == KindString:
		return a.str() == b.str()
	case a.IsString() && b.IsNumber():
		af, err := a.Float64()
		if err != nil {
			return false
		}
		bf, _ := b.Float64()
		return af == bf
	case a.IsNumber() && b.IsString():
		return b.Equal(a)
	case a.kind == KindOther && b.kind == KindOther:
		return a.typeName == b.typeName && fmt.Sprint(a.other) == fmt.Sprint(b.other)
	default:
		return false
	}
}

// CopyInto performs a widening numeric conversion of src into the kind
// already held by dst, returning the updated value. It refuses silent
// narrowing: converting a fractional double into an int, or a value that
// doesn't fit the target integer width, is an error.
func CopyInto(dst, src Any) (Any, error) {
	if dst.kind == KindNone {
		return src, nil
	}
	switch dst.kind {
	case KindInt:
		n, err := src.Int64()
		if err != nil {
			return Any{}, err
		}
		return NewInt(n), nil
	case KindUint:
		n, err := src.Int64()
		if err != nil {
			return Any{}, err
		}
		if n < 0 {
			return Any{}, &TypeMismatchError{From: src.TypeName(), To: "uint", Detail: "negative value"}
		}
		return NewUint(uint64(n)), nil
	case KindFloat:
		f, err := src.Float64()
		if err != nil {
			return Any{}, err
		}
		return NewFloat(f), nil
	case KindBool:
		v, err := src.Bool()
		if err != nil {
			return Any{}, err
		}
		return NewBool(v), nil
	case KindString:
		return NewString(src.String()), nil
	case KindOther:
		if src.kind != KindOther || src.typeName != dst.typeName {
			return Any{}, &TypeMismatchError{From: src.TypeName(), To: dst.typeName}
		}
		return src, nil
	default:
		return src, nil
	}
}
