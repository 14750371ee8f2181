package script

import (
	"math"
	"strconv"
	"strings"

	"github.com/danshapiro/bhtree/internal/bherr"
	"github.com/danshapiro/bhtree/internal/blackboard"
	"github.com/danshapiro/bhtree/internal/bhtype"
)

// floatEpsilon is the tolerance for double equality, per spec §4.3
// ("float::epsilon", approximately 1.19e-7).
const floatEpsilon = 1.1920929e-7

// Env is the environment a compiled script runs against: the blackboard it
// reads/writes and the registered enum table.
type Env struct {
	Vars  *blackboard.Blackboard
	Enums *EnumTable
}

// Eval evaluates a parsed Script against env and returns the value of its
// last statement.
func Eval(s *Script, env *Env) (bhtype.Any, error) {
	var result bhtype.Any
	for _, stmt := range s.Statements {
		v, err := evalNode(stmt, env)
		if err != nil {
			return bhtype.Any{}, err
		}
		result = v
	}
	return result, nil
}

func evalNode(n Node, env *Env) (bhtype.Any, error) {
	switch t := n.(type) {
	case Literal:
		return evalLiteral(t), nil
	case Name:
		v, err := env.Vars.GetAny(t.Ident)
		if err != nil {
			return bhtype.Any{}, bherr.NewRuntime(nil, "script: %v", err)
		}
		return v, nil
	case Unary:
		return evalUnary(t, env)
	case Binary:
		return evalBinary(t, env)
	case Comparison:
		return evalComparison(t, env)
	case Ternary:
		return evalTernary(t, env)
	case Assignment:
		return evalAssignment(t, env)
	default:
		return bhtype.Any{}, bherr.NewRuntime(nil, "script: unknown AST node %T", n)
	}
}

func evalLiteral(l Literal) bhtype.Any {
	switch l.Kind {
	case LitInt:
		return bhtype.NewInt(l.Int)
	case LitReal:
		return bhtype.NewFloat(l.Real)
	case LitBool:
		return bhtype.NewBool(l.Bool)
	case LitString:
		return bhtype.NewString(l.Str)
	default:
		return bhtype.Any{}
	}
}

func evalUnary(u Unary, env *Env) (bhtype.Any, error) {
	v, err := evalNode(u.Operand, env)
	if err != nil {
		return bhtype.Any{}, err
	}
	switch u.Op {
	case "-":
		f, err := v.Float64()
		if err != nil {
			return bhtype.Any{}, bherr.NewRuntime(nil, "script: unary '-' requires a number: %v", err)
		}
		return bhtype.NewFloat(-f), nil
	case "~":
		n, err := v.Int64()
		if err != nil {
			return bhtype.Any{}, bherr.NewRuntime(nil, "script: unary '~' requires an integer: %v", err)
		}
		return bhtype.NewInt(^n), nil
	case "!":
		b, err := v.Bool()
		if err != nil {
			return bhtype.Any{}, bherr.NewRuntime(nil, "script: unary '!' requires a boolean: %v", err)
		}
		return boolDouble(!b), nil
	default:
		return bhtype.Any{}, bherr.NewRuntime(nil, "script: unknown unary operator %q", u.Op)
	}
}

func boolDouble(b bool) bhtype.Any {
	if b {
		return bhtype.NewFloat(1)
	}
	return bhtype.NewFloat(0)
}

func evalBinary(b Binary, env *Env) (bhtype.Any, error) {
	left, err := evalNode(b.Left, env)
	if err != nil {
		return bhtype.Any{}, err
	}
	right, err := evalNode(b.Right, env)
	if err != nil {
		return bhtype.Any{}, err
	}

	switch b.Op {
	case "..":
		return bhtype.NewString(left.String() + right.String()), nil
	case "+":
		if left.IsString() || right.IsString() {
			return bhtype.NewString(left.String() + right.String()), nil
		}
		lf, rf, err := bothFloat(left, right)
		if err != nil {
			return bhtype.Any{}, err
		}
		return bhtype.NewFloat(lf + rf), nil
	case "-", "*", "/":
		lf, rf, err := bothFloat(left, right)
		if err != nil {
			return bhtype.Any{}, err
		}
		switch b.Op {
		case "-":
			return bhtype.NewFloat(lf - rf), nil
		case "*":
			return bhtype.NewFloat(lf * rf), nil
		case "/":
			if rf == 0 {
				return bhtype.Any{}, bherr.NewRuntime(nil, "script: division by zero")
			}
			return bhtype.NewFloat(lf / rf), nil
		}
	case "&", "|", "^":
		li, ri, err := bothInt(left, right)
		if err != nil {
			return bhtype.Any{}, err
		}
		switch b.Op {
		case "&":
			return bhtype.NewInt(li & ri), nil
		case "|":
			return bhtype.NewInt(li | ri), nil
		case "^":
			return bhtype.NewInt(li ^ ri), nil
		}
	case "&&":
		lb, rb, err := bothBool(left, right)
		if err != nil {
			return bhtype.Any{}, err
		}
		return boolDouble(lb && rb), nil
	case "||":
		lb, rb, err := bothBool(left, right)
		if err != nil {
			return bhtype.Any{}, err
		}
		return boolDouble(lb || rb), nil
	}
	return bhtype.Any{}, bherr.NewRuntime(nil, "script: unknown binary operator %q", b.Op)
}

func bothFloat(a, b bhtype.Any) (float64, float64, error) {
	af, err := a.Float64()
	if err != nil {
		return 0, 0, bherr.NewRuntime(nil, "script: operand is not numeric: %v", err)
	}
	bf, err := b.Float64()
	if err != nil {
		return 0, 0, bherr.NewRuntime(nil, "script: operand is not numeric: %v", err)
	}
	return af, bf, nil
}

func bothInt(a, b bhtype.Any) (int64, int64, error) {
	ai, err := a.Int64()
	if err != nil {
		return 0, 0, bherr.NewRuntime(nil, "script: bitwise operand does not cast losslessly to int64: %v", err)
	}
	bi, err := b.Int64()
	if err != nil {
		return 0, 0, bherr.NewRuntime(nil, "script: bitwise operand does not cast losslessly to int64: %v", err)
	}
	return ai, bi, nil
}

func bothBool(a, b bhtype.Any) (bool, bool, error) {
	ab, err := a.Bool()
	if err != nil {
		return false, false, bherr.NewRuntime(nil, "script: logical operand does not cast losslessly to bool: %v", err)
	}
	bb, err := b.Bool()
	if err != nil {
		return false, false, bherr.NewRuntime(nil, "script: logical operand does not cast losslessly to bool: %v", err)
	}
	return ab, bb, nil
}

// stringToDouble implements spec §4.3's string_to_double: a plain numeric
// parse, falling back to the enum table, falling back to the true/false
// literals.
func stringToDouble(env *Env, s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	if v, ok := env.Enums.Lookup(s); ok {
		return float64(v), true
	}
	switch strings.ToLower(s) {
	case "true":
		return 1, true
	case "false":
		return 0, true
	}
	return 0, false
}

func evalComparison(c Comparison, env *Env) (bhtype.Any, error) {
	values := make([]bhtype.Any, len(c.Operands))
	for i, o := range c.Operands {
		v, err := evalNode(o, env)
		if err != nil {
			return bhtype.Any{}, err
		}
		values[i] = v
	}
	for i, op := range c.Ops {
		ok, err := compareLink(env, values[i], values[i+1], op)
		if err != nil {
			return bhtype.Any{}, err
		}
		if !ok {
			return boolDouble(false), nil
		}
	}
	return boolDouble(true), nil
}

func compareLink(env *Env, a, b bhtype.Any, op string) (bool, error) {
	af, bf, err := comparableFloats(env, a, b)
	if err != nil {
		if op == "==" {
			return false, nil
		}
		if op == "!=" {
			return true, nil
		}
		return false, bherr.NewRuntime(nil, "script: %v", err)
	}
	switch op {
	case "==":
		return math.Abs(af-bf) <= floatEpsilon, nil
	case "!=":
		return math.Abs(af-bf) > floatEpsilon, nil
	case "<":
		return af < bf, nil
	case ">":
		return af > bf, nil
	case "<=":
		return af <= bf, nil
	case ">=":
		return af >= bf, nil
	default:
		return false, bherr.NewRuntime(nil, "script: unknown comparison operator %q", op)
	}
}

// comparableFloats reduces a pair of operands to doubles for comparison:
// number<->number widens directly; string<->string compares as an exact
// string match (represented here as 0-distance when equal); string<->number
// coerces the string via stringToDouble.
func comparableFloats(env *Env, a, b bhtype.Any) (float64, float64, error) {
	switch {
	case a.IsNumber() && b.IsNumber():
		af, _ := a.Float64()
		bf, _ := b.Float64()
		return af, bf, nil
	case a.IsString() && b.IsString():
		if a.String() == b.String() {
			return 0, 0, nil
		}
		return 0, 1, nil
	case a.IsString() && b.IsNumber():
		af, ok := stringToDouble(env, a.String())
		if !ok {
			return 0, 0, bherr.NewRuntime(nil, "script: cannot compare string %q to a number", a.String())
		}
		bf, _ := b.Float64()
		return af, bf, nil
	case a.IsNumber() && b.IsString():
		bf, af, err := comparableFloats(env, b, a)
		return af, bf, err
	default:
		return 0, 0, bherr.NewRuntime(nil, "script: cannot compare %s to %s", a.TypeName(), b.TypeName())
	}
}

func evalTernary(t Ternary, env *Env) (bhtype.Any, error) {
	cond, err := evalNode(t.Cond, env)
	if err != nil {
		return bhtype.Any{}, err
	}
	b, err := cond.Bool()
	if err != nil {
		return bhtype.Any{}, bherr.NewRuntime(nil, "script: ternary condition is not boolean-like: %v", err)
	}
	if b {
		return evalNode(t.Then, env)
	}
	return evalNode(t.Else, env)
}

func evalAssignment(a Assignment, env *Env) (bhtype.Any, error) {
	value, err := evalNode(a.Value, env)
	if err != nil {
		return bhtype.Any{}, err
	}

	if a.Op == ":=" {
		if err := env.Vars.SetAny(a.Target, value, "any", nil); err != nil {
			return bhtype.Any{}, err
		}
		return value, nil
	}

	current, err := env.Vars.GetAny(a.Target)
	if err != nil {
		return bhtype.Any{}, bherr.NewRuntime(nil, "script: assignment to undeclared variable %q (use ':=' to create it)", a.Target)
	}

	var result bhtype.Any
	switch a.Op {
	case "=":
		result = value
	case "+=":
		if current.IsString() {
			if !value.IsString() {
				return bhtype.Any{}, bherr.NewRuntime(nil, "script: '+=' on string %q requires a string value", a.Target)
			}
			result = bhtype.NewString(current.String() + value.String())
		} else {
			cf, vf, err := bothFloat(current, value)
			if err != nil {
				return bhtype.Any{}, err
			}
			result = bhtype.NewFloat(cf + vf)
		}
	case "-=", "*=", "/=":
		if !current.IsNumber() {
			return bhtype.Any{}, bherr.NewRuntime(nil, "script: %q requires %s to already hold a number", a.Op, a.Target)
		}
		cf, vf, err := bothFloat(current, value)
		if err != nil {
			return bhtype.Any{}, err
		}
		switch a.Op {
		case "-=":
			result = bhtype.NewFloat(cf - vf)
		case "*=":
			result = bhtype.NewFloat(cf * vf)
		case "/=":
			if vf == 0 {
				return bhtype.Any{}, bherr.NewRuntime(nil, "script: division by zero in %q", a.Op)
			}
			result = bhtype.NewFloat(cf / vf)
		}
	default:
		return bhtype.Any{}, bherr.NewRuntime(nil, "script: unknown assignment operator %q", a.Op)
	}

	if err := env.Vars.SetAny(a.Target, result, "", nil); err != nil {
		return bhtype.Any{}, err
	}
	return result, nil
}
