package script

import (
	"testing"

	"github.com/danshapiro/bhtree/internal/blackboard"
)

func runScript(t *testing.T, src string, env *Env) float64 {
	t.Helper()
	c, err := Compile(src)
	if err != nil {
		t.Fatalf("compile %q: %v", src, err)
	}
	v, err := c.Run(env)
	if err != nil {
		t.Fatalf("run %q: %v", src, err)
	}
	f, err := v.Float64()
	if err != nil {
		t.Fatalf("result of %q is not numeric: %v", src, err)
	}
	return f
}

func TestScript_AssignmentAndArithmetic(t *testing.T) {
	bb := blackboard.New()
	env := &Env{Vars: bb, Enums: NewEnumTable()}

	if got := runScript(t, "A:=3; B:=2; C:=A+B*2", env); got != 7 {
		t.Fatalf("C = %v, want 7", got)
	}

	a, err := blackboard.Get[int64](bb, "A")
	if err != nil || a != 3 {
		t.Fatalf("A = %v, %v, want 3", a, err)
	}
	c, err := blackboard.Get[float64](bb, "C")
	if err != nil || c != 7 {
		t.Fatalf("C = %v, %v, want 7.0", c, err)
	}

	_, stampA, err := bb.GetStamped("A")
	if err != nil || stampA.SequenceID != 1 {
		t.Fatalf("A sequence_id = %v, %v, want 1", stampA, err)
	}
}

func TestScript_ComparisonChain(t *testing.T) {
	bb := blackboard.New()
	env := &Env{Vars: bb, Enums: NewEnumTable()}
	if got := runScript(t, "1 == 1 != 2", env); got != 1 {
		t.Fatalf("chained comparison = %v, want 1", got)
	}
	if got := runScript(t, "1 == 1 != 1", env); got != 0 {
		t.Fatalf("chained comparison = %v, want 0", got)
	}
}

func TestScript_StringConcatAndEnum(t *testing.T) {
	bb := blackboard.New()
	enums := NewEnumTable()
	enums.Register("RED", 1)
	env := &Env{Vars: bb, Enums: enums}

	c, err := Compile(`name := "a" + "b"`)
	if err != nil {
		t.Fatal(err)
	}
	v, err := c.Run(env)
	if err != nil {
		t.Fatal(err)
	}
	if v.String() != "ab" {
		t.Fatalf("got %q, want \"ab\"", v.String())
	}

	if got := runScript(t, `"RED" == 1`, env); got != 1 {
		t.Fatalf("enum comparison = %v, want 1", got)
	}
}

func TestScript_TernaryAndAssignmentRequiresExisting(t *testing.T) {
	bb := blackboard.New()
	env := &Env{Vars: bb, Enums: NewEnumTable()}

	if got := runScript(t, "x := 5; x > 3 ? 10 : 20", env); got != 10 {
		t.Fatalf("ternary = %v, want 10", got)
	}

	if _, err := Compile("y = 1"); err != nil {
		t.Fatalf("parse of bare '=' should succeed: %v", err)
	}
	c, _ := Compile("y = 1")
	if _, err := c.Run(env); err == nil {
		t.Fatalf("expected error assigning to undeclared variable with '='")
	}
}

func TestScript_EmptyScriptIsError(t *testing.T) {
	if _, err := Parse("   "); err == nil {
		t.Fatalf("expected parse error for empty script")
	}
}

func TestScript_TrailingAlphaOnNumberIsError(t *testing.T) {
	if _, err := Parse("3abc"); err == nil {
		t.Fatalf("expected tokenization error for trailing alpha on numeric literal")
	}
}

func TestScript_RoundTrip(t *testing.T) {
	bb := blackboard.New()
	env := &Env{Vars: bb, Enums: NewEnumTable()}
	c, err := Compile("1 + 2 * 3")
	if err != nil {
		t.Fatal(err)
	}
	v1, err := c.Run(env)
	if err != nil {
		t.Fatal(err)
	}
	v2, err := c.Run(env)
	if err != nil {
		t.Fatal(err)
	}
	if !v1.Equal(v2) {
		t.Fatalf("non side-effecting script evaluated to different results: %v vs %v", v1, v2)
	}
}
