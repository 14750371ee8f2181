// Package bherr defines the three error kinds the runtime surfaces:
// ConstructionError (tree/factory build time), RuntimeError (tick time) and
// LogicError (an invariant violation, treated like RuntimeError at the
// surface; raising one does not mark the tree as poisoned). Each carries
// a message and a context trail, in the shape of the teacher's
// validate.Diagnostic (Rule/Severity/Message/NodeID).
package bherr

import (
	"fmt"
	"strings"
)

// Construction errors are terminal for the tree being built; no partial
// tree is ever returned once one is raised.
type ConstructionError struct {
	Message string
	Trail   []string // e.g. ["BehaviorTree id=main", "SubTree id=Sub", "attribute foo"]
}

func (e *ConstructionError) Error() string {
	if len(e.Trail) == 0 {
		return "construction error: " + e.Message
	}
	return fmt.Sprintf("construction error: %s (%s)", e.Message, strings.Join(e.Trail, " > "))
}

func NewConstruction(trail []string, format string, args ...any) *ConstructionError {
	return &ConstructionError{Message: fmt.Sprintf(format, args...), Trail: trail}
}

// RuntimeError occurs during a tick: port conversion failures, blackboard
// coercion failures, script evaluation errors, timer misconfiguration. It
// propagates out of TickOnce unless a node in the spec catches it (none do
// by default).
type RuntimeError struct {
	Message string
	Trail   []string
}

func (e *RuntimeError) Error() string {
	if len(e.Trail) == 0 {
		return "runtime error: " + e.Message
	}
	return fmt.Sprintf("runtime error: %s (%s)", e.Message, strings.Join(e.Trail, " > "))
}

func NewRuntime(trail []string, format string, args ...any) *RuntimeError {
	return &RuntimeError{Message: fmt.Sprintf(format, args...), Trail: trail}
}

// LogicError marks a programmer error violating a runtime invariant (e.g. a
// ReactiveSequence observing two simultaneously running children with
// enforcement on). It is handled identically to RuntimeError by callers;
// only its type tells the two apart, and no Tree state records that one
// was raised.
type LogicError struct {
	Message string
	Trail   []string
}

func (e *LogicError) Error() string {
	if len(e.Trail) == 0 {
		return "logic error: " + e.Message
	}
	return fmt.Sprintf("logic error: %s (%s)", e.Message, strings.Join(e.Trail, " > "))
}

func NewLogic(trail []string, format string, args ...any) *LogicError {
	return &LogicError{Message: fmt.Sprintf(format, args...), Trail: trail}
}
