// Package btnode implements the node kernel shared by every tree node:
// the Config a node is built with, pre/post-condition evaluation order,
// status-change subscribers, and the execute_tick/halt_node contract.
package btnode

import (
	"github.com/danshapiro/bhtree/internal/blackboard"
	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/script"
)

// preConditionOrder and postConditionOrder fix the evaluation order spec
// §4.4 and the TESTABLE PROPERTIES §8 invariant #7 require.
var preConditionOrder = []string{"_failureIf", "_successIf", "_skipIf", "_while"}
var postConditionOrder = []string{"_onHalted", "_onFailure", "_onSuccess", "_post"}

// Config is the per-instance configuration a node is built with: its
// blackboard handle, input/output port wirings, the enum table, and any
// pre/post-condition scripts attached via XML `_`-prefixed attributes.
type Config struct {
	BB    *blackboard.Blackboard
	Enums *script.EnumTable

	Ports bhtype.PortList // this node type's declared ports

	// InputWiring/OutputWiring map a port name to its remapping form as
	// written in XML: a literal, "{key}", "{=}", or "" (use the port's
	// default / nothing wired).
	InputWiring  map[string]string
	OutputWiring map[string]string

	Pre  map[string]*script.CompiledScript // keys from preConditionOrder
	Post map[string]*script.CompiledScript // keys from postConditionOrder
}

func NewConfig(bb *blackboard.Blackboard, enums *script.EnumTable, ports bhtype.PortList) *Config {
	return &Config{
		BB:           bb,
		Enums:        enums,
		Ports:        ports,
		InputWiring:  map[string]string{},
		OutputWiring: map[string]string{},
		Pre:          map[string]*script.CompiledScript{},
		Post:         map[string]*script.CompiledScript{},
	}
}

func (cfg *Config) env() *script.Env {
	return &script.Env{Vars: cfg.BB, Enums: cfg.Enums}
}
