package registry

import (
	"strings"
	"time"

	"github.com/danshapiro/bhtree/internal/bherr"
	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/btnode"
	"github.com/danshapiro/bhtree/internal/control"
)

// registerBuiltins wires every core composite and decorator from spec
// §4.5 into a fresh Factory, so XML authors get Sequence/Fallback/
// Parallel/Retry/etc. without the host registering them by hand. Leaf
// node types (actions, conditions, Sleep, SetBlackboard...) are the
// host's responsibility to register, since they're domain-specific.
func registerBuiltins(f *Factory) {
	must := func(err error) {
		if err != nil {
			panic(err) // only reachable if this file itself has a bug
		}
	}

	must(f.RegisterNodeType(Manifest{
		RegistrationID: "Sequence", MinChildren: 1, MaxChildren: -1,
		Build: func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error) {
			return control.NewSequence(name, uid, path, cfg, children), nil
		},
	}))
	must(f.RegisterNodeType(Manifest{
		RegistrationID: "SequenceWithMemory", MinChildren: 1, MaxChildren: -1,
		Build: func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error) {
			return control.NewSequenceWithMemory(name, uid, path, cfg, children), nil
		},
	}))
	must(f.RegisterNodeType(Manifest{
		RegistrationID: "ReactiveSequence", MinChildren: 1, MaxChildren: -1,
		Build: func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error) {
			return control.NewReactiveSequence(name, uid, path, cfg, children), nil
		},
	}))
	must(f.RegisterNodeType(Manifest{
		RegistrationID: "Fallback", MinChildren: 1, MaxChildren: -1,
		Build: func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error) {
			return control.NewFallback(name, uid, path, cfg, children), nil
		},
	}))
	must(f.RegisterNodeType(Manifest{
		RegistrationID: "ReactiveFallback", MinChildren: 1, MaxChildren: -1,
		Build: func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error) {
			return control.NewReactiveFallback(name, uid, path, cfg, children), nil
		},
	}))

	parallelPorts := bhtype.NewPortList(
		bhtype.Port{Name: "success_count", Direction: bhtype.DirInput, TypeName: "int", Default: "-1", HasDefault: true},
		bhtype.Port{Name: "failure_count", Direction: bhtype.DirInput, TypeName: "int", Default: "1", HasDefault: true},
	)
	must(f.RegisterNodeType(Manifest{
		RegistrationID: "Parallel", Ports: parallelPorts, MinChildren: 1, MaxChildren: -1,
		Build: func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error) {
			sc, err := btnode.GetInput[int64](cfg, "success_count")
			if err != nil {
				return nil, err
			}
			fc, err := btnode.GetInput[int64](cfg, "failure_count")
			if err != nil {
				return nil, err
			}
			return control.NewParallel(name, uid, path, cfg, children, int(sc), int(fc)), nil
		},
	}))

	parallelAllPorts := bhtype.NewPortList(
		bhtype.Port{Name: "max_failures", Direction: bhtype.DirInput, TypeName: "int", Default: "-1", HasDefault: true},
	)
	must(f.RegisterNodeType(Manifest{
		RegistrationID: "ParallelAll", Ports: parallelAllPorts, MinChildren: 1, MaxChildren: -1,
		Build: func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error) {
			mf, err := btnode.GetInput[int64](cfg, "max_failures")
			if err != nil {
				return nil, err
			}
			return control.NewParallelAll(name, uid, path, cfg, children, int(mf)), nil
		},
	}))

	registerDecorator1(f, must, "Inverter", func(name, uid, path string, cfg *btnode.Config, child btnode.Node) btnode.Node {
		return control.NewInverter(name, uid, path, cfg, child)
	})
	registerDecorator1(f, must, "ForceSuccess", func(name, uid, path string, cfg *btnode.Config, child btnode.Node) btnode.Node {
		return control.NewForceSuccess(name, uid, path, cfg, child)
	})
	registerDecorator1(f, must, "ForceFailure", func(name, uid, path string, cfg *btnode.Config, child btnode.Node) btnode.Node {
		return control.NewForceFailure(name, uid, path, cfg, child)
	})
	registerDecorator1(f, must, "KeepRunningUntilFailure", func(name, uid, path string, cfg *btnode.Config, child btnode.Node) btnode.Node {
		return control.NewKeepRunningUntilFailure(name, uid, path, cfg, child)
	})
	registerDecorator1(f, must, "RunOnce", func(name, uid, path string, cfg *btnode.Config, child btnode.Node) btnode.Node {
		return control.NewRunOnce(name, uid, path, cfg, child)
	})

	retryPorts := bhtype.NewPortList(
		bhtype.Port{Name: "num_attempts", Direction: bhtype.DirInput, TypeName: "int", Default: "1", HasDefault: true},
	)
	must(f.RegisterNodeType(Manifest{
		RegistrationID: "Retry", Ports: retryPorts, MinChildren: 1, MaxChildren: 1,
		Build: func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error) {
			n, err := btnode.GetInput[int64](cfg, "num_attempts")
			if err != nil {
				return nil, err
			}
			return control.NewRetry(name, uid, path, cfg, children[0], int(n)), nil
		},
	}))

	repeatPorts := bhtype.NewPortList(
		bhtype.Port{Name: "num_cycles", Direction: bhtype.DirInput, TypeName: "int", Default: "1", HasDefault: true},
	)
	must(f.RegisterNodeType(Manifest{
		RegistrationID: "Repeat", Ports: repeatPorts, MinChildren: 1, MaxChildren: 1,
		Build: func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error) {
			n, err := btnode.GetInput[int64](cfg, "num_cycles")
			if err != nil {
				return nil, err
			}
			return control.NewRepeat(name, uid, path, cfg, children[0], int(n)), nil
		},
	}))

	timeoutPorts := bhtype.NewPortList(
		bhtype.Port{Name: "msec", Direction: bhtype.DirInput, TypeName: "int", Default: "1000", HasDefault: true},
	)
	must(f.RegisterNodeType(Manifest{
		RegistrationID: "Timeout", Ports: timeoutPorts, MinChildren: 1, MaxChildren: 1,
		Build: func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error) {
			ms, err := btnode.GetInput[int64](cfg, "msec")
			if err != nil {
				return nil, err
			}
			return control.NewTimeout(name, uid, path, cfg, children[0], time.Duration(ms)*time.Millisecond), nil
		},
	}))

	delayPorts := bhtype.NewPortList(
		bhtype.Port{Name: "delay_msec", Direction: bhtype.DirInput, TypeName: "int", Default: "0", HasDefault: true},
	)
	must(f.RegisterNodeType(Manifest{
		RegistrationID: "Delay", Ports: delayPorts, MinChildren: 1, MaxChildren: 1,
		Build: func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error) {
			ms, err := btnode.GetInput[int64](cfg, "delay_msec")
			if err != nil {
				return nil, err
			}
			return control.NewDelay(name, uid, path, cfg, children[0], time.Duration(ms)*time.Millisecond), nil
		},
	}))

	must(f.RegisterNodeType(Manifest{
		RegistrationID: "TryCatch", MinChildren: 1, MaxChildren: 2,
		Build: func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error) {
			var catch btnode.Node
			if len(children) == 2 {
				catch = children[1]
			}
			return control.NewTryCatch(name, uid, path, cfg, children[0], catch, false), nil
		},
	}))

	must(f.RegisterNodeType(Manifest{
		RegistrationID: "IfThenElse", MinChildren: 2, MaxChildren: 3,
		Build: func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error) {
			var elseChild btnode.Node
			if len(children) == 3 {
				elseChild = children[2]
			}
			return control.NewIfThenElse(name, uid, path, cfg, children[0], children[1], elseChild), nil
		},
	}))

	must(f.RegisterNodeType(Manifest{
		RegistrationID: "WhileDoElse", MinChildren: 2, MaxChildren: 3,
		Build: func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error) {
			var elseChild btnode.Node
			if len(children) == 3 {
				elseChild = children[2]
			}
			return control.NewWhileDoElse(name, uid, path, cfg, children[0], children[1], elseChild), nil
		},
	}))

	must(f.RegisterNodeType(Manifest{
		RegistrationID: "Precondition", MinChildren: 2, MaxChildren: 2,
		Build: func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error) {
			return control.NewPrecondition(name, uid, path, cfg, children[0], children[1], bhtype.Failure), nil
		},
	}))

	loopPorts := bhtype.NewPortList(
		bhtype.Port{Name: "queue", Direction: bhtype.DirInput, TypeName: "string"},
		bhtype.Port{Name: "if_empty", Direction: bhtype.DirInput, TypeName: "string", Default: "SUCCESS", HasDefault: true},
		bhtype.Port{Name: "value", Direction: bhtype.DirOutput, TypeName: "any"},
	)
	must(f.RegisterNodeType(Manifest{
		RegistrationID: "Loop", Ports: loopPorts, MinChildren: 1, MaxChildren: 1,
		Build: func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error) {
			raw, err := btnode.GetInput[string](cfg, "queue")
			if err != nil {
				return nil, err
			}
			emptyLit, err := btnode.GetInput[string](cfg, "if_empty")
			if err != nil {
				return nil, err
			}
			ifEmpty, err := bhtype.ParseStatus(emptyLit)
			if err != nil {
				return nil, bherr.NewConstruction([]string{path}, "Loop: if_empty: %v", err)
			}
			set := func(v bhtype.Any) error {
				return btnode.SetOutput(cfg, "value", v)
			}
			return control.NewLoop(name, uid, path, cfg, children[0], parseLoopQueue(raw), set, ifEmpty), nil
		},
	}))

	entryPorts := bhtype.NewPortList(
		bhtype.Port{Name: "entry", Direction: bhtype.DirInput, TypeName: "string"},
	)
	must(f.RegisterNodeType(Manifest{
		RegistrationID: "WasEntryUpdated", Ports: entryPorts, MinChildren: 1, MaxChildren: 1,
		Build: func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error) {
			key := entryKeyFor(cfg)
			if key == "" {
				return nil, bherr.NewConstruction([]string{path}, "WasEntryUpdated requires an \"entry\" port naming a blackboard key")
			}
			return control.NewWasEntryUpdated(name, uid, path, cfg, children[0], cfg.BB, key), nil
		},
	}))
	must(f.RegisterNodeType(Manifest{
		RegistrationID: "SkipUnlessUpdated", Ports: entryPorts, MinChildren: 1, MaxChildren: 1,
		Build: func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error) {
			key := entryKeyFor(cfg)
			if key == "" {
				return nil, bherr.NewConstruction([]string{path}, "SkipUnlessUpdated requires an \"entry\" port naming a blackboard key")
			}
			return control.NewSkipUnlessUpdated(name, uid, path, cfg, children[0], cfg.BB, key), nil
		},
	}))
}

// parseLoopQueue splits a Loop node's queue attribute on ';' into the Any
// values it feeds the child one at a time, per SPEC_FULL.md's
// semicolon-delimited literal list. Each element that parses as an integer
// becomes one; everything else is kept as a string.
func parseLoopQueue(raw string) []bhtype.Any {
	fields := strings.Split(raw, ";")
	items := make([]bhtype.Any, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if n, err := bhtype.NewString(f).Int64(); err == nil {
			items = append(items, bhtype.NewInt(n))
			continue
		}
		items = append(items, bhtype.NewString(f))
	}
	return items
}

// entryKeyFor reads the raw "entry" attribute as written in XML and returns
// the blackboard key it names, stripping a "{...}" pointer wrapper if
// present: WasEntryUpdated/SkipUnlessUpdated watch the named entry itself
// rather than dereferencing its current value.
func entryKeyFor(cfg *btnode.Config) string {
	raw := strings.TrimSpace(cfg.InputWiring["entry"])
	if strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}") {
		return strings.TrimSuffix(strings.TrimPrefix(raw, "{"), "}")
	}
	return raw
}

// registerDecorator1 is a small helper for the many single-child
// decorators that take no configuration beyond their child.
func registerDecorator1(f *Factory, must func(error), id string, build func(name, uid, path string, cfg *btnode.Config, child btnode.Node) btnode.Node) {
	must(f.RegisterNodeType(Manifest{
		RegistrationID: id, MinChildren: 1, MaxChildren: 1,
		Build: func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error) {
			if len(children) != 1 {
				return nil, bherr.NewConstruction([]string{path}, "%s requires exactly one child", id)
			}
			return build(name, uid, path, cfg, children[0]), nil
		},
	}))
}
