package registry

import (
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/danshapiro/bhtree/internal/bherr"
	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/blackboard"
	"github.com/danshapiro/bhtree/internal/btnode"
	"github.com/danshapiro/bhtree/internal/btxml"
	"github.com/danshapiro/bhtree/internal/control"
	"github.com/danshapiro/bhtree/internal/script"
)

// conditionAttrs lists the `_`-prefixed attributes the kernel wraps
// around every tick, in both the pre and post groups (package btnode
// fixes their evaluation order; this is only used here to recognize them
// while parsing wiring attributes).
var conditionAttrs = map[string]bool{
	"_failureIf": true, "_successIf": true, "_skipIf": true, "_while": true,
	"_onHalted": true, "_onFailure": true, "_onSuccess": true, "_post": true,
}

// CreateTree builds a live node tree from treeID in doc, per spec §4.7's
// five-step construction algorithm: resolve substitution rules, look up
// each tag's manifest, split attributes into port wiring vs conditions,
// recurse into children, then build bottom-up so every composite
// receives already-built children.
func CreateTree(f *Factory, doc *btxml.Document, treeID string, bb *blackboard.Blackboard) (btnode.Node, error) {
	return createTreeAt(f, doc, treeID, bb, treeID)
}

// createTreeAt builds treeID's root node with basePath as the path prefix
// for every descendant. CreateTree uses treeID itself as the prefix for a
// freestanding tree; buildSubTree instead passes its own <SubTree> path, so
// the SubTree node and its root child share one path prefix, as the
// observer's path-to-UID walk requires.
func createTreeAt(f *Factory, doc *btxml.Document, treeID string, bb *blackboard.Blackboard, basePath string) (btnode.Node, error) {
	root, ok := doc.Trees[treeID]
	if !ok {
		return nil, bherr.NewConstruction(nil, "registry: BehaviorTree %q not found", treeID)
	}
	if len(root.Children) != 1 {
		return nil, bherr.NewConstruction([]string{treeID}, "registry: <BehaviorTree> must have exactly one root child, got %d", len(root.Children))
	}
	return buildElement(f, doc, root.Children[0], bb, basePath)
}

func buildElement(f *Factory, doc *btxml.Document, el *btxml.Element, bb *blackboard.Blackboard, path string) (btnode.Node, error) {
	path = path + "/" + el.Tag
	uid := ulid.Make().String()

	if el.Tag == "SubTree" {
		return buildSubTree(f, doc, el, bb, path, uid)
	}

	manifest, ok := f.manifestFor(el.Tag, path)
	if !ok {
		return nil, bherr.NewConstruction([]string{path}, "registry: node type %q is not registered", el.Tag)
	}

	cfg := btnode.NewConfig(bb, f.enums, manifest.Ports)
	name := el.Tag
	if n, has := el.Attr("name"); has {
		name = n
	}

	for _, a := range el.Attrs {
		key := a.Name.Local
		if key == "ID" || key == "name" {
			continue
		}
		if conditionAttrs[key] {
			compiled, err := script.Compile(a.Value)
			if err != nil {
				return nil, bherr.NewConstruction([]string{path}, "registry: compiling %s: %v", key, err)
			}
			switch key {
			case "_onHalted", "_onFailure", "_onSuccess", "_post":
				cfg.Post[key] = compiled
			default:
				cfg.Pre[key] = compiled
			}
			continue
		}
		port, known := manifest.Ports.Get(key)
		if !known {
			return nil, bherr.NewConstruction([]string{path}, "registry: attribute %q is not a declared port of %s", key, el.Tag)
		}
		switch port.Direction {
		case bhtype.DirOutput:
			cfg.OutputWiring[key] = a.Value
		case bhtype.DirInOut:
			cfg.InputWiring[key] = a.Value
			cfg.OutputWiring[key] = a.Value
		default:
			cfg.InputWiring[key] = a.Value
		}
	}

	if err := validatePortWiring(manifest, cfg, path, el.Tag); err != nil {
		return nil, err
	}

	children := make([]btnode.Node, 0, len(el.Children))
	for _, childEl := range el.Children {
		child, err := buildElement(f, doc, childEl, bb, path)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	if err := manifest.checkChildCount(len(children)); err != nil {
		return nil, err
	}

	node, err := manifest.Build(name, uid, path, cfg, children)
	if err != nil {
		return nil, bherr.NewConstruction([]string{path}, "registry: building %s: %v", el.Tag, err)
	}
	return node, nil
}

func buildSubTree(f *Factory, doc *btxml.Document, el *btxml.Element, bb *blackboard.Blackboard, path, uid string) (btnode.Node, error) {
	id, ok := el.Attr("ID")
	if !ok {
		return nil, bherr.NewConstruction([]string{path}, "registry: <SubTree> missing ID attribute")
	}
	if _, exists := doc.Trees[id]; !exists {
		return nil, bherr.NewConstruction([]string{path}, "registry: <SubTree ID=%q> refers to an undefined BehaviorTree", id)
	}

	childBB := blackboard.NewChild(bb)
	cfg := btnode.NewConfig(bb, f.enums, bhtype.PortList{})

	for _, a := range el.Attrs {
		key := a.Name.Local
		switch {
		case key == "ID" || key == "name":
			continue
		case key == "_autoremap":
			childBB.EnableAutoremap(a.Value == "true" || a.Value == "1")
			continue
		case conditionAttrs[key]:
			compiled, err := script.Compile(a.Value)
			if err != nil {
				return nil, bherr.NewConstruction([]string{path}, "registry: compiling %s: %v", key, err)
			}
			switch key {
			case "_onHalted", "_onFailure", "_onSuccess", "_post":
				cfg.Post[key] = compiled
			default:
				cfg.Pre[key] = compiled
			}
		default:
			if external, isPointer := stripBraces(a.Value); isPointer {
				childBB.AddSubtreeRemapping(key, external)
			}
			// A literal default handed to the subtree becomes a plain local
			// value in the child scope rather than a remap.
		}
	}

	name := id
	if n, has := el.Attr("name"); has {
		name = n
	}

	root, err := createTreeAt(f, doc, id, childBB, path)
	if err != nil {
		return nil, err
	}
	return control.NewSubTree(name, uid, path, cfg, root), nil
}

// validatePortWiring implements spec §4.7 step 5's construction-time port
// check: every declared input (or in/out) port must resolve to either a
// wired value or a default, and every declared output (or in/out) port
// must be wired to a blackboard pointer, not a literal. A node failing
// either check is a ConstructionError raised here rather than deferred to
// the first tick's GetInput/SetOutput call, so a malformed tree is never
// handed back to the caller.
func validatePortWiring(manifest Manifest, cfg *btnode.Config, path, tag string) error {
	for _, name := range manifest.Ports.Names() {
		port, _ := manifest.Ports.Get(name)

		if port.Direction == bhtype.DirInput || port.Direction == bhtype.DirInOut {
			remap, wired := cfg.InputWiring[name]
			if !wired && !port.HasDefault {
				return bherr.NewConstruction([]string{path}, "registry: %s: required input port %q has no value and no default", tag, name)
			}
			_ = remap
		}

		if port.Direction == bhtype.DirOutput || port.Direction == bhtype.DirInOut {
			remap, wired := cfg.OutputWiring[name]
			if !wired {
				if !port.HasDefault {
					return bherr.NewConstruction([]string{path}, "registry: %s: output port %q has no wiring and no default", tag, name)
				}
				remap = port.Default
			}
			if !btnode.IsBlackboardPointer(remap) {
				return bherr.NewConstruction([]string{path}, "registry: %s: output port %q must be wired to a blackboard pointer, got literal %q", tag, name, remap)
			}
		}
	}
	return nil
}

func stripBraces(v string) (string, bool) {
	trimmed := strings.TrimSpace(v)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		return strings.TrimSuffix(strings.TrimPrefix(trimmed, "{"), "}"), true
	}
	return "", false
}
