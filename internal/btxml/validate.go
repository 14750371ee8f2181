package btxml

import (
	"fmt"
)

// Severity is a Diagnostic's two-level scale: ERROR or WARNING.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Diagnostic is one finding from validating a parsed tree document
// against a node registry's manifests, adapted from the teacher's
// validate.Diagnostic shape (Rule/Severity/Message/NodeID) to this
// domain's node-path identifier instead of a graph node ID.
type Diagnostic struct {
	Rule     string
	Severity Severity
	Message  string
	Path     string // e.g. "MainTree > Sequence > Action(Foo)"
}

func (d Diagnostic) String() string {
	if d.Path == "" {
		return fmt.Sprintf("[%s] %s: %s", d.Severity, d.Rule, d.Message)
	}
	return fmt.Sprintf("[%s] %s: %s (%s)", d.Severity, d.Rule, d.Message, d.Path)
}

// PortLookup is the minimal view of a node registry validation needs: a
// node type's declared ports, keyed by registration ID.
type PortLookup interface {
	PortsFor(registrationID string) (inputs, outputs []string, known bool)
}

// Rule is one lint pass over a parsed element tree, mirroring the
// teacher's LintRule interface.
type Rule interface {
	Name() string
	Apply(doc *Document, lookup PortLookup) []Diagnostic
}

// Validate runs the built-in rules (and any extras) over doc.
func Validate(doc *Document, lookup PortLookup, extra ...Rule) []Diagnostic {
	var diags []Diagnostic
	diags = append(diags, lintUnknownNodeTypes(doc, lookup)...)
	diags = append(diags, lintUnresolvedInputPorts(doc, lookup)...)
	diags = append(diags, lintOutputPortsArePointers(doc, lookup)...)
	diags = append(diags, lintSubtreeReferencesExist(doc)...)
	for _, rule := range extra {
		if rule != nil {
			diags = append(diags, rule.Apply(doc, lookup)...)
		}
	}
	return diags
}

func lintUnknownNodeTypes(doc *Document, lookup PortLookup) []Diagnostic {
	var diags []Diagnostic
	walkInstances(doc, func(path string, el *Element) {
		if isStructuralTag(el.Tag) {
			return
		}
		if _, _, known := lookup.PortsFor(el.Tag); !known {
			diags = append(diags, Diagnostic{
				Rule: "unknown_node_type", Severity: SeverityError, Path: path,
				Message: fmt.Sprintf("node type %q is not registered", el.Tag),
			})
		}
	})
	return diags
}

// lintUnresolvedInputPorts flags `_`-prefixed and unknown attributes
// aside, but only checks that any remaining plain attribute corresponds
// to a declared port name — spec §4.8's "unknown attribute rejection".
func lintUnresolvedInputPorts(doc *Document, lookup PortLookup) []Diagnostic {
	var diags []Diagnostic
	walkInstances(doc, func(path string, el *Element) {
		if isStructuralTag(el.Tag) {
			return
		}
		inputs, outputs, known := lookup.PortsFor(el.Tag)
		if !known {
			return
		}
		declared := map[string]bool{}
		for _, p := range inputs {
			declared[p] = true
		}
		for _, p := range outputs {
			declared[p] = true
		}
		for _, a := range el.Attrs {
			name := a.Name.Local
			if name == "ID" || name == "name" || len(name) > 0 && name[0] == '_' {
				continue
			}
			if !declared[name] {
				diags = append(diags, Diagnostic{
					Rule: "unknown_attribute", Severity: SeverityError, Path: path,
					Message: fmt.Sprintf("attribute %q is not a declared port of %s", name, el.Tag),
				})
			}
		}
	})
	return diags
}

// lintOutputPortsArePointers enforces that every output port is wired as
// a blackboard pointer ("{key}"), never a literal — spec §4.7 step 5.
func lintOutputPortsArePointers(doc *Document, lookup PortLookup) []Diagnostic {
	var diags []Diagnostic
	walkInstances(doc, func(path string, el *Element) {
		if isStructuralTag(el.Tag) {
			return
		}
		_, outputs, known := lookup.PortsFor(el.Tag)
		if !known {
			return
		}
		for _, p := range outputs {
			v, ok := el.Attr(p)
			if !ok {
				continue
			}
			if len(v) < 2 || v[0] != '{' || v[len(v)-1] != '}' {
				diags = append(diags, Diagnostic{
					Rule: "output_port_not_pointer", Severity: SeverityError, Path: path,
					Message: fmt.Sprintf("output port %q must be wired to a blackboard pointer, got %q", p, v),
				})
			}
		}
	})
	return diags
}

func lintSubtreeReferencesExist(doc *Document) []Diagnostic {
	var diags []Diagnostic
	walkInstances(doc, func(path string, el *Element) {
		if el.Tag != "SubTree" {
			return
		}
		id, ok := el.Attr("ID")
		if !ok {
			diags = append(diags, Diagnostic{Rule: "subtree_missing_id", Severity: SeverityError, Path: path, Message: "<SubTree> missing ID attribute"})
			return
		}
		if _, exists := doc.Trees[id]; !exists {
			diags = append(diags, Diagnostic{
				Rule: "subtree_not_found", Severity: SeverityError, Path: path,
				Message: fmt.Sprintf("<SubTree ID=%q> refers to an undefined BehaviorTree", id),
			})
		}
	})
	return diags
}

// isStructuralTag reports tags that are part of the XML grammar itself
// rather than a registered node type: <SubTree> has its own ID+remap
// semantics (lintSubtreeReferencesExist checks it separately) and is
// never looked up in the node registry.
func isStructuralTag(tag string) bool { return tag == "SubTree" }

// walkInstances visits every node-instance element across every
// <BehaviorTree> in doc, handing each a human-readable breadcrumb path.
func walkInstances(doc *Document, visit func(path string, el *Element)) {
	for _, id := range doc.TreeIDs() {
		root := doc.Trees[id]
		for _, child := range root.Children {
			walkElement(id, child, visit)
		}
	}
}

func walkElement(path string, el *Element, visit func(string, *Element)) {
	here := path + " > " + el.Tag
	visit(here, el)
	for _, c := range el.Children {
		walkElement(here, c, visit)
	}
}
