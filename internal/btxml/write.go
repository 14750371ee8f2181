package btxml

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"

	"github.com/danshapiro/bhtree/internal/bhtype"
)

// ModelEntry is one node type's manifest as exported for a
// TreeNodesModel document: its registration ID and declared ports.
type ModelEntry struct {
	RegistrationID string
	Ports          bhtype.PortList
}

// WriteTreeNodesModelXML renders a <TreeNodesModel> document listing
// every entry's declared ports, sorted by registration ID for a stable
// diff-friendly byte output — spec §4.8's write_tree_nodes_model_xml.
func WriteTreeNodesModelXML(entries []ModelEntry) string {
	sorted := append([]ModelEntry{}, entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RegistrationID < sorted[j].RegistrationID })

	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?>` + "\n")
	b.WriteString("<root BTCPP_format=\"4\">\n  <TreeNodesModel>\n")
	for _, e := range sorted {
		fmt.Fprintf(&b, "    <Node ID=%s>\n", quote(e.RegistrationID))
		for _, name := range e.Ports.Names() {
			p, _ := e.Ports.Get(name)
			tag := portTag(p.Direction)
			b.WriteString("      <" + tag + " name=" + quote(p.Name) + " type=" + quote(p.TypeName))
			if p.HasDefault {
				b.WriteString(" default=" + quote(p.Default))
			}
			if p.Description != "" {
				b.WriteString(">" + xmlEscape(p.Description) + "</" + tag + ">\n")
			} else {
				b.WriteString("/>\n")
			}
		}
		b.WriteString("    </Node>\n")
	}
	b.WriteString("  </TreeNodesModel>\n</root>\n")
	return b.String()
}

func portTag(d bhtype.Direction) string {
	switch d {
	case bhtype.DirInput:
		return "input_port"
	case bhtype.DirOutput:
		return "output_port"
	default:
		return "inout_port"
	}
}

// TreeWriter is the minimal view of a built node tree write_tree_to_xml
// needs: its registration ID, children (empty for leaves), and the
// literal attribute strings recorded at construction time (port wiring
// plus `_`-prefixed condition scripts).
type TreeWriter interface {
	RegistrationID() string
	Attrs() map[string]string
	Children() []TreeWriter
}

// WriteTreeToXML renders a single <BehaviorTree ID="treeID"> element from
// an in-memory tree, the reverse operation of Parse+CreateTree.
func WriteTreeToXML(treeID string, root TreeWriter) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?>` + "\n")
	b.WriteString("<root BTCPP_format=\"4\" main_tree_to_execute=" + quote(treeID) + ">\n")
	fmt.Fprintf(&b, "  <BehaviorTree ID=%s>\n", quote(treeID))
	writeNode(&b, root, 2)
	b.WriteString("  </BehaviorTree>\n</root>\n")
	return b.String()
}

func writeNode(b *strings.Builder, n TreeWriter, indent int) {
	pad := strings.Repeat("  ", indent)
	attrs := n.Attrs()
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	children := n.Children()
	b.WriteString(pad + "<" + n.RegistrationID())
	for _, k := range keys {
		b.WriteString(" " + k + "=" + quote(attrs[k]))
	}
	if len(children) == 0 {
		b.WriteString("/>\n")
		return
	}
	b.WriteString(">\n")
	for _, c := range children {
		writeNode(b, c, indent+1)
	}
	b.WriteString(pad + "</" + n.RegistrationID() + ">\n")
}

func quote(s string) string {
	return `"` + xmlEscape(s) + `"`
}

func xmlEscape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
