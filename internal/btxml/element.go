// Package btxml implements the BTCPP v4 XML grammar: parsing a tree
// definition file into a generic element tree, validating port wiring
// against a node registry's manifests, and writing trees and
// TreeNodesModel documents back out. Node tag names are registration IDs
// chosen at runtime, not a fixed schema, so parsing uses encoding/xml's
// token stream directly rather than struct-tag unmarshaling — the same
// approach SnellerInc-sneller's S3 client takes for loosely-structured
// XML bodies it doesn't control the shape of.
package btxml

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/danshapiro/bhtree/internal/bherr"
)

// Element is a generic XML node: a tag name, its attributes in document
// order, and its children. BehaviorTree/TreeNodesModel content and every
// node instance inside a <BehaviorTree> are represented uniformly.
type Element struct {
	Tag      string
	Attrs    []xml.Attr
	Children []*Element
	Line     int
}

// Attr returns an attribute's value and whether it was present.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// ParseElement reads one XML document into its root Element.
func ParseElement(r io.Reader) (*Element, error) {
	dec := xml.NewDecoder(r)
	var stack []*Element
	var root *Element

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, bherr.NewConstruction(nil, "btxml: parse error: %v", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{Tag: t.Name.Local, Attrs: append([]xml.Attr{}, t.Attr...), Line: lineOf(dec)}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			} else {
				root = el
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, bherr.NewConstruction(nil, "btxml: unbalanced closing tag %s", t.Name.Local)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if root == nil {
		return nil, bherr.NewConstruction(nil, "btxml: empty document")
	}
	return root, nil
}

// lineOf is defensive: InputOffset-based line numbers aren't available
// from encoding/xml directly, so this is a placeholder hook kept separate
// in case a future decoder wrapper wants to track them.
func lineOf(dec *xml.Decoder) int { return 0 }

func (e *Element) String() string {
	return fmt.Sprintf("<%s %d attrs, %d children>", e.Tag, len(e.Attrs), len(e.Children))
}
