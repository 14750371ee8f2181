package btxml

import (
	"bytes"
	"sort"

	"github.com/danshapiro/bhtree/internal/bherr"
)

// Include is one <include path="..."/> or <include ros_pkg="..."
// path="..."/> directive. Path is always resolved relative to the
// including file (or, when RosPkg is set, relative to that package's
// root) — the caller performing the resolution has the filesystem
// context this package doesn't.
type Include struct {
	Path   string
	RosPkg string
}

// Document is the parsed form of a <root> file: every <BehaviorTree>
// keyed by its ID, the TreeNodesModel (if present), the declared
// BTCPP_format and main_tree_to_execute, and any <include> entries left
// for the caller to resolve and merge.
type Document struct {
	Format   string
	MainTree string
	Trees    map[string]*Element
	Model    *Element // the <TreeNodesModel> element, or nil
	Includes []Include
}

// Parse reads a full, standalone <root> document: one meant to be
// handed straight to tree construction, so it must resolve to exactly
// one main tree (either declared or inferable).
func Parse(data []byte) (*Document, error) {
	doc, err := parseRoot(data)
	if err != nil {
		return nil, err
	}
	if err := doc.ResolveMainTree(); err != nil {
		return nil, err
	}
	return doc, nil
}

// ResolveMainTree fills in doc.MainTree when it's unset and inferable
// (exactly one tree), and errors when it's unset and ambiguous. Parse
// calls this for a standalone document; a caller resolving <include>
// directives first must call it itself, after merging, since an
// included fragment is allowed to declare no main tree of its own.
func (doc *Document) ResolveMainTree() error {
	if doc.MainTree == "" && len(doc.Trees) == 1 {
		for id := range doc.Trees {
			doc.MainTree = id
		}
	}
	if doc.MainTree == "" {
		return bherr.NewConstruction(nil, "btxml: no main_tree_to_execute and more than one <BehaviorTree>")
	}
	return nil
}

// ParseFragment reads a <root> document pulled in via <include>. Unlike
// Parse, it doesn't require a resolvable main tree: an included file is
// often just a library of <BehaviorTree>/<SubTree> definitions with no
// tree of its own meant to run.
func ParseFragment(data []byte) (*Document, error) {
	return parseRoot(data)
}

func parseRoot(data []byte) (*Document, error) {
	root, err := ParseElement(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if root.Tag != "root" {
		return nil, bherr.NewConstruction(nil, "btxml: root element must be <root>, got <%s>", root.Tag)
	}

	doc := &Document{Trees: map[string]*Element{}}
	if v, ok := root.Attr("BTCPP_format"); ok {
		doc.Format = v
	}
	if v, ok := root.Attr("main_tree_to_execute"); ok {
		doc.MainTree = v
	}

	for _, child := range root.Children {
		switch child.Tag {
		case "BehaviorTree":
			id, ok := child.Attr("ID")
			if !ok {
				return nil, bherr.NewConstruction(nil, "btxml: <BehaviorTree> missing required ID attribute")
			}
			doc.Trees[id] = child
		case "TreeNodesModel":
			doc.Model = child
		case "include":
			path, ok := child.Attr("path")
			if !ok {
				return nil, bherr.NewConstruction(nil, "btxml: <include> missing required path attribute")
			}
			rosPkg, _ := child.Attr("ros_pkg")
			doc.Includes = append(doc.Includes, Include{Path: path, RosPkg: rosPkg})
		}
	}
	return doc, nil
}

// Merge folds other's trees and model entries into doc, as happens when
// resolving <include> directives. A duplicate tree ID is a construction
// error: two files disagreeing about what "MainTree" means is a build
// mistake, not something to silently pick a winner for.
func (doc *Document) Merge(other *Document) error {
	for id, el := range other.Trees {
		if _, exists := doc.Trees[id]; exists {
			return bherr.NewConstruction(nil, "btxml: duplicate BehaviorTree ID %q across included files", id)
		}
		doc.Trees[id] = el
	}
	if other.Model != nil {
		if doc.Model == nil {
			doc.Model = other.Model
		} else {
			doc.Model.Children = append(doc.Model.Children, other.Model.Children...)
		}
	}
	return nil
}

// TreeIDs returns every registered BehaviorTree ID, sorted, for stable
// iteration in diagnostics and tests.
func (doc *Document) TreeIDs() []string {
	ids := make([]string, 0, len(doc.Trees))
	for id := range doc.Trees {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
