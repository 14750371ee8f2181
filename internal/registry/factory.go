package registry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/danshapiro/bhtree/internal/action"
	"github.com/danshapiro/bhtree/internal/bherr"
	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/btnode"
	"github.com/danshapiro/bhtree/internal/btxml"
	"github.com/danshapiro/bhtree/internal/script"
	"github.com/danshapiro/bhtree/internal/timerq"
)

// Factory is the node registry: registered type manifests, the shared
// scripting enum table, substitution rules and TestNodeConfigs, and a
// content-addressed cache of parsed tree documents. It also owns the
// timer queue any async_delay TestNode mock schedules against, since
// substitution-rule construction happens at tree-build time, before a
// bttree.Tree (and its own timer queue) exists.
type Factory struct {
	mu              sync.RWMutex
	manifests       map[string]Manifest
	enums           *script.EnumTable
	rules           []SubstitutionRule
	testNodeConfigs map[string]TestNodeConfig

	timers *timerq.TimerQueue

	docCacheMu sync.RWMutex
	docCache   map[[32]byte]*btxml.Document
}

// NewFactory returns an empty factory with the built-in control and
// decorator node types already registered (see builtins.go) and a fresh
// scripting enum table.
func NewFactory() *Factory {
	f := &Factory{
		manifests:       map[string]Manifest{},
		enums:           script.NewEnumTable(),
		testNodeConfigs: map[string]TestNodeConfig{},
		timers:          timerq.New(),
		docCache:        map[[32]byte]*btxml.Document{},
	}
	registerBuiltins(f)
	return f
}

// Close stops the factory's background timer queue. Only needed if any
// TestNodeConfigs entry used async_delay; safe to call on any factory.
func (f *Factory) Close() {
	f.timers.Close()
}

// Enums returns the factory's shared scripting enum table, for callers
// wanting to add domain-specific constants (RegisterMany).
func (f *Factory) Enums() *script.EnumTable { return f.enums }

// RegisterNodeType adds (or replaces) a manifest by registration ID.
func (f *Factory) RegisterNodeType(m Manifest) error {
	if m.RegistrationID == "" {
		return bherr.NewConstruction(nil, "registry: manifest has empty RegistrationID")
	}
	if m.Build == nil {
		return bherr.NewConstruction(nil, "registry: manifest %q has a nil Builder", m.RegistrationID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manifests[m.RegistrationID] = m
	return nil
}

// RegisterSimpleAction registers a leaf node type built directly from a
// SyncFunc, the common case for actions with no internal state.
func (f *Factory) RegisterSimpleAction(id string, ports bhtype.PortList, fn action.SyncFunc) error {
	return f.RegisterNodeType(Manifest{
		RegistrationID: id,
		Ports:          ports,
		MinChildren:    0,
		MaxChildren:    0,
		Build: func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error) {
			return action.NewSyncAction(name, uid, path, cfg, fn), nil
		},
	})
}

// RegisterSimpleCondition registers a leaf that maps a boolean test
// directly to Success/Failure, the condition-node idiom of spec §4.6.
func (f *Factory) RegisterSimpleCondition(id string, ports bhtype.PortList, test func(cfg *btnode.Config) (bool, error)) error {
	fn := func(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
		ok, err := test(cfg)
		if err != nil {
			return "", err
		}
		if ok {
			return bhtype.Success, nil
		}
		return bhtype.Failure, nil
	}
	return f.RegisterNodeType(Manifest{
		RegistrationID: id,
		Ports:          ports,
		MinChildren:    0,
		MaxChildren:    0,
		Build: func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error) {
			return action.NewSyncAction(name, uid, path, cfg, fn), nil
		},
	})
}

// manifestFor resolves a tag name to its manifest, honoring substitution
// rules matched against the node's full tree path (spec §4.7).
func (f *Factory) manifestFor(registrationID, path string) (Manifest, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	id := registrationID
	if sub, ok := f.resolveSubstitution(path); ok {
		id = sub
	}
	if tnc, ok := f.testNodeConfigs[id]; ok {
		return f.testNodeManifest(id, tnc), true
	}
	m, ok := f.manifests[id]
	return m, ok
}

// testNodeManifest builds a one-off Manifest that constructs a TestNode
// preset from a TestNodeConfigs entry, so a SubstitutionRule can name a
// config id exactly like it names an ordinary registered node type.
func (f *Factory) testNodeManifest(id string, tnc TestNodeConfig) Manifest {
	return Manifest{
		RegistrationID: id,
		MinChildren:    0, MaxChildren: 0,
		Build: func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error) {
			n := action.NewTestNode(name, uid, path, cfg, tnc.ReturnStatus, tnc.AsyncDelay, f.timers)
			n.SuccessScript = tnc.SuccessScript
			n.FailureScript = tnc.FailureScript
			n.PostScript = tnc.PostScript
			return n, nil
		},
	}
}

// PortsFor implements btxml.PortLookup.
func (f *Factory) PortsFor(registrationID string) (inputs, outputs []string, known bool) {
	f.mu.RLock()
	m, ok := f.manifests[registrationID]
	f.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	for _, name := range m.Ports.Names() {
		p, _ := m.Ports.Get(name)
		switch p.Direction {
		case bhtype.DirOutput:
			outputs = append(outputs, name)
		case bhtype.DirInOut:
			inputs = append(inputs, name)
			outputs = append(outputs, name)
		default:
			inputs = append(inputs, name)
		}
	}
	return inputs, outputs, true
}

// RegisterTreeFromText parses source into a Document, memoized by the
// BLAKE3 hash of the text so registering the same tree definition (e.g.
// shared test fixtures) multiple times only parses it once.
func (f *Factory) RegisterTreeFromText(source string) (*btxml.Document, error) {
	key := blake3.Sum256([]byte(source))

	f.docCacheMu.RLock()
	if cached, ok := f.docCache[key]; ok {
		f.docCacheMu.RUnlock()
		return cached, nil
	}
	f.docCacheMu.RUnlock()

	doc, err := btxml.Parse([]byte(source))
	if err != nil {
		return nil, err
	}

	f.docCacheMu.Lock()
	f.docCache[key] = doc
	f.docCacheMu.Unlock()
	return doc, nil
}

// RegisterTreeFromFile reads path, resolves any <include> directives it
// (transitively) carries, and registers the merged result. A plain
// path="..." include is resolved relative to the directory of the file
// that names it; a ros_pkg="..." include is resolved relative to that
// package's root, located via rosPackageDir. Cyclic includes are a
// construction error rather than a stack overflow.
func (f *Factory) RegisterTreeFromFile(path string) (*btxml.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, bherr.NewConstruction(nil, "registry: resolving %s: %v", path, err)
	}
	doc, err := parseFileFragment(abs)
	if err != nil {
		return nil, err
	}
	if err := resolveIncludes(doc, filepath.Dir(abs), map[string]bool{abs: true}); err != nil {
		return nil, err
	}
	if err := doc.ResolveMainTree(); err != nil {
		return nil, err
	}

	f.docCacheMu.Lock()
	key := blake3.Sum256([]byte(abs))
	f.docCache[key] = doc
	f.docCacheMu.Unlock()
	return doc, nil
}

func parseFileFragment(absPath string) (*btxml.Document, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, bherr.NewConstruction(nil, "registry: reading %s: %v", absPath, err)
	}
	doc, err := btxml.ParseFragment(data)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// resolveIncludes walks doc.Includes, merging each included file's trees
// and model into doc in place, then recursing into that file's own
// includes relative to its own directory. visited holds every absolute
// path already opened on this chain, so a file that (directly or
// transitively) includes itself is reported rather than looped forever.
func resolveIncludes(doc *btxml.Document, baseDir string, visited map[string]bool) error {
	includes := doc.Includes
	doc.Includes = nil
	for _, inc := range includes {
		dir := baseDir
		if inc.RosPkg != "" {
			pkgDir, err := rosPackageDir(inc.RosPkg)
			if err != nil {
				return bherr.NewConstruction(nil, "registry: <include ros_pkg=%q>: %v", inc.RosPkg, err)
			}
			dir = pkgDir
		}
		abs := filepath.Clean(filepath.Join(dir, inc.Path))
		if visited[abs] {
			return bherr.NewConstruction(nil, "registry: cyclic <include> at %s", abs)
		}

		included, err := parseFileFragment(abs)
		if err != nil {
			return err
		}

		childVisited := make(map[string]bool, len(visited)+1)
		for k := range visited {
			childVisited[k] = true
		}
		childVisited[abs] = true
		if err := resolveIncludes(included, filepath.Dir(abs), childVisited); err != nil {
			return err
		}
		if err := doc.Merge(included); err != nil {
			return err
		}
	}
	return nil
}

// rosPackageDir locates a ROS package's root directory by searching the
// colon-separated ROS_PACKAGE_PATH environment variable for a directory
// named pkg, the same convention rospack itself resolves against. There
// is no ROS installation to query here, so this is necessarily a
// simplified stand-in: it does not walk package.xml manifests, only
// directory names.
func rosPackageDir(pkg string) (string, error) {
	searchPath := os.Getenv("ROS_PACKAGE_PATH")
	if searchPath == "" {
		return "", bherr.NewConstruction(nil, "ROS_PACKAGE_PATH is not set, cannot resolve package %q", pkg)
	}
	for _, root := range strings.Split(searchPath, string(filepath.ListSeparator)) {
		if root == "" {
			continue
		}
		candidate := filepath.Join(root, pkg)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
	}
	return "", bherr.NewConstruction(nil, "package %q not found on ROS_PACKAGE_PATH", pkg)
}
