package registry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danshapiro/bhtree/internal/action"
	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/blackboard"
	"github.com/danshapiro/bhtree/internal/btnode"
)

func TestRegisterSimpleAction_BuildsSyncAction(t *testing.T) {
	f := NewFactory()
	err := f.RegisterSimpleAction("AlwaysSucceed", bhtype.PortList{}, func(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
		return bhtype.Success, nil
	})
	if err != nil {
		t.Fatalf("RegisterSimpleAction: %v", err)
	}

	const xml = `<root BTCPP_format="4" main_tree_to_execute="Main">
  <BehaviorTree ID="Main">
    <AlwaysSucceed/>
  </BehaviorTree>
</root>`
	doc, err := f.RegisterTreeFromText(xml)
	if err != nil {
		t.Fatalf("RegisterTreeFromText: %v", err)
	}
	bb := blackboard.New()
	node, err := CreateTree(f, doc, "Main", bb)
	if err != nil {
		t.Fatalf("CreateTree: %v", err)
	}
	status, err := node.ExecuteTick(context.Background())
	if err != nil {
		t.Fatalf("ExecuteTick: %v", err)
	}
	if status != bhtype.Success {
		t.Fatalf("status = %v, want Success", status)
	}
}

func TestRegisterSimpleCondition_MapsBoolToStatus(t *testing.T) {
	f := NewFactory()
	err := f.RegisterSimpleCondition("IsReady", bhtype.PortList{}, func(cfg *btnode.Config) (bool, error) {
		return false, nil
	})
	if err != nil {
		t.Fatalf("RegisterSimpleCondition: %v", err)
	}
	m, ok := f.manifestFor("IsReady", "Main")
	if !ok {
		t.Fatal("IsReady not registered")
	}
	bb := blackboard.New()
	cfg := btnode.NewConfig(bb, f.Enums(), m.Ports)
	node, err := m.Build("IsReady", "u1", "Main/IsReady", cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	status, err := node.ExecuteTick(context.Background())
	if err != nil {
		t.Fatalf("ExecuteTick: %v", err)
	}
	if status != bhtype.Failure {
		t.Fatalf("status = %v, want Failure", status)
	}
}

func TestRegisterTreeFromText_CachesByContentHash(t *testing.T) {
	f := NewFactory()
	const xml = `<root main_tree_to_execute="Main"><BehaviorTree ID="Main"><AlwaysSuccess/></BehaviorTree></root>`
	doc1, err := f.RegisterTreeFromText(xml)
	if err != nil {
		t.Fatalf("first parse: %v", err)
	}
	doc2, err := f.RegisterTreeFromText(xml)
	if err != nil {
		t.Fatalf("second parse: %v", err)
	}
	if doc1 != doc2 {
		t.Fatal("expected identical source text to return the cached *Document, got distinct pointers")
	}
}

func TestAddSubstitutionRule_ReplacesNodeAtMatchingPath(t *testing.T) {
	f := NewFactory()
	must := func(err error) {
		if err != nil {
			t.Fatalf("registering node type: %v", err)
		}
	}
	must(f.RegisterSimpleAction("RealAction", bhtype.PortList{}, func(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
		return bhtype.Failure, nil
	}))
	must(f.RegisterNodeType(Manifest{
		RegistrationID: "MockAlwaysSuccess",
		MinChildren:    0, MaxChildren: 0,
		Build: func(name, uid, path string, cfg *btnode.Config, children []btnode.Node) (btnode.Node, error) {
			return action.NewSyncAction(name, uid, path, cfg, func(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
				return bhtype.Success, nil
			}), nil
		},
	}))
	f.AddSubstitutionRule("Main/RealAction", "MockAlwaysSuccess")

	const xml = `<root main_tree_to_execute="Main"><BehaviorTree ID="Main"><RealAction/></BehaviorTree></root>`
	doc, err := f.RegisterTreeFromText(xml)
	if err != nil {
		t.Fatalf("RegisterTreeFromText: %v", err)
	}
	node, err := CreateTree(f, doc, "Main", blackboard.New())
	if err != nil {
		t.Fatalf("CreateTree: %v", err)
	}
	status, err := node.ExecuteTick(context.Background())
	if err != nil {
		t.Fatalf("ExecuteTick: %v", err)
	}
	if status != bhtype.Success {
		t.Fatalf("status = %v, want Success (substitution should have swapped in the mock)", status)
	}
}

func TestLoadSubstitutionRuleFromJSON_RejectsMalformedDocument(t *testing.T) {
	f := NewFactory()
	err := f.LoadSubstitutionRuleFromJSON([]byte(`[{"pattern": "x"}]`))
	if err == nil {
		t.Fatal("expected an error for a rule document missing \"replacement\"")
	}
}

func TestLoadSubstitutionRuleFromJSON_AppliesValidDocument(t *testing.T) {
	f := NewFactory()
	err := f.LoadSubstitutionRuleFromJSON([]byte(`[{"pattern": "Main/*", "replacement": "Mock"}]`))
	if err != nil {
		t.Fatalf("LoadSubstitutionRuleFromJSON: %v", err)
	}
	id, ok := f.resolveSubstitution("Main/Foo")
	if !ok || id != "Mock" {
		t.Fatalf("resolveSubstitution = (%q, %v), want (\"Mock\", true)", id, ok)
	}
}

func TestLoadSubstitutionRuleFromJSON_TestNodeConfigSubstitutesMockWithScripts(t *testing.T) {
	f := NewFactory()
	err := f.RegisterSimpleAction("RealAction", bhtype.PortList{}, func(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
		return bhtype.Failure, nil
	})
	if err != nil {
		t.Fatalf("RegisterSimpleAction: %v", err)
	}

	const doc = `{
  "TestNodeConfigs": {
    "mock1": {
      "return_status": "SUCCESS",
      "post_script": "post_marker := 1"
    }
  },
  "SubstitutionRules": {
    "Main/RealAction": "mock1"
  }
}`
	if err := f.LoadSubstitutionRuleFromJSON([]byte(doc)); err != nil {
		t.Fatalf("LoadSubstitutionRuleFromJSON: %v", err)
	}

	const xml = `<root main_tree_to_execute="Main"><BehaviorTree ID="Main"><RealAction/></BehaviorTree></root>`
	treeDoc, err := f.RegisterTreeFromText(xml)
	if err != nil {
		t.Fatalf("RegisterTreeFromText: %v", err)
	}
	bb := blackboard.New()
	node, err := CreateTree(f, treeDoc, "Main", bb)
	if err != nil {
		t.Fatalf("CreateTree: %v", err)
	}
	status, err := node.ExecuteTick(context.Background())
	if err != nil {
		t.Fatalf("ExecuteTick: %v", err)
	}
	if status != bhtype.Success {
		t.Fatalf("status = %v, want Success (TestNodeConfigs mock overrides RealAction's Failure)", status)
	}
	if _, ok := blackboard.TryGet[int64](bb, "post_marker"); !ok {
		t.Fatal("post_script should have run")
	}
}

func TestLoadSubstitutionRulesYAML_AppliesValidDocument(t *testing.T) {
	f := NewFactory()
	err := f.LoadSubstitutionRulesYAML([]byte("- pattern: Main/**\n  replacement: Mock\n"))
	if err != nil {
		t.Fatalf("LoadSubstitutionRulesYAML: %v", err)
	}
	id, ok := f.resolveSubstitution("Main/Sequence/Action")
	if !ok || id != "Mock" {
		t.Fatalf("resolveSubstitution = (%q, %v), want (\"Mock\", true)", id, ok)
	}
}

func TestCreateTree_BuildsNestedCompositeFromXML(t *testing.T) {
	f := NewFactory()
	tickCount := 0
	err := f.RegisterSimpleAction("CountingSuccess", bhtype.PortList{}, func(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
		tickCount++
		return bhtype.Success, nil
	})
	if err != nil {
		t.Fatalf("RegisterSimpleAction: %v", err)
	}

	const xml = `<root main_tree_to_execute="Main">
  <BehaviorTree ID="Main">
    <Sequence>
      <CountingSuccess/>
      <Fallback>
        <CountingSuccess/>
      </Fallback>
    </Sequence>
  </BehaviorTree>
</root>`
	doc, err := f.RegisterTreeFromText(xml)
	if err != nil {
		t.Fatalf("RegisterTreeFromText: %v", err)
	}
	node, err := CreateTree(f, doc, "Main", blackboard.New())
	if err != nil {
		t.Fatalf("CreateTree: %v", err)
	}
	status, err := node.ExecuteTick(context.Background())
	if err != nil {
		t.Fatalf("ExecuteTick: %v", err)
	}
	if status != bhtype.Success {
		t.Fatalf("status = %v, want Success", status)
	}
	if tickCount != 2 {
		t.Fatalf("tickCount = %d, want 2 (one per CountingSuccess leaf)", tickCount)
	}
}

func TestCreateTree_UnregisteredNodeTypeFails(t *testing.T) {
	f := NewFactory()
	const xml = `<root main_tree_to_execute="Main"><BehaviorTree ID="Main"><NoSuchNode/></BehaviorTree></root>`
	doc, err := f.RegisterTreeFromText(xml)
	if err != nil {
		t.Fatalf("RegisterTreeFromText: %v", err)
	}
	_, err = CreateTree(f, doc, "Main", blackboard.New())
	if err == nil {
		t.Fatal("expected a construction error for an unregistered node type")
	}
	if !strings.Contains(err.Error(), "NoSuchNode") {
		t.Fatalf("error %q does not name the offending tag", err)
	}
}

func TestCreateTree_LoopFeedsEveryQueuedElementInOneTick(t *testing.T) {
	f := NewFactory()
	ticks := 0
	err := f.RegisterSimpleAction("AlwaysSuccess", bhtype.PortList{}, func(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
		ticks++
		return bhtype.Success, nil
	})
	if err != nil {
		t.Fatalf("RegisterSimpleAction: %v", err)
	}

	const xml = `<root main_tree_to_execute="Main">
  <BehaviorTree ID="Main">
    <Loop queue="1;2;3" value="{v}">
      <AlwaysSuccess/>
    </Loop>
  </BehaviorTree>
</root>`
	doc, err := f.RegisterTreeFromText(xml)
	if err != nil {
		t.Fatalf("RegisterTreeFromText: %v", err)
	}
	bb := blackboard.New()
	node, err := CreateTree(f, doc, "Main", bb)
	if err != nil {
		t.Fatalf("CreateTree: %v", err)
	}
	status, err := node.ExecuteTick(context.Background())
	if err != nil {
		t.Fatalf("ExecuteTick: %v", err)
	}
	if status != bhtype.Success {
		t.Fatalf("status = %v, want Success", status)
	}
	if ticks != 3 {
		t.Fatalf("ticks = %d, want 3 (one per queued element)", ticks)
	}
	v, err := blackboard.Get[int64](bb, "v")
	if err != nil {
		t.Fatalf("Get v: %v", err)
	}
	if v != 3 {
		t.Fatalf("v = %d, want 3 (last queued element)", v)
	}
}

func TestCreateTree_LoopEmptyQueueReturnsIfEmpty(t *testing.T) {
	f := NewFactory()
	err := f.RegisterSimpleAction("AlwaysSuccess", bhtype.PortList{}, func(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
		return bhtype.Success, nil
	})
	if err != nil {
		t.Fatalf("RegisterSimpleAction: %v", err)
	}

	const xml = `<root main_tree_to_execute="Main">
  <BehaviorTree ID="Main">
    <Loop queue="" value="{v}" if_empty="FAILURE">
      <AlwaysSuccess/>
    </Loop>
  </BehaviorTree>
</root>`
	doc, err := f.RegisterTreeFromText(xml)
	if err != nil {
		t.Fatalf("RegisterTreeFromText: %v", err)
	}
	node, err := CreateTree(f, doc, "Main", blackboard.New())
	if err != nil {
		t.Fatalf("CreateTree: %v", err)
	}
	status, err := node.ExecuteTick(context.Background())
	if err != nil {
		t.Fatalf("ExecuteTick: %v", err)
	}
	if status != bhtype.Failure {
		t.Fatalf("status = %v, want Failure (if_empty override)", status)
	}
}

func TestCreateTree_WasEntryUpdatedSucceedsOnlyWhenEntryChanges(t *testing.T) {
	f := NewFactory()
	err := f.RegisterSimpleAction("AlwaysSuccess", bhtype.PortList{}, func(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
		return bhtype.Success, nil
	})
	if err != nil {
		t.Fatalf("RegisterSimpleAction: %v", err)
	}

	const xml = `<root main_tree_to_execute="Main">
  <BehaviorTree ID="Main">
    <WasEntryUpdated entry="watched">
      <AlwaysSuccess/>
    </WasEntryUpdated>
  </BehaviorTree>
</root>`
	doc, err := f.RegisterTreeFromText(xml)
	if err != nil {
		t.Fatalf("RegisterTreeFromText: %v", err)
	}
	bb := blackboard.New()
	if err := blackboard.Set(bb, "watched", int64(1)); err != nil {
		t.Fatal(err)
	}
	node, err := CreateTree(f, doc, "Main", bb)
	if err != nil {
		t.Fatalf("CreateTree: %v", err)
	}

	status, err := node.ExecuteTick(context.Background())
	if err != nil {
		t.Fatalf("first tick: %v", err)
	}
	if status != bhtype.Success {
		t.Fatalf("first tick status = %v, want Success (entry set for the first time)", status)
	}

	status, err = node.ExecuteTick(context.Background())
	if err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if status != bhtype.Failure {
		t.Fatalf("second tick status = %v, want Failure (entry unchanged)", status)
	}

	if err := blackboard.Set(bb, "watched", int64(2)); err != nil {
		t.Fatal(err)
	}
	status, err = node.ExecuteTick(context.Background())
	if err != nil {
		t.Fatalf("third tick: %v", err)
	}
	if status != bhtype.Success {
		t.Fatalf("third tick status = %v, want Success (entry changed)", status)
	}
}

func TestCreateTree_SkipUnlessUpdatedSkipsWhenEntryUnchanged(t *testing.T) {
	f := NewFactory()
	err := f.RegisterSimpleAction("AlwaysSuccess", bhtype.PortList{}, func(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
		return bhtype.Success, nil
	})
	if err != nil {
		t.Fatalf("RegisterSimpleAction: %v", err)
	}

	const xml = `<root main_tree_to_execute="Main">
  <BehaviorTree ID="Main">
    <SkipUnlessUpdated entry="watched">
      <AlwaysSuccess/>
    </SkipUnlessUpdated>
  </BehaviorTree>
</root>`
	doc, err := f.RegisterTreeFromText(xml)
	if err != nil {
		t.Fatalf("RegisterTreeFromText: %v", err)
	}
	bb := blackboard.New()
	if err := blackboard.Set(bb, "watched", int64(1)); err != nil {
		t.Fatal(err)
	}
	node, err := CreateTree(f, doc, "Main", bb)
	if err != nil {
		t.Fatalf("CreateTree: %v", err)
	}

	if _, err := node.ExecuteTick(context.Background()); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	status, err := node.ExecuteTick(context.Background())
	if err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if status != bhtype.Skipped {
		t.Fatalf("second tick status = %v, want Skipped (entry unchanged)", status)
	}
}

func TestRegisterTreeFromFile_ResolvesRelativeInclude(t *testing.T) {
	dir := t.TempDir()
	libPath := filepath.Join(dir, "lib.xml")
	mainPath := filepath.Join(dir, "main.xml")

	lib := `<root BTCPP_format="4">
  <BehaviorTree ID="Sub">
    <AlwaysSucceed/>
  </BehaviorTree>
</root>`
	main := `<root BTCPP_format="4" main_tree_to_execute="Main">
  <include path="lib.xml"/>
  <BehaviorTree ID="Main">
    <SubTree ID="Sub"/>
  </BehaviorTree>
</root>`
	if err := os.WriteFile(libPath, []byte(lib), 0o644); err != nil {
		t.Fatalf("WriteFile lib: %v", err)
	}
	if err := os.WriteFile(mainPath, []byte(main), 0o644); err != nil {
		t.Fatalf("WriteFile main: %v", err)
	}

	f := NewFactory()
	err := f.RegisterSimpleAction("AlwaysSucceed", bhtype.PortList{}, func(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
		return bhtype.Success, nil
	})
	if err != nil {
		t.Fatalf("RegisterSimpleAction: %v", err)
	}

	doc, err := f.RegisterTreeFromFile(mainPath)
	if err != nil {
		t.Fatalf("RegisterTreeFromFile: %v", err)
	}
	bb := blackboard.New()
	node, err := CreateTree(f, doc, "Main", bb)
	if err != nil {
		t.Fatalf("CreateTree: %v", err)
	}
	status, err := node.ExecuteTick(context.Background())
	if err != nil {
		t.Fatalf("ExecuteTick: %v", err)
	}
	if status != bhtype.Success {
		t.Fatalf("status = %v, want Success", status)
	}
}

func TestRegisterTreeFromFile_CyclicIncludeIsConstructionError(t *testing.T) {
	dir := t.TempDir()
	aPath := filepath.Join(dir, "a.xml")
	bPath := filepath.Join(dir, "b.xml")

	a := `<root BTCPP_format="4" main_tree_to_execute="Main">
  <include path="b.xml"/>
  <BehaviorTree ID="Main">
    <AlwaysSucceed/>
  </BehaviorTree>
</root>`
	b := `<root BTCPP_format="4">
  <include path="a.xml"/>
</root>`
	if err := os.WriteFile(aPath, []byte(a), 0o644); err != nil {
		t.Fatalf("WriteFile a: %v", err)
	}
	if err := os.WriteFile(bPath, []byte(b), 0o644); err != nil {
		t.Fatalf("WriteFile b: %v", err)
	}

	f := NewFactory()
	if _, err := f.RegisterTreeFromFile(aPath); err == nil {
		t.Fatal("RegisterTreeFromFile: want error for cyclic include, got nil")
	}
}

func TestRegisterTreeFromFile_RosPkgIncludeResolvesViaPackagePath(t *testing.T) {
	pkgRoot := t.TempDir()
	pkgDir := filepath.Join(pkgRoot, "mypkg", "trees")
	if err := os.MkdirAll(pkgDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	t.Setenv("ROS_PACKAGE_PATH", pkgRoot)

	lib := `<root BTCPP_format="4">
  <BehaviorTree ID="Sub">
    <AlwaysSucceed/>
  </BehaviorTree>
</root>`
	if err := os.WriteFile(filepath.Join(pkgDir, "lib.xml"), []byte(lib), 0o644); err != nil {
		t.Fatalf("WriteFile lib: %v", err)
	}

	mainDir := t.TempDir()
	mainPath := filepath.Join(mainDir, "main.xml")
	main := `<root BTCPP_format="4" main_tree_to_execute="Main">
  <include ros_pkg="mypkg" path="trees/lib.xml"/>
  <BehaviorTree ID="Main">
    <SubTree ID="Sub"/>
  </BehaviorTree>
</root>`
	if err := os.WriteFile(mainPath, []byte(main), 0o644); err != nil {
		t.Fatalf("WriteFile main: %v", err)
	}

	f := NewFactory()
	err := f.RegisterSimpleAction("AlwaysSucceed", bhtype.PortList{}, func(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
		return bhtype.Success, nil
	})
	if err != nil {
		t.Fatalf("RegisterSimpleAction: %v", err)
	}

	doc, err := f.RegisterTreeFromFile(mainPath)
	if err != nil {
		t.Fatalf("RegisterTreeFromFile: %v", err)
	}
	bb := blackboard.New()
	node, err := CreateTree(f, doc, "Main", bb)
	if err != nil {
		t.Fatalf("CreateTree: %v", err)
	}
	status, err := node.ExecuteTick(context.Background())
	if err != nil {
		t.Fatalf("ExecuteTick: %v", err)
	}
	if status != bhtype.Success {
		t.Fatalf("status = %v, want Success", status)
	}
}

func TestCreateTree_SubTreeWiresChildBlackboard(t *testing.T) {
	f := NewFactory()
	var seen int64
	err := f.RegisterSimpleAction("Noop", bhtype.PortList{}, func(ctx context.Context, cfg *btnode.Config) (bhtype.Status, error) {
		if v, err := cfg.BB.GetAny("in"); err == nil {
			seen, _ = v.Int64()
		}
		return bhtype.Success, nil
	})
	if err != nil {
		t.Fatalf("RegisterSimpleAction: %v", err)
	}

	const xml = `<root main_tree_to_execute="Main">
  <BehaviorTree ID="Main">
    <Sequence>
      <SubTree ID="Sub" in="{shared_value}"/>
    </Sequence>
  </BehaviorTree>
  <BehaviorTree ID="Sub">
    <Noop/>
  </BehaviorTree>
</root>`
	doc, err := f.RegisterTreeFromText(xml)
	if err != nil {
		t.Fatalf("RegisterTreeFromText: %v", err)
	}
	bb := blackboard.New()
	bb.SetAny("shared_value", bhtype.NewInt(7), "int", nil)
	node, err := CreateTree(f, doc, "Main", bb)
	if err != nil {
		t.Fatalf("CreateTree: %v", err)
	}
	status, err := node.ExecuteTick(context.Background())
	if err != nil {
		t.Fatalf("ExecuteTick: %v", err)
	}
	if status != bhtype.Success {
		t.Fatalf("status = %v, want Success", status)
	}
	if seen != 7 {
		t.Fatalf("subtree read in = %d, want 7 (remapped to the parent's shared_value)", seen)
	}
}
