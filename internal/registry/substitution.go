package registry

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/danshapiro/bhtree/internal/bherr"
	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/script"
)

// SubstitutionRule replaces a node type at tree-construction time when
// its full tree path (the tree ID and each element's tag, e.g.
// "MainTree/Sequence/Connect") matches
// Pattern, a doublestar glob ("**" crosses path segments, "*" doesn't).
// This backs spec §4.7's TestNodeConfig mocking: pointing a pattern at a
// production action's path and a TestNode's registration ID as
// Replacement substitutes a mock for it without touching the tree XML.
type SubstitutionRule struct {
	Pattern     string
	Replacement string
}

// AddSubstitutionRule appends a rule; rules are tried in the order added,
// first match wins.
func (f *Factory) AddSubstitutionRule(pattern, replacementID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, SubstitutionRule{Pattern: pattern, Replacement: replacementID})
}

// resolveSubstitution must be called with f.mu already held (read or
// write), matching the node's full path against every rule in order.
func (f *Factory) resolveSubstitution(path string) (string, bool) {
	for _, r := range f.rules {
		ok, err := doublestar.Match(r.Pattern, path)
		if err == nil && ok {
			return r.Replacement, true
		}
	}
	return "", false
}

// substitutionRuleSchema is the JSON Schema a substitution-rule document
// must satisfy: an array of {pattern, replacement} objects.
const substitutionRuleSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["pattern", "replacement"],
    "properties": {
      "pattern": {"type": "string"},
      "replacement": {"type": "string"}
    },
    "additionalProperties": false
  }
}`

type rawRule struct {
	Pattern     string `json:"pattern" yaml:"pattern"`
	Replacement string `json:"replacement" yaml:"replacement"`
}

// TestNodeConfig is a named TestNode preset loadable from the
// substitution document's TestNodeConfigs section (spec §6): a fixed
// outcome, an optional async delay scheduled through the factory's timer
// queue, and the three outcome scripts a TestNode runs on completion.
type TestNodeConfig struct {
	AsyncDelay    time.Duration
	ReturnStatus  bhtype.Status
	SuccessScript *script.CompiledScript
	FailureScript *script.CompiledScript
	PostScript    *script.CompiledScript
}

// testNodeConfigDocumentSchema is the JSON Schema for the full
// substitution document of spec §6: a TestNodeConfigs map keyed by
// config id, and a SubstitutionRules map from glob pattern straight to a
// registered type id or a TestNodeConfigs key.
const testNodeConfigDocumentSchema = `{
  "type": "object",
  "properties": {
    "TestNodeConfigs": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "async_delay": {"type": "integer", "minimum": 0},
          "return_status": {"enum": ["SUCCESS", "FAILURE", "SKIPPED"]},
          "success_script": {"type": "string"},
          "failure_script": {"type": "string"},
          "post_script": {"type": "string"}
        },
        "additionalProperties": false
      }
    },
    "SubstitutionRules": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    }
  },
  "additionalProperties": false
}`

type rawTestNodeConfig struct {
	AsyncDelay    int64  `json:"async_delay" yaml:"async_delay"`
	ReturnStatus  string `json:"return_status" yaml:"return_status"`
	SuccessScript string `json:"success_script" yaml:"success_script"`
	FailureScript string `json:"failure_script" yaml:"failure_script"`
	PostScript    string `json:"post_script" yaml:"post_script"`
}

type rawSubstitutionDocument struct {
	TestNodeConfigs   map[string]rawTestNodeConfig `json:"TestNodeConfigs" yaml:"TestNodeConfigs"`
	SubstitutionRules map[string]string            `json:"SubstitutionRules" yaml:"SubstitutionRules"`
}

// LoadSubstitutionRuleFromJSON loads a substitution document, accepting
// either shape: a bare array of {pattern, replacement} rule objects, or
// the full spec §6 document with TestNodeConfigs and/or SubstitutionRules
// keys. Malformed documents are rejected before any rule takes effect.
func (f *Factory) LoadSubstitutionRuleFromJSON(data []byte) error {
	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return bherr.NewConstruction(nil, "registry: substitution rules are not valid JSON: %v", err)
	}
	switch probe.(type) {
	case []any:
		return f.loadSubstitutionRuleArray(data, probe)
	case map[string]any:
		return f.loadSubstitutionDocument(data, probe)
	default:
		return bherr.NewConstruction(nil, "registry: substitution document must be a JSON array of rules or an object with TestNodeConfigs/SubstitutionRules")
	}
}

func (f *Factory) loadSubstitutionRuleArray(data []byte, doc any) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("substitution-rules.json", strings.NewReader(substitutionRuleSchema)); err != nil {
		return bherr.NewConstruction(nil, "registry: compiling substitution rule schema: %v", err)
	}
	schema, err := compiler.Compile("substitution-rules.json")
	if err != nil {
		return bherr.NewConstruction(nil, "registry: compiling substitution rule schema: %v", err)
	}
	if err := schema.Validate(doc); err != nil {
		return bherr.NewConstruction(nil, "registry: substitution rules failed schema validation: %v", err)
	}

	var rules []rawRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return bherr.NewConstruction(nil, "registry: decoding substitution rules: %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rules {
		f.rules = append(f.rules, SubstitutionRule{Pattern: r.Pattern, Replacement: r.Replacement})
	}
	return nil
}

func (f *Factory) loadSubstitutionDocument(data []byte, doc any) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("testnode-configs.json", strings.NewReader(testNodeConfigDocumentSchema)); err != nil {
		return bherr.NewConstruction(nil, "registry: compiling substitution document schema: %v", err)
	}
	schema, err := compiler.Compile("testnode-configs.json")
	if err != nil {
		return bherr.NewConstruction(nil, "registry: compiling substitution document schema: %v", err)
	}
	if err := schema.Validate(doc); err != nil {
		return bherr.NewConstruction(nil, "registry: substitution document failed schema validation: %v", err)
	}

	var raw rawSubstitutionDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return bherr.NewConstruction(nil, "registry: decoding substitution document: %v", err)
	}
	return f.applySubstitutionDocument(raw)
}

// applySubstitutionDocument compiles every TestNodeConfigs entry's
// scripts and registers every SubstitutionRules glob, failing atomically
// (no rule or config takes effect) if any script fails to compile or any
// return_status fails to parse.
func (f *Factory) applySubstitutionDocument(raw rawSubstitutionDocument) error {
	configs := map[string]TestNodeConfig{}
	for id, rc := range raw.TestNodeConfigs {
		status := bhtype.Success
		if rc.ReturnStatus != "" {
			s, err := bhtype.ParseStatus(rc.ReturnStatus)
			if err != nil {
				return bherr.NewConstruction(nil, "registry: TestNodeConfigs[%q].return_status: %v", id, err)
			}
			status = s
		}
		tnc := TestNodeConfig{
			AsyncDelay:   time.Duration(rc.AsyncDelay) * time.Millisecond,
			ReturnStatus: status,
		}
		var err error
		if tnc.SuccessScript, err = compileOptionalScript(rc.SuccessScript); err != nil {
			return bherr.NewConstruction(nil, "registry: TestNodeConfigs[%q].success_script: %v", id, err)
		}
		if tnc.FailureScript, err = compileOptionalScript(rc.FailureScript); err != nil {
			return bherr.NewConstruction(nil, "registry: TestNodeConfigs[%q].failure_script: %v", id, err)
		}
		if tnc.PostScript, err = compileOptionalScript(rc.PostScript); err != nil {
			return bherr.NewConstruction(nil, "registry: TestNodeConfigs[%q].post_script: %v", id, err)
		}
		configs[id] = tnc
	}

	patterns := make([]string, 0, len(raw.SubstitutionRules))
	for pattern := range raw.SubstitutionRules {
		patterns = append(patterns, pattern)
	}
	// JSON object key order isn't preserved through unmarshal into a map,
	// and isn't semantically meaningful per the JSON spec anyway. Sort so
	// that "first match wins" (resolveSubstitution) is at least
	// deterministic across runs when two patterns overlap the same path,
	// rather than depending on Go's randomized map iteration.
	sort.Strings(patterns)

	f.mu.Lock()
	defer f.mu.Unlock()
	for id, tnc := range configs {
		f.testNodeConfigs[id] = tnc
	}
	for _, pattern := range patterns {
		f.rules = append(f.rules, SubstitutionRule{Pattern: pattern, Replacement: raw.SubstitutionRules[pattern]})
	}
	return nil
}

func compileOptionalScript(src string) (*script.CompiledScript, error) {
	if src == "" {
		return nil, nil
	}
	return script.Compile(src)
}

// LoadSubstitutionRulesYAML loads the same rule shape from YAML, the
// alternate format SPEC_FULL.md §2.2 adds alongside the JSON Schema'd one.
func (f *Factory) LoadSubstitutionRulesYAML(data []byte) error {
	var rules []rawRule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return bherr.NewConstruction(nil, "registry: decoding YAML substitution rules: %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rules {
		f.rules = append(f.rules, SubstitutionRule{Pattern: r.Pattern, Replacement: r.Replacement})
	}
	return nil
}
