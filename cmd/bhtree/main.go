// Command bhtree is a thin CLI host over the runtime in internal/bttree:
// it loads an XML behavior tree, ticks it to completion, and prints the
// per-node statistics internal/observer collected along the way.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danshapiro/bhtree/internal/blackboard"
	"github.com/danshapiro/bhtree/internal/bttree"
	"github.com/danshapiro/bhtree/internal/observer"
	"github.com/danshapiro/bhtree/internal/registry"
)

// hostConfig is the optional --config YAML file: the tick interval,
// substitution-rule files, and enum constants for the CLI host, per
// SPEC_FULL.md's ambient-stack section.
type hostConfig struct {
	TickInterval          time.Duration    `yaml:"tick_interval"`
	Enums                 map[string]int64 `yaml:"enums"`
	SubstitutionRules     []string         `yaml:"substitution_rules"`
	SubstitutionRulesYAML []string         `yaml:"substitution_rules_yaml"`
}

func loadHostConfig(path string) (hostConfig, error) {
	cfg := hostConfig{TickInterval: 10 * time.Millisecond}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 10 * time.Millisecond
	}
	return cfg, nil
}

func signalCancelContext() (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(context.Background())
	sigCh := make(chan os.Signal, 1)
	stopCh := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				cancel(fmt.Errorf("stopped by signal %s", sig.String()))
			case <-stopCh:
				return
			}
		}
	}()
	cleanup := func() {
		signal.Stop(sigCh)
		close(stopCh)
		cancel(nil)
	}
	return ctx, cleanup
}

func main() {
	xmlPath := flag.String("tree", "", "path to the behavior-tree XML document (required)")
	treeID := flag.String("id", "", "tree ID to run (defaults to the document's main tree)")
	configPath := flag.String("config", "", "optional YAML config: tick_interval, enums, substitution_rules")
	quiet := flag.Bool("quiet", false, "suppress per-transition logging")
	flag.Parse()

	if *xmlPath == "" {
		fmt.Fprintln(os.Stderr, "usage: bhtree --tree <file.xml> [--id <TreeID>] [--config <file.yaml>] [--quiet]")
		os.Exit(2)
	}

	cfg, err := loadHostConfig(*configPath)
	if err != nil {
		log.Fatalf("bhtree: %v", err)
	}

	f := registry.NewFactory()
	if len(cfg.Enums) > 0 {
		f.Enums().RegisterMany(cfg.Enums)
	}
	for _, path := range cfg.SubstitutionRules {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("bhtree: reading substitution rules %s: %v", path, err)
		}
		if err := f.LoadSubstitutionRuleFromJSON(data); err != nil {
			log.Fatalf("bhtree: loading substitution rules %s: %v", path, err)
		}
	}
	for _, path := range cfg.SubstitutionRulesYAML {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("bhtree: reading substitution rules %s: %v", path, err)
		}
		if err := f.LoadSubstitutionRulesYAML(data); err != nil {
			log.Fatalf("bhtree: loading substitution rules %s: %v", path, err)
		}
	}

	doc, err := f.RegisterTreeFromFile(*xmlPath)
	if err != nil {
		log.Fatalf("bhtree: %v", err)
	}

	id := *treeID
	if id == "" {
		id = doc.MainTree
	}
	if id == "" {
		log.Fatalf("bhtree: no --id given and %s declares no main tree", *xmlPath)
	}

	bb := blackboard.New()
	root, err := registry.CreateTree(f, doc, id, bb)
	if err != nil {
		log.Fatalf("bhtree: building tree %q: %v", id, err)
	}

	tr := bttree.New(root, bb)
	defer tr.Close()

	var logger interface{ Close() }
	if !*quiet {
		logger = observer.NewDefaultLogger(root)
	}
	obs := observer.NewTreeObserver(root)
	defer obs.Close()
	if logger != nil {
		defer logger.Close()
	}

	ctx, cancel := signalCancelContext()
	defer cancel()

	status, err := tr.TickWhileRunning(ctx, cfg.TickInterval)
	if err != nil {
		log.Fatalf("bhtree: %v", err)
	}

	fmt.Printf("tree %q finished: %s\n", id, status)
	printStats(obs)
}

func printStats(obs *observer.TreeObserver) {
	byPath := obs.PathStats()
	paths := make([]string, 0, len(byPath))
	for path := range byPath {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		st := byPath[path]
		fmt.Printf("%-40s ticks=%-4d success=%-4d failure=%-4d skip=%-4d status=%s\n",
			path, st.TickCount, st.SuccessCount, st.FailureCount, st.SkipCount, st.CurrentStatus)
	}
}
