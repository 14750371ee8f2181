package script

import (
	"sync"

	"github.com/zeebo/blake3"

	"github.com/danshapiro/bhtree/internal/bhtype"
)

// CompiledScript is the parsed form of a script, reusable across many
// evaluations (and many trees, since it holds no blackboard state) —
// spec §4.3's `parse(source) -> Fn(&mut Env) -> Any`.
type CompiledScript struct {
	Source string
	ast    *Script
}

// Run evaluates the compiled script against env.
func (c *CompiledScript) Run(env *Env) (bhtype.Any, error) {
	return Eval(c.ast, env)
}

var compileCache struct {
	mu    sync.RWMutex
	byKey map[[32]byte]*CompiledScript
}

func cacheKey(source string) [32]byte {
	return blake3.Sum256([]byte(source))
}

// Compile parses source into a CompiledScript, memoizing by the BLAKE3 hash
// of the source text so that registering the same condition/Script text on
// many nodes (a common pattern: the same `_skipIf` on dozens of leaves)
// parses it only once.
func Compile(source string) (*CompiledScript, error) {
	key := cacheKey(source)

	compileCache.mu.RLock()
	if compileCache.byKey != nil {
		if cached, ok := compileCache.byKey[key]; ok {
			compileCache.mu.RUnlock()
			return cached, nil
		}
	}
	compileCache.mu.RUnlock()

	ast, err := Parse(source)
	if err != nil {
		return nil, err
	}
	compiled := &CompiledScript{Source: source, ast: ast}

	compileCache.mu.Lock()
	if compileCache.byKey == nil {
		compileCache.byKey = make(map[[32]byte]*CompiledScript)
	}
	compileCache.byKey[key] = compiled
	compileCache.mu.Unlock()

	return compiled, nil
}
