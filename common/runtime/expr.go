package runtime

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// ExprEvaluator evaluates tool node expressions written in CEL. Compiled
// programs are cached per expression since tool nodes re-run the same
// expression on every execution.
type ExprEvaluator struct {
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewExprEvaluator creates an evaluator with an empty program cache
func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{cache: make(map[string]cel.Program)}
}

// Evaluate runs expr with the node's resolved inputs bound to the
// "inputs" variable and returns the native result value
func (e *ExprEvaluator) Evaluate(expr string, inputs map[string]any) (any, error) {
	e.mu.RLock()
	prg, exists := e.cache[expr]
	e.mu.RUnlock()

	if !exists {
		var err error
		prg, err = e.compile(expr)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		e.cache[expr] = prg
		e.mu.Unlock()
	}

	out, _, err := prg.Eval(map[string]any{"inputs": inputs})
	if err != nil {
		return nil, fmt.Errorf("expression evaluation error: %w", err)
	}
	return out.Value(), nil
}

func (e *ExprEvaluator) compile(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("inputs", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create expression env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("expression compilation error: %w", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create expression program: %w", err)
	}
	return prg, nil
}

// CacheSize returns the number of compiled expressions held
func (e *ExprEvaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
