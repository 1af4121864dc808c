package policy

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// compiledPredicate wraps a compiled expr-lang program. Compilation
// happens once, at policy load time (see Validate), the same way the
// teacher's ConditionEvaluator compiles and caches programs — except
// here a compile failure is a load-time PolicyInvalid error rather
// than a lazily-discovered runtime one, since a policy must be proven
// valid before any student is processed.
type compiledPredicate struct {
	source  string
	program *vm.Program
}

func compilePredicate(source string) (*compiledPredicate, error) {
	program, err := expr.Compile(source, expr.Env(map[string]any{}), expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compiling predicate %q: %w", source, err)
	}
	return &compiledPredicate{source: source, program: program}, nil
}

// Eval runs the compiled predicate against an environment of join-key
// values and derived facts. A missing variable makes the predicate
// evaluate false rather than error, matching the teacher's
// ConditionEvaluator.handleEvaluationError "graceful handling" of
// not-yet-available variables.
func (c *compiledPredicate) Eval(env map[string]any) (bool, error) {
	out, err := expr.Run(c.program, env)
	if err != nil {
		if isMissingVariable(err) {
			return false, nil
		}
		return false, fmt.Errorf("evaluating predicate %q: %w", c.source, err)
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("predicate %q did not evaluate to a boolean, got %T", c.source, out)
	}
	return result, nil
}

func isMissingVariable(err error) bool {
	msg := err.Error()
	for _, marker := range []string{"cannot fetch", "undefined", "unknown name", "nil pointer", "not found"} {
		if containsFold(msg, marker) {
			return true
		}
	}
	return false
}

// containsFold is a tiny ASCII case-insensitive substring check, used
// only for matching expr-lang's own error message vocabulary and kept
// local to avoid pulling in strings.ToLower allocations on every
// evaluation error.
func containsFold(haystack, needle string) bool {
	n := len(needle)
	h := len(haystack)
	if n == 0 || n > h {
		return n == 0
	}
	for i := 0; i+n <= h; i++ {
		match := true
		for j := 0; j < n; j++ {
			a, b := haystack[i+j], needle[j]
			if a >= 'A' && a <= 'Z' {
				a += 'a' - 'A'
			}
			if b >= 'A' && b <= 'Z' {
				b += 'a' - 'A'
			}
			if a != b {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// Eval evaluates this channel rule's predicate against env. Callers
// must call Validate on the owning PolicyConfig first so the predicate
// is compiled.
func (r *ChannelRule) Eval(env map[string]any) (bool, error) {
	if r.compiled == nil {
		return false, fmt.Errorf("channel rule predicate %q was never compiled (Validate not called)", r.Predicate)
	}
	return r.compiled.Eval(env)
}
