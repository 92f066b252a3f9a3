package route

import (
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/randalmurphal/taskflow/pkg/taskflow"
	"github.com/randalmurphal/taskflow/pkg/taskflow/config"
)

var (
	// ErrIndexOutOfRange indicates an index expression picked a successor
	// that does not exist.
	ErrIndexOutOfRange = errors.New("route index out of range")

	// ErrNotInteger indicates an index expression produced a non-integer.
	ErrNotInteger = errors.New("route index is not an integer")
)

// Case routes to Then when When evaluates to true.
type Case struct {
	When string `json:"when" yaml:"when"`
	Then string `json:"then" yaml:"then"`
}

type caseProgram struct {
	then    string
	program *vm.Program
}

// Router picks the first matching case.
type Router struct {
	cases []caseProgram
}

// Compile compiles cases in order. Every case needs an expression and a
// target.
func Compile(cases ...Case) (*Router, error) {
	r := &Router{cases: make([]caseProgram, 0, len(cases))}
	for i, c := range cases {
		if c.When == "" || c.Then == "" {
			return nil, fmt.Errorf("route case %d: when and then are required", i)
		}
		program, err := expr.Compile(c.When, expr.AllowUndefinedVariables(), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("route case %d (%s): %w", i, c.When, err)
		}
		r.cases = append(r.cases, caseProgram{then: c.Then, program: program})
	}
	return r, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(cases ...Case) *Router {
	r, err := Compile(cases...)
	if err != nil {
		panic(err)
	}
	return r
}

// Select returns the target of the first case that is true for env.
// ok is false when no case matched.
func (r *Router) Select(env any) (target string, ok bool, err error) {
	for _, c := range r.cases {
		out, err := vm.Run(c.program, env)
		if err != nil {
			return "", false, fmt.Errorf("route to %s: %w", c.then, err)
		}
		if matched, isBool := out.(bool); isBool && matched {
			return c.then, true, nil
		}
	}
	return "", false, nil
}

// Targets returns every case target in order.
func (r *Router) Targets() []string {
	out := make([]string, len(r.cases))
	for i, c := range r.cases {
		out[i] = c.then
	}
	return out
}

// Selector evaluates an integer expression to a successor index.
type Selector struct {
	source  string
	program *vm.Program
}

// CompileIndex compiles an index expression.
func CompileIndex(expression string) (*Selector, error) {
	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("route index %s: %w", expression, err)
	}
	return &Selector{source: expression, program: program}, nil
}

// MustCompileIndex is like CompileIndex but panics on error.
func MustCompileIndex(expression string) *Selector {
	s, err := CompileIndex(expression)
	if err != nil {
		panic(err)
	}
	return s
}

// Index evaluates the expression against env.
func (s *Selector) Index(env any) (int, error) {
	out, err := vm.Run(s.program, env)
	if err != nil {
		return 0, fmt.Errorf("route index %s: %w", s.source, err)
	}
	switch v := out.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case int32:
		return int(v), nil
	case uint:
		return int(v), nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
	}
	return 0, fmt.Errorf("%w: %s = %v", ErrNotInteger, s.source, out)
}

// Env builds the expression environment for a step.
func Env[P any](ctx taskflow.Context, p P) map[string]any {
	return map[string]any{
		"task":       ctx.Task(),
		"successors": ctx.Successors(),
		"run_id":     ctx.RunID(),
		"payload":    p,
	}
}

// Step runs next, then routes on the payload it returned. A nil next passes
// the payload through. Evaluation errors fail the step.
func Step[P any](r *Router, next taskflow.StepFunc[P]) taskflow.StepFunc[P] {
	return func(ctx taskflow.Context, p P) (P, error) {
		out, err := run(next, ctx, p)
		if err != nil {
			return out, err
		}

		target, ok, err := r.Select(Env(ctx, out))
		if err != nil {
			return out, err
		}
		if ok {
			ctx.SetNextTask(target)
		}
		return out, nil
	}
}

// IndexStep runs next, then continues with the successor picked by s.
func IndexStep[P any](s *Selector, next taskflow.StepFunc[P]) taskflow.StepFunc[P] {
	return func(ctx taskflow.Context, p P) (P, error) {
		out, err := run(next, ctx, p)
		if err != nil {
			return out, err
		}

		successors := ctx.Successors()
		i, err := s.Index(Env(ctx, out))
		if err != nil {
			return out, err
		}
		if i < 0 || i >= len(successors) {
			return out, fmt.Errorf("%w: %d of %d successors of %s", ErrIndexOutOfRange, i, len(successors), ctx.Task())
		}
		ctx.SetNextTask(successors[i])
		return out, nil
	}
}

func run[P any](next taskflow.StepFunc[P], ctx taskflow.Context, p P) (P, error) {
	if next == nil {
		return p, nil
	}
	return next(ctx, p)
}

// CasesFromConfig reads a list of {when, then} maps under key.
//
//	routes:
//	  classify:
//	    - when: "payload.Total > 1000"
//	      then: manual_review
func CasesFromConfig(cfg config.Config, key string) ([]Case, error) {
	raw, ok := cfg.Any(key, nil).([]any)
	if !ok {
		if cfg.Has(key) {
			return nil, fmt.Errorf("route cases %s: expected a list", key)
		}
		return nil, nil
	}

	cases := make([]Case, 0, len(raw))
	for i, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("route cases %s[%d]: expected a map", key, i)
		}
		c := config.New(entry)
		cases = append(cases, Case{When: c.String("when", ""), Then: c.String("then", "")})
	}
	return cases, nil
}
