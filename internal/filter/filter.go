// Package filter decides which function bodies are instrumented using a CEL
// expression evaluated once per body.
//
// The expression sees these variables:
//
//	name  string  function name
//	file  string  source file of the body
//	line  int     source line of the body
//	body  int     body index within the function
//	kind  string  "script" or "builtin"
//
// Example: !name.startsWith("Log::") && !file.contains("/base/")
package filter

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Subject describes the body being considered.
type Subject struct {
	Name string
	File string
	Line int
	Body int
	Kind string
}

// Filter is a compiled include expression. A nil Filter includes everything.
type Filter struct {
	expr string
	prg  cel.Program
}

// New compiles expr. An empty expression returns a nil filter.
func New(expr string) (*Filter, error) {
	if expr == "" {
		return nil, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("file", cel.StringType),
		cel.Variable("line", cel.IntType),
		cel.Variable("body", cel.IntType),
		cel.Variable("kind", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter environment: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("invalid filter expression %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter expression %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build filter program: %w", err)
	}

	return &Filter{expr: expr, prg: prg}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Include evaluates the expression for s.
func (f *Filter) Include(s Subject) (bool, error) {
	if f == nil {
		return true, nil
	}

	out, _, err := f.prg.Eval(map[string]any{
		"name": s.Name,
		"file": s.File,
		"line": int64(s.Line),
		"body": int64(s.Body),
		"kind": s.Kind,
	})
	if err != nil {
		return false, fmt.Errorf("filter evaluation failed for %s: %w", s.Name, err)
	}

	include, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter returned %T, want bool", out.Value())
	}
	return include, nil
}
