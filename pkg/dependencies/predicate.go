package dependencies

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// predicateOptions parses predicates as plain expressions; statements,
// including a second line after the expression, are rejected by the parser.
var predicateOptions = &syntax.FileOptions{}

// evalPredicate evaluates a descriptor predicate expression for its truth
// value. actual is None when the dependency is absent.
func evalPredicate(d Descriptor, actual string, present bool) (bool, error) {
	thread := &starlark.Thread{
		Name:  "predicate:" + d.Key,
		Print: func(_ *starlark.Thread, _ string) {},
	}

	var actualValue starlark.Value = starlark.None
	if present {
		actualValue = starlark.String(actual)
	}
	env := starlark.StringDict{
		"key":      starlark.String(d.Key),
		"expected": starlark.String(d.Expected),
		"actual":   actualValue,
		"present":  starlark.Bool(present),
		"version":  starlark.NewBuiltin("version", builtinVersionAtLeast),
	}

	v, err := starlark.EvalOptions(predicateOptions, thread, "predicate", d.Predicate, env)
	if err != nil {
		return false, fmt.Errorf("predicate for %s failed: %w", d.Key, err)
	}
	return bool(v.Truth()), nil
}

// builtinVersionAtLeast implements version(actual, minimum) -> bool using the
// same comparison as CompareMin.
func builtinVersionAtLeast(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var actual, minimum string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &actual, &minimum); err != nil {
		return nil, err
	}
	ok, err := satisfies(actual, minimum, CompareMin)
	if err != nil {
		return nil, err
	}
	return starlark.Bool(ok), nil
}
