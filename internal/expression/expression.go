/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package expression evaluates the small formula language used by filler
// presets. Formulas accept "and", "or", "not", "=", "<>", single-quoted
// strings and an infix "like" operator; they are rewritten into HCL native
// syntax and evaluated with cty values.
package expression

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// Expression is a compiled formula.
type Expression struct {
	source string
	expr   hclsyntax.Expression
}

// Compile parses a formula.
func Compile(source string) (*Expression, error) {
	rewritten, err := rewrite(source)
	if err != nil {
		return nil, fmt.Errorf("expression %q: %w", source, err)
	}
	expr, diags := hclsyntax.ParseExpression([]byte(rewritten), "expression", hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return nil, fmt.Errorf("expression %q: %s", source, diags.Error())
	}
	return &Expression{source: source, expr: expr}, nil
}

// String returns the original formula.
func (e *Expression) String() string { return e.source }

func (e *Expression) evaluate(vars map[string]cty.Value) (cty.Value, error) {
	ctx := &hcl.EvalContext{
		Variables: vars,
		Functions: map[string]function.Function{"like": likeFunc},
	}
	val, diags := e.expr.Value(ctx)
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("evaluate %q: %s", e.source, diags.Error())
	}
	return val, nil
}

// Bool evaluates the formula as a predicate. Results that are not booleans are false.
func (e *Expression) Bool(vars map[string]cty.Value) (bool, error) {
	val, err := e.evaluate(vars)
	if err != nil {
		return false, err
	}
	if val.IsNull() || !val.IsKnown() || val.Type() != cty.Bool {
		return false, nil
	}
	return val.True(), nil
}

// Number evaluates the formula as a number, rounding down. Results that are
// not numbers are zero.
func (e *Expression) Number(vars map[string]cty.Value) (int, error) {
	val, err := e.evaluate(vars)
	if err != nil {
		return 0, err
	}
	if val.IsNull() || !val.IsKnown() || val.Type() != cty.Number {
		return 0, nil
	}
	f, _ := val.AsBigFloat().Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, nil
	}
	return int(math.Floor(f)), nil
}

// EvaluateCount computes a per-break filler count from the size of the
// filler collection and a random draw below it.
func EvaluateCount(source string, count, random int) (int, error) {
	e, err := Compile(source)
	if err != nil {
		return 0, err
	}
	return e.Number(map[string]cty.Value{
		"count":  cty.NumberIntVal(int64(count)),
		"random": cty.NumberIntVal(int64(random)),
	})
}

var likeFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "value", Type: cty.String, AllowNull: true},
		{Name: "pattern", Type: cty.String, AllowNull: true},
	},
	Type: function.StaticReturnType(cty.Bool),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		if args[0].IsNull() || args[1].IsNull() {
			return cty.False, nil
		}
		re, err := likePattern(args[1].AsString())
		if err != nil {
			return cty.False, err
		}
		return cty.BoolVal(re.MatchString(args[0].AsString())), nil
	},
})

// likePattern converts a SQL LIKE pattern into a case-insensitive regexp.
func likePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
