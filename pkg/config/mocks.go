package config

import (
	"errors"
	"fmt"
	mathrand "math/rand/v2"
	"sort"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/getmockd/mockgql/pkg/graphql"
)

// exprEnv is empty: mock expressions are closed over the helper functions.
var exprEnv = map[string]any{}

// exprFunctions are the helpers available to mock expressions.
var exprFunctions = []expr.Option{
	expr.Function("now", func(params ...any) (any, error) {
		return time.Now(), nil
	}, new(func() time.Time)),
	expr.Function("today", func(params ...any) (any, error) {
		return time.Now().Format(time.DateOnly), nil
	}, new(func() string)),
	expr.Function("uuid", func(params ...any) (any, error) {
		return uuid.NewString(), nil
	}, new(func() string)),
	expr.Function("randInt", func(params ...any) (any, error) {
		lo, hi := params[0].(int), params[1].(int)
		if hi < lo {
			return nil, fmt.Errorf("randInt: max %d is less than min %d", hi, lo)
		}
		return lo + mathrand.IntN(hi-lo+1), nil
	}, new(func(int, int) int)),
	expr.Function("pick", func(params ...any) (any, error) {
		choices := params
		if len(params) == 1 {
			if list, ok := params[0].([]any); ok {
				choices = list
			}
		}
		if len(choices) == 0 {
			return nil, errors.New("pick: no choices")
		}
		return choices[mathrand.IntN(len(choices))], nil
	}),
}

// CompileExpr compiles a mock expression with the mock helper functions.
func CompileExpr(input string) (*vm.Program, error) {
	opts := append([]expr.Option{expr.Env(exprEnv)}, exprFunctions...)
	return expr.Compile(input, opts...)
}

// BuildMocks turns configured mock entries into a graphql.MockMap.
//
// Entries that target an object, interface or union type become
// ObjectMocks; everything else becomes a ScalarMock. Expressions are
// compiled once here and evaluated on every call; a runtime failure
// panics, which the executor reports as a field error.
func BuildMocks(entries map[string]MockEntry, schema *graphql.Schema) (graphql.MockMap, error) {
	mocks := make(graphql.MockMap, len(entries))

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		mock, err := buildMock(key, entries[key], schema)
		if err != nil {
			errs = append(errs, fmt.Errorf("mocks.%s: %w", key, err))
			continue
		}
		mocks[key] = mock
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return mocks, nil
}

func buildMock(key string, entry MockEntry, schema *graphql.Schema) (graphql.Mock, error) {
	var generate func() any
	switch {
	case entry.Expr != "" && entry.Value != nil:
		return nil, errors.New("value and expr are mutually exclusive")
	case entry.Expr != "":
		program, err := CompileExpr(entry.Expr)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", entry.Expr, err)
		}
		generate = func() any {
			out, err := expr.Run(program, exprEnv)
			if err != nil {
				panic(fmt.Sprintf("eval %q: %v", entry.Expr, err))
			}
			return out
		}
	default:
		value := entry.Value
		generate = func() any { return deepCopy(value) }
	}

	if !targetsComposite(key, schema) && entry.Typename == "" {
		return graphql.Scalar(generate), nil
	}

	return graphql.Object(entry.Typename, func() map[string]any {
		v := generate()
		if v == nil {
			return nil
		}
		record, ok := v.(map[string]any)
		if !ok {
			panic(fmt.Sprintf("expected an object, got %T", v))
		}
		return record
	}), nil
}

// targetsComposite reports whether key names an object, interface or
// union type, or a non-list field of one.
func targetsComposite(key string, schema *graphql.Schema) bool {
	if schema == nil {
		return false
	}
	fp := graphql.ParseFieldPath(key)
	if !fp.IsField() {
		def := schema.GetType(key)
		return def != nil && isComposite(def.Kind)
	}

	field := schema.GetField(fp.TypeName, fp.FieldName)
	if field == nil || field.Type.Elem != nil {
		return false
	}
	def := schema.GetType(field.Type.Name())
	return def != nil && isComposite(def.Kind)
}

func isComposite(kind ast.DefinitionKind) bool {
	return kind == ast.Object || kind == ast.Interface || kind == ast.Union
}

// deepCopy copies the maps and slices of a decoded configuration value so
// each mock call hands out an independent record.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
