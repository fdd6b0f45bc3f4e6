package graphql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	mathrand "math/rand/v2"
	"reflect"

	"github.com/getmockd/mockgql/pkg/logging"
	"github.com/getmockd/mockgql/pkg/metrics"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
)

// Executor executes GraphQL operations by fabricating every field from the
// Mock Map, falling back to the default mock rules for types without an entry.
// An Executor is safe for concurrent use.
type Executor struct {
	schema        *Schema
	mocks         MockMap
	introspection bool
	seed          *uint64
	log           *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithIntrospection enables or disables __schema and __type queries.
func WithIntrospection(enabled bool) ExecutorOption {
	return func(e *Executor) { e.introspection = enabled }
}

// WithSeed makes every execution draw default values from a PRNG seeded
// with seed, so identical requests get identical responses.
func WithSeed(seed uint64) ExecutorOption {
	return func(e *Executor) { e.seed = &seed }
}

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if log != nil {
			e.log = log
		}
	}
}

// NewExecutor creates an executor for schema backed by mocks.
// Introspection is enabled unless disabled with WithIntrospection(false).
func NewExecutor(schema *Schema, mocks MockMap, opts ...ExecutorOption) *Executor {
	e := &Executor{
		schema:        schema,
		mocks:         mocks,
		introspection: true,
		log:           logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schema returns the schema this executor serves.
func (e *Executor) Schema() *Schema {
	return e.schema
}

// Mocks returns the Mock Map this executor resolves fields with.
func (e *Executor) Mocks() MockMap {
	return e.mocks
}

// Operation is a parsed, validated operation ready to run.
type Operation struct {
	doc  *ast.QueryDocument
	def  *ast.OperationDefinition
	vars map[string]interface{}
}

// Type returns the operation type (query, mutation, or subscription).
func (o *Operation) Type() ast.Operation {
	return o.def.Operation
}

// Name returns the operation name, which may be empty.
func (o *Operation) Name() string {
	return o.def.Name
}

// Prepare parses and validates req against the schema, selects the
// operation and coerces its variables. On failure the returned errors are
// ready to send as the response "errors" array.
func (e *Executor) Prepare(req *GraphQLRequest) (*Operation, []GraphQLError) {
	if req == nil || req.Query == "" {
		return nil, []GraphQLError{{Message: "query is required"}}
	}

	doc, errs := gqlparser.LoadQueryWithRules(e.schema.AST(), req.Query, nil)
	if len(errs) > 0 {
		return nil, fromGQLErrors(errs)
	}

	var op *ast.OperationDefinition
	switch {
	case req.OperationName != "":
		op = doc.Operations.ForName(req.OperationName)
		if op == nil {
			return nil, []GraphQLError{{Message: fmt.Sprintf("Unknown operation named %q.", req.OperationName)}}
		}
	case len(doc.Operations) == 1:
		op = doc.Operations[0]
	case len(doc.Operations) == 0:
		return nil, []GraphQLError{{Message: "no operation found in query"}}
	default:
		return nil, []GraphQLError{{Message: "Must provide operation name if query contains multiple operations."}}
	}

	vars, err := validator.VariableValues(e.schema.AST(), op, req.Variables)
	if err != nil {
		var gqlErr *gqlerror.Error
		if errors.As(err, &gqlErr) {
			if len(gqlErr.Path) > 0 {
				gqlErr.Message = gqlErr.Path.String() + " " + gqlErr.Message
			}
			return nil, fromGQLErrors(gqlerror.List{gqlErr})
		}
		return nil, []GraphQLError{{Message: err.Error()}}
	}

	return &Operation{doc: doc, def: op, vars: vars}, nil
}

// Execute executes a query or mutation and returns a response.
// Subscriptions are rejected; they are served by SubscriptionHandler.
func (e *Executor) Execute(ctx context.Context, req *GraphQLRequest) *GraphQLResponse {
	op, errs := e.Prepare(req)
	if errs != nil {
		return &GraphQLResponse{Errors: errs}
	}
	if op.Type() == ast.Subscription {
		return errorResponse("subscriptions are only available over WebSocket")
	}
	return e.Run(ctx, op)
}

// Run executes a prepared operation once. For subscriptions this yields a
// single event payload.
func (e *Executor) Run(ctx context.Context, op *Operation) *GraphQLResponse {
	root := e.rootType(op.Type())
	if root == nil {
		return errorResponse(fmt.Sprintf("schema does not support %s operations", op.Type()))
	}

	ex := &execution{
		executor: e,
		ctx:      ctx,
		doc:      op.doc,
		vars:     op.vars,
	}
	if e.seed != nil {
		ex.rng = mathrand.New(mathrand.NewPCG(*e.seed, *e.seed))
	}

	var rootRecord map[string]any
	if mock, ok := e.mocks.lookup(root.Name); ok {
		value, _, ferr := ex.safeGenerate(root.Name, mock, nil)
		if ferr != nil {
			ex.errors = append(ex.errors, ferr)
		} else if rec, ok := toRecord(value); ok {
			rootRecord = rec
		}
	}

	data, ok := ex.completeObject(root, op.def.SelectionSet, rootRecord, nil)

	resp := &GraphQLResponse{executed: true}
	if ok {
		resp.Data = data.Map()
		resp.ordered = data
	}
	for _, ferr := range ex.errors {
		resp.Errors = append(resp.Errors, ferr.toGraphQLError())
	}
	return resp
}

func (e *Executor) rootType(op ast.Operation) *ast.Definition {
	s := e.schema.AST()
	switch op {
	case ast.Query:
		return s.Query
	case ast.Mutation:
		return s.Mutation
	case ast.Subscription:
		return s.Subscription
	default:
		return nil
	}
}

// execution holds the state of a single operation run.
type execution struct {
	executor *Executor
	ctx      context.Context
	doc      *ast.QueryDocument
	vars     map[string]interface{}
	rng      *mathrand.Rand
	errors   []*fieldError
}

func (ex *execution) fail(path []interface{}, format string, args ...any) {
	ex.errors = append(ex.errors, &fieldError{
		message: fmt.Sprintf(format, args...),
		path:    append([]interface{}(nil), path...),
	})
}

// fieldGroup is every selection sharing one response key.
type fieldGroup struct {
	key    string
	fields []*ast.Field
}

// collectFields flattens fragments and applies @skip/@include, grouping
// fields by response key in selection order.
func (ex *execution) collectFields(objType *ast.Definition, sels ast.SelectionSet) []*fieldGroup {
	var groups []*fieldGroup
	index := make(map[string]*fieldGroup)
	visited := make(map[string]bool)

	var walk func(sels ast.SelectionSet)
	walk = func(sels ast.SelectionSet) {
		for _, sel := range sels {
			switch s := sel.(type) {
			case *ast.Field:
				if !ex.shouldInclude(s.Directives) {
					continue
				}
				key := s.Alias
				if key == "" {
					key = s.Name
				}
				g, ok := index[key]
				if !ok {
					g = &fieldGroup{key: key}
					index[key] = g
					groups = append(groups, g)
				}
				g.fields = append(g.fields, s)

			case *ast.InlineFragment:
				if !ex.shouldInclude(s.Directives) || !ex.fragmentApplies(objType, s.TypeCondition) {
					continue
				}
				walk(s.SelectionSet)

			case *ast.FragmentSpread:
				if visited[s.Name] || !ex.shouldInclude(s.Directives) {
					continue
				}
				frag := s.Definition
				if frag == nil {
					frag = ex.doc.Fragments.ForName(s.Name)
				}
				if frag == nil || !ex.fragmentApplies(objType, frag.TypeCondition) {
					continue
				}
				visited[s.Name] = true
				walk(frag.SelectionSet)
			}
		}
	}
	walk(sels)

	return groups
}

func (ex *execution) shouldInclude(dirs ast.DirectiveList) bool {
	if d := dirs.ForName("skip"); d != nil {
		if skip, _ := d.ArgumentMap(ex.vars)["if"].(bool); skip {
			return false
		}
	}
	if d := dirs.ForName("include"); d != nil {
		if include, _ := d.ArgumentMap(ex.vars)["if"].(bool); !include {
			return false
		}
	}
	return true
}

func (ex *execution) fragmentApplies(objType *ast.Definition, typeCondition string) bool {
	if typeCondition == "" {
		return true
	}
	return ex.executor.schema.IsPossibleType(typeCondition, objType.Name)
}

// completeObject resolves the selection set of one object. ok is false when
// a non-null field failed and the object itself must become null.
func (ex *execution) completeObject(objType *ast.Definition, sels ast.SelectionSet, record map[string]any, path []interface{}) (*ResponseObject, bool) {
	if err := ex.ctx.Err(); err != nil {
		ex.fail(path, "request cancelled: %v", err)
		return nil, false
	}

	groups := ex.collectFields(objType, sels)
	result := newObject(len(groups))
	for _, g := range groups {
		field := g.fields[0]
		fieldPath := appendPath(path, g.key)

		if field.Name == TypenameKey {
			result.set(g.key, objType.Name)
			continue
		}

		def := objType.Fields.ForName(field.Name)
		if def == nil {
			def = field.Definition
		}
		if def == nil {
			ex.fail(fieldPath, "Cannot query field %q on type %q.", field.Name, objType.Name)
			result.set(g.key, nil)
			continue
		}

		value, provided, ferr := ex.fieldSource(objType, def, field, record, fieldPath)
		if ferr != nil {
			ex.errors = append(ex.errors, ferr)
			if def.Type.NonNull {
				return nil, false
			}
			result.set(g.key, nil)
			continue
		}

		completed, ok := ex.completeValue(def.Type, objType.Name+"."+def.Name, mergeSelectionSets(g.fields), value, provided, fieldPath)
		if !ok {
			return nil, false
		}
		result.set(g.key, completed)
	}
	return result, true
}

// fieldSource finds a value for a field: the parent record first, then a
// "Type.field" mock. provided is false when the value must be generated
// from the field's type.
func (ex *execution) fieldSource(objType *ast.Definition, def *ast.FieldDefinition, field *ast.Field, record map[string]any, path []interface{}) (any, bool, *fieldError) {
	switch field.Name {
	case "__schema", "__type":
		if !ex.executor.introspection {
			return nil, false, &fieldError{message: "GraphQL introspection is not allowed", path: path}
		}
		if field.Name == "__schema" {
			return ex.introspectSchema(), true, nil
		}
		name, _ := field.ArgumentMap(ex.vars)["name"].(string)
		if t := ex.executor.schema.GetType(name); t != nil {
			return ex.introspectType(t), true, nil
		}
		return nil, true, nil
	}

	if record != nil {
		if v, ok := record[def.Name]; ok {
			if fn, ok := v.(argsThunk); ok {
				v = func() any { return fn(field.ArgumentMap(ex.vars)) }
			}
			value, typename, ferr := ex.unwrapValue(objType.Name+"."+def.Name, v, path)
			if ferr != nil {
				return nil, false, ferr
			}
			return withTypename(value, typename), true, nil
		}
	}

	key := FieldPath{TypeName: objType.Name, FieldName: def.Name}.String()
	if mock, ok := ex.executor.mocks.lookup(key); ok {
		value, typename, ferr := ex.safeGenerate(key, mock, path)
		if ferr != nil {
			return nil, false, ferr
		}
		return withTypename(value, typename), true, nil
	}

	return nil, false, nil
}

// unwrapValue evaluates lazily supplied record values: nested mocks and thunks.
func (ex *execution) unwrapValue(name string, v any, path []interface{}) (any, string, *fieldError) {
	switch fn := v.(type) {
	case Mock:
		return ex.safeGenerate(name, fn, path)
	case func() any:
		return ex.safeCall(name, fn, path)
	default:
		return v, "", nil
	}
}

// completeValue completes a value of type t. ok is false when a non-null
// position resolved to null and the null must propagate to the parent.
func (ex *execution) completeValue(t *ast.Type, fieldName string, sels ast.SelectionSet, value any, provided bool, path []interface{}) (any, bool) {
	if t.NonNull {
		inner := *t
		inner.NonNull = false
		v, failed := ex.completeNullable(&inner, fieldName, sels, value, provided, path)
		if failed {
			return nil, false
		}
		if v == nil {
			ex.fail(path, "Cannot return null for non-nullable field %s.", fieldName)
			return nil, false
		}
		return v, true
	}

	v, failed := ex.completeNullable(t, fieldName, sels, value, provided, path)
	if failed {
		return nil, true
	}
	return v, true
}

// completeNullable completes a value of nullable type t. failed reports
// that an error was recorded and the position is null.
func (ex *execution) completeNullable(t *ast.Type, fieldName string, sels ast.SelectionSet, value any, provided bool, path []interface{}) (any, bool) {
	if provided && value == nil {
		return nil, false
	}

	if t.Elem != nil {
		return ex.completeList(t, fieldName, sels, value, provided, path)
	}

	def := ex.executor.schema.GetType(t.NamedType)
	if def == nil {
		ex.fail(path, "Unknown type %q.", t.NamedType)
		return nil, true
	}

	switch def.Kind {
	case ast.Scalar:
		return ex.completeScalar(def, value, provided, path)
	case ast.Enum:
		return ex.completeEnum(def, value, provided, path)
	case ast.Object, ast.Interface, ast.Union:
		return ex.completeComposite(def, sels, value, provided, path)
	default:
		ex.fail(path, "Type %q cannot be used as an output type.", def.Name)
		return nil, true
	}
}

func (ex *execution) completeList(t *ast.Type, fieldName string, sels ast.SelectionSet, value any, provided bool, path []interface{}) (any, bool) {
	var items []any
	if provided {
		var ok bool
		items, ok = toSlice(value)
		if !ok {
			ex.fail(path, "Expected Iterable, but did not find one for field %s.", fieldName)
			return nil, true
		}
	} else {
		items = make([]any, DefaultListLength)
	}

	out := make([]any, len(items))
	for i, item := range items {
		v, ok := ex.completeValue(t.Elem, fieldName, sels, item, provided, appendPath(path, i))
		if !ok {
			return nil, true
		}
		out[i] = v
	}
	return out, false
}

func (ex *execution) completeScalar(def *ast.Definition, value any, provided bool, path []interface{}) (any, bool) {
	if !provided {
		v, _, ferr := ex.generateForType(def, path)
		if ferr != nil {
			ex.errors = append(ex.errors, ferr)
			return nil, true
		}
		value = v
	}

	out, err := serializeScalar(def.Name, value)
	if err != nil {
		ex.fail(path, "%v", err)
		return nil, true
	}
	return out, false
}

func (ex *execution) completeEnum(def *ast.Definition, value any, provided bool, path []interface{}) (any, bool) {
	if !provided {
		v, _, ferr := ex.generateForType(def, path)
		if ferr != nil {
			ex.errors = append(ex.errors, ferr)
			return nil, true
		}
		value = v
	}
	if value == nil {
		return nil, false
	}

	name := fmt.Sprint(value)
	if def.EnumValues.ForName(name) == nil {
		ex.fail(path, "Enum %q cannot represent value: %q", def.Name, name)
		return nil, true
	}
	return name, false
}

func (ex *execution) completeComposite(def *ast.Definition, sels ast.SelectionSet, value any, provided bool, path []interface{}) (any, bool) {
	record, typename, ferr := ex.objectRecord(def, value, provided, path)
	if ferr != nil {
		ex.errors = append(ex.errors, ferr)
		return nil, true
	}
	if record == nil {
		return nil, false
	}

	concrete := def
	if def.Kind != ast.Object {
		concrete, ferr = ex.resolveAbstract(def, record, typename, path)
		if ferr != nil {
			ex.errors = append(ex.errors, ferr)
			return nil, true
		}
		if concrete.Name != def.Name {
			if mock, ok := ex.executor.mocks.lookup(concrete.Name); ok {
				base, _, ferr := ex.safeGenerate(concrete.Name, mock, path)
				if ferr != nil {
					ex.errors = append(ex.errors, ferr)
					return nil, true
				}
				if baseRecord, ok := toRecord(base); ok {
					record = overlay(baseRecord, record)
				}
			}
		}
	}

	result, ok := ex.completeObject(concrete, sels, record, path)
	if !ok {
		return nil, true
	}
	return result, false
}

// objectRecord builds the record backing a composite position: the type's
// own mock as a base, overlaid with whatever the parent supplied.
func (ex *execution) objectRecord(def *ast.Definition, value any, provided bool, path []interface{}) (map[string]any, string, *fieldError) {
	record := map[string]any{}
	typename := ""

	if mock, ok := ex.executor.mocks.lookup(def.Name); ok {
		base, tn, ferr := ex.safeGenerate(def.Name, mock, path)
		if ferr != nil {
			return nil, "", ferr
		}
		if base == nil {
			if !provided {
				return nil, "", nil
			}
		} else {
			baseRecord, ok := toRecord(base)
			if !ok {
				return nil, "", &fieldError{message: fmt.Sprintf("mock for %s must return an object, got %T", def.Name, base), path: path}
			}
			record = baseRecord
		}
		typename = tn
	}

	if provided {
		supplied, ok := toRecord(value)
		if !ok {
			return nil, "", &fieldError{message: fmt.Sprintf("Expected value of type %q to be an object, got %T", def.Name, value), path: path}
		}
		record = overlay(record, supplied)
	}

	if tn, ok := record[TypenameKey].(string); ok && tn != "" {
		typename = tn
	}
	return record, typename, nil
}

// resolveAbstract picks the concrete object type for an interface or union.
func (ex *execution) resolveAbstract(def *ast.Definition, record map[string]any, typename string, path []interface{}) (*ast.Definition, *fieldError) {
	schema := ex.executor.schema
	if typename != "" {
		concrete := schema.GetType(typename)
		if concrete == nil || concrete.Kind != ast.Object || !schema.IsPossibleType(def.Name, typename) {
			return nil, &fieldError{
				message: fmt.Sprintf("Abstract type %q must resolve to an Object type at runtime, received %q", def.Name, typename),
				path:    path,
			}
		}
		return concrete, nil
	}

	possible := schema.PossibleTypes(def.Name)
	if len(possible) == 0 {
		return nil, &fieldError{message: fmt.Sprintf("Abstract type %q has no possible types", def.Name), path: path}
	}
	return possible[rngIntN(ex.rng, len(possible))], nil
}

// generateForType produces a value for a leaf type with no supplied value.
func (ex *execution) generateForType(def *ast.Definition, path []interface{}) (any, string, *fieldError) {
	if mock, ok := ex.executor.mocks.lookup(def.Name); ok {
		return ex.safeGenerate(def.Name, mock, path)
	}
	if def.Kind == ast.Enum {
		if len(def.EnumValues) == 0 {
			return nil, "", nil
		}
		return def.EnumValues[rngIntN(ex.rng, len(def.EnumValues))].Name, "", nil
	}
	return defaultScalar(ex.rng, def.Name), "", nil
}

// safeGenerate runs a mock, turning a panic into a field error.
func (ex *execution) safeGenerate(name string, mock Mock, path []interface{}) (value any, typename string, ferr *fieldError) {
	defer func() {
		if r := recover(); r != nil {
			ex.executor.log.Warn("mock generator panicked", "mock", name, "panic", r)
			recordMockFailure(name)
			value, typename = nil, ""
			ferr = &fieldError{message: fmt.Sprintf("mock for %s failed: %v", name, r), path: append([]interface{}(nil), path...)}
		}
	}()
	value, typename = generate(mock)
	return value, typename, nil
}

func (ex *execution) safeCall(name string, fn func() any, path []interface{}) (value any, typename string, ferr *fieldError) {
	defer func() {
		if r := recover(); r != nil {
			ex.executor.log.Warn("field value panicked", "field", name, "panic", r)
			recordMockFailure(name)
			value = nil
			ferr = &fieldError{message: fmt.Sprintf("resolving %s failed: %v", name, r), path: append([]interface{}(nil), path...)}
		}
	}()
	return fn(), "", nil
}

func recordMockFailure(name string) {
	if metrics.MockFailuresTotal == nil {
		return
	}
	if vec, err := metrics.MockFailuresTotal.WithLabels(name); err == nil {
		_ = vec.Inc()
	}
}

// mergeSelectionSets concatenates the sub-selections of fields sharing a response key.
func mergeSelectionSets(fields []*ast.Field) ast.SelectionSet {
	if len(fields) == 1 {
		return fields[0].SelectionSet
	}
	var merged ast.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}

func appendPath(path []interface{}, elem interface{}) []interface{} {
	out := make([]interface{}, len(path)+1)
	copy(out, path)
	out[len(path)] = elem
	return out
}

// withTypename attaches an ObjectMock's typename to the record it produced.
func withTypename(value any, typename string) any {
	if typename == "" {
		return value
	}
	record, ok := toRecord(value)
	if !ok {
		return value
	}
	if _, set := record[TypenameKey]; set {
		return record
	}
	out := overlay(record, nil)
	out[TypenameKey] = typename
	return out
}

// overlay returns a copy of base with every key of top written over it.
func overlay(base, top map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(top))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range top {
		out[k] = v
	}
	return out
}

// toRecord converts any string-keyed map into map[string]any.
func toRecord(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// toSlice converts any slice or array into []any.
func toSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
