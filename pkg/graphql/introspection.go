package graphql

import (
	"sort"

	"github.com/vektah/gqlparser/v2/ast"
)

// Introspection results are ordinary records walked by completeObject
// against the prelude's __Schema/__Type definitions. Values that point back
// into the type graph are thunks so only selected branches are built.

// argsThunk is a thunk that depends on the arguments of the field selecting it.
type argsThunk func(args map[string]any) any

func includeDeprecated(args map[string]any) bool {
	include, _ := args["includeDeprecated"].(bool)
	return include
}

func (ex *execution) introspectSchema() map[string]any {
	s := ex.executor.schema.AST()
	return map[string]any{
		"description":      nilIfEmpty(s.Description),
		"queryType":        ex.typeThunk(s.Query),
		"mutationType":     ex.typeThunk(s.Mutation),
		"subscriptionType": ex.typeThunk(s.Subscription),
		"types": func() any {
			names := ex.executor.schema.ListTypes()
			out := make([]any, 0, len(names))
			for _, name := range names {
				out = append(out, ex.introspectType(s.Types[name]))
			}
			return out
		},
		"directives": func() any {
			out := make([]any, 0, len(s.Directives))
			for _, name := range sortedDirectiveNames(s.Directives) {
				out = append(out, ex.introspectDirective(s.Directives[name]))
			}
			return out
		},
	}
}

func (ex *execution) typeThunk(def *ast.Definition) any {
	if def == nil {
		return nil
	}
	return func() any { return ex.introspectType(def) }
}

func (ex *execution) introspectType(def *ast.Definition) map[string]any {
	schema := ex.executor.schema
	rec := map[string]any{
		"kind":           typeKind(def),
		"name":           def.Name,
		"description":    nilIfEmpty(def.Description),
		"specifiedByURL": nil,
		"ofType":         nil,
		"isOneOf":        def.Kind == ast.InputObject && def.Directives.ForName("oneOf") != nil,
		"fields":         nil,
		"inputFields":    nil,
		"interfaces":     nil,
		"possibleTypes":  nil,
		"enumValues":     nil,
	}

	if d := def.Directives.ForName("specifiedBy"); d != nil {
		if arg := d.Arguments.ForName("url"); arg != nil && arg.Value != nil {
			rec["specifiedByURL"] = arg.Value.Raw
		}
	}

	switch def.Kind {
	case ast.Object, ast.Interface:
		rec["fields"] = argsThunk(func(args map[string]any) any {
			withDeprecated := includeDeprecated(args)
			out := make([]any, 0, len(def.Fields))
			for _, f := range def.Fields {
				if isIntrospectionField(f.Name) {
					continue
				}
				if _, deprecated := deprecation(f.Directives); deprecated && !withDeprecated {
					continue
				}
				out = append(out, ex.introspectField(f))
			}
			return out
		})
		rec["interfaces"] = func() any {
			out := make([]any, 0, len(def.Interfaces))
			for _, name := range def.Interfaces {
				if iface := schema.GetType(name); iface != nil {
					out = append(out, ex.introspectType(iface))
				}
			}
			return out
		}
		if def.Kind == ast.Interface {
			rec["possibleTypes"] = ex.possibleTypesThunk(def)
		}
	case ast.Union:
		rec["possibleTypes"] = ex.possibleTypesThunk(def)
	case ast.Enum:
		rec["enumValues"] = argsThunk(func(args map[string]any) any {
			withDeprecated := includeDeprecated(args)
			out := make([]any, 0, len(def.EnumValues))
			for _, v := range def.EnumValues {
				reason, deprecated := deprecation(v.Directives)
				if deprecated && !withDeprecated {
					continue
				}
				out = append(out, map[string]any{
					"name":              v.Name,
					"description":       nilIfEmpty(v.Description),
					"isDeprecated":      deprecated,
					"deprecationReason": reason,
				})
			}
			return out
		})
	case ast.InputObject:
		rec["inputFields"] = func() any {
			out := make([]any, 0, len(def.Fields))
			for _, f := range def.Fields {
				out = append(out, ex.introspectInputValue(f.Name, f.Description, f.Type, f.DefaultValue, f.Directives))
			}
			return out
		}
	}

	return rec
}

func (ex *execution) possibleTypesThunk(def *ast.Definition) any {
	return func() any {
		possible := ex.executor.schema.PossibleTypes(def.Name)
		out := make([]any, 0, len(possible))
		for _, p := range possible {
			out = append(out, ex.introspectType(p))
		}
		return out
	}
}

func (ex *execution) introspectField(f *ast.FieldDefinition) map[string]any {
	reason, deprecated := deprecation(f.Directives)
	return map[string]any{
		"name":        f.Name,
		"description": nilIfEmpty(f.Description),
		"args": func() any {
			out := make([]any, 0, len(f.Arguments))
			for _, a := range f.Arguments {
				out = append(out, ex.introspectInputValue(a.Name, a.Description, a.Type, a.DefaultValue, a.Directives))
			}
			return out
		},
		"type":              func() any { return ex.introspectTypeRef(f.Type) },
		"isDeprecated":      deprecated,
		"deprecationReason": reason,
	}
}

func (ex *execution) introspectInputValue(name, description string, t *ast.Type, defaultValue *ast.Value, dirs ast.DirectiveList) map[string]any {
	reason, deprecated := deprecation(dirs)
	var def any
	if defaultValue != nil {
		def = defaultValue.String()
	}
	return map[string]any{
		"name":              name,
		"description":       nilIfEmpty(description),
		"type":              func() any { return ex.introspectTypeRef(t) },
		"defaultValue":      def,
		"isDeprecated":      deprecated,
		"deprecationReason": reason,
	}
}

// introspectTypeRef wraps NON_NULL and LIST around the named type.
func (ex *execution) introspectTypeRef(t *ast.Type) map[string]any {
	if t.NonNull {
		inner := *t
		inner.NonNull = false
		return wrapperType("NON_NULL", func() any { return ex.introspectTypeRef(&inner) })
	}
	if t.Elem != nil {
		return wrapperType("LIST", func() any { return ex.introspectTypeRef(t.Elem) })
	}
	def := ex.executor.schema.GetType(t.NamedType)
	if def == nil {
		rec := wrapperType("SCALAR", nil)
		rec["name"] = t.NamedType
		return rec
	}
	return ex.introspectType(def)
}

// wrapperType is a __Type record with every field but kind and ofType null,
// so nothing in it falls through to mock generation.
func wrapperType(kind string, ofType any) map[string]any {
	return map[string]any{
		"kind":           kind,
		"name":           nil,
		"description":    nil,
		"specifiedByURL": nil,
		"fields":         nil,
		"interfaces":     nil,
		"possibleTypes":  nil,
		"enumValues":     nil,
		"inputFields":    nil,
		"ofType":         ofType,
		"isOneOf":        nil,
	}
}

func (ex *execution) introspectDirective(d *ast.DirectiveDefinition) map[string]any {
	locations := make([]any, len(d.Locations))
	for i, loc := range d.Locations {
		locations[i] = string(loc)
	}
	return map[string]any{
		"name":         d.Name,
		"description":  nilIfEmpty(d.Description),
		"locations":    locations,
		"isRepeatable": d.IsRepeatable,
		"args": func() any {
			out := make([]any, 0, len(d.Arguments))
			for _, a := range d.Arguments {
				out = append(out, ex.introspectInputValue(a.Name, a.Description, a.Type, a.DefaultValue, a.Directives))
			}
			return out
		},
	}
}

// typeKind returns the __TypeKind enum value for a definition.
func typeKind(def *ast.Definition) string {
	switch def.Kind {
	case ast.Scalar:
		return "SCALAR"
	case ast.Object:
		return "OBJECT"
	case ast.Interface:
		return "INTERFACE"
	case ast.Union:
		return "UNION"
	case ast.Enum:
		return "ENUM"
	case ast.InputObject:
		return "INPUT_OBJECT"
	default:
		return "OBJECT"
	}
}

func deprecation(dirs ast.DirectiveList) (reason any, deprecated bool) {
	d := dirs.ForName("deprecated")
	if d == nil {
		return nil, false
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw, true
	}
	return "No longer supported", true
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func sortedDirectiveNames(dirs map[string]*ast.DirectiveDefinition) []string {
	names := make([]string, 0, len(dirs))
	for name := range dirs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
