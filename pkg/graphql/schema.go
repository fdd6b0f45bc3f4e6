package graphql

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

// Schema represents a parsed GraphQL schema with convenient accessors
// for types, queries, mutations, and subscriptions.
type Schema struct {
	ast           *ast.Schema
	sources       []*ast.Source
	queries       map[string]*ast.FieldDefinition
	mutations     map[string]*ast.FieldDefinition
	subscriptions map[string]*ast.FieldDefinition
}

// ParseSchema parses a GraphQL SDL string and returns a Schema.
func ParseSchema(sdl string) (*Schema, error) {
	return LoadSchema(&ast.Source{Name: "schema", Input: sdl})
}

// ParseSchemaFile parses a GraphQL schema from a file and returns a Schema.
func ParseSchemaFile(path string) (*Schema, error) {
	return ParseSchemaFiles(path)
}

// ParseSchemaFiles reads and parses a schema split across several files.
// Type extensions in later files may extend types declared in earlier ones.
func ParseSchemaFiles(paths ...string) (*Schema, error) {
	if len(paths) == 0 {
		return nil, &SchemaError{Err: ErrNoSchema}
	}

	sources, err := readSources(paths)
	if err != nil {
		return nil, err
	}
	return LoadSchema(sources...)
}

// LoadSchemaSources loads schema files followed by an inline SDL document.
func LoadSchemaSources(paths []string, sdl string) (*Schema, error) {
	sources, err := readSources(paths)
	if err != nil {
		return nil, err
	}
	if sdl != "" {
		sources = append(sources, &ast.Source{Name: "schema", Input: sdl})
	}
	return LoadSchema(sources...)
}

func readSources(paths []string) ([]*ast.Source, error) {
	sources := make([]*ast.Source, 0, len(paths)+1)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &SchemaError{Source: path, Err: fmt.Errorf("failed to read schema file: %w", err)}
		}
		sources = append(sources, &ast.Source{Name: path, Input: string(data)})
	}
	return sources, nil
}

// LoadSchema parses one or more SDL sources into a Schema.
// Any parse or validation failure is returned as a *SchemaError.
func LoadSchema(sources ...*ast.Source) (*Schema, error) {
	if len(sources) == 0 {
		return nil, &SchemaError{Err: ErrNoSchema}
	}

	empty := true
	for _, src := range sources {
		if strings.TrimSpace(src.Input) != "" {
			empty = false
			break
		}
	}
	if empty {
		return nil, &SchemaError{Source: sourceNames(sources), Err: ErrNoSchema}
	}

	schema, err := gqlparser.LoadSchema(sources...)
	if err != nil {
		return nil, &SchemaError{Source: sourceNames(sources), Err: err}
	}

	return newSchema(schema, sources), nil
}

func sourceNames(sources []*ast.Source) string {
	names := make([]string, 0, len(sources))
	for _, src := range sources {
		names = append(names, src.Name)
	}
	return strings.Join(names, ", ")
}

// newSchema creates a new Schema from a parsed ast.Schema.
func newSchema(schema *ast.Schema, sources []*ast.Source) *Schema {
	s := &Schema{
		ast:           schema,
		sources:       sources,
		queries:       make(map[string]*ast.FieldDefinition),
		mutations:     make(map[string]*ast.FieldDefinition),
		subscriptions: make(map[string]*ast.FieldDefinition),
	}

	// Index query fields (excluding introspection fields)
	if schema.Query != nil {
		for _, field := range schema.Query.Fields {
			if !isIntrospectionField(field.Name) {
				s.queries[field.Name] = field
			}
		}
	}

	if schema.Mutation != nil {
		for _, field := range schema.Mutation.Fields {
			s.mutations[field.Name] = field
		}
	}

	if schema.Subscription != nil {
		for _, field := range schema.Subscription.Fields {
			s.subscriptions[field.Name] = field
		}
	}

	return s
}

// isIntrospectionField returns true if the field name is a built-in introspection field.
func isIntrospectionField(name string) bool {
	return strings.HasPrefix(name, "__")
}

// AST returns the underlying gqlparser AST schema.
func (s *Schema) AST() *ast.Schema {
	return s.ast
}

// Source returns the concatenated SDL of every source.
func (s *Schema) Source() string {
	var b strings.Builder
	for i, src := range s.sources {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(src.Input)
	}
	return b.String()
}

// GetType returns a type definition by name, or nil if not found.
func (s *Schema) GetType(name string) *ast.Definition {
	return s.ast.Types[name]
}

// GetField returns a field definition by type and field name.
func (s *Schema) GetField(typeName, fieldName string) *ast.FieldDefinition {
	def := s.GetType(typeName)
	if def == nil {
		return nil
	}
	return def.Fields.ForName(fieldName)
}

// ListQueries returns all query field names in sorted order.
func (s *Schema) ListQueries() []string {
	return sortedKeys(s.queries)
}

// ListMutations returns all mutation field names in sorted order.
func (s *Schema) ListMutations() []string {
	return sortedKeys(s.mutations)
}

// ListSubscriptions returns all subscription field names in sorted order.
func (s *Schema) ListSubscriptions() []string {
	return sortedKeys(s.subscriptions)
}

func sortedKeys(m map[string]*ast.FieldDefinition) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListTypes returns all type names in sorted order, optionally filtering by kind.
// Built-in introspection types are included; pass kinds to narrow the result.
func (s *Schema) ListTypes(kinds ...ast.DefinitionKind) []string {
	kindSet := make(map[ast.DefinitionKind]bool)
	for _, k := range kinds {
		kindSet[k] = true
	}

	names := make([]string, 0, len(s.ast.Types))
	for name, def := range s.ast.Types {
		if len(kindSet) == 0 || kindSet[def.Kind] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// HasQuery returns true if the schema has a query type with fields.
func (s *Schema) HasQuery() bool {
	return s.ast.Query != nil && len(s.queries) > 0
}

// HasMutation returns true if the schema has a mutation type with fields.
func (s *Schema) HasMutation() bool {
	return s.ast.Mutation != nil && len(s.ast.Mutation.Fields) > 0
}

// HasSubscription returns true if the schema has a subscription type with fields.
func (s *Schema) HasSubscription() bool {
	return s.ast.Subscription != nil && len(s.ast.Subscription.Fields) > 0
}

// Validate performs checks gqlparser leaves to the caller.
func (s *Schema) Validate() error {
	if !s.HasQuery() {
		return &SchemaError{Source: sourceNames(s.sources), Err: fmt.Errorf("schema must define a Query type with at least one field")}
	}
	return nil
}

// IsScalarType returns true if the given type name is a scalar type.
func (s *Schema) IsScalarType(name string) bool {
	def := s.GetType(name)
	return def != nil && def.Kind == ast.Scalar
}

// IsAbstractType returns true for interfaces and unions.
func (s *Schema) IsAbstractType(name string) bool {
	def := s.GetType(name)
	return def != nil && (def.Kind == ast.Interface || def.Kind == ast.Union)
}

// PossibleTypes returns the concrete object types for an abstract type,
// sorted by name. For object types it returns the type itself.
func (s *Schema) PossibleTypes(name string) []*ast.Definition {
	def := s.GetType(name)
	if def == nil {
		return nil
	}
	if def.Kind == ast.Object {
		return []*ast.Definition{def}
	}

	possible := append([]*ast.Definition(nil), s.ast.GetPossibleTypes(def)...)
	sort.Slice(possible, func(i, j int) bool { return possible[i].Name < possible[j].Name })
	return possible
}

// IsPossibleType reports whether the object type named concrete may appear
// where the (possibly abstract) type named abstract is expected.
func (s *Schema) IsPossibleType(abstract, concrete string) bool {
	if abstract == concrete {
		return true
	}
	for _, def := range s.PossibleTypes(abstract) {
		if def.Name == concrete {
			return true
		}
	}
	return false
}

// GetEnumValues returns the enum values for an enum type, or nil if not an enum.
func (s *Schema) GetEnumValues(name string) []string {
	def := s.GetType(name)
	if def == nil || def.Kind != ast.Enum {
		return nil
	}

	values := make([]string, 0, len(def.EnumValues))
	for _, v := range def.EnumValues {
		values = append(values, v.Name)
	}
	return values
}

// IsBuiltinType reports whether name is a prelude scalar or introspection type.
func (s *Schema) IsBuiltinType(name string) bool {
	def := s.GetType(name)
	return def != nil && def.BuiltIn
}
