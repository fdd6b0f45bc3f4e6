// Package fixtures holds the built-in placeholder schema and mock map served
// when no schema is configured. Every entry is a stand-in for a real
// resolver and carries no production meaning.
package fixtures

import (
	_ "embed"

	"github.com/google/uuid"

	"github.com/getmockd/mockgql/pkg/graphql"
)

//go:embed schema.graphql
var schemaSDL string

// SchemaName is the source name reported in schema errors.
const SchemaName = "fixtures/schema.graphql"

// SystemPermission is always granted to the mocked system group.
const SystemPermission = "manage:system"

// SchemaSDL returns the built-in schema definition.
func SchemaSDL() string {
	return schemaSDL
}

// Schema parses the built-in schema.
func Schema() (*graphql.Schema, error) {
	return graphql.ParseSchema(schemaSDL)
}

// Mocks returns a fresh copy of the built-in mock map.
func Mocks() graphql.MockMap {
	return graphql.MockMap{
		"String":         graphql.Static("Example Data"),
		"DateTime":       graphql.Scalar(graphql.Now),
		"Date":           graphql.Scalar(graphql.Now),
		"Upload":         graphql.Static("Upload"),
		"Group.isSystem": graphql.Static(true),
		"Group":          graphql.Object("Group", group),
		"SystemQuery":    graphql.Object("SystemQuery", systemQuery),
	}
}

func group() map[string]any {
	return map[string]any{
		"id":          uuid.NewString(),
		"name":        "Example Data",
		"isSystem":    true,
		"permissions": []any{SystemPermission, "read:groups", "write:groups"},
	}
}

func systemQuery() map[string]any {
	return map[string]any{
		"info": map[string]any{"setup": false},
	}
}
