package graphql

import (
	"encoding/json"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// GraphQLError represents a GraphQL error in the response format.
type GraphQLError struct {
	// Message is the error message.
	Message string `json:"message"`
	// Locations indicates where in the query the error occurred.
	Locations []GraphQLErrorLocation `json:"locations,omitempty"`
	// Path is the response field path where the error occurred.
	Path []interface{} `json:"path,omitempty"`
	// Extensions contains additional error metadata.
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// GraphQLErrorLocation represents a location in the GraphQL query where an error occurred.
type GraphQLErrorLocation struct {
	// Line is the line number (1-indexed).
	Line int `json:"line"`
	// Column is the column number (1-indexed).
	Column int `json:"column"`
}

// GraphQLRequest represents an incoming GraphQL request.
type GraphQLRequest struct {
	// Query is the GraphQL query string.
	Query string `json:"query"`
	// OperationName is the name of the operation to execute (for multi-operation documents).
	OperationName string `json:"operationName,omitempty"`
	// Variables are the variable values for the query.
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// GraphQLResponse represents a GraphQL response.
type GraphQLResponse struct {
	// Data contains the result of the query execution.
	Data interface{} `json:"data,omitempty"`
	// Errors contains any errors that occurred during execution.
	Errors []GraphQLError `json:"errors,omitempty"`
	// Extensions contains additional response metadata.
	Extensions map[string]interface{} `json:"extensions,omitempty"`

	executed bool
	ordered  *ResponseObject
}

// MarshalJSON writes "data": null for an execution whose root was nulled
// by an error. Request errors carry no data entry at all. Executed data
// keeps the selection order of the operation.
func (r GraphQLResponse) MarshalJSON() ([]byte, error) {
	type plain GraphQLResponse
	if r.ordered != nil {
		r.Data = r.ordered
	}
	if !r.executed || r.Data != nil {
		return json.Marshal(plain(r))
	}
	return json.Marshal(struct {
		Data interface{} `json:"data"`
		plain
	}{nil, plain(r)})
}

// HasErrors reports whether the response carries at least one error.
func (r *GraphQLResponse) HasErrors() bool {
	return r != nil && len(r.Errors) > 0
}

// errorResponse builds a data-less response with a single error message.
func errorResponse(message string) *GraphQLResponse {
	return &GraphQLResponse{Errors: []GraphQLError{{Message: message}}}
}

// fromGQLErrors converts parser/validator errors into response errors,
// keeping their source locations and validation rule.
func fromGQLErrors(list gqlerror.List) []GraphQLError {
	out := make([]GraphQLError, 0, len(list))
	for _, e := range list {
		if e == nil {
			continue
		}
		gqlErr := GraphQLError{Message: e.Message}
		for _, loc := range e.Locations {
			gqlErr.Locations = append(gqlErr.Locations, GraphQLErrorLocation{Line: loc.Line, Column: loc.Column})
		}
		if len(e.Extensions) > 0 || e.Rule != "" {
			gqlErr.Extensions = make(map[string]interface{}, len(e.Extensions)+1)
			for k, v := range e.Extensions {
				gqlErr.Extensions[k] = v
			}
			if e.Rule != "" {
				gqlErr.Extensions["code"] = "GRAPHQL_VALIDATION_FAILED"
				gqlErr.Extensions["rule"] = e.Rule
			}
		}
		out = append(out, gqlErr)
	}
	return out
}

// FieldPath represents a path to a field in the schema (e.g., "Query.user" or "Group.isSystem").
type FieldPath struct {
	// TypeName is the parent type name (e.g., "Query", "Mutation", "Group").
	TypeName string
	// FieldName is the field name.
	FieldName string
}

// String returns the string representation of the field path.
func (fp FieldPath) String() string {
	return fp.TypeName + "." + fp.FieldName
}

// ParseFieldPath parses a field path string (e.g., "Query.user") into a FieldPath.
func ParseFieldPath(path string) FieldPath {
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			return FieldPath{
				TypeName:  path[:i],
				FieldName: path[i+1:],
			}
		}
	}
	// No dot found, treat the whole string as a type name
	return FieldPath{TypeName: path}
}

// IsField reports whether the path names a single field rather than a whole type.
func (fp FieldPath) IsField() bool {
	return fp.TypeName != "" && fp.FieldName != ""
}
