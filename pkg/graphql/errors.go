package graphql

import (
	"errors"
	"fmt"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// ErrNoSchema is returned when no schema source was supplied.
var ErrNoSchema = errors.New("no schema definition provided")

// SchemaError reports a schema definition that could not be loaded.
// The underlying parser error is kept so callers can inspect locations.
type SchemaError struct {
	// Source names the schema input (file path or "schema" for inline SDL).
	Source string
	// Err is the underlying error.
	Err error
}

func (e *SchemaError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("invalid GraphQL schema: %v", e.Err)
	}
	return fmt.Sprintf("invalid GraphQL schema %s: %v", e.Source, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Locations returns the source locations reported by the parser, if any.
func (e *SchemaError) Locations() []GraphQLErrorLocation {
	var locs []GraphQLErrorLocation

	var list gqlerror.List
	if errors.As(e.Err, &list) {
		for _, item := range list {
			for _, l := range item.Locations {
				locs = append(locs, GraphQLErrorLocation{Line: l.Line, Column: l.Column})
			}
		}
		return locs
	}

	var single *gqlerror.Error
	if errors.As(e.Err, &single) {
		for _, l := range single.Locations {
			locs = append(locs, GraphQLErrorLocation{Line: l.Line, Column: l.Column})
		}
	}
	return locs
}

// IsSchemaError reports whether err is (or wraps) a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// fieldError is raised while completing a single field and becomes one
// entry of the response "errors" array.
type fieldError struct {
	message string
	path    []interface{}
}

func (e *fieldError) toGraphQLError() GraphQLError {
	return GraphQLError{
		Message: e.message,
		Path:    e.path,
	}
}
