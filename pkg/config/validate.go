package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed config.schema.json
var schemaJSON []byte

const schemaURL = "https://mockgql.dev/schema/config.json"

var (
	compiledSchema     *jsonschema.Schema
	compiledSchemaErr  error
	compiledSchemaOnce sync.Once
)

// JSONSchema returns the JSON Schema describing mockgql.yaml.
func JSONSchema() []byte {
	return schemaJSON
}

func configSchema() (*jsonschema.Schema, error) {
	compiledSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("loading config schema: %w", err)
			return
		}
		compiledSchema, compiledSchemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, compiledSchemaErr
}

// FieldError is a single schema violation.
type FieldError struct {
	// Path is a JSON pointer into the document, "" for the root.
	Path    string
	Message string
}

// ValidationError collects every schema violation found in a document.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "invalid configuration: " + e.Errors[0].String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "invalid configuration (%d errors):", len(e.Errors))
	for _, fe := range e.Errors {
		b.WriteString("\n  - ")
		b.WriteString(fe.String())
	}
	return b.String()
}

func (fe FieldError) String() string {
	if fe.Path == "" {
		return fe.Message
	}
	return fe.Path + ": " + fe.Message
}

// Validate checks a decoded JSON document against the configuration schema.
// The returned error is a *ValidationError when the document is invalid.
func Validate(instance any) error {
	schema, err := configSchema()
	if err != nil {
		return err
	}

	err = schema.Validate(instance)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return fmt.Errorf("validating config: %w", err)
	}
	return &ValidationError{Errors: flattenValidation(verr)}
}

// flattenValidation keeps the leaf causes, which carry the specific
// messages, and drops the summaries above them.
func flattenValidation(verr *jsonschema.ValidationError) []FieldError {
	seen := make(map[FieldError]bool)
	var out []FieldError

	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			fe := FieldError{Path: e.InstanceLocation, Message: e.Message}
			if !seen[fe] {
				seen[fe] = true
				out = append(out, fe)
			}
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)

	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
