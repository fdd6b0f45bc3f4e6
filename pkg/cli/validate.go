package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/getmockd/mockgql/pkg/cli/internal/output"
	"github.com/getmockd/mockgql/pkg/graphql"
)

// ValidateOutput is the --json form of the validate command.
type ValidateOutput struct {
	Valid         bool     `json:"valid"`
	Config        string   `json:"config,omitempty"`
	SchemaFiles   []string `json:"schemaFiles"`
	Builtin       bool     `json:"builtin"`
	Types         int      `json:"types"`
	Queries       int      `json:"queries"`
	Mutations     int      `json:"mutations"`
	Subscriptions int      `json:"subscriptions"`
	Mocks         int      `json:"mocks"`
	Unmatched     []string `json:"unmatchedMocks"`
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration, schema and mocks without serving",
		Long: `Validate the configuration, schema and mocks without serving.

The config file is checked against its JSON Schema, the GraphQL schema is
parsed and validated, and every mock expression is compiled. Mock keys
that match no type or field are reported as warnings.`,
		Example: `  # Validate the discovered mockgql.yaml
  mockgql validate

  # Validate a schema on its own
  mockgql validate --schema schema.graphql

  # Machine-readable summary
  mockgql validate --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(opts)
			if err != nil {
				return err
			}

			out := ValidateOutput{
				Valid:         true,
				Config:        p.cfg.SourcePath(),
				SchemaFiles:   p.schemaFiles,
				Builtin:       p.builtin(),
				Types:         len(userTypes(p.schema)),
				Queries:       len(p.schema.ListQueries()),
				Mutations:     len(p.schema.ListMutations()),
				Subscriptions: len(p.schema.ListSubscriptions()),
				Mocks:         len(p.mocks),
				Unmatched:     p.mocks.Unmatched(p.schema),
			}
			if out.SchemaFiles == nil {
				out.SchemaFiles = []string{}
			}
			if out.Unmatched == nil {
				out.Unmatched = []string{}
			}

			if opts.jsonOutput {
				return output.JSON(cmd.OutOrStdout(), out)
			}
			printValidation(cmd.OutOrStdout(), cmd.ErrOrStderr(), out)
			return nil
		},
	}
}

func printValidation(w, stderr io.Writer, out ValidateOutput) {
	if out.Config != "" {
		fmt.Fprintf(w, "Config valid: %s\n", out.Config)
	}
	if out.Builtin {
		fmt.Fprintln(w, "Schema valid: built-in groups schema")
	} else {
		fmt.Fprintf(w, "Schema valid: %d file(s)\n", len(out.SchemaFiles))
		for _, f := range out.SchemaFiles {
			fmt.Fprintf(w, "  - %s\n", f)
		}
	}
	fmt.Fprintf(w, "  Types: %d\n", out.Types)
	fmt.Fprintf(w, "  Queries: %d\n", out.Queries)
	if out.Mutations > 0 {
		fmt.Fprintf(w, "  Mutations: %d\n", out.Mutations)
	}
	if out.Subscriptions > 0 {
		fmt.Fprintf(w, "  Subscriptions: %d\n", out.Subscriptions)
	}
	fmt.Fprintf(w, "  Mocks: %d\n", out.Mocks)

	for _, key := range out.Unmatched {
		output.Warn(stderr, "mock %q does not match any schema type or field", key)
	}
}

// userTypes lists the schema's own types, without built-in scalars and
// introspection types.
func userTypes(schema *graphql.Schema) []string {
	var names []string
	for _, name := range schema.ListTypes() {
		if !schema.IsBuiltinType(name) {
			names = append(names, name)
		}
	}
	return names
}
