package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/getmockd/mockgql/pkg/cli/templates"
	"github.com/getmockd/mockgql/pkg/config"
)

const (
	initConfigName = "mockgql.yaml"
	initSchemaName = "schema.graphql"
)

type initOptions struct {
	template    string
	dir         string
	path        string
	force       bool
	interactive bool
}

func newInitCmd() *cobra.Command {
	o := &initOptions{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter mockgql.yaml and schema",
		Long: `Create a starter project: a mockgql.yaml configuration and the
schema.graphql it serves.`,
		Example: `  # Create the default project in the current directory
  mockgql init

  # List available templates
  mockgql init --template list

  # The built-in groups schema, in ./api
  mockgql init -t groups --dir ./api

  # Interactive setup
  mockgql init -i`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.template == "list" {
				fmt.Fprint(cmd.OutOrStdout(), templates.FormatList())
				return nil
			}
			if o.interactive {
				if err := o.prompt(); err != nil {
					return err
				}
			}
			return runInit(cmd.OutOrStdout(), o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.template, "template", "t", "default", "Template to use (use 'list' to see available templates)")
	f.StringVarP(&o.dir, "dir", "d", ".", "Directory to write the project to")
	f.StringVar(&o.path, "path", "", "GraphQL endpoint path written to the config")
	f.BoolVar(&o.force, "force", false, "Overwrite existing files")
	f.BoolVarP(&o.interactive, "interactive", "i", false, "Interactive mode - prompts for configuration")
	return cmd
}

func (o *initOptions) prompt() error {
	options := make([]huh.Option[string], 0, len(templates.AvailableTemplates))
	for _, t := range templates.AvailableTemplates {
		options = append(options, huh.NewOption(t.Name+" - "+t.Description, t.ID))
	}
	if o.path == "" {
		o.path = "/"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which starter schema?").
				Options(options...).
				Value(&o.template),
			huh.NewInput().
				Title("Where should the project be created?").
				Placeholder(".").
				Value(&o.dir),
			huh.NewInput().
				Title("Which path should serve GraphQL?").
				Placeholder("/").
				Value(&o.path).
				Validate(func(s string) error {
					if !strings.HasPrefix(s, "/") {
						return errors.New("path must start with /")
					}
					return nil
				}),
			huh.NewConfirm().
				Title("Overwrite existing files?").
				Value(&o.force),
		),
	)
	return form.Run()
}

func runInit(w io.Writer, o *initOptions) error {
	cfgData, schemaData, err := templates.Files(o.template)
	if err != nil {
		return err
	}

	if o.path != "" {
		cfgData, err = setYAMLScalar(cfgData, "path", o.path)
		if err != nil {
			return err
		}
	}

	// The written config must load; this also rejects a bad --path.
	if _, err := config.Parse(cfgData); err != nil {
		return err
	}

	dir := o.dir
	if dir == "" {
		dir = "."
	}
	cfgPath := filepath.Join(dir, initConfigName)
	schemaPath := filepath.Join(dir, initSchemaName)

	if !o.force {
		for _, p := range []string{cfgPath, schemaPath} {
			if _, err := os.Stat(p); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", p)
			}
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := os.WriteFile(schemaPath, schemaData, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", schemaPath, err)
	}
	if err := os.WriteFile(cfgPath, cfgData, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", cfgPath, err)
	}

	fmt.Fprintf(w, "Created %s\n", cfgPath)
	fmt.Fprintf(w, "Created %s\n", schemaPath)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Start the server with:")
	if dir == "." {
		fmt.Fprintln(w, "  mockgql serve")
	} else {
		fmt.Fprintf(w, "  mockgql serve --config %s\n", cfgPath)
	}
	return nil
}

// setYAMLScalar sets a top-level key of a YAML mapping, keeping comments.
func setYAMLScalar(data []byte, key, value string) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidYAML, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, errors.New("template is not a YAML mapping")
	}

	mapping := doc.Content[0]
	set := false
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content[i+1].Kind = yaml.ScalarNode
			mapping.Content[i+1].Tag = "!!str"
			mapping.Content[i+1].Value = value
			set = true
			break
		}
	}
	if !set {
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value},
		)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}
