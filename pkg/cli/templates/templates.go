// Package templates provides embedded starter projects for mockgql init.
package templates

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/getmockd/mockgql/pkg/fixtures"
)

//go:embed *.yaml *.graphql
var templateFS embed.FS

// Template represents a starter project: a config file and a schema.
type Template struct {
	ID          string
	Name        string
	Description string
	// Filename is the embedded mockgql.yaml content.
	Filename string
	// SchemaFilename is the embedded schema. Empty means the built-in
	// groups schema.
	SchemaFilename string
}

// AvailableTemplates returns all available starter templates.
var AvailableTemplates = []Template{
	{
		ID:             "default",
		Name:           "Default",
		Description:    "Small users API with expression mocks",
		Filename:       "default.yaml",
		SchemaFilename: "default.graphql",
	},
	{
		ID:          "groups",
		Name:        "Groups",
		Description: "The built-in groups schema with its placeholder data",
		Filename:    "groups.yaml",
	},
}

// Files returns the config and schema content of the template with id.
func Files(id string) (cfg, schema []byte, err error) {
	t, err := GetTemplate(id)
	if err != nil {
		return nil, nil, err
	}

	cfg, err = templateFS.ReadFile(t.Filename)
	if err != nil {
		return nil, nil, fmt.Errorf("reading template %s: %w", id, err)
	}
	if t.SchemaFilename == "" {
		return cfg, []byte(fixtures.SchemaSDL()), nil
	}
	schema, err = templateFS.ReadFile(t.SchemaFilename)
	if err != nil {
		return nil, nil, fmt.Errorf("reading template %s: %w", id, err)
	}
	return cfg, schema, nil
}

// GetTemplate returns the Template metadata by ID.
func GetTemplate(id string) (*Template, error) {
	for i := range AvailableTemplates {
		if strings.EqualFold(AvailableTemplates[i].ID, id) {
			return &AvailableTemplates[i], nil
		}
	}
	return nil, fmt.Errorf("unknown template: %s (available: %s)", id, strings.Join(List(), ", "))
}

// List returns all template IDs sorted alphabetically.
func List() []string {
	ids := make([]string, len(AvailableTemplates))
	for i, t := range AvailableTemplates {
		ids[i] = t.ID
	}
	sort.Strings(ids)
	return ids
}

// FormatList returns a formatted string listing all available templates.
func FormatList() string {
	var sb strings.Builder
	sb.WriteString("Available templates:\n\n")

	maxLen := 0
	for _, t := range AvailableTemplates {
		if len(t.ID) > maxLen {
			maxLen = len(t.ID)
		}
	}

	for _, t := range AvailableTemplates {
		fmt.Fprintf(&sb, "  %-*s  %s\n", maxLen, t.ID, t.Description)
	}

	sb.WriteString("\nUsage:\n")
	sb.WriteString("  mockgql init --template <name>\n")
	sb.WriteString("  mockgql init -t groups --dir ./api\n")

	return sb.String()
}

// Exists checks if a template ID exists.
func Exists(id string) bool {
	_, err := GetTemplate(id)
	return err == nil
}
