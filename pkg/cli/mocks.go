package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getmockd/mockgql/pkg/cli/internal/output"
	"github.com/getmockd/mockgql/pkg/graphql"
)

// MockInfo describes one entry of the effective mock map.
type MockInfo struct {
	Key     string `json:"key"`
	Kind    string `json:"kind"`
	Target  string `json:"target"`
	Origin  string `json:"origin"`
	Matched bool   `json:"matched"`
}

func newMocksCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mocks",
		Short: "List the effective mock map",
		Long: `List the effective mock map: built-in fixtures (when no schema is
configured) overlaid by the mocks of the config file.

Types and fields without an entry fall back to the default generators:
Int in [-100, 100], Float in [-100, 100), String "Hello World", random
Boolean, a UUID for ID, a random enum member, and lists of two elements.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(opts)
			if err != nil {
				return err
			}

			infos := describeMocks(p)
			if opts.jsonOutput {
				return output.JSON(cmd.OutOrStdout(), infos)
			}

			if len(infos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No mocks configured; every field uses the default generators.")
				return nil
			}

			tw := output.Table(cmd.OutOrStdout())
			fmt.Fprintln(tw, "KEY\tKIND\tTARGET\tORIGIN")
			for _, m := range infos {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Key, m.Kind, m.Target, m.Origin)
			}
			return tw.Flush()
		},
	}
}

func describeMocks(p *project) []MockInfo {
	unmatched := make(map[string]bool)
	for _, key := range p.mocks.Unmatched(p.schema) {
		unmatched[key] = true
	}

	infos := make([]MockInfo, 0, len(p.mocks))
	for _, key := range p.mocks.Keys() {
		info := MockInfo{
			Key:     key,
			Kind:    mockKind(p.mocks[key]),
			Origin:  p.origins[key],
			Matched: !unmatched[key],
		}
		switch {
		case !info.Matched:
			info.Target = "unmatched"
		case graphql.ParseFieldPath(key).IsField():
			info.Target = "field"
		default:
			info.Target = "type"
		}
		infos = append(infos, info)
	}
	return infos
}

func mockKind(m graphql.Mock) string {
	switch m.(type) {
	case graphql.ObjectMock, *graphql.ObjectMock:
		return "object"
	default:
		return "scalar"
	}
}
