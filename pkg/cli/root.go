package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	schema     []string
	logLevel   string
	logFormat  string
	logFile    string
	jsonOutput bool
}

// NewRootCmd builds the mockgql command tree. Running it without a
// subcommand starts the server.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	serve := &serveOptions{}

	rootCmd := &cobra.Command{
		Use:   "mockgql",
		Short: "mockgql serves a GraphQL schema with mocked data",
		Long: `mockgql serves a GraphQL schema with mocked data.

Every field resolves to a generated placeholder value, so clients can be
built and tested against the shape of an API before it exists.

Without a configuration file or --schema, a built-in groups schema is served.
mockgql looks for mockgql.yaml, mockgql.yml or mockgql.json in the working
directory, or the file named by MOCKGQL_CONFIG.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, serve)
		},
		SilenceUsage:  true,
		SilenceErrors: true, // We handle errors in Execute()
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Path to mockgql.yaml (default: discovered)")
	pf.StringSliceVarP(&opts.schema, "schema", "s", nil, "Schema file or glob, repeatable (overrides config)")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&opts.logFormat, "log-format", "", "Log format (text, json)")
	pf.StringVar(&opts.logFile, "log-file", "", "Also write JSON logs to this file")
	pf.BoolVar(&opts.jsonOutput, "json", false, "Output command results in JSON format")

	serve.register(rootCmd)

	rootCmd.AddCommand(
		newServeCmd(opts),
		newValidateCmd(opts),
		newMocksCmd(opts),
		newQueryCmd(opts),
		newInitCmd(),
		newVersionCmd(opts),
	)

	return rootCmd
}

// Execute runs the command tree and exits with status 1 on error.
// This is called by main.main().
func Execute() {
	os.Exit(Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// Run executes the command tree with args and returns the exit status.
// Errors are printed to stderr.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}
