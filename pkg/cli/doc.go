// Package cli provides the command-line interface for mockgql.
//
// Commands:
//   - serve: start the mock GraphQL server (also the default command)
//   - validate: check the config file, schema and mock expressions
//   - mocks: list the effective mock map
//   - query: run an operation in-process or against a running server
//   - init: write a starter mockgql.yaml and schema.graphql
//   - version: show build information
//
// Settings are resolved in three layers: engine defaults, then the
// mockgql.yaml file, then flags that were set explicitly.
//
// serve writes exactly one line to stdout, "🚀 Server ready at <url>".
// Logs and errors go to stderr, and a startup error exits with status 1.
package cli
