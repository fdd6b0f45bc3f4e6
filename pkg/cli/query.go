package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/getmockd/mockgql/pkg/cli/internal/output"
	"github.com/getmockd/mockgql/pkg/cli/internal/parse"
	"github.com/getmockd/mockgql/pkg/graphql"
)

type queryOptions struct {
	variables     string
	vars          []string
	operationName string
	jsonPath      string
	endpoint      string
	headers       []string
	seed          uint64
	timeout       time.Duration
}

func newQueryCmd(opts *rootOptions) *cobra.Command {
	q := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "query <query | @file | ->",
		Short: "Execute a GraphQL operation against the mocks",
		Long: `Execute a GraphQL operation against the mocks and print the response.

By default the operation runs in-process against the configured schema
and mocks, without binding a port. With --endpoint it is sent to a running
server instead.

--jsonpath selects parts of the response; each match is printed as one
line of JSON. The command exits with status 1 when the response carries
errors.`,
		Example: `  # Query the built-in schema
  mockgql query '{ system { info { setup } } }'

  # Variables, by name or as a JSON object
  mockgql query 'query($id: ID!) { group(id: $id) { name } }' --var id=42
  mockgql query @op.graphql --variables '{"id": "42"}'

  # Pick values out of the response
  mockgql query '{ groups { name } }' --jsonpath '$.data.groups[*].name'

  # Query a running server
  mockgql query '{ groups { id } }' --endpoint http://localhost:8888/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, q, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&q.variables, "variables", "", "Variables as a JSON object")
	f.StringArrayVar(&q.vars, "var", nil, "Variable as name=value, repeatable (JSON values are decoded)")
	f.StringVarP(&q.operationName, "operation", "o", "", "Operation name for multi-operation documents")
	f.StringVar(&q.jsonPath, "jsonpath", "", "JSONPath expression applied to the response")
	f.StringVar(&q.endpoint, "endpoint", "", "Send the operation to a running server at this URL")
	f.StringArrayVarP(&q.headers, "header", "H", nil, "Request header as key:value, repeatable (with --endpoint)")
	f.Uint64Var(&q.seed, "seed", 0, "Seed for deterministic default mocks")
	f.DurationVar(&q.timeout, "timeout", 30*time.Second, "Request timeout (with --endpoint)")
	return cmd
}

func runQuery(cmd *cobra.Command, opts *rootOptions, q *queryOptions, arg string) error {
	query, err := readQuery(arg, cmd.InOrStdin())
	if err != nil {
		return err
	}

	req := &graphql.GraphQLRequest{Query: query, OperationName: q.operationName}
	if q.variables != "" {
		if err := json.Unmarshal([]byte(q.variables), &req.Variables); err != nil {
			return fmt.Errorf("invalid variables JSON: %w", err)
		}
	}
	named, err := parse.Variables(q.vars)
	if err != nil {
		return err
	}
	for name, v := range named {
		if req.Variables == nil {
			req.Variables = make(map[string]any, len(named))
		}
		req.Variables[name] = v
	}

	var body []byte
	if q.endpoint != "" {
		body, err = queryRemote(cmd.Context(), q, req)
	} else {
		body, err = queryLocal(cmd, opts, q, req)
	}
	if err != nil {
		return err
	}

	var resp any
	if err := oj.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}

	if q.jsonPath != "" {
		if err := printJSONPath(cmd.OutOrStdout(), q.jsonPath, resp); err != nil {
			return err
		}
	} else if err := output.RawJSON(cmd.OutOrStdout(), body); err != nil {
		return err
	}

	if m, ok := resp.(map[string]any); ok {
		if errs, ok := m["errors"].([]any); ok && len(errs) > 0 {
			return fmt.Errorf("query returned %d error(s)", len(errs))
		}
	}
	return nil
}

// readQuery resolves the query argument: literal text, @file, or - for stdin.
func readQuery(arg string, stdin io.Reader) (string, error) {
	switch {
	case arg == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read query from stdin: %w", err)
		}
		arg = string(data)
	case strings.HasPrefix(arg, "@"):
		data, err := os.ReadFile(arg[1:])
		if err != nil {
			return "", fmt.Errorf("failed to read query file: %w", err)
		}
		arg = string(data)
	}
	if strings.TrimSpace(arg) == "" {
		return "", errors.New("query is empty")
	}
	return arg, nil
}

func queryLocal(cmd *cobra.Command, opts *rootOptions, q *queryOptions, req *graphql.GraphQLRequest) ([]byte, error) {
	p, err := loadProject(opts)
	if err != nil {
		return nil, err
	}
	log, closeLog, err := newLogger(cmd.ErrOrStderr(), opts, p.cfg)
	if err != nil {
		return nil, err
	}
	defer closeLog()

	execOpts := []graphql.ExecutorOption{
		graphql.WithIntrospection(p.cfg.IntrospectionEnabled()),
		graphql.WithLogger(log),
	}
	switch {
	case cmd.Flags().Changed("seed"):
		execOpts = append(execOpts, graphql.WithSeed(q.seed))
	case p.cfg.Seed != nil:
		execOpts = append(execOpts, graphql.WithSeed(*p.cfg.Seed))
	}

	executor := graphql.NewExecutor(p.schema, p.mocks, execOpts...)
	resp := executor.Execute(cmd.Context(), req)
	return json.Marshal(resp)
}

func queryRemote(ctx context.Context, q *queryOptions, gqlReq *graphql.GraphQLRequest) ([]byte, error) {
	bodyBytes, err := json.Marshal(gqlReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for _, h := range q.headers {
		key, value, ok := parse.KeyValue(h, ':')
		if !ok {
			return nil, fmt.Errorf("invalid header %q: expected key:value", h)
		}
		req.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest && !json.Valid(respBody) {
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}

// printJSONPath prints every match of path in data as one line of JSON.
func printJSONPath(w io.Writer, path string, data any) error {
	expr, err := jp.ParseString(path)
	if err != nil {
		return fmt.Errorf("invalid jsonpath %q: %w", path, err)
	}

	for _, match := range expr.Get(data) {
		line, err := json.Marshal(match)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(line))
	}
	return nil
}
