package cli

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/mockgql/pkg/config"
	"github.com/getmockd/mockgql/pkg/engine"
	"github.com/getmockd/mockgql/pkg/graphql"
)

var bannerRe = regexp.MustCompile(`^🚀 Server ready at (http://\S+)\n$`)

type runningServer struct {
	url    string
	stdout *syncBuffer
	stderr *syncBuffer
	cancel context.CancelFunc
	exit   chan int
}

// startServe runs the command tree in the background until the banner
// shows up. The server stops when the test ends.
func startServe(t *testing.T, args ...string) *runningServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	rs := &runningServer{
		stdout: &syncBuffer{},
		stderr: &syncBuffer{},
		cancel: cancel,
		exit:   make(chan int, 1),
	}
	go func() { rs.exit <- Run(ctx, args, rs.stdout, rs.stderr) }()
	t.Cleanup(func() { rs.stop(t) })

	require.Eventually(t, func() bool {
		return bannerRe.MatchString(rs.stdout.String())
	}, 5*time.Second, 10*time.Millisecond, "no banner; stderr: %s", rs.stderr)

	rs.url = bannerRe.FindStringSubmatch(rs.stdout.String())[1]
	return rs
}

func (rs *runningServer) stop(t *testing.T) int {
	t.Helper()
	rs.cancel()
	select {
	case code := <-rs.exit:
		rs.exit <- code
		return code
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
		return -1
	}
}

func post(t *testing.T, url, query string) string {
	t.Helper()
	body := `{"query":` + strconv.Quote(query) + `}`
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestServe_BuiltinSchema(t *testing.T) {
	rs := startServe(t, "--host", "127.0.0.1", "--port", "0")

	assert.True(t, strings.HasPrefix(rs.url, "http://127.0.0.1:"), rs.url)
	assert.True(t, strings.HasSuffix(rs.url, "/"), rs.url)

	assert.JSONEq(t, `{"data":{"system":{"info":{"setup":false}}}}`,
		post(t, rs.url, "{ system { info { setup } } }"))

	assert.Equal(t, 0, rs.stop(t))
	assert.Equal(t, 1, strings.Count(rs.stdout.String(), "\n"), "stdout carries only the banner")
	assert.Contains(t, rs.stderr.String(), "built-in groups schema")
}

func TestServe_Subcommand(t *testing.T) {
	rs := startServe(t, "serve", "--config", writeProject(t), "--host", "127.0.0.1", "--port", "0")
	assert.True(t, strings.HasSuffix(rs.url, "/graphql"), rs.url)

	assert.JSONEq(t, `{"data":{"me":{"name":"Ada"}}}`, post(t, rs.url, "{ me { name } }"))

	resp, err := http.Get(strings.TrimSuffix(rs.url, "/graphql") + engine.HealthPath)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	t.Run("query against endpoint", func(t *testing.T) {
		code, stdout, stderr := run(t, "query", "--endpoint", rs.url, "-H", "X-Trace: 1",
			"{ me { name } }", "--jsonpath", "$.data.me.name")
		require.Equal(t, 0, code, stderr)
		assert.Equal(t, "\"Ada\"\n", stdout)
	})

	t.Run("unmatched mock is logged", func(t *testing.T) {
		assert.Contains(t, rs.stderr.String(), "mock does not match any schema type or field")
	})
}

func TestServe_StartupErrors(t *testing.T) {
	t.Run("malformed schema", func(t *testing.T) {
		schemaPath := writeFile(t, t.TempDir(), "bad.graphql", "type Query {")
		code, stdout, stderr := run(t, "--schema", schemaPath, "--port", "0")
		assert.Equal(t, 1, code)
		assert.Empty(t, stdout)
		assert.Contains(t, stderr, "Error:")
	})

	t.Run("port in use", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer ln.Close()
		port := ln.Addr().(*net.TCPAddr).Port

		code, stdout, stderr := run(t, "--host", "127.0.0.1", "--port", strconv.Itoa(port))
		assert.Equal(t, 1, code)
		assert.Empty(t, stdout)
		assert.Contains(t, stderr, "failed to listen")
		assert.Contains(t, stderr, "Suggestions:")
		assert.Contains(t, stderr, "--port "+strconv.Itoa(port+1))
	})

	t.Run("bad subscription interval", func(t *testing.T) {
		code, _, stderr := run(t, "--port", "0", "--subscription-interval", "-1s")
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "--subscription-interval must be positive")
	})
}

func TestEngineConfig(t *testing.T) {
	schema, err := graphql.ParseSchema(userSchema)
	require.NoError(t, err)

	seed := uint64(9)
	introspection := false
	p := &project{
		cfg: &config.ProjectConfig{
			Host:          "0.0.0.0",
			Path:          "/graphql",
			Introspection: &introspection,
			Seed:          &seed,
			Subscriptions: &config.SubscriptionConfig{Interval: "250ms", Events: 3},
		},
		schema: schema,
		mocks:  graphql.MockMap{},
	}

	newCmd := func(args ...string) (*cobra.Command, *serveOptions) {
		o := &serveOptions{}
		cmd := &cobra.Command{Use: "serve", RunE: func(*cobra.Command, []string) error { return nil }}
		o.register(cmd)
		cmd.SetArgs(args)
		cmd.SetOut(&bytes.Buffer{})
		require.NoError(t, cmd.Execute())
		return cmd, o
	}

	t.Run("config over defaults", func(t *testing.T) {
		cmd, o := newCmd()
		cfg, err := o.engineConfig(cmd, p)
		require.NoError(t, err)

		assert.Equal(t, engine.DefaultPort, cfg.Port)
		assert.Equal(t, "0.0.0.0", cfg.Host)
		assert.Equal(t, "/graphql", cfg.Path)
		assert.False(t, cfg.Introspection)
		require.NotNil(t, cfg.Seed)
		assert.Equal(t, uint64(9), *cfg.Seed)
		assert.Equal(t, 250*time.Millisecond, cfg.Subscriptions.Interval)
		assert.Equal(t, 3, cfg.Subscriptions.Events)
		assert.True(t, cfg.CORS.IsWildcard())
		assert.Same(t, schema, cfg.Schema)
	})

	t.Run("flags over config", func(t *testing.T) {
		cmd, o := newCmd("--port", "0", "--host", "127.0.0.1", "--path", "/api", "--seed", "1",
			"--metrics", "--cors-origins", "http://a.test, http://b.test",
			"--subscription-interval", "2s", "--subscription-events", "0")
		cfg, err := o.engineConfig(cmd, p)
		require.NoError(t, err)

		assert.Equal(t, 0, cfg.Port)
		assert.Equal(t, "127.0.0.1", cfg.Host)
		assert.Equal(t, "/api", cfg.Path)
		assert.Equal(t, uint64(1), *cfg.Seed)
		assert.True(t, cfg.Metrics)
		assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowOrigins)
		assert.Equal(t, 2*time.Second, cfg.Subscriptions.Interval)
		assert.Equal(t, 0, cfg.Subscriptions.Events)
	})

	t.Run("negative events", func(t *testing.T) {
		cmd, o := newCmd("--subscription-events", "-1")
		_, err := o.engineConfig(cmd, p)
		assert.ErrorContains(t, err, "must not be negative")
	})
}
