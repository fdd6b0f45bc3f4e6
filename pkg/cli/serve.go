package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/getmockd/mockgql/pkg/cli/internal/parse"
	"github.com/getmockd/mockgql/pkg/config"
	"github.com/getmockd/mockgql/pkg/engine"
)

// ReadyBanner is printed on stdout once the server accepts requests.
const ReadyBanner = "🚀 Server ready at %s\n"

// serveOptions are the flags of the serve command. The root command
// carries the same set so that a bare "mockgql" starts the server.
type serveOptions struct {
	port            int
	host            string
	path            string
	seed            uint64
	noIntrospection bool
	metrics         bool
	corsOrigins     string
	interval        time.Duration
	events          int
}

func (o *serveOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVarP(&o.port, "port", "p", engine.DefaultPort, "Port to listen on (0 picks a free port)")
	f.StringVar(&o.host, "host", "", "Host to bind (default: all interfaces)")
	f.StringVar(&o.path, "path", "", "GraphQL endpoint path (default: /)")
	f.Uint64Var(&o.seed, "seed", 0, "Seed for deterministic default mocks")
	f.BoolVar(&o.noIntrospection, "no-introspection", false, "Disable __schema and __type")
	f.BoolVar(&o.metrics, "metrics", false, "Expose Prometheus metrics at "+engine.MetricsPath)
	f.StringVar(&o.corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins (default: *)")
	f.DurationVar(&o.interval, "subscription-interval", 0, "Pause between subscription events (default: 1s)")
	f.IntVar(&o.events, "subscription-events", 0, "Events per subscription before completing (0 = unlimited)")
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	serve := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mock GraphQL server",
		Long: `Start the mock GraphQL server.

The server listens on port 8888 by default and prints a single line on
stdout once it accepts requests:

  🚀 Server ready at http://localhost:8888/

Logs go to stderr. SIGINT and SIGTERM stop the server gracefully.`,
		Example: `  # Serve the built-in groups schema
  mockgql serve

  # Serve a schema with deterministic mocks
  mockgql serve --schema 'schema/**/*.graphql' --seed 42

  # Use a config file on a free port
  mockgql serve -c api/mockgql.yaml --port 0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, serve)
		},
	}
	serve.register(cmd)
	return cmd
}

// engineConfig merges the project config and the flags that were set
// explicitly over engine.DefaultConfig.
func (o *serveOptions) engineConfig(cmd *cobra.Command, p *project) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	cfg.Schema = p.schema
	cfg.Mocks = p.mocks

	pc := p.cfg
	cfg.Host = pc.Host
	if pc.Path != "" {
		cfg.Path = pc.Path
	}
	cfg.Introspection = pc.IntrospectionEnabled()
	if pc.CORS != nil {
		cfg.CORS = pc.CORS
	}
	cfg.Metrics = pc.Metrics
	cfg.Seed = pc.Seed
	if pc.Subscriptions != nil {
		interval, err := pc.Subscriptions.IntervalDuration()
		if err != nil {
			return cfg, err
		}
		if interval > 0 {
			cfg.Subscriptions.Interval = interval
		}
		cfg.Subscriptions.Events = pc.Subscriptions.Events
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = o.port
	}
	if flags.Changed("host") {
		cfg.Host = o.host
	}
	if flags.Changed("path") {
		cfg.Path = o.path
	}
	if flags.Changed("seed") {
		seed := o.seed
		cfg.Seed = &seed
	}
	if o.noIntrospection {
		cfg.Introspection = false
	}
	if o.metrics {
		cfg.Metrics = true
	}
	if flags.Changed("cors-origins") {
		cors := config.DefaultCORSConfig()
		cors.AllowOrigins = parse.SplitTrim(o.corsOrigins, ",")
		cfg.CORS = cors
	}
	if flags.Changed("subscription-interval") {
		if o.interval <= 0 {
			return cfg, fmt.Errorf("--subscription-interval must be positive, got %s", o.interval)
		}
		cfg.Subscriptions.Interval = o.interval
	}
	if flags.Changed("subscription-events") {
		if o.events < 0 {
			return cfg, fmt.Errorf("--subscription-events must not be negative, got %d", o.events)
		}
		cfg.Subscriptions.Events = o.events
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, opts *rootOptions, serve *serveOptions) error {
	p, err := loadProject(opts)
	if err != nil {
		return err
	}

	log, closeLog, err := newLogger(cmd.ErrOrStderr(), opts, p.cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	cfg, err := serve.engineConfig(cmd, p)
	if err != nil {
		return err
	}
	cfg.Logger = log

	if p.builtin() {
		log.Info("no schema configured, serving the built-in groups schema")
	} else {
		log.Debug("schema loaded", "files", p.schemaFiles)
	}

	srv, err := engine.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url, err := srv.Listen(ctx)
	if err != nil {
		return formatListenError(cfg.Port, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), ReadyBanner, url)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Wait() }()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func formatListenError(port int, err error) error {
	if !engine.IsAddrInUse(err) {
		return err
	}
	return fmt.Errorf(`%w

Suggestions:
  - Use a different port: mockgql serve --port %d
  - Check what's using the port: lsof -i :%d
  - Stop the other process and try again`, err, port+1, port)
}
