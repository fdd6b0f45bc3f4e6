package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getmockd/mockgql/pkg/config"
	"github.com/getmockd/mockgql/pkg/graphql"
	"github.com/getmockd/mockgql/pkg/logging"
	"github.com/getmockd/mockgql/pkg/metrics"
)

// DefaultPort is the port the mock server listens on.
const DefaultPort = 8888

// DefaultPath is the GraphQL endpoint path.
const DefaultPath = "/"

// MetricsPath serves Prometheus metrics when Config.Metrics is set.
const MetricsPath = "/metrics"

// ErrAlreadyStarted is returned by Listen on a server that has already
// been started, whether or not that attempt succeeded.
var ErrAlreadyStarted = errors.New("server already started")

// Config is the explicit configuration of a mock server.
type Config struct {
	// Host to bind. Empty binds every interface and advertises localhost.
	Host string
	// Port to bind. Zero picks a free port; DefaultConfig sets DefaultPort.
	Port int
	// Path of the GraphQL endpoint. Default: "/".
	Path string

	// SchemaFiles are SDL files loaded in order; later files may extend
	// types from earlier ones.
	SchemaFiles []string
	// SchemaSDL is an inline schema, appended after SchemaFiles.
	SchemaSDL string
	// Schema is an already parsed schema. When set, SchemaFiles and
	// SchemaSDL are ignored.
	Schema *graphql.Schema

	// Mocks overrides default value generation. It is not modified.
	Mocks graphql.MockMap
	// Seed makes default mocks deterministic when set.
	Seed *uint64

	Introspection bool
	CORS          *config.CORSConfig
	Subscriptions graphql.SubscriptionOptions
	// Metrics exposes MetricsPath.
	Metrics bool

	// ShutdownTimeout bounds Shutdown when the caller's context has no deadline.
	ShutdownTimeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns the configuration of the stock mock server.
func DefaultConfig() Config {
	return Config{
		Port:            DefaultPort,
		Path:            DefaultPath,
		Introspection:   true,
		CORS:            config.DefaultCORSConfig(),
		Subscriptions:   graphql.SubscriptionOptions{Interval: graphql.DefaultSubscriptionInterval},
		ShutdownTimeout: 5 * time.Second,
	}
}

// Server is a mock GraphQL server.
type Server struct {
	cfg           Config
	log           *slog.Logger
	schema        *graphql.Schema
	executor      *graphql.Executor
	subscriptions *graphql.SubscriptionHandler
	handler       http.Handler

	mu         sync.RWMutex
	state      State
	httpServer *http.Server
	addr       net.Addr
	url        string
	done       chan struct{}
	serveErr   error
}

// New builds a server from cfg. It parses the schema up front, so a
// malformed or missing schema fails here with a *graphql.SchemaError and
// nothing is ever bound.
func New(cfg Config) (*Server, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		return nil, fmt.Errorf("invalid path %q: must start with /", cfg.Path)
	}
	if cfg.Port < 0 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}

	schema, err := loadSchema(cfg)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	for _, key := range cfg.Mocks.Unmatched(schema) {
		log.Warn("mock does not match any schema type or field", "mock", key)
	}

	opts := []graphql.ExecutorOption{
		graphql.WithIntrospection(cfg.Introspection),
		graphql.WithLogger(log.With("component", "executor")),
	}
	if cfg.Seed != nil {
		opts = append(opts, graphql.WithSeed(*cfg.Seed))
	}
	executor := graphql.NewExecutor(schema, cfg.Mocks, opts...)

	s := &Server{
		cfg:      cfg,
		log:      log,
		schema:   schema,
		executor: executor,
		state:    StateStarting,
	}
	s.subscriptions = graphql.NewSubscriptionHandler(executor, cfg.Subscriptions, log.With("component", "subscriptions"))
	s.handler = s.buildHandler()

	return s, nil
}

func loadSchema(cfg Config) (*graphql.Schema, error) {
	switch {
	case cfg.Schema != nil:
		return cfg.Schema, nil
	case len(cfg.SchemaFiles) > 0 && cfg.SchemaSDL != "":
		// Inline SDL extends the files, so load everything as one document.
		return graphql.LoadSchemaSources(cfg.SchemaFiles, cfg.SchemaSDL)
	case len(cfg.SchemaFiles) > 0:
		return graphql.ParseSchemaFiles(cfg.SchemaFiles...)
	default:
		return graphql.ParseSchema(cfg.SchemaSDL)
	}
}

func (s *Server) buildHandler() http.Handler {
	gql := graphql.NewHandler(s.executor,
		graphql.WithSubscriptions(s.subscriptions),
		graphql.WithHandlerLogger(s.log.With("component", "handler")),
		graphql.WithHandlerPath(s.cfg.Path),
	)

	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, gql)
	mux.HandleFunc(HealthPath, handleHealth)
	if s.cfg.Metrics {
		mux.Handle(MetricsPath, metrics.Init().Handler())
	}

	return NewCORSMiddleware(mux, s.cfg.CORS)
}

// Listen binds the configured address and starts serving in the background.
// It returns once the listener is bound, with the URL clients should use.
// Bind failures return a *ListenError. ctx bounds the bind only.
func (s *Server) Listen(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStarting {
		return "", fmt.Errorf("%w (state: %s)", ErrAlreadyStarted, s.state)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		s.state = StateFailed
		s.log.Error("failed to listen", "addr", addr, "error", err)
		return "", &ListenError{Addr: addr, Err: err}
	}

	s.addr = ln.Addr()
	s.url = buildURL(s.cfg.Host, s.addr, s.cfg.Path)
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelWarn),
	}
	s.done = make(chan struct{})
	s.state = StateListening

	go s.serve(s.httpServer, ln, s.done)

	s.log.Info("server listening", "url", s.url, "addr", s.addr.String())
	return s.url, nil
}

func (s *Server) serve(srv *http.Server, ln net.Listener, done chan struct{}) {
	defer close(done)

	err := srv.Serve(ln)
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}

	s.log.Error("server error", "error", err)
	s.mu.Lock()
	s.serveErr = err
	s.state = StateFailed
	s.mu.Unlock()
}

// buildURL returns the address clients can reach. Wildcard hosts are
// advertised as localhost.
func buildURL(host string, addr net.Addr, path string) string {
	port := DefaultPort
	if tcp, ok := addr.(*net.TCPAddr); ok {
		port = tcp.Port
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(host, strconv.Itoa(port)), path)
}

// Shutdown stops accepting requests, closes subscription sockets and waits
// for in-flight requests. If ctx has no deadline, Config.ShutdownTimeout
// applies.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	if s.state == StateStarting {
		s.state = StateStopped
	}
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}

	// Hijacked WebSocket connections are not tracked by http.Server.
	s.subscriptions.CloseAll("server shutting down")

	err := srv.Shutdown(ctx)

	s.mu.Lock()
	if s.state == StateListening {
		s.state = StateStopped
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

// Wait blocks until the server stops serving and returns the serve error,
// if any. It returns immediately for a server that never listened.
func (s *Server) Wait() error {
	s.mu.RLock()
	done := s.done
	s.mu.RUnlock()

	if done == nil {
		return nil
	}
	<-done

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serveErr
}

// State returns the lifecycle state.
func (s *Server) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// URL returns the advertised URL, or "" before Listen succeeds.
func (s *Server) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url
}

// Addr returns the bound address, or nil before Listen succeeds.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Handler returns the full HTTP handler, usable without binding a port.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Schema returns the parsed schema.
func (s *Server) Schema() *graphql.Schema {
	return s.schema
}

// Executor returns the mock executor.
func (s *Server) Executor() *graphql.Executor {
	return s.executor
}

// Subscriptions returns the WebSocket subscription handler.
func (s *Server) Subscriptions() *graphql.SubscriptionHandler {
	return s.subscriptions
}

// Config returns the configuration the server was built with.
func (s *Server) Config() Config {
	return s.cfg
}
