// Package engine runs the mock GraphQL server.
//
// A Server is built from an explicit Config and moves through a small
// lifecycle:
//
//	srv, err := engine.New(cfg)       // schema errors surface here
//	url, err := srv.Listen(ctx)       // bind errors surface here as *ListenError
//	...
//	err = srv.Shutdown(ctx)
//
// The HTTP handler tree is:
//
//	CORSMiddleware
//	└── ServeMux
//	    ├── Config.Path        GraphQL over HTTP, subscriptions over WebSocket
//	    ├── HealthPath         liveness probe
//	    └── MetricsPath        Prometheus text format (Config.Metrics)
//
// Nothing is bound or started as a side effect of New; Handler can be
// mounted in an httptest.Server directly.
package engine
