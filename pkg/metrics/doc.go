// Package metrics provides Prometheus-compatible metrics for the mock server.
//
// It writes the Prometheus text exposition format (text/plain; version=0.0.4)
// for three metric types:
//   - Counter: monotonically increasing value (e.g., request counts)
//   - Gauge: value that can go up or down (e.g., active subscriptions)
//   - Histogram: distribution of values with configurable buckets (e.g., latencies)
//
// All metrics are safe for concurrent use.
//
// # Usage
//
//	registry := metrics.Init()
//
//	vec, _ := metrics.RequestsTotal.WithLabels("query", "/", "200")
//	_ = vec.Inc()
//
//	http.Handle("/metrics", registry.Handler())
package metrics
