package metrics

import (
	"runtime"
	"sync"
	"time"
)

// Default metrics for the mock server, populated by Init.
//
// Label values:
//   - operation: query, mutation, subscription, or unknown when a request
//     failed before an operation was selected
//   - status: numeric HTTP status
//   - protocol: graphql-transport-ws or graphql-ws
var (
	// RequestsTotal counts GraphQL HTTP requests.
	// Labels: operation, path, status
	RequestsTotal *Counter

	// RequestDuration tracks GraphQL HTTP request latency in seconds.
	// Labels: operation, path
	RequestDuration *Histogram

	// ActiveSubscriptions is the number of running subscriptions.
	// Labels: protocol
	ActiveSubscriptions *Gauge

	// SubscriptionEventsTotal counts events pushed to subscribers.
	// Labels: protocol
	SubscriptionEventsTotal *Counter

	// MockFailuresTotal counts mock generators that panicked.
	// Labels: mock
	MockFailuresTotal *Counter

	// UptimeSeconds is sampled at every scrape.
	UptimeSeconds *Gauge

	// Goroutines is sampled at every scrape.
	Goroutines *Gauge

	defaultRegistry *Registry
	initOnce        sync.Once
)

// Init initializes the default metrics and returns the registry.
// It is idempotent.
func Init() *Registry {
	initOnce.Do(func() {
		r := NewRegistry()

		RequestsTotal = r.NewCounter(
			"mockgql_requests_total",
			"Total number of GraphQL requests",
			"operation", "path", "status",
		)
		RequestDuration = r.NewHistogram(
			"mockgql_request_duration_seconds",
			"Duration of GraphQL requests in seconds",
			DefaultBuckets,
			"operation", "path",
		)
		ActiveSubscriptions = r.NewGauge(
			"mockgql_active_subscriptions",
			"Number of active GraphQL subscriptions",
			"protocol",
		)
		SubscriptionEventsTotal = r.NewCounter(
			"mockgql_subscription_events_total",
			"Total number of subscription events sent",
			"protocol",
		)
		MockFailuresTotal = r.NewCounter(
			"mockgql_mock_failures_total",
			"Number of mock generators that failed",
			"mock",
		)
		UptimeSeconds = r.NewGauge(
			"mockgql_uptime_seconds",
			"Server uptime in seconds",
		)
		Goroutines = r.NewGauge(
			"go_goroutines",
			"Number of goroutines that currently exist",
		)

		start := time.Now()
		r.OnCollect(func() {
			_ = UptimeSeconds.Set(time.Since(start).Seconds())
			_ = Goroutines.Set(float64(runtime.NumGoroutine()))
		})

		defaultRegistry = r
	})

	return defaultRegistry
}

// DefaultRegistry returns the default registry, or nil before Init.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Reset clears the default metrics so Init can run again. Used by tests.
func Reset() {
	initOnce = sync.Once{}
	defaultRegistry = nil
	RequestsTotal = nil
	RequestDuration = nil
	ActiveSubscriptions = nil
	SubscriptionEventsTotal = nil
	MockFailuresTotal = nil
	UptimeSeconds = nil
	Goroutines = nil
}
