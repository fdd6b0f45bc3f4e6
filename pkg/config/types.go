package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProjectConfig is the mockgql.yaml document.
//
// The listening port is deliberately absent: it is fixed by the server
// and only overridable from the command line.
type ProjectConfig struct {
	// Schema lists SDL files or doublestar globs, relative to the config file.
	Schema StringList `json:"schema,omitempty" yaml:"schema,omitempty"`
	// Host to bind. Default: all interfaces.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
	// Path of the GraphQL endpoint. Default: "/".
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	// Introspection enables __schema and __type. Default: true.
	Introspection *bool `json:"introspection,omitempty" yaml:"introspection,omitempty"`
	// CORS settings. Default: DefaultCORSConfig.
	CORS *CORSConfig `json:"cors,omitempty" yaml:"cors,omitempty"`
	// Log settings.
	Log *LogConfig `json:"log,omitempty" yaml:"log,omitempty"`
	// Subscriptions controls mocked subscription streams.
	Subscriptions *SubscriptionConfig `json:"subscriptions,omitempty" yaml:"subscriptions,omitempty"`
	// Metrics exposes /metrics.
	Metrics bool `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	// Seed makes default mocks deterministic.
	Seed *uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
	// Mocks maps a type, scalar or "Type.field" to a mock entry.
	Mocks map[string]MockEntry `json:"mocks,omitempty" yaml:"mocks,omitempty"`

	// path is the file the config was loaded from, if any.
	path string
}

// SourcePath returns the file the config was loaded from, or "".
func (c *ProjectConfig) SourcePath() string {
	return c.path
}

// IntrospectionEnabled reports the effective introspection setting.
func (c *ProjectConfig) IntrospectionEnabled() bool {
	return c.Introspection == nil || *c.Introspection
}

// MockEntry is one configured mock. Exactly one of Value and Expr is set.
type MockEntry struct {
	// Value is returned as-is on every call. A mapping produces a record.
	Value any `json:"value,omitempty" yaml:"value,omitempty"`
	// Expr is an expr-lang expression evaluated on every call.
	Expr string `json:"expr,omitempty" yaml:"expr,omitempty"`
	// Typename tags records that resolve an interface or union position.
	Typename string `json:"typename,omitempty" yaml:"typename,omitempty"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// SubscriptionConfig controls how subscription events are produced.
type SubscriptionConfig struct {
	// Interval between events, as a Go duration. Default: 1s.
	Interval string `json:"interval,omitempty" yaml:"interval,omitempty"`
	// Events sent before the server completes a subscription. 0 is unlimited.
	Events int `json:"events,omitempty" yaml:"events,omitempty"`
}

// IntervalDuration parses Interval. An empty interval yields zero.
func (c *SubscriptionConfig) IntervalDuration() (time.Duration, error) {
	if c == nil || c.Interval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 0, fmt.Errorf("subscriptions.interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("subscriptions.interval: must be positive, got %s", c.Interval)
	}
	return d, nil
}

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	// Enabled enables CORS handling. When false, no CORS headers are added.
	Enabled bool `json:"enabled" yaml:"enabled"`
	// AllowOrigins specifies allowed origins. "*" allows any origin.
	AllowOrigins []string `json:"allowOrigins,omitempty" yaml:"allowOrigins,omitempty"`
	// AllowMethods specifies allowed HTTP methods.
	// Default: ["GET", "POST", "OPTIONS"]
	AllowMethods []string `json:"allowMethods,omitempty" yaml:"allowMethods,omitempty"`
	// AllowHeaders specifies allowed request headers.
	AllowHeaders []string `json:"allowHeaders,omitempty" yaml:"allowHeaders,omitempty"`
	// ExposeHeaders specifies headers that browsers are allowed to access.
	ExposeHeaders []string `json:"exposeHeaders,omitempty" yaml:"exposeHeaders,omitempty"`
	// AllowCredentials indicates whether credentials are allowed.
	// With AllowOrigins ["*"] the request origin is echoed instead of "*".
	AllowCredentials bool `json:"allowCredentials,omitempty" yaml:"allowCredentials,omitempty"`
	// MaxAge is the preflight cache duration in seconds. Default: 86400 (24 hours)
	MaxAge int `json:"maxAge,omitempty" yaml:"maxAge,omitempty"`
}

// DefaultCORSConfig allows every origin, like the GraphQL servers client
// tooling expects to talk to during development.
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		Enabled:      true,
		AllowOrigins: []string{"*"},
		MaxAge:       86400,
	}
}

// IsWildcard returns true if the CORS config allows all origins.
func (c *CORSConfig) IsWildcard() bool {
	if c == nil {
		return false
	}
	for _, origin := range c.AllowOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// GetAllowOriginValue returns the appropriate Access-Control-Allow-Origin header value
// for the given request origin. Returns empty string if origin is not allowed.
func (c *CORSConfig) GetAllowOriginValue(requestOrigin string) string {
	if c == nil || !c.Enabled {
		return ""
	}

	if c.IsWildcard() {
		// Cannot use * with credentials
		if c.AllowCredentials {
			return requestOrigin
		}
		return "*"
	}

	for _, allowed := range c.AllowOrigins {
		if allowed == requestOrigin {
			return requestOrigin
		}
	}

	return ""
}

// StringList accepts either a single string or a list of strings.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = StringList{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("expected a string or a list of strings: %w", err)
	}
	*l = list
	return nil
}
