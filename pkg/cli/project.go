package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/getmockd/mockgql/pkg/config"
	"github.com/getmockd/mockgql/pkg/fixtures"
	"github.com/getmockd/mockgql/pkg/graphql"
	"github.com/getmockd/mockgql/pkg/logging"
)

// Mock origins reported by the mocks command.
const (
	originBuiltin = "builtin"
	originConfig  = "config"
)

// project is everything a command needs to serve or inspect a schema.
type project struct {
	cfg *config.ProjectConfig
	// schemaFiles is empty when the built-in schema is served.
	schemaFiles []string
	schema      *graphql.Schema
	mocks       graphql.MockMap
	origins     map[string]string
}

// builtin reports whether the built-in fixtures schema is served.
func (p *project) builtin() bool {
	return len(p.schemaFiles) == 0
}

// loadProject resolves the config file, schema and mock map. Flags win
// over the config file; no schema at all selects the built-in fixtures.
func loadProject(opts *rootOptions) (*project, error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	p := &project{cfg: cfg, origins: make(map[string]string)}

	patterns, baseDir := []string(cfg.Schema), cfg.BaseDir()
	if len(opts.schema) > 0 {
		patterns = opts.schema
		baseDir, _ = os.Getwd()
	}

	if len(patterns) == 0 {
		p.schema, err = fixtures.Schema()
		if err != nil {
			return nil, err
		}
		p.mocks = fixtures.Mocks()
		for key := range p.mocks {
			p.origins[key] = originBuiltin
		}
	} else {
		p.schemaFiles, err = config.ResolveSchemaFiles(patterns, baseDir)
		if err != nil {
			return nil, err
		}
		p.schema, err = graphql.ParseSchemaFiles(p.schemaFiles...)
		if err != nil {
			return nil, err
		}
		p.mocks = graphql.MockMap{}
	}

	if err := p.schema.Validate(); err != nil {
		return nil, err
	}

	configured, err := config.BuildMocks(cfg.Mocks, p.schema)
	if err != nil {
		return nil, err
	}
	for key := range configured {
		p.origins[key] = originConfig
	}
	p.mocks = p.mocks.Merge(configured)

	return p, nil
}

// loadConfig loads the file named by path, or a discovered one. A missing
// file is only an error when it was asked for explicitly.
func loadConfig(path string) (*config.ProjectConfig, error) {
	if path == "" {
		discovered, err := config.Discover("")
		if errors.Is(err, config.ErrNoConfig) {
			return &config.ProjectConfig{}, nil
		}
		if err != nil {
			return nil, err
		}
		path = discovered
	}
	return config.Load(path)
}

// newLogger builds the process logger. Flags win over the config file.
// The --log-file mirror always records debug entries. The returned closer
// releases its handle.
func newLogger(stderr io.Writer, opts *rootOptions, cfg *config.ProjectConfig) (*slog.Logger, func(), error) {
	level, format := "info", "text"
	if cfg != nil && cfg.Log != nil {
		if cfg.Log.Level != "" {
			level = cfg.Log.Level
		}
		if cfg.Log.Format != "" {
			format = cfg.Log.Format
		}
	}
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	if opts.logFormat != "" {
		format = opts.logFormat
	}

	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	f, err := logging.ParseFormat(format)
	if err != nil {
		return nil, nil, err
	}
	lc := logging.Config{
		Level:       lvl,
		Format:      f,
		Output:      stderr,
		MirrorLevel: logging.LevelDebug,
	}

	closer := func() {}
	if opts.logFile != "" {
		file, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		lc.Mirror = file
		closer = func() { _ = file.Close() }
	}

	return logging.New(lc), closer, nil
}
