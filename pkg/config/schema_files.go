package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	// ErrNoSchemaFiles is returned when a schema pattern matches nothing.
	ErrNoSchemaFiles = errors.New("no schema files matched")
	// ErrSchemaNotFound is returned for a plain schema path that does not exist.
	ErrSchemaNotFound = errors.New("schema file not found")
)

// ResolveSchemaFiles expands schema patterns into a sorted, de-duplicated
// list of files. Relative patterns are resolved against baseDir. Plain
// paths must exist; glob patterns must match at least one file.
func ResolveSchemaFiles(patterns []string, baseDir string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	for _, pattern := range patterns {
		full := pattern
		if !filepath.IsAbs(full) && baseDir != "" {
			full = filepath.Join(baseDir, full)
		}

		if !hasMeta(full) {
			info, err := os.Stat(full)
			if err != nil {
				if os.IsNotExist(err) {
					return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, pattern)
				}
				return nil, fmt.Errorf("schema %s: %w", pattern, err)
			}
			if info.IsDir() {
				return nil, fmt.Errorf("schema path is a directory, not a file: %s", pattern)
			}
			if !seen[full] {
				seen[full] = true
				files = append(files, full)
			}
			continue
		}

		matches, err := expandGlob(full)
		if err != nil {
			return nil, fmt.Errorf("invalid schema pattern %q: %w", pattern, err)
		}

		matched := 0
		for _, m := range matches {
			if info, err := os.Stat(m); err != nil || info.IsDir() {
				continue
			}
			matched++
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
		if matched == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoSchemaFiles, pattern)
		}
	}

	sort.Strings(files)
	return files, nil
}

// BaseDir returns the directory relative schema paths resolve against:
// the config file's directory, or the working directory.
func (c *ProjectConfig) BaseDir() string {
	if c != nil && c.path != "" {
		return filepath.Dir(c.path)
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

// expandGlob expands a glob pattern, supporting ** for recursive matching
// and {a,b} alternatives.
func expandGlob(pattern string) ([]string, error) {
	if strings.Contains(pattern, "**") || strings.Contains(pattern, "{") {
		// FilepathGlob returns matches using the OS path separator
		return doublestar.FilepathGlob(pattern)
	}
	return filepath.Glob(pattern)
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
