package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		wantErr  bool
	}{
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"DEBUG", LevelDebug, false},
		{"Warning", LevelWarn, false},
		{"", LevelInfo, false},
		{"trace", LevelInfo, true},
		{"fatal", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if result != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
		wantErr  bool
	}{
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"text", FormatText, false},
		{"", FormatText, false},
		{"yaml", FormatText, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if result != tt.expected {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNew_Mirror(t *testing.T) {
	var out, mirror bytes.Buffer
	log := New(Config{Level: LevelDebug, Format: FormatText, Output: &out, Mirror: &mirror, MirrorLevel: LevelDebug})

	log.With("component", "schema").Debug("schema loaded", "types", 3)

	if !strings.Contains(out.String(), "msg=\"schema loaded\"") {
		t.Errorf("text output = %q", out.String())
	}

	var rec map[string]any
	if err := json.Unmarshal(mirror.Bytes(), &rec); err != nil {
		t.Fatalf("mirror output is not JSON: %v (%q)", err, mirror.String())
	}
	if rec["msg"] != "schema loaded" || rec["types"] != float64(3) || rec["component"] != "schema" {
		t.Errorf("mirror record = %v", rec)
	}
}

func TestNew_MirrorLevelIsIndependent(t *testing.T) {
	var out, mirror bytes.Buffer
	log := New(Config{Level: LevelWarn, Output: &out, Mirror: &mirror, MirrorLevel: LevelDebug})

	log.Debug("request served")

	if out.Len() != 0 {
		t.Errorf("console should filter debug records: %q", out.String())
	}
	if !strings.Contains(mirror.String(), `"msg":"request served"`) {
		t.Errorf("mirror should keep debug records: %q", mirror.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestNew_FailingMirror(t *testing.T) {
	var out bytes.Buffer
	log := New(Config{Level: LevelInfo, Output: &out, Mirror: failingWriter{}, MirrorLevel: LevelInfo})

	log.Info("still shown")

	if !strings.Contains(out.String(), "still shown") {
		t.Errorf("console lost a record because the mirror failed: %q", out.String())
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var out bytes.Buffer
	log := New(Config{Level: LevelWarn, Format: FormatJSON, Output: &out})

	log.Info("hidden")
	log.Warn("shown")

	if strings.Contains(out.String(), "hidden") {
		t.Errorf("info record should be filtered at warn level: %q", out.String())
	}
	if !strings.Contains(out.String(), `"msg":"shown"`) {
		t.Errorf("warn record missing: %q", out.String())
	}
}

func TestNop(t *testing.T) {
	log := Nop()
	if log.Enabled(context.Background(), LevelError) {
		t.Error("Nop logger should not be enabled for any level")
	}
	log.Error("discarded")
}
