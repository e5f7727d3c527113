// Package logging tests for structured JSON logging.
package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
)

func decode(t *testing.T, line string) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &entry); err != nil {
		t.Fatalf("Output is not valid JSON: %v (%q)", err, line)
	}
	return entry
}

// TestInit_idempotent verifies Init is idempotent.
func TestInit_idempotent(t *testing.T) {
	global = nil
	once = *new(sync.Once)

	var buf1 bytes.Buffer
	Init(&buf1, LevelInfo)
	first := Get()

	var buf2 bytes.Buffer
	Init(&buf2, LevelDebug)

	if Get() != first {
		t.Error("Second Init() should be ignored, different logger returned")
	}
	if first.out != &buf1 {
		t.Error("Second Init() should be ignored, output writer changed")
	}
}

// TestGet_default verifies default logger creation.
func TestGet_default(t *testing.T) {
	global = nil
	once = *new(sync.Once)

	logger := Get()
	if logger == nil {
		t.Fatal("Get() returned nil without Init()")
	}
	if logger.out != os.Stdout {
		t.Error("Get() should default to os.Stdout")
	}
	if logger.minLevel != LevelInfo {
		t.Errorf("minLevel = %v, want LevelInfo", logger.minLevel)
	}
}

// TestParseLevel verifies config strings map onto levels.
func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"trace", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{" warn ", LevelWarn, false},
		{"error", LevelError, false},
		{"fatal", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// TestLogger_Info verifies info logging with context.
func TestLogger_Info(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelInfo)

	logger.Info("resync finished", map[string]interface{}{"replayed": 2})

	entry := decode(t, buf.String())
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if entry["message"] != "resync finished" {
		t.Errorf("message = %v, want 'resync finished'", entry["message"])
	}
	if entry["replayed"] != float64(2) {
		t.Errorf("replayed = %v, want 2", entry["replayed"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("timestamp field missing")
	}
}

// TestLogger_Error verifies error logging.
func TestLogger_Error(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelInfo)

	logger.Error("replay failed", io.ErrUnexpectedEOF)

	entry := decode(t, buf.String())
	if entry["level"] != "error" {
		t.Errorf("level = %v, want error", entry["level"])
	}
	if !strings.Contains(entry["error"].(string), io.ErrUnexpectedEOF.Error()) {
		t.Errorf("error field = %v", entry["error"])
	}
}

// TestLogger_ErrorWithCode verifies error logging with code.
func TestLogger_ErrorWithCode(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelInfo)

	logger.ErrorWithCode("validation failed", "VALIDATION_ERROR", io.ErrUnexpectedEOF, map[string]interface{}{"field": "email"})

	entry := decode(t, buf.String())
	if entry["error_code"] != "VALIDATION_ERROR" {
		t.Errorf("error_code = %v, want VALIDATION_ERROR", entry["error_code"])
	}
	if entry["field"] != "email" {
		t.Errorf("field = %v, want email", entry["field"])
	}
}

// TestLogger_filtering verifies the minimum level is honoured.
func TestLogger_filtering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelWarn)

	logger.Debug("hidden")
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}

	logger.Warn("shown")
	if buf.Len() == 0 {
		t.Fatal("Warn() produced no output")
	}

	buf.Reset()
	logger.SetLevel(LevelDebug)
	logger.Debug("now shown")
	if buf.Len() == 0 {
		t.Error("Debug() produced no output after SetLevel(LevelDebug)")
	}
}

// TestMergeContext verifies context maps are merged in order.
func TestMergeContext(t *testing.T) {
	if mergeContext() != nil {
		t.Error("mergeContext() with no maps should be nil")
	}

	merged := mergeContext(
		map[string]interface{}{"a": 1, "b": 1},
		map[string]interface{}{"b": 2},
	)
	if merged["a"] != 1 || merged["b"] != 2 {
		t.Errorf("merged = %v", merged)
	}
}

// TestLogger_concurrentLogging verifies concurrent writers produce whole lines.
func TestLogger_concurrentLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelInfo)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Info("concurrent", map[string]interface{}{"n": n})
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 20 {
		t.Fatalf("got %d lines, want 20", len(lines))
	}
	for _, line := range lines {
		decode(t, line)
	}
}
