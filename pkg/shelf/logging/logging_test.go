package logging_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jamesainslie/shelf/pkg/shelf/logging"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    logging.Level
		wantErr bool
	}{
		{"debug", logging.LevelDebug, false},
		{"INFO", logging.LevelInfo, false},
		{"", logging.LevelInfo, false},
		{"warning", logging.LevelWarn, false},
		{"error", logging.LevelError, false},
		{"loud", logging.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := logging.ParseLevel(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

// TestInitAndGet modifies global state and must not run in parallel.
func TestInitAndGet(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "shelf.log")

	early := logging.Get("resolver")
	early.Info("before init is discarded")

	err := logging.Init(logging.Config{
		Level: "info",
		Path:  logPath,
		Components: map[string]string{
			"delivery": "debug",
		},
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer func() { _ = logging.Close() }()

	if logging.Get("resolver") != early {
		t.Error("Get should return the same logger instance across Init")
	}

	early.Info("scan finished", "new_games", 3)
	logging.Get("resolver").Debug("hidden at info level")
	logging.Get("delivery").Debug("visible at debug level")

	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	content := string(data)

	if strings.Contains(content, "before init") {
		t.Error("messages logged before Init should be discarded")
	}
	if !strings.Contains(content, "scan finished") || !strings.Contains(content, "new_games=3") {
		t.Errorf("expected info message with fields, got:\n%s", content)
	}
	if strings.Contains(content, "hidden at info level") {
		t.Error("debug message should be filtered at info level")
	}
	if !strings.Contains(content, "visible at debug level") {
		t.Error("component override should enable debug output")
	}
}

func TestInitRejectsBadLevels(t *testing.T) {
	dir := t.TempDir()

	if err := logging.Init(logging.Config{Level: "nope", Path: filepath.Join(dir, "a.log")}); err == nil {
		t.Error("expected error for invalid default level")
	}
	if err := logging.Init(logging.Config{
		Level:      "info",
		Path:       filepath.Join(dir, "b.log"),
		Components: map[string]string{"daemon": "nope"},
	}); err == nil {
		t.Error("expected error for invalid component level")
	}
	_ = logging.Close()
}

func TestNewWritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, "delivery", logging.LevelInfo)

	logger.With("session", "abc").Info("transfer aborted", "elapsed", "1s")
	logger.Debug("dropped")

	out := buf.String()
	if !strings.Contains(out, "transfer aborted") || !strings.Contains(out, "session=abc") {
		t.Errorf("unexpected output: %q", out)
	}
	if strings.Contains(out, "dropped") {
		t.Error("debug should be filtered")
	}
	if logger.Component() != "delivery" {
		t.Errorf("Component() = %q", logger.Component())
	}
}
