package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"DEBUG", zerolog.DebugLevel},
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"INVALID", zerolog.InfoLevel}, // Default to INFO
		{"", zerolog.InfoLevel},
	}

	for _, test := range tests {
		if got := ParseLevel(test.input); got != test.expected {
			t.Errorf("ParseLevel(%q) = %v, want %v", test.input, got, test.expected)
		}
	}
}

func TestSetupWritesFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "signally.log")

	var console bytes.Buffer
	logger, err := SetupWithWriter(zerolog.InfoLevel, logPath, &console)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	logger.Debug().Msg("debug message")
	logger.Info().Msg("info message")
	Component(logger, "scheduler").Warn().Msg("warn message")

	if err := Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}

	logContent := string(content)
	if strings.Contains(logContent, "debug message") {
		t.Error("DEBUG message should not appear with INFO level")
	}
	if !strings.Contains(logContent, "info message") {
		t.Error("INFO message should appear with INFO level")
	}
	if !strings.Contains(logContent, `"component":"scheduler"`) {
		t.Error("component field should be written")
	}
	if !strings.Contains(console.String(), "warn message") {
		t.Error("console output should contain the warn message")
	}
}

func TestSetupDisabled(t *testing.T) {
	var console bytes.Buffer
	logger, err := SetupWithWriter(zerolog.Disabled, filepath.Join(t.TempDir(), "off.log"), &console)
	if err != nil {
		t.Fatalf("Setup with disabled level failed: %v", err)
	}

	logger.Error().Msg("error message")
	if console.Len() != 0 {
		t.Errorf("expected no output, got %q", console.String())
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	WithFields(logger, map[string]interface{}{
		"provider": "alphavantage",
		"count":    42,
	}).Info().Msg("test message with fields")

	out := buf.String()
	if !strings.Contains(out, `"provider":"alphavantage"`) {
		t.Errorf("expected provider field, got %s", out)
	}
	if !strings.Contains(out, `"count":42`) {
		t.Errorf("expected count field, got %s", out)
	}
}
