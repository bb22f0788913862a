package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Levels maps the accepted level names to zerolog levels.
var Levels = map[string]zerolog.Level{
	"DEBUG":    zerolog.DebugLevel,
	"INFO":     zerolog.InfoLevel,
	"WARN":     zerolog.WarnLevel,
	"WARNING":  zerolog.WarnLevel,
	"ERROR":    zerolog.ErrorLevel,
	"OFF":      zerolog.Disabled,
	"DISABLED": zerolog.Disabled,
}

// ParseLevel parses a level name into a zerolog level.
// Unknown or empty names default to info.
func ParseLevel(s string) zerolog.Level {
	if l, ok := Levels[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return l
	}
	return zerolog.InfoLevel
}

var (
	mu      sync.Mutex
	logFile *os.File
)

// Setup builds the process logger. Human-readable output goes to stderr;
// when filePath is set the same records are also appended as JSON lines.
func Setup(level zerolog.Level, filePath string) (zerolog.Logger, error) {
	return SetupWithWriter(level, filePath, os.Stderr)
}

// SetupWithWriter is Setup with an explicit console writer.
func SetupWithWriter(level zerolog.Level, filePath string, console io.Writer) (zerolog.Logger, error) {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	var writer io.Writer = zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05"}

	if filePath != "" && level != zerolog.Disabled {
		if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
			return zerolog.Nop(), fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("opening log file %s: %w", filePath, err)
		}
		logFile = f
		writer = zerolog.MultiLevelWriter(writer, f)
	}

	return zerolog.New(writer).With().Timestamp().Logger().Level(level), nil
}

// Close closes the log file if one is open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// Component returns a child logger tagged with the component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

// WithFields returns a child logger carrying the given key/value fields.
func WithFields(logger zerolog.Logger, fields map[string]interface{}) zerolog.Logger {
	return logger.With().Fields(fields).Logger()
}
