// Package logging writes JSON-formatted slog records to stateDir/debug.log.
// Hook handlers run once per editor event, so the file is appended to by
// many short-lived processes; it is rolled over to debug.log.1 when it
// grows past MaxFileSize.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the log file name inside the state directory.
const FileName = "debug.log"

// MaxFileSize is the size at which debug.log is rolled over on open.
const MaxFileSize = 5 << 20

// Logger is a slog.Logger that may own the underlying log file.
type Logger struct {
	*slog.Logger
	file *os.File
}

// New creates a Logger writing to stateDir/debug.log. If stateDir is empty,
// logs are written to stderr.
func New(stateDir, level string) (*Logger, error) {
	if stateDir == "" {
		return NewWriter(os.Stderr, level), nil
	}
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	path := filepath.Join(stateDir, FileName)
	rollover(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l := NewWriter(f, level)
	l.file = f
	return l, nil
}

// NewWriter creates a Logger writing JSON lines to w.
func NewWriter(w io.Writer, level string) *Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return &Logger{Logger: slog.New(h)}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return NewWriter(io.Discard, "error")
}

// With returns a child Logger sharing the same file.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), file: l.file}
}

// Close closes the log file. No-op for loggers not backed by a file.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ParseLevel converts a level name to slog.Level. Unrecognized names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// rollover renames path to path.1 when it is at least MaxFileSize. Failures
// are ignored; logging continues into the oversized file.
func rollover(path string) {
	info, err := os.Stat(path)
	if err != nil || info.Size() < MaxFileSize {
		return
	}
	_ = os.Rename(path, path+".1")
}
