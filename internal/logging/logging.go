// Package logging provides structured logging functionality using Go's slog package.
// It supports both text and JSON output formats, configurable log levels,
// and step-oriented helpers for the gvmscan orchestration engine.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	// File permissions for directories and log files.
	logDirPerm  = 0750
	logFilePerm = 0600
)

// LogLevel represents the available log levels.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogFormat represents the available log formats.
type LogFormat string

const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

// Config holds logging configuration.
type Config struct {
	Level     LogLevel  `yaml:"level" json:"level"`
	Format    LogFormat `yaml:"format" json:"format"`
	Output    string    `yaml:"output" json:"output"`
	AddSource bool      `yaml:"add_source" json:"add_source"`
}

// DefaultConfig returns a default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:     LevelInfo,
		Format:    FormatText,
		Output:    "stdout",
		AddSource: false,
	}
}

// Logger wraps slog.Logger with additional functionality.
type Logger struct {
	*slog.Logger
	config Config
}

// New creates a new structured logger with the given configuration.
func New(cfg Config) (*Logger, error) {
	var writer io.Writer
	switch cfg.Output {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		// Assume it's a file path
		if err := os.MkdirAll(filepath.Dir(cfg.Output), logDirPerm); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerm)
		if err != nil {
			return nil, err
		}
		writer = file
	}

	return NewWithWriter(cfg, writer), nil
}

// NewWithWriter creates a logger that writes to w, ignoring cfg.Output.
func NewWithWriter(cfg Config, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		config: cfg,
	}
}

// ParseLevel maps a configured level to its slog equivalent.
// Unknown values fall back to info.
func ParseLevel(level LogLevel) slog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewDefault creates a logger with default configuration.
func NewDefault() *Logger {
	logger, _ := New(DefaultConfig())
	return logger
}

// NewDiscard creates a logger that drops every record.
func NewDiscard() *Logger {
	return NewWithWriter(DefaultConfig(), io.Discard)
}

// WithContext adds context to the logger for structured logging.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{
		Logger: l.With(),
		config: l.config,
	}
}

// WithFields adds structured fields to the logger.
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger: l.With(fields...),
		config: l.config,
	}
}

// WithComponent adds a component field to the logger.
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

// WithHost adds the scanned host to the logger.
func (l *Logger) WithHost(host string) *Logger {
	return l.WithFields("host", host)
}

// WithTaskID adds a task ID field to the logger.
func (l *Logger) WithTaskID(taskID string) *Logger {
	return l.WithFields("task_id", taskID)
}

// WithError adds an error field to the logger.
func (l *Logger) WithError(err error) *Logger {
	return l.WithFields("error", err)
}

// DebugStep logs the successful completion of a lifecycle step.
func (l *Logger) DebugStep(msg, step string, fields ...any) {
	allFields := append([]any{"step", step}, fields...)
	l.Debug(msg, allFields...)
}

// InfoStep logs lifecycle step information.
func (l *Logger) InfoStep(msg, step string, fields ...any) {
	allFields := append([]any{"step", step}, fields...)
	l.Info(msg, allFields...)
}

// ErrorStep logs a fault raised by a lifecycle step.
func (l *Logger) ErrorStep(msg, step string, err error, fields ...any) {
	allFields := append([]any{"step", step, "error", err}, fields...)
	l.Error(msg, allFields...)
}

// InfoEngine logs engine session information.
func (l *Logger) InfoEngine(msg string, fields ...any) {
	allFields := append([]any{"component", "engine"}, fields...)
	l.Info(msg, allFields...)
}

// ErrorEngine logs engine session errors.
func (l *Logger) ErrorEngine(msg string, err error, fields ...any) {
	allFields := append([]any{"component", "engine", "error", err}, fields...)
	l.Error(msg, allFields...)
}

// Global logger instance - can be replaced for testing.
var defaultLogger = NewDefault()

// SetDefault sets the default logger instance.
func SetDefault(logger *Logger) {
	defaultLogger = logger
}

// Default returns the default logger instance.
func Default() *Logger {
	return defaultLogger
}

// Debug logs at debug level using the default logger.
func Debug(msg string, fields ...any) {
	defaultLogger.Debug(msg, fields...)
}

// Info logs at info level using the default logger.
func Info(msg string, fields ...any) {
	defaultLogger.Info(msg, fields...)
}

// Warn logs at warn level using the default logger.
func Warn(msg string, fields ...any) {
	defaultLogger.Warn(msg, fields...)
}

// Error logs at error level using the default logger.
func Error(msg string, fields ...any) {
	defaultLogger.Error(msg, fields...)
}
