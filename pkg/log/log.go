package log

import (
	"io"
	"log/slog"
	"os"

	"github.com/IAL32/clickhouse-async/pkg/config"
)

// Logger is the global logger instance
var Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

// Setup initializes the logger with the given configuration
func Setup(cfg *config.LogConfig) {
	var handler slog.Handler

	// Configure the log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Configure the log format
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	// Create the logger
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// SetOutput sets the output destination for the logger
func SetOutput(w io.Writer) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	Logger = slog.New(slog.NewJSONHandler(w, opts))
	slog.SetDefault(Logger)
}

// With returns a logger with the given attributes
func With(attrs ...any) *slog.Logger {
	return Logger.With(attrs...)
}

// Debug logs a debug message
func Debug(msg string, attrs ...any) {
	Logger.Debug(msg, attrs...)
}

// Info logs an info message
func Info(msg string, attrs ...any) {
	Logger.Info(msg, attrs...)
}

// Warn logs a warning message
func Warn(msg string, attrs ...any) {
	Logger.Warn(msg, attrs...)
}

// Error logs an error message
func Error(msg string, attrs ...any) {
	Logger.Error(msg, attrs...)
}
