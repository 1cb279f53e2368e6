// Package logging configures structured logging for the pipeline. It provides
// a process-wide slog setup plus per-service file loggers with rotation.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

var structuredLogger *slog.Logger
var humanReadableLogger *slog.Logger

// Init initializes the logging system with structured and human-readable loggers.
// It configures JSON output for structured logs and Text output for human-readable logs.
func Init(level slog.Level) {
	structuredHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	structuredLogger = slog.New(structuredHandler)

	humanReadableHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	humanReadableLogger = slog.New(humanReadableHandler)

	slog.SetDefault(structuredLogger)
}

// Default rotation settings for service log files.
const (
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 3
	defaultMaxAgeDays = 28
)

// NewFileLogger creates a slog.Logger writing JSON records to the given file,
// rotated by lumberjack. It returns the logger, a close function for the
// underlying writer, and an error if the log directory could not be created.
// The level argument accepts a slog.Leveler so callers can pass a
// *slog.LevelVar for dynamic level control.
func NewFileLogger(filePath, serviceName string, level slog.Leveler) (*slog.Logger, func() error, error) {
	// Ensure the directory exists (lumberjack doesn't create directories)
	logDir := filepath.Dir(filePath)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	logWriter := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    defaultMaxSizeMB,
		MaxBackups: defaultMaxBackups,
		MaxAge:     defaultMaxAgeDays,
		Compress:   false,
	}

	fileHandler := slog.NewJSONHandler(logWriter, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(fileHandler).With("service", serviceName)
	closeFunc := logWriter.Close

	return logger, closeFunc, nil
}

// Info logs an informational message via the global structured logger.
func Info(msg string, args ...any) {
	logger().Info(msg, args...)
}

// Warn logs a warning message via the global structured logger.
func Warn(msg string, args ...any) {
	logger().Warn(msg, args...)
}

// Error logs an error message via the global structured logger.
func Error(msg string, args ...any) {
	logger().Error(msg, args...)
}

// Debug logs a debug message via the global structured logger.
func Debug(msg string, args ...any) {
	logger().Debug(msg, args...)
}

func logger() *slog.Logger {
	if structuredLogger != nil {
		return structuredLogger
	}
	return slog.Default()
}
