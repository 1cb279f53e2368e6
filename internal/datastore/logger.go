// logger.go: datastore logging setup and the GORM-to-slog bridge
package datastore

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/awsl-project/awsl-pic-pipeline/internal/logging"
)

// Package-level logger specific to datastore operations
var (
	serviceLogger   *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "datastore.log")
	serviceLevelVar.Set(slog.LevelInfo)

	serviceLogger, closeLogger, err = logging.NewFileLogger(logFilePath, "datastore", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize datastore file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		serviceLogger = slog.New(fbHandler).With("service", "datastore")
		closeLogger = func() error { return nil }
	}
}

func getLogger() *slog.Logger {
	return serviceLogger
}

// closeServiceLogger flushes the datastore log file. Safe to call more than
// once; lumberjack reopens on the next write.
func closeServiceLogger() error {
	if closeLogger == nil {
		return nil
	}
	return closeLogger()
}

// slowQueryThreshold marks queries worth flagging in the logs.
const slowQueryThreshold = 500 * time.Millisecond

// slogGormLogger adapts the datastore slog logger to the gorm logger interface.
type slogGormLogger struct {
	logger *slog.Logger
	level  gormlogger.LogLevel
}

// createGormLogger returns a gorm logger writing through the datastore
// service logger.
func createGormLogger() gormlogger.Interface {
	return &slogGormLogger{
		logger: getLogger(),
		level:  gormlogger.Warn,
	}
}

func (l *slogGormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	newLogger := *l
	newLogger.level = level
	return &newLogger
}

func (l *slogGormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.logger.Info(fmt.Sprintf(msg, data...))
	}
}

func (l *slogGormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.logger.Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *slogGormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.logger.Error(fmt.Sprintf(msg, data...))
	}
}

func (l *slogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && l.level >= gormlogger.Error:
		l.logger.Error("Query failed", "error", err, "sql", sql, "rows", rows, "elapsed", elapsed)
	case elapsed > slowQueryThreshold && l.level >= gormlogger.Warn:
		l.logger.Warn("Slow query", "sql", sql, "rows", rows, "elapsed", elapsed)
	case l.level >= gormlogger.Info:
		l.logger.Debug("Query", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
