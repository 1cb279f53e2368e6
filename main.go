package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/awsl-project/awsl-pic-pipeline/cmd"
	"github.com/awsl-project/awsl-pic-pipeline/internal/conf"
	"github.com/awsl-project/awsl-pic-pipeline/internal/logging"
)

func main() {
	// Initial logging setup so configuration errors are reported structured.
	logging.Init(slog.LevelInfo)

	settings, err := conf.Load()
	if err != nil {
		slog.Error("Error loading settings", "error", err)
		os.Exit(1)
	}

	logging.Init(logLevel(settings))

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func logLevel(settings *conf.Settings) slog.Level {
	if settings.Debug {
		return slog.LevelDebug
	}
	switch strings.ToLower(settings.Main.Log.Level) {
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
