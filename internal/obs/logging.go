// Package obs wires up the two ambient observability concerns shared by
// every entrypoint: structured logging and distributed tracing.
// Grounded on cmd/sand/main.go::initSlog, generalized to also rotate the
// log file and optionally export spans.
package obs

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/banksean/orchestra/orcherr"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggingConfig controls InitLogging.
type LoggingConfig struct {
	Level    string // debug|info|warn|error, default info
	FilePath string // empty means stderr only
	MaxSizeMB int
	MaxBackups int
}

func parseLevel(s string) slog.Level {
	switch s {
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

// InitLogging installs a process-wide JSON slog handler, optionally
// writing to a rotated log file via lumberjack instead of stderr.
func InitLogging(cfg LoggingConfig) error {
	level := parseLevel(cfg.Level)

	var dest *lumberjack.Logger
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return orcherr.Wrap(orcherr.KindIO, err, "create log directory")
		}
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		maxBackups := cfg.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 3
		}
		dest = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			Compress:   true,
		}
	}

	var handler slog.Handler
	if dest != nil {
		handler = slog.NewJSONHandler(dest, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logging initialized", "level", cfg.Level, "file", cfg.FilePath)
	return nil
}
