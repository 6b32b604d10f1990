package logging

import (
	"log/slog"
	"os"
	"strings"

	"github.com/localchain-dev/localchain/internal/config"
)

// NewLogger creates the daemon logger. Level comes from the debug flag
// or LOCALCHAIN_LOG_LEVEL; components derive child loggers with
// log.With("component", ...).
func NewLogger(cfg *config.RuntimeConfig) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	if val := strings.ToLower(os.Getenv("LOCALCHAIN_LOG_LEVEL")); val != "" {
		switch val {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			// unknown value, keep default
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
