package logger

import (
	"log/slog"
	"os"
)

// New returns the root structured logger. JSON output so log aggregation can
// index the attribute fields the services attach.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
