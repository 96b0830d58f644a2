package testutil

import (
	"io"
	"log/slog"
)

// DiscardLogger returns a logger that drops everything; tests assert on
// behavior, not log lines.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
