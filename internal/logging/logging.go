// Package logging wraps log/slog with the module's level-name
// conventions (internal/config's "debug"/"info"/"warn"/"error") and a
// subsystem field every core component stamps, the same slog usage
// pattern as crypto/hsm_monitor.go's *slog.Logger field.
package logging

import (
	"log/slog"
	"os"
)

// New builds a JSON-handler logger at the given level, tagged with
// subsystem so multiplexed log output (ghostdag, mempool, executor,
// p2p, ...) can be filtered by component.
func New(levelName, subsystem string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(levelName)})
	return slog.New(handler).With("subsystem", subsystem)
}

func parseLevel(name string) slog.Level {
	switch name {
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
