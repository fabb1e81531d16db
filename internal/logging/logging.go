package logging

import (
	"fmt"
	"log/slog"
	"os"
)

// Setup installs a JSON handler on the default logger at the named
// level ("debug", "info", "warn", "error", case-insensitive).
// Unrecognized names fall back to info.
func Setup(level string) {
	logLevel := parseLevel(level)

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func Fatalf(format string, args ...any) {
	slog.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}
