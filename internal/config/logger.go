package config

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a structured JSON logger based on configuration.
func (c *LoggerConfig) NewLogger() *slog.Logger {
	level := parseLogLevel(c.Level)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MaskMSISDN hides the middle digits of a phone number for log output.
func MaskMSISDN(msisdn string) string {
	if len(msisdn) < 7 {
		return "***"
	}
	return msisdn[:4] + "****" + msisdn[len(msisdn)-3:]
}
