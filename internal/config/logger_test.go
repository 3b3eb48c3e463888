package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("unknown"))
}

func TestMaskMSISDN(t *testing.T) {
	assert.Equal(t, "+233****111", MaskMSISDN("+233244000111"))
	assert.Equal(t, "0244****456", MaskMSISDN("0244123456"))
	assert.Equal(t, "***", MaskMSISDN("12345"))
	assert.Equal(t, "***", MaskMSISDN(""))
}
