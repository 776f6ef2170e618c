package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{"", zapcore.InfoLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter("warn", FormatJSON, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("deployed", zap.Int("handlers", 3))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"deployed"`)
	assert.Contains(t, out, `"handlers":3`)
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter("debug", FormatConsole, &buf)
	require.NoError(t, err)

	logger.Debug("binding", zap.String("param", "id"))
	out := buf.String()
	assert.Contains(t, out, "DEBUG")
	assert.Contains(t, out, "binding")
	assert.NotContains(t, out, "\x1b[", "no colors when not writing to a terminal")
}

func TestNewErrors(t *testing.T) {
	_, err := NewWithWriter("info", "xml", &bytes.Buffer{})
	assert.Error(t, err)

	_, err = NewWithWriter("chatty", FormatJSON, &bytes.Buffer{})
	assert.Error(t, err)
}
