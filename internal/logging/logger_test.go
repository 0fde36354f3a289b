package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		development bool
		level       string
		enabled     zapcore.Level
		disabled    zapcore.Level
	}{
		{name: "development default", development: true, enabled: zapcore.InfoLevel, disabled: zapcore.DebugLevel},
		{name: "production warn", level: "warn", enabled: zapcore.WarnLevel, disabled: zapcore.InfoLevel},
		{name: "debug", development: true, level: " DEBUG ", enabled: zapcore.DebugLevel, disabled: zapcore.DebugLevel - 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, err := New(tt.development, tt.level)
			require.NoError(t, err)
			assert.NotNil(t, logger.Check(tt.enabled, "probe"))
			assert.Nil(t, logger.Check(tt.disabled, "probe"))
		})
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	_, err := New(false, "verbose")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}
