package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/isdmx/codestream/config"
)

func TestLoggerNew(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		level   string
		wantErr string
	}{
		{name: "Development", mode: "development", level: "debug"},
		{name: "Production", mode: "production", level: "info"},
		{name: "InvalidMode", mode: "invalid_mode", level: "info", wantErr: "invalid logging mode"},
		{name: "InvalidLevel", mode: "production", level: "loud", wantErr: "invalid logging level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.mode, tt.level)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
			_ = logger.Sync()
		})
	}

	t.Run("LevelIsApplied", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", "dpanic", "panic", "fatal"} {
			t.Run(level, func(t *testing.T) {
				want, err := zapcore.ParseLevel(level)
				require.NoError(t, err)

				logger, err := New("production", level)
				require.NoError(t, err)
				assert.True(t, logger.Core().Enabled(want))
				if want > zapcore.DebugLevel {
					assert.False(t, logger.Core().Enabled(want-1))
				}
			})
		}
	})
}

func TestModeConfig(t *testing.T) {
	t.Run("ProductionKeepsEveryEntry", func(t *testing.T) {
		cfg, err := modeConfig("production")
		require.NoError(t, err)
		assert.Nil(t, cfg.Sampling)
		assert.Equal(t, "timestamp", cfg.EncoderConfig.TimeKey)
		assert.Equal(t, "json", cfg.Encoding)
	})

	t.Run("DevelopmentSkipsWarnStacktraces", func(t *testing.T) {
		cfg, err := modeConfig("development")
		require.NoError(t, err)
		assert.True(t, cfg.DisableStacktrace)
		assert.Equal(t, "console", cfg.Encoding)
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := modeConfig("verbose")
		assert.Error(t, err)
	})
}

func TestLoggerNewFromConfig(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		cfg := &config.Config{
			Logging: config.LoggingConfig{
				Mode:  "development",
				Level: "debug",
			},
		}
		logger, err := NewFromConfig(cfg)
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
		_ = logger.Sync()
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		cfg := &config.Config{
			Logging: config.LoggingConfig{
				Mode:  "invalid_mode",
				Level: "info",
			},
		}
		_, err := NewFromConfig(cfg)
		assert.Error(t, err)
	})
}
