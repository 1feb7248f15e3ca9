package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/isdmx/codestream/config"
)

// ServiceName is attached to every log entry as the "service" field.
const ServiceName = "codestream"

// NewFromConfig builds the application logger from the logging section.
func NewFromConfig(cfg *config.Config) (*zap.Logger, error) {
	return New(cfg.Logging.Mode, cfg.Logging.Level)
}

// New creates a logger for the given mode ("development" or "production")
// and minimum level.
func New(mode, level string) (*zap.Logger, error) {
	cfg, err := modeConfig(mode)
	if err != nil {
		return nil, err
	}

	logLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging level: %s, must be one of 'debug', 'info', 'warn', 'error', 'dpanic', 'panic', 'fatal'", level)
	}
	cfg.Level = zap.NewAtomicLevelAt(logLevel)
	cfg.InitialFields = map[string]any{"service": ServiceName}

	return cfg.Build()
}

func modeConfig(mode string) (zap.Config, error) {
	switch mode {
	case "development":
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		// Warnings are routine here (dropped input, denied origins).
		cfg.DisableStacktrace = true
		return cfg, nil
	case "production":
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		// Every session lifecycle event must reach the log.
		cfg.Sampling = nil
		return cfg, nil
	default:
		return zap.Config{}, fmt.Errorf("invalid logging mode: %s, must be 'production' or 'development'", mode)
	}
}
