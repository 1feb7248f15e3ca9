package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	Session SessionConfig `mapstructure:"session"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string   `mapstructure:"host"`
	Port            int      `mapstructure:"port"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	MaxMessageBytes int64    `mapstructure:"max_message_bytes"`
	WriteTimeoutSec int      `mapstructure:"write_timeout_sec"`
	PingIntervalSec int      `mapstructure:"ping_interval_sec"`
}

// SandboxConfig holds sandbox configuration
type SandboxConfig struct {
	Runtime       string   `mapstructure:"runtime"`
	Image         string   `mapstructure:"image"`
	Language      string   `mapstructure:"language"`
	Interpreter   []string `mapstructure:"interpreter"`
	FileExtension string   `mapstructure:"file_extension"`
	MountPath     string   `mapstructure:"mount_path"`
	MemoryMB      int      `mapstructure:"memory_mb"`
	CPUs          float64  `mapstructure:"cpus"`
	TimeoutSec    int      `mapstructure:"timeout_sec"`
	Workdir       string   `mapstructure:"workdir"`
	HostWorkdir   string   `mapstructure:"host_workdir"`
}

// SessionConfig holds per-connection limits
type SessionConfig struct {
	OutboxSize     int     `mapstructure:"outbox_size"`
	InputQueueSize int     `mapstructure:"input_queue_size"`
	InputRate      float64 `mapstructure:"input_rate"`
	InputBurst     int     `mapstructure:"input_burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// EnvPrefix is prepended to every environment override, e.g. CODESTREAM_SANDBOX_TIMEOUT_SEC.
const EnvPrefix = "CODESTREAM"

// New loads and validates the application configuration
func New() (*Config, error) {
	return Load("")
}

// Load reads configuration from path, or from config.yaml in the default
// search paths when path is empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// PORT is honoured for compatibility with common PaaS conventions.
	if err := v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("error binding env: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.max_message_bytes", 1<<20)
	v.SetDefault("server.write_timeout_sec", 10)
	v.SetDefault("server.ping_interval_sec", 30)

	v.SetDefault("sandbox.runtime", "docker")
	v.SetDefault("sandbox.image", "python:3.9-slim-buster")
	v.SetDefault("sandbox.language", "python")
	v.SetDefault("sandbox.interpreter", []string{"python", "-u"})
	v.SetDefault("sandbox.file_extension", ".py")
	v.SetDefault("sandbox.mount_path", "/app/code.py")
	v.SetDefault("sandbox.memory_mb", 128)
	v.SetDefault("sandbox.cpus", 0.5)
	v.SetDefault("sandbox.timeout_sec", 30)
	v.SetDefault("sandbox.workdir", filepath.Join(os.TempDir(), "codestream"))
	v.SetDefault("sandbox.host_workdir", "")

	v.SetDefault("session.outbox_size", 256)
	v.SetDefault("session.input_queue_size", 64)
	v.SetDefault("session.input_rate", 20)
	v.SetDefault("session.input_burst", 40)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}

	if c.Server.MaxMessageBytes <= 0 {
		return fmt.Errorf("server.max_message_bytes must be positive, got: %d", c.Server.MaxMessageBytes)
	}

	if c.Server.WriteTimeoutSec <= 0 {
		return fmt.Errorf("server.write_timeout_sec must be positive, got: %d", c.Server.WriteTimeoutSec)
	}

	if c.Server.PingIntervalSec <= 0 {
		return fmt.Errorf("server.ping_interval_sec must be positive, got: %d", c.Server.PingIntervalSec)
	}

	supportedRuntimes := map[string]bool{
		"docker": true,
		"podman": true,
	}
	if !supportedRuntimes[c.Sandbox.Runtime] {
		return fmt.Errorf("unsupported sandbox.runtime: %s", c.Sandbox.Runtime)
	}

	if c.Sandbox.Image == "" {
		return fmt.Errorf("sandbox.image must not be empty")
	}

	if len(c.Sandbox.Interpreter) == 0 {
		return fmt.Errorf("sandbox.interpreter must not be empty")
	}

	if !filepath.IsAbs(c.Sandbox.MountPath) {
		return fmt.Errorf("sandbox.mount_path must be absolute, got: %s", c.Sandbox.MountPath)
	}

	if c.Sandbox.TimeoutSec <= 0 {
		return fmt.Errorf("sandbox.timeout_sec must be positive, got: %d", c.Sandbox.TimeoutSec)
	}

	if c.Sandbox.MemoryMB <= 0 {
		return fmt.Errorf("sandbox.memory_mb must be positive, got: %d", c.Sandbox.MemoryMB)
	}

	if c.Sandbox.CPUs <= 0 {
		return fmt.Errorf("sandbox.cpus must be positive, got: %g", c.Sandbox.CPUs)
	}

	if c.Sandbox.Workdir == "" {
		return fmt.Errorf("sandbox.workdir must not be empty")
	}

	if c.Session.OutboxSize <= 0 {
		return fmt.Errorf("session.outbox_size must be positive, got: %d", c.Session.OutboxSize)
	}

	if c.Session.InputQueueSize <= 0 {
		return fmt.Errorf("session.input_queue_size must be positive, got: %d", c.Session.InputQueueSize)
	}

	if c.Session.InputRate <= 0 || c.Session.InputBurst <= 0 {
		return fmt.Errorf("session.input_rate and session.input_burst must be positive")
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "dpanic", "panic", "fatal":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	return nil
}

// GetTimeout returns the execution timeout as a duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSec) * time.Second
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
