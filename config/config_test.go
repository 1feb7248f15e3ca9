package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			AllowedOrigins:  []string{"https://editor.example.com"},
			MaxMessageBytes: 1 << 20,
			WriteTimeoutSec: 10,
			PingIntervalSec: 30,
		},
		Sandbox: SandboxConfig{
			Runtime:       "docker",
			Image:         "python:3.9-slim-buster",
			Language:      "python",
			Interpreter:   []string{"python", "-u"},
			FileExtension: ".py",
			MountPath:     "/app/code.py",
			MemoryMB:      128,
			CPUs:          0.5,
			TimeoutSec:    30,
			Workdir:       "/tmp/codestream",
		},
		Session: SessionConfig{
			OutboxSize:     256,
			InputQueueSize: 64,
			InputRate:      20,
			InputBurst:     40,
		},
		Logging: LoggingConfig{
			Mode:  "production",
			Level: "info",
		},
	}
}

func writeYAML(t *testing.T, doc map[string]any) string {
	t.Helper()
	data, err := yaml.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestConfigValidation(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		cfg := validConfig()
		require.NoError(t, cfg.validate())
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		message string
	}{
		{"InvalidPort", func(c *Config) { c.Server.Port = 0 }, "invalid server.port"},
		{"InvalidMessageLimit", func(c *Config) { c.Server.MaxMessageBytes = 0 }, "server.max_message_bytes must be positive"},
		{"InvalidRuntime", func(c *Config) { c.Sandbox.Runtime = "lxc" }, "unsupported sandbox.runtime"},
		{"EmptyImage", func(c *Config) { c.Sandbox.Image = "" }, "sandbox.image must not be empty"},
		{"EmptyInterpreter", func(c *Config) { c.Sandbox.Interpreter = nil }, "sandbox.interpreter must not be empty"},
		{"RelativeMountPath", func(c *Config) { c.Sandbox.MountPath = "code.py" }, "sandbox.mount_path must be absolute"},
		{"InvalidSandboxTimeout", func(c *Config) { c.Sandbox.TimeoutSec = 0 }, "sandbox.timeout_sec must be positive"},
		{"InvalidSandboxMemory", func(c *Config) { c.Sandbox.MemoryMB = 0 }, "sandbox.memory_mb must be positive"},
		{"InvalidSandboxCPUs", func(c *Config) { c.Sandbox.CPUs = 0 }, "sandbox.cpus must be positive"},
		{"InvalidOutbox", func(c *Config) { c.Session.OutboxSize = 0 }, "session.outbox_size must be positive"},
		{"InvalidInputRate", func(c *Config) { c.Session.InputRate = 0 }, "session.input_rate"},
		{"InvalidLoggingMode", func(c *Config) { c.Logging.Mode = "invalid_mode" }, "invalid logging.mode"},
		{"InvalidLogLevel", func(c *Config) { c.Logging.Level = "invalid_level" }, "invalid logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		path := writeYAML(t, map[string]any{})
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "docker", cfg.Sandbox.Runtime)
		assert.Equal(t, 128, cfg.Sandbox.MemoryMB)
		assert.InDelta(t, 0.5, cfg.Sandbox.CPUs, 1e-9)
		assert.Equal(t, 30*time.Second, cfg.GetTimeout())
		assert.Equal(t, []string{"python", "-u"}, cfg.Sandbox.Interpreter)
		assert.Equal(t, "/app/code.py", cfg.Sandbox.MountPath)
	})

	t.Run("FileOverrides", func(t *testing.T) {
		path := writeYAML(t, map[string]any{
			"server": map[string]any{
				"port":            8081,
				"allowed_origins": []string{"https://a.example", "https://b.example"},
			},
			"sandbox": map[string]any{
				"runtime":     "podman",
				"timeout_sec": 5,
			},
			"logging": map[string]any{"mode": "development", "level": "debug"},
		})
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 8081, cfg.Server.Port)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
		assert.Equal(t, "podman", cfg.Sandbox.Runtime)
		assert.Equal(t, 5*time.Second, cfg.GetTimeout())
		assert.Equal(t, "development", cfg.Logging.Mode)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("CODESTREAM_SANDBOX_MEMORY_MB", "256")
		t.Setenv("PORT", "9090")
		path := writeYAML(t, map[string]any{})

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 256, cfg.Sandbox.MemoryMB)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "0.0.0.0:9090", cfg.Addr())
	})

	t.Run("InvalidFile", func(t *testing.T) {
		path := writeYAML(t, map[string]any{
			"sandbox": map[string]any{"timeout_sec": -1},
		})
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config validation error")
	})
}
