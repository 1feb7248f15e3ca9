package sandbox

import (
	"go.uber.org/zap"

	"github.com/isdmx/codestream/config"
)

// ConfigFrom extracts the sandbox settings from the application configuration.
func ConfigFrom(cfg *config.Config) *Config {
	return &Config{
		Runtime:       cfg.Sandbox.Runtime,
		Image:         cfg.Sandbox.Image,
		Interpreter:   cfg.Sandbox.Interpreter,
		FileExtension: cfg.Sandbox.FileExtension,
		MountPath:     cfg.Sandbox.MountPath,
		MemoryMB:      cfg.Sandbox.MemoryMB,
		CPUs:          cfg.Sandbox.CPUs,
		Timeout:       cfg.GetTimeout(),
		Workdir:       cfg.Sandbox.Workdir,
		HostWorkdir:   cfg.Sandbox.HostWorkdir,
	}
}

// NewLauncherFromConfig creates the DockerLauncher for the configured runtime
func NewLauncherFromConfig(logger *zap.Logger, cfg *config.Config) *DockerLauncher {
	return NewDockerLauncher(logger, ConfigFrom(cfg))
}

// NewWorkspaceFromConfig creates the Workspace for the configured workdir
func NewWorkspaceFromConfig(logger *zap.Logger, cfg *config.Config) *Workspace {
	return NewWorkspace(logger, ConfigFrom(cfg))
}
