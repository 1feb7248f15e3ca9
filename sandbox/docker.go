// Package sandbox provides secure code execution capabilities.
//
// The DockerLauncher runs code in Docker (or Podman) containers with security
// constraints including resource limits, network isolation, and a read-only
// mount of the submitted file.
package sandbox

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// killTimeout bounds the out-of-band "<runtime> kill" issued on forced termination.
const killTimeout = 5 * time.Second

// CommandBuilder returns the argv used to run file in a container called name.
type CommandBuilder func(name string, file *WorkspaceFile) []string

// DockerLauncher starts sandbox processes through the container runtime CLI.
type DockerLauncher struct {
	logger       *zap.Logger
	config       *Config
	cmdRunner    CommandRunner
	buildCommand CommandBuilder
}

// LauncherOption defines a functional option for DockerLauncher
type LauncherOption func(*DockerLauncher)

// WithCommandRunner sets the CommandRunner used to kill containers
func WithCommandRunner(cmdRunner CommandRunner) LauncherOption {
	return func(d *DockerLauncher) {
		d.cmdRunner = cmdRunner
	}
}

// WithCommandBuilder replaces the runtime invocation, e.g. to run without a
// container runtime in tests.
func WithCommandBuilder(build CommandBuilder) LauncherOption {
	return func(d *DockerLauncher) {
		d.buildCommand = build
	}
}

// NewDockerLauncher creates a new DockerLauncher with default implementations and optional interfaces
func NewDockerLauncher(logger *zap.Logger, config *Config, opts ...LauncherOption) *DockerLauncher {
	launcher := &DockerLauncher{
		logger:    logger,
		config:    config,
		cmdRunner: &RealCommandRunner{},
	}
	launcher.buildCommand = launcher.BuildArgs

	for _, opt := range opts {
		opt(launcher)
	}

	return launcher
}

// BuildArgs returns the runtime invocation for one run. Every flag here is a
// safety constraint, none are optional.
func (d *DockerLauncher) BuildArgs(name string, file *WorkspaceFile) []string {
	memory := fmt.Sprintf("%dm", d.config.MemoryMB)

	args := []string{
		d.config.Runtime, "run",
		"--name", name,
		"--rm", // Remove the writable layer on exit
		"-i",   // Keep stdin open for the program
		"--network", "none",
		"--memory", memory,
		"--memory-swap", memory, // No swap beyond the memory ceiling
		"--cpus", strconv.FormatFloat(d.config.CPUs, 'f', -1, 64),
		"--pids-limit", "64",
		"--ulimit", "fsize=10000000",
		"--security-opt", "no-new-privileges:true",
		"--cap-drop", "ALL",
		"--user", "nobody",
		"-v", fmt.Sprintf("%s:%s:ro", file.MountSource, d.config.MountPath),
		d.config.Image,
	}
	args = append(args, d.config.Interpreter...)
	args = append(args, d.config.MountPath)

	return args
}

// Launch starts file in a new container. stdout and stderr receive output
// chunks as they are read. A *LaunchError is returned when the runtime cannot
// be started at all.
func (d *DockerLauncher) Launch(ctx context.Context, file *WorkspaceFile, stdout, stderr io.Writer) (*Process, error) {
	name := ContainerPrefix + file.ID
	args := d.buildCommand(name, file)

	runtime := d.config.Runtime
	if len(args) > 0 {
		runtime = args[0]
	}

	if err := ctx.Err(); err != nil {
		return nil, &LaunchError{Runtime: runtime, Err: err}
	}

	d.logger.Info("launching sandbox",
		zap.String("container", name),
		zap.Strings("args", args))

	proc, err := startProcess(d.logger, name, args, stdout, stderr, d.config.Timeout, func() error {
		return d.removeContainer(name)
	})
	if err != nil {
		return nil, &LaunchError{Runtime: runtime, Err: err}
	}

	return proc, nil
}

// removeContainer kills the container directly. Killing the CLI client alone
// does not stop a container started with -i.
func (d *DockerLauncher) removeContainer(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), killTimeout)
	defer cancel()

	_, stderr, exitCode, err := d.cmdRunner.RunCommand(ctx, []string{d.config.Runtime, "kill", name})
	if err != nil {
		return fmt.Errorf("failed to run %s kill: %w", d.config.Runtime, err)
	}
	if exitCode != 0 {
		// Usually the container already exited and was removed.
		d.logger.Debug("container kill reported failure",
			zap.String("container", name),
			zap.Int("exit_code", exitCode),
			zap.String("stderr", stderr))
	}

	return nil
}
