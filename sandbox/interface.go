// Package sandbox provides secure code execution capabilities.
//
// The sandbox package materializes submitted source code on disk and runs it
// inside a resource-limited container whose standard streams stay attached
// to the caller for the lifetime of the run.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Config holds the sandbox limits and runtime contract.
type Config struct {
	Runtime       string
	Image         string
	Interpreter   []string
	FileExtension string
	MountPath     string
	MemoryMB      int
	CPUs          float64
	Timeout       time.Duration
	Workdir       string
	HostWorkdir   string
}

// Submission is the source text and target language of one run request.
type Submission struct {
	Code     string
	Language string
}

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error)
}

// RealCommandRunner implements CommandRunner using actual exec commands
type RealCommandRunner struct{}

// RunCommand executes the given command with arguments
func (RealCommandRunner) RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	if len(args) < 1 {
		return "", "", 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // Safe as this is controlled input

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()

	exitCode = 0
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			exitCode = exitError.ExitCode()
		} else {
			return "", "", 0, err
		}
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// FileSystem defines an interface for file system operations
type FileSystem interface {
	MkdirAll(path string, perm os.FileMode) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
	Remove(path string) error
	ReadDir(path string) ([]os.DirEntry, error)
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) Remove(path string) error {
	return os.Remove(path)
}

func (RealFileSystem) ReadDir(path string) ([]os.DirEntry, error) {
	return os.ReadDir(path)
}

// File permission constants
const (
	DirPermission = 0755
	// FilePermission leaves the source readable by the unprivileged sandbox user.
	FilePermission = 0644
)

// Naming constants
const (
	FilePrefix      = "code_"
	ContainerPrefix = "codestream-"
)

// WriteError reports that a submission could not be materialized on disk.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write source to %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// LaunchError reports that the container runtime itself could not be started.
// It is distinct from the sandboxed program failing.
type LaunchError struct {
	Runtime string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("could not start %s process: %v", e.Runtime, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ErrInputClosed is returned when writing to a process whose stdin is gone.
var ErrInputClosed = errors.New("sandbox input stream is closed")
