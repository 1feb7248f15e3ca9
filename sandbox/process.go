package sandbox

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// waitDelay bounds how long Wait keeps copying output after the process is
// gone, e.g. when a grandchild still holds the pipes open.
const waitDelay = 2 * time.Second

// Process is a running sandbox. Its stdin stays writable until the process
// exits; stdout and stderr are copied to the writers given at launch.
type Process struct {
	// Name identifies the container backing this process.
	Name string

	logger *zap.Logger
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	timer  *time.Timer
	reap   func() error

	done   chan struct{}
	status ExitStatus

	mu          sync.Mutex
	inputClosed bool

	killOnce sync.Once
	killed   atomic.Bool
	timedOut atomic.Bool
}

func startProcess(logger *zap.Logger, name string, args []string, stdout, stderr io.Writer, timeout time.Duration, reap func() error) (*Process, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("no command provided")
	}

	cmd := exec.Command(args[0], args[1:]...) //nolint:gosec // Arguments are built from configuration
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &Process{
		Name:   name,
		logger: logger,
		cmd:    cmd,
		stdin:  stdin,
		reap:   reap,
		done:   make(chan struct{}),
	}

	// The deadline runs from launch and is not extended by activity.
	p.timer = time.AfterFunc(timeout, func() {
		p.timedOut.Store(true)
		p.logger.Warn("sandbox time limit exceeded", zap.String("container", name), zap.Duration("timeout", timeout))
		if killErr := p.Kill(); killErr != nil {
			p.logger.Warn("failed to kill timed out sandbox", zap.String("container", name), zap.Error(killErr))
		}
	})

	go p.wait()

	return p, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.timer.Stop()

	p.mu.Lock()
	p.inputClosed = true
	p.mu.Unlock()

	p.status = exitStatus(p.cmd.ProcessState, p.timedOut.Load(), p.killed.Load())
	p.logger.Debug("sandbox process exited",
		zap.String("container", p.Name),
		zap.String("outcome", p.status.Outcome()),
		zap.Error(err))

	close(p.done)
}

func exitStatus(state *os.ProcessState, timedOut, killed bool) ExitStatus {
	signal, code := "", -1
	if state != nil {
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			signal = signalName(ws.Signal())
		} else {
			code = state.ExitCode()
		}
	}
	return classifyExit(signal, code, timedOut, killed)
}

// classifyExit derives the reported status from what the runtime CLI returned.
// code is -1 when the CLI itself did not exit normally. The CLI reports a
// container killed by signal N as exit code 128+N (e.g. 137 after an OOM
// kill), so such codes are reported as that signal. A program that finished
// on its own while a kill was in flight keeps its real exit code.
func classifyExit(signal string, code int, timedOut, killed bool) ExitStatus {
	var status ExitStatus

	switch {
	case signal != "":
		status.Signal = signal
	case code > 128 && code <= 128+maxSignal:
		status.Signal = signalName(syscall.Signal(code - 128))
	case code >= 0:
		status.ExitCode = &code
	case timedOut || killed:
		status.Signal = signalName(syscall.SIGKILL)
	}

	status.TimedOut = timedOut && status.Signal != ""
	return status
}

// maxSignal is the highest signal number a runtime can report.
const maxSignal = 64

func signalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return sig.String()
}

// Pid returns the process id of the runtime CLI.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited and its output has been copied.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Status returns the exit status. It is only meaningful after Done is closed.
func (p *Process) Status() ExitStatus {
	<-p.done
	return p.status
}

// InputClosed reports whether stdin can no longer be written.
func (p *Process) InputClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inputClosed
}

// Write sends data to the process stdin. Once a write fails every later
// write returns ErrInputClosed.
func (p *Process) Write(data []byte) error {
	if p.InputClosed() {
		return ErrInputClosed
	}

	if _, err := p.stdin.Write(data); err != nil {
		p.mu.Lock()
		p.inputClosed = true
		p.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrInputClosed, err)
	}

	return nil
}

// Kill forcibly stops the process without a grace period and removes its
// container. It is safe to call any number of times.
func (p *Process) Kill() error {
	var err error
	p.killOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		killErr := p.cmd.Process.Kill()
		switch {
		case killErr == nil:
			p.killed.Store(true)
		case !errors.Is(killErr, os.ErrProcessDone):
			err = multierr.Append(err, fmt.Errorf("failed to kill sandbox process: %w", killErr))
		}
		if p.reap != nil {
			err = multierr.Append(err, p.reap())
		}
	})
	return err
}
