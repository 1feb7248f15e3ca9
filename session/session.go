package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/codestream/metrics"
	"github.com/isdmx/codestream/protocol"
	"github.com/isdmx/codestream/sandbox"
)

// Client-facing texts
const (
	msgPreparing    = "Code received and preparing for execution..."
	msgNoCode       = "No code provided."
	msgInputIgnored = "Input ignored: no program is running."
	msgInputFull    = "Input ignored: the program is not reading input fast enough."
)

// Workspace materializes submissions on disk.
type Workspace interface {
	Prepare(sub sandbox.Submission) (*sandbox.WorkspaceFile, error)
	Dispose(file *sandbox.WorkspaceFile) error
}

// Launcher starts a sandbox process for a prepared workspace file.
type Launcher interface {
	Launch(ctx context.Context, file *sandbox.WorkspaceFile, stdout, stderr io.Writer) (*sandbox.Process, error)
}

// Sink delivers notifications to the connected client. Send may block for
// back-pressure but must return once the connection is gone.
type Sink interface {
	Send(msg protocol.Outbound) error
}

// Options tune a session.
type Options struct {
	// Language is the only accepted submission language; an empty language
	// in a submission means this one.
	Language string
	// InputQueueSize bounds the input lines waiting for the program.
	InputQueueSize int
}

// run is one submission from launch to cleanup.
type run struct {
	file    *sandbox.WorkspaceFile
	proc    *sandbox.Process
	stdout  *relayWriter
	stderr  *relayWriter
	input   chan []byte
	stop    chan struct{}
	started time.Time

	once sync.Once
}

// Session is the server-side state of one client connection. All state
// transitions happen under mu, so events for one session are serialized
// while separate sessions proceed independently.
type Session struct {
	ID string

	logger    *zap.Logger
	workspace Workspace
	launcher  Launcher
	sink      Sink
	opts      Options

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State
	run   *run

	wg sync.WaitGroup
}

// New creates an idle session that reports to sink.
func New(logger *zap.Logger, workspace Workspace, launcher Launcher, sink Sink, opts Options) *Session {
	if opts.InputQueueSize <= 0 {
		opts.InputQueueSize = 64
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		ID:        id,
		logger:    logger.With(zap.String("session_id", id)),
		workspace: workspace,
		launcher:  launcher,
		sink:      sink,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		state:     Idle,
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Handle decodes one inbound frame and dispatches it. Every failure is
// reported to the client; none is returned.
func (s *Session) Handle(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		s.logger.Warn("rejected inbound message", zap.Error(err))
		metrics.MessagesRejected.WithLabelValues(metrics.ReasonMalformed).Inc()
		s.notify(protocol.Error("Server error: " + err.Error()))
		return
	}

	switch msg.Type {
	case protocol.TypeCode:
		_ = s.Submit(sandbox.Submission{Code: msg.Text(), Language: msg.Language})
	case protocol.TypeInput:
		_ = s.Input(msg.Text())
	}
}

// Submit starts a run. It is rejected unless the session is Idle; a
// rejection never disturbs the run in flight.
func (s *Session) Submit(sub sandbox.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Idle:
	case Closed:
		return ErrClosed
	default:
		s.logger.Info("submission rejected, session busy", zap.Stringer("state", s.state))
		metrics.MessagesRejected.WithLabelValues(metrics.ReasonBusy).Inc()
		s.notify(protocol.Error("Session busy: " + ErrSessionBusy.Error() + "."))
		return ErrSessionBusy
	}

	if sub.Code == "" {
		metrics.MessagesRejected.WithLabelValues(metrics.ReasonNoCode).Inc()
		s.notify(protocol.Error(msgNoCode))
		return ErrNoCode
	}

	if sub.Language != "" && !strings.EqualFold(sub.Language, s.opts.Language) {
		metrics.MessagesRejected.WithLabelValues(metrics.ReasonLanguage).Inc()
		s.notify(protocol.Error(fmt.Sprintf("Unsupported language %q, only %q is available.", sub.Language, s.opts.Language)))
		return fmt.Errorf("%w: %s", ErrUnsupportedLanguage, sub.Language)
	}

	s.transition(Preparing)

	file, err := s.workspace.Prepare(sub)
	if err != nil {
		s.logger.Error("failed to prepare workspace", zap.Error(err))
		metrics.RunsTotal.WithLabelValues("write_error").Inc()
		s.notify(protocol.Error("Server error: could not store the submitted code."))
		s.transition(Idle)
		return err
	}

	s.notify(protocol.Status(msgPreparing))

	r := &run{
		file:    file,
		input:   make(chan []byte, s.opts.InputQueueSize),
		stop:    make(chan struct{}),
		started: time.Now(),
		stdout:  &relayWriter{session: s, kind: protocol.TypeOutput},
		stderr:  &relayWriter{session: s, kind: protocol.TypeError},
	}

	proc, err := s.launcher.Launch(s.ctx, file, r.stdout, r.stderr)
	if err != nil {
		s.logger.Error("failed to launch sandbox", zap.Error(err))
		metrics.RunsTotal.WithLabelValues("launch_error").Inc()
		s.notify(protocol.Error("Backend error: Could not start sandbox process. Error: " + err.Error()))
		s.notify(protocol.End())
		s.cleanup(r)
		s.transition(Idle)
		return err
	}

	r.proc = proc
	s.run = r
	s.transition(Running)
	metrics.ActiveRuns.Inc()
	s.logger.Info("sandbox started", zap.String("container", proc.Name), zap.Int("pid", proc.Pid()))

	s.wg.Add(2)
	go s.pumpInput(r)
	go s.watch(r)

	return nil
}

// Input queues one line for the running program's stdin. Lines that arrive
// when no program can read them are dropped, never kept for a later run.
func (s *Session) Input(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Closed {
		return ErrClosed
	}

	r := s.run
	if s.state != Running || r == nil || r.proc.InputClosed() {
		s.logger.Warn("input received but no program is running", zap.Stringer("state", s.state))
		metrics.InputDropped.Inc()
		s.notify(protocol.Status(msgInputIgnored))
		return ErrNotRunning
	}

	select {
	case r.input <- []byte(line + "\n"):
		return nil
	default:
		s.logger.Warn("input queue full, dropping line")
		metrics.InputDropped.Inc()
		s.notify(protocol.Status(msgInputFull))
		return ErrInputQueueFull
	}
}

// watch completes a run once its process has exited and all of its output
// has been relayed.
func (s *Session) watch(r *run) {
	defer s.wg.Done()

	<-r.proc.Done()
	status := r.proc.Status()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != r {
		// Close already tore this run down.
		return
	}

	s.transition(Terminating)

	s.logger.Info("sandbox exited",
		zap.String("container", r.proc.Name),
		zap.String("outcome", status.Outcome()),
		zap.Duration("duration", time.Since(r.started)))
	metrics.RunsTotal.WithLabelValues(status.Outcome()).Inc()
	metrics.RunDuration.Observe(time.Since(r.started).Seconds())

	r.stdout.Flush()
	r.stderr.Flush()
	s.notify(protocol.Status(sandbox.DescribeExit(status)))
	s.notify(protocol.End())

	s.finish(r)
	s.transition(Idle)
}

// transition moves to the next state. Callers hold mu.
func (s *Session) transition(to State) {
	if s.state == to {
		return
	}
	if !canTransition(s.state, to) {
		s.logger.Error("invalid session transition", zap.Stringer("from", s.state), zap.Stringer("to", to))
		return
	}
	s.logger.Debug("session transition", zap.Stringer("from", s.state), zap.Stringer("to", to))
	s.state = to
}

func (s *Session) notify(msg protocol.Outbound) {
	if err := s.sink.Send(msg); err != nil && !errors.Is(err, ErrClosed) {
		s.logger.Debug("dropping notification", zap.String("type", msg.Type), zap.Error(err))
	}
}

// Wait blocks until the goroutines of every run started by this session have
// returned.
func (s *Session) Wait() {
	s.wg.Wait()
}
