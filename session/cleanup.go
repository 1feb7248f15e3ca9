package session

import (
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/isdmx/codestream/metrics"
)

// cleanup kills the run's process and deletes its workspace file. Only the
// first call per run has any effect, so racing triggers are harmless.
func (s *Session) cleanup(r *run) {
	r.once.Do(func() {
		close(r.stop)

		var err error
		if r.proc != nil {
			err = multierr.Append(err, r.proc.Kill())
		}
		err = multierr.Append(err, s.workspace.Dispose(r.file))

		if err != nil {
			metrics.CleanupFailures.Inc()
			s.logger.Error("cleanup incomplete", zap.Errors("errors", multierr.Errors(err)))
			return
		}
		s.logger.Debug("run cleaned up", zap.String("path", r.file.Path))
	})
}

// finish releases the session's hold on a run. Callers hold mu.
func (s *Session) finish(r *run) {
	s.cleanup(r)
	if s.run == r {
		s.run = nil
		metrics.ActiveRuns.Dec()
	}
}

// Cleanup forcibly stops the current run, if any, and deletes its file. The
// session stays open: the exit of the killed process is still reported and
// the session then returns to Idle. Safe to call any number of times.
func (s *Session) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.run
	if r == nil {
		return
	}
	s.transition(Terminating)
	s.cleanup(r)
}

// Close ends the session after a disconnect: any live process is killed
// immediately, its file deleted, and nothing more is sent to the client.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Closed {
		return
	}

	if r := s.run; r != nil {
		s.transition(Terminating)
		s.logger.Info("client disconnected mid-run, terminating sandbox")
		metrics.RunsTotal.WithLabelValues("disconnected").Inc()
		metrics.RunDuration.Observe(time.Since(r.started).Seconds())
		s.finish(r)
	}

	s.transition(Closed)
	s.cancel()
}
