package session

import (
	"errors"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/isdmx/codestream/metrics"
	"github.com/isdmx/codestream/protocol"
	"github.com/isdmx/codestream/sandbox"
)

// relayWriter forwards each chunk the sandbox writes as one notification.
// Chunks are not line-buffered, but a UTF-8 sequence split across two reads
// is held back until it is complete so no character is sent in halves. Once
// the client is gone chunks are discarded so the program is never blocked on
// a dead connection.
type relayWriter struct {
	session *Session
	kind    string

	mu      sync.Mutex
	pending []byte
}

func (w *relayWriter) Write(p []byte) (int, error) {
	if ce := w.session.logger.Check(zap.DebugLevel, "sandbox output"); ce != nil {
		ce.Write(zap.String("stream", w.kind), zap.Int("bytes", len(p)))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	data := p
	if len(w.pending) > 0 {
		data = append(w.pending, p...)
	}
	cut := completePrefix(data)
	w.pending = append([]byte(nil), data[cut:]...)

	if cut > 0 {
		w.send(data[:cut])
	}
	return len(p), nil
}

// Flush sends whatever is still held back, e.g. a truncated sequence at the
// end of the stream.
func (w *relayWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) > 0 {
		w.send(w.pending)
		w.pending = nil
	}
}

func (w *relayWriter) send(chunk []byte) {
	if err := w.session.sink.Send(protocol.Outbound{Type: w.kind, Value: string(chunk)}); err != nil && !errors.Is(err, ErrClosed) {
		w.session.logger.Debug("discarding sandbox output", zap.Error(err))
	}
}

// completePrefix returns the length of the longest prefix of b that does not
// end inside an incomplete UTF-8 sequence. Invalid bytes count as complete.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i > len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return len(b)
		}
		return i
	}
	return len(b)
}

// pumpInput writes queued lines to the program in arrival order.
func (s *Session) pumpInput(r *run) {
	defer s.wg.Done()

	for {
		select {
		case <-r.stop:
			return
		case data := <-r.input:
			if err := r.proc.Write(data); err != nil {
				if errors.Is(err, sandbox.ErrInputClosed) {
					s.logger.Warn("program input closed, dropping line", zap.Error(err))
					metrics.InputDropped.Inc()
					s.notify(protocol.Status(msgInputIgnored))
					continue
				}
				s.logger.Warn("failed to write program input", zap.Error(err))
			}
		}
	}
}
