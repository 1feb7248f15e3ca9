package session

import (
	"sync"

	"go.uber.org/zap"

	"github.com/isdmx/codestream/config"
	"github.com/isdmx/codestream/metrics"
	"github.com/isdmx/codestream/sandbox"
)

// Hub tracks every open session so shutdown can reclaim their sandboxes.
type Hub struct {
	logger    *zap.Logger
	workspace Workspace
	launcher  Launcher
	opts      Options

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewHub creates an empty Hub whose sessions share workspace and launcher.
func NewHub(logger *zap.Logger, workspace Workspace, launcher Launcher, opts Options) *Hub {
	return &Hub{
		logger:    logger,
		workspace: workspace,
		launcher:  launcher,
		opts:      opts,
		sessions:  make(map[string]*Session),
	}
}

// NewHubFromConfig wires a Hub to the configured sandbox.
func NewHubFromConfig(logger *zap.Logger, cfg *config.Config, workspace *sandbox.Workspace, launcher *sandbox.DockerLauncher) *Hub {
	return NewHub(logger, workspace, launcher, Options{
		Language:       cfg.Sandbox.Language,
		InputQueueSize: cfg.Session.InputQueueSize,
	})
}

// Open creates and registers a session for a new connection.
func (h *Hub) Open(sink Sink) *Session {
	s := New(h.logger, h.workspace, h.launcher, sink, h.opts)

	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()

	metrics.ActiveSessions.Inc()
	s.logger.Info("client connected")
	return s
}

// Remove closes s and forgets it.
func (h *Hub) Remove(s *Session) {
	h.mu.Lock()
	_, ok := h.sessions[s.ID]
	delete(h.sessions, s.ID)
	h.mu.Unlock()

	s.Close()
	if ok {
		metrics.ActiveSessions.Dec()
		s.logger.Info("client disconnected")
	}
}

// CloseAll closes every session and waits for their runs to wind down.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		h.Remove(s)
	}
	for _, s := range sessions {
		s.Wait()
	}

	if len(sessions) > 0 {
		h.logger.Info("closed all sessions", zap.Int("count", len(sessions)))
	}
}

// Len returns the number of open sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}
