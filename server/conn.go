package server

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/isdmx/codestream/metrics"
	"github.com/isdmx/codestream/protocol"
	"github.com/isdmx/codestream/session"
)

const (
	msgRateLimited = "Server error: too many messages, message ignored."
	msgInternal    = "Server error: internal failure while handling the message."
)

// connection binds one websocket to one session.
type connection struct {
	server  *Server
	logger  *zap.Logger
	conn    *websocket.Conn
	out     *outbox
	session *session.Session
	limiter *rate.Limiter
}

// serveConn runs the connection until the client leaves or the server stops.
// The outbox is closed before the session so no Send is left blocked while
// the session tears its run down.
func (s *Server) serveConn(conn *websocket.Conn) {
	if !s.track(conn) {
		_ = conn.Close()
		return
	}
	defer s.untrack(conn)

	out := newOutbox(s.cfg.Session.OutboxSize)
	sess := s.hub.Open(out)
	c := &connection{
		server:  s,
		logger:  s.logger.With(zap.String("session_id", sess.ID), zap.String("remote_addr", conn.RemoteAddr().String())),
		conn:    conn,
		out:     out,
		session: sess,
		limiter: rate.NewLimiter(rate.Limit(s.cfg.Session.InputRate), s.cfg.Session.InputBurst),
	}

	defer func() {
		out.Close()
		s.hub.Remove(sess)
		_ = conn.Close()
	}()

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error { return c.readLoop() })
	g.Go(func() error { return c.writeLoop(ctx) })
	g.Go(func() error { return c.pingLoop(ctx) })
	g.Go(func() error {
		// Once any loop fails nothing drains the outbox, so release senders
		// and unblock the reader.
		<-ctx.Done()
		out.Close()
		_ = conn.Close()
		return nil
	})

	if err := g.Wait(); err != nil && !isClosure(err) {
		c.logger.Warn("connection closed with error", zap.Error(err))
		return
	}
	c.logger.Debug("connection closed")
}

func (c *connection) readLoop() error {
	pongWait := c.server.pongWait()

	c.conn.SetReadLimit(c.server.cfg.Server.MaxMessageBytes)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return err
		}

		if !c.limiter.Allow() {
			c.logger.Warn("inbound message rate exceeded")
			metrics.MessagesRejected.WithLabelValues(metrics.ReasonRateLimited).Inc()
			_ = c.out.Send(protocol.Error(msgRateLimited))
			continue
		}

		c.dispatch(data)
	}
}

// dispatch hands a frame to the session. A panic is contained to this
// connection: the run is cleaned up and the client told.
func (c *connection) dispatch(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic while handling message", zap.Any("panic", r), zap.Stack("stack"))
			c.session.Cleanup()
			_ = c.out.Send(protocol.Error(msgInternal))
		}
	}()

	c.session.Handle(data)
}

func (c *connection) writeLoop(ctx context.Context) error {
	writeTimeout := c.server.writeTimeout()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-c.out.ch:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return err
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return err
			}
		}
	}
}

func (c *connection) pingLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.server.pingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			deadline := time.Now().Add(c.server.writeTimeout())
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return err
			}
		}
	}
}

// isClosure reports whether err is an ordinary end of a connection.
func isClosure(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	return errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed)
}
