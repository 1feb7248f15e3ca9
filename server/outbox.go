package server

import (
	"sync"

	"github.com/isdmx/codestream/protocol"
	"github.com/isdmx/codestream/session"
)

// outbox queues notifications for a connection's writer. Send blocks while the
// queue is full and fails with session.ErrClosed once the outbox is closed.
type outbox struct {
	ch   chan protocol.Outbound
	done chan struct{}
	once sync.Once
}

func newOutbox(size int) *outbox {
	if size <= 0 {
		size = 1
	}
	return &outbox{
		ch:   make(chan protocol.Outbound, size),
		done: make(chan struct{}),
	}
}

func (o *outbox) Send(msg protocol.Outbound) error {
	select {
	case <-o.done:
		return session.ErrClosed
	default:
	}

	select {
	case o.ch <- msg:
		return nil
	case <-o.done:
		return session.ErrClosed
	}
}

// Close releases every blocked and future Send. The channel is left open.
func (o *outbox) Close() {
	o.once.Do(func() { close(o.done) })
}
