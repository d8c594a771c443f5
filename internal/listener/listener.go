// Package listener implements the accept loop and the listener/worker
// handoff rendezvous.
//
// original_source/src/server/server.c synchronizes the handoff with a
// pthread_cond_t and a req_ready flag so the stack-allocated client_sock
// pointer it passes to the new thread is never reused before the worker
// has read it. A buffered channel of capacity 1 is the direct Go
// translation: the accepted net.Conn is handed to the worker's goroutine
// as its argument, the worker sends a ready signal on the channel, and
// the listener blocks receiving that signal. Once it arrives the worker
// owns the connection outright and the listener is free to accept the
// next one.
package listener

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"
)

// Handler processes one accepted connection to completion, including
// closing it.
type Handler interface {
	Handle(conn net.Conn)
}

// Listener owns the bound TCP socket and the accept loop.
type Listener struct {
	ln  net.Listener
	log *logrus.Logger
}

// Listen binds and listens on addr (":<port>").
func Listen(addr string, log *logrus.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, log: log}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close closes the listening socket, causing Serve to return.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Serve accepts connections until Accept fails, spawning one detached
// goroutine per connection via h.Handle. ctx is consulted only when
// Accept fails: Serve returns nil if ctx is already cancelled by then
// (the shutdown path closes the listener after cancelling), retries on a
// timeout error, and otherwise returns the accept error.
// Before accepting the next connection it waits for the rendezvous
// signal confirming the just-spawned worker has taken ownership of the
// socket.
func (l *Listener) Serve(ctx context.Context, h Handler) error {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}

		ready := make(chan struct{}, 1)
		go func(c net.Conn) {
			ready <- struct{}{}
			h.Handle(c)
		}(conn)

		// Block until the worker goroutine has signaled it has taken
		// ownership of conn. This is the rendezvous: the listener never
		// touches conn again after this point.
		<-ready
	}
}
