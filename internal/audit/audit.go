// Package audit dispatches fire-and-forget audit events to a remote sink
// over UDP. The client is a process-wide, lazily-initialized handle: it
// is created on first use, destroyed and lazily recreated on any RPC
// failure, and a failing event is simply lost. This is best-effort by
// design and must never block or fail the client-visible reply.
//
// original_source/src/logger/logger.c shows the real system's sink as a
// tiny ONC-RPC stub that just printf's the tuple it receives; no ONC-RPC
// library exists anywhere in the example pack, so the wire encoding used
// here is the same NUL-terminated field format internal/wire already
// implements for the client protocol, sent as a single UDP datagram per
// event.
package audit

import (
	"net"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/solus-project/peerdirectoryd/internal/metrics"
	"github.com/solus-project/peerdirectoryd/internal/wire"
)

// DefaultPort is used when an address override or LOG_RPC_IP does not
// already carry a port.
const DefaultPort = "9090"

// EnvAddr is the environment variable naming the audit sink's address.
const EnvAddr = "LOG_RPC_IP"

// Event is one audit record: (username, operation, timestamp, filename).
type Event struct {
	Username  string
	Operation string
	Timestamp string
	Filename  string
}

// Client is the process-wide audit dispatch handle.
type Client struct {
	mu   sync.Mutex
	conn net.Conn

	addrOnce sync.Once
	addr     string
	enabled  bool

	override string // explicit --audit-addr, takes precedence over LOG_RPC_IP
	dialer   func(network, addr string) (net.Conn, error)

	metrics *metrics.Registry
	log     *logrus.Entry
}

// New returns a Client. override, when non-empty, is used instead of
// LOG_RPC_IP (the --audit-addr flag).
func New(override string, m *metrics.Registry, log *logrus.Entry) *Client {
	return &Client{
		override: override,
		dialer:   net.Dial,
		metrics:  m,
		log:      log,
	}
}

// resolveAddr reads LOG_RPC_IP (or the override) exactly once. A missing
// address disables audit for the process lifetime.
func (c *Client) resolveAddr() (string, bool) {
	c.addrOnce.Do(func() {
		raw := c.override
		if raw == "" {
			raw = os.Getenv(EnvAddr)
		}
		if raw == "" {
			c.enabled = false
			return
		}
		if _, _, err := net.SplitHostPort(raw); err != nil {
			raw = net.JoinHostPort(raw, DefaultPort)
		}
		c.addr = raw
		c.enabled = true
	})
	return c.addr, c.enabled
}

// Enabled reports whether the audit sink is configured, resolving the
// address on first call if that has not happened yet.
func (c *Client) Enabled() bool {
	_, enabled := c.resolveAddr()
	return enabled
}

// Emit sends one event, best-effort. It never returns an error: a
// logging failure must never be surfaced to the peer client.
func (c *Client) Emit(ev Event) {
	addr, enabled := c.resolveAddr()
	if !enabled {
		c.observe(false)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		conn, err := c.dialer("udp", addr)
		if err != nil {
			c.log.WithError(err).WithField("addr", addr).Warn("audit: dial failed, event dropped")
			c.observe(false)
			return
		}
		c.conn = conn
	}

	if err := c.write(ev); err != nil {
		c.log.WithError(err).Warn("audit: send failed, tearing down handle")
		_ = c.conn.Close()
		c.conn = nil
		if c.metrics != nil {
			c.metrics.ObserveAuditReconnect()
		}
		c.observe(false)
		return
	}

	c.observe(true)
}

func (c *Client) write(ev Event) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))

	buf := make([]byte, 0, 256)
	w := sliceWriter{buf: &buf}
	if err := wire.WriteField(&w, ev.Username); err != nil {
		return err
	}
	if err := wire.WriteField(&w, ev.Operation); err != nil {
		return err
	}
	if err := wire.WriteField(&w, ev.Timestamp); err != nil {
		return err
	}
	if err := wire.WriteField(&w, ev.Filename); err != nil {
		return err
	}

	_, err := c.conn.Write(buf)
	return err
}

func (c *Client) observe(ok bool) {
	if c.metrics != nil {
		c.metrics.ObserveAuditResult(ok)
	}
}

// Close releases the underlying socket, if any. Called once at shutdown
// by internal/lifecycle.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// sliceWriter is a tiny io.Writer over a growable byte slice, used to
// assemble one UDP datagram before the single Write call to the socket.
type sliceWriter struct{ buf *[]byte }

func (w *sliceWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}
