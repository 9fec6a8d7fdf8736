// Package transport implements the frame-oriented byte carrier of spec
// §4.3 (component C3): TCP with optional TLS, deadline-bound recv, and
// all-or-nothing send with respect to a single FIX frame.
package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/kprime/fixengine/fixerr"
	"github.com/kprime/fixengine/internal/metrics"
	"github.com/kprime/fixengine/message"
)

// ErrClosed is returned by Recv when the connection has been closed,
// cooperatively or otherwise.
var ErrClosed = fixerr.TransportErr("connection closed")

// ErrTimeout is returned by Recv when the deadline elapses with no
// complete frame available.
var ErrTimeout = fixerr.TransportErr("recv timeout")

// Config carries the TLS options enumerated in spec §4.3.
type Config struct {
	UseTLS            bool
	CertFile          string
	KeyFile           string
	CAFile            string
	VerifyPeer        bool
	BufferSize        int
	ConnectionTimeout time.Duration
}

func (c Config) bufferSize() int {
	if c.BufferSize > 0 {
		return c.BufferSize
	}
	return 4096
}

// Connection wraps a net.Conn with FIX-frame-aware buffering. send is
// serialized against concurrent callers so a single frame is never
// interleaved with another (spec §4.3).
type Connection struct {
	sessionID string
	conn      net.Conn
	metrics   *metrics.Registry

	sendMu sync.Mutex

	recvMu  sync.Mutex
	recvBuf []byte

	closeMu sync.Mutex // guards closed; separate from recvMu so Close never waits on a blocked Recv
	closed  bool
	closeCh chan struct{}
}

func newConnection(sessionID string, conn net.Conn, m *metrics.Registry) *Connection {
	return &Connection{
		sessionID: sessionID,
		conn:      conn,
		metrics:   m,
		closeCh:   make(chan struct{}),
	}
}

// Connect dials addr as an initiator (spec §4.3 "connect"), optionally
// wrapping the connection in TLS before returning.
func Connect(ctx context.Context, sessionID, addr string, cfg Config) (*Connection, error) {
	timeout := cfg.ConnectionTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fixerr.Wrap(fixerr.KindTransport, "dial", err)
	}

	if cfg.UseTLS {
		tlsConn, err := wrapClientTLS(conn, cfg)
		if err != nil {
			conn.Close()
			return nil, err
		}
		conn = tlsConn
	}

	return newConnection(sessionID, conn, nil), nil
}

// Accept wraps an already-accepted net.Conn (from a listener the engine
// owns — the listener itself is non-goal "TCP listener glue" per spec
// §1) as an acceptor-side Connection, optionally requiring TLS.
func Accept(sessionID string, conn net.Conn, cfg Config) (*Connection, error) {
	if cfg.UseTLS {
		tlsConn, err := wrapServerTLS(conn, cfg)
		if err != nil {
			conn.Close()
			return nil, err
		}
		conn = tlsConn
	}
	return newConnection(sessionID, conn, nil), nil
}

// WithMetrics attaches a metrics registry the connection reports
// byte counters to.
func (c *Connection) WithMetrics(m *metrics.Registry) *Connection {
	c.metrics = m
	return c
}

// Send writes frame in full or not at all; concurrent callers are
// serialized so frames never interleave.
func (c *Connection) Send(frame []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.isClosed() {
		return ErrClosed
	}

	n, err := c.conn.Write(frame)
	if err != nil {
		return fixerr.Wrap(fixerr.KindTransport, "send", err)
	}
	if c.metrics != nil {
		c.metrics.AddBytesOut(c.sessionID, n)
	}
	return nil
}

// Recv fills its internal buffer and returns the next extractable frame.
// Partial frames remain buffered across calls (spec §4.3 "Buffering").
func (c *Connection) Recv(deadline time.Time) ([]byte, error) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	for {
		if _, n, err := message.Extract(c.recvBuf); err == nil {
			frame := append([]byte(nil), c.recvBuf[:n]...)
			c.recvBuf = c.recvBuf[n:]
			if c.metrics != nil {
				c.metrics.IncFramesParsed(c.sessionID)
			}
			return frame, nil
		} else if !isNeedMore(err) {
			return nil, err
		}

		if c.isClosed() {
			return nil, ErrClosed
		}

		if !deadline.IsZero() {
			c.conn.SetReadDeadline(deadline)
		}

		buf := make([]byte, 4096)
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.recvBuf = append(c.recvBuf, buf[:n]...)
			if c.metrics != nil {
				c.metrics.AddBytesIn(c.sessionID, n)
			}
		}
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return nil, ErrTimeout
			}
			if c.isClosed() {
				return nil, ErrClosed
			}
			return nil, fixerr.Wrap(fixerr.KindTransport, "recv", err)
		}
	}
}

// Close tears down the underlying connection; any blocked Recv returns
// ErrClosed and any subsequent Send returns ErrClosed (spec §5
// "Cancellation").
func (c *Connection) Close() error {
	c.closeMu.Lock()
	already := c.closed
	c.closed = true
	c.closeMu.Unlock()
	if already {
		return nil
	}
	close(c.closeCh)
	return c.conn.Close()
}

func (c *Connection) isClosed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

func isNeedMore(err error) bool {
	return err == message.ErrNeedMore
}
