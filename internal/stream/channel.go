package stream

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

// acceptPollInterval bounds how long Accept blocks before re-checking its
// context. Accept on a Unix listener cannot be interrupted directly, so the
// wait is chopped into deadline-bounded slices.
const acceptPollInterval = 250 * time.Millisecond

// Channel is the local stream channel to the analysis consumer: one Unix
// socket listener, at most one accepted endpoint for the process lifetime.
// There is no reconnect — once a send fails, the capture session is over and
// the consumer treats channel closure as the authoritative signal.
//
// Bind, Accept, and Send are called from the single capture goroutine; Close
// may be called from any goroutine and is idempotent.
type Channel struct {
	path string

	mu   sync.Mutex
	ln   *net.UnixListener
	conn *net.UnixConn

	headerBuf  [HeaderSize]byte
	payloadBuf []byte
}

// Bind removes any stale socket file at path and starts listening on it.
// Bind/listen failures are fatal to startup.
func Bind(path string) (*Channel, error) {
	// A previous run that crashed leaves the socket file behind; a stale file
	// makes bind fail with EADDRINUSE.
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stream: remove stale socket %q: %w", path, err)
	}

	addr := &net.UnixAddr{Name: path, Net: "unix"}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("stream: listen on %q: %w", path, err)
	}

	slog.Info("stream channel listening", "path", path)
	return &Channel{path: path, ln: ln}, nil
}

// Path returns the socket filesystem path.
func (c *Channel) Path() string { return c.path }

// Connected reports whether a consumer endpoint is established.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Accept blocks until exactly one consumer connects or ctx is cancelled. The
// listener deadline is polled so cancellation takes effect within
// [acceptPollInterval] rather than depending on signal delivery to interrupt
// the blocking accept.
func (c *Channel) Accept(ctx context.Context) error {
	slog.Info("waiting for consumer connection", "path", c.path)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.mu.Lock()
		ln := c.ln
		c.mu.Unlock()
		if ln == nil {
			return errors.New("stream: channel closed")
		}

		if err := ln.SetDeadline(time.Now().Add(acceptPollInterval)); err != nil {
			return fmt.Errorf("stream: set accept deadline: %w", err)
		}
		conn, err := ln.AcceptUnix()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return fmt.Errorf("stream: accept: %w", err)
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		slog.Info("consumer connected", "path", c.path)
		return nil
	}
}

// Send writes the message header and payload as two ordered transfers. Each
// transfer must fully complete; any failure or short write is fatal to the
// capture session — the consumer cannot be resynchronised once a message
// begins. The payload scratch buffer is reused across sends, so the
// steady-state loop does not allocate.
func (c *Channel) Send(msg Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("stream: no consumer endpoint")
	}

	putHeader(c.headerBuf[:], msg)
	if err := c.writeFull(conn, c.headerBuf[:]); err != nil {
		return fmt.Errorf("stream: send header: %w", err)
	}

	if need := msg.PayloadBytes(); cap(c.payloadBuf) < need {
		c.payloadBuf = make([]byte, need)
	}
	payload := c.payloadBuf[:msg.PayloadBytes()]
	for i, s := range msg.Samples {
		binary.NativeEndian.PutUint16(payload[i*2:], uint16(s))
	}
	if err := c.writeFull(conn, payload); err != nil {
		return fmt.Errorf("stream: send payload: %w", err)
	}
	return nil
}

// writeFull writes all of b or reports an error. net.Conn.Write already
// retries short writes internally, but the invariant is load-bearing for the
// wire format, so it is checked explicitly.
func (c *Channel) writeFull(conn net.Conn, b []byte) error {
	n, err := conn.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(b))
	}
	return nil
}

// Close tears the channel down: endpoint first, then the listener, then the
// socket file. Safe to call more than once and from concurrent goroutines;
// every release runs at most once.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("stream: close endpoint: %w", err))
		}
		c.conn = nil
	}
	if c.ln != nil {
		if err := c.ln.Close(); err != nil {
			errs = append(errs, fmt.Errorf("stream: close listener: %w", err))
		}
		c.ln = nil
		if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("stream: remove socket %q: %w", c.path, err))
		}
	}
	return errors.Join(errs...)
}

// isTimeout reports whether err is a deadline expiry from the poll loop.
func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
