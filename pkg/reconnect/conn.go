package reconnect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/skylink-labs/acarsrouter/pkg/logging"
	"github.com/skylink-labs/acarsrouter/pkg/metrics"
)

// ErrSessionEnded is returned once by Read on a Conn created with
// WithSessionBreaks after the connection it was reading from is lost. The
// following Read reconnects.
var ErrSessionEnded = errors.New("connection session ended")

// Conn is a stubborn outbound TCP connection.
// Read and Write may be used from different goroutines; concurrent Reads
// (or concurrent Writes) are not supported.
type Conn struct {
	addr        string
	dialer      net.Dialer
	newSchedule ScheduleFunc
	log         *slog.Logger
	metrics     *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	sessionBreaks bool
	lost          bool // owned by the reading goroutine

	dialMu sync.Mutex // serializes connection attempts

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// Option configures a Conn.
type Option func(*Conn)

// WithSchedule overrides the reconnect schedule.
func WithSchedule(fn ScheduleFunc) Option {
	return func(c *Conn) {
		if fn != nil {
			c.newSchedule = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Conn) {
		if log != nil {
			c.log = log
		}
	}
}

// WithDialTimeout bounds each connection attempt. Zero leaves it to the OS.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Conn) {
		c.dialer.Timeout = d
	}
}

// WithSessionBreaks makes Read report ErrSessionEnded when a connection is
// lost instead of reconnecting silently, so framed readers can discard a
// partially received frame.
func WithSessionBreaks() Option {
	return func(c *Conn) {
		c.sessionBreaks = true
	}
}

// WithMetrics counts failed attempts in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Conn) {
		c.metrics = m
	}
}

// Dial returns a stubborn connection to addr. It never fails and never
// blocks: the first attempt happens on the first Read or Write.
func Dial(addr string, opts ...Option) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		addr:        addr,
		newSchedule: Standard,
		log:         logging.Nop(),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Addr returns the remote address the connection targets.
func (c *Conn) Addr() string {
	return c.addr
}

// Connected reports whether a live connection is currently held.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Read reads from the current connection, reconnecting as needed. It only
// returns an error once the Conn is closed, or with ErrSessionEnded when
// session breaks are enabled.
func (c *Conn) Read(p []byte) (int, error) {
	for {
		if c.lost {
			c.lost = false
			return 0, ErrSessionEnded
		}
		conn, err := c.connect()
		if err != nil {
			return 0, err
		}

		n, err := conn.Read(p)
		if err != nil {
			if c.isClosed() {
				return n, net.ErrClosed
			}
			c.drop(conn, err)
			c.lost = c.sessionBreaks
		}
		if n > 0 {
			return n, nil
		}
	}
}

// Write writes p to the current connection, connecting first if needed.
// On failure the connection is dropped so the next Write reconnects.
func (c *Conn) Write(p []byte) (int, error) {
	conn, err := c.connect()
	if err != nil {
		return 0, err
	}

	n, err := conn.Write(p)
	if err != nil {
		if c.isClosed() {
			return n, net.ErrClosed
		}
		c.drop(conn, err)
		return n, fmt.Errorf("write to %s: %w", c.addr, err)
	}
	return n, nil
}

// Close closes the connection and interrupts any pending reconnect wait.
// Subsequent Read and Write calls return net.ErrClosed.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) current() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// connect returns the live connection, dialing with backoff until one is
// established or the Conn is closed.
func (c *Conn) connect() (net.Conn, error) {
	if conn := c.current(); conn != nil {
		return conn, nil
	}

	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	// another caller may have connected while we waited
	if conn := c.current(); conn != nil {
		return conn, nil
	}

	var schedule Backoff
	for attempt := 1; ; attempt++ {
		if c.ctx.Err() != nil {
			return nil, net.ErrClosed
		}

		conn, err := c.dialer.DialContext(c.ctx, "tcp", c.addr)
		if err == nil {
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				_ = conn.Close()
				return nil, net.ErrClosed
			}
			c.conn = conn
			c.mu.Unlock()

			c.log.Info("connected", "addr", c.addr, "attempts", attempt)
			return conn, nil
		}
		if c.ctx.Err() != nil {
			return nil, net.ErrClosed
		}

		if schedule == nil {
			schedule = c.newSchedule()
		}
		wait := schedule.Next()
		c.metrics.ReconnectAttempt(c.addr)
		c.log.Warn("connect failed",
			"addr", c.addr,
			"attempt", attempt,
			"retry_in", wait,
			"error", err,
		)

		timer := time.NewTimer(wait)
		select {
		case <-c.ctx.Done():
			timer.Stop()
			return nil, net.ErrClosed
		case <-timer.C:
		}
	}
}

// drop discards conn after an I/O error so the next call reconnects.
func (c *Conn) drop(conn net.Conn, cause error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()

	if errors.Is(cause, io.EOF) {
		c.log.Warn("connection closed by peer", "addr", c.addr)
		return
	}
	c.log.Warn("connection lost", "addr", c.addr, "error", cause)
}
