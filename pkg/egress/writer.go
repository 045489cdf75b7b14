package egress

import (
	"github.com/skylink-labs/acarsrouter/pkg/reconnect"
)

// Writer delivers encoded messages to a single destination.
type Writer interface {
	// WriteMessage sends one encoded message.
	WriteMessage(payload []byte) error
	// Close releases the destination. It is safe to call more than once.
	Close() error
	// Addr identifies the destination.
	Addr() string
}

// TCPWriter writes newline-terminated messages to a remote TCP listener,
// reconnecting whenever the connection is lost.
type TCPWriter struct {
	conn *reconnect.Conn
}

// DialTCP returns a TCPWriter for addr. The connection is established
// lazily, so DialTCP never fails or blocks.
func DialTCP(addr string, opts ...Option) *TCPWriter {
	o := buildOptions(opts)
	return &TCPWriter{
		conn: reconnect.Dial(addr,
			reconnect.WithSchedule(o.schedule),
			reconnect.WithLogger(o.log),
			reconnect.WithMetrics(o.metrics),
		),
	}
}

// WriteMessage writes payload followed by a newline in a single write.
// While the destination is unreachable it blocks until reconnected or
// closed.
func (w *TCPWriter) WriteMessage(payload []byte) error {
	line := make([]byte, 0, len(payload)+1)
	line = append(line, payload...)
	line = append(line, '\n')
	_, err := w.conn.Write(line)
	return err
}

// Close closes the connection and interrupts a pending reconnect.
func (w *TCPWriter) Close() error {
	return w.conn.Close()
}

// Addr returns the destination address.
func (w *TCPWriter) Addr() string {
	return w.conn.Addr()
}
