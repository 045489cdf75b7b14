package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/skylink-labs/acarsrouter/pkg/message"
	"github.com/skylink-labs/acarsrouter/pkg/metrics"
	"github.com/skylink-labs/acarsrouter/pkg/queue"
)

// maxDatagramSize is the largest UDP payload read in one call.
const maxDatagramSize = 65535

// TCPListener accepts inbound feeders that push newline-delimited JSON.
type TCPListener struct {
	ln     net.Listener
	family message.Family
	out    *queue.Queue
	name   string
	opts   options
	wg     sync.WaitGroup
}

// ListenTCP binds addr for inbound feeders. Parsed messages are pushed
// onto out once Run is called.
func ListenTCP(addr string, family message.Family, out *queue.Queue, opts ...Option) (*TCPListener, error) {
	o := buildOptions(opts)
	name := "tcp-listen " + addr
	o.log = o.log.With("family", family.String(), "source", name)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	o.log.Info("feeder listener bound", "addr", ln.Addr().String())

	return &TCPListener{ln: ln, family: family, out: out, name: name, opts: o}, nil
}

// Name identifies the source in logs and metrics.
func (l *TCPListener) Name() string {
	return l.name
}

// Addr returns the bound address.
func (l *TCPListener) Addr() string {
	return l.ln.Addr().String()
}

// Run accepts feeders until ctx is cancelled. It then closes the listener
// and every feeder connection and returns once they are done.
func (l *TCPListener) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() { _ = l.ln.Close() })
	defer stop()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			l.opts.log.Error("accept failed", "error", err)
			continue
		}
		l.wg.Add(1)
		go l.serveFeeder(ctx, conn)
	}
	_ = l.ln.Close()
	l.wg.Wait()
	l.opts.log.Debug("feeder listener stopped")
}

func (l *TCPListener) serveFeeder(ctx context.Context, conn net.Conn) {
	defer l.wg.Done()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() { _ = conn.Close() }()

	log := l.opts.log.With("peer", conn.RemoteAddr().String())
	log.Info("feeder connected")

	framer := &LineServer{family: l.family, out: l.out, name: l.name, opts: l.opts}
	if err := framer.Consume(conn); err != nil && ctx.Err() == nil {
		log.Warn("feeder read failed", "error", err)
	}
	log.Info("feeder disconnected")
}

// UDPListener receives JSON datagrams. Values split across consecutive
// datagrams from one sender are reassembled within the reassembly window.
type UDPListener struct {
	conn   net.PacketConn
	family message.Family
	out    *queue.Queue
	name   string
	opts   options
	reasm  *reassembler
}

// ListenUDP binds addr for inbound datagrams.
func ListenUDP(addr string, family message.Family, out *queue.Queue, opts ...Option) (*UDPListener, error) {
	o := buildOptions(opts)
	name := "udp-listen " + addr
	o.log = o.log.With("family", family.String(), "source", name)

	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind udp %s: %w", addr, err)
	}
	o.log.Info("datagram listener bound", "addr", conn.LocalAddr().String(), "reassembly_window", o.window)

	return &UDPListener{
		conn:   conn,
		family: family,
		out:    out,
		name:   name,
		opts:   o,
		reasm:  newReassembler(o.window),
	}, nil
}

// Name identifies the source in logs and metrics.
func (l *UDPListener) Name() string {
	return l.name
}

// Addr returns the bound address.
func (l *UDPListener) Addr() string {
	return l.conn.LocalAddr().String()
}

// Run reads datagrams until ctx is cancelled.
func (l *UDPListener) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() { _ = l.conn.Close() })
	defer stop()

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := l.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			l.opts.log.Error("datagram read failed", "error", err)
			continue
		}
		l.handleDatagram(from.String(), buf[:n])
	}
	_ = l.conn.Close()
	l.opts.log.Debug("datagram listener stopped")
}

func (l *UDPListener) handleDatagram(sender string, data []byte) {
	res := l.reasm.feed(sender, data)
	if res.expired > 0 {
		for i := 0; i < res.expired; i++ {
			l.opts.metrics.Dropped(l.family, l.name, metrics.ReasonTruncated)
		}
		l.opts.log.Warn("discarding incomplete message", "count", res.expired)
	}
	if res.err != nil {
		l.opts.metrics.Dropped(l.family, l.name, metrics.ReasonParseError)
		l.opts.log.Error("failed to parse datagram", "peer", sender, "error", res.err)
	}
	for _, msg := range res.messages {
		forward(l.opts, l.family, l.name, l.out, msg)
	}
}
