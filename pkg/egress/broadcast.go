package egress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skylink-labs/acarsrouter/pkg/logging"
	"github.com/skylink-labs/acarsrouter/pkg/message"
	"github.com/skylink-labs/acarsrouter/pkg/metrics"
	"github.com/skylink-labs/acarsrouter/pkg/queue"
)

// shutdownGrace bounds how long a client write may block once the server
// is shutting down.
const shutdownGrace = time.Second

// BroadcastServer accepts TCP clients and sends each of them every message
// from its inbound queue as a newline-terminated JSON line.
type BroadcastServer struct {
	name     string
	family   message.Family
	in       *queue.Queue
	ln       net.Listener
	registry *Registry
	opts     options

	done chan struct{}
	wg   sync.WaitGroup
}

// ListenBroadcast binds addr and returns a server fed from in. Run must be
// called to start accepting clients.
func ListenBroadcast(addr string, family message.Family, in *queue.Queue, opts ...Option) (*BroadcastServer, error) {
	o := buildOptions(opts)
	name := "tcp-serve " + addr
	o.log = o.log.With("family", family.String(), "sink", name)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	o.log.Info("broadcast server listening", "addr", ln.Addr().String())

	return &BroadcastServer{
		name:     name,
		family:   family,
		in:       in,
		ln:       ln,
		registry: NewRegistry(),
		opts:     o,
		done:     make(chan struct{}),
	}, nil
}

// Name identifies the server in logs and metrics.
func (s *BroadcastServer) Name() string {
	return s.name
}

// Addr returns the bound listening address.
func (s *BroadcastServer) Addr() string {
	return s.ln.Addr().String()
}

// PeerCount returns the number of connected clients.
func (s *BroadcastServer) PeerCount() int {
	return s.registry.Len()
}

// Run accepts clients and dispatches messages until the inbound queue is
// closed. It then stops listening and returns once every client task has
// exited.
func (s *BroadcastServer) Run() {
	s.wg.Add(1)
	go s.acceptLoop()

	s.dispatch()

	close(s.done)
	_ = s.ln.Close()
	s.wg.Wait()
	s.opts.log.Info("broadcast server stopped")
}

func (s *BroadcastServer) dispatch() {
	for msg := range s.in.C() {
		payload, err := msg.Encode()
		if err != nil {
			s.opts.metrics.Dropped(s.family, s.name, metrics.ReasonEncodeError)
			s.opts.log.Error("failed to encode message", "error", err)
			continue
		}
		line := append(payload, '\n')

		delivered, dropped := s.registry.Broadcast(line)
		for _, addr := range dropped {
			s.opts.metrics.Dropped(s.family, s.name, metrics.ReasonPeerFull)
			s.opts.log.Warn("client channel full, message dropped", "peer", addr)
		}
		if delivered == 0 {
			s.opts.log.Log(context.Background(), logging.LevelTrace, "no client accepted message", "bytes", len(line))
			continue
		}
		s.opts.metrics.Forwarded(s.family, s.name)
		s.opts.log.Log(context.Background(), logging.LevelTrace, "message broadcast", "bytes", len(line), "clients", delivered)
	}
}

func (s *BroadcastServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.opts.log.Error("accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go s.servePeer(conn)
	}
}

// servePeer owns one client: it writes queued payloads until the client
// disconnects, a write fails, or the server shuts down, and then removes
// its own registry entry.
func (s *BroadcastServer) servePeer(conn net.Conn) {
	defer s.wg.Done()

	addr := conn.RemoteAddr().String()
	log := s.opts.log.With("peer", addr, "session", uuid.NewString())
	ch := make(chan []byte, s.opts.peerBuffer)
	s.registry.Insert(addr, ch)
	s.opts.metrics.PeerConnected(s.family, s.Addr())
	log.Info("client connected")

	// clients never send anything; a read returning means they are gone
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_, _ = io.Copy(io.Discard, conn)
	}()

	exited := make(chan struct{})
	go func() {
		select {
		case <-s.done:
			_ = conn.SetWriteDeadline(time.Now().Add(shutdownGrace))
		case <-exited:
		}
	}()

	defer func() {
		close(exited)
		s.registry.Remove(addr)
		_ = conn.Close()
		<-gone
		s.opts.metrics.PeerDisconnected(s.family, s.Addr())
		log.Info("client disconnected")
	}()

	for {
		select {
		case <-gone:
			return
		case <-s.done:
			s.flush(conn, ch, log)
			return
		case payload := <-ch:
			if _, err := conn.Write(payload); err != nil {
				log.Warn("write to client failed", "error", err)
				return
			}
		}
	}
}

// flush writes whatever is still buffered for a client at shutdown.
func (s *BroadcastServer) flush(conn net.Conn, ch chan []byte, log *slog.Logger) {
	for {
		select {
		case payload := <-ch:
			if _, err := conn.Write(payload); err != nil {
				log.Warn("write to client failed", "error", err)
				return
			}
		default:
			return
		}
	}
}
