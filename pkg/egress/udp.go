package egress

import (
	"context"
	"fmt"
	"net"

	"github.com/skylink-labs/acarsrouter/pkg/logging"
	"github.com/skylink-labs/acarsrouter/pkg/message"
	"github.com/skylink-labs/acarsrouter/pkg/metrics"
)

// UDPSender sends every message as datagrams to a fixed list of
// destinations from one ephemeral socket.
type UDPSender struct {
	family       message.Family
	destinations []string
	conn         net.PacketConn
	opts         options
}

// NewUDPSender binds 0.0.0.0:0 and returns a sender for destinations.
// Destinations are resolved on every send so a bad entry never prevents
// the sender from starting.
func NewUDPSender(family message.Family, destinations []string, opts ...Option) (*UDPSender, error) {
	o := buildOptions(opts)
	o.log = o.log.With("family", family.String(), "sink", "udp")

	conn, err := net.ListenPacket("udp", "0.0.0.0:0")
	if err != nil {
		return nil, fmt.Errorf("bind udp socket: %w", err)
	}
	o.log.Debug("udp sender bound", "local_addr", conn.LocalAddr().String(), "destinations", destinations)

	return &UDPSender{
		family:       family,
		destinations: append([]string(nil), destinations...),
		conn:         conn,
		opts:         o,
	}, nil
}

// Destinations returns the configured destination list.
func (s *UDPSender) Destinations() []string {
	return append([]string(nil), s.destinations...)
}

// LocalAddr returns the bound socket address.
func (s *UDPSender) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Send encodes msg once and sends it to every destination. A failing
// destination is logged and skipped; the others still receive the message.
func (s *UDPSender) Send(msg message.Message) {
	payload, err := msg.Encode()
	if err != nil {
		s.opts.metrics.Dropped(s.family, "udp", metrics.ReasonEncodeError)
		s.opts.log.Error("failed to encode message", "error", err)
		return
	}

	for _, dest := range s.destinations {
		if err := s.sendTo(dest, payload); err != nil {
			s.opts.metrics.Dropped(s.family, "udp", metrics.ReasonWriteError)
			s.opts.log.Error("failed to send datagram", "destination", dest, "error", err)
			continue
		}
		s.opts.metrics.Forwarded(s.family, "udp")
		s.opts.log.Log(context.Background(), logging.LevelTrace, "datagram sent", "destination", dest, "bytes", len(payload))
	}
}

func (s *UDPSender) sendTo(dest string, payload []byte) error {
	addr, err := net.ResolveUDPAddr("udp", dest)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dest, err)
	}
	for _, chunk := range chunks(payload, s.opts.maxPacketSize) {
		if _, err := s.conn.WriteTo(chunk, addr); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the socket.
func (s *UDPSender) Close() error {
	return s.conn.Close()
}

// chunks splits payload into consecutive pieces of at most size bytes.
func chunks(payload []byte, size int) [][]byte {
	if size <= 0 || len(payload) <= size {
		return [][]byte{payload}
	}
	out := make([][]byte, 0, (len(payload)+size-1)/size)
	for len(payload) > size {
		out = append(out, payload[:size])
		payload = payload[size:]
	}
	return append(out, payload)
}
