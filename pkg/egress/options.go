package egress

import (
	"log/slog"

	"github.com/skylink-labs/acarsrouter/pkg/logging"
	"github.com/skylink-labs/acarsrouter/pkg/metrics"
	"github.com/skylink-labs/acarsrouter/pkg/reconnect"
)

const (
	// DefaultMaxPacketSize bounds the size of a single UDP datagram.
	DefaultMaxPacketSize = 60000

	// DefaultPeerBuffer is the per-client backlog of a BroadcastServer. It
	// is far larger than any inbound queue so that a burst drained from the
	// queue fits; only a client that stops reading overflows it.
	DefaultPeerBuffer = 4096
)

type options struct {
	log           *slog.Logger
	metrics       *metrics.Metrics
	schedule      reconnect.ScheduleFunc
	topic         string
	maxPacketSize int
	peerBuffer    int
}

// Option configures a sink.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithMetrics records forwarded and dropped messages in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithSchedule overrides the reconnect schedule of stream writers.
func WithSchedule(fn reconnect.ScheduleFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.schedule = fn
		}
	}
}

// WithTopic overrides the topic a PubSubWriter publishes on.
func WithTopic(topic string) Option {
	return func(o *options) {
		if topic != "" {
			o.topic = topic
		}
	}
}

// WithMaxPacketSize sets the largest UDP datagram. Larger payloads are
// split across several datagrams.
func WithMaxPacketSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPacketSize = n
		}
	}
}

// WithPeerBuffer sets the per-client channel capacity of a BroadcastServer.
func WithPeerBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.peerBuffer = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		log:           logging.Nop(),
		schedule:      reconnect.Standard,
		maxPacketSize: DefaultMaxPacketSize,
		peerBuffer:    DefaultPeerBuffer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
