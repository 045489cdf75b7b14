package ingest

import (
	"log/slog"
	"time"

	"github.com/skylink-labs/acarsrouter/pkg/logging"
	"github.com/skylink-labs/acarsrouter/pkg/metrics"
	"github.com/skylink-labs/acarsrouter/pkg/reconnect"
)

// DefaultReassemblyWindow is how long a partial UDP message is kept.
const DefaultReassemblyWindow = time.Second

type options struct {
	log      *slog.Logger
	metrics  *metrics.Metrics
	schedule reconnect.ScheduleFunc
	topic    string
	window   time.Duration
}

// Option configures an ingestion source.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithMetrics records received and dropped messages in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithSchedule overrides the reconnect schedule.
func WithSchedule(fn reconnect.ScheduleFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.schedule = fn
		}
	}
}

// WithTopic overrides the pub/sub topic a PubSubSource subscribes to.
func WithTopic(topic string) Option {
	return func(o *options) {
		if topic != "" {
			o.topic = topic
		}
	}
}

// WithReassemblyWindow sets how long a UDP listener keeps a partial JSON
// value while waiting for the datagrams that complete it.
func WithReassemblyWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.window = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		log:      logging.Nop(),
		schedule: reconnect.Standard,
		window:   DefaultReassemblyWindow,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
