package router

import (
	"log/slog"

	"github.com/skylink-labs/acarsrouter/pkg/logging"
	"github.com/skylink-labs/acarsrouter/pkg/metrics"
	"github.com/skylink-labs/acarsrouter/pkg/reconnect"
)

type options struct {
	log      *slog.Logger
	metrics  *metrics.Metrics
	schedule reconnect.ScheduleFunc
}

// Option configures a Router or Monitor.
type Option func(*options)

// WithLogger sets the logger passed down to every component.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithMetrics records traffic in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithSchedule overrides the reconnect schedule of outbound senders and
// ingestion sources.
func WithSchedule(fn reconnect.ScheduleFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.schedule = fn
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		log:      logging.Nop(),
		schedule: reconnect.Standard,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
