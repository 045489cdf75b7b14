package router

import (
	"context"
	"errors"

	"github.com/skylink-labs/acarsrouter/pkg/egress"
	"github.com/skylink-labs/acarsrouter/pkg/logging"
	"github.com/skylink-labs/acarsrouter/pkg/message"
	"github.com/skylink-labs/acarsrouter/pkg/metrics"
	"github.com/skylink-labs/acarsrouter/pkg/queue"
)

// Sink is the inbound queue of one egress component.
type Sink struct {
	Name  string
	Queue *queue.Queue
}

// SinkSet holds every sink of one family. It is built once at startup.
type SinkSet struct {
	// UDP is nil when no UDP destinations are configured.
	UDP   *egress.UDPSender
	Sinks []Sink
}

// Names lists the active sinks.
func (s SinkSet) Names() []string {
	var names []string
	if s.UDP != nil {
		names = append(names, "udp")
	}
	for _, sink := range s.Sinks {
		names = append(names, sink.Name)
	}
	return names
}

// Empty reports whether the set has no sinks at all.
func (s SinkSet) Empty() bool {
	return s.UDP == nil && len(s.Sinks) == 0
}

// Monitor fans the processed messages of one family out to its sinks.
type Monitor struct {
	family message.Family
	in     <-chan message.Message
	set    SinkSet
	opts   options
}

// NewMonitor creates a monitor reading from in.
func NewMonitor(family message.Family, in <-chan message.Message, set SinkSet, opts ...Option) *Monitor {
	o := buildOptions(opts)
	o.log = o.log.With("family", family.String())
	return &Monitor{
		family: family,
		in:     in,
		set:    set,
		opts:   o,
	}
}

// Run forwards messages until in is closed. It then closes every sink
// queue and the UDP sender so the sinks drain and stop.
func (m *Monitor) Run() {
	defer m.close()

	m.opts.log.Debug("queue monitor started", "sinks", m.set.Names())
	for msg := range m.in {
		m.opts.log.Log(context.Background(), logging.LevelTrace, "dispatching message", "message", msg)

		if m.set.UDP != nil {
			m.set.UDP.Send(msg.Clone())
		}
		for _, sink := range m.set.Sinks {
			if err := sink.Queue.TryPush(msg.Clone()); err != nil {
				reason := metrics.ReasonQueueFull
				if errors.Is(err, queue.ErrClosed) {
					reason = metrics.ReasonQueueClosed
				}
				m.opts.metrics.Dropped(m.family, sink.Name, reason)
				m.opts.log.Error("failed to forward message to sink", "sink", sink.Name, "error", err)
			}
		}
	}
}

func (m *Monitor) close() {
	for _, sink := range m.set.Sinks {
		sink.Queue.Close()
	}
	if m.set.UDP != nil {
		if err := m.set.UDP.Close(); err != nil {
			m.opts.log.Warn("failed to close udp sender", "error", err)
		}
	}
	m.opts.log.Debug("queue monitor stopped")
}
