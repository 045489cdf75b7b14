package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skylink-labs/acarsrouter/pkg/message"
)

const namespace = "acarsrouter"

// Drop reasons used as the "reason" label.
const (
	ReasonQueueFull   = "queue_full"
	ReasonQueueClosed = "queue_closed"
	ReasonWriteError  = "write_error"
	ReasonEncodeError = "encode_error"
	ReasonParseError  = "parse_error"
	ReasonPeerFull    = "peer_full"
	ReasonTruncated   = "truncated"
)

// Metrics holds the router's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	received  *prometheus.CounterVec
	forwarded *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	peers     *prometheus.GaugeVec
	reconnect *prometheus.CounterVec
}

// New creates a Metrics with its own registry, including Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Messages accepted from an ingestion source.",
		}, []string{"family", "source"}),
		forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_forwarded_total",
			Help:      "Messages handed to an egress sink.",
		}, []string{"family", "sink"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Messages a sink could not accept or deliver.",
		}, []string{"family", "sink", "reason"}),
		peers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broadcast_peers",
			Help:      "Peers connected to a broadcast serve server.",
		}, []string{"family", "addr"}),
		reconnect: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Failed outbound connection attempts.",
		}, []string{"target"}),
	}

	reg.MustRegister(
		m.received, m.forwarded, m.dropped, m.peers, m.reconnect,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Received counts a message accepted from an ingestion source.
func (m *Metrics) Received(f message.Family, source string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(f.String(), source).Inc()
}

// Forwarded counts a message handed to a sink.
func (m *Metrics) Forwarded(f message.Family, sink string) {
	if m == nil {
		return
	}
	m.forwarded.WithLabelValues(f.String(), sink).Inc()
}

// Dropped counts a message a sink could not take or deliver.
func (m *Metrics) Dropped(f message.Family, sink, reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(f.String(), sink, reason).Inc()
}

// PeerConnected increments the peer gauge of a broadcast server.
func (m *Metrics) PeerConnected(f message.Family, addr string) {
	if m == nil {
		return
	}
	m.peers.WithLabelValues(f.String(), addr).Inc()
}

// PeerDisconnected decrements the peer gauge of a broadcast server.
func (m *Metrics) PeerDisconnected(f message.Family, addr string) {
	if m == nil {
		return
	}
	m.peers.WithLabelValues(f.String(), addr).Dec()
}

// ReconnectAttempt counts a failed outbound connection attempt.
func (m *Metrics) ReconnectAttempt(target string) {
	if m == nil {
		return
	}
	m.reconnect.WithLabelValues(target).Inc()
}

// ForwardedCounter returns the forwarded counter for one sink.
func (m *Metrics) ForwardedCounter(f message.Family, sink string) prometheus.Counter {
	return m.forwarded.WithLabelValues(f.String(), sink)
}

// DroppedCounter returns the dropped counter for one sink and reason.
func (m *Metrics) DroppedCounter(f message.Family, sink, reason string) prometheus.Counter {
	return m.dropped.WithLabelValues(f.String(), sink, reason)
}

// ReceivedCounter returns the received counter for one source.
func (m *Metrics) ReceivedCounter(f message.Family, source string) prometheus.Counter {
	return m.received.WithLabelValues(f.String(), source)
}

// ReconnectCounter returns the failed-attempt counter for one target.
func (m *Metrics) ReconnectCounter(target string) prometheus.Counter {
	return m.reconnect.WithLabelValues(target)
}
