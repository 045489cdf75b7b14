// Package metrics provides Prometheus metrics for the router.
//
// Metrics live in a private prometheus.Registry so tests and multiple
// router instances never collide on the global default registry.
//
// # Metrics
//
//   - acarsrouter_messages_received_total: messages accepted from an ingestion source (labels: family, source)
//   - acarsrouter_messages_forwarded_total: messages handed to a sink (labels: family, sink)
//   - acarsrouter_messages_dropped_total: messages a sink could not take or deliver (labels: family, sink, reason)
//   - acarsrouter_broadcast_peers: peers connected to a broadcast serve server (labels: family, addr)
//   - acarsrouter_reconnect_attempts_total: failed outbound connection attempts (labels: target)
//
// Every method is safe on a nil *Metrics, so components can take an
// optional metrics sink without nil checks.
//
// # Usage
//
//	m := metrics.New()
//	m.Forwarded(message.ACARS, "tcp-send 10.0.0.5:5550")
//	http.Handle("/metrics", m.Handler())
package metrics
