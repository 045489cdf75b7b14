package config

import (
	"github.com/skylink-labs/acarsrouter/pkg/egress"
	"github.com/skylink-labs/acarsrouter/pkg/ingest"
	"github.com/skylink-labs/acarsrouter/pkg/queue"
)

// Default values.
const (
	DefaultServeHost = "0.0.0.0"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultReassemblyWindow = ingest.DefaultReassemblyWindow
)

// Default returns a configuration with no sinks or sources and default
// sizes.
func Default() *Config {
	return &Config{
		MaxUDPPacketSize: egress.DefaultMaxPacketSize,
		QueueSize:        queue.DefaultCapacity,
		ServeHost:        DefaultServeHost,
		ReassemblyWindow: DefaultReassemblyWindow,
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Sources: map[string]string{
			"max_udp_packet_size": SourceDefault,
			"queue_size":          SourceDefault,
			"serve_host":          SourceDefault,
			"reassembly_window":   SourceDefault,
			"log.level":           SourceDefault,
			"log.format":          SourceDefault,
		},
	}
}
