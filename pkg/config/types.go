package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/skylink-labs/acarsrouter/pkg/message"
)

// Config is the complete router configuration.
type Config struct {
	ACARS FamilyConfig `yaml:"acars"`
	VDLM2 FamilyConfig `yaml:"vdlm2"`

	// MaxUDPPacketSize is the largest datagram a UDP sender emits.
	MaxUDPPacketSize int `yaml:"max_udp_packet_size"`
	// QueueSize is the capacity of every per-sink and processed queue.
	QueueSize int `yaml:"queue_size"`
	// PubSubTopicPrefix is prepended to the family topic ("acars", "vdlm2").
	PubSubTopicPrefix string `yaml:"pubsub_topic_prefix,omitempty"`
	// ServeHost is the interface broadcast servers and inbound listeners
	// bind to.
	ServeHost string `yaml:"serve_host"`
	// ReassemblyWindow is how long a partial JSON value received over UDP
	// waits for the datagrams that complete it.
	ReassemblyWindow time.Duration `yaml:"reassembly_window"`

	Log LogConfig `yaml:"log"`

	// MetricsAddr enables the Prometheus endpoint when set (host:port).
	MetricsAddr string `yaml:"metrics_addr,omitempty"`

	// Sources tracks where each value came from.
	Sources map[string]string `yaml:"-"`
}

// FamilyConfig lists the sinks and sources of one message family.
type FamilyConfig struct {
	// SendUDP lists host:port datagram destinations.
	SendUDP []string `yaml:"send_udp,omitempty"`
	// SendTCP lists host:port stream destinations.
	SendTCP []string `yaml:"send_tcp,omitempty"`
	// ServeTCP lists local ports on which broadcast servers listen.
	ServeTCP []string `yaml:"serve_tcp,omitempty"`
	// ServePubSub lists local ports on which pub/sub endpoints are bound.
	ServePubSub []string `yaml:"serve_pubsub,omitempty"`
	// ReceiveTCP lists host:port feeders of newline-delimited JSON.
	ReceiveTCP []string `yaml:"receive_tcp,omitempty"`
	// ReceivePubSub lists host:port pub/sub endpoints to subscribe to.
	ReceivePubSub []string `yaml:"receive_pubsub,omitempty"`
	// ListenUDP lists local ports that accept JSON datagrams.
	ListenUDP []string `yaml:"listen_udp,omitempty"`
	// ListenTCP lists local ports that accept newline-delimited JSON feeders.
	ListenTCP []string `yaml:"listen_tcp,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File additionally writes logs to this path when set.
	File string `yaml:"file,omitempty"`
}

// Value sources.
const (
	SourceDefault = "default"
	SourceFile    = "file"
	SourceEnv     = "env"
	SourceFlag    = "flag"
)

// Family returns the configuration of family f.
func (c *Config) Family(f message.Family) FamilyConfig {
	if f == message.VDLM2 {
		return c.VDLM2
	}
	return c.ACARS
}

// ListKeys are the keys of every per-family list, in display order.
var ListKeys = []string{
	"send_udp", "send_tcp", "serve_tcp", "serve_pubsub",
	"receive_tcp", "receive_pubsub", "listen_udp", "listen_tcp",
}

// SetList replaces list key of family f and records source.
func (c *Config) SetList(f message.Family, key string, values []string, source string) error {
	fc := &c.ACARS
	if f == message.VDLM2 {
		fc = &c.VDLM2
	}
	var dst *[]string
	switch key {
	case "send_udp":
		dst = &fc.SendUDP
	case "send_tcp":
		dst = &fc.SendTCP
	case "serve_tcp":
		dst = &fc.ServeTCP
	case "serve_pubsub":
		dst = &fc.ServePubSub
	case "receive_tcp":
		dst = &fc.ReceiveTCP
	case "receive_pubsub":
		dst = &fc.ReceivePubSub
	case "listen_udp":
		dst = &fc.ListenUDP
	case "listen_tcp":
		dst = &fc.ListenTCP
	default:
		return fmt.Errorf("unknown list %q", key)
	}
	*dst = values
	if c.Sources == nil {
		c.Sources = make(map[string]string)
	}
	c.Sources[familyKey(key, f)] = source
	return nil
}

// Topic returns the pub/sub topic used for family f.
func (c *Config) Topic(f message.Family) string {
	prefix := strings.TrimSuffix(c.PubSubTopicPrefix, "/")
	if prefix == "" {
		return f.Topic()
	}
	return prefix + "/" + f.Topic()
}

// ShouldStart reports whether a configured list has any entries.
func ShouldStart(list []string) bool {
	return len(list) > 0
}

// SplitList splits an environment or flag value on ';' and ','. Blank
// entries are dropped.
func SplitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == ','
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
