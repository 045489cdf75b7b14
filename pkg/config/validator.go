package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/skylink-labs/acarsrouter/pkg/message"
)

// maxUDPPayload is the largest payload an IPv4 UDP datagram can carry.
const maxUDPPayload = 65507

// Lists holding local ports, grouped by the socket type they bind.
var (
	tcpPortKeys = []string{"serve_tcp", "serve_pubsub", "listen_tcp"}
	udpPortKeys = []string{"listen_udp"}
)

var validLogLevels = map[string]bool{
	"trace":   true,
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

// ValidationError describes one invalid configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Validate checks every value and returns all problems joined together.
func (c *Config) Validate() error {
	var errs []error

	for _, f := range message.Families() {
		fc := c.Family(f)
		for _, key := range []string{"send_udp", "send_tcp", "receive_tcp", "receive_pubsub"} {
			for _, entry := range fc.Lists()[key] {
				if err := validateHostPort(entry); err != nil {
					errs = append(errs, &ValidationError{Field: familyKey(key, f), Message: err.Error()})
				}
			}
		}
		for _, key := range append(append([]string(nil), tcpPortKeys...), udpPortKeys...) {
			for _, entry := range fc.Lists()[key] {
				if _, err := ParsePort(entry); err != nil {
					errs = append(errs, &ValidationError{Field: familyKey(key, f), Message: err.Error()})
				}
			}
		}
	}
	errs = append(errs, c.validatePorts("tcp", tcpPortKeys)...)
	errs = append(errs, c.validatePorts("udp", udpPortKeys)...)

	if c.MaxUDPPacketSize <= 0 || c.MaxUDPPacketSize > maxUDPPayload {
		errs = append(errs, &ValidationError{
			Field:   "max_udp_packet_size",
			Message: fmt.Sprintf("must be between 1 and %d, got %d", maxUDPPayload, c.MaxUDPPacketSize),
		})
	}
	if c.QueueSize <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "queue_size",
			Message: fmt.Sprintf("must be positive, got %d", c.QueueSize),
		})
	}
	if c.ReassemblyWindow <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "reassembly_window",
			Message: fmt.Sprintf("must be positive, got %s", c.ReassemblyWindow),
		})
	}
	if c.ServeHost != "" && net.ParseIP(c.ServeHost) == nil && c.ServeHost != "localhost" {
		errs = append(errs, &ValidationError{Field: "serve_host", Message: fmt.Sprintf("not an IP address: %q", c.ServeHost)})
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, &ValidationError{Field: "log.level", Message: fmt.Sprintf("unknown level %q", c.Log.Level)})
	}
	if !validLogFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, &ValidationError{Field: "log.format", Message: fmt.Sprintf("unknown format %q", c.Log.Format)})
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			errs = append(errs, &ValidationError{Field: "metrics_addr", Message: err.Error()})
		}
	}

	return errors.Join(errs...)
}

// validatePorts rejects a port claimed by more than one listener of the
// same socket type.
func (c *Config) validatePorts(network string, keys []string) []error {
	var errs []error
	owner := make(map[int]string)
	for _, f := range message.Families() {
		fc := c.Family(f)
		for _, key := range keys {
			field := familyKey(key, f)
			for _, entry := range fc.Lists()[key] {
				port, err := ParsePort(entry)
				if err != nil {
					continue
				}
				if prev, dup := owner[port]; dup {
					errs = append(errs, &ValidationError{
						Field:   field,
						Message: fmt.Sprintf("%s port %d already used by %s", network, port, prev),
					})
					continue
				}
				owner[port] = field
			}
		}
	}
	return errs
}

// ParsePort parses a listening port in the range 1-65535.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return port, nil
}

func validateHostPort(s string) error {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", s, err)
	}
	if host == "" {
		return fmt.Errorf("invalid address %q: missing host", s)
	}
	if _, err := ParsePort(port); err != nil {
		return fmt.Errorf("invalid address %q: %w", s, err)
	}
	return nil
}
