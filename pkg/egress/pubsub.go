package egress

import (
	"errors"
	"fmt"
	"sync"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/skylink-labs/acarsrouter/pkg/message"
)

// ErrWriterClosed is returned by WriteMessage after Close.
var ErrWriterClosed = errors.New("writer closed")

// PubSubWriter publishes messages on an embedded MQTT broker bound to
// 127.0.0.1. Subscribers connect to the broker and receive every frame
// published on the family topic.
type PubSubWriter struct {
	server *mqtt.Server
	addr   string
	topic  string

	mu     sync.RWMutex
	closed bool
}

// ListenPubSub starts a broker on 127.0.0.1:port. A bind failure is
// returned immediately.
func ListenPubSub(port int, family message.Family, opts ...Option) (*PubSubWriter, error) {
	o := buildOptions(append([]Option{WithTopic(family.Topic())}, opts...))
	log := o.log.With("family", family.String(), "sink", "pubsub")

	server := mqtt.New(&mqtt.Options{
		InlineClient: true,
		Logger:       log,
	})
	// mochi-mqtt requires an auth hook
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("failed to add allow hook: %w", err)
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	listener := listeners.NewTCP(listeners.Config{
		ID:      fmt.Sprintf("pubsub-%s-%d", family.Topic(), port),
		Address: addr,
	})
	if err := server.AddListener(listener); err != nil {
		_ = server.Close()
		return nil, fmt.Errorf("failed to bind pub/sub endpoint %s: %w", addr, err)
	}

	go func() {
		if err := server.Serve(); err != nil {
			log.Error("pub/sub server error", "error", err)
		}
	}()
	log.Info("pub/sub endpoint listening", "addr", addr, "topic", o.topic)

	return &PubSubWriter{
		server: server,
		addr:   addr,
		topic:  o.topic,
	}, nil
}

// WriteMessage publishes payload at QoS 0 without the retain flag.
func (w *PubSubWriter) WriteMessage(payload []byte) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}
	return w.server.Publish(w.topic, payload, false, 0)
}

// Topic returns the topic messages are published on.
func (w *PubSubWriter) Topic() string {
	return w.topic
}

// Addr returns the bound endpoint.
func (w *PubSubWriter) Addr() string {
	return w.addr
}

// Close stops the broker and disconnects all subscribers.
func (w *PubSubWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	return w.server.Close()
}
