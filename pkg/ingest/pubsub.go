package ingest

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/skylink-labs/acarsrouter/pkg/message"
	"github.com/skylink-labs/acarsrouter/pkg/metrics"
	"github.com/skylink-labs/acarsrouter/pkg/queue"
	"github.com/skylink-labs/acarsrouter/pkg/reconnect"
)

// PubSubSource ingests messages published on a remote MQTT endpoint.
type PubSubSource struct {
	addr   string
	family message.Family
	out    *queue.Queue
	name   string
	opts   options

	client mqtt.Client
	lost   chan error
}

// NewPubSubSource creates a pub/sub ingestion source for addr (host:port).
// It subscribes to the family topic unless WithTopic says otherwise.
func NewPubSubSource(addr string, family message.Family, out *queue.Queue, opts ...Option) *PubSubSource {
	o := buildOptions(append([]Option{WithTopic(family.Topic())}, opts...))
	name := "pubsub-receive " + addr
	o.log = o.log.With("family", family.String(), "source", name)

	s := &PubSubSource{
		addr:   addr,
		family: family,
		out:    out,
		name:   name,
		opts:   o,
		lost:   make(chan error, 1),
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker("tcp://" + addr).
		SetClientID("acarsrouter-" + uuid.NewString()).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			select {
			case s.lost <- err:
			default:
			}
		})
	s.client = mqtt.NewClient(clientOpts)
	return s
}

// Name identifies the source in logs and metrics.
func (s *PubSubSource) Name() string {
	return s.name
}

// Run keeps the subscription alive until ctx is cancelled. A failed first
// connection is retried in the background like any later outage.
func (s *PubSubSource) Run(ctx context.Context) {
	defer s.client.Disconnect(250)

	for {
		if !s.connect(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case err := <-s.lost:
			s.opts.log.Warn("pub/sub connection lost", "addr", s.addr, "error", err)
		}
	}
}

// connect dials until connected or ctx is done, consuming a fresh schedule.
func (s *PubSubSource) connect(ctx context.Context) bool {
	var schedule reconnect.Backoff
	for attempt := 1; ; attempt++ {
		token := s.client.Connect()
		select {
		case <-ctx.Done():
			return false
		case <-token.Done():
		}
		if token.Error() == nil {
			return true
		}

		if schedule == nil {
			schedule = s.opts.schedule()
		}
		wait := schedule.Next()
		s.opts.metrics.ReconnectAttempt(s.addr)
		s.opts.log.Warn("pub/sub connect failed",
			"addr", s.addr,
			"attempt", attempt,
			"retry_in", wait,
			"error", token.Error(),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

// onConnect (re)issues the subscription; paho calls it after every
// successful connect.
func (s *PubSubSource) onConnect(c mqtt.Client) {
	s.opts.log.Info("connected", "addr", s.addr, "topic", s.opts.topic)

	token := c.Subscribe(s.opts.topic, 0, func(_ mqtt.Client, m mqtt.Message) {
		s.handlePayload(m.Payload())
	})
	if token.Wait() && token.Error() != nil {
		s.opts.log.Error("subscribe failed", "topic", s.opts.topic, "error", token.Error())
	}
}

func (s *PubSubSource) handlePayload(payload []byte) {
	msg, err := message.Parse(payload)
	if err != nil {
		s.opts.metrics.Dropped(s.family, s.name, metrics.ReasonParseError)
		s.opts.log.Error("failed to parse frame", "error", err)
		return
	}
	forward(s.opts, s.family, s.name, s.out, msg)
}
