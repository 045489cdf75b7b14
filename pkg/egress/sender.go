package egress

import (
	"context"

	"github.com/skylink-labs/acarsrouter/pkg/logging"
	"github.com/skylink-labs/acarsrouter/pkg/message"
	"github.com/skylink-labs/acarsrouter/pkg/metrics"
	"github.com/skylink-labs/acarsrouter/pkg/queue"
)

// Sender drains one queue into one Writer.
type Sender struct {
	name   string
	family message.Family
	w      Writer
	in     *queue.Queue
	opts   options
}

// NewSender creates a sender named name that writes every message queued
// on in to w.
func NewSender(name string, family message.Family, w Writer, in *queue.Queue, opts ...Option) *Sender {
	o := buildOptions(opts)
	o.log = o.log.With("family", family.String(), "sink", name)
	return &Sender{
		name:   name,
		family: family,
		w:      w,
		in:     in,
		opts:   o,
	}
}

// Name identifies the sender in logs and metrics.
func (s *Sender) Name() string {
	return s.name
}

// Writer returns the underlying writer.
func (s *Sender) Writer() Writer {
	return s.w
}

// Run delivers messages until the inbound queue is closed and drained,
// then closes the writer. Delivery failures drop the message only.
func (s *Sender) Run() {
	defer func() {
		if err := s.w.Close(); err != nil {
			s.opts.log.Warn("failed to close writer", "error", err)
		}
		s.opts.log.Debug("sender stopped")
	}()

	s.opts.log.Debug("sender started", "addr", s.w.Addr())
	for msg := range s.in.C() {
		payload, err := msg.Encode()
		if err != nil {
			s.opts.metrics.Dropped(s.family, s.name, metrics.ReasonEncodeError)
			s.opts.log.Error("failed to encode message", "error", err)
			continue
		}
		if err := s.w.WriteMessage(payload); err != nil {
			s.opts.metrics.Dropped(s.family, s.name, metrics.ReasonWriteError)
			s.opts.log.Error("failed to send message", "error", err)
			continue
		}
		s.opts.metrics.Forwarded(s.family, s.name)
		s.opts.log.Log(context.Background(), logging.LevelTrace, "message sent", "bytes", len(payload))
	}
}
