package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/skylink-labs/acarsrouter/pkg/logging"
	"github.com/skylink-labs/acarsrouter/pkg/message"
	"github.com/skylink-labs/acarsrouter/pkg/metrics"
	"github.com/skylink-labs/acarsrouter/pkg/queue"
	"github.com/skylink-labs/acarsrouter/pkg/reconnect"
)

// MaxLineSize is the longest line accepted from a feeder.
const MaxLineSize = 1024 * 1024

// LineServer ingests newline-delimited JSON from one remote TCP feeder.
type LineServer struct {
	addr   string
	family message.Family
	out    *queue.Queue
	name   string
	opts   options
}

// NewLineServer creates a line ingestion server for addr. Parsed messages
// are pushed onto out.
func NewLineServer(addr string, family message.Family, out *queue.Queue, opts ...Option) *LineServer {
	o := buildOptions(opts)
	name := "tcp-receive " + addr
	o.log = o.log.With("family", family.String(), "source", name)
	return &LineServer{
		addr:   addr,
		family: family,
		out:    out,
		name:   name,
		opts:   o,
	}
}

// Name identifies the source in logs and metrics.
func (s *LineServer) Name() string {
	return s.name
}

// Run connects to the feeder and ingests lines until ctx is cancelled.
// Connection failures are retried forever by the underlying connection.
func (s *LineServer) Run(ctx context.Context) {
	conn := reconnect.Dial(s.addr,
		reconnect.WithSchedule(s.opts.schedule),
		reconnect.WithLogger(s.opts.log),
		reconnect.WithMetrics(s.opts.metrics),
		reconnect.WithSessionBreaks(),
	)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	s.opts.log.Debug("line ingestion starting", "addr", s.addr)
	for {
		err := s.Consume(conn)
		if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
			break
		}
		if errors.Is(err, reconnect.ErrSessionEnded) {
			continue
		}
		// oversized line: the framer resynchronizes on the next newline
		s.opts.log.Error("framing error, resuming", "error", err)
	}
	_ = conn.Close()
	s.opts.log.Debug("line ingestion stopped")
}

// Consume frames r on newlines and forwards every parsed message. It
// returns when r is exhausted or fails. When r reports
// reconnect.ErrSessionEnded, an unterminated trailing line is discarded
// rather than parsed.
func (s *LineServer) Consume(r io.Reader) error {
	sr := &sessionReader{r: r}
	scanner := bufio.NewScanner(sr)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	scanner.Split(func(data []byte, atEOF bool) (int, []byte, error) {
		if atEOF && sr.ended && len(data) > 0 && bytes.IndexByte(data, '\n') < 0 {
			s.opts.metrics.Dropped(s.family, s.name, metrics.ReasonTruncated)
			s.opts.log.Warn("discarding partial line after connection loss", "bytes", len(data))
			return len(data), nil, nil
		}
		return bufio.ScanLines(data, atEOF)
	})

	for scanner.Scan() {
		s.handleLine(scanner.Text())
	}
	return scanner.Err()
}

func (s *LineServer) handleLine(raw string) {
	line := message.StripLineEndings(raw)
	if strings.TrimSpace(line) == "" {
		return
	}

	msg, err := message.Parse([]byte(line))
	if err != nil {
		s.opts.metrics.Dropped(s.family, s.name, metrics.ReasonParseError)
		s.opts.log.Error("failed to parse line", "error", err)
		return
	}
	forward(s.opts, s.family, s.name, s.out, msg)
}

// sessionReader records whether the underlying reader ended a session.
type sessionReader struct {
	r     io.Reader
	ended bool
}

func (r *sessionReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if errors.Is(err, reconnect.ErrSessionEnded) {
		r.ended = true
	}
	return n, err
}

// forward pushes msg onto out, logging and counting a drop on failure.
func forward(o options, family message.Family, source string, out *queue.Queue, msg message.Message) {
	if err := out.TryPush(msg); err != nil {
		reason := metrics.ReasonQueueFull
		if errors.Is(err, queue.ErrClosed) {
			reason = metrics.ReasonQueueClosed
		}
		o.metrics.Dropped(family, source, reason)
		o.log.Error("failed to forward message", "error", err)
		return
	}
	o.metrics.Received(family, source)
	o.log.Log(context.Background(), logging.LevelTrace, "message received", "message", msg)
}
