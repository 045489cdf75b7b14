package router

import (
	"context"
	"errors"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/skylink-labs/acarsrouter/pkg/config"
	"github.com/skylink-labs/acarsrouter/pkg/egress"
	"github.com/skylink-labs/acarsrouter/pkg/ingest"
	"github.com/skylink-labs/acarsrouter/pkg/logging"
	"github.com/skylink-labs/acarsrouter/pkg/message"
	"github.com/skylink-labs/acarsrouter/pkg/queue"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("router already started")

// Router owns every sink, monitor and ingestion source.
type Router struct {
	cfg  *config.Config
	opts options

	mu      sync.Mutex
	started bool
	sets    map[message.Family]SinkSet
	writers []egress.Writer

	tasks   errgroup.Group
	sources sync.WaitGroup
}

// New creates a router for cfg. Nothing is bound until Start.
func New(cfg *config.Config, opts ...Option) *Router {
	return &Router{
		cfg:  cfg,
		opts: buildOptions(opts),
		sets: make(map[message.Family]SinkSet),
	}
}

// Start builds the sinks of both families and starts one monitor per
// family reading from acars and vdlm2. A nil channel skips that family.
// Sinks that fail to bind are logged and omitted.
func (r *Router) Start(acars, vdlm2 <-chan message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrAlreadyStarted
	}
	r.started = true

	inputs := map[message.Family]<-chan message.Message{
		message.ACARS: acars,
		message.VDLM2: vdlm2,
	}
	for _, f := range message.Families() {
		in := inputs[f]
		if in == nil {
			r.trace("no processed queue, family disabled", "family", f.String())
			continue
		}

		set := r.buildSinkSet(f)
		r.sets[f] = set
		if set.Empty() {
			r.opts.log.Info("no sinks configured", "family", f.String())
		}

		monitor := NewMonitor(f, in, set,
			WithLogger(r.opts.log),
			WithMetrics(r.opts.metrics),
		)
		r.tasks.Go(func() error {
			monitor.Run()
			return nil
		})
	}
	return nil
}

func (r *Router) buildSinkSet(f message.Family) SinkSet {
	fc := r.cfg.Family(f)
	log := r.opts.log.With("family", f.String())
	var set SinkSet

	if config.ShouldStart(fc.SendUDP) {
		udp, err := egress.NewUDPSender(f, fc.SendUDP, r.egressOptions(egress.WithMaxPacketSize(r.cfg.MaxUDPPacketSize))...)
		if err != nil {
			log.Error("failed to start udp sender", "error", err)
		} else {
			set.UDP = udp
			log.Info("udp sender started", "destinations", fc.SendUDP)
		}
	} else {
		r.trace("no udp destinations configured", "family", f.String())
	}

	if config.ShouldStart(fc.SendTCP) {
		for _, addr := range fc.SendTCP {
			name := "tcp-send " + addr
			w := egress.DialTCP(addr, r.egressOptions()...)
			set.Sinks = append(set.Sinks, r.startSender(name, f, w))
			log.Info("tcp sender started", "addr", addr)
		}
	} else {
		r.trace("no tcp destinations configured", "family", f.String())
	}

	if config.ShouldStart(fc.ServeTCP) {
		for _, port := range fc.ServeTCP {
			addr := net.JoinHostPort(r.cfg.ServeHost, port)
			q := queue.New(r.cfg.QueueSize)
			srv, err := egress.ListenBroadcast(addr, f, q, r.egressOptions()...)
			if err != nil {
				log.Error("failed to start broadcast server", "addr", addr, "error", err)
				continue
			}
			r.tasks.Go(func() error {
				srv.Run()
				return nil
			})
			set.Sinks = append(set.Sinks, Sink{Name: srv.Name(), Queue: q})
		}
	} else {
		r.trace("no tcp serve ports configured", "family", f.String())
	}

	if config.ShouldStart(fc.ServePubSub) {
		for _, entry := range fc.ServePubSub {
			port, err := config.ParsePort(entry)
			if err != nil {
				log.Error("failed to start pub/sub endpoint", "port", entry, "error", err)
				continue
			}
			w, err := egress.ListenPubSub(port, f, r.egressOptions(egress.WithTopic(r.cfg.Topic(f)))...)
			if err != nil {
				log.Error("failed to start pub/sub endpoint", "port", entry, "error", err)
				continue
			}
			set.Sinks = append(set.Sinks, r.startSender("pubsub-serve "+w.Addr(), f, w))
		}
	} else {
		r.trace("no pub/sub serve ports configured", "family", f.String())
	}

	return set
}

// startSender runs a Sender for w and returns its sink. r.mu is held.
func (r *Router) startSender(name string, f message.Family, w egress.Writer) Sink {
	q := queue.New(r.cfg.QueueSize)
	sender := egress.NewSender(name, f, w, q, r.egressOptions()...)
	r.writers = append(r.writers, w)
	r.tasks.Go(func() error {
		sender.Run()
		return nil
	})
	return Sink{Name: name, Queue: q}
}

func (r *Router) egressOptions(extra ...egress.Option) []egress.Option {
	return append([]egress.Option{
		egress.WithLogger(r.opts.log),
		egress.WithMetrics(r.opts.metrics),
		egress.WithSchedule(r.opts.schedule),
	}, extra...)
}

// StartSources starts every configured ingestion source. Each family's
// sources push onto the matching queue; a nil queue skips that family.
// Listeners that fail to bind are logged and omitted. Sources stop when
// ctx is cancelled.
func (r *Router) StartSources(ctx context.Context, acarsOut, vdlm2Out *queue.Queue) {
	outputs := map[message.Family]*queue.Queue{
		message.ACARS: acarsOut,
		message.VDLM2: vdlm2Out,
	}
	for _, f := range message.Families() {
		out := outputs[f]
		if out == nil {
			continue
		}
		fc := r.cfg.Family(f)
		opts := []ingest.Option{
			ingest.WithLogger(r.opts.log),
			ingest.WithMetrics(r.opts.metrics),
			ingest.WithSchedule(r.opts.schedule),
		}

		if !config.ShouldStart(fc.ReceiveTCP) {
			r.trace("no tcp feeders configured", "family", f.String())
		}
		for _, addr := range fc.ReceiveTCP {
			src := ingest.NewLineServer(addr, f, out, opts...)
			r.runSource(ctx, src.Name(), src.Run)
		}

		if !config.ShouldStart(fc.ReceivePubSub) {
			r.trace("no pub/sub feeders configured", "family", f.String())
		}
		for _, addr := range fc.ReceivePubSub {
			src := ingest.NewPubSubSource(addr, f, out, append(opts, ingest.WithTopic(r.cfg.Topic(f)))...)
			r.runSource(ctx, src.Name(), src.Run)
		}

		if !config.ShouldStart(fc.ListenTCP) {
			r.trace("no tcp listeners configured", "family", f.String())
		}
		for _, port := range fc.ListenTCP {
			addr := net.JoinHostPort(r.cfg.ServeHost, port)
			src, err := ingest.ListenTCP(addr, f, out, opts...)
			if err != nil {
				r.opts.log.Error("failed to start tcp listener", "family", f.String(), "addr", addr, "error", err)
				continue
			}
			r.runSource(ctx, src.Name(), src.Run)
		}

		if !config.ShouldStart(fc.ListenUDP) {
			r.trace("no udp listeners configured", "family", f.String())
		}
		for _, port := range fc.ListenUDP {
			addr := net.JoinHostPort(r.cfg.ServeHost, port)
			src, err := ingest.ListenUDP(addr, f, out, append(opts, ingest.WithReassemblyWindow(r.cfg.ReassemblyWindow))...)
			if err != nil {
				r.opts.log.Error("failed to start udp listener", "family", f.String(), "addr", addr, "error", err)
				continue
			}
			r.runSource(ctx, src.Name(), src.Run)
		}
	}
}

func (r *Router) runSource(ctx context.Context, name string, run func(context.Context)) {
	r.opts.log.Info("ingestion source started", "source", name)
	r.sources.Add(1)
	go func() {
		defer r.sources.Done()
		run(ctx)
	}()
}

// WaitSources blocks until every ingestion source has stopped.
func (r *Router) WaitSources() {
	r.sources.Wait()
}

// Wait blocks until every monitor and sink task has returned. Tasks return
// once their processed queue is closed and drained.
func (r *Router) Wait() error {
	return r.tasks.Wait()
}

// Shutdown waits for the sink tasks to drain. If ctx expires first, every
// writer is closed so senders blocked on an unreachable destination give
// up, and ctx's error is returned once they have.
func (r *Router) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- r.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	r.mu.Lock()
	writers := append([]egress.Writer(nil), r.writers...)
	r.mu.Unlock()
	for _, w := range writers {
		_ = w.Close()
	}
	<-done
	return ctx.Err()
}

// Summary returns the active sink names of every started family.
func (r *Router) Summary() map[message.Family][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[message.Family][]string, len(r.sets))
	for f, set := range r.sets {
		out[f] = set.Names()
	}
	return out
}

func (r *Router) trace(msg string, args ...any) {
	r.opts.log.Log(context.Background(), logging.LevelTrace, msg, args...)
}
