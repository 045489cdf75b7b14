package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skylink-labs/acarsrouter/pkg/config"
	"github.com/skylink-labs/acarsrouter/pkg/metrics"
	"github.com/skylink-labs/acarsrouter/pkg/queue"
	"github.com/skylink-labs/acarsrouter/pkg/router"
)

// shutdownTimeout bounds how long queued messages may take to drain.
const shutdownTimeout = 5 * time.Second

func newServeCmd(g *globalFlags) *cobra.Command {
	var rf *routerFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the router",
		Long: `Run the router until interrupted.

Every family's ingestion sources feed its processed queue; every processed
message is sent to all configured sinks of its family. Sinks that cannot
bind are logged and skipped.`,
		Example: `  # Forward ACARS from acarsdec to two UDP listeners and serve it on TCP 15550
  acarsrouter serve --receive-tcp-acars acarsdec:5550 \
    --send-udp-acars 127.0.0.1:5555,10.0.0.2:5555 --serve-tcp-acars 15550

  # Use a configuration file
  acarsrouter serve -c router.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g, rf)
			if err != nil {
				return err
			}
			log, closeLog, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
	rf = addRouterFlags(cmd)
	return cmd
}

// serve runs the router until ctx is cancelled, then drains and stops it.
func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	m := metrics.New()
	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(cfg.MetricsAddr, m, log)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	acars := queue.New(cfg.QueueSize)
	vdlm2 := queue.New(cfg.QueueSize)

	r := router.New(cfg, router.WithLogger(log), router.WithMetrics(m))
	if err := r.Start(acars.C(), vdlm2.C()); err != nil {
		return err
	}
	for f, sinks := range r.Summary() {
		log.Info("family ready", "family", f.String(), "sinks", sinks)
	}
	r.StartSources(ctx, acars, vdlm2)
	log.Info("router running")

	<-ctx.Done()
	log.Info("shutting down")

	r.WaitSources()
	acars.Close()
	vdlm2.Close()

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := r.Shutdown(sctx); err != nil {
		log.Warn("shutdown incomplete, undelivered messages dropped", "error", err)
	}
	log.Info("router stopped")
	return nil
}

func startMetricsServer(addr string, m *metrics.Metrics, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}()
	log.Info("metrics endpoint listening", "addr", addr)
	return srv
}
