package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hors-sit/pesitd/internal/codec"
	"github.com/hors-sit/pesitd/internal/config"
	"github.com/hors-sit/pesitd/internal/logger"
	"github.com/hors-sit/pesitd/internal/metrics"
	promcollector "github.com/hors-sit/pesitd/internal/metrics/prometheus"
	"github.com/hors-sit/pesitd/internal/observer"
	"github.com/hors-sit/pesitd/internal/observer/logsink"
	"github.com/hors-sit/pesitd/internal/observer/promsink"
	"github.com/hors-sit/pesitd/internal/responder"
	"github.com/hors-sit/pesitd/internal/streamio"
	"github.com/hors-sit/pesitd/internal/supervisor"
	"github.com/hors-sit/pesitd/internal/transport"
	"github.com/hors-sit/pesitd/internal/validator"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the pesitd server",
	Long: `Start the pesitd server with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/pesitd/config.yaml.

Examples:
  # Start with the default config
  pesitd start

  # Start with a custom config file
  pesitd start --config /etc/pesitd/config.yaml

  # Start with environment variable overrides
  PESITD_LOGGING_LEVEL=DEBUG pesitd start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("pesitd starting",
		"version", Version,
		"config_source", getConfigSource(GetConfigFile()),
		"listen_addr", cfg.Server.ListenAddr,
		"server_id", cfg.Server.ServerID,
	)

	var metricsSet metrics.Set = metrics.Noop()
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metricsSet = promcollector.New(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logger.Info("metrics server listening", "addr", cfg.Metrics.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	} else {
		logger.Info("metrics disabled")
	}

	obs := observer.Multi{logsink.New(), promsink.New(metricsSet)}

	v := validator.New(cfg.Server.ServerID, cfg.Server.SupportedVersion, cfg.Server.StrictValidation,
		cfg.PartnerStore(), cfg.FileStore())

	resp := responder.New(responder.Config{
		Validator: v,
		OpenSource: func(virtualFileID string) (streamio.Source, error) {
			return cfg.OpenSource(ctx, virtualFileID)
		},
		OpenSink: func(virtualFileID string, resumeFrom uint32) (streamio.Sink, error) {
			return cfg.OpenSink(ctx, virtualFileID, resumeFrom)
		},
		Limiter: cfg.RateLimiter(),
		Obs:     obs,
	})

	sup := supervisor.New(supervisor.Config{
		MaxConnections: cfg.Server.MaxConnections,
		ShutdownGrace:  cfg.Server.ShutdownGrace,
		UnknownPolicy:  codec.Lax,
	}, resp.Handle, obs)

	var ln *transport.Listener
	if cfg.Server.TLS.Enabled {
		ln, err = transport.ListenTLS(cfg.Server.ListenAddr, cfg.TransportTLSConfig())
	} else {
		ln, err = transport.ListenTCP(cfg.Server.ListenAddr)
	}
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.ListenAddr, err)
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- sup.Serve(ctx, ln)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("pesitd is running, press Ctrl+C to stop")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := sup.Shutdown(context.Background()); err != nil {
			logger.Error("supervisor shutdown error", "error", err)
		}
		if err := <-serverDone; err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		if metricsServer != nil {
			_ = metricsServer.Close()
		}
		logger.Info("pesitd stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if metricsServer != nil {
			_ = metricsServer.Close()
		}
		if err != nil {
			logger.Error("server error", "error", err)
			return err
		}
		logger.Info("pesitd stopped")
	}

	return nil
}
