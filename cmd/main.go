package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yunbug/forward-optimal/config"
	"github.com/yunbug/forward-optimal/internal/adminserver"
	"github.com/yunbug/forward-optimal/internal/forwarder"
	"github.com/yunbug/forward-optimal/internal/metrics"
	"github.com/yunbug/forward-optimal/internal/probe"
	"github.com/yunbug/forward-optimal/internal/selector"
	"github.com/yunbug/forward-optimal/internal/state"
	"github.com/yunbug/forward-optimal/internal/target"
	"github.com/yunbug/forward-optimal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cell := state.NewCell()

	collector := metrics.NewCollector(1000, log)
	collector.Start(ctx)

	engine := selector.New(
		targetSpecs(cfg),
		newScorer(cfg),
		cell,
		time.Duration(cfg.UpdateInterval)*time.Second,
		nil,
		log,
		collector,
	)
	go engine.Run(ctx)

	srv := forwarder.New(forwarder.Config{
		BindAddr:      cfg.BindAddr,
		HeaderTagging: cfg.HeaderTagging(),
		DialTimeout:   cfg.Forward.DialTimeoutDuration(),
		Logger:        log,
	}, cell, collector)

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen(ctx)
	}()

	adminErrCh := make(chan error, 1)
	var admin *adminserver.Server
	if cfg.Admin.Address != "" {
		admin, err = adminserver.New(cfg.Admin.Address, setupRouter(collector, cell))
		if err != nil {
			log.Error("Failed to create admin server", slog.Any("err", err))
			os.Exit(1)
		}
		go func() {
			adminErrCh <- admin.Start()
		}()
	}

	log.Info("Service started",
		slog.String("bind_addr", cfg.BindAddr),
		slog.Int("targets", len(cfg.Targets)),
		slog.Int("update_interval_s", cfg.UpdateInterval),
		slog.Bool("proxy_protocol", cfg.HeaderTagging()))

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if admin != nil {
			if err := admin.Shutdown(context.Background()); err != nil {
				log.Error("Error during admin shutdown", slog.Any("err", err))
			}
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting forwarder", slog.Any("err", err))
			os.Exit(1)
		}
	case err := <-adminErrCh:
		if err != nil {
			log.Error("Error starting admin server", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func targetSpecs(cfg *config.Config) []target.Spec {
	specs := make([]target.Spec, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		specs = append(specs, target.Spec{Name: t.Name, Addr: t.Addr})
	}
	return specs
}

func newScorer(cfg *config.Config) *probe.Scorer {
	return probe.NewScorer(
		cfg.Probing.Count,
		cfg.Probing.ConnectTimeoutDuration(),
		cfg.Probing.ProbeDelayDuration(),
		cfg.Probing.FailurePenaltyDuration(),
	)
}
