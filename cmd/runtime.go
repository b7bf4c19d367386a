package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"firestige.xyz/udptrain/internal/config"
	"firestige.xyz/udptrain/internal/core"
	"firestige.xyz/udptrain/internal/log"
	"firestige.xyz/udptrain/internal/metrics"
)

// setup loads configuration and initializes logging.
func setup(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := log.Init(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

// signalContext cancels the returned context on SIGINT or SIGTERM. The
// handler only cancels; the run loop observes it and cleans up itself.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case sig := <-sigChan:
			log.GetLogger().WithField("signal", sig.String()).Warn("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// startMetrics starts the metrics HTTP server if enabled. The returned stop
// function is always safe to call.
func startMetrics(ctx context.Context, cfg config.MetricsConfig) (func(), error) {
	if !cfg.Enabled {
		log.GetLogger().Debug("metrics server disabled")
		return func() {}, nil
	}

	server := metrics.NewServer(cfg.Listen, cfg.Path)
	if err := server.Start(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrBind, err)
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			log.GetLogger().WithError(err).Error("error stopping metrics server")
		}
	}, nil
}
