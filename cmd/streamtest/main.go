// cmd/streamtest/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FairForge/streamtest/internal/config"
	"github.com/FairForge/streamtest/internal/harness"
	"github.com/FairForge/streamtest/internal/metrics"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath  = flag.String("config", "", "optional yaml config file")
		host        = flag.String("host", "", "target host (default 127.0.0.1)")
		port        = flag.Int("port", 0, "target UDP port (default 9999)")
		workers     = flag.Int("workers", -1, "concurrent senders (default 2)")
		messages    = flag.Int("messages", -1, "records per worker (default 500)")
		ratePerSec  = flag.Float64("rate", 0, "records per second per worker (default 100)")
		metricsAddr = flag.String("metrics-addr", "", "serve prometheus metrics on this addr during the run")
		noManage    = flag.Bool("no-manage", false, "never build or launch the collection service")
	)
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg := config.Default()
	if *configPath != "" {
		if err := config.LoadFile(cfg, *configPath); err != nil {
			logger.Fatal("load config", zap.Error(err))
		}
	}
	config.LoadFromEnv(cfg)
	if *host != "" {
		cfg.Target.Host = *host
	}
	if *port > 0 {
		cfg.Target.Port = *port
	}
	if *workers >= 0 {
		cfg.Load.Workers = *workers
	}
	if *messages >= 0 {
		cfg.Load.MessagesPerWorker = *messages
	}
	if *ratePerSec > 0 {
		cfg.Load.RatePerWorker = *ratePerSec
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if *noManage {
		cfg.Server.Manage = false
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	// An interrupt cancels the run outright. No compensating abort-session
	// command exists in the protocol.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Warn("interrupted, aborting run")
		cancel()
	}()

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           m.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	h := harness.New(cfg, nil, m, logger)
	report, err := h.Run(ctx)
	if err != nil {
		logger.Error("run aborted", zap.Error(err))
		os.Exit(1)
	}
	if !report.Pass() {
		os.Exit(1)
	}
}
