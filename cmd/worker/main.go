package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"waresponder/internal/config"
	"waresponder/internal/gateway"
	"waresponder/internal/httpserver"
	"waresponder/internal/logging"
	"waresponder/internal/observability"
	"waresponder/internal/store/pg"
	workerproc "waresponder/internal/worker"
)

func main() {
	cfg := config.LoadWorker()
	logging.Init("worker", cfg.LogFormat)

	pollInterval, err := time.ParseDuration(cfg.PollInterval)
	if err != nil {
		slog.Error("invalid WORKER_POLL_INTERVAL", "value", cfg.PollInterval, "err", err)
		os.Exit(1)
	}
	retryDelay, err := time.ParseDuration(cfg.RetryDelay)
	if err != nil {
		slog.Error("invalid WORKER_RETRY_DELAY", "value", cfg.RetryDelay, "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{})
	if err != nil {
		slog.Error("worker db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	st := pg.New(db)

	startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
	defer startupCancel()
	if err := db.Ping(startupCtx); err != nil {
		slog.Error("db not reachable", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	gw := gateway.New(time.Duration(cfg.GatewayTimeoutSeconds) * time.Second)
	limiter := rate.NewLimiter(rate.Limit(cfg.GatewayRPS), cfg.GatewayBurst)

	processor := workerproc.NewProcessor(st, gw, limiter)
	processor.BatchSize = cfg.BatchSize
	processor.MaxRetries = cfg.MaxRetries
	processor.RetryDelay = retryDelay
	processor.DelayMin = time.Duration(cfg.ItemDelayMinMs) * time.Millisecond
	processor.DelayMax = time.Duration(cfg.ItemDelayMaxMs) * time.Millisecond

	// health server plus the manual run trigger
	s := httpserver.New()
	(&httpserver.BroadcastTrigger{Runner: processor}).Register(s.Mux)
	s.Mux.HandleFunc("/healthz", httpserver.Healthz())
	s.Mux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second, func(c context.Context) error {
		return db.Ping(c)
	}))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpserver.Logging(s.Mux),
	}
	srvErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker http listening", "port", cfg.Port)
		srvErrCh <- srv.ListenAndServe()
	}()

	metricsSrv := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: promhttp.Handler(),
	}
	go func() {
		slog.Info("worker metrics listening", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker metrics server failed", "err", err)
		}
	}()

	// periodic drain of due queue items
	pollDoneCh := make(chan struct{})
	go func() {
		defer close(pollDoneCh)
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		slog.Info("worker polling", "interval", pollInterval)
		for {
			start := time.Now()
			processed, err := processor.Run(ctx, "")
			if err != nil && err != context.Canceled {
				slog.Error("worker run failed", "err", err)
			} else if processed > 0 {
				slog.Info("worker run finished",
					"processed", processed,
					"duration", time.Since(start),
				)
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-srvErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("worker http server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("worker shutdown", "signal", sig.String())
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	select {
	case <-pollDoneCh:
	case <-time.After(10 * time.Second):
		slog.Info("worker shutdown timeout waiting for poll loop")
	}
}
