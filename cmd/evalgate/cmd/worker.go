package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/evalgate/evalgate/internal/config"
	"github.com/evalgate/evalgate/internal/service"
)

var metricsAddr string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background task worker",
	Long: `Worker polls the store for PENDING tasks and executes them under a
concurrency bound. It runs until interrupted; in-flight tasks finish
before shutdown.

With --metrics-addr, Prometheus metrics are served on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}

		logger := newLogger(cfg.Logging)
		shutdown, err := setupTracing(cfg.Tracing)
		if err != nil {
			return err
		}
		defer func() { _ = shutdown(context.Background()) }()

		store, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		metrics := service.NewMetrics(reg)

		if metricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("metrics server failed", "error", err)
				}
			}()
			defer func() { _ = srv.Close() }()
			logger.Info("serving metrics", "addr", metricsAddr)
		}

		engine := service.NewEvalService(logger, metrics)
		tasks := service.NewTaskService(store, engine, logger, metrics)
		worker := service.NewWorker(tasks, store, service.WorkerConfig{
			MaxConcurrent: cfg.Worker.MaxConcurrent,
			PollInterval:  cfg.Worker.PollIntervalDuration(),
			TaskTimeout:   cfg.Worker.TaskTimeoutDuration(),
		}, logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	workerCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address for the Prometheus /metrics endpoint (e.g. :9100)")
	rootCmd.AddCommand(workerCmd)
}
