package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/portkeeper/internal/config"
	"github.com/loykin/portkeeper/internal/controlloop"
	"github.com/loykin/portkeeper/internal/instancelock"
	"github.com/loykin/portkeeper/internal/journal"
	"github.com/loykin/portkeeper/internal/journal/factory"
	"github.com/loykin/portkeeper/internal/logger"
	"github.com/loykin/portkeeper/internal/metrics"
	"github.com/loykin/portkeeper/internal/server"
	"github.com/loykin/portkeeper/internal/supervisor"
)

func createServeCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the supervisor daemon",
		Long: `Serve loads the TOML config, takes the single-instance lock, adopts an
already-running service if the PID record still matches a live process,
and then runs the control loop and the HTTP API until SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(flags.ConfigPath)
		},
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := slog.LevelInfo
	if cfg.Daemon.Debug {
		level = slog.LevelDebug
	}
	log := logger.New(level, true)
	slog.SetDefault(log)

	lock, err := instancelock.Acquire(cfg.Daemon.LockPort)
	if err != nil {
		return err
	}
	defer lock.Release()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	var metricsSrv *http.Server
	if cfg.Daemon.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.Daemon.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server", "error", err)
			}
		}()
		log.Info("metrics listening", "addr", cfg.Daemon.MetricsAddr)
	}

	var sink journal.Sink = journal.Nop{}
	if cfg.Journal.DSN != "" {
		sink, err = factory.NewSinkFromDSN(cfg.Journal.DSN)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
	}
	defer sink.Close()

	sup, err := supervisor.New(cfg.Spec(), supervisor.Options{
		Journal: sink,
		Logger:  log,
	})
	if err != nil {
		return err
	}

	loop := controlloop.New(sup, controlloop.Options{
		Interval: cfg.Daemon.TickInterval,
		Logger:   log,
		Render: func(st supervisor.State) {
			log.Info("service status", "state", st.String())
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiSrv := server.NewServer(cfg.Daemon.APIAddr, "/api", sup, loop)
	log.Info("daemon started",
		"service", cfg.Service.Name,
		"port", cfg.Service.Port,
		"api", cfg.Daemon.APIAddr,
		"state", sup.State().String())

	loop.Run(ctx)

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}
