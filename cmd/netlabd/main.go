// SPDX-License-Identifier: GPL-3.0-or-later

// Command netlabd serves the network-lab API: topology editing,
// packet-path simulation, scenarios, submissions, and grading.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZhuChongjing/NetLabX/internal/closers"
	"github.com/ZhuChongjing/NetLabX/internal/config"
	"github.com/ZhuChongjing/NetLabX/internal/dnslab"
	"github.com/ZhuChongjing/NetLabX/internal/logging"
	"github.com/ZhuChongjing/NetLabX/internal/metrics"
	"github.com/ZhuChongjing/NetLabX/internal/scenario"
	"github.com/ZhuChongjing/NetLabX/internal/store"
	"github.com/ZhuChongjing/NetLabX/internal/web"
	"github.com/ZhuChongjing/NetLabX/sim"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "netlabd:", err)
		os.Exit(1)
	}
}

func run() error {
	configFile := flag.String("config", "netlabd.ini", "path to the INI configuration file")
	listen := flag.String("listen", "", "listen address (overrides config)")
	dbFile := flag.String("db", "", "SQLite database path (overrides config)")
	scenarioDir := flag.String("scenarios", "", "scenario directory (overrides config)")
	staticDir := flag.String("static", "", "static files directory (overrides config)")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	flag.Parse()

	cfg, err := config.New(*configFile)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *dbFile != "" {
		cfg.DBFile = *dbFile
	}
	if *scenarioDir != "" {
		cfg.ScenarioDir = *scenarioDir
	}
	if *staticDir != "" {
		cfg.StaticDir = *staticDir
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := &closers.Pool{Logger: logger}
	defer pool.Close()

	st, err := store.Open(cfg.DBFile)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	pool.Add("store", st)

	scenarios, err := scenario.NewStore(cfg.ScenarioDir, logger)
	if err != nil {
		return fmt.Errorf("opening scenario directory: %w", err)
	}
	pool.Add("scenarios", scenarios)
	if err := scenarios.Watch(func(name string) {
		logger.Info("scenario changed on disk", slog.String("name", name))
	}); err != nil {
		return fmt.Errorf("watching scenario directory: %w", err)
	}

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector, err = metrics.NewCollector(nil)
		if err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
	}

	var lab *dnslab.Server
	if cfg.DNSLabEnabled {
		lab = dnslab.New(cfg.DNSLabListen, logger)
		if err := lab.Start(); err != nil {
			return fmt.Errorf("starting DNS lab: %w", err)
		}
		pool.Add("dnslab", lab)
	}

	engine := &sim.Engine{Logger: logger, MaxHops: cfg.MaxHops}
	srv := web.New(&web.Config{
		Logger:              logger,
		Engine:              engine,
		Store:               st,
		Scenarios:           scenarios,
		Metrics:             collector,
		DNSLab:              lab,
		TeacherPasswordHash: cfg.TeacherPasswordHash,
		StaticDir:           cfg.StaticDir,
	})

	// bring back the topology from the previous run
	if snap, err := st.LoadTopology(ctx); err != nil {
		logger.Warn("restoring topology", slog.Any("err", err))
	} else if snap != nil {
		srv.SetTopology(ctx, snap)
		logger.Info("topology restored", slog.Int("devices", len(snap.Devices)))
	}

	httpServer := &http.Server{
		Addr:         cfg.Listen,
		Handler:      srv.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(
			"serving",
			slog.String("listen", cfg.Listen),
			slog.String("db", cfg.DBFile),
			slog.String("scenarios", cfg.ScenarioDir),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", slog.Any("err", err))
	}
	return nil
}
