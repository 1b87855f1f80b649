//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"sparkrt/app"
	"sparkrt/hal"
	"sparkrt/internal/config"
	"sparkrt/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		headless   hal.HeadlessConfig
		configPath string
		metricsOn  bool
		listen     string
	)
	flag.BoolVar(&headless.Enabled, "headless", false, "Run without a window.")
	flag.IntVar(&headless.Hz, "hz", 60, "Runner frame rate in headless mode.")
	flag.Uint64Var(&headless.Frames, "frames", 0, "Stop after N frames in headless mode (0 = run forever).")
	flag.StringVar(&configPath, "config", "", "Path to a TOML configuration file.")
	flag.BoolVar(&metricsOn, "metrics", false, "Serve Prometheus metrics (overrides [metrics] enabled).")
	flag.StringVar(&listen, "listen", "", "Metrics listen address (overrides [metrics] listen_address).")
	flag.Parse()

	if err := run(headless, configPath, metricsOn, listen); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(headless hal.HeadlessConfig, configPath string, metricsOn bool, listen string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if metricsOn {
		cfg.Metrics.Enabled = true
	}
	if listen != "" {
		cfg.Metrics.ListenAddress = listen
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	appCfg := app.Config{File: cfg}
	if cfg.Metrics.Enabled {
		col := metrics.NewCollector()
		appCfg.Metrics = col
		reg := prometheus.NewRegistry()
		reg.MustRegister(col, collectors.NewGoCollector())
		g.Go(func() error { return serveMetrics(ctx, cfg.Metrics, reg) })
	}

	newApp := func(h hal.HAL) func() error { return app.New(ctx, h, appCfg) }
	g.Go(func() error {
		// The runner's return ends the metrics server too.
		defer stop()
		var err error
		if headless.Enabled {
			headless.TickHz = cfg.Tick.Hz
			err = hal.RunHeadless(ctx, newApp, headless)
		} else {
			err = hal.RunWindow(newApp, hal.WindowConfig{TickHz: cfg.Tick.Hz})
		}
		if errors.Is(err, app.ErrHalted) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return g.Wait()
}

func serveMetrics(ctx context.Context, mc config.MetricsConfig, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle(mc.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: mc.ListenAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
