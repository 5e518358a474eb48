package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/chaz8081/tp25ctl/internal/ble"
	"github.com/chaz8081/tp25ctl/internal/config"
	"github.com/chaz8081/tp25ctl/internal/controller"
	"github.com/chaz8081/tp25ctl/internal/device"
	"github.com/chaz8081/tp25ctl/internal/fakedevice"
	"github.com/chaz8081/tp25ctl/internal/metrics"
	"github.com/chaz8081/tp25ctl/internal/peripheral"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/tp25ctl/config.yaml)")
	simulate := flag.Bool("simulate", false, "use a simulated thermometer instead of Bluetooth")
	scan := flag.Bool("scan", false, "list nearby thermometers and exit")
	initConfig := flag.Bool("init-config", false, "write the default config file and exit")
	flag.Parse()

	if *initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			fatal("init config", err)
		}
		if path == "" {
			fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
			return
		}
		fmt.Printf("Wrote %s\n", path)
		return
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal("config", err)
	}
	if *simulate {
		cfg.Simulate.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		fatal("config validation", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	if *scan {
		if err := runScan(cfg); err != nil {
			fatal("scan", err)
		}
		return
	}

	printBanner(cfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	met := metrics.New(reg)
	if cfg.Metrics.ListenAddr != "" {
		go serveMetrics(cfg.Metrics.ListenAddr, reg)
	}

	mgr := controller.New(newFinder(cfg), controller.Options{
		QueueSize:        cfg.Controller.QueueSize,
		RetryBase:        cfg.Controller.RetryBase,
		RetryMax:         cfg.Controller.RetryMax,
		TransferLogLimit: cfg.Controller.TransferLogLimit,
		Metrics:          met,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First signal drains the queue and disconnects, a second one aborts.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("Shutting down", "signal", sig)
		mgr.Stop()
		<-sigCh
		cancel()
	}()

	go watchState(ctx, mgr)
	go func() {
		c := &console{mgr: mgr, out: os.Stdout}
		err := c.run(ctx, os.Stdin)
		switch {
		case errors.Is(err, errQuit):
			mgr.Stop()
		case err != nil && !errors.Is(err, context.Canceled):
			slog.Warn("Console stopped", "error", err)
		}
	}()

	fmt.Println("Type \"help\" for commands. Ctrl+C to quit.")
	if err := mgr.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fatal("controller", err)
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}
	return config.Default(), nil
}

func newFinder(cfg *config.Config) peripheral.Finder {
	if cfg.Simulate.Enabled {
		opts := fakedevice.DefaultOptions()
		opts.ReportInterval = cfg.Simulate.ReportInterval
		return fakedevice.New(opts)
	}
	return ble.NewFinder(ble.NewTinyGoAdapter(), ble.FinderOptions{
		Name:           cfg.Device.Name,
		ScanTimeout:    cfg.Device.ScanTimeout,
		WriteCharUUID:  cfg.Device.WriteCharUUID,
		NotifyCharUUID: cfg.Device.NotifyCharUUID,
	})
}

func runScan(cfg *config.Config) error {
	fmt.Printf("Scanning for %q for %s...\n", cfg.Device.Name, cfg.Device.ScanTimeout)
	devices, err := ble.ScanForDevices(context.Background(), ble.NewTinyGoAdapter(), cfg.Device.Name, cfg.Device.ScanTimeout)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No devices found.")
		return nil
	}
	for _, d := range devices {
		fmt.Printf("  %-20s %s  RSSI %d\n", d.Name, d.Address, d.RSSI)
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Metrics server stopped", "error", err)
	}
}

// watchState logs device state changes and asks for alarm thresholds each
// time a device connects.
func watchState(ctx context.Context, mgr *controller.Manager) {
	var last device.State
	for st := range mgr.Subscribe(ctx, 8) {
		if st.Connected && !last.Connected {
			if err := mgr.Submit(ctx, controller.ReportAllProfiles{}); err != nil && !errors.Is(err, controller.ErrStopped) {
				slog.Warn("Requesting alarm thresholds", "error", err)
			}
		}
		if st.String() != last.String() {
			slog.Info("Device", "state", st)
		}
		if st.AnyAlarm() && !last.AnyAlarm() {
			slog.Warn("Probe alarm sounding, type \"ack\" to silence", "state", st)
		}
		last = st
	}
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== tp25ctl ===")
	if cfg.Simulate.Enabled {
		fmt.Printf("  Device:  simulated (report every %s)\n", cfg.Simulate.ReportInterval)
	} else {
		fmt.Printf("  Device:  %q (scan %s)\n", cfg.Device.Name, cfg.Device.ScanTimeout)
	}
	fmt.Printf("  Queue:   %d requests\n", cfg.Controller.QueueSize)
	fmt.Printf("  Retry:   %s..%s\n", cfg.Controller.RetryBase, cfg.Controller.RetryMax)
	if cfg.Metrics.ListenAddr != "" {
		fmt.Printf("  Metrics: http://%s/metrics\n", cfg.Metrics.ListenAddr)
	}
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("===============")
}

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}
