package main

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tiancaiamao/hostbridge/internal/console"
	"github.com/tiancaiamao/hostbridge/pkg/config"
	"github.com/tiancaiamao/hostbridge/pkg/hostapp"
	"github.com/tiancaiamao/hostbridge/pkg/metrics"
	"github.com/tiancaiamao/hostbridge/pkg/telemetry"
)

var hostOpts struct {
	address   string
	port      int
	framing   string
	polyHaven bool
	hyper3D   bool
	autoStart bool
	headless  bool
	debugAddr string
}

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Run the simulated host application",
	Long: `Run the simulated host: a single-threaded loop owning a scene, with an
operator console to start and stop the command server and toggle the
Poly Haven and Hyper3D integrations.`,
	RunE: runHost,
}

func init() {
	addHostFlags(hostCmd.Flags())
}

func addHostFlags(fs *pflag.FlagSet) {
	fs.StringVar(&hostOpts.address, "address", "", "command server bind address")
	fs.IntVar(&hostOpts.port, "port", 0, "command server port")
	fs.StringVar(&hostOpts.framing, "framing", "", "wire framing (brace|depth)")
	fs.BoolVar(&hostOpts.polyHaven, "polyhaven", false, "enable the Poly Haven integration")
	fs.BoolVar(&hostOpts.hyper3D, "hyper3d", false, "enable the Hyper3D integration")
	fs.BoolVar(&hostOpts.autoStart, "start", false, "start the command server immediately")
	fs.BoolVar(&hostOpts.headless, "headless", false, "no console; implies --start")
	fs.StringVar(&hostOpts.debugAddr, "http", "", "serve pprof and metrics on this address (e.g. ':6060')")
}

// applyHostFlags copies explicitly set flags over the loaded config.
func applyHostFlags(fs *pflag.FlagSet, hc *config.HostConfig) error {
	if fs.Changed("address") {
		hc.Address = hostOpts.address
	}
	if fs.Changed("port") {
		hc.Port = hostOpts.port
	}
	if fs.Changed("framing") {
		hc.Framing = hostOpts.framing
	}
	if fs.Changed("polyhaven") {
		hc.UsePolyHaven = hostOpts.polyHaven
	}
	if fs.Changed("hyper3d") {
		hc.UseHyper3D = hostOpts.hyper3D
	}
	if fs.Changed("start") {
		hc.AutoStart = hostOpts.autoStart
	}
	if hostOpts.headless {
		hc.AutoStart = true
	}
	return cfg.Validate()
}

func runHost(cmd *cobra.Command, _ []string) error {
	if err := applyHostFlags(cmd.Flags(), &cfg.Host); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, "host")
	if err != nil {
		return err
	}
	defer flush(shutdownTracing)

	m := metrics.New()
	app, err := hostapp.New(hostapp.Options{
		Config:   cfg.Host,
		Logger:   log.Logger,
		Recorder: m,
	})
	if err != nil {
		return err
	}

	if hostOpts.debugAddr != "" {
		go serveDebug(hostOpts.debugAddr, m)
	}

	loopDone := make(chan error, 1)
	go func() { loopDone <- app.Run(ctx) }()

	if hostOpts.headless {
		return <-loopDone
	}

	// The console owns the terminal; keep log lines out of it.
	log.SetConsoleEnabled(false)
	err = console.New(app, m, os.Stdout).Run(ctx, historyPath())
	cancel()
	if loopErr := <-loopDone; err == nil {
		err = loopErr
	}
	return err
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".hostbridge", "history")
}

// serveDebug exposes pprof (registered on the default mux) and metrics.
func serveDebug(addr string, m *metrics.Metrics) {
	metrics.NewHandler(m).RegisterRoutes(http.DefaultServeMux)
	log.Info("debug server listening", "addr", addr)
	log.Info("debug endpoints", "pprof", "/debug/pprof/", "metrics", "/metrics", "prometheus", "/metrics/prometheus")
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Error("debug server error", "error", err)
	}
}

func flush(shutdown telemetry.ShutdownFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn("telemetry shutdown", "error", err)
	}
}
