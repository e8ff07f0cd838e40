// Command blockcached runs the block-cache reverse proxy: it serves byte
// ranges of large objects from a local sharded block cache, filling on miss
// from a configured origin.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/originblock/blockcache/internal/logger"
	"github.com/originblock/blockcache/internal/telemetry"
	"github.com/originblock/blockcache/pkg/api"
	"github.com/originblock/blockcache/pkg/blockstore"
	"github.com/originblock/blockcache/pkg/config"
	"github.com/originblock/blockcache/pkg/fillcoordinator"
	"github.com/originblock/blockcache/pkg/gateway"
	"github.com/originblock/blockcache/pkg/metrics"
	"github.com/originblock/blockcache/pkg/originmap"
	"github.com/originblock/blockcache/pkg/server"

	// Registers the Prometheus PipelineMetrics constructor.
	_ "github.com/originblock/blockcache/pkg/metrics/prometheus"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `blockcached - block-cache reverse proxy

Usage:
  blockcached <command> [flags]

Commands:
  init     Write a starter configuration file
  start    Start the cache server
  version  Show version information

Flags:
  --config string    Path to config file (default: $XDG_CONFIG_HOME/blockcache/config.yaml)
  --force            Force overwrite existing config file (init command only)

Environment Variables:
  All configuration options can be overridden with BLOCKCACHE_<SECTION>_<KEY>.
  Example: BLOCKCACHE_LOGGING_LEVEL=DEBUG blockcached start
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit()
	case "start":
		runStart()
	case "help", "--help", "-h":
		fmt.Print(usage)
	case "version", "--version", "-v":
		fmt.Printf("blockcached %s (commit: %s, built: %s)\n", version, commit, date)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to config file")
	force := fs.Bool("force", false, "Force overwrite existing config file")
	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("failed to parse flags: %v", err)
	}

	var configPath string
	var err error
	if *configFile != "" {
		configPath = *configFile
		err = config.InitConfigToPath(*configFile, *force)
	} else {
		configPath, err = config.InitConfig(*force)
	}
	if err != nil {
		log.Fatalf("failed to initialize config: %v", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
}

func runStart() {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to config file")
	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("failed to parse flags: %v", err)
	}

	cfg, err := config.MustLoad(*configFile)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "blockcached",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "blockcached",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		log.Fatalf("failed to initialize profiling: %v", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("configuration loaded", "cache_root", cfg.Cache.Root, "workers", cfg.Server.Workers)

	var pipelineMetrics metrics.PipelineMetrics
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		reg := metrics.InitRegistry()
		pipelineMetrics = metrics.NewPipelineMetrics()
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped with error", "error", err)
			}
		}()
		logger.Info("metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("metrics disabled")
	}

	store, err := blockstore.New(cfg.Cache.Root)
	if err != nil {
		log.Fatalf("failed to open block store at %s: %v", cfg.Cache.Root, err)
	}

	origins := originmap.New()
	for _, o := range cfg.Origins {
		origins.Set(o.Host, originmap.Origin{Scheme: o.Scheme, Authority: o.Authority})
	}
	logger.Info("origin map loaded", "count", origins.Count())

	if cfg.Server.API.Enabled {
		apiEnabled := true
		apiSrv := api.NewServer(api.APIConfig{Enabled: &apiEnabled, Port: cfg.Server.API.Port}, origins, store)
		go func() {
			if err := apiSrv.Start(ctx); err != nil {
				logger.Error("control-plane server stopped with error", "error", err)
			}
		}()
		logger.Info("control-plane server enabled", "port", apiSrv.Port())
	}

	fill := fillcoordinator.New(http.DefaultClient, store, pipelineMetrics)

	gw := gateway.New(gateway.Config{
		CacheRoot:                cfg.Cache.Root,
		DefaultBlockSize:         cfg.Cache.DefaultBlockSize,
		MaxCoverageBlockSkipSize: cfg.Cache.MaxCoverageBlockSkipSize,
	}, origins, store, fill, http.DefaultClient, pipelineMetrics)

	srv := server.New(server.Config{
		ListenAddress:   cfg.Server.ListenAddress,
		Workers:         cfg.Server.Workers,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, gw)

	serverDone := make(chan error, 1)
	go func() { serverDone <- srv.Serve(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("blockcached running", "address", cfg.Server.ListenAddress)

	select {
	case <-sigCh:
		signal.Stop(sigCh)
		logger.Info("shutdown signal received")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("server shutdown error", "error", err)
			os.Exit(1)
		}
	case err := <-serverDone:
		signal.Stop(sigCh)
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	logger.Info("blockcached stopped")
}
