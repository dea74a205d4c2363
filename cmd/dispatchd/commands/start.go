package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fmuellner/telepathy-mission-control/internal/logger"
	"github.com/fmuellner/telepathy-mission-control/internal/metrics"
	"github.com/fmuellner/telepathy-mission-control/internal/telemetry"
	"github.com/fmuellner/telepathy-mission-control/pkg/accountstore"
	"github.com/fmuellner/telepathy-mission-control/pkg/clientproxy"
	"github.com/fmuellner/telepathy-mission-control/pkg/config"
	"github.com/fmuellner/telepathy-mission-control/pkg/controlplane/api"
	"github.com/fmuellner/telepathy-mission-control/pkg/controlplane/api/events"
	"github.com/fmuellner/telepathy-mission-control/pkg/dispatcher"
	"github.com/fmuellner/telepathy-mission-control/pkg/dispatchop"
	"github.com/fmuellner/telepathy-mission-control/pkg/filterchain"
	"github.com/fmuellner/telepathy-mission-control/pkg/filterplugin"
	"github.com/fmuellner/telepathy-mission-control/pkg/handlermap"
	"github.com/fmuellner/telepathy-mission-control/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the dispatchd daemon",
	Long: `Start the dispatchd channel dispatch operation daemon.

By default, the daemon runs in the background. Use --foreground to run in
the foreground for debugging or when managed by a process supervisor.

Examples:
  # Start in background (default)
  dispatchd start

  # Start in foreground
  dispatchd start --foreground

  # Start with custom config file
  dispatchd start --config /etc/dispatchd/config.yaml

  # Start with environment variable overrides
  DISPATCHD_LOGGING_LEVEL=DEBUG dispatchd start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/dispatchd/dispatchd.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/dispatchd/dispatchd.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "dispatchd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "dispatchd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	fmt.Println("dispatchd - Channel dispatch operation daemon")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	} else {
		logger.Info("Profiling disabled")
	}

	// Dispatch/API metrics are always registered against the default
	// registry; /metrics on the control-plane API exposes them. Metrics.Enabled
	// only controls whether that scrape endpoint is worth pointing a
	// collector at, a deployment concern outside dispatchd itself.
	metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		logger.Info("Metrics enabled", "path", "/metrics", "port", cfg.ControlPlane.Port)
	} else {
		logger.Info("Metrics registered but scrape endpoint not advertised")
	}

	// Account storage: construct and register the configured backend.
	accounts := accountstore.NewManager()
	backend, err := buildAccountBackend(ctx, cfg.AccountStore)
	if err != nil {
		return fmt.Errorf("failed to initialize account store: %w", err)
	}
	if err := backend.Ready(ctx); err != nil {
		return fmt.Errorf("account store %q not ready: %w", backend.Name(), err)
	}
	accounts.Register(backend)
	logger.Info("Account store ready", "driver", cfg.AccountStore.Driver, "backend", backend.Name())

	// Filter chain: builtins first, then the hot-reloaded rule directory.
	chain := filterchain.New()
	for _, b := range cfg.FilterPlugins.Builtin {
		direction := filterchain.DirectionIncoming
		if b.Direction == "outgoing" {
			direction = filterchain.DirectionOutgoing
		}
		if _, err := filterplugin.LoadBuiltin(chain, b.Name, b.ChannelType, direction); err != nil {
			return fmt.Errorf("failed to load builtin filter %q: %w", b.Name, err)
		}
		logger.Info("Builtin filter installed", "name", b.Name, "channel_type", b.ChannelType, "direction", b.Direction)
	}

	var loader *filterplugin.Loader
	if cfg.FilterPlugins.RulesDir != "" {
		loader = filterplugin.NewLoader(cfg.FilterPlugins.RulesDir, chain)
		if err := loader.LoadAll(); err != nil {
			return fmt.Errorf("failed to load filter rules: %w", err)
		}
		logger.Info("Filter rules loaded", "dir", cfg.FilterPlugins.RulesDir, "count", len(loader.Loaded()))

		go func() {
			if err := loader.Watch(ctx); err != nil && ctx.Err() == nil {
				logger.Error("filter rules watcher stopped", "error", err)
			}
		}()
		defer func() { _ = loader.Close() }()
	}

	reg2 := registry.New(cfg.Dispatch.ClientNamespace)
	hmap := handlermap.New()
	proxy := clientproxy.New(nil)
	counter := dispatchop.NewCounter()

	disp := dispatcher.New(cfg.Dispatch.ObjectPathBase, reg2, hmap, chain, proxy, counter, cfg.Dispatch.CallTimeout)

	hub := events.NewHub()
	disp.SetDefaultSink(hub)

	go disp.Run(ctx)

	apiServer, err := api.NewServer(api.Config{
		Port:          cfg.ControlPlane.Port,
		ReadTimeout:   cfg.ControlPlane.ReadTimeout,
		WriteTimeout:  cfg.ControlPlane.WriteTimeout,
		IdleTimeout:   cfg.ControlPlane.IdleTimeout,
		JWTSigningKey: cfg.ControlPlane.JWTSigningKey,
		JWTIssuer:     cfg.ControlPlane.JWTIssuer,
		TokenTTL:      cfg.ControlPlane.TokenTTL,
	}, disp, reg2, hub, accounts)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}
	logger.Info("Control-plane API configured", "port", cfg.ControlPlane.Port)

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("dispatchd is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		disp.Stop()
		logger.Info("dispatchd stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("dispatchd stopped")
	}

	return nil
}

// startDaemon starts the server as a background daemon process.
func startDaemon() error {
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		stateDir = filepath.Join(homeDir, ".local", "state")
	}
	dispatchdStateDir := filepath.Join(stateDir, "dispatchd")

	if err := os.MkdirAll(dispatchdStateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	pidPath := pidFile
	if pidPath == "" {
		pidPath = filepath.Join(dispatchdStateDir, "dispatchd.pid")
	}

	if _, err := os.Stat(pidPath); err == nil {
		pidData, err := os.ReadFile(pidPath)
		if err == nil {
			var pid int
			if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err == nil {
				if process, err := os.FindProcess(pid); err == nil {
					if err := process.Signal(syscall.Signal(0)); err == nil {
						return fmt.Errorf("dispatchd is already running (PID %d)", pid)
					}
				}
			}
		}
		_ = os.Remove(pidPath)
	}

	logPath := logFile
	if logPath == "" {
		logPath = filepath.Join(dispatchdStateDir, "dispatchd.log")
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	daemonArgs := []string{"start", "--foreground", "--pid-file", pidPath}
	if GetConfigFile() != "" {
		daemonArgs = append(daemonArgs, "--config", GetConfigFile())
	}

	cmd := exec.Command(executable, daemonArgs...)

	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	cmd.Stdout = logFileHandle
	cmd.Stderr = logFileHandle
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		_ = logFileHandle.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	_ = logFileHandle.Close()

	fmt.Printf("dispatchd started in background (PID %d)\n", cmd.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", logPath)
	fmt.Println("\nUse 'dispatchd status' to check server status")

	return nil
}
