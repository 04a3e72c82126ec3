package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("havdeck v%s\n", version)
	fmt.Println("Control daemon for Haivision playback appliances")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  havdeck [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Daemon that maintains an authenticated session with a Haivision")
	fmt.Println("  playback appliance, mirrors its state over the socket.io realtime")
	fmt.Println("  channel, and exposes playback control to hosts over a websocket")
	fmt.Println("  surface and a Unix domain socket (see havdeck-ctl).")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (flags override file values)")
	fmt.Println()
	fmt.Println("  -host string")
	fmt.Println("        Device hostname or IP address")
	fmt.Println()
	fmt.Println("  -port int")
	fmt.Printf("        Device HTTP port (default %d)\n", defaultDevicePort)
	fmt.Println()
	fmt.Println("  -https")
	fmt.Println("        Use HTTPS/WSS to reach the device")
	fmt.Println()
	fmt.Println("  -username string")
	fmt.Println("        Device login username (default \"haiadmin\")")
	fmt.Println()
	fmt.Println("  -password string")
	fmt.Println("        Device login password")
	fmt.Println()
	fmt.Println("  -retry-interval-sec int")
	fmt.Printf("        Reconnect wait after a failure in seconds (default %d)\n", defaultRetryIntervalSec)
	fmt.Println()
	fmt.Println("  -reboot-wait-sec int")
	fmt.Printf("        Reconnect wait after a requested reboot in seconds (default %d)\n", defaultRebootWaitSec)
	fmt.Println()
	fmt.Println("  -preview")
	fmt.Println("        Enable preview thumbnail polling (default true)")
	fmt.Println()
	fmt.Println("  -preview-interval-ms int")
	fmt.Printf("        Preview poll interval while playing in ms (default %d)\n", defaultPreviewIntervalMS)
	fmt.Println()
	fmt.Println("  -surface-port int")
	fmt.Printf("        Host surface websocket listener port (default %d)\n", defaultSurfacePort)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultIPCSocket)
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start with a config file")
	fmt.Println("  havdeck -config /etc/havdeck/config.yaml")
	fmt.Println()
	fmt.Println("  # Start with flags only")
	fmt.Println("  havdeck -host 192.168.1.50 -password secret")
	fmt.Println()
	fmt.Println("  # Send a command to a running daemon")
	fmt.Println("  havdeck-ctl play-pause")
	fmt.Println()
}

func main() {
	// Check for version/help flags early
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath = flag.String("config", "", "Path to YAML config file")

		host     = flag.String("host", "", "Device hostname or IP address")
		port     = flag.Int("port", defaultDevicePort, "Device HTTP port")
		https    = flag.Bool("https", false, "Use HTTPS/WSS to reach the device")
		username = flag.String("username", "haiadmin", "Device login username")
		password = flag.String("password", "", "Device login password")

		retryIntervalSec = flag.Int("retry-interval-sec", defaultRetryIntervalSec, "Reconnect wait after a failure in seconds")
		rebootWaitSec    = flag.Int("reboot-wait-sec", defaultRebootWaitSec, "Reconnect wait after a requested reboot in seconds")

		previewEnabled    = flag.Bool("preview", true, "Enable preview thumbnail polling")
		previewIntervalMS = flag.Int("preview-interval-ms", defaultPreviewIntervalMS, "Preview poll interval while playing in ms")

		surfacePort   = flag.Int("surface-port", defaultSurfacePort, "Host surface websocket listener port")
		ipcSocketPath = flag.String("ipc-socket", defaultIPCSocket, "Unix domain socket path for IPC")

		logLevelStr = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		showVersion = flag.Bool("version", false, "Print version and exit")
		showHelp    = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	// File first, then flags the user actually set on top.
	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	var overrides FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			overrides.DeviceHost = host
		case "port":
			overrides.DevicePort = port
		case "https":
			overrides.DeviceHTTPS = https
		case "username":
			overrides.DeviceUsername = username
		case "password":
			overrides.DevicePassword = password
		case "retry-interval-sec":
			overrides.RetryIntervalSec = retryIntervalSec
		case "reboot-wait-sec":
			overrides.RebootWaitSec = rebootWaitSec
		case "preview":
			overrides.PreviewEnabled = previewEnabled
		case "preview-interval-ms":
			overrides.PreviewIntervalMS = previewIntervalMS
		case "surface-port":
			overrides.SurfacePort = surfacePort
		case "ipc-socket":
			overrides.IPCSocketPath = ipcSocketPath
		case "log-level":
			overrides.LogLevel = logLevelStr
		}
	})
	overrides.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Central event bus into the daemon loop, and the broadcast fan-out
	// toward surface clients.
	events := make(chan Event, 64)
	broadcasts := make(chan StateBroadcast, 128)

	ctrl := NewController(cfg, events, broadcasts, logger)

	server := NewServer(logger, events, ServerConfig{})
	mux := http.NewServeMux()
	server.Register(mux, "/ws")

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Surface.Port),
		Handler: mux,
	}

	logger.Debug("starting havdeck", "version", version)
	logger.Info("listening",
		"device", fmt.Sprintf("%s:%d", cfg.Device.Host, cfg.Device.Port),
		"surface_port", cfg.Surface.Port,
		"ipc", cfg.IPC.SocketPath)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		server.Hub().Run(gctx)
		return nil
	})

	g.Go(func() error {
		RunBroadcaster(gctx, server.Hub(), broadcasts, logger)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutCtx)
	})

	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("surface server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return runIPCServer(gctx, cfg.IPC.SocketPath, events, logger)
	})

	g.Go(func() error {
		ctrl.Start(gctx)
		return nil
	})

	// SIGHUP reloads the config file and rebuilds the device session with the
	// new credentials. Without a config file there is nothing to reload.
	g.Go(func() error {
		if *configPath == "" {
			<-gctx.Done()
			return nil
		}

		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				loaded, err := LoadConfigFile(*configPath)
				if err != nil {
					logger.Error("config reload failed", "error", err)
					continue
				}
				overrides.Apply(&loaded)
				if err := ctrl.UpdateConfig(loaded); err != nil {
					logger.Error("config reload rejected", "error", err)
					continue
				}
				logger.Info("configuration reloaded", "path", *configPath)
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("havdeck exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("havdeck stopped")
}
