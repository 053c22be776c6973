// Command slidepi is the SlidePi kiosk slideshow daemon. It serves the browser
// UI and the JSON/SSE API and owns the slideshow playback engine.
package main

import (
	"context"
	"embed"
	"flag"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/brianhealey/slidepi/internal/api"
	"github.com/brianhealey/slidepi/internal/config"
	"github.com/brianhealey/slidepi/internal/controller"
	"github.com/brianhealey/slidepi/internal/events"
	"github.com/brianhealey/slidepi/internal/identity"
	"github.com/brianhealey/slidepi/internal/lock"
	"github.com/brianhealey/slidepi/internal/maintenance"
	"github.com/brianhealey/slidepi/internal/media"
	"github.com/brianhealey/slidepi/internal/remote"
	"github.com/brianhealey/slidepi/internal/screensaver"
	"github.com/brianhealey/slidepi/internal/slideshow"
	"github.com/brianhealey/slidepi/internal/zeroconf"
)

//go:embed all:web/dist
var webFiles embed.FS

func main() {
	var (
		addr     = flag.String("addr", "", "HTTP listen address (default :8080)")
		cfgDir   = flag.String("config-dir", "", "config directory (default: ~/.config/slidepi)")
		mediaDir = flag.String("media-dir", "", "uploaded image directory (default: <config-dir>/media)")
		optsFile = flag.String("config", "", "options YAML file")
		envFile  = flag.String("env", ".env", "dotenv file with SLIDEPI_* overrides")
		backend  = flag.String("store", "", "snapshot store: json or bolt")
		debug    = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	// Configure logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	opts, err := config.LoadOptions(*optsFile, *envFile)
	if err != nil {
		slog.Error("cannot load options", "err", err)
		os.Exit(1)
	}
	// Flags win over the options file and the environment.
	if *addr != "" {
		opts.Server.Addr = *addr
	}
	if *cfgDir != "" {
		opts.Storage.ConfigDir = *cfgDir
	}
	if *mediaDir != "" {
		opts.Storage.MediaDir = *mediaDir
	}
	if *backend != "" {
		opts.Storage.Backend = *backend
	}
	if err := opts.Validate(); err != nil {
		slog.Error("invalid options", "err", err)
		os.Exit(1)
	}

	// Resolve directories
	if opts.Storage.ConfigDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			slog.Error("cannot determine home directory", "err", err)
			os.Exit(1)
		}
		opts.Storage.ConfigDir = filepath.Join(home, ".config", "slidepi")
	}
	if opts.Storage.MediaDir == "" {
		opts.Storage.MediaDir = filepath.Join(opts.Storage.ConfigDir, "media")
	}
	if err := os.MkdirAll(opts.Storage.ConfigDir, 0755); err != nil {
		slog.Error("cannot create config directory", "path", opts.Storage.ConfigDir, "err", err)
		os.Exit(1)
	}

	// Graceful shutdown context
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Snapshot store
	store, err := opts.OpenStore(opts.Storage.ConfigDir)
	if err != nil {
		slog.Error("cannot open store", "backend", opts.Storage.Backend, "err", err)
		os.Exit(1)
	}

	// Media library
	lib, err := media.New(media.Options{
		Dir:            opts.Storage.MediaDir,
		MaxUploadBytes: int64(opts.Media.MaxUploadMB) << 20,
		MaxPixels:      opts.Media.MaxMegapixels * 1_000_000,
		MinFreeBytes:   uint64(opts.Media.MinFreeMB) << 20,
		ThumbWidth:     opts.Media.ThumbWidth,
	})
	if err != nil {
		slog.Error("media library initialization failed", "err", err)
		os.Exit(1)
	}

	// Event bus
	bus := events.NewBus()

	// Screensaver inhibitor, hooked in before the engine starts so the
	// first Idle->Playing transition is seen.
	var hooks []func(slideshow.Transition)
	if opts.Screensaver.Inhibit {
		svc, closeBus, err := screensaver.Connect()
		if err != nil {
			slog.Warn("screensaver inhibit unavailable", "err", err)
		} else {
			inh := screensaver.New(svc)
			hooks = append(hooks, inh.Hook)
			defer closeBus()
			defer inh.Close()
		}
	}

	// Controller
	info := identity.Info(opts.Storage.ConfigDir)
	ctrl, err := controller.New(controller.Options{
		Store:        store,
		Bus:          bus,
		Library:      lib,
		Lock:         lock.Options{ConfigDir: opts.Storage.ConfigDir},
		LockPassword: opts.Lock.Password,
		StartLocked:  opts.Lock.StartLocked,
		Info:         info,
		Hooks:        hooks,
	})
	if err != nil {
		slog.Error("controller initialization failed", "err", err)
		os.Exit(1)
	}

	// Serial remote
	if opts.Remote.Port != "" {
		rem := remote.New(ctrl, remote.Options{Port: opts.Remote.Port, Baud: opts.Remote.Baud})
		go rem.Run(ctx)
	}

	// Backups
	backups := maintenance.New(maintenance.Options{
		ConfigDir: opts.Storage.ConfigDir,
		MediaDir:  opts.Storage.MediaDir,
		BackupDir: filepath.Join(opts.Storage.ConfigDir, "backups"),
		Keep:      opts.Backup.Keep,
		Hour:      2,
	})
	if opts.Backup.Enabled {
		go backups.Start(ctx)
	}

	// Zeroconf mDNS registration
	if opts.Zeroconf.Enabled {
		name := opts.Zeroconf.Name
		if name == "" {
			name = info.Hostname
		}
		zc := zeroconf.New(name, listenPort(opts.Server.Addr), info.Version)
		go func() {
			if err := zc.Start(ctx); err != nil {
				slog.Warn("zeroconf failed", "err", err)
			}
		}()
	}

	// HTTP server
	webFS, err := fs.Sub(webFiles, "web/dist")
	if err != nil {
		slog.Error("failed to load web files", "err", err)
		os.Exit(1)
	}
	router := api.NewRouter(ctrl, bus, api.Options{
		Media:          lib.Handler(),
		Backups:        backups,
		UI:             webFS,
		MaxUploadBytes: 16 * int64(opts.Media.MaxUploadMB) << 20, // up to 16 files per request
	})

	srv := &http.Server{
		Addr:         opts.Server.Addr,
		Handler:      router,
		ReadTimeout:  5 * time.Minute, // large uploads over slow Wi-Fi
		WriteTimeout: 0,               // 0 = no timeout (needed for SSE)
		IdleTimeout:  120 * time.Second,
		// SSE handlers return when the signal context is cancelled.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		slog.Info("SlidePi listening",
			"addr", opts.Server.Addr,
			"config", opts.Storage.ConfigDir,
			"media", opts.Storage.MediaDir,
			"store", store.Path(),
			"version", info.Version,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()

	// Graceful HTTP shutdown
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("server shutdown error", "err", err)
	}

	// Stop timers and flush pending snapshot writes
	if err := ctrl.Close(); err != nil {
		slog.Warn("failed to flush snapshot", "err", err)
	}
	if c, ok := store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close store", "err", err)
		}
	}

	slog.Info("shutdown complete")
}

// listenPort extracts the port from a listen address, defaulting to 80.
func listenPort(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 80
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return 80
	}
	return port
}
