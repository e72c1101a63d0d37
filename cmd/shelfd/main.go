// Package main provides shelfd, the daemon that owns the game library and
// serves it over a Unix socket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/shelf/pkg/daemon"
	"github.com/jamesainslie/shelf/pkg/daemon/broadcaster"
	"github.com/jamesainslie/shelf/pkg/daemon/watcher"
	"github.com/jamesainslie/shelf/pkg/shelf/app"
	"github.com/jamesainslie/shelf/pkg/shelf/config"
	"github.com/jamesainslie/shelf/pkg/shelf/logging"
)

// Build-time variables set by go build -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfgFile    string
	consoleLvl string
	noScan     bool
)

var rootCmd = &cobra.Command{
	Use:           "shelfd",
	Short:         "Serve a game library over a Unix socket",
	Version:       version,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("shelfd {{.Version}} (commit %s, built %s)\n", commit, date))
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/shelf/config.yaml)")
	rootCmd.Flags().StringVar(&consoleLvl, "console-level", "", "also log to stderr at this level")
	rootCmd.Flags().BoolVar(&noScan, "no-initial-scan", false, "do not scan the library on startup")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "shelfd: %v\n", err)
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return err
	}
	if err := config.EnsureDataDir(); err != nil {
		return err
	}

	logOpts, err := cfg.LoggingOptions(consoleLvl)
	if err != nil {
		return err
	}
	if err := logging.Init(logOpts); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer func() { _ = logging.Close() }()
	log := logging.Get("daemon")

	socketPath := cfg.SocketPath()
	pidPath := cfg.PIDPath()
	dataDir := config.DataDir()
	statusPath := daemon.StatusPath(filepath.Dir(socketPath))
	dbPath := config.DefaultDBPath()

	// Report startup failures to a StartDaemon caller polling the status file.
	fail := func(err error) error {
		log.Error("startup failed", "error", err)
		_ = daemon.WriteStatusError(statusPath, err)
		return err
	}

	if err := daemon.RecoverFromStaleDaemon(pidPath, socketPath, dbPath); err != nil {
		if errors.Is(err, daemon.ErrDaemonAlreadyRunning) {
			return errors.New("shelfd is already running")
		}
		return fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, app.Options{DBPath: dbPath})
	if err != nil {
		return fail(err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("error closing library", "error", err)
		}
	}()

	b := broadcaster.New()
	defer b.Close()

	svc := daemon.NewService(a.Library, a.Store, a.Engine, b)

	if cfg.Daemon.Watch {
		w, err := watcher.New(cfg.Daemon.WatchDebounce)
		if err != nil {
			return fail(fmt.Errorf("creating watcher: %w", err))
		}
		defer w.Close()

		w.SetBroadcaster(b)
		if err := w.Watch(a.Library.Root()); err != nil {
			log.Warn("library root not watched", "root", a.Library.Root(), "error", err)
		}
		svc.SetWatcher(w)
		go w.Run(ctx, svc.OnLibraryChange)
	}

	srv, err := daemon.NewServer(daemon.Config{SocketPath: socketPath, DataDir: dataDir}, svc)
	if err != nil {
		return fail(fmt.Errorf("creating server: %w", err))
	}
	svc.SetShutdownFunc(stop)

	if err := daemon.WritePIDFile(pidPath); err != nil {
		_ = srv.Close()
		return fail(fmt.Errorf("writing PID file: %w", err))
	}
	defer func() {
		if err := daemon.RemovePIDFile(pidPath); err != nil {
			log.Warn("failed to remove PID file", "error", err)
		}
		_ = daemon.RemoveStatus(statusPath)
	}()

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		if err := srv.Close(); err != nil {
			log.Warn("error during shutdown", "error", err)
		}
	}()

	var initial sync.WaitGroup
	defer initial.Wait()
	if !noScan {
		initial.Add(1)
		go func() {
			defer initial.Done()
			if _, err := svc.RunScan(ctx); err != nil {
				log.Warn("initial scan failed", "error", err)
			}
		}()
	}

	if err := daemon.WriteStatusReady(statusPath); err != nil {
		log.Warn("failed to write status file", "error", err)
	}
	log.Info("shelfd started", "socket", socketPath, "root", a.Library.Root(), "pid", os.Getpid())

	if err := srv.Serve(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
