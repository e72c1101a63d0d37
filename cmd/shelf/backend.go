package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	shelfv1 "github.com/jamesainslie/shelf/pkg/api/shelf/v1"
	"github.com/jamesainslie/shelf/pkg/client"
	"github.com/jamesainslie/shelf/pkg/daemon/store"
	"github.com/jamesainslie/shelf/pkg/shelf/app"
	"github.com/jamesainslie/shelf/pkg/shelf/config"
	"github.com/jamesainslie/shelf/pkg/shelf/delivery"
)

// backend runs library operations either through shelfd or in-process.
type backend interface {
	Scan(ctx context.Context) (*store.ScanSummary, error)
	Library(ctx context.Context, includeBlacklist bool) (*shelfv1.Library, error)
	Files(ctx context.Context) ([]string, error)
	Download(ctx context.Context, path string, w io.Writer) (*client.DownloadInfo, error)
	DownloadImages(ctx context.Context) (*shelfv1.ImagesReport, error)
	Forget(ctx context.Context, path string) error
	Unblacklist(ctx context.Context, path string) error
	Prune(ctx context.Context, dir string) (int, error)
	Status(ctx context.Context) (*shelfv1.Status, error)
	Close() error
}

var (
	_ backend = (*client.Client)(nil)
	_ backend = (*localBackend)(nil)
)

// openBackend connects to a running daemon unless --no-daemon is set, and
// falls back to opening the library directly. The database allows a single
// process, so the fallback fails while an unresponsive daemon holds it.
func openBackend(ctx context.Context, cfg *config.Config) (backend, error) {
	if !viper.GetBool("no_daemon") && client.IsDaemonRunning(cfg.PIDPath()) {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		c, err := client.ConnectWithContext(dialCtx, cfg.SocketPath())
		if err == nil {
			printVerbose("using daemon at %s", cfg.SocketPath())
			return c, nil
		}
		printVerbose("failed to connect to daemon: %v", err)
	}

	printVerbose("opening library %s directly", cfg.Library.Root)
	a, err := app.Open(ctx, cfg, app.Options{})
	if err != nil {
		return nil, err
	}
	if a.Unconfigured {
		printInfo("Warning: catalog.client_id is not set; scans cannot match games")
	}
	return &localBackend{app: a}, nil
}

// localBackend serves operations from an in-process App.
type localBackend struct {
	app *app.App
}

func (b *localBackend) Scan(ctx context.Context) (*store.ScanSummary, error) {
	return b.app.Library.Scan(ctx)
}

func (b *localBackend) Library(_ context.Context, includeBlacklist bool) (*shelfv1.Library, error) {
	st := b.app.Store
	games, err := st.ListGames()
	if err != nil {
		return nil, err
	}
	lib := &shelfv1.Library{Root: b.app.Library.Root(), Games: games}
	if includeBlacklist {
		if lib.Blacklist, err = st.ListBlacklist(); err != nil {
			return nil, err
		}
	}
	if lib.LastScan, err = st.GetLastScan(); err != nil {
		return nil, err
	}
	return lib, nil
}

func (b *localBackend) Files(context.Context) ([]string, error) {
	return b.app.Library.FileNames()
}

func (b *localBackend) Download(_ context.Context, path string, w io.Writer) (*client.DownloadInfo, error) {
	game, err := b.app.Store.GetGame(path)
	if err != nil {
		return nil, err
	}
	size, err := b.app.Engine.SizeFor(game)
	if err != nil {
		return nil, err
	}

	info := &client.DownloadInfo{Filename: b.app.Engine.FilenameFor(game), Size: size}
	report := b.app.Engine.Deliver(game, w)
	info.Written = report.Bytes
	if report.State != delivery.StateCompleted {
		return info, report.Err
	}
	return info, nil
}

func (b *localBackend) DownloadImages(ctx context.Context) (*shelfv1.ImagesReport, error) {
	r, err := b.app.Library.DownloadImages(ctx)
	if err != nil {
		return nil, err
	}
	return &shelfv1.ImagesReport{Fetched: r.Fetched, Cached: r.Cached, NoCover: r.NoCover, Failed: r.Failed}, nil
}

func (b *localBackend) Forget(_ context.Context, path string) error {
	return b.app.Store.DeleteGame(path)
}

func (b *localBackend) Unblacklist(_ context.Context, path string) error {
	return b.app.Store.DeleteBlacklist(path)
}

func (b *localBackend) Prune(_ context.Context, dir string) (int, error) {
	return b.app.Store.DeleteUnder(dir)
}

// Status describes the local library. Running is false.
func (b *localBackend) Status(context.Context) (*shelfv1.Status, error) {
	st := b.app.Store
	status := &shelfv1.Status{
		Root:          b.app.Library.Root(),
		DirectoryMode: b.app.Engine.DirectoryMode(),
	}
	var err error
	if status.Games, err = st.CountGames(); err != nil {
		return nil, err
	}
	if status.Blacklisted, err = st.CountBlacklist(); err != nil {
		return nil, err
	}
	if status.LastScan, err = st.GetLastScan(); err != nil {
		return nil, err
	}
	return status, nil
}

func (b *localBackend) Close() error {
	return b.app.Close()
}

// gamePath resolves a command-line game argument. Relative paths are taken
// relative to the library root, matching how scans record them.
func gamePath(cfg *config.Config, arg string) (string, error) {
	if filepath.IsAbs(arg) {
		return filepath.Clean(arg), nil
	}
	root, err := filepath.Abs(cfg.Library.Root)
	if err != nil {
		return "", fmt.Errorf("resolving library root: %w", err)
	}
	return filepath.Join(root, arg), nil
}
