// Package app assembles a library, its store, and the delivery engine from
// configuration. shelfd owns one for its lifetime; the shelf CLI opens one
// directly when no daemon is running.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/jamesainslie/shelf/pkg/daemon/store"
	"github.com/jamesainslie/shelf/pkg/shelf/catalog"
	"github.com/jamesainslie/shelf/pkg/shelf/config"
	"github.com/jamesainslie/shelf/pkg/shelf/delivery"
	"github.com/jamesainslie/shelf/pkg/shelf/imagecache"
	"github.com/jamesainslie/shelf/pkg/shelf/library"
	"github.com/jamesainslie/shelf/pkg/shelf/logging"
	"github.com/jamesainslie/shelf/pkg/shelf/resolver"
)

// App holds the wired components.
type App struct {
	Config  *config.Config
	Store   *store.Store
	Images  *imagecache.Cache
	Library *library.Library
	Engine  *delivery.Engine

	// Unconfigured is set when no catalog credentials were given. Lookups
	// then fail without blacklisting anything.
	Unconfigured bool
}

// Options overrides parts of the wiring. The zero value opens the database
// at config.DefaultDBPath and builds the catalog client from the config.
type Options struct {
	DBPath string

	// InMemory opens a throwaway store and ignores DBPath.
	InMemory bool

	// Catalog replaces the configured catalog client.
	Catalog catalog.Client
}

// Open validates cfg and wires the components. The caller must Close the
// returned App.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logging.Get("app")

	bufSize, err := cfg.BufferSize()
	if err != nil {
		return nil, err
	}

	// Stored game paths are absolute regardless of the working directory.
	root, err := filepath.Abs(cfg.Library.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving library root: %w", err)
	}

	st, err := openStore(ctx, opts, log)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Store: st}

	client := opts.Catalog
	resolverOpts := resolver.Options{
		Concurrency:      cfg.Resolver.Concurrency,
		BlacklistOnError: cfg.Resolver.BlacklistOnError,
	}
	if client == nil {
		if cfg.Catalog.ClientID == "" {
			log.Warn("catalog client_id is not set, lookups will fail and nothing is blacklisted")
			client = catalog.Unconfigured{}
			resolverOpts.BlacklistOnError = false
			a.Unconfigured = true
		} else {
			client, err = catalog.NewHTTPClient(ctx, catalog.Options{
				BaseURL:      cfg.Catalog.BaseURL,
				TokenURL:     cfg.Catalog.TokenURL,
				ClientID:     cfg.Catalog.ClientID,
				ClientSecret: cfg.Catalog.ClientSecret,
				Timeout:      cfg.Catalog.Timeout,
			})
			if err != nil {
				_ = st.Close()
				return nil, fmt.Errorf("creating catalog client: %w", err)
			}
		}
	}

	images, err := imagecache.Open(ctx, cfg.ImagesBucketURL(),
		catalog.NewDownloadClient(cfg.Catalog.Timeout, logging.Get("images")))
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	a.Images = images

	r := resolver.New(client, st, resolverOpts)
	a.Library = library.New(library.Options{
		Root:       root,
		Extensions: cfg.Library.Extensions,
	}, st, r, images)

	a.Engine = delivery.New(delivery.Options{
		DirectoryMode: cfg.Delivery.DirectoryMode,
		BufferSize:    bufSize,
	}, images)

	return a, nil
}

func openStore(ctx context.Context, opts Options, log *logging.Logger) (*store.Store, error) {
	var (
		st  *store.Store
		err error
	)
	if opts.InMemory {
		st, err = store.OpenInMemory()
	} else {
		path := opts.DBPath
		if path == "" {
			path = config.DefaultDBPath()
		}
		st, err = store.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening library database: %w", err)
	}

	migrated, err := st.Migrate(ctx, func(p store.MigrationProgress) {
		log.Debug("migrating library database",
			"to", p.ToVersion, "done", p.EntriesDone, "total", p.EntriesTotal)
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrating library database: %w", err)
	}
	if migrated > 0 {
		log.Info("migrated library database", "migrations", migrated)
	}
	return st, nil
}

// Close releases the image bucket and the store.
func (a *App) Close() error {
	var errs []error
	if a.Images != nil {
		errs = append(errs, a.Images.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
