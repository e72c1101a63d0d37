// Package library runs scan passes over a game library root: list the
// candidates, match them against the catalog, and record the outcome.
package library

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/shelf/pkg/daemon/store"
	"github.com/jamesainslie/shelf/pkg/shelf/imagecache"
	"github.com/jamesainslie/shelf/pkg/shelf/logging"
	"github.com/jamesainslie/shelf/pkg/shelf/resolver"
	"github.com/jamesainslie/shelf/pkg/shelf/scanner"
	"github.com/jamesainslie/shelf/pkg/shelf/types"
)

// ErrScanInProgress is returned when Scan is called while another pass runs.
var ErrScanInProgress = errors.New("scan already in progress")

// imageWorkers bounds concurrent cover downloads.
const imageWorkers = 4

// Store is the persistence a Library needs. *store.Store satisfies it.
type Store interface {
	resolver.Store
	CountGames() (int64, error)
	ListGames() ([]*types.DetectedGame, error)
	SetLastScan(summary *store.ScanSummary) error
}

// Options configures a Library.
type Options struct {
	Root       string
	Extensions []string
}

// Library ties the scanner, resolver, store, and image cache together.
type Library struct {
	opts     Options
	store    Store
	resolver *resolver.Resolver
	images   *imagecache.Cache
	log      *logging.Logger

	scanning atomic.Bool
}

// New creates a Library. images may be nil, in which case DownloadImages
// is a no-op.
func New(opts Options, st Store, r *resolver.Resolver, images *imagecache.Cache) *Library {
	return &Library{
		opts:     opts,
		store:    st,
		resolver: r,
		images:   images,
		log:      logging.Get("library"),
	}
}

// Root returns the library root.
func (l *Library) Root() string {
	return l.opts.Root
}

// Scanning reports whether a scan pass is running.
func (l *Library) Scanning() bool {
	return l.scanning.Load()
}

// Scan runs one pass. Only one pass runs at a time.
func (l *Library) Scan(ctx context.Context) (*store.ScanSummary, error) {
	if !l.scanning.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer l.scanning.Store(false)

	start := time.Now()
	l.log.Info("scan started", "root", l.opts.Root)

	candidates, err := scanner.ListCandidates(l.opts.Root, l.opts.Extensions)
	if err != nil {
		l.log.Error("scan failed", "root", l.opts.Root, "error", err)
		return nil, err
	}

	res, resolveErr := l.resolver.Resolve(ctx, candidates)

	total, err := l.store.CountGames()
	if err != nil {
		return nil, fmt.Errorf("counting games: %w", err)
	}

	summary := &store.ScanSummary{
		Root:        l.opts.Root,
		FinishedAt:  time.Now().UTC(),
		Duration:    time.Since(start),
		Candidates:  len(candidates),
		NewGames:    len(res.Matched),
		Blacklisted: res.Blacklisted,
		Errored:     res.Errored,
		TotalGames:  total,
	}

	if resolveErr != nil {
		l.log.Error("scan aborted", "root", l.opts.Root, "error", resolveErr)
		return summary, resolveErr
	}

	l.log.Info(fmt.Sprintf("Scan finished: found %d new games, blacklisted %d, %d games total",
		summary.NewGames, summary.Blacklisted, summary.TotalGames),
		"candidates", summary.Candidates,
		"lookups", res.Lookups,
		"errored", summary.Errored,
		"elapsed", summary.Duration.Round(time.Millisecond))

	if err := l.store.SetLastScan(summary); err != nil {
		l.log.Warn("failed to record scan summary", "error", err)
	}
	return summary, nil
}

// FileNames returns the names of all candidate entries under the root,
// whether or not they matched.
func (l *Library) FileNames() ([]string, error) {
	return scanner.FileNames(l.opts.Root, l.opts.Extensions)
}

// Games returns all detected games ordered by path.
func (l *Library) Games() ([]*types.DetectedGame, error) {
	return l.store.ListGames()
}

// ImagesReport summarises a DownloadImages call.
type ImagesReport struct {
	Fetched int
	Cached  int
	NoCover int
	Failed  int
}

// DownloadImages fetches the cover of every detected game that is not yet
// in the image cache. Individual failures are logged and counted.
func (l *Library) DownloadImages(ctx context.Context) (*ImagesReport, error) {
	report := &ImagesReport{}
	if l.images == nil {
		return report, nil
	}

	games, err := l.store.ListGames()
	if err != nil {
		return nil, fmt.Errorf("listing games: %w", err)
	}

	var mu sync.Mutex
	count := func(n *int) {
		mu.Lock()
		*n++
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imageWorkers)

	for _, game := range games {
		rec := game.Record
		if rec.CoverID == "" || rec.CoverURL == "" {
			report.NoCover++
			continue
		}
		g.Go(func() error {
			ok, err := l.images.Exists(gctx, rec.CoverID)
			if err == nil && ok {
				count(&report.Cached)
				return nil
			}
			if err := l.images.Fetch(gctx, rec.CoverID, rec.CoverURL); err != nil {
				l.log.Warn("failed to fetch cover", "path", game.Path, "url", rec.CoverURL, "error", err)
				count(&report.Failed)
				return nil
			}
			count(&report.Fetched)
			return nil
		})
	}
	_ = g.Wait()

	l.log.Info("cover download finished",
		"fetched", report.Fetched,
		"cached", report.Cached,
		"no_cover", report.NoCover,
		"failed", report.Failed)

	return report, ctx.Err()
}
