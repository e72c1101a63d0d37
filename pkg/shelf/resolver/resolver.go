// Package resolver matches scan candidates against the metadata catalog and
// records each one as a detected game or a blacklisted path.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/shelf/pkg/daemon/store"
	"github.com/jamesainslie/shelf/pkg/shelf/catalog"
	"github.com/jamesainslie/shelf/pkg/shelf/logging"
	"github.com/jamesainslie/shelf/pkg/shelf/types"
)

// Store is the persistence the resolver needs. *store.Store satisfies it.
type Store interface {
	KnownPaths(kind store.Kind) (map[string]struct{}, error)
	SaveBlacklist(entry *types.BlacklistEntry) (bool, error)
	SaveGames(games []*types.DetectedGame) ([]string, error)
}

// Options configures a Resolver.
type Options struct {
	// Concurrency caps in-flight lookups. Zero or less means unbounded.
	Concurrency int

	// BlacklistOnError records failed lookups in the blacklist with reason
	// types.ReasonLookupError. When false they are only counted and the
	// path is retried on the next pass.
	BlacklistOnError bool

	// Logger overrides the "resolver" component logger.
	Logger *logging.Logger
}

// Result summarises one Resolve call.
type Result struct {
	// Matched holds the games persisted by this call, in candidate order.
	Matched []*types.DetectedGame

	// Blacklisted counts paths newly blacklisted by this call.
	Blacklisted int

	// Errored counts paths left unrecorded because the lookup or a store
	// write failed, including matches skipped because the path was
	// blacklisted meanwhile.
	Errored int

	// Lookups counts catalog queries issued.
	Lookups int

	// Skipped counts candidates already known or blacklisted before the call,
	// duplicates within the input, and misses another writer blacklisted
	// first.
	Skipped int

	Elapsed time.Duration
}

// Resolver runs the concurrent match pass.
type Resolver struct {
	client catalog.Client
	store  Store
	opts   Options
	log    *logging.Logger
}

// New creates a Resolver.
func New(client catalog.Client, st Store, opts Options) *Resolver {
	log := opts.Logger
	if log == nil {
		log = logging.Get("resolver")
	}
	return &Resolver{client: client, store: st, opts: opts, log: log}
}

type staged struct {
	index int
	game  *types.DetectedGame
}

// Resolve looks up every candidate that is neither a known game nor
// blacklisted, one lookup per path. Misses are blacklisted as they arrive.
// Hits are collected and written in a single batch once every lookup has
// finished. Failed lookups are never retried within a call.
//
// The returned error is non-nil when the known-path snapshot or the final
// batch cannot be read or written, or when ctx was cancelled. The Result is
// still populated with what was recorded.
func (r *Resolver) Resolve(ctx context.Context, candidates []types.CandidatePath) (*Result, error) {
	start := time.Now()
	result := &Result{}

	known, err := r.store.KnownPaths(store.KindGame)
	if err != nil {
		return result, fmt.Errorf("loading known games: %w", err)
	}
	blacklisted, err := r.store.KnownPaths(store.KindBlacklist)
	if err != nil {
		return result, fmt.Errorf("loading blacklist: %w", err)
	}

	pending := make([]types.CandidatePath, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c.Path]; ok {
			result.Skipped++
			continue
		}
		seen[c.Path] = struct{}{}

		_, isGame := known[c.Path]
		_, isBlacklisted := blacklisted[c.Path]
		if isGame || isBlacklisted {
			result.Skipped++
			continue
		}
		pending = append(pending, c)
	}

	var (
		lookups    atomic.Int64
		misses     atomic.Int64
		present    atomic.Int64
		errored    atomic.Int64
		mu         sync.Mutex
		hits       []staged
		g, lookCtx = errgroup.WithContext(ctx)
	)
	if r.opts.Concurrency > 0 {
		g.SetLimit(r.opts.Concurrency)
	}

	for i, c := range pending {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			title := c.Title()
			lookups.Add(1)
			res := r.client.Lookup(lookCtx, title)

			switch res.Kind {
			case types.LookupHit:
				mu.Lock()
				hits = append(hits, staged{index: i, game: types.NewDetectedGame(c.Path, res.Record)})
				mu.Unlock()
				r.log.Debug("catalog match", "path", c.Path, "title", title, "id", res.Record.ID)

			case types.LookupMiss:
				countOutcome(r.blacklist(c.Path, types.ReasonNoMatch), &misses, &present, &errored)

			default:
				if ctx.Err() != nil || !r.opts.BlacklistOnError {
					errored.Add(1)
					r.log.Warn("catalog lookup failed", "path", c.Path, "title", title, "error", res.Err)
					return nil
				}
				r.log.Warn("catalog lookup failed, blacklisting", "path", c.Path, "title", title, "error", res.Err)
				countOutcome(r.blacklist(c.Path, types.ReasonLookupError), &misses, &present, &errored)
			}
			return nil
		})
	}
	_ = g.Wait()

	// Restore candidate order for stable output.
	ordered := make([]*types.DetectedGame, len(pending))
	for _, h := range hits {
		ordered[h.index] = h.game
	}
	matched := make([]*types.DetectedGame, 0, len(hits))
	for _, game := range ordered {
		if game != nil {
			matched = append(matched, game)
		}
	}

	result.Lookups = int(lookups.Load())
	result.Blacklisted = int(misses.Load())
	result.Errored = int(errored.Load())
	result.Skipped += int(present.Load())
	result.Elapsed = time.Since(start)

	conflicts, err := r.store.SaveGames(matched)
	if err != nil {
		result.Errored += len(matched)
		return result, fmt.Errorf("saving %d matched games: %w", len(matched), err)
	}
	if len(conflicts) > 0 {
		skip := make(map[string]struct{}, len(conflicts))
		for _, p := range conflicts {
			skip[p] = struct{}{}
			r.log.Warn("not saving a blacklisted path as a game", "path", p)
		}
		matched = slices.DeleteFunc(matched, func(game *types.DetectedGame) bool {
			_, ok := skip[game.Path]
			return ok
		})
		result.Errored += len(conflicts)
	}
	result.Matched = matched

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// blacklistOutcome is the result of one blacklist write.
type blacklistOutcome int

const (
	blacklistInserted blacklistOutcome = iota
	blacklistPresent
	blacklistFailed
)

func (r *Resolver) blacklist(path, reason string) blacklistOutcome {
	inserted, err := r.store.SaveBlacklist(types.NewBlacklistEntry(path, reason))
	switch {
	case err == nil && inserted:
		r.log.Debug("blacklisted", "path", path, "reason", reason)
		return blacklistInserted
	case err == nil:
		r.log.Debug("already blacklisted", "path", path)
		return blacklistPresent
	case errors.Is(err, store.ErrPathConflict):
		r.log.Warn("not blacklisting a known game", "path", path)
	default:
		r.log.Error("failed to blacklist path", "path", path, "error", err)
	}
	return blacklistFailed
}

// countOutcome adds a blacklist outcome to the pass counters. A path some
// other writer blacklisted first counts as skipped.
func countOutcome(o blacklistOutcome, misses, present, errored *atomic.Int64) {
	switch o {
	case blacklistInserted:
		misses.Add(1)
	case blacklistPresent:
		present.Add(1)
	default:
		errored.Add(1)
	}
}
