package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/shelf/pkg/daemon/store"
	"github.com/jamesainslie/shelf/pkg/shelf/catalog"
	"github.com/jamesainslie/shelf/pkg/shelf/logging"
	"github.com/jamesainslie/shelf/pkg/shelf/types"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func candidates(names ...string) []types.CandidatePath {
	out := make([]types.CandidatePath, len(names))
	for i, n := range names {
		out[i] = types.CandidatePath{Path: filepath.Join("/library", n), IsDir: filepath.Ext(n) == ""}
	}
	return out
}

func TestResolveMatchesAndBlacklists(t *testing.T) {
	st := openStore(t)
	client := &catalog.Static{Records: map[string]types.CatalogRecord{
		"GameA": {ID: 1, Name: "Game A"},
		"GameB": {ID: 2, Name: "Game B"},
	}}

	r := New(client, st, Options{BlacklistOnError: true})
	res, err := r.Resolve(context.Background(), candidates("GameA.iso", "GameB", "Junk.zip"))
	require.NoError(t, err)

	assert.Equal(t, 3, res.Lookups)
	assert.Equal(t, 1, res.Blacklisted)
	assert.Equal(t, 0, res.Errored)
	require.Len(t, res.Matched, 2)
	assert.Equal(t, "/library/GameA.iso", res.Matched[0].Path)
	assert.Equal(t, "/library/GameB", res.Matched[1].Path)

	n, err := st.CountGames()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ok, err := st.ExistsByPath(store.KindBlacklist, "/library/Junk.zip")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ElementsMatch(t, []string{"GameA", "GameB", "Junk"}, client.Calls())
}

func TestResolveSkipsKnownPaths(t *testing.T) {
	st := openStore(t)
	_, err := st.SaveGames([]*types.DetectedGame{
		types.NewDetectedGame("/library/GameA.iso", types.CatalogRecord{ID: 1, Name: "Game A"}),
	})
	require.NoError(t, err)
	_, err = st.SaveBlacklist(types.NewBlacklistEntry("/library/Junk.zip", types.ReasonNoMatch))
	require.NoError(t, err)

	client := &catalog.Static{}
	res, err := New(client, st, Options{}).Resolve(context.Background(), candidates("GameA.iso", "Junk.zip"))
	require.NoError(t, err)

	assert.Equal(t, 0, res.Lookups)
	assert.Equal(t, 2, res.Skipped)
	assert.Empty(t, client.Calls())
}

func TestResolveIsIdempotent(t *testing.T) {
	st := openStore(t)
	client := &catalog.Static{Records: map[string]types.CatalogRecord{"GameA": {ID: 1, Name: "Game A"}}}
	r := New(client, st, Options{BlacklistOnError: true})
	in := candidates("GameA.iso", "Other.iso")

	_, err := r.Resolve(context.Background(), in)
	require.NoError(t, err)
	res, err := r.Resolve(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Lookups)
	assert.Empty(t, res.Matched)
	assert.Equal(t, 0, res.Blacklisted)
	assert.Len(t, client.Calls(), 2)
}

func TestResolveCollapsesDuplicates(t *testing.T) {
	st := openStore(t)
	client := &catalog.Static{}

	in := append(candidates("Junk.zip"), candidates("Junk.zip", "Junk.zip")...)
	res, err := New(client, st, Options{}).Resolve(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Lookups)
	assert.Equal(t, 1, res.Blacklisted)
	assert.Equal(t, 2, res.Skipped)
}

func TestResolveManyMisses(t *testing.T) {
	st := openStore(t)
	const total, misses = 40, 15

	records := make(map[string]types.CatalogRecord)
	var names []string
	for i := 0; i < total; i++ {
		name := fmt.Sprintf("Game%02d", i)
		names = append(names, name+".iso")
		if i >= misses {
			records[name] = types.CatalogRecord{ID: int64(i), Name: name}
		}
	}

	client := &catalog.Static{Records: records, Delay: time.Millisecond}
	res, err := New(client, st, Options{Concurrency: 8}).Resolve(context.Background(), candidates(names...))
	require.NoError(t, err)

	assert.Equal(t, total, res.Lookups)
	assert.Equal(t, misses, res.Blacklisted)
	assert.Len(t, res.Matched, total-misses)

	nb, err := st.CountBlacklist()
	require.NoError(t, err)
	assert.Equal(t, int64(misses), nb)
	ng, err := st.CountGames()
	require.NoError(t, err)
	assert.Equal(t, int64(total-misses), ng)
}

func TestResolveFailurePolicy(t *testing.T) {
	boom := errors.New("catalog unavailable")

	t.Run("blacklist on error", func(t *testing.T) {
		st := openStore(t)
		client := &catalog.Static{Errors: map[string]error{"Flaky": boom}}

		res, err := New(client, st, Options{BlacklistOnError: true}).Resolve(context.Background(), candidates("Flaky.iso"))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Blacklisted)
		assert.Equal(t, 0, res.Errored)

		entries, err := st.ListBlacklist()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, types.ReasonLookupError, entries[0].Reason)
	})

	t.Run("leave for next pass", func(t *testing.T) {
		st := openStore(t)
		client := &catalog.Static{Errors: map[string]error{"Flaky": boom}}
		r := New(client, st, Options{BlacklistOnError: false})

		res, err := r.Resolve(context.Background(), candidates("Flaky.iso"))
		require.NoError(t, err)
		assert.Equal(t, 0, res.Blacklisted)
		assert.Equal(t, 1, res.Errored)

		nb, err := st.CountBlacklist()
		require.NoError(t, err)
		assert.Zero(t, nb)

		// Next pass retries the path.
		res, err = r.Resolve(context.Background(), candidates("Flaky.iso"))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Lookups)
	})
}

type gaugeClient struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (g *gaugeClient) Lookup(_ context.Context, _ string) types.LookupResult {
	n := g.inFlight.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	g.inFlight.Add(-1)
	return types.Miss()
}

func TestResolveConcurrencyLimit(t *testing.T) {
	st := openStore(t)
	client := &gaugeClient{}

	var names []string
	for i := 0; i < 20; i++ {
		names = append(names, fmt.Sprintf("g%d.iso", i))
	}

	res, err := New(client, st, Options{Concurrency: 3}).Resolve(context.Background(), candidates(names...))
	require.NoError(t, err)
	assert.Equal(t, 20, res.Blacklisted)
	assert.LessOrEqual(t, client.peak.Load(), int32(3))
}

func TestResolveCancelledDoesNotBlacklist(t *testing.T) {
	st := openStore(t)
	client := &catalog.Static{Delay: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res, err := New(client, st, Options{BlacklistOnError: true}).Resolve(ctx, candidates("a.iso", "b.iso"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Blacklisted)

	nb, err := st.CountBlacklist()
	require.NoError(t, err)
	assert.Zero(t, nb)
}

type failingStore struct {
	*store.Store
	saveGamesErr error
	blacklistErr error
}

func (f *failingStore) SaveGames(games []*types.DetectedGame) ([]string, error) {
	if f.saveGamesErr != nil {
		return nil, f.saveGamesErr
	}
	return f.Store.SaveGames(games)
}

func (f *failingStore) SaveBlacklist(e *types.BlacklistEntry) (bool, error) {
	if f.blacklistErr != nil {
		return false, f.blacklistErr
	}
	return f.Store.SaveBlacklist(e)
}

// racingStore writes the record another process would have written just
// before each call reaches the store.
type racingStore struct {
	*store.Store
}

func (r *racingStore) SaveBlacklist(e *types.BlacklistEntry) (bool, error) {
	if _, err := r.Store.SaveBlacklist(types.NewBlacklistEntry(e.Path, "external")); err != nil {
		return false, err
	}
	return r.Store.SaveBlacklist(e)
}

func (r *racingStore) SaveGames(games []*types.DetectedGame) ([]string, error) {
	for _, g := range games {
		if filepath.Base(g.Path) == "Late.iso" {
			if _, err := r.Store.SaveBlacklist(types.NewBlacklistEntry(g.Path, "external")); err != nil {
				return nil, err
			}
		}
	}
	return r.Store.SaveGames(games)
}

func TestResolveConcurrentWriter(t *testing.T) {
	client := &catalog.Static{Records: map[string]types.CatalogRecord{
		"Hit":  {ID: 1, Name: "Hit"},
		"Late": {ID: 2, Name: "Late"},
	}}
	st := &racingStore{Store: openStore(t)}

	var buf bytes.Buffer
	r := New(client, st, Options{Logger: logging.New(&buf, "resolver", logging.LevelDebug)})
	res, err := r.Resolve(context.Background(), candidates("Hit.iso", "Late.iso", "Miss.iso"))
	require.NoError(t, err)

	assert.Equal(t, 0, res.Blacklisted, "a miss blacklisted by another writer is not new")
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Errored)
	require.Len(t, res.Matched, 1)
	assert.Equal(t, "/library/Hit.iso", res.Matched[0].Path)
	assert.Contains(t, buf.String(), "not saving a blacklisted path as a game")

	n, err := st.CountGames()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestResolveStoreFailures(t *testing.T) {
	client := &catalog.Static{Records: map[string]types.CatalogRecord{"Hit": {ID: 1, Name: "Hit"}}}

	t.Run("save games fails the pass", func(t *testing.T) {
		st := &failingStore{Store: openStore(t), saveGamesErr: errors.New("disk full")}
		res, err := New(client, st, Options{}).Resolve(context.Background(), candidates("Hit.iso"))
		require.Error(t, err)
		assert.Empty(t, res.Matched)
		assert.Equal(t, 1, res.Errored)
	})

	t.Run("blacklist write is logged and counted", func(t *testing.T) {
		var buf bytes.Buffer
		st := &failingStore{Store: openStore(t), blacklistErr: errors.New("disk full")}
		r := New(client, st, Options{Logger: logging.New(&buf, "resolver", logging.LevelDebug)})

		res, err := r.Resolve(context.Background(), candidates("Hit.iso", "Miss.iso"))
		require.NoError(t, err)
		assert.Len(t, res.Matched, 1)
		assert.Equal(t, 0, res.Blacklisted)
		assert.Equal(t, 1, res.Errored)
		assert.Contains(t, buf.String(), "failed to blacklist path")
	})
}
