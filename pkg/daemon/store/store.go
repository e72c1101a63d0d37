// Package store provides Badger DB-backed persistence for detected games
// and blacklisted paths.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/jamesainslie/shelf/pkg/shelf/types"
)

// Key prefixes for different data types
const (
	prefixGame      = "g:" // Detected games keyed by path
	prefixBlacklist = "b:" // Blacklisted paths
	prefixMeta      = "m:" // Metadata (schema, last scan)
)

// Kind selects one of the two path sets held by the store.
type Kind int

// Path sets.
const (
	KindGame Kind = iota
	KindBlacklist
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindGame:
		return "game"
	case KindBlacklist:
		return "blacklist"
	default:
		return "unknown"
	}
}

func (k Kind) prefix() string {
	if k == KindBlacklist {
		return prefixBlacklist
	}
	return prefixGame
}

var (
	// ErrNotFound is returned when a path is not stored under the requested kind.
	ErrNotFound = errors.New("not found")

	// ErrPathConflict is returned when a path would end up both a game and blacklisted.
	ErrPathConflict = errors.New("path is already recorded under the other kind")
)

// Store is the library storage backed by Badger DB.
type Store struct {
	db *badger.DB
}

// Open opens or creates a store at the given path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if s.GetSchema() == nil && !s.hasAnyEntries() {
		if err := s.SetSchema(newSchema()); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("writing schema: %w", err)
		}
	}

	return s, nil
}

// OpenInMemory opens a store that lives only in memory.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.SetSchema(newSchema()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(k Kind, path string) []byte {
	return []byte(k.prefix() + path)
}

func exists(txn *badger.Txn, k []byte) (bool, error) {
	_, err := txn.Get(k)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

// ExistsByPath reports whether path is stored under kind.
func (s *Store) ExistsByPath(k Kind, path string) (bool, error) {
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = exists(txn, key(k, path))
		return err
	})
	return found, err
}

// KnownPaths returns every path stored under kind.
func (s *Store) KnownPaths(k Kind) (map[string]struct{}, error) {
	paths := make(map[string]struct{})

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(k.prefix())
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			paths[string(it.Item().Key()[len(prefix):])] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// saveGamesChunk bounds the games written per transaction so large passes
// stay under badger's transaction size limit.
const saveGamesChunk = 500

// SaveGames stores detected games. Paths already stored as games are left
// untouched. Blacklisted paths are skipped and returned as conflicts; the
// check and the write for each path happen in the same transaction.
func (s *Store) SaveGames(games []*types.DetectedGame) ([]string, error) {
	var conflicts []string
	for chunk := range slices.Chunk(games, saveGamesChunk) {
		var skipped []string
		err := s.update(func(txn *badger.Txn) error {
			skipped = skipped[:0]
			for _, g := range chunk {
				blacklisted, err := exists(txn, key(KindBlacklist, g.Path))
				if err != nil {
					return err
				}
				if blacklisted {
					skipped = append(skipped, g.Path)
					continue
				}
				k := key(KindGame, g.Path)
				known, err := exists(txn, k)
				if err != nil {
					return err
				}
				if known {
					continue
				}
				data, err := json.Marshal(g)
				if err != nil {
					return err
				}
				if err := txn.Set(k, data); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return conflicts, fmt.Errorf("saving games: %w", err)
		}
		conflicts = append(conflicts, skipped...)
	}
	return conflicts, nil
}

// SaveBlacklist stores a blacklist entry and reports whether it was
// inserted. Saving a path that is already blacklisted is a no-op that
// returns false. A path stored as a game returns ErrPathConflict.
func (s *Store) SaveBlacklist(entry *types.BlacklistEntry) (bool, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return false, err
	}

	var inserted bool
	err = s.update(func(txn *badger.Txn) error {
		inserted = false
		isGame, err := exists(txn, key(KindGame, entry.Path))
		if err != nil {
			return err
		}
		if isGame {
			return fmt.Errorf("blacklisting %s: %w", entry.Path, ErrPathConflict)
		}

		k := key(KindBlacklist, entry.Path)
		already, err := exists(txn, k)
		if err != nil || already {
			return err
		}
		if err := txn.Set(k, data); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	return inserted && err == nil, err
}

// maxConflictRetries bounds retries of read-write transactions that lost a
// race on the same key.
const maxConflictRetries = 5

func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for range maxConflictRetries {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// GetGame retrieves a detected game by path.
func (s *Store) GetGame(path string) (*types.DetectedGame, error) {
	var game types.DetectedGame

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(KindGame, path))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &game)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("game %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	return &game, nil
}

// ListGames returns all detected games ordered by path.
func (s *Store) ListGames() ([]*types.DetectedGame, error) {
	var games []*types.DetectedGame
	err := s.iterate(KindGame, func(val []byte) error {
		var g types.DetectedGame
		if err := json.Unmarshal(val, &g); err != nil {
			return err
		}
		games = append(games, &g)
		return nil
	})
	return games, err
}

// ListBlacklist returns all blacklist entries ordered by path.
func (s *Store) ListBlacklist() ([]*types.BlacklistEntry, error) {
	var entries []*types.BlacklistEntry
	err := s.iterate(KindBlacklist, func(val []byte) error {
		var e types.BlacklistEntry
		if err := json.Unmarshal(val, &e); err != nil {
			return err
		}
		entries = append(entries, &e)
		return nil
	})
	return entries, err
}

func (s *Store) iterate(k Kind, fn func(val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(k.prefix())
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

// CountGames returns the number of detected games.
func (s *Store) CountGames() (int64, error) {
	return s.count(KindGame)
}

// CountBlacklist returns the number of blacklisted paths.
func (s *Store) CountBlacklist() (int64, error) {
	return s.count(KindBlacklist)
}

func (s *Store) count(k Kind) (int64, error) {
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(k.prefix())
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// DeleteGame removes a detected game so the next scan can re-match its path.
func (s *Store) DeleteGame(path string) error {
	return s.delete(KindGame, path)
}

// DeleteBlacklist removes a blacklist entry so the next scan retries the path.
func (s *Store) DeleteBlacklist(path string) error {
	return s.delete(KindBlacklist, path)
}

func (s *Store) delete(k Kind, path string) error {
	return s.update(func(txn *badger.Txn) error {
		kb := key(k, path)
		found, err := exists(txn, kb)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%s %s: %w", k, path, ErrNotFound)
		}
		return txn.Delete(kb)
	})
}

// DeleteUnder removes every game and blacklist entry whose path lies under
// root. It returns the number of records removed.
func (s *Store) DeleteUnder(root string) (int, error) {
	var removed int
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		var keysToDelete [][]byte
		for _, k := range []Kind{KindGame, KindBlacklist} {
			prefix := []byte(k.prefix())
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				itemKey := it.Item().KeyCopy(nil)
				if IsPathUnderRoot(string(itemKey[len(prefix):]), root) {
					keysToDelete = append(keysToDelete, itemKey)
				}
			}
		}
		it.Close()

		for _, k := range keysToDelete {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		removed = len(keysToDelete)
		return nil
	})
	return removed, err
}

// IsPathUnderRoot checks if path is under root.
func IsPathUnderRoot(path, root string) bool {
	cleanRoot := filepath.Clean(root)
	cleanPath := filepath.Clean(path)
	return strings.HasPrefix(cleanPath, cleanRoot+string(filepath.Separator)) || cleanPath == cleanRoot
}
