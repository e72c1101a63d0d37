package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/jamesainslie/shelf/pkg/shelf/types"
)

// MigrationProgress reports migration progress.
type MigrationProgress struct {
	FromVersion  int
	ToVersion    int
	EntriesTotal int64
	EntriesDone  int64
	CurrentPath  string
}

// MigrationProgressFunc is called with progress updates during migration.
type MigrationProgressFunc func(MigrationProgress)

// Migrate runs any pending migrations to bring the database up to current schema.
// Returns the number of migrations run, or an error.
func (s *Store) Migrate(ctx context.Context, onProgress MigrationProgressFunc) (int, error) {
	schema := s.GetSchema()
	fromVersion := 0
	if schema != nil {
		fromVersion = schema.Version
	} else if s.hasAnyEntries() {
		// Records but no schema = v1 (original format)
		fromVersion = 1
	}

	if fromVersion >= CurrentSchemaVersion {
		return 0, nil
	}

	migrationsRun := 0

	for version := fromVersion + 1; version <= CurrentSchemaVersion; version++ {
		select {
		case <-ctx.Done():
			return migrationsRun, ctx.Err()
		default:
		}

		var err error
		switch version {
		case 2:
			err = s.migrateToV2(ctx, onProgress)
		}

		if err != nil {
			return migrationsRun, err
		}

		// Update schema version after each successful migration
		if err := s.SetSchema(&Schema{
			Version:   version,
			UpdatedAt: time.Now(),
		}); err != nil {
			return migrationsRun, err
		}

		migrationsRun++
	}

	return migrationsRun, nil
}

// migrateToV2 backfills blacklist reasons and game titles.
func (s *Store) migrateToV2(ctx context.Context, onProgress MigrationProgressFunc) error {
	var totalEntries int64
	if onProgress != nil {
		games, _ := s.CountGames()
		blacklisted, _ := s.CountBlacklist()
		totalEntries = games + blacklisted
	}

	var entriesDone int64
	report := func(path string) {
		entriesDone++
		if onProgress != nil && entriesDone%1000 == 0 {
			onProgress(MigrationProgress{
				FromVersion:  1,
				ToVersion:    2,
				EntriesTotal: totalEntries,
				EntriesDone:  entriesDone,
				CurrentPath:  path,
			})
		}
	}

	updates := make(map[string][]byte)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for _, k := range []Kind{KindGame, KindBlacklist} {
			prefix := []byte(k.prefix())
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}

				item := it.Item()
				path := string(item.Key()[len(prefix):])

				err := item.Value(func(val []byte) error {
					data, changed, err := upgradeRecord(k, path, val)
					if err != nil {
						return nil //nolint:nilerr // intentionally skip malformed records
					}
					if changed {
						updates[string(item.KeyCopy(nil))] = data
					}
					return nil
				})
				if err != nil {
					return err
				}
				report(path)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(updates) > 0 {
		wb := s.db.NewWriteBatch()
		defer wb.Cancel()
		for k, v := range updates {
			if err := wb.Set([]byte(k), v); err != nil {
				return err
			}
		}
		if err := wb.Flush(); err != nil {
			return err
		}
	}

	if onProgress != nil {
		onProgress(MigrationProgress{
			FromVersion:  1,
			ToVersion:    2,
			EntriesTotal: totalEntries,
			EntriesDone:  entriesDone,
		})
	}

	return nil
}

func upgradeRecord(k Kind, path string, val []byte) ([]byte, bool, error) {
	switch k {
	case KindBlacklist:
		var e types.BlacklistEntry
		if err := json.Unmarshal(val, &e); err != nil {
			return nil, false, err
		}
		if e.Reason != "" {
			return nil, false, nil
		}
		e.Path = path
		e.Reason = types.ReasonNoMatch
		data, err := json.Marshal(&e)
		return data, true, err
	default:
		var g types.DetectedGame
		if err := json.Unmarshal(val, &g); err != nil {
			return nil, false, err
		}
		if g.Title != "" {
			return nil, false, nil
		}
		g.Path = path
		g.Title = g.Record.Name
		if g.Title == "" {
			g.Title = types.BaseName(path)
		}
		data, err := json.Marshal(&g)
		return data, true, err
	}
}
