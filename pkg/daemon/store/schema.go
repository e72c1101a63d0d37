package store

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Schema versions:
// 1 - Initial version (games and blacklist, no reason or title)
// 2 - Blacklist entries carry a reason, games carry a display title
const CurrentSchemaVersion = 2

const (
	schemaKey   = prefixMeta + "__schema__"
	lastScanKey = prefixMeta + "last_scan"
)

// Schema holds database schema information.
type Schema struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newSchema() *Schema {
	return &Schema{Version: CurrentSchemaVersion, UpdatedAt: time.Now()}
}

// GetSchema returns the current schema version, or nil if not set.
func (s *Store) GetSchema() *Schema {
	var schema *Schema

	_ = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			schema = &Schema{}
			return json.Unmarshal(val, schema)
		})
	})

	return schema
}

// SetSchema stores the schema version.
func (s *Store) SetSchema(schema *Schema) error {
	data, err := json.Marshal(schema)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(schemaKey), data)
	})
}

// NeedsMigration returns true if the database needs migration.
func (s *Store) NeedsMigration() bool {
	schema := s.GetSchema()
	if schema == nil {
		// No schema = old database, check if it has any data
		return s.hasAnyEntries()
	}
	return schema.Version < CurrentSchemaVersion
}

// hasAnyEntries checks if the store has any game or blacklist records.
func (s *Store) hasAnyEntries() bool {
	var found bool
	_ = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for _, prefix := range []string{prefixGame, prefixBlacklist} {
			it.Seek([]byte(prefix))
			if it.ValidForPrefix([]byte(prefix)) {
				found = true
				return nil
			}
		}
		return nil
	})
	return found
}

// ScanSummary records the outcome of the most recent library scan.
type ScanSummary struct {
	Root        string        `json:"root"`
	FinishedAt  time.Time     `json:"finished_at"`
	Duration    time.Duration `json:"duration"`
	Candidates  int           `json:"candidates"`
	NewGames    int           `json:"new_games"`
	Blacklisted int           `json:"blacklisted"`
	Errored     int           `json:"errored"`
	TotalGames  int64         `json:"total_games"`
}

// SetLastScan stores the summary of the latest scan.
func (s *Store) SetLastScan(summary *ScanSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(lastScanKey), data)
	})
}

// GetLastScan returns the latest scan summary, or nil if no scan has finished.
func (s *Store) GetLastScan() (*ScanSummary, error) {
	var summary *ScanSummary
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(lastScanKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			summary = &ScanSummary{}
			return json.Unmarshal(val, summary)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	return summary, err
}
