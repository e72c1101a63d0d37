package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/dgraph-io/badger/v4"

	"github.com/jamesainslie/shelf/pkg/shelf/types"
)

// openV1 returns a store holding records in the schema 1 layout.
func openV1(t *testing.T, games map[string]string, blacklisted []string) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(schemaKey)); err != nil {
			return err
		}
		for path, name := range games {
			data, _ := json.Marshal(map[string]any{"path": path, "record": map[string]any{"id": 1, "name": name}})
			if err := txn.Set(key(KindGame, path), data); err != nil {
				return err
			}
		}
		for _, path := range blacklisted {
			data, _ := json.Marshal(map[string]any{"path": path})
			if err := txn.Set(key(KindBlacklist, path), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seeding v1 records failed: %v", err)
	}
	return s
}

func TestMigrateFromV1ToV2(t *testing.T) {
	s := openV1(t,
		map[string]string{"/lib/GameA.iso": "Game A", "/lib/Unnamed.iso": ""},
		[]string{"/lib/junk"},
	)

	if !s.NeedsMigration() {
		t.Fatal("Database with records but no schema should need migration")
	}

	var progressCalls int
	count, err := s.Migrate(context.Background(), func(MigrationProgress) { progressCalls++ })
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 migration, got %d", count)
	}
	if progressCalls == 0 {
		t.Error("Expected progress callbacks during migration")
	}

	schema := s.GetSchema()
	if schema == nil || schema.Version != CurrentSchemaVersion {
		t.Fatalf("Expected schema version %d, got %+v", CurrentSchemaVersion, schema)
	}

	g, err := s.GetGame("/lib/GameA.iso")
	if err != nil {
		t.Fatalf("GetGame failed: %v", err)
	}
	if g.Title != "Game A" {
		t.Errorf("Expected backfilled title Game A, got %q", g.Title)
	}
	g, err = s.GetGame("/lib/Unnamed.iso")
	if err != nil {
		t.Fatalf("GetGame failed: %v", err)
	}
	if g.Title != "Unnamed" {
		t.Errorf("Expected title from base name, got %q", g.Title)
	}

	entries, err := s.ListBlacklist()
	if err != nil {
		t.Fatalf("ListBlacklist failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Reason != types.ReasonNoMatch {
		t.Errorf("Expected backfilled reason, got %+v", entries)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if s.NeedsMigration() {
		t.Error("Fresh database should not need migration")
	}

	count, err := s.Migrate(context.Background(), nil)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 migrations (already up to date), got %d", count)
	}
}

func TestMigrateCancellation(t *testing.T) {
	games := make(map[string]string)
	for i := 0; i < 100; i++ {
		games[fmt.Sprintf("/lib/game%03d", i)] = ""
	}
	s := openV1(t, games, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Migrate(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled error, got %v", err)
	}
	if !s.NeedsMigration() {
		t.Error("Cancelled migration should leave the schema unchanged")
	}
}
