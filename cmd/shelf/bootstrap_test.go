package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jamesainslie/shelf/cmd/shelf/tui"
	shelfv1 "github.com/jamesainslie/shelf/pkg/api/shelf/v1"
	"github.com/jamesainslie/shelf/pkg/daemon/store"
	"github.com/jamesainslie/shelf/pkg/shelf/app"
	"github.com/jamesainslie/shelf/pkg/shelf/catalog"
	"github.com/jamesainslie/shelf/pkg/shelf/config"
	"github.com/jamesainslie/shelf/pkg/shelf/logging"
	"github.com/jamesainslie/shelf/pkg/shelf/types"
)

func TestInitializeLoggingEnsuresDirectories(t *testing.T) {
	// XDG paths are cached at package init time, so the real locations are used.
	if err := initializeLogging(nil, nil); err != nil {
		t.Fatalf("initializeLogging() returned error: %v", err)
	}
	defer func() { _ = logging.Close() }()

	if loadedConfig == nil {
		t.Fatal("loadedConfig was not set")
	}
	for _, dir := range []string{config.DataDir(), config.StateDir()} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			t.Errorf("directory was not created: %s", dir)
		}
	}
}

func TestGamePath(t *testing.T) {
	cfg := &config.Config{Library: config.LibraryConfig{Root: "/srv/games"}}

	tests := []struct {
		arg  string
		want string
	}{
		{"Portal.iso", "/srv/games/Portal.iso"},
		{"/srv/games/Half-Life", "/srv/games/Half-Life"},
		{"/srv/games/../games/Doom", "/srv/games/Doom"},
		{"sub/../Quake", "/srv/games/Quake"},
	}
	for _, tt := range tests {
		got, err := gamePath(cfg, tt.arg)
		if err != nil {
			t.Fatalf("gamePath(%q) error: %v", tt.arg, err)
		}
		if got != tt.want {
			t.Errorf("gamePath(%q) = %q, want %q", tt.arg, got, tt.want)
		}
	}
}

func newLocalBackend(t *testing.T) (*localBackend, string) {
	t.Helper()
	root := t.TempDir()
	for name, content := range map[string]string{
		"Portal.iso": "portal-bytes",
		"Junk.iso":   "junk",
	} {
		if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	cfg := &config.Config{
		Library:  config.LibraryConfig{Root: root, Extensions: []string{"iso"}},
		Delivery: config.DeliveryConfig{DirectoryMode: config.DirectoryModeRaw},
		Images:   config.ImagesConfig{BucketURL: "mem://"},
	}
	a, err := app.Open(context.Background(), cfg, app.Options{
		InMemory: true,
		Catalog:  &catalog.Static{Records: map[string]types.CatalogRecord{"Portal": {ID: 71, Name: "Portal"}}},
	})
	if err != nil {
		t.Fatalf("app.Open failed: %v", err)
	}
	b := &localBackend{app: a}
	t.Cleanup(func() { _ = b.Close() })
	return b, root
}

func TestLocalBackend(t *testing.T) {
	b, root := newLocalBackend(t)
	ctx := context.Background()

	summary, err := b.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if summary.NewGames != 1 || summary.Blacklisted != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}

	lib, err := b.Library(ctx, true)
	if err != nil {
		t.Fatalf("Library failed: %v", err)
	}
	if len(lib.Games) != 1 || len(lib.Blacklist) != 1 || lib.LastScan == nil {
		t.Errorf("unexpected library %+v", lib)
	}

	files, err := b.Files(ctx)
	if err != nil {
		t.Fatalf("Files failed: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("Files = %v, want 2 names", files)
	}

	st, err := b.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.Running || st.Games != 1 || st.Blacklisted != 1 {
		t.Errorf("unexpected status %+v", st)
	}

	portal := filepath.Join(root, "Portal.iso")
	if err := b.Forget(ctx, portal); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}
	if err := b.Forget(ctx, portal); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second Forget error = %v, want ErrNotFound", err)
	}

	junk := filepath.Join(root, "Junk.iso")
	if err := b.Unblacklist(ctx, junk); err != nil {
		t.Fatalf("Unblacklist failed: %v", err)
	}
	err = notFound(b.Unblacklist(ctx, junk), "%s is not blacklisted", junk)
	if err == nil || !strings.Contains(err.Error(), "is not blacklisted") {
		t.Errorf("notFound error = %v", err)
	}

	if _, err := b.Scan(ctx); err != nil {
		t.Fatalf("rescan failed: %v", err)
	}
	n, err := b.Prune(ctx, root)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Prune removed %d records, want 2", n)
	}
	if st, _ := b.Status(ctx); st.Games != 0 || st.Blacklisted != 0 {
		t.Errorf("records left after prune: %+v", st)
	}
}

func TestDownloadToFile(t *testing.T) {
	b, root := newLocalBackend(t)
	ctx := context.Background()
	if _, err := b.Scan(ctx); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	outDir := t.TempDir()
	target, info, err := downloadToFile(ctx, b, filepath.Join(root, "Portal.iso"), filepath.Join(outDir, "copy.iso"), nil)
	if err != nil {
		t.Fatalf("downloadToFile failed: %v", err)
	}
	if info.Filename != "Portal.iso" || info.Written != int64(len("portal-bytes")) {
		t.Errorf("unexpected info %+v", info)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "portal-bytes" {
		t.Errorf("content = %q", data)
	}

	_, _, err = downloadToFile(ctx, b, filepath.Join(root, "Missing.iso"), filepath.Join(outDir, "missing.iso"), nil)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing game error = %v, want ErrNotFound", err)
	}
	entries, _ := os.ReadDir(outDir)
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestDownloadToFileWrapsWriter(t *testing.T) {
	b, root := newLocalBackend(t)
	ctx := context.Background()
	if _, err := b.Scan(ctx); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	var progress []tea.Msg
	var pw *tui.ProgressWriter
	outDir := t.TempDir()
	_, _, err := downloadToFile(ctx, b, filepath.Join(root, "Portal.iso"), filepath.Join(outDir, "p.iso"), func(w io.Writer) io.Writer {
		pw = tui.NewProgressWriter(w, func(msg tea.Msg) { progress = append(progress, msg) })
		return pw
	})
	if err != nil {
		t.Fatalf("downloadToFile failed: %v", err)
	}
	if pw == nil || pw.Written() != int64(len("portal-bytes")) {
		t.Fatalf("progress writer saw %v", pw)
	}
	if len(progress) == 0 {
		t.Error("no progress reported")
	}
}

func TestFormatEvent(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)

	tests := []struct {
		ev   shelfv1.Event
		want string
	}{
		{shelfv1.Event{Type: shelfv1.EventEntryAdded, Path: "/g/Portal.iso", Time: ts}, "03:04:05 entry_added /g/Portal.iso"},
		{shelfv1.Event{Type: shelfv1.EventScanStarted, Time: ts}, "03:04:05 scan_started"},
		{shelfv1.Event{Type: shelfv1.EventScanFailed, Time: ts, Error: "boom"}, "03:04:05 scan_failed boom"},
		{
			shelfv1.Event{Type: shelfv1.EventScanFinished, Time: ts, Summary: &store.ScanSummary{NewGames: 2, Blacklisted: 1, TotalGames: 9}},
			"03:04:05 scan_finished new=2 blacklisted=1 total=9",
		},
	}
	for _, tt := range tests {
		if got := formatEvent(tt.ev); got != tt.want {
			t.Errorf("formatEvent(%s) = %q, want %q", tt.ev.Type, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{42 * time.Second, "42s"},
		{3*time.Minute + 7*time.Second, "3m 7s"},
		{5*time.Hour + 30*time.Minute, "5h 30m"},
		{50 * time.Hour, "2d 2h"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestScanInfo(t *testing.T) {
	if scanInfo(nil) != nil {
		t.Error("scanInfo(nil) should be nil")
	}
	info := scanInfo(&store.ScanSummary{Candidates: 3, NewGames: 1, Errored: 2})
	if info.Candidates != 3 || info.NewGames != 1 || info.Errored != 2 {
		t.Errorf("unexpected info %+v", info)
	}
}
