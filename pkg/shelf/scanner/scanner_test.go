package scanner

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jamesainslie/shelf/pkg/shelf/types"
)

func createTestTree(t *testing.T, root string, files, dirs []string) {
	t.Helper()
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			t.Fatalf("failed to create dir %s: %v", d, err)
		}
	}
	for _, f := range files {
		path := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create parent of %s: %v", f, err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("failed to create file %s: %v", f, err)
		}
	}
}

func TestListCandidates(t *testing.T) {
	root := t.TempDir()
	createTestTree(t, root,
		[]string{"GameA.iso", "notes.txt", "GameC.ISO", "Nested/inner.iso"},
		[]string{"GameB", "Empty.Folder"},
	)

	got, err := ListCandidates(root, []string{"iso", "zip"})
	if err != nil {
		t.Fatalf("ListCandidates() error = %v", err)
	}

	want := []types.CandidatePath{
		{Path: filepath.Join(root, "Empty.Folder"), IsDir: true},
		{Path: filepath.Join(root, "GameA.iso"), IsDir: false},
		{Path: filepath.Join(root, "GameB"), IsDir: true},
		{Path: filepath.Join(root, "Nested"), IsDir: true},
	}

	if len(got) != len(want) {
		t.Fatalf("ListCandidates() returned %d candidates, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestListCandidates_EmptyAllowList(t *testing.T) {
	root := t.TempDir()
	createTestTree(t, root, []string{"a.iso", "b.zip"}, []string{"Dir"})

	got, err := ListCandidates(root, nil)
	if err != nil {
		t.Fatalf("ListCandidates() error = %v", err)
	}
	if len(got) != 1 || !got[0].IsDir {
		t.Errorf("ListCandidates() = %+v, want only the directory", got)
	}
}

func TestListCandidates_Symlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	createTestTree(t, outside, []string{"real.iso"}, []string{"RealDir"})

	if err := os.Symlink(filepath.Join(outside, "RealDir"), filepath.Join(root, "LinkedDir")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := os.Symlink(filepath.Join(outside, "real.iso"), filepath.Join(root, "linked.iso")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(outside, "missing"), filepath.Join(root, "Dangling")); err != nil {
		t.Fatal(err)
	}

	got, err := ListCandidates(root, []string{"iso"})
	if err != nil {
		t.Fatalf("ListCandidates() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListCandidates() = %+v, want 2 candidates", got)
	}
	if !got[0].IsDir || filepath.Base(got[0].Path) != "LinkedDir" {
		t.Errorf("candidate[0] = %+v, want LinkedDir directory", got[0])
	}
	if got[1].IsDir || filepath.Base(got[1].Path) != "linked.iso" {
		t.Errorf("candidate[1] = %+v, want linked.iso file", got[1])
	}
}

func TestListCandidates_MissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "does-not-exist")

	_, err := ListCandidates(root, []string{"iso"})
	var scanErr *types.ScanFailure
	if !errors.As(err, &scanErr) {
		t.Fatalf("ListCandidates() error = %v, want *ScanFailure", err)
	}
	if scanErr.Root != root {
		t.Errorf("ScanFailure.Root = %q, want %q", scanErr.Root, root)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ScanFailure should unwrap to os.ErrNotExist, got %v", scanErr.Err)
	}
}

func TestFileNames(t *testing.T) {
	root := t.TempDir()
	createTestTree(t, root, []string{"b.iso", "a.zip", "c.txt"}, []string{"D"})

	names, err := FileNames(root, []string{"iso", "zip"})
	if err != nil {
		t.Fatalf("FileNames() error = %v", err)
	}
	want := []string{"D", "a.zip", "b.iso"}
	if len(names) != len(want) {
		t.Fatalf("FileNames() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
