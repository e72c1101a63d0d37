package types

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "plain bytes", input: "1024", want: 1024},
		{name: "zero bytes", input: "0", want: 0},
		{name: "bytes with B suffix", input: "512B", want: 512},
		{name: "kilobytes", input: "100K", want: 100 * KiB},
		{name: "megabytes with iB", input: "1MiB", want: MiB},
		{name: "gigabytes lowercase", input: "2g", want: 2 * GiB},
		{name: "decimal", input: "1.5M", want: MiB + MiB/2},
		{name: "whitespace", input: "  4M  ", want: 4 * MiB},
		{name: "empty", input: "", wantErr: true},
		{name: "negative", input: "-1M", wantErr: true},
		{name: "garbage", input: "lots", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	if got := FormatSize(0); got != "0 B" {
		t.Errorf("FormatSize(0) = %q, want %q", got, "0 B")
	}
	if got := FormatSize(1536 * KiB); got != "1.5 MiB" {
		t.Errorf("FormatSize(1.5MiB) = %q, want %q", got, "1.5 MiB")
	}
	if got := FormatSize(-5); got != "0 B" {
		t.Errorf("FormatSize(-5) = %q, want %q", got, "0 B")
	}
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/games/GameA.zip", "GameA"},
		{"/games/GameB/", "GameB"},
		{"/games/GameB", "GameB"},
		{"/games/Half-Life 2.iso", "Half-Life 2"},
		{"/games/archive.tar.gz", "archive.tar"},
		{"/games/.hidden", ".hidden"},
	}

	for _, tt := range tests {
		if got := BaseName(tt.path); got != tt.want {
			t.Errorf("BaseName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"GameA.zip":    "zip",
		"GameA.ZIP":    "ZIP",
		"GameA":        "",
		".hidden":      "",
		"a.tar.gz":     "gz",
		"trailingdot.": "",
	}
	for name, want := range tests {
		if got := Extension(name); got != want {
			t.Errorf("Extension(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestLookupResultConstructors(t *testing.T) {
	hit := Hit(CatalogRecord{ID: 7, Name: "Portal"})
	if hit.Kind != LookupHit || hit.Record.ID != 7 {
		t.Errorf("Hit() = %+v", hit)
	}

	if m := Miss(); m.Kind != LookupMiss || m.Err != nil {
		t.Errorf("Miss() = %+v", m)
	}

	cause := errors.New("boom")
	f := Failed(cause)
	if f.Kind != LookupFailed || !errors.Is(f.Err, cause) {
		t.Errorf("Failed() = %+v", f)
	}

	if LookupFailed.String() != "failed" || LookupKind(42).String() != "unknown" {
		t.Error("unexpected LookupKind strings")
	}
}

func TestNewDetectedGameFallsBackToBaseName(t *testing.T) {
	g := NewDetectedGame("/games/Quake.zip", CatalogRecord{ID: 1})
	if g.Title != "Quake" {
		t.Errorf("Title = %q, want %q", g.Title, "Quake")
	}

	g = NewDetectedGame("/games/q1.zip", CatalogRecord{ID: 1, Name: "Quake"})
	if g.Title != "Quake" {
		t.Errorf("Title = %q, want %q", g.Title, "Quake")
	}
}

func TestErrorsUnwrap(t *testing.T) {
	cause := fmt.Errorf("wrapped: %w", io.ErrUnexpectedEOF)

	errs := []error{
		&ScanFailure{Root: "/r", Err: cause},
		&TransferAborted{Path: "/p", Err: cause},
		&IOFailure{Path: "/p", Op: "copy", Err: cause},
		&DownloadAborted{Path: "/p", Err: cause},
	}
	for _, err := range errs {
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("%T does not unwrap to its cause", err)
		}
		if err.Error() == "" {
			t.Errorf("%T has empty message", err)
		}
	}
}
