// Package types provides the core data types shared by the shelf library
// pipeline and delivery engine: scan candidates, persisted game and blacklist
// records, catalog metadata, and the tagged result of a catalog lookup.
package types

import (
	"path/filepath"
	"strings"
	"time"
)

// CandidatePath is a top-level filesystem entry that may hold a game.
// It is recomputed on every scan and never persisted.
type CandidatePath struct {
	// Path is the full path to the entry. It is the candidate's identity.
	Path string `json:"path"`

	// IsDir reports whether the entry is a directory.
	IsDir bool `json:"is_dir"`
}

// Title returns the catalog lookup title for the candidate: the base name
// with its final extension stripped.
func (c CandidatePath) Title() string {
	return BaseName(c.Path)
}

// CatalogRecord is the metadata the external catalog returned for a title.
type CatalogRecord struct {
	ID          int64     `json:"id"`
	Slug        string    `json:"slug,omitempty"`
	Name        string    `json:"name"`
	Summary     string    `json:"summary,omitempty"`
	ReleaseDate time.Time `json:"release_date,omitempty"`
	CoverID     string    `json:"cover_id,omitempty"`
	CoverURL    string    `json:"cover_url,omitempty"`
	Genres      []string  `json:"genres,omitempty"`
	Platforms   []string  `json:"platforms,omitempty"`
	Rating      float64   `json:"rating,omitempty"`
}

// DetectedGame is a library entry that matched a catalog record.
// Path is the unique key. Records are never mutated after creation.
type DetectedGame struct {
	Path       string        `json:"path"`
	Title      string        `json:"title"`
	Record     CatalogRecord `json:"record"`
	DetectedAt time.Time     `json:"detected_at"`
}

// NewDetectedGame builds a DetectedGame for a catalog hit on path.
func NewDetectedGame(path string, rec CatalogRecord) *DetectedGame {
	title := rec.Name
	if title == "" {
		title = BaseName(path)
	}
	return &DetectedGame{
		Path:       path,
		Title:      title,
		Record:     rec,
		DetectedAt: time.Now().UTC(),
	}
}

// Blacklist reasons.
const (
	ReasonNoMatch     = "no_match"
	ReasonLookupError = "lookup_error"
)

// BlacklistEntry marks a path that has no catalog match. Path is the unique key.
type BlacklistEntry struct {
	Path      string    `json:"path"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewBlacklistEntry builds a blacklist entry for path.
func NewBlacklistEntry(path, reason string) *BlacklistEntry {
	return &BlacklistEntry{
		Path:      path,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
}

// LookupKind tags the outcome of a single catalog lookup.
type LookupKind int

// Lookup outcomes.
const (
	// LookupMiss means the catalog confirmed it has no record for the title.
	LookupMiss LookupKind = iota
	// LookupHit means the catalog returned a record.
	LookupHit
	// LookupFailed means the lookup could not be completed (transport or server error).
	LookupFailed
)

// String returns the string representation of the kind.
func (k LookupKind) String() string {
	switch k {
	case LookupHit:
		return "hit"
	case LookupMiss:
		return "miss"
	case LookupFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LookupResult is the tagged result of one catalog lookup.
// Record is set only for LookupHit, Err only for LookupFailed.
type LookupResult struct {
	Kind   LookupKind
	Record CatalogRecord
	Err    error
}

// Hit returns a LookupResult carrying rec.
func Hit(rec CatalogRecord) LookupResult {
	return LookupResult{Kind: LookupHit, Record: rec}
}

// Miss returns a LookupResult for a confirmed non-match.
func Miss() LookupResult {
	return LookupResult{Kind: LookupMiss}
}

// Failed returns a LookupResult for a lookup that errored.
func Failed(err error) LookupResult {
	return LookupResult{Kind: LookupFailed, Err: err}
}

// BaseName returns the last element of path with its final extension removed.
// A trailing separator is ignored, so "GameB/" yields "GameB".
func BaseName(path string) string {
	name := filepath.Base(strings.TrimRight(path, string(filepath.Separator)))
	if ext := filepath.Ext(name); ext != "" && ext != name {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

// Extension returns the final extension of name without the leading dot.
// It returns "" when name has no extension.
func Extension(name string) string {
	ext := filepath.Ext(name)
	if ext == "" || ext == name {
		return ""
	}
	return ext[1:]
}
