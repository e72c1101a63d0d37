// Package output provides formatters for displaying the shelf library
// in various output formats (pretty, plain, json, yaml, etc.).
//
// The package uses a registry pattern so formatters can be selected at
// runtime by name.
//
// Basic usage:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, result); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/shelf/pkg/shelf/types"
)

// Game is a detected game prepared for display.
type Game struct {
	// Path is the absolute path of the game payload.
	Path string `json:"path" yaml:"path"`

	// File is the base name of the payload.
	File string `json:"file" yaml:"file"`

	// Title is the catalog name of the game.
	Title string `json:"title" yaml:"title"`

	ID        int64     `json:"id" yaml:"id"`
	Slug      string    `json:"slug,omitempty" yaml:"slug,omitempty"`
	Year      int       `json:"year,omitempty" yaml:"year,omitempty"`
	Genres    []string  `json:"genres,omitempty" yaml:"genres,omitempty"`
	Platforms []string  `json:"platforms,omitempty" yaml:"platforms,omitempty"`
	Rating    float64   `json:"rating,omitempty" yaml:"rating,omitempty"`
	CoverID   string    `json:"cover_id,omitempty" yaml:"cover_id,omitempty"`
	Detected  time.Time `json:"detected_at" yaml:"detected_at"`
}

// BlacklistItem is a blacklisted path prepared for display.
type BlacklistItem struct {
	Path    string    `json:"path" yaml:"path"`
	Reason  string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	Created time.Time `json:"created_at" yaml:"created_at"`
}

// ScanInfo summarises the last scan pass.
type ScanInfo struct {
	FinishedAt  time.Time     `json:"finished_at" yaml:"finished_at"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
	Candidates  int           `json:"candidates" yaml:"candidates"`
	NewGames    int           `json:"new_games" yaml:"new_games"`
	Blacklisted int           `json:"blacklisted" yaml:"blacklisted"`
	Errored     int           `json:"errored" yaml:"errored"`
}

// Result contains the complete output data for formatting.
type Result struct {
	// Games contains detected games ordered by path.
	Games []Game `json:"games" yaml:"games"`

	// Blacklist contains blacklisted paths when requested.
	Blacklist []BlacklistItem `json:"blacklist,omitempty" yaml:"blacklist,omitempty"`

	// Root is the library root.
	Root string `json:"root" yaml:"root"`

	// LastScan is the most recent scan, if any.
	LastScan *ScanInfo `json:"last_scan,omitempty" yaml:"last_scan,omitempty"`

	// DaemonUp indicates if shelfd answered.
	DaemonUp bool `json:"daemon_up" yaml:"daemon_up"`

	// Watching indicates if the daemon watches the library root.
	Watching bool `json:"watching" yaml:"watching"`

	// Warnings contains any warning messages.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// FromGames converts stored games for display.
func FromGames(games []*types.DetectedGame) []Game {
	out := make([]Game, len(games))
	for i, g := range games {
		out[i] = Game{
			Path:      g.Path,
			File:      filepath.Base(g.Path),
			Title:     g.Title,
			ID:        g.Record.ID,
			Slug:      g.Record.Slug,
			Genres:    g.Record.Genres,
			Platforms: g.Record.Platforms,
			Rating:    g.Record.Rating,
			CoverID:   g.Record.CoverID,
			Detected:  g.DetectedAt,
		}
		if !g.Record.ReleaseDate.IsZero() {
			out[i].Year = g.Record.ReleaseDate.Year()
		}
	}
	return out
}

// FromBlacklist converts stored blacklist entries for display.
func FromBlacklist(entries []*types.BlacklistEntry) []BlacklistItem {
	out := make([]BlacklistItem, len(entries))
	for i, e := range entries {
		out[i] = BlacklistItem{Path: e.Path, Reason: e.Reason, Created: e.CreatedAt}
	}
	return out
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry.
// It will replace any existing formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
