// Package config provides configuration management for shelf.
package config

import "time"

// Default configuration values for shelf.
const (
	// DefaultRoot is the library root scanned when none is configured.
	DefaultRoot = "."

	// DefaultConcurrency is the resolver fan-out limit. Zero means unbounded.
	DefaultConcurrency = 0

	// DefaultCatalogBaseURL is the metadata catalog API endpoint.
	DefaultCatalogBaseURL = "https://api.igdb.com/v4"

	// DefaultCatalogTokenURL is the OAuth2 client-credentials token endpoint.
	DefaultCatalogTokenURL = "https://id.twitch.tv/oauth2/token"

	// DefaultCatalogTimeout bounds a single catalog request.
	DefaultCatalogTimeout = 20 * time.Second

	// DefaultDirectoryMode is how directory payloads are delivered.
	DefaultDirectoryMode = "raw"

	// DefaultBufferSize is the copy buffer used when streaming game files.
	DefaultBufferSize = "1MiB"

	// DefaultWatchDebounce delays a rescan after the library root changes.
	DefaultWatchDebounce = 5 * time.Second
)

// Directory delivery modes.
const (
	DirectoryModeRaw     = "raw"
	DirectoryModeArchive = "archive"
)

// DefaultExtensions are the file extensions treated as game payloads.
var DefaultExtensions = []string{
	"zip",
	"rar",
	"7z",
	"iso",
	"exe",
	"tar",
	"gz",
}
