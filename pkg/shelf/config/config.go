package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/shelf/pkg/shelf/logging"
	"github.com/jamesainslie/shelf/pkg/shelf/types"
)

// LibraryConfig locates the game library.
type LibraryConfig struct {
	Root       string   `mapstructure:"root"`
	Extensions []string `mapstructure:"extensions"`
}

// ResolverConfig tunes catalog matching.
type ResolverConfig struct {
	// Concurrency caps in-flight catalog lookups. Zero means unbounded.
	Concurrency int `mapstructure:"concurrency"`

	// BlacklistOnError blacklists a path when its lookup fails, not only when
	// the catalog reports no match.
	BlacklistOnError bool `mapstructure:"blacklist_on_error"`
}

// CatalogConfig configures the metadata catalog client.
type CatalogConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	TokenURL     string        `mapstructure:"token_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// DeliveryConfig configures the delivery engine.
type DeliveryConfig struct {
	DirectoryMode string `mapstructure:"directory_mode"`
	BufferSize    string `mapstructure:"buffer_size"`
}

// ImagesConfig configures the cover image cache.
type ImagesConfig struct {
	// BucketURL is a gocloud.dev/blob URL. Empty uses file://<CacheDir>/images.
	BucketURL string `mapstructure:"bucket_url"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// DaemonConfig configures the shelfd daemon.
type DaemonConfig struct {
	SocketPath    string        `mapstructure:"socket_path"`
	PIDPath       string        `mapstructure:"pid_path"`
	Watch         bool          `mapstructure:"watch"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

// Config represents the application configuration.
type Config struct {
	Library  LibraryConfig  `mapstructure:"library"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Images   ImagesConfig   `mapstructure:"images"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Daemon   DaemonConfig   `mapstructure:"daemon"`
}

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/shelf/config.yaml
//   - $HOME/.config/shelf/config.yaml
//
// Environment variables are prefixed with SHELF_ (e.g., SHELF_LIBRARY_ROOT).
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is like Load but reads the given file when path is non-empty.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, "shelf"))
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		v.AddConfigPath(filepath.Join(homeDir, ".config", "shelf"))
	}

	v.SetEnvPrefix("SHELF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	root, err := ExpandPath(cfg.Library.Root)
	if err != nil {
		return nil, err
	}
	cfg.Library.Root = root

	return &cfg, nil
}

// SetDefaults registers every default on v. The CLI uses it on the global
// viper instance so flags and config share one source of defaults.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("library.root", DefaultRoot)
	v.SetDefault("library.extensions", DefaultExtensions)

	v.SetDefault("resolver.concurrency", DefaultConcurrency)
	v.SetDefault("resolver.blacklist_on_error", true)

	v.SetDefault("catalog.base_url", DefaultCatalogBaseURL)
	v.SetDefault("catalog.token_url", DefaultCatalogTokenURL)
	v.SetDefault("catalog.client_id", "")
	v.SetDefault("catalog.client_secret", "")
	v.SetDefault("catalog.timeout", DefaultCatalogTimeout)

	v.SetDefault("delivery.directory_mode", DefaultDirectoryMode)
	v.SetDefault("delivery.buffer_size", DefaultBufferSize)

	v.SetDefault("images.bucket_url", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"daemon":   "info",
		"watcher":  "warn",
		"resolver": "info",
		"delivery": "info",
	})

	v.SetDefault("daemon.socket_path", "")
	v.SetDefault("daemon.pid_path", "")
	v.SetDefault("daemon.watch", true)
	v.SetDefault("daemon.watch_debounce", DefaultWatchDebounce)
}

// Validate checks values that would otherwise fail deep inside a scan or transfer.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Library.Root) == "" {
		return fmt.Errorf("%w: library.root is empty", ErrInvalidConfig)
	}
	for _, ext := range c.Library.Extensions {
		if strings.TrimSpace(ext) == "" {
			return fmt.Errorf("%w: library.extensions contains an empty entry", ErrInvalidConfig)
		}
		if strings.HasPrefix(ext, ".") {
			return fmt.Errorf("%w: extension %q must not start with a dot", ErrInvalidConfig, ext)
		}
	}
	if c.Resolver.Concurrency < 0 {
		return fmt.Errorf("%w: resolver.concurrency must be >= 0", ErrInvalidConfig)
	}
	switch c.Delivery.DirectoryMode {
	case DirectoryModeRaw, DirectoryModeArchive:
	default:
		return fmt.Errorf("%w: delivery.directory_mode %q (want %q or %q)",
			ErrInvalidConfig, c.Delivery.DirectoryMode, DirectoryModeRaw, DirectoryModeArchive)
	}
	if _, err := c.BufferSize(); err != nil {
		return fmt.Errorf("%w: delivery.buffer_size: %w", ErrInvalidConfig, err)
	}
	return nil
}

// BufferSize returns the parsed delivery buffer size.
func (c *Config) BufferSize() (int, error) {
	if c.Delivery.BufferSize == "" {
		return int(types.MiB), nil
	}
	n, err := types.ParseSize(c.Delivery.BufferSize)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: buffer size must be positive", types.ErrInvalidSize)
	}
	return int(n), nil
}

// LoggingOptions converts the logging section into logging.Config.
func (c *Config) LoggingOptions(consoleLevel string) (logging.Config, error) {
	rotation := logging.DefaultRotationConfig()
	if c.Logging.Rotation.MaxSize != "" {
		size, err := types.ParseSize(c.Logging.Rotation.MaxSize)
		if err != nil {
			return logging.Config{}, fmt.Errorf("logging.rotation.max_size: %w", err)
		}
		rotation.MaxSize = size
	}
	rotation.MaxAge = c.Logging.Rotation.MaxAge
	rotation.MaxBackups = c.Logging.Rotation.MaxBackups
	rotation.Daily = c.Logging.Rotation.Daily

	path := c.Logging.Path
	if path == "" {
		path = DefaultLogPath()
	}

	return logging.Config{
		Level:        c.Logging.Level,
		Path:         path,
		Rotation:     rotation,
		Components:   c.Logging.Components,
		ConsoleLevel: consoleLevel,
	}, nil
}

// SocketPath returns the configured daemon socket or the default.
func (c *Config) SocketPath() string {
	if c.Daemon.SocketPath != "" {
		return c.Daemon.SocketPath
	}
	return DefaultSocketPath()
}

// PIDPath returns the configured daemon PID file or the default.
func (c *Config) PIDPath() string {
	if c.Daemon.PIDPath != "" {
		return c.Daemon.PIDPath
	}
	return DefaultPIDPath()
}

// ImagesBucketURL returns the configured image bucket or a file bucket under CacheDir.
func (c *Config) ImagesBucketURL() string {
	if c.Images.BucketURL != "" {
		return c.Images.BucketURL
	}
	return "file://" + filepath.ToSlash(filepath.Join(CacheDir(), "images")) + "?create_dir=true"
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "shelf"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "shelf"), nil
}

// ConfigPath returns the path of the default config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// WriteDefault writes a default config file if none exists and returns its path.
func WriteDefault() (string, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# Shelf Game Library Configuration

library:
  # Directory whose top-level entries are games (one file or one folder each)
  root: %s
  # File extensions (without the dot, case-sensitive) treated as games.
  # Folders are always candidates.
  extensions: [%s]

resolver:
  # Maximum concurrent catalog lookups (0 = unbounded)
  concurrency: %d
  # Blacklist a path when its lookup errors, not only on a confirmed miss
  blacklist_on_error: true

catalog:
  base_url: %s
  token_url: %s
  client_id: ""
  client_secret: ""
  timeout: %s

delivery:
  # How folders are sent to clients: raw (concatenated bytes) or archive (store-only zip)
  directory_mode: %s
  buffer_size: %s

images:
  # gocloud.dev/blob URL for cover images (empty = $XDG_CACHE_HOME/shelf/images)
  bucket_url: ""

logging:
  level: info
  # Empty means $XDG_STATE_HOME/shelf/shelf.log
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30
    max_backups: 5
    daily: true
  components:
    daemon: info
    watcher: warn
    resolver: info
    delivery: info

daemon:
  # Empty means $XDG_DATA_HOME/shelf/shelf.sock
  socket_path: ""
  pid_path: ""
  # Rescan when top-level entries appear or disappear under library.root
  watch: true
  watch_debounce: %s
`, DefaultRoot, strings.Join(DefaultExtensions, ", "), DefaultConcurrency,
		DefaultCatalogBaseURL, DefaultCatalogTokenURL, DefaultCatalogTimeout,
		DefaultDirectoryMode, DefaultBufferSize, DefaultWatchDebounce)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}

	return configPath, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/shelf/ for the database, socket, and pid files.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "shelf")
}

// StateDir returns $XDG_STATE_HOME/shelf/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "shelf")
}

// CacheDir returns $XDG_CACHE_HOME/shelf/ for cached cover images.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, "shelf")
}

// DefaultSocketPath returns the default Unix socket path.
func DefaultSocketPath() string {
	return filepath.Join(DataDir(), "shelf.sock")
}

// DefaultPIDPath returns the default PID file path.
func DefaultPIDPath() string {
	return filepath.Join(DataDir(), "shelf.pid")
}

// DefaultDBPath returns the default library database directory.
func DefaultDBPath() string {
	return filepath.Join(DataDir(), "library.db")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(StateDir(), "shelf.log")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}
