package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/shelf/pkg/shelf/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage shelf configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/shelf/config.yaml (if set)
  2. ~/.config/shelf/config.yaml

Environment variables can override config file settings using the SHELF_ prefix:
  SHELF_LIBRARY_ROOT=/srv/games
  SHELF_CATALOG_CLIENT_ID=abc123
  SHELF_DELIVERY_DIRECTORY_MODE=archive`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration settings from all sources.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the config file doesn't exist, a default one will be created first.`,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// configFilePath returns --config when given, else the default location.
func configFilePath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.ConfigPath()
}

// runConfigShow displays the current configuration.
func runConfigShow(cmd *cobra.Command, _ []string) error {
	path, err := configFilePath()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(out, "Config file: %s\n\n", path)
	} else {
		fmt.Fprintln(out, "Config file: (using defaults, no file found)")
		fmt.Fprintln(out)
	}

	writeConfig(out, loadedConfig)

	fmt.Fprintln(out, "\nEnvironment Overrides:")
	fmt.Fprintln(out, "----------------------")
	envVars := []string{
		"SHELF_LIBRARY_ROOT",
		"SHELF_LIBRARY_EXTENSIONS",
		"SHELF_RESOLVER_CONCURRENCY",
		"SHELF_RESOLVER_BLACKLIST_ON_ERROR",
		"SHELF_CATALOG_BASE_URL",
		"SHELF_CATALOG_CLIENT_ID",
		"SHELF_DELIVERY_DIRECTORY_MODE",
		"SHELF_DELIVERY_BUFFER_SIZE",
		"SHELF_IMAGES_BUCKET_URL",
		"SHELF_LOGGING_LEVEL",
		"SHELF_DAEMON_WATCH",
	}
	anyOverrides := false
	for _, name := range envVars {
		if val := os.Getenv(name); val != "" {
			fmt.Fprintf(out, "%s=%s\n", name, val)
			anyOverrides = true
		}
	}
	if !anyOverrides {
		fmt.Fprintln(out, "(none)")
	}
	return nil
}

func writeConfig(out io.Writer, cfg *config.Config) {
	secret := "(unset)"
	if cfg.Catalog.ClientSecret != "" {
		secret = "********"
	}
	clientID := cfg.Catalog.ClientID
	if clientID == "" {
		clientID = "(unset)"
	}

	fmt.Fprintln(out, "Current Configuration:")
	fmt.Fprintln(out, "----------------------")
	fmt.Fprintf(out, "library.root:                %s\n", cfg.Library.Root)
	fmt.Fprintf(out, "library.extensions:          %v\n", cfg.Library.Extensions)
	fmt.Fprintf(out, "resolver.concurrency:        %d\n", cfg.Resolver.Concurrency)
	fmt.Fprintf(out, "resolver.blacklist_on_error: %t\n", cfg.Resolver.BlacklistOnError)
	fmt.Fprintf(out, "catalog.base_url:            %s\n", cfg.Catalog.BaseURL)
	fmt.Fprintf(out, "catalog.token_url:           %s\n", cfg.Catalog.TokenURL)
	fmt.Fprintf(out, "catalog.client_id:           %s\n", clientID)
	fmt.Fprintf(out, "catalog.client_secret:       %s\n", secret)
	fmt.Fprintf(out, "catalog.timeout:             %s\n", cfg.Catalog.Timeout)
	fmt.Fprintf(out, "delivery.directory_mode:     %s\n", cfg.Delivery.DirectoryMode)
	fmt.Fprintf(out, "delivery.buffer_size:        %s\n", cfg.Delivery.BufferSize)
	fmt.Fprintf(out, "images.bucket_url:           %s\n", cfg.ImagesBucketURL())
	fmt.Fprintf(out, "logging.level:               %s\n", cfg.Logging.Level)
	fmt.Fprintf(out, "daemon.socket_path:          %s\n", cfg.SocketPath())
	fmt.Fprintf(out, "daemon.pid_path:             %s\n", cfg.PIDPath())
	fmt.Fprintf(out, "daemon.watch:                %t\n", cfg.Daemon.Watch)
	fmt.Fprintf(out, "daemon.watch_debounce:       %s\n", cfg.Daemon.WatchDebounce)
}

// runConfigEdit opens the config file in an editor.
func runConfigEdit(_ *cobra.Command, _ []string) error {
	configPath, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if cfgFile != "" {
		configPath = cfgFile
	}

	// Determine editor
	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	printVerbose("Opening %s with %s", configPath, editor)

	editorCmd := exec.Command(editor, configPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}
	return nil
}

// runConfigInit creates a default config file.
func runConfigInit(_ *cobra.Command, _ []string) error {
	configPath, err := config.ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		printInfo("Config file already exists: %s", configPath)
		printInfo("Use 'shelf config edit' to modify it.")
		return nil
	}

	if _, err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	printInfo("Created default config file: %s", configPath)
	return nil
}

// runConfigPath shows the config file path.
func runConfigPath(cmd *cobra.Command, _ []string) error {
	configPath, err := configFilePath()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), configPath)

	if _, err := os.Stat(configPath); err == nil {
		printVerbose("File exists")
	} else if os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}
	return nil
}
