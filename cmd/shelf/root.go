package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/shelf/pkg/shelf/config"
	"github.com/jamesainslie/shelf/pkg/shelf/logging"
)

var (
	cfgFile string

	// loadedConfig is set by initializeLogging before any command runs.
	loadedConfig *config.Config

	rootCmd = &cobra.Command{
		Use:   "shelf",
		Short: "Scan, match, and serve a game library",
		Long: `Shelf scans a game library directory, matches each entry against a
metadata catalog, and streams game files to clients.

Commands talk to the shelfd daemon when it is running and open the library
directly otherwise.

Examples:
  shelf scan                     # Match new library entries
  shelf games                    # List detected games
  shelf games -o json            # Machine-readable listing
  shelf download Portal.iso      # Save a game to the current directory
  shelf daemon start             # Run shelfd in the background`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initializeLogging,
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logging.Close()
		},
	}
)

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/shelf/config.yaml)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")
	rootCmd.PersistentFlags().Bool("no-daemon", false, "bypass daemon, open the library directly")

	// Bind flags to viper
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("no_daemon", rootCmd.PersistentFlags().Lookup("no-daemon"))
}

// initializeLogging loads the configuration, creates the data directory,
// and starts file logging. Console logging is enabled with --verbose.
func initializeLogging(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return err
	}

	if err := config.EnsureDataDir(); err != nil {
		return err
	}
	if err := os.MkdirAll(config.StateDir(), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	if configDir, err := config.ConfigDir(); err == nil {
		_ = os.MkdirAll(configDir, 0o755)
	}

	consoleLevel := ""
	if getVerbose() {
		consoleLevel = "debug"
	}
	opts, err := cfg.LoggingOptions(consoleLevel)
	if err != nil {
		return err
	}
	if err := logging.Init(opts); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}

	loadedConfig = cfg
	return nil
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError("%v", err)
	}
	return err
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
