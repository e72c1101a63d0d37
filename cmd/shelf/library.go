package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/shelf/pkg/daemon/store"
	"github.com/jamesainslie/shelf/pkg/shelf/library"
	"github.com/jamesainslie/shelf/pkg/shelf/output"
)

var (
	gamesFormat    string
	gamesBlacklist bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Match new library entries against the catalog",
	Long: `Scan lists the entries of the library root, looks up every entry that
is neither a known game nor blacklisted, and records the outcome.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var gamesCmd = &cobra.Command{
	Use:   "games",
	Short: "List detected games",
	Args:  cobra.NoArgs,
	RunE:  runGames,
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List candidate file names under the library root",
	Args:  cobra.NoArgs,
	RunE:  runFiles,
}

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Download missing cover images",
	Args:  cobra.NoArgs,
	RunE:  runImages,
}

var forgetCmd = &cobra.Command{
	Use:   "forget <path>",
	Short: "Remove a detected game so the next scan looks it up again",
	Args:  cobra.ExactArgs(1),
	RunE:  runForget,
}

var unblacklistCmd = &cobra.Command{
	Use:   "unblacklist <path>",
	Short: "Remove a blacklist entry so the next scan retries it",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnblacklist,
}

var pruneCmd = &cobra.Command{
	Use:   "prune <dir>",
	Short: "Remove every game and blacklist entry under a directory",
	Long: `Prune removes the records of every detected game and blacklist entry
whose path lies under dir. Use it after moving library.root to drop the
records of the old root. Files on disk are not touched.`,
	Args: cobra.ExactArgs(1),
	RunE: runPrune,
}

func init() {
	gamesCmd.Flags().StringVarP(&gamesFormat, "output", "o", "pretty",
		fmt.Sprintf("output format (%s)", strings.Join(output.Available(), "|")))
	gamesCmd.Flags().BoolVar(&gamesBlacklist, "blacklist", false, "include blacklisted paths")

	rootCmd.AddCommand(scanCmd, gamesCmd, filesCmd, imagesCmd, forgetCmd, unblacklistCmd, pruneCmd)
}

// withBackend opens a backend for the duration of fn. Interrupts cancel ctx.
func withBackend(cmd *cobra.Command, fn func(ctx context.Context, b backend) error) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, loadedConfig)
	if err != nil {
		return err
	}
	defer b.Close()

	return fn(ctx, b)
}

func runScan(cmd *cobra.Command, _ []string) error {
	return withBackend(cmd, func(ctx context.Context, b backend) error {
		summary, err := b.Scan(ctx)
		if errors.Is(err, library.ErrScanInProgress) {
			return errors.New("a scan is already running")
		}
		if err != nil {
			return err
		}
		printScanSummary(summary)
		return nil
	})
}

func printScanSummary(s *store.ScanSummary) {
	printInfo("Scan finished: found %d new games, blacklisted %d, %d games total",
		s.NewGames, s.Blacklisted, s.TotalGames)
	if s.Errored > 0 {
		printInfo("  %d entries could not be looked up and will be retried", s.Errored)
	}
	printVerbose("%d candidates in %s", s.Candidates, s.Duration)
}

func runGames(cmd *cobra.Command, _ []string) error {
	formatter, err := output.Get(gamesFormat)
	if err != nil {
		return err
	}

	return withBackend(cmd, func(ctx context.Context, b backend) error {
		lib, err := b.Library(ctx, gamesBlacklist)
		if err != nil {
			return err
		}

		result := &output.Result{
			Games:     output.FromGames(lib.Games),
			Blacklist: output.FromBlacklist(lib.Blacklist),
			Root:      lib.Root,
			LastScan:  scanInfo(lib.LastScan),
		}
		if st, err := b.Status(ctx); err == nil {
			result.DaemonUp = st.Running
			result.Watching = st.Watching
		}
		if lib.LastScan == nil {
			result.Warnings = append(result.Warnings, "library has not been scanned yet, run 'shelf scan'")
		}

		var buf bytes.Buffer
		if err := formatter.Format(&buf, result); err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(buf.Bytes())
		return err
	})
}

func scanInfo(s *store.ScanSummary) *output.ScanInfo {
	if s == nil {
		return nil
	}
	return &output.ScanInfo{
		FinishedAt:  s.FinishedAt,
		Duration:    s.Duration,
		Candidates:  s.Candidates,
		NewGames:    s.NewGames,
		Blacklisted: s.Blacklisted,
		Errored:     s.Errored,
	}
}

func runFiles(cmd *cobra.Command, _ []string) error {
	return withBackend(cmd, func(ctx context.Context, b backend) error {
		names, err := b.Files(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, name := range names {
			fmt.Fprintln(out, name)
		}
		return nil
	})
}

func runImages(cmd *cobra.Command, _ []string) error {
	return withBackend(cmd, func(ctx context.Context, b backend) error {
		r, err := b.DownloadImages(ctx)
		if err != nil {
			return err
		}
		printInfo("Covers: %d fetched, %d already cached, %d without cover, %d failed",
			r.Fetched, r.Cached, r.NoCover, r.Failed)
		return nil
	})
}

func runForget(cmd *cobra.Command, args []string) error {
	path, err := gamePath(loadedConfig, args[0])
	if err != nil {
		return err
	}
	return withBackend(cmd, func(ctx context.Context, b backend) error {
		if err := b.Forget(ctx, path); err != nil {
			return notFound(err, "no detected game at %s", path)
		}
		printInfo("Forgot %s", path)
		return nil
	})
}

func runUnblacklist(cmd *cobra.Command, args []string) error {
	path, err := gamePath(loadedConfig, args[0])
	if err != nil {
		return err
	}
	return withBackend(cmd, func(ctx context.Context, b backend) error {
		if err := b.Unblacklist(ctx, path); err != nil {
			return notFound(err, "%s is not blacklisted", path)
		}
		printInfo("Removed %s from the blacklist", path)
		return nil
	})
}

func runPrune(cmd *cobra.Command, args []string) error {
	dir, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	return withBackend(cmd, func(ctx context.Context, b backend) error {
		n, err := b.Prune(ctx, dir)
		if err != nil {
			return err
		}
		printInfo("Removed %d records under %s", n, dir)
		return nil
	})
}

// notFound replaces store.ErrNotFound with a readable message.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf(format, args...)
	}
	return err
}
