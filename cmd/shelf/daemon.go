package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	shelfv1 "github.com/jamesainslie/shelf/pkg/api/shelf/v1"
	"github.com/jamesainslie/shelf/pkg/client"
	"github.com/jamesainslie/shelf/pkg/shelf/config"
	"github.com/jamesainslie/shelf/pkg/shelf/types"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the shelfd daemon",
	Long: `Manage the shelfd daemon.

The daemon owns the library database, serves downloads, and rescans the
library when entries appear or disappear under the root.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the shelfd daemon",
	Long:  `Start the shelfd daemon in the background.`,
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the shelfd daemon",
	Long:  `Stop the shelfd daemon gracefully.`,
	RunE:  runDaemonStop,
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the shelfd daemon",
	Long:  `Stop and start the shelfd daemon.`,
	RunE:  runDaemonRestart,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Show the current status of the shelfd daemon.`,
	RunE:  runDaemonStatus,
}

var daemonWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print library events as they happen",
	Long:  `Stream scan and library entry events from the daemon until interrupted.`,
	RunE:  runDaemonWatch,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonRestartCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonWatchCmd)
}

func daemonPaths(cfg *config.Config) client.DaemonPaths {
	return client.DaemonPaths{
		Socket:     cfg.SocketPath(),
		PID:        cfg.PIDPath(),
		ConfigFile: cfgFile,
	}
}

func runDaemonStart(_ *cobra.Command, _ []string) error {
	printVerbose("starting daemon...")
	if err := client.StartDaemon(daemonPaths(loadedConfig)); err != nil {
		printVerbose("start failed: %v", err)
		return err
	}
	printInfo("Daemon started")
	return nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	paths := daemonPaths(loadedConfig)
	printVerbose("checking PID file: %s", paths.PID)

	if !client.IsDaemonRunning(paths.PID) {
		return errors.New("daemon is not running")
	}
	if err := client.StopDaemon(paths); err != nil {
		return err
	}
	printInfo("Daemon stopped")
	return nil
}

func runDaemonRestart(cmd *cobra.Command, args []string) error {
	if client.IsDaemonRunning(loadedConfig.PIDPath()) {
		if err := runDaemonStop(cmd, args); err != nil {
			return fmt.Errorf("failed to stop daemon: %w", err)
		}
	}
	if err := runDaemonStart(cmd, args); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	return nil
}

func runDaemonStatus(_ *cobra.Command, _ []string) error {
	paths := daemonPaths(loadedConfig)

	if !client.IsDaemonRunning(paths.PID) {
		printInfo("Daemon status: not running")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	daemonClient, err := client.ConnectWithContext(ctx, paths.Socket)
	if err != nil {
		printInfo("Daemon status: running (but not responding)")
		return nil
	}
	defer daemonClient.Close()

	status, err := daemonClient.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get daemon status: %w", err)
	}

	printInfo("Daemon status: running (pid %d)", status.PID)
	printInfo("  Uptime:   %s", formatDuration(time.Duration(status.UptimeSeconds)*time.Second))
	printInfo("  Memory:   %s", types.FormatSize(status.MemoryBytes))
	printInfo("  Library:  %s", status.Root)
	printInfo("  Games:    %d (%d blacklisted)", status.Games, status.Blacklisted)
	printInfo("  Delivery: %s", status.DirectoryMode)
	printInfo("  Watching: %t", status.Watching)
	if status.Scanning {
		printInfo("  Scan in progress")
	}
	if status.LastScan != nil {
		printInfo("  Last scan: %s (%d new, %d blacklisted)",
			humanize.Time(status.LastScan.FinishedAt), status.LastScan.NewGames, status.LastScan.Blacklisted)
	}
	return nil
}

func runDaemonWatch(cmd *cobra.Command, _ []string) error {
	paths := daemonPaths(loadedConfig)
	if !client.IsDaemonRunning(paths.PID) {
		return errors.New("daemon is not running (start with: shelf daemon start)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	daemonClient, err := client.ConnectWithContext(ctx, paths.Socket)
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer daemonClient.Close()

	events, err := daemonClient.Watch(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for ev := range events {
		fmt.Fprintln(out, formatEvent(ev))
	}
	return nil
}

func formatEvent(ev shelfv1.Event) string {
	ts := ev.Time.Local().Format(time.TimeOnly)
	switch ev.Type {
	case shelfv1.EventEntryAdded, shelfv1.EventEntryRemoved:
		return fmt.Sprintf("%s %s %s", ts, ev.Type, ev.Path)
	case shelfv1.EventScanFinished:
		if s := ev.Summary; s != nil {
			return fmt.Sprintf("%s %s new=%d blacklisted=%d total=%d", ts, ev.Type, s.NewGames, s.Blacklisted, s.TotalGames)
		}
	case shelfv1.EventScanFailed:
		return fmt.Sprintf("%s %s %s", ts, ev.Type, ev.Error)
	}
	return fmt.Sprintf("%s %s", ts, ev.Type)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
