package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/shelf/cmd/shelf/tui"
	"github.com/jamesainslie/shelf/pkg/client"
	"github.com/jamesainslie/shelf/pkg/shelf/types"
)

var (
	downloadOutput     string
	downloadNoProgress bool
)

var downloadCmd = &cobra.Command{
	Use:   "download <path>",
	Short: "Download a detected game",
	Long: `Download streams a detected game to a local file.

Without -O the file is saved in the current directory under the name the
library announces: the file name, or the directory name with ".exe" (raw
mode) or ".zip" (archive mode) appended. Use -O - to write to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadOutput, "output-file", "O", "", "write to this file (- for stdout)")
	downloadCmd.Flags().BoolVar(&downloadNoProgress, "no-progress", false, "do not show the progress view")
	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	path, err := gamePath(loadedConfig, args[0])
	if err != nil {
		return err
	}

	return withBackend(cmd, func(ctx context.Context, b backend) error {
		if downloadOutput == "-" {
			_, err := b.Download(ctx, path, cmd.OutOrStdout())
			return downloadError(err, path)
		}

		if showProgress() {
			return downloadError(downloadWithProgress(ctx, b, path, downloadOutput), path)
		}

		target, info, err := downloadToFile(ctx, b, path, downloadOutput, nil)
		if err != nil {
			return downloadError(err, path)
		}
		printInfo("Downloaded %s (%s)", target, types.FormatSize(info.Written))
		return nil
	})
}

// downloadToFile writes into a temporary file next to the target and renames
// it once the transfer completes, so an interrupted download leaves nothing
// behind. An empty target uses the announced filename in the current
// directory. wrap, when set, wraps the file writer.
func downloadToFile(ctx context.Context, b backend, path, target string, wrap func(io.Writer) io.Writer) (string, *client.DownloadInfo, error) {
	dir := "."
	if target != "" {
		dir = filepath.Dir(target)
	}

	tmp, err := os.CreateTemp(dir, ".shelf-download-*")
	if err != nil {
		return "", nil, err
	}
	defer os.Remove(tmp.Name())

	var w io.Writer = tmp
	if wrap != nil {
		w = wrap(tmp)
	}
	info, err := b.Download(ctx, path, w)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", info, err
	}

	if target == "" {
		name := info.Filename
		if name == "" {
			name = filepath.Base(path)
		}
		target = filepath.Join(dir, name)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", info, err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", info, err
	}
	return target, info, nil
}

// showProgress reports whether the progress view can be drawn on stderr.
func showProgress() bool {
	if downloadNoProgress || getQuiet() {
		return false
	}
	return isatty.IsTerminal(os.Stderr.Fd())
}

// downloadWithProgress runs downloadToFile under the progress view. Ctrl+C
// in the view cancels the transfer.
func downloadWithProgress(ctx context.Context, b backend, path, target string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(tui.NewDownloadModel(filepath.Base(path), cancel), tea.WithOutput(os.Stderr))

	done := make(chan error, 1)
	go func() {
		dst, info, err := downloadToFile(ctx, b, path, target, func(w io.Writer) io.Writer {
			return tui.NewProgressWriter(w, p.Send)
		})
		msg := tui.DoneMsg{Target: dst, Err: err}
		if info != nil {
			msg.Written = info.Written
		}
		p.Send(msg)
		done <- err
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return err
	}
	return <-done
}

func downloadError(err error, path string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return errors.New("download interrupted")
	default:
		return notFound(err, "no detected game at %s", path)
	}
}
