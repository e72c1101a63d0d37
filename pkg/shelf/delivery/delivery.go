// Package delivery streams game payloads to clients.
//
// A payload is either a single file or a directory. Directories are sent as
// the raw concatenation of their files in lexical order, or as a store-only
// zip archive when the engine is configured for it.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/klauspost/compress/zip"

	"github.com/jamesainslie/shelf/pkg/shelf/logging"
	"github.com/jamesainslie/shelf/pkg/shelf/types"
)

// Directory delivery modes.
const (
	ModeRaw     = "raw"
	ModeArchive = "archive"
)

const defaultBufferSize = 1 << 20

// ImageSource provides cached cover images.
type ImageSource interface {
	Get(ctx context.Context, id string) (io.ReadCloser, error)
}

// Options configures an Engine.
type Options struct {
	// DirectoryMode is ModeRaw (default) or ModeArchive.
	DirectoryMode string

	// BufferSize is the copy buffer size. Zero uses 1 MiB.
	BufferSize int

	// Logger overrides the "delivery" component logger.
	Logger *logging.Logger
}

// Engine serves delivery requests. It holds no per-request state and is
// safe for concurrent use.
type Engine struct {
	opts   Options
	images ImageSource
	log    *logging.Logger
	bufs   sync.Pool
}

// New creates an Engine. images may be nil if ImageFor is never called.
func New(opts Options, images ImageSource) *Engine {
	if opts.DirectoryMode == "" {
		opts.DirectoryMode = ModeRaw
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	log := opts.Logger
	if log == nil {
		log = logging.Get("delivery")
	}
	e := &Engine{opts: opts, images: images, log: log}
	e.bufs.New = func() any {
		b := make([]byte, e.opts.BufferSize)
		return &b
	}
	return e
}

// DirectoryMode returns the configured directory mode.
func (e *Engine) DirectoryMode() string {
	return e.opts.DirectoryMode
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// FilenameFor returns the name a client should save the payload as: the
// file name for a file, or the directory name with ".exe" appended
// (".zip" in archive mode).
func (e *Engine) FilenameFor(game *types.DetectedGame) string {
	name := filepath.Base(game.Path)
	if !isDir(game.Path) {
		return name
	}
	if e.opts.DirectoryMode == ModeArchive {
		return name + ".zip"
	}
	return name + ".exe"
}

// SizeFor returns the allocated on-disk size of a file payload, or 0 for a
// directory. A probe failure returns *types.DownloadAborted.
func (e *Engine) SizeFor(game *types.DetectedGame) (int64, error) {
	info, err := os.Stat(game.Path)
	if err != nil {
		return 0, &types.DownloadAborted{Path: game.Path, Err: err}
	}
	if info.IsDir() {
		return 0, nil
	}
	size, err := sizeOnDisk(game.Path)
	if err != nil {
		return 0, &types.DownloadAborted{Path: game.Path, Err: err}
	}
	return size, nil
}

// Deliver streams the payload, choosing the archive format for directories
// when the engine is in archive mode.
func (e *Engine) Deliver(game *types.DetectedGame, sink io.Writer) *TransferReport {
	if e.opts.DirectoryMode == ModeArchive && isDir(game.Path) {
		return e.StreamAsArchive(game, sink)
	}
	return e.Stream(game, sink)
}

// Stream writes the payload bytes to sink unframed. A directory is sent as
// its files concatenated in lexical path order. Client disconnects end the
// transfer as Aborted and other I/O errors as Failed; neither is returned
// to the caller, only reported.
func (e *Engine) Stream(game *types.DetectedGame, sink io.Writer) *TransferReport {
	session := newSession(game.Path)
	session.advance(StateStarted)
	out := &sinkWriter{w: sink}

	files, err := e.payloadFiles(game.Path)
	if err != nil {
		session.advance(StateFailed)
		return e.finish(session, out, 0, &types.IOFailure{Path: game.Path, Op: "walk", Err: err})
	}

	session.advance(StateStreamingRaw)
	buf := e.buffer()
	defer e.bufs.Put(buf)

	for i, f := range files {
		if err := copyFile(out, f.abs, *buf); err != nil {
			return e.fail(session, out, i, f.abs, err)
		}
	}

	session.advance(StateCompleted)
	return e.finish(session, out, len(files), nil)
}

// StreamAsArchive writes the payload to sink as a store-only zip. Entry names
// are relative to the payload directory with forward slashes. A single file
// payload yields a one-entry archive named after the file.
func (e *Engine) StreamAsArchive(game *types.DetectedGame, sink io.Writer) *TransferReport {
	session := newSession(game.Path)
	session.advance(StateStarted)
	out := &sinkWriter{w: sink}

	files, err := e.payloadFiles(game.Path)
	if err != nil {
		session.advance(StateFailed)
		return e.finish(session, out, 0, &types.IOFailure{Path: game.Path, Op: "walk", Err: err})
	}

	session.advance(StateStreamingArchive)
	buf := e.buffer()
	defer e.bufs.Put(buf)

	zw := zip.NewWriter(out)
	for i, f := range files {
		hdr := &zip.FileHeader{
			Name:     f.name,
			Method:   zip.Store,
			Modified: f.info.ModTime(),
		}
		hdr.SetMode(f.info.Mode())

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return e.fail(session, out, i, f.abs, err)
		}
		if err := copyFile(w, f.abs, *buf); err != nil {
			return e.fail(session, out, i, f.abs, err)
		}
	}
	if err := zw.Close(); err != nil {
		return e.fail(session, out, len(files), game.Path, err)
	}

	session.advance(StateCompleted)
	return e.finish(session, out, len(files), nil)
}

// ImageFor opens the cached cover image for id.
func (e *Engine) ImageFor(ctx context.Context, id string) (io.ReadCloser, error) {
	if e.images == nil {
		return nil, errors.New("no image source configured")
	}
	return e.images.Get(ctx, id)
}

func (e *Engine) buffer() *[]byte {
	return e.bufs.Get().(*[]byte)
}

// fail ends the session as Aborted if the client went away, Failed otherwise.
func (e *Engine) fail(session *TransferSession, out *sinkWriter, files int, path string, err error) *TransferReport {
	if out.err != nil && IsPeerGone(out.err) {
		session.advance(StateAborted)
		return e.finish(session, out, files, &types.TransferAborted{
			Path:    session.Target,
			Elapsed: time.Since(session.StartedAt),
			Err:     out.err,
		})
	}

	op := "read"
	if out.err != nil {
		op = "write"
	}
	session.advance(StateFailed)
	return e.finish(session, out, files, &types.IOFailure{Path: path, Op: op, Err: err})
}

func (e *Engine) finish(session *TransferSession, out *sinkWriter, files int, err error) *TransferReport {
	report := &TransferReport{
		SessionID: session.ID,
		Path:      session.Target,
		State:     session.State,
		Bytes:     out.n,
		Files:     files,
		Elapsed:   time.Since(session.StartedAt),
		Err:       err,
	}

	switch session.State {
	case StateCompleted:
		e.log.Info("download finished",
			"path", report.Path,
			"session", report.SessionID,
			"bytes", report.Bytes,
			"files", report.Files,
			"seconds", fmt.Sprintf("%.2f", report.Elapsed.Seconds()))
	case StateAborted:
		e.log.Info(fmt.Sprintf("Download of %s aborted by client after %.2f seconds", report.Path, report.Elapsed.Seconds()),
			"session", report.SessionID,
			"bytes", report.Bytes)
	case StateFailed:
		e.log.Error("download failed",
			"path", report.Path,
			"session", report.SessionID,
			"bytes", report.Bytes,
			"error", err)
	}
	return report
}

type payloadFile struct {
	abs  string
	name string
	info fs.FileInfo
}

// payloadFiles lists the regular files of a payload sorted by relative path.
// For a single file it returns that file named by its base name. Symlinks
// to regular files are included with the target's FileInfo; links to
// directories are not followed. A dangling link is an error.
func (e *Engine) payloadFiles(root string) ([]payloadFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []payloadFile{{abs: root, name: filepath.Base(root), info: info}}, nil
	}

	var (
		mu    sync.Mutex
		files []payloadFile
	)
	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		var fi fs.FileInfo
		switch {
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			fi = info
		case d.Type()&fs.ModeSymlink != 0:
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			if !info.Mode().IsRegular() {
				e.log.Debug("skipping symlink to non-regular file", "path", path)
				return nil
			}
			fi = info
		default:
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		mu.Lock()
		files = append(files, payloadFile{abs: path, name: filepath.ToSlash(rel), info: fi})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(files, func(a, b payloadFile) int {
		return strings.Compare(a.name, b.name)
	})
	return files, nil
}

// copyFile copies path to w through buf.
func copyFile(w io.Writer, path string, buf []byte) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	// Hide File.WriteTo so buf is used.
	_, err = io.CopyBuffer(w, struct{ io.Reader }{f}, buf)
	return err
}
