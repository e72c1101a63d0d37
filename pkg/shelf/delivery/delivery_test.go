package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jamesainslie/shelf/pkg/shelf/logging"
	"github.com/jamesainslie/shelf/pkg/shelf/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// dirGame builds a payload directory holding c/d.txt and a/b.txt.
func dirGame(t *testing.T) *types.DetectedGame {
	t.Helper()
	root := filepath.Join(t.TempDir(), "GameB")
	writeFile(t, filepath.Join(root, "c", "d.txt"), "DDDD")
	writeFile(t, filepath.Join(root, "a", "b.txt"), "BB")
	return &types.DetectedGame{Path: root}
}

func fileGame(t *testing.T, content string) *types.DetectedGame {
	t.Helper()
	path := filepath.Join(t.TempDir(), "GameA.iso")
	writeFile(t, path, content)
	return &types.DetectedGame{Path: path}
}

func newEngine(opts Options) (*Engine, *bytes.Buffer) {
	var logs bytes.Buffer
	opts.Logger = logging.New(&logs, "delivery", logging.LevelDebug)
	return New(opts, nil), &logs
}

// failingSink fails every write from the failAt-th on (1-based).
type failingSink struct {
	failAt int
	err    error
	writes int
	buf    bytes.Buffer
}

func (f *failingSink) Write(p []byte) (int, error) {
	f.writes++
	if f.writes >= f.failAt {
		return 0, f.err
	}
	return f.buf.Write(p)
}

func TestFilenameFor(t *testing.T) {
	raw, _ := newEngine(Options{})
	archive, _ := newEngine(Options{DirectoryMode: ModeArchive})

	file := fileGame(t, "x")
	dir := dirGame(t)

	assert.Equal(t, "GameA.iso", raw.FilenameFor(file))
	assert.Equal(t, "GameB.exe", raw.FilenameFor(dir))
	assert.Equal(t, "GameA.iso", archive.FilenameFor(file))
	assert.Equal(t, "GameB.zip", archive.FilenameFor(dir))
}

func TestSizeFor(t *testing.T) {
	e, _ := newEngine(Options{})

	size, err := e.SizeFor(fileGame(t, strings.Repeat("x", 5000)))
	require.NoError(t, err)
	assert.Positive(t, size)

	size, err = e.SizeFor(dirGame(t))
	require.NoError(t, err)
	assert.Zero(t, size)

	_, err = e.SizeFor(&types.DetectedGame{Path: filepath.Join(t.TempDir(), "missing.iso")})
	var aborted *types.DownloadAborted
	require.True(t, errors.As(err, &aborted), "err = %v", err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStreamFile(t *testing.T) {
	e, _ := newEngine(Options{BufferSize: 7})
	content := strings.Repeat("0123456789", 10)
	var sink bytes.Buffer

	report := e.Stream(fileGame(t, content), &sink)
	require.Equal(t, StateCompleted, report.State, "err: %v", report.Err)
	assert.Equal(t, content, sink.String())
	assert.Equal(t, int64(len(content)), report.Bytes)
	assert.Equal(t, 1, report.Files)
	assert.NotEqual(t, [16]byte{}, [16]byte(report.SessionID))
}

func TestStreamDirectoryConcatenates(t *testing.T) {
	e, _ := newEngine(Options{})
	var sink bytes.Buffer

	report := e.Stream(dirGame(t), &sink)
	require.Equal(t, StateCompleted, report.State, "err: %v", report.Err)
	assert.Equal(t, "BBDDDD", sink.String())
	assert.Equal(t, 2, report.Files)
}

func TestStreamEmptyDirectory(t *testing.T) {
	e, _ := newEngine(Options{})
	var sink bytes.Buffer

	report := e.Stream(&types.DetectedGame{Path: t.TempDir()}, &sink)
	assert.Equal(t, StateCompleted, report.State)
	assert.Zero(t, sink.Len())
}

func TestStreamClientDisconnect(t *testing.T) {
	e, logs := newEngine(Options{BufferSize: 4})
	game := fileGame(t, strings.Repeat("z", 40))
	sink := &failingSink{failAt: 3, err: types.ErrPeerGone}

	report := e.Stream(game, sink)
	assert.Equal(t, StateAborted, report.State)
	assert.Equal(t, int64(8), report.Bytes)
	assert.Equal(t, 3, sink.writes, "engine kept writing after the client left")

	var aborted *types.TransferAborted
	require.True(t, errors.As(report.Err, &aborted))
	assert.ErrorIs(t, report.Err, types.ErrPeerGone)
	assert.Contains(t, logs.String(), "aborted by client")
	assert.NotContains(t, logs.String(), "ERRO")
}

func TestStreamWriteFailure(t *testing.T) {
	e, logs := newEngine(Options{BufferSize: 4})
	sink := &failingSink{failAt: 2, err: errors.New("disk full")}

	report := e.Stream(fileGame(t, strings.Repeat("z", 40)), sink)
	assert.Equal(t, StateFailed, report.State)

	var ioErr *types.IOFailure
	require.True(t, errors.As(report.Err, &ioErr))
	assert.Equal(t, "write", ioErr.Op)
	assert.Contains(t, logs.String(), "download failed")
}

func TestStreamMissingPayload(t *testing.T) {
	e, _ := newEngine(Options{})
	var sink bytes.Buffer

	report := e.Stream(&types.DetectedGame{Path: filepath.Join(t.TempDir(), "gone")}, &sink)
	assert.Equal(t, StateFailed, report.State)
	var ioErr *types.IOFailure
	require.True(t, errors.As(report.Err, &ioErr))
	assert.Equal(t, "walk", ioErr.Op)
}

func readArchive(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	out := make(map[string]string)
	var names []string
	for _, f := range zr.File {
		assert.Equal(t, zip.Store, f.Method, "entry %s is compressed", f.Name)
		assert.Equal(t, f.UncompressedSize64, f.CompressedSize64, "entry %s stored size", f.Name)
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		_ = rc.Close()
		out[f.Name] = string(body)
		names = append(names, f.Name)
	}
	out["__order__"] = strings.Join(names, ",")
	return out
}

func TestStreamAsArchive(t *testing.T) {
	e, _ := newEngine(Options{})
	var sink bytes.Buffer

	report := e.StreamAsArchive(dirGame(t), &sink)
	require.Equal(t, StateCompleted, report.State, "err: %v", report.Err)

	entries := readArchive(t, sink.Bytes())
	assert.Equal(t, "a/b.txt,c/d.txt", entries["__order__"])
	assert.Equal(t, "BB", entries["a/b.txt"])
	assert.Equal(t, "DDDD", entries["c/d.txt"])
}

func TestStreamAsArchiveSingleFile(t *testing.T) {
	e, _ := newEngine(Options{})
	var sink bytes.Buffer

	report := e.StreamAsArchive(fileGame(t, "payload"), &sink)
	require.Equal(t, StateCompleted, report.State)

	entries := readArchive(t, sink.Bytes())
	assert.Equal(t, "GameA.iso", entries["__order__"])
	assert.Equal(t, "payload", entries["GameA.iso"])
}

func TestStreamAsArchiveClientDisconnect(t *testing.T) {
	e, _ := newEngine(Options{})
	sink := &failingSink{failAt: 1, err: syscall.EPIPE}

	report := e.StreamAsArchive(dirGame(t), sink)
	assert.Equal(t, StateAborted, report.State)
}

// linkedGame builds GameC holding x.txt and y.bin, a symlink to a file
// outside the payload, plus a symlink to a directory.
func linkedGame(t *testing.T) *types.DetectedGame {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "GameC")
	writeFile(t, filepath.Join(root, "x.txt"), "XX")
	writeFile(t, filepath.Join(base, "a.bin"), "AAAA")
	writeFile(t, filepath.Join(base, "extras", "z.txt"), "ZZ")
	require.NoError(t, os.Symlink(filepath.Join(base, "a.bin"), filepath.Join(root, "y.bin")))
	require.NoError(t, os.Symlink(filepath.Join(base, "extras"), filepath.Join(root, "extras")))
	return &types.DetectedGame{Path: root}
}

func TestStreamFollowsFileSymlinks(t *testing.T) {
	e, _ := newEngine(Options{})
	var sink bytes.Buffer

	report := e.Stream(linkedGame(t), &sink)
	require.Equal(t, StateCompleted, report.State, "err: %v", report.Err)
	assert.Equal(t, "XXAAAA", sink.String())
	assert.Equal(t, 2, report.Files)
}

func TestStreamAsArchiveFollowsFileSymlinks(t *testing.T) {
	e, _ := newEngine(Options{})
	var sink bytes.Buffer

	report := e.StreamAsArchive(linkedGame(t), &sink)
	require.Equal(t, StateCompleted, report.State, "err: %v", report.Err)

	entries := readArchive(t, sink.Bytes())
	assert.Equal(t, "x.txt,y.bin", entries["__order__"])
	assert.Equal(t, "AAAA", entries["y.bin"])
}

func TestStreamDanglingSymlinkFails(t *testing.T) {
	e, _ := newEngine(Options{})
	root := filepath.Join(t.TempDir(), "GameD")
	writeFile(t, filepath.Join(root, "x.txt"), "XX")
	require.NoError(t, os.Symlink(filepath.Join(root, "missing"), filepath.Join(root, "y.bin")))

	var sink bytes.Buffer
	report := e.Stream(&types.DetectedGame{Path: root}, &sink)
	assert.Equal(t, StateFailed, report.State)
	assert.Zero(t, sink.Len())
}

func TestDeliverHonoursDirectoryMode(t *testing.T) {
	raw, _ := newEngine(Options{})
	archive, _ := newEngine(Options{DirectoryMode: ModeArchive})
	dir := dirGame(t)

	var rawOut, zipOut bytes.Buffer
	require.Equal(t, StateCompleted, raw.Deliver(dir, &rawOut).State)
	require.Equal(t, StateCompleted, archive.Deliver(dir, &zipOut).State)

	assert.Equal(t, "BBDDDD", rawOut.String())
	assert.True(t, bytes.HasPrefix(zipOut.Bytes(), []byte("PK")), "archive mode did not emit a zip")

	// Files are never archived.
	var fileOut bytes.Buffer
	archive.Deliver(fileGame(t, "plain"), &fileOut)
	assert.Equal(t, "plain", fileOut.String())
}

type fakeImages map[string]string

func (f fakeImages) Get(_ context.Context, id string) (io.ReadCloser, error) {
	data, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("%s: not found", id)
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func TestImageFor(t *testing.T) {
	e := New(Options{}, fakeImages{"co1": "png"})

	r, err := e.ImageFor(context.Background(), "co1")
	require.NoError(t, err)
	data, _ := io.ReadAll(r)
	assert.Equal(t, "png", string(data))

	_, err = e.ImageFor(context.Background(), "missing")
	assert.Error(t, err)

	_, err = New(Options{}, nil).ImageFor(context.Background(), "co1")
	assert.Error(t, err)
}

func TestIsPeerGone(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", types.ErrPeerGone, true},
		{"wrapped sentinel", fmt.Errorf("send: %w", types.ErrPeerGone), true},
		{"broken pipe", &os.SyscallError{Syscall: "write", Err: syscall.EPIPE}, true},
		{"reset", &net.OpError{Op: "write", Err: syscall.ECONNRESET}, true},
		{"closed conn", net.ErrClosed, true},
		{"closed pipe", io.ErrClosedPipe, true},
		{"context", context.Canceled, true},
		{"grpc canceled", status.Error(codes.Canceled, "context canceled"), true},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), false},
		{"disk full", errors.New("no space left on device"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPeerGone(tt.err))
		})
	}
}

func TestSessionTransitions(t *testing.T) {
	s := newSession("/x")
	assert.Equal(t, StateIdle, s.State)

	s.advance(StateStarted)
	assert.False(t, s.StartedAt.IsZero())
	s.advance(StateStreamingRaw)
	s.advance(StateCompleted)
	assert.True(t, s.State.Terminal())

	assert.Panics(t, func() { s.advance(StateStreamingArchive) })
	assert.Panics(t, func() { newSession("/y").advance(StateCompleted) })
}
