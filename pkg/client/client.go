// Package client provides a client for connecting to the shelfd daemon.
// It wraps the gRPC client with convenience methods and type conversions.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	shelfv1 "github.com/jamesainslie/shelf/pkg/api/shelf/v1"
	"github.com/jamesainslie/shelf/pkg/daemon"
	"github.com/jamesainslie/shelf/pkg/daemon/store"
	"github.com/jamesainslie/shelf/pkg/shelf/config"
	"github.com/jamesainslie/shelf/pkg/shelf/library"
)

// Client connects to the shelfd daemon via gRPC.
type Client struct {
	conn   *grpc.ClientConn
	client shelfv1.ShelfDaemonClient
}

// DownloadInfo describes a finished download.
type DownloadInfo struct {
	Filename string
	// Size is the size announced by the daemon; 0 for directories.
	Size int64
	// Written is the number of bytes received.
	Written int64
}

// DaemonPaths configures paths for daemon operations.
// Empty fields use defaults.
type DaemonPaths struct {
	Binary     string // Path to shelfd binary (auto-discovered if empty)
	Socket     string // Unix socket path
	PID        string // PID file path
	ConfigFile string // Passed to shelfd as --config when set
}

// withDefaults returns a copy with empty fields filled with defaults.
func (p DaemonPaths) withDefaults() DaemonPaths {
	if p.Socket == "" {
		p.Socket = config.DefaultSocketPath()
	}
	if p.PID == "" {
		p.PID = config.DefaultPIDPath()
	}
	return p
}

// Connect establishes a connection to the shelfd daemon.
// Uses a default timeout of 5 seconds.
func Connect(socketPath string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ConnectWithContext(ctx, socketPath)
}

// ConnectWithContext establishes a connection to the shelfd daemon with a custom context.
func ConnectWithContext(ctx context.Context, socketPath string) (*Client, error) {
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("daemon socket not found at %s", socketPath)
	}

	target := "unix://" + socketPath

	//nolint:staticcheck // grpc.DialContext is deprecated but NewClient doesn't support blocking
	conn, err := grpc.DialContext(
		ctx,
		target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}

	return &Client{
		conn:   conn,
		client: shelfv1.NewShelfDaemonClient(conn),
	}, nil
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Scan runs a scan pass on the daemon.
func (c *Client) Scan(ctx context.Context) (*store.ScanSummary, error) {
	resp, err := c.client.Scan(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, fromStatus("Scan", err)
	}
	var summary store.ScanSummary
	if err := shelfv1.FromStruct(resp, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Library returns the detected games, and the blacklist when requested.
func (c *Client) Library(ctx context.Context, includeBlacklist bool) (*shelfv1.Library, error) {
	resp, err := c.client.ListGames(ctx, wrapperspb.Bool(includeBlacklist))
	if err != nil {
		return nil, fromStatus("ListGames", err)
	}
	var lib shelfv1.Library
	if err := shelfv1.FromStruct(resp, &lib); err != nil {
		return nil, err
	}
	return &lib, nil
}

// Files returns the candidate file names under the library root.
func (c *Client) Files(ctx context.Context) ([]string, error) {
	resp, err := c.client.ListFiles(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, fromStatus("ListFiles", err)
	}
	names := make([]string, 0, len(resp.GetValues()))
	for _, v := range resp.GetValues() {
		names = append(names, v.GetStringValue())
	}
	return names, nil
}

// Download streams the payload of the game at path into w.
func (c *Client) Download(ctx context.Context, path string, w io.Writer) (*DownloadInfo, error) {
	stream, err := c.client.Download(ctx, wrapperspb.String(path))
	if err != nil {
		return nil, fromStatus("Download", err)
	}

	md, err := stream.Header()
	if err != nil {
		return nil, fromStatus("Download", err)
	}
	info := &DownloadInfo{}
	if v := md.Get(shelfv1.HeaderFilename); len(v) > 0 {
		info.Filename = v[0]
	}
	if v := md.Get(shelfv1.HeaderSize); len(v) > 0 {
		info.Size, _ = strconv.ParseInt(v[0], 10, 64)
	}

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return info, nil
		}
		if err != nil {
			return info, fromStatus("Download", err)
		}
		n, err := w.Write(chunk.GetValue())
		info.Written += int64(n)
		if err != nil {
			return info, fmt.Errorf("writing download: %w", err)
		}
	}
}

// Image returns a cached cover image.
func (c *Client) Image(ctx context.Context, id string) ([]byte, error) {
	resp, err := c.client.GetImage(ctx, wrapperspb.String(id))
	if err != nil {
		return nil, fromStatus("GetImage", err)
	}
	return resp.GetValue(), nil
}

// DownloadImages asks the daemon to fetch missing cover images.
func (c *Client) DownloadImages(ctx context.Context) (*shelfv1.ImagesReport, error) {
	resp, err := c.client.DownloadImages(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, fromStatus("DownloadImages", err)
	}
	var report shelfv1.ImagesReport
	if err := shelfv1.FromStruct(resp, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Watch subscribes to library events. The channel is closed when the
// context is cancelled or the daemon goes away.
func (c *Client) Watch(ctx context.Context) (<-chan shelfv1.Event, error) {
	stream, err := c.client.WatchLibrary(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, fromStatus("WatchLibrary", err)
	}

	events := make(chan shelfv1.Event, 100)
	go func() {
		defer close(events)
		for {
			msg, err := stream.Recv()
			if err != nil {
				return
			}
			var ev shelfv1.Event
			if err := shelfv1.FromStruct(msg, &ev); err != nil {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

// Forget removes a detected game.
func (c *Client) Forget(ctx context.Context, path string) error {
	if _, err := c.client.Forget(ctx, wrapperspb.String(path)); err != nil {
		return fromStatus("Forget", err)
	}
	return nil
}

// Unblacklist removes a blacklist entry.
func (c *Client) Unblacklist(ctx context.Context, path string) error {
	if _, err := c.client.Unblacklist(ctx, wrapperspb.String(path)); err != nil {
		return fromStatus("Unblacklist", err)
	}
	return nil
}

// Prune removes every game and blacklist entry under dir and returns the
// number of records removed.
func (c *Client) Prune(ctx context.Context, dir string) (int, error) {
	resp, err := c.client.Prune(ctx, wrapperspb.String(dir))
	if err != nil {
		return 0, fromStatus("Prune", err)
	}
	return int(resp.GetValue()), nil
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (*shelfv1.Status, error) {
	resp, err := c.client.Status(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, fromStatus("Status", err)
	}
	return decodeStatus(resp)
}

func decodeStatus(resp *structpb.Struct) (*shelfv1.Status, error) {
	var st shelfv1.Status
	if err := shelfv1.FromStruct(resp, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Shutdown requests daemon shutdown.
func (c *Client) Shutdown(ctx context.Context) error {
	if _, err := c.client.Shutdown(ctx, &emptypb.Empty{}); err != nil {
		return fromStatus("Shutdown", err)
	}
	return nil
}

// fromStatus turns gRPC status errors back into the sentinel errors callers
// check for.
func fromStatus(rpc string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%s RPC failed: %w", rpc, err)
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", store.ErrNotFound, st.Message())
	case codes.Aborted:
		return fmt.Errorf("%w: %s", library.ErrScanInProgress, st.Message())
	case codes.Canceled:
		return fmt.Errorf("%s RPC failed: %w", rpc, context.Canceled)
	default:
		return fmt.Errorf("%s RPC failed: %s", rpc, st.Message())
	}
}

// StartDaemon starts the shelfd daemon in the background.
// Idempotent: returns nil if daemon is already running.
func StartDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	if daemon.IsDaemonRunning(paths.PID) {
		return nil
	}

	binary, err := resolveBinary(paths.Binary)
	if err != nil {
		return fmt.Errorf("find shelfd: %w", err)
	}

	statusPath := daemon.StatusPath(filepath.Dir(paths.Socket))
	_ = os.Remove(statusPath)

	var args []string
	if paths.ConfigFile != "" {
		args = append(args, "--config", paths.ConfigFile)
	}

	// Use exec.Command (not CommandContext) intentionally: daemon must outlive caller
	cmd := exec.Command(binary, args...) //nolint:gosec // binary path is validated
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}

	// Poll for socket OR status file
	for range 50 {
		time.Sleep(100 * time.Millisecond)

		if _, err := os.Stat(paths.Socket); err == nil {
			return nil
		}

		if st, err := daemon.ReadStatus(statusPath); err == nil {
			switch st.Status {
			case daemon.StatusReady:
				return nil
			case daemon.StatusError:
				return fmt.Errorf("daemon failed to start: %s", st.Error)
			}
		}
	}

	return errors.New("daemon did not become ready within timeout")
}

// StopDaemon stops the daemon gracefully via RPC.
// Idempotent: returns nil if daemon is not running.
func StopDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	if !daemon.IsDaemonRunning(paths.PID) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := ConnectWithContext(ctx, paths.Socket)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer client.Close()

	if err := client.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown daemon: %w", err)
	}

	for range 20 {
		time.Sleep(250 * time.Millisecond)
		if !daemon.IsDaemonRunning(paths.PID) {
			return nil
		}
	}

	return errors.New("daemon did not stop within timeout")
}

// IsDaemonRunning reports whether the daemon with the given PID file is alive.
func IsDaemonRunning(pidPath string) bool {
	return daemon.IsDaemonRunning(pidPath)
}

// resolveBinary finds the shelfd binary path.
// Priority: configured path > same directory as executable > PATH.
func resolveBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured binary not found: %s", configured)
		}
		return configured, nil
	}

	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), "shelfd")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath("shelfd"); err == nil {
		return path, nil
	}

	return "", errors.New("shelfd not found")
}
