package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	shelfv1 "github.com/jamesainslie/shelf/pkg/api/shelf/v1"
	"github.com/jamesainslie/shelf/pkg/daemon/broadcaster"
	"github.com/jamesainslie/shelf/pkg/daemon/store"
	"github.com/jamesainslie/shelf/pkg/daemon/watcher"
	"github.com/jamesainslie/shelf/pkg/shelf/delivery"
	"github.com/jamesainslie/shelf/pkg/shelf/imagecache"
	"github.com/jamesainslie/shelf/pkg/shelf/library"
	"github.com/jamesainslie/shelf/pkg/shelf/logging"
	"github.com/jamesainslie/shelf/pkg/shelf/types"
)

// maxChunk caps the size of a single Download message.
const maxChunk = 1 << 20

// Service implements the ShelfDaemon gRPC service.
type Service struct {
	library     *library.Library
	store       *store.Store
	engine      *delivery.Engine
	broadcaster *broadcaster.Broadcaster
	watcher     *watcher.Watcher
	startTime   time.Time
	log         *logging.Logger

	mu         sync.Mutex
	shutdown   func()
	onTransfer func(*delivery.TransferReport)
}

// NewService creates a new gRPC service. b may be nil, in which case
// WatchLibrary is unavailable.
func NewService(lib *library.Library, s *store.Store, engine *delivery.Engine, b *broadcaster.Broadcaster) *Service {
	return &Service{
		library:     lib,
		store:       s,
		engine:      engine,
		broadcaster: b,
		startTime:   time.Now(),
		log:         logging.Get("daemon"),
	}
}

// SetWatcher sets the library root watcher reported by Status.
func (s *Service) SetWatcher(w *watcher.Watcher) {
	s.watcher = w
}

// SetShutdownFunc sets the function Shutdown calls to stop the daemon.
func (s *Service) SetShutdownFunc(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = f
}

// SetTransferHook sets a function called with the report of every finished
// Download.
func (s *Service) SetTransferHook(f func(*delivery.TransferReport)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTransfer = f
}

// RunScan runs one scan pass and publishes its progress to subscribers.
func (s *Service) RunScan(ctx context.Context) (*store.ScanSummary, error) {
	s.notify(&broadcaster.Event{Type: broadcaster.EventScanStarted, Path: s.library.Root()})

	summary, err := s.library.Scan(ctx)
	if err != nil {
		if !errors.Is(err, library.ErrScanInProgress) {
			s.notify(&broadcaster.Event{Type: broadcaster.EventScanFailed, Path: s.library.Root(), Err: err.Error()})
		}
		return nil, err
	}

	s.notify(&broadcaster.Event{Type: broadcaster.EventScanFinished, Path: s.library.Root(), Summary: summary})
	return summary, nil
}

// OnLibraryChange is the watcher callback: it rescans and logs the outcome.
func (s *Service) OnLibraryChange(ctx context.Context) {
	s.log.Info("library root changed, rescanning", "root", s.library.Root())
	if _, err := s.RunScan(ctx); err != nil {
		if errors.Is(err, library.ErrScanInProgress) {
			s.log.Debug("rescan skipped, scan already in progress")
			return
		}
		s.log.Error("rescan failed", "error", err)
	}
}

func (s *Service) notify(e *broadcaster.Event) {
	if s.broadcaster != nil {
		s.broadcaster.Notify(e)
	}
}

// Scan runs a scan pass and returns its summary.
func (s *Service) Scan(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	summary, err := s.RunScan(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(summary)
}

// ListGames returns the detected games and, on request, the blacklist.
func (s *Service) ListGames(_ context.Context, req *wrapperspb.BoolValue) (*structpb.Struct, error) {
	games, err := s.store.ListGames()
	if err != nil {
		return nil, toStatus(err)
	}
	lib := shelfv1.Library{Root: s.library.Root(), Games: games}

	if req.GetValue() {
		if lib.Blacklist, err = s.store.ListBlacklist(); err != nil {
			return nil, toStatus(err)
		}
	}
	if lib.LastScan, err = s.store.GetLastScan(); err != nil {
		return nil, toStatus(err)
	}
	return encode(lib)
}

// ListFiles returns the candidate file names under the root.
func (s *Service) ListFiles(_ context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	names, err := s.library.FileNames()
	if err != nil {
		return nil, toStatus(err)
	}
	values := make([]*structpb.Value, len(names))
	for i, name := range names {
		values[i] = structpb.NewStringValue(name)
	}
	return &structpb.ListValue{Values: values}, nil
}

// Download streams a detected game's payload. The filename and size are
// sent as response headers before the first chunk.
func (s *Service) Download(req *wrapperspb.StringValue, stream grpc.ServerStreamingServer[wrapperspb.BytesValue]) error {
	game, err := s.store.GetGame(req.GetValue())
	if err != nil {
		return toStatus(err)
	}

	size, err := s.engine.SizeFor(game)
	if err != nil {
		return toStatus(err)
	}

	md := metadata.Pairs(
		shelfv1.HeaderFilename, s.engine.FilenameFor(game),
		shelfv1.HeaderSize, strconv.FormatInt(size, 10),
	)
	if err := stream.SendHeader(md); err != nil {
		return err
	}

	report := s.engine.Deliver(game, &chunkWriter{stream: stream})

	s.mu.Lock()
	hook := s.onTransfer
	s.mu.Unlock()
	if hook != nil {
		hook(report)
	}

	switch report.State {
	case delivery.StateCompleted:
		return nil
	case delivery.StateAborted:
		return status.Error(codes.Canceled, report.Err.Error())
	default:
		return status.Error(codes.Internal, report.Err.Error())
	}
}

// chunkWriter adapts a Download stream to io.Writer.
type chunkWriter struct {
	stream grpc.ServerStreamingServer[wrapperspb.BytesValue]
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		n := min(len(p), maxChunk)
		// The message may be read after Send returns, so it gets its own copy.
		chunk := make([]byte, n)
		copy(chunk, p[:n])
		if err := w.stream.Send(wrapperspb.Bytes(chunk)); err != nil {
			if w.stream.Context().Err() != nil {
				return written, fmt.Errorf("%w: %v", types.ErrPeerGone, err)
			}
			return written, err
		}
		written += n
		p = p[n:]
	}
	return written, nil
}

// GetImage returns a cached cover image.
func (s *Service) GetImage(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	rc, err := s.engine.ImageFor(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(data), nil
}

// DownloadImages fetches missing cover images into the cache.
func (s *Service) DownloadImages(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	report, err := s.library.DownloadImages(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(shelfv1.ImagesReport{
		Fetched: report.Fetched,
		Cached:  report.Cached,
		NoCover: report.NoCover,
		Failed:  report.Failed,
	})
}

// WatchLibrary streams library events until the client goes away.
func (s *Service) WatchLibrary(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	if s.broadcaster == nil {
		return status.Error(codes.Unavailable, "library watching not available")
	}

	sub := s.broadcaster.Subscribe()
	if sub == nil {
		return status.Error(codes.Unavailable, "failed to subscribe")
	}
	defer s.broadcaster.Unsubscribe(sub.ID)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub.Events:
			if !ok {
				return nil
			}
			msg, err := encode(shelfv1.Event{
				Type:    event.Type.String(),
				Path:    event.Path,
				Time:    event.Time,
				Summary: event.Summary,
				Error:   event.Err,
			})
			if err != nil {
				return err
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// Forget removes a detected game so the next scan looks it up again.
func (s *Service) Forget(_ context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.store.DeleteGame(req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	s.log.Info("forgot game", "path", req.GetValue())
	return &emptypb.Empty{}, nil
}

// Unblacklist removes a blacklist entry so the next scan retries the path.
func (s *Service) Unblacklist(_ context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.store.DeleteBlacklist(req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	s.log.Info("removed blacklist entry", "path", req.GetValue())
	return &emptypb.Empty{}, nil
}

// Prune removes every record under a directory, typically a former library
// root.
func (s *Service) Prune(_ context.Context, req *wrapperspb.StringValue) (*wrapperspb.Int64Value, error) {
	dir := req.GetValue()
	if !filepath.IsAbs(dir) {
		return nil, status.Errorf(codes.InvalidArgument, "prune needs an absolute path, got %q", dir)
	}
	n, err := s.store.DeleteUnder(dir)
	if err != nil {
		return nil, toStatus(err)
	}
	s.log.Info("pruned records", "dir", dir, "removed", n)
	return wrapperspb.Int64(int64(n)), nil
}

// Status returns daemon health information.
func (s *Service) Status(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	st := shelfv1.Status{
		Running:       true,
		PID:           os.Getpid(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		MemoryBytes:   int64(mem.Alloc),
		Root:          s.library.Root(),
		Scanning:      s.library.Scanning(),
		DirectoryMode: s.engine.DirectoryMode(),
	}
	if s.watcher != nil {
		st.Watching = s.watcher.Watching()
	}
	if s.broadcaster != nil {
		st.Subscribers = s.broadcaster.SubscriberCount()
	}

	var err error
	if st.Games, err = s.store.CountGames(); err != nil {
		return nil, toStatus(err)
	}
	if st.Blacklisted, err = s.store.CountBlacklist(); err != nil {
		return nil, toStatus(err)
	}
	if st.LastScan, err = s.store.GetLastScan(); err != nil {
		return nil, toStatus(err)
	}
	return encode(st)
}

// Shutdown gracefully shuts down the daemon.
func (s *Service) Shutdown(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.mu.Lock()
	f := s.shutdown
	s.mu.Unlock()

	s.log.Info("shutdown requested")
	if f != nil {
		// Reply before the server stops.
		go f()
	}
	return &emptypb.Empty{}, nil
}

func encode(v any) (*structpb.Struct, error) {
	msg, err := shelfv1.ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return msg, nil
}

// toStatus maps domain errors to gRPC status errors.
func toStatus(err error) error {
	var (
		scanFailure *types.ScanFailure
		aborted     *types.DownloadAborted
	)
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, imagecache.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, library.ErrScanInProgress):
		return status.Error(codes.Aborted, err.Error())
	case errors.As(err, &scanFailure), errors.As(err, &aborted):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// Ensure Service implements the gRPC server interface.
var _ shelfv1.ShelfDaemonServer = (*Service)(nil)
