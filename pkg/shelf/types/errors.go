package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrPeerGone is returned by output sinks when the remote client disconnected.
var ErrPeerGone = errors.New("peer disconnected")

// ScanFailure is returned when the library root cannot be read.
// It aborts the whole scan pass.
type ScanFailure struct {
	Root string
	Err  error
}

func (e *ScanFailure) Error() string {
	return fmt.Sprintf("scanning library root %s: %v", e.Root, e.Err)
}

func (e *ScanFailure) Unwrap() error { return e.Err }

// TransferAborted records that the client went away mid-stream.
// It is expected and never propagated past the delivery engine.
type TransferAborted struct {
	Path    string
	Elapsed time.Duration
	Err     error
}

func (e *TransferAborted) Error() string {
	return fmt.Sprintf("transfer of %s aborted by client after %s", e.Path, e.Elapsed.Round(time.Millisecond))
}

func (e *TransferAborted) Unwrap() error { return e.Err }

// IOFailure records an unexpected I/O error that ended a transfer.
type IOFailure struct {
	Path string
	Op   string
	Err  error
}

func (e *IOFailure) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOFailure) Unwrap() error { return e.Err }

// DownloadAborted is returned when the download size of a game cannot be probed.
type DownloadAborted struct {
	Path string
	Err  error
}

func (e *DownloadAborted) Error() string {
	return fmt.Sprintf("download of %s aborted: %v", e.Path, e.Err)
}

func (e *DownloadAborted) Unwrap() error { return e.Err }
