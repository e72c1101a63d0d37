// Package catalog looks up game titles in an external metadata catalog.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jamesainslie/shelf/pkg/shelf/types"
)

// Client resolves a title to catalog metadata.
//
// Lookup never returns a Go error. Transport and server failures are
// reported as types.LookupFailed so callers can tell them apart from a
// confirmed miss. Implementations must be safe for concurrent use.
type Client interface {
	Lookup(ctx context.Context, title string) types.LookupResult
}

// ErrNotConfigured is the failure reported by Unconfigured.
var ErrNotConfigured = errors.New("catalog credentials not configured")

// Unconfigured fails every lookup with ErrNotConfigured. It stands in for the
// HTTP client when no credentials are set so scans still list candidates.
type Unconfigured struct{}

// Lookup implements Client.
func (Unconfigured) Lookup(context.Context, string) types.LookupResult {
	return types.Failed(ErrNotConfigured)
}

// HTTPStatusError reports a non-2xx response from the catalog.
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.URL, body)
}

// Static is an in-memory Client keyed by exact title. Titles in Errors fail,
// titles in Records hit, everything else misses.
type Static struct {
	Records map[string]types.CatalogRecord
	Errors  map[string]error

	// Delay is applied to every lookup before answering.
	Delay time.Duration

	mu    sync.Mutex
	calls []string
}

// Lookup implements Client.
func (s *Static) Lookup(ctx context.Context, title string) types.LookupResult {
	s.mu.Lock()
	s.calls = append(s.calls, title)
	s.mu.Unlock()

	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return types.Failed(ctx.Err())
		}
	}

	if err, ok := s.Errors[title]; ok {
		return types.Failed(err)
	}
	if rec, ok := s.Records[title]; ok {
		return types.Hit(rec)
	}
	return types.Miss()
}

// Calls returns the titles looked up so far, in call order.
func (s *Static) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}
