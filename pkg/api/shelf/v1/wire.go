package shelfv1

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jamesainslie/shelf/pkg/daemon/store"
	"github.com/jamesainslie/shelf/pkg/shelf/types"
)

// Library is the ListGames reply.
type Library struct {
	Root      string                  `json:"root"`
	Games     []*types.DetectedGame   `json:"games"`
	Blacklist []*types.BlacklistEntry `json:"blacklist,omitempty"`
	LastScan  *store.ScanSummary      `json:"last_scan,omitempty"`
}

// ImagesReport is the DownloadImages reply.
type ImagesReport struct {
	Fetched int `json:"fetched"`
	Cached  int `json:"cached"`
	NoCover int `json:"no_cover"`
	Failed  int `json:"failed"`
}

// Status is the Status reply.
type Status struct {
	Running       bool               `json:"running"`
	PID           int                `json:"pid"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	MemoryBytes   int64              `json:"memory_bytes"`
	Root          string             `json:"root"`
	Watching      bool               `json:"watching"`
	Scanning      bool               `json:"scanning"`
	Games         int64              `json:"games"`
	Blacklisted   int64              `json:"blacklisted"`
	Subscribers   int                `json:"subscribers"`
	DirectoryMode string             `json:"directory_mode"`
	LastScan      *store.ScanSummary `json:"last_scan,omitempty"`
}

// Event types carried by WatchLibrary.
const (
	EventScanStarted  = "scan_started"
	EventScanFinished = "scan_finished"
	EventScanFailed   = "scan_failed"
	EventEntryAdded   = "entry_added"
	EventEntryRemoved = "entry_removed"
)

// Event is one WatchLibrary message.
type Event struct {
	Type    string             `json:"type"`
	Path    string             `json:"path,omitempty"`
	Time    time.Time          `json:"time"`
	Summary *store.ScanSummary `json:"summary,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// ToStruct encodes v through its JSON form.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return s, nil
}

// FromStruct decodes s into v, the inverse of ToStruct.
func FromStruct(s *structpb.Struct, v any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}
