package delivery

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of a transfer.
type State int

// Transfer states. A session moves Idle → Started → StreamingRaw or
// StreamingArchive → Completed, Aborted, or Failed.
const (
	StateIdle State = iota
	StateStarted
	StateStreamingRaw
	StateStreamingArchive
	StateCompleted
	StateAborted
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarted:
		return "started"
	case StateStreamingRaw:
		return "streaming_raw"
	case StateStreamingArchive:
		return "streaming_archive"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted || s == StateFailed
}

var transitions = map[State][]State{
	StateIdle:             {StateStarted},
	StateStarted:          {StateStreamingRaw, StateStreamingArchive, StateFailed},
	StateStreamingRaw:     {StateCompleted, StateAborted, StateFailed},
	StateStreamingArchive: {StateCompleted, StateAborted, StateFailed},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransferSession is the state of one delivery call. It is owned by the
// goroutine running the transfer and never shared.
type TransferSession struct {
	ID        uuid.UUID
	Target    string
	StartedAt time.Time
	State     State
}

func newSession(target string) *TransferSession {
	return &TransferSession{ID: uuid.New(), Target: target, State: StateIdle}
}

// advance moves the session to next. Invalid transitions panic; they are
// programming errors in the engine.
func (s *TransferSession) advance(next State) {
	if !canTransition(s.State, next) {
		panic("delivery: invalid transition " + s.State.String() + " -> " + next.String())
	}
	if next == StateStarted {
		s.StartedAt = time.Now()
	}
	s.State = next
}

// TransferReport describes a finished transfer. It is for observability only.
type TransferReport struct {
	SessionID uuid.UUID
	Path      string
	State     State
	Bytes     int64
	Files     int
	Elapsed   time.Duration

	// Err is a *types.TransferAborted or *types.IOFailure when State is
	// Aborted or Failed.
	Err error
}
