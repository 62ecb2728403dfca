// Package session tracks a single drag gesture from start to drop.
package session

import (
	"errors"
	"sync"

	kanerr "github.com/amterp/kanflow/internal/errors"
	"github.com/amterp/kanflow/internal/model"
	"github.com/amterp/kanflow/internal/reindex"
)

// State is the drag session state.
type State int

const (
	Idle State = iota
	Dragging
	Dropped
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Dropped:
		return "dropped"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ErrBusy is returned by Start while another drag is still open.
var ErrBusy = errors.New("a drag is already in progress")

// Snapshotter supplies the latest board state. *cache.Store satisfies it.
type Snapshotter interface {
	Snapshot() *model.Board
}

// Destination is where the pointer was released.
type Destination struct {
	GroupID string `json:"group_id"`
	Index   int    `json:"index"`
}

// Result is the outcome of a finished drag. Intent is set only when the
// drag was dropped.
type Result struct {
	State  State
	Intent *model.MoveIntent
	Reason string
}

// Session is one user's drag state machine:
// Idle -> Dragging -> {Dropped, Cancelled} -> Idle.
//
// Safe for concurrent use.
type Session struct {
	boards Snapshotter

	mu            sync.Mutex
	state         State
	last          State
	itemID        string
	sourceGroupID string
	originalIndex int
}

// New creates an idle session reading snapshots from boards.
func New(boards Snapshotter) *Session {
	return &Session{boards: boards}
}

// Start begins dragging itemID and records where it came from. The item
// must exist in the latest snapshot.
func (s *Session) Start(itemID string) error {
	snap := s.boards.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Dragging {
		return ErrBusy
	}
	item := snap.Item(itemID)
	if item == nil {
		return kanerr.ItemNotFound(itemID)
	}
	s.state = Dragging
	s.itemID = itemID
	s.sourceGroupID = item.GroupID
	s.originalIndex = snap.IndexOf(itemID)
	return nil
}

// Over reports whether dropping on groupID would be accepted, for drop
// target highlighting. It is false when no drag is open.
func (s *Session) Over(groupID string) bool {
	s.mu.Lock()
	itemID, state := s.itemID, s.state
	s.mu.Unlock()

	if state != Dragging {
		return false
	}
	_, err := reindex.Check(s.boards.Snapshot(), model.MoveIntent{ItemID: itemID, DestinationGroupID: groupID})
	return err == nil
}

// End finishes the drag. A nil destination, or one that group policy
// forbids, cancels silently. Otherwise the drag is dropped and the result
// carries the move intent, validated against the latest snapshot rather
// than the one seen at Start. Either way the session is idle afterwards.
func (s *Session) End(dest *Destination) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Dragging {
		return Result{State: Idle, Reason: "no drag in progress"}
	}
	if dest == nil || dest.GroupID == "" {
		return s.finish(Cancelled, nil, "dropped outside any group")
	}

	intent := model.MoveIntent{
		ItemID:             s.itemID,
		SourceGroupID:      s.sourceGroupID,
		DestinationGroupID: dest.GroupID,
		DestinationIndex:   dest.Index,
	}
	if _, err := reindex.Check(s.boards.Snapshot(), intent); err != nil {
		return s.finish(Cancelled, nil, err.Error())
	}
	return s.finish(Dropped, &intent, "")
}

// Cancel abandons the drag. It is a no-op when idle.
func (s *Session) Cancel() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Dragging {
		return Result{State: Idle}
	}
	return s.finish(Cancelled, nil, "cancelled")
}

func (s *Session) finish(terminal State, intent *model.MoveIntent, reason string) Result {
	s.last = terminal
	s.state = Idle
	s.itemID = ""
	s.sourceGroupID = ""
	s.originalIndex = 0
	return Result{State: terminal, Intent: intent, Reason: reason}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Last returns the terminal state of the most recent drag, or Idle.
func (s *Session) Last() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Origin returns the dragged item, its source group and its index at
// Start. Empty while idle.
func (s *Session) Origin() (itemID, groupID string, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemID, s.sourceGroupID, s.originalIndex
}
