package cache

import (
	"sync"

	"github.com/amterp/kanflow/internal/model"
)

// FlightState tracks one optimistic move from mutation to settlement.
type FlightState int

const (
	FlightInFlight FlightState = iota
	FlightCommitted
	FlightRolledBack
)

func (s FlightState) String() string {
	switch s {
	case FlightInFlight:
		return "in_flight"
	case FlightCommitted:
		return "committed"
	case FlightRolledBack:
		return "rolled_back"
	}
	return "unknown"
}

// Flight is the record of one optimistic mutation: the snapshot it was
// computed against and the updates it applied.
type Flight struct {
	Before  *model.Board
	Updates model.UpdateSet
	State   FlightState

	gen uint64 // store generation right after this flight's write
}

// Store is the single shared cache for one board. Only optimistic
// mutation and the server-confirmation path write to it; the board it
// holds is never modified in place, every write swaps in a new copy.
type Store struct {
	mu       sync.Mutex
	board    *model.Board
	gen      uint64
	inFlight int
	stale    bool
	settled  uint64 // highest generation committed so far
}

// NewStore creates a store seeded with a server-confirmed snapshot.
func NewStore(board *model.Board) *Store {
	return &Store{board: board.Clone()}
}

// Snapshot returns a private copy of the latest state, optimistic
// mutations included.
func (s *Store) Snapshot() *model.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Clone()
}

// Mutate computes an update set against the latest state and applies it
// in one step, so no reader observes a half-applied move and concurrent
// moves always see each other's optimistic writes. compute must not modify
// the board it is given.
//
// An error or an empty set leaves the store untouched and returns a nil
// Flight. Otherwise the returned Flight is in flight and must be settled
// with Commit or Rollback.
func (s *Store) Mutate(compute func(*model.Board) (model.UpdateSet, error)) (*Flight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := compute(s.board)
	if err != nil || set.IsEmpty() {
		return nil, err
	}

	before := s.board
	s.board = Apply(before, set)
	s.gen++
	s.inFlight++
	return &Flight{Before: before, Updates: set, State: FlightInFlight, gen: s.gen}, nil
}

// Commit settles a flight whose updates were persisted. It reports whether
// a deferred full resync is now due.
//
// A flight committed after a later one reached the backend out of order,
// so the backend may now hold its older values for items both touched.
// The board is marked stale and resynced once everything settles.
func (s *Store) Commit(f *Flight) (resync bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.gen < s.settled {
		s.stale = true
	} else {
		s.settled = f.gen
	}
	f.State = FlightCommitted
	return s.settle()
}

// Rollback undoes a flight whose updates failed to persist and reports
// whether a full resync is now due.
//
// When nothing was written since the flight's own mutation the
// pre-move snapshot comes back verbatim. Otherwise only the flight's items
// are reverted, and only where they still hold the values the flight
// wrote; the board is marked stale so the backend's state replaces the
// patched one once all flights settle.
func (s *Store) Rollback(f *Flight) (resync bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen == f.gen {
		s.board = f.Before
	} else {
		s.board = revert(s.board, f)
		s.stale = true
	}
	s.gen++
	f.State = FlightRolledBack
	return s.settle()
}

func (s *Store) settle() bool {
	if s.inFlight > 0 {
		s.inFlight--
	}
	if s.inFlight == 0 && s.stale {
		s.stale = false
		return true
	}
	return false
}

func revert(current *model.Board, f *Flight) *model.Board {
	var undo model.UpdateSet
	for _, u := range f.Updates {
		now := current.Item(u.ItemID)
		prev := f.Before.Item(u.ItemID)
		if now == nil || prev == nil {
			continue
		}
		if now.GroupID == u.GroupID && now.Position == u.Position {
			undo = append(undo, model.Update{ItemID: u.ItemID, GroupID: prev.GroupID, Position: prev.Position})
		}
	}
	return Apply(current, undo)
}

// MarkStale records that the backend state changed underneath the cache.
// While any flight is in flight the local optimistic state wins and the
// refresh is deferred until the last one settles; deferred reports
// whether that happened. When nothing is in flight the caller should
// refresh right away.
func (s *Store) MarkStale() (deferred bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight > 0 {
		s.stale = true
		return true
	}
	return false
}

// ReplaceResult says what Replace and ReplaceIf did with a snapshot.
type ReplaceResult int

const (
	// Installed means the snapshot is now the cached board.
	Installed ReplaceResult = iota
	// Deferred means flights were open; the board is marked stale and is
	// resynced when they settle.
	Deferred
	// Outdated means the cache was written after the snapshot was loaded,
	// so the snapshot may predate a settled move. Load again.
	Outdated
)

// Generation returns a counter that changes on every write. Read it before
// loading a board from the backend and pass it to ReplaceIf.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Replace installs a server-confirmed snapshot. It refuses while flights
// are in flight, marking the board stale instead.
func (s *Store) Replace(board *model.Board) ReplaceResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replace(board)
}

// ReplaceIf installs board only if nothing was written to the cache since
// Generation returned gen.
func (s *Store) ReplaceIf(board *model.Board, gen uint64) ReplaceResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight == 0 && s.gen != gen {
		return Outdated
	}
	return s.replace(board)
}

func (s *Store) replace(board *model.Board) ReplaceResult {
	if s.inFlight > 0 {
		s.stale = true
		return Deferred
	}
	s.board = board.Clone()
	s.gen++
	s.stale = false
	return Installed
}

// Update applies a server-confirmed change such as a newly created item
// or group. fn receives a private copy it may modify freely.
func (s *Store) Update(fn func(*model.Board)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.board.Clone()
	fn(next)
	s.board = next
	s.gen++
}

// InFlight returns the number of unsettled flights.
func (s *Store) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Stale reports whether a resync is pending.
func (s *Store) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}
