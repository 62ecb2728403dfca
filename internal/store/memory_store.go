package store

import (
	"context"
	"sort"
	"sync"

	kanerr "github.com/amterp/kanflow/internal/errors"
	"github.com/amterp/kanflow/internal/model"
	"github.com/amterp/kanflow/internal/util"
)

// MemoryStore is an in-process Backend. Nothing survives a restart; it
// backs demos, the memory backend setting and tests.
type MemoryStore struct {
	mu     sync.Mutex
	boards map[string]*model.Board
	now    func() int64

	// BeforeApply, when set, runs before every ApplyBatch. A non-nil
	// error fails the batch without writing anything. Tests use it to
	// inject failures or hold a batch in flight.
	BeforeApply func(ctx context.Context, batch model.Batch) error

	// AfterLoad, when set, runs after LoadBoard has read a board and
	// before it returns it, so tests can hold a stale read.
	AfterLoad func(ctx context.Context, boardID string)

	applied []model.Batch
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		boards: make(map[string]*model.Board),
		now:    util.NowMillis,
	}
}

var _ Backend = (*MemoryStore)(nil)

func (s *MemoryStore) ListBoards(ctx context.Context) ([]*model.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	boards := make([]*model.Board, 0, len(s.boards))
	for _, b := range s.boards {
		c := b.Clone()
		c.Items = nil
		boards = append(boards, c)
	}
	sort.Slice(boards, func(i, j int) bool { return boards[i].ID < boards[j].ID })
	return boards, nil
}

func (s *MemoryStore) LoadBoard(ctx context.Context, boardID string) (*model.Board, error) {
	s.mu.Lock()
	b, ok := s.boards[boardID]
	var board *model.Board
	if ok {
		board = b.Clone()
	}
	hook := s.AfterLoad
	s.mu.Unlock()

	if !ok {
		return nil, kanerr.BoardNotFound(boardID)
	}
	if hook != nil {
		hook(ctx, boardID)
	}
	return board, nil
}

func (s *MemoryStore) CreateBoard(ctx context.Context, board *model.Board) error {
	if board.ID == "" {
		return kanerr.InvalidField("board id", "must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.boards[board.ID]; ok {
		return kanerr.BoardAlreadyExists(board.ID)
	}
	c := board.Clone()
	if c.Items == nil {
		c.Items = []*model.Item{}
	}
	s.boards[board.ID] = c
	return nil
}

func (s *MemoryStore) CreateGroup(ctx context.Context, boardID string, group model.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.boards[boardID]
	if !ok {
		return kanerr.BoardNotFound(boardID)
	}
	if err := validateNewGroup(b, group); err != nil {
		return err
	}
	b.Groups = append(b.Groups, group)
	return nil
}

func (s *MemoryStore) CreateItem(ctx context.Context, boardID string, item *model.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.boards[boardID]
	if !ok {
		return kanerr.BoardNotFound(boardID)
	}
	if err := validateNewItem(b, item); err != nil {
		return err
	}
	b.Items = append(b.Items, item.Clone())
	return nil
}

// ApplyBatch validates the whole batch before writing any of it.
func (s *MemoryStore) ApplyBatch(ctx context.Context, batch model.Batch) error {
	if s.BeforeApply != nil {
		if err := s.BeforeApply(ctx, batch); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.boards[batch.BoardID]
	if !ok {
		return kanerr.BoardNotFound(batch.BoardID)
	}
	changed, err := resolveBatch(b, batch, s.now())
	if err != nil {
		return err
	}
	for _, next := range changed {
		for i, it := range b.Items {
			if it.ID == next.ID {
				b.Items[i] = next
			}
		}
	}
	s.applied = append(s.applied, batch)
	return nil
}

// Applied returns the batches accepted so far, in order.
func (s *MemoryStore) Applied() []model.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Batch, len(s.applied))
	copy(out, s.applied)
	return out
}

// Put replaces a board wholesale, simulating a write by another client.
func (s *MemoryStore) Put(board *model.Board) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boards[board.ID] = board.Clone()
}

func (s *MemoryStore) Close() error {
	return nil
}
