package store

import (
	"context"

	"github.com/amterp/kanflow/internal/model"
)

// Backend is a backend of record for boards.
//
// ApplyBatch writes every update of a batch in one call and upserts by item
// identity, so repeating a batch leaves the stored state unchanged. A batch
// that references an unknown item or group is rejected whole.
type Backend interface {
	ListBoards(ctx context.Context) ([]*model.Board, error) // Groups only, no items
	LoadBoard(ctx context.Context, boardID string) (*model.Board, error)
	CreateBoard(ctx context.Context, board *model.Board) error
	CreateGroup(ctx context.Context, boardID string, group model.Group) error
	CreateItem(ctx context.Context, boardID string, item *model.Item) error
	ApplyBatch(ctx context.Context, batch model.Batch) error
	Close() error
}
