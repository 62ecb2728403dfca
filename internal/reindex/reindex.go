// Package reindex computes the position updates that realize a move.
//
// Every function here is pure: it reads a board snapshot and returns the
// minimal update set, never touching the snapshot or any I/O.
package reindex

import (
	kanerr "github.com/amterp/kanflow/internal/errors"
	"github.com/amterp/kanflow/internal/model"
)

// Check evaluates group policy for an intent against the current snapshot.
// The item's group in the snapshot is authoritative; the intent's source
// group is only a hint from whoever rendered the board.
func Check(board *model.Board, intent model.MoveIntent) (*model.Item, error) {
	item := board.Item(intent.ItemID)
	if item == nil {
		return nil, kanerr.ItemNotFound(intent.ItemID)
	}
	src := board.Group(item.GroupID)
	if src == nil {
		return nil, kanerr.GroupNotFound(item.GroupID, board.ID)
	}
	dst := board.Group(intent.DestinationGroupID)
	if dst == nil {
		return nil, kanerr.GroupNotFound(intent.DestinationGroupID, board.ID)
	}
	if src.ID == dst.ID {
		return item, nil
	}
	if !src.Policy.AcceptsOutgoing {
		return nil, kanerr.PolicyViolation(item.ID, "group "+src.Title+" does not allow moving items out")
	}
	if !dst.Policy.AcceptsIncoming {
		return nil, kanerr.PolicyViolation(item.ID, "group "+dst.Title+" does not accept items")
	}
	return item, nil
}

// Compute returns the pending update set for intent. The destination index
// is clamped to the destination's size: after removal of the item for a
// same-group move, before insertion for a cross-group one.
//
// Errors are NotFoundError for an unknown item or group and InvalidMoveError
// for a policy violation. Either way the caller must abort the move.
func Compute(board *model.Board, intent model.MoveIntent) (model.UpdateSet, error) {
	item, err := Check(board, intent)
	if err != nil {
		return nil, err
	}

	if item.GroupID == intent.DestinationGroupID {
		return reorder(board, item, intent.DestinationIndex), nil
	}
	return transfer(board, item, intent.DestinationGroupID, intent.DestinationIndex), nil
}

func reorder(board *model.Board, item *model.Item, index int) model.UpdateSet {
	items := board.GroupItems(item.GroupID)
	current := indexOf(items, item.ID)
	rest := remove(items, current)

	index = clamp(index, len(rest))
	if index == current {
		return nil
	}
	return renumber(insert(rest, index, item), item.GroupID, "")
}

func transfer(board *model.Board, item *model.Item, destID string, index int) model.UpdateSet {
	src := board.GroupItems(item.GroupID)
	set := renumber(remove(src, indexOf(src, item.ID)), item.GroupID, "")

	dst := board.GroupItems(destID)
	index = clamp(index, len(dst))
	return append(set, renumber(insert(dst, index, item), destID, item.ID)...)
}

// Normalize re-contiguates one group to 0..N-1 in display order. It returns
// only the items whose position changes.
func Normalize(board *model.Board, groupID string) model.UpdateSet {
	return renumber(board.GroupItems(groupID), groupID, "")
}

// NextPosition returns the position for an item created in groupID:
// one past the highest existing position, or 0 for an empty group.
func NextPosition(board *model.Board, groupID string) int {
	next := 0
	for _, it := range board.Items {
		if it.GroupID == groupID && it.Position >= next {
			next = it.Position + 1
		}
	}
	return next
}

// IsContiguous reports whether a group's positions are exactly 0..N-1.
func IsContiguous(board *model.Board, groupID string) bool {
	for i, it := range board.GroupItems(groupID) {
		if it.Position != i {
			return false
		}
	}
	return true
}

// renumber assigns index positions to items in groupID and emits an update
// for each one whose stored value differs. The moved item is always
// emitted since its group changes.
func renumber(items []*model.Item, groupID, movedID string) model.UpdateSet {
	var set model.UpdateSet
	for i, it := range items {
		if it.ID == movedID || it.GroupID != groupID || it.Position != i {
			set = append(set, model.Update{ItemID: it.ID, GroupID: groupID, Position: i})
		}
	}
	return set
}

func indexOf(items []*model.Item, id string) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func remove(items []*model.Item, i int) []*model.Item {
	out := make([]*model.Item, 0, len(items))
	out = append(out, items[:i]...)
	return append(out, items[i+1:]...)
}

func insert(items []*model.Item, i int, item *model.Item) []*model.Item {
	out := make([]*model.Item, 0, len(items)+1)
	out = append(out, items[:i]...)
	out = append(out, item)
	return append(out, items[i:]...)
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
