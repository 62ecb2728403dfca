package store

import (
	"fmt"

	kanerr "github.com/amterp/kanflow/internal/errors"
	"github.com/amterp/kanflow/internal/model"
)

// resolveBatch validates a batch against the stored board and returns the
// new state of every item the batch actually changes. Items already at
// their target group and position are left out, which is what makes a
// repeated batch a no-op.
//
// For cross-group batches an item entering a completion group from a
// non-completion group is stamped with completedAt; leaving a completion
// group clears the stamp.
func resolveBatch(board *model.Board, batch model.Batch, now int64) ([]*model.Item, error) {
	var changed []*model.Item
	for _, u := range batch.Updates {
		cur := board.Item(u.ItemID)
		if cur == nil {
			return nil, kanerr.ItemNotFound(u.ItemID)
		}
		dst := board.Group(u.GroupID)
		if dst == nil {
			return nil, kanerr.GroupNotFound(u.GroupID, board.ID)
		}
		if u.Position < 0 {
			return nil, kanerr.InvalidField("position", fmt.Sprintf("%d for item %s", u.Position, u.ItemID))
		}
		if cur.GroupID == u.GroupID && cur.Position == u.Position {
			continue
		}

		next := cur.Clone()
		if batch.CrossGroup && cur.GroupID != u.GroupID {
			wasComplete := false
			if src := board.Group(cur.GroupID); src != nil {
				wasComplete = src.Kind.IsCompletion()
			}
			switch {
			case dst.Kind.IsCompletion() && !wasComplete:
				next.CompletedAtMillis = now
			case !dst.Kind.IsCompletion() && wasComplete:
				next.CompletedAtMillis = 0
			}
		}
		next.GroupID = u.GroupID
		next.Position = u.Position
		next.UpdatedAtMillis = now
		changed = append(changed, next)
	}
	return changed, nil
}

// validateNewGroup checks a group about to be added to board.
func validateNewGroup(board *model.Board, group model.Group) error {
	if group.ID == "" {
		return kanerr.InvalidField("group id", "must not be empty")
	}
	if group.Title == "" {
		return kanerr.InvalidField("group title", "must not be empty")
	}
	if board.Group(group.ID) != nil {
		return kanerr.GroupAlreadyExists(group.ID, board.ID)
	}
	if board.GroupByTitle(group.Title) != nil {
		return kanerr.GroupAlreadyExists(group.Title, board.ID)
	}
	if _, err := model.ParseGroupKind(string(group.Kind)); err != nil {
		return kanerr.InvalidField("group kind", err.Error())
	}
	return nil
}

// validateNewItem checks an item about to be added to board.
func validateNewItem(board *model.Board, item *model.Item) error {
	if item.ID == "" {
		return kanerr.InvalidField("item id", "must not be empty")
	}
	if board.Item(item.ID) != nil {
		return &kanerr.AlreadyExistsError{Resource: "item", ID: item.ID}
	}
	if board.Group(item.GroupID) == nil {
		return kanerr.GroupNotFound(item.GroupID, board.ID)
	}
	if item.Position < 0 {
		return kanerr.InvalidField("position", "must not be negative")
	}
	return nil
}
