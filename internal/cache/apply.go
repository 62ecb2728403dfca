// Package cache holds the shared in-memory board snapshots that moves are
// computed against and optimistically written into.
package cache

import "github.com/amterp/kanflow/internal/model"

// Apply returns a new snapshot with every update in set applied. The input
// snapshot is never modified, so it stays valid for rollback. Updates for
// items missing from the snapshot are ignored.
func Apply(snapshot *model.Board, set model.UpdateSet) *model.Board {
	out := snapshot.Clone()
	if out == nil {
		return nil
	}
	index := make(map[string]*model.Item, len(out.Items))
	for _, it := range out.Items {
		index[it.ID] = it
	}
	for _, u := range set {
		if it, ok := index[u.ItemID]; ok {
			it.GroupID = u.GroupID
			it.Position = u.Position
		}
	}
	return out
}
