package model

// MoveIntent describes one drag-end event. It is never persisted.
type MoveIntent struct {
	ItemID             string `json:"item_id"`
	SourceGroupID      string `json:"source_group_id"`
	DestinationGroupID string `json:"destination_group_id"`
	DestinationIndex   int    `json:"destination_index"` // 0-based, among the destination's items as rendered
}

// CrossGroup reports whether the intent leaves its source group.
func (m MoveIntent) CrossGroup() bool {
	return m.SourceGroupID != m.DestinationGroupID
}

// Update is one (item, group, position) triple that must be persisted.
type Update struct {
	ItemID   string `json:"item_id"`
	GroupID  string `json:"group_id"`
	Position int    `json:"position"`
}

// UpdateSet is the pending update set produced by reindexing: every item
// whose stored group or position must change, in emission order.
type UpdateSet []Update

// IsEmpty reports whether the set has no updates.
func (s UpdateSet) IsEmpty() bool {
	return len(s) == 0
}

// ItemIDs returns the item IDs in the set, in order.
func (s UpdateSet) ItemIDs() []string {
	ids := make([]string, len(s))
	for i, u := range s {
		ids[i] = u.ItemID
	}
	return ids
}

// GroupIDs returns the distinct group IDs written by the set, in first-seen order.
func (s UpdateSet) GroupIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, u := range s {
		if !seen[u.GroupID] {
			seen[u.GroupID] = true
			ids = append(ids, u.GroupID)
		}
	}
	return ids
}

// Find returns the update for an item, if present.
func (s UpdateSet) Find(itemID string) (Update, bool) {
	for _, u := range s {
		if u.ItemID == itemID {
			return u, true
		}
	}
	return Update{}, false
}

// Batch is the persistence request for one reconciliation. Backends apply
// every update in one write, upserting by item identity, so applying the
// same batch twice leaves the same stored state as applying it once.
type Batch struct {
	ID         string    `json:"id"`
	BoardID    string    `json:"board_id"`
	Actor      string    `json:"actor"`
	Updates    UpdateSet `json:"updates"`
	CrossGroup bool      `json:"cross_group"` // Lets the backend run completion side effects
}
