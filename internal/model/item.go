package model

// Item is a draggable unit on a board: a task card or a sales opportunity.
// Schema changes require a version bump; see internal/version/version.go.
type Item struct {
	Version           int    `json:"_v"`
	ID                string `json:"id"`
	GroupID           string `json:"group_id"`
	Position          int    `json:"position"`
	Title             string `json:"title"`
	Value             int64  `json:"value,omitempty"` // Minor currency units, opportunities only
	Assignee          string `json:"assignee,omitempty"`
	Creator           string `json:"creator"`
	CreatedAtMillis   int64  `json:"created_at_millis"`
	UpdatedAtMillis   int64  `json:"updated_at_millis"`
	CompletedAtMillis int64  `json:"completed_at_millis,omitempty"`
}

// Clone returns a copy of the item. Items hold no reference fields, so a
// value copy is a deep copy.
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// lessInGroup orders items for display: position ascending, then creation
// time, then ID so that duplicate positions still sort deterministically.
func lessInGroup(a, b *Item) bool {
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	if a.CreatedAtMillis != b.CreatedAtMillis {
		return a.CreatedAtMillis < b.CreatedAtMillis
	}
	return a.ID < b.ID
}
