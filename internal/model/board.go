package model

import "sort"

// Board is a full snapshot of one board: its groups and every item on it.
// The group list is stored as board.toml in the board directory; items are
// stored one JSON file each and are never written into the TOML.
type Board struct {
	Schema string  `toml:"kanflow_schema" json:"-"`
	ID     string  `toml:"id" json:"id"`
	Name   string  `toml:"name" json:"name"`
	Groups []Group `toml:"groups" json:"groups"`
	Items  []*Item `toml:"-" json:"items"`
}

// DefaultGroups returns the groups for a new task board.
func DefaultGroups() []Group {
	return []Group{
		{Title: "Backlog", Color: "#6b7280", Kind: GroupKindActive, Policy: DefaultPolicy(GroupKindActive)},
		{Title: "In Progress", Color: "#f59e0b", Kind: GroupKindActive, Policy: DefaultPolicy(GroupKindActive)},
		{Title: "Done", Color: "#10b981", Kind: GroupKindDone, Policy: DefaultPolicy(GroupKindDone)},
	}
}

// PipelineGroups returns the groups for a new sales pipeline board.
func PipelineGroups() []Group {
	return []Group{
		{Title: "Lead", Color: "#6b7280", Kind: GroupKindActive, Policy: DefaultPolicy(GroupKindActive)},
		{Title: "Proposal", Color: "#3b82f6", Kind: GroupKindActive, Policy: DefaultPolicy(GroupKindActive)},
		{Title: "Negotiation", Color: "#f59e0b", Kind: GroupKindActive, Policy: DefaultPolicy(GroupKindActive)},
		{Title: "Won", Color: "#10b981", Kind: GroupKindWon, Policy: DefaultPolicy(GroupKindWon)},
		{Title: "Lost", Color: "#ef4444", Kind: GroupKindLost, Policy: DefaultPolicy(GroupKindLost)},
	}
}

// Group returns the group with the given ID, or nil.
func (b *Board) Group(id string) *Group {
	for i := range b.Groups {
		if b.Groups[i].ID == id {
			return &b.Groups[i]
		}
	}
	return nil
}

// GroupByTitle returns the first group with the given title, or nil.
func (b *Board) GroupByTitle(title string) *Group {
	for i := range b.Groups {
		if b.Groups[i].Title == title {
			return &b.Groups[i]
		}
	}
	return nil
}

// Item returns the item with the given ID, or nil.
func (b *Board) Item(id string) *Item {
	for _, it := range b.Items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

// GroupItems returns the items of a group in display order. The returned
// slice is new; the items are shared with the board.
func (b *Board) GroupItems(groupID string) []*Item {
	var items []*Item
	for _, it := range b.Items {
		if it.GroupID == groupID {
			items = append(items, it)
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return lessInGroup(items[i], items[j]) })
	return items
}

// SortedGroups returns the groups ordered by OrderHint, ties broken by the
// order they were declared in.
func (b *Board) SortedGroups() []Group {
	groups := make([]Group, len(b.Groups))
	copy(groups, b.Groups)
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].OrderHint < groups[j].OrderHint })
	return groups
}

// IndexOf returns the display index of an item within its group, or -1.
func (b *Board) IndexOf(itemID string) int {
	it := b.Item(itemID)
	if it == nil {
		return -1
	}
	for i, other := range b.GroupItems(it.GroupID) {
		if other.ID == itemID {
			return i
		}
	}
	return -1
}

// NextOrderHint returns the order hint for a group appended after all
// existing groups.
func (b *Board) NextOrderHint() int {
	next := 0
	for _, g := range b.Groups {
		if g.OrderHint >= next {
			next = g.OrderHint + 1
		}
	}
	return next
}

// Clone returns a deep copy of the board. Snapshots handed to readers are
// clones so nothing outside the cache can write into it.
func (b *Board) Clone() *Board {
	if b == nil {
		return nil
	}
	c := &Board{
		Schema: b.Schema,
		ID:     b.ID,
		Name:   b.Name,
	}
	if b.Groups != nil {
		c.Groups = make([]Group, len(b.Groups))
		copy(c.Groups, b.Groups)
	}
	if b.Items != nil {
		c.Items = make([]*Item, len(b.Items))
		for i, it := range b.Items {
			c.Items[i] = it.Clone()
		}
	}
	return c
}
