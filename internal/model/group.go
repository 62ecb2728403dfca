package model

import "fmt"

// GroupKind classifies a group. It is set explicitly when the group is
// created and never derived from the group's title.
type GroupKind string

const (
	GroupKindActive GroupKind = "active"
	GroupKindDone   GroupKind = "done"
	GroupKindWon    GroupKind = "won"
	GroupKindLost   GroupKind = "lost"
)

// ValidGroupKinds lists every accepted kind, in display order.
var ValidGroupKinds = []GroupKind{GroupKindActive, GroupKindDone, GroupKindWon, GroupKindLost}

// ParseGroupKind validates a kind string. Empty means active.
func ParseGroupKind(s string) (GroupKind, error) {
	if s == "" {
		return GroupKindActive, nil
	}
	for _, k := range ValidGroupKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown group kind %q (expected one of: active, done, won, lost)", s)
}

// IsTerminal reports whether items in this kind of group have left the
// active workflow.
func (k GroupKind) IsTerminal() bool {
	return k == GroupKindDone || k == GroupKindWon || k == GroupKindLost
}

// IsCompletion reports whether entering a group of this kind counts as a
// successful completion (celebration, completion stamp).
func (k GroupKind) IsCompletion() bool {
	return k == GroupKindDone || k == GroupKindWon
}

// GroupPolicy holds the drag capabilities of a group.
type GroupPolicy struct {
	AcceptsIncoming bool `toml:"accepts_incoming" json:"accepts_incoming"`
	AcceptsOutgoing bool `toml:"accepts_outgoing" json:"accepts_outgoing"`
	AcceptsCreation bool `toml:"accepts_creation" json:"accepts_creation"`
}

// DefaultPolicy returns the policy a new group of the given kind gets when
// the caller doesn't specify one. Lost deals are locked: nothing leaves and
// nothing is created there directly.
func DefaultPolicy(kind GroupKind) GroupPolicy {
	switch kind {
	case GroupKindLost:
		return GroupPolicy{AcceptsIncoming: true, AcceptsOutgoing: false, AcceptsCreation: false}
	case GroupKindDone, GroupKindWon:
		return GroupPolicy{AcceptsIncoming: true, AcceptsOutgoing: true, AcceptsCreation: false}
	default:
		return GroupPolicy{AcceptsIncoming: true, AcceptsOutgoing: true, AcceptsCreation: true}
	}
}

// Group is an ordered bucket of items: a board column or pipeline stage.
type Group struct {
	ID        string      `toml:"id" json:"id"`
	Title     string      `toml:"title" json:"title"`
	OrderHint int         `toml:"order_hint" json:"order_hint"`
	Color     string      `toml:"color" json:"color"`
	Kind      GroupKind   `toml:"kind" json:"kind"`
	Policy    GroupPolicy `toml:"policy" json:"policy"`
}

// CanMove reports whether an item may be dragged from src to dst.
// Reordering inside a single group is always allowed; policies only gate
// crossing a group boundary.
func CanMove(src, dst *Group) bool {
	if src == nil || dst == nil {
		return false
	}
	if src.ID == dst.ID {
		return true
	}
	return src.Policy.AcceptsOutgoing && dst.Policy.AcceptsIncoming
}
