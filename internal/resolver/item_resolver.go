package resolver

import (
	"fmt"
	"sort"
	"strings"

	kanerr "github.com/amterp/kanflow/internal/errors"
	"github.com/amterp/kanflow/internal/model"
)

// ResolveItem finds an item on a board by exact ID, then by unique ID
// prefix, then by unique title (case-insensitive).
func ResolveItem(board *model.Board, ref string) (*model.Item, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, kanerr.InvalidField("item", "item reference cannot be empty")
	}
	if it := board.Item(ref); it != nil {
		return it, nil
	}

	if it, err := unique(board, ref, func(it *model.Item) bool {
		return strings.HasPrefix(it.ID, ref)
	}); it != nil || err != nil {
		return it, err
	}
	if it, err := unique(board, ref, func(it *model.Item) bool {
		return strings.EqualFold(it.Title, ref)
	}); it != nil || err != nil {
		return it, err
	}
	return nil, kanerr.ItemNotFound(ref)
}

func unique(board *model.Board, ref string, match func(*model.Item) bool) (*model.Item, error) {
	var found []*model.Item
	for _, it := range board.Items {
		if match(it) {
			found = append(found, it)
		}
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	}
	ids := make([]string, len(found))
	for i, it := range found {
		ids[i] = it.ID
	}
	sort.Strings(ids)
	return nil, kanerr.InvalidField("item", fmt.Sprintf("%q is ambiguous (matches %s)", ref, strings.Join(ids, ", ")))
}
