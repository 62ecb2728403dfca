package resolver

import (
	"context"
	"fmt"
	"strings"

	kanerr "github.com/amterp/kanflow/internal/errors"
	"github.com/amterp/kanflow/internal/model"
	"github.com/amterp/kanflow/internal/prompt"
	"github.com/amterp/kanflow/internal/store"
)

// BoardResolver handles board selection logic.
type BoardResolver struct {
	backend      store.Backend
	prompter     prompt.Prompter
	defaultBoard string
}

// NewBoardResolver creates a new board resolver. defaultBoard is the
// project's configured default and may be empty.
func NewBoardResolver(backend store.Backend, prompter prompt.Prompter, defaultBoard string) *BoardResolver {
	return &BoardResolver{
		backend:      backend,
		prompter:     prompter,
		defaultBoard: defaultBoard,
	}
}

// Resolve determines which board to use:
// 1. If explicit board provided, use it
// 2. If default_board configured and present, use it
// 3. If only one board exists, use it
// 4. If interactive, prompt user
// 5. Otherwise, fail with error
func (r *BoardResolver) Resolve(ctx context.Context, explicitBoard string, interactive bool) (string, error) {
	boards, err := r.backend.ListBoards(ctx)
	if err != nil {
		return "", err
	}

	if explicitBoard != "" {
		if find(boards, explicitBoard) == nil {
			return "", kanerr.BoardNotFound(explicitBoard)
		}
		return explicitBoard, nil
	}

	if len(boards) == 0 {
		return "", kanerr.InvalidField("board", "no boards found; run 'kanflow board create' first")
	}

	if r.defaultBoard != "" && find(boards, r.defaultBoard) != nil {
		return r.defaultBoard, nil
	}

	if len(boards) == 1 {
		return boards[0].ID, nil
	}

	if !interactive {
		ids := make([]string, len(boards))
		for i, b := range boards {
			ids[i] = b.ID
		}
		return "", kanerr.InvalidField("board",
			fmt.Sprintf("multiple boards exist (%s); specify with -b or set default_board in config", strings.Join(ids, ", ")))
	}

	options := make([]prompt.Option, len(boards))
	for i, b := range boards {
		options[i] = prompt.Option{Label: fmt.Sprintf("%s (%s)", b.Name, b.ID), Value: b.ID}
	}
	return r.prompter.Select("Select board", options)
}

func find(boards []*model.Board, id string) *model.Board {
	for _, b := range boards {
		if b.ID == id {
			return b
		}
	}
	return nil
}
