package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/amterp/kanflow/internal/aggregate"
	"github.com/amterp/kanflow/internal/model"
	"github.com/amterp/kanflow/internal/service"
)

// BoardSummary is one entry of the board list.
type BoardSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Groups int    `json:"groups"`
}

// BoardsOutput wraps the board list for JSON output.
type BoardsOutput struct {
	Boards []BoardSummary `json:"boards"`
}

// NewBoardsOutput creates a BoardsOutput.
// Always returns an empty array (not null) when there are no boards.
func NewBoardsOutput(boards []*model.Board) BoardsOutput {
	result := make([]BoardSummary, 0, len(boards))
	for _, b := range boards {
		result = append(result, BoardSummary{ID: b.ID, Name: b.Name, Groups: len(b.Groups)})
	}
	return BoardsOutput{Boards: result}
}

// BoardView is a board laid out for reading: groups in display order, each
// holding its items in display order and its totals. It is the shape of
// both "board show --json" and "board export".
type BoardView struct {
	ID     string      `json:"id" yaml:"id"`
	Name   string      `json:"name" yaml:"name"`
	Groups []GroupView `json:"groups" yaml:"groups"`
}

// GroupView is one group of a BoardView.
type GroupView struct {
	ID       string            `json:"id" yaml:"id"`
	Title    string            `json:"title" yaml:"title"`
	Kind     model.GroupKind   `json:"kind" yaml:"kind"`
	Color    string            `json:"color,omitempty" yaml:"color,omitempty"`
	Policy   model.GroupPolicy `json:"policy" yaml:"policy"`
	Count    int               `json:"count" yaml:"count"`
	ValueSum int64             `json:"value_sum" yaml:"value_sum"`
	Items    []ItemView        `json:"items" yaml:"items"`
}

// ItemView is one item of a GroupView. Position is the display index.
type ItemView struct {
	ID                string `json:"id" yaml:"id"`
	Title             string `json:"title" yaml:"title"`
	Position          int    `json:"position" yaml:"position"`
	Value             int64  `json:"value,omitempty" yaml:"value,omitempty"`
	Assignee          string `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	Creator           string `json:"creator" yaml:"creator"`
	CompletedAtMillis int64  `json:"completed_at_millis,omitempty" yaml:"completed_at_millis,omitempty"`
}

// NewBoardView lays out a board snapshot.
func NewBoardView(board *model.Board) BoardView {
	totals := aggregate.Compute(board)
	view := BoardView{ID: board.ID, Name: board.Name, Groups: make([]GroupView, 0, len(board.Groups))}
	for _, g := range board.SortedGroups() {
		gv := GroupView{
			ID:     g.ID,
			Title:  g.Title,
			Kind:   g.Kind,
			Color:  g.Color,
			Policy: g.Policy,
			Items:  []ItemView{},
		}
		if t := totals.Group(g.ID); t != nil {
			gv.Count = t.Count
			gv.ValueSum = t.ValueSum
		}
		for i, it := range board.GroupItems(g.ID) {
			gv.Items = append(gv.Items, ItemView{
				ID:                it.ID,
				Title:             it.Title,
				Position:          i,
				Value:             it.Value,
				Assignee:          it.Assignee,
				Creator:           it.Creator,
				CompletedAtMillis: it.CompletedAtMillis,
			})
		}
		view.Groups = append(view.Groups, gv)
	}
	return view
}

// ItemOutput wraps a single item for JSON output.
type ItemOutput struct {
	Item *model.Item `json:"item"`
}

// GroupOutput wraps a single group for JSON output.
type GroupOutput struct {
	Group *model.Group `json:"group"`
}

// MoveOutput is the JSON result of a move. Error is set when the move
// failed after being applied optimistically.
type MoveOutput struct {
	service.Outcome
	Error string `json:"error,omitempty"`
}

// printJson marshals the value as indented JSON and prints it to stdout.
func printJson(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}

func newJsonEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc
}
