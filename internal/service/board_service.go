package service

import (
	"context"
	"fmt"
	"strings"

	kanerr "github.com/amterp/kanflow/internal/errors"
	"github.com/amterp/kanflow/internal/id"
	"github.com/amterp/kanflow/internal/model"
	"github.com/amterp/kanflow/internal/reindex"
	"github.com/amterp/kanflow/internal/store"
	"github.com/amterp/kanflow/internal/util"
)

// Board templates accepted by Create.
const (
	TemplateTasks    = "tasks"
	TemplatePipeline = "pipeline"
)

// BoardService creates boards, groups and items. Creations go to the
// backend first and then into the reorder service's cache.
type BoardService struct {
	backend store.Backend
	reorder *ReorderService
	actors  ActorProvider
}

// NewBoardService creates a new board service.
func NewBoardService(backend store.Backend, reorder *ReorderService, actors ActorProvider) *BoardService {
	return &BoardService{backend: backend, reorder: reorder, actors: actors}
}

// List returns every board with its groups.
func (s *BoardService) List(ctx context.Context) ([]*model.Board, error) {
	return s.backend.ListBoards(ctx)
}

// Get returns the latest snapshot of a board.
func (s *BoardService) Get(ctx context.Context, boardID string) (*model.Board, error) {
	return s.reorder.Board(ctx, boardID)
}

// Create creates a board from a template. The board ID is derived from
// the name; names without usable characters get a generated ID.
func (s *BoardService) Create(ctx context.Context, name, template string) (*model.Board, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, kanerr.InvalidField("name", "board name cannot be empty")
	}

	var groups []model.Group
	switch template {
	case "", TemplateTasks:
		groups = model.DefaultGroups()
	case TemplatePipeline:
		groups = model.PipelineGroups()
	default:
		return nil, kanerr.InvalidField("template", fmt.Sprintf("unknown template %q (expected tasks or pipeline)", template))
	}
	for i := range groups {
		groups[i].ID = id.Generate(id.Group)
		groups[i].OrderHint = i
	}

	boardID := util.Slugify(name)
	if boardID == "" {
		boardID = id.Generate(id.Board)
	}
	board := &model.Board{ID: boardID, Name: name, Groups: groups, Items: []*model.Item{}}
	if err := s.backend.CreateBoard(ctx, board); err != nil {
		return nil, err
	}
	return board, nil
}

// AddGroupInput describes a new group.
type AddGroupInput struct {
	BoardID string
	Title   string
	Kind    string
	Color   string
	Policy  *model.GroupPolicy // nil uses the kind's default policy
}

// AddGroup appends a group after the board's existing groups.
func (s *BoardService) AddGroup(ctx context.Context, input AddGroupInput) (*model.Group, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, kanerr.InvalidField("title", "group title cannot be empty")
	}
	kind, err := model.ParseGroupKind(input.Kind)
	if err != nil {
		return nil, kanerr.InvalidField("kind", err.Error())
	}

	board, err := s.reorder.Board(ctx, input.BoardID)
	if err != nil {
		return nil, err
	}
	if board.GroupByTitle(title) != nil {
		return nil, kanerr.GroupAlreadyExists(title, input.BoardID)
	}

	color := input.Color
	if color == "" {
		color = model.NextGroupColor(len(board.Groups))
	}
	policy := model.DefaultPolicy(kind)
	if input.Policy != nil {
		policy = *input.Policy
	}
	group := model.Group{
		ID:        id.Generate(id.Group),
		Title:     title,
		OrderHint: board.NextOrderHint(),
		Color:     color,
		Kind:      kind,
		Policy:    policy,
	}
	if err := s.backend.CreateGroup(ctx, input.BoardID, group); err != nil {
		return nil, err
	}
	s.reorder.created(ctx, input.BoardID, func(b *model.Board) {
		b.Groups = append(b.Groups, group)
	}, nil)
	return &group, nil
}

// AddItemInput describes a new item.
type AddItemInput struct {
	BoardID  string
	Group    string // Group ID or title
	Title    string
	Value    int64
	Assignee string
}

// AddItem creates an item at the end of its group.
func (s *BoardService) AddItem(ctx context.Context, input AddItemInput) (*model.Item, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, kanerr.InvalidField("title", "item title cannot be empty")
	}
	if input.Value < 0 {
		return nil, kanerr.InvalidField("value", "must not be negative")
	}

	creator, err := s.actors.Current(ctx)
	if err != nil {
		return nil, err
	}

	board, err := s.reorder.Board(ctx, input.BoardID)
	if err != nil {
		return nil, err
	}
	group := ResolveGroup(board, input.Group)
	if group == nil {
		return nil, kanerr.GroupNotFound(input.Group, input.BoardID)
	}
	if !group.Policy.AcceptsCreation {
		return nil, kanerr.InvalidField("group", fmt.Sprintf("%q does not accept new items", group.Title))
	}

	now := util.NowMillis()
	item := &model.Item{
		ID:              id.Generate(id.Item),
		GroupID:         group.ID,
		Position:        reindex.NextPosition(board, group.ID),
		Title:           title,
		Value:           input.Value,
		Assignee:        input.Assignee,
		Creator:         creator,
		CreatedAtMillis: now,
		UpdatedAtMillis: now,
	}
	if err := s.backend.CreateItem(ctx, input.BoardID, item); err != nil {
		return nil, err
	}
	s.reorder.created(ctx, input.BoardID, func(b *model.Board) {
		b.Items = append(b.Items, item.Clone())
	}, []string{item.ID})
	return item, nil
}

// ResolveGroup finds a group by ID, then by title (case-insensitive).
func ResolveGroup(board *model.Board, ref string) *model.Group {
	if g := board.Group(ref); g != nil {
		return g
	}
	for i := range board.Groups {
		if strings.EqualFold(board.Groups[i].Title, ref) {
			return &board.Groups[i]
		}
	}
	return nil
}
