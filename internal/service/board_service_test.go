package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amterp/kanflow/internal/actor"
	kanerr "github.com/amterp/kanflow/internal/errors"
	"github.com/amterp/kanflow/internal/feed"
	"github.com/amterp/kanflow/internal/model"
	"github.com/amterp/kanflow/testutil"
)

func newBoardService(t *testing.T) (*BoardService, *reorderFixture) {
	t.Helper()
	f := newReorderFixture(t, testutil.TaskBoard())
	return NewBoardService(f.backend, f.svc, actor.Static("ana")), f
}

func TestBoardService_Create(t *testing.T) {
	svc, f := newBoardService(t)
	ctx := context.Background()

	board, err := svc.Create(ctx, "Q3 Launch", "")
	require.NoError(t, err)
	assert.Equal(t, "q3-launch", board.ID)
	require.Len(t, board.Groups, 3)
	for i, g := range board.Groups {
		assert.NotEmpty(t, g.ID)
		assert.Equal(t, i, g.OrderHint)
	}
	assert.Equal(t, model.GroupKindDone, board.Groups[2].Kind)

	stored, err := f.backend.LoadBoard(ctx, "q3-launch")
	require.NoError(t, err)
	assert.Equal(t, "Q3 Launch", stored.Name)
}

func TestBoardService_CreatePipeline(t *testing.T) {
	svc, _ := newBoardService(t)

	board, err := svc.Create(context.Background(), "Sales 2026", TemplatePipeline)
	require.NoError(t, err)

	var kinds []model.GroupKind
	for _, g := range board.Groups {
		kinds = append(kinds, g.Kind)
	}
	assert.Contains(t, kinds, model.GroupKindWon)
	assert.Contains(t, kinds, model.GroupKindLost)
}

func TestBoardService_CreateErrors(t *testing.T) {
	svc, _ := newBoardService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "   ", "")
	assert.True(t, kanerr.IsValidationError(err))

	_, err = svc.Create(ctx, "Roadmap", "gantt")
	assert.True(t, kanerr.IsValidationError(err))

	_, err = svc.Create(ctx, "Tasks", "")
	assert.True(t, kanerr.IsAlreadyExists(err))

	board, err := svc.Create(ctx, "!!!", "")
	require.NoError(t, err)
	assert.NotEmpty(t, board.ID)
}

func TestBoardService_AddItem(t *testing.T) {
	svc, f := newBoardService(t)
	ctx := context.Background()

	// Load the board so the cache has to pick up the creation
	_, err := f.svc.Board(ctx, "tasks")
	require.NoError(t, err)

	item, err := svc.AddItem(ctx, AddItemInput{BoardID: "tasks", Group: "todo", Title: "  Write docs ", Value: 300})
	require.NoError(t, err)
	assert.Equal(t, "A", item.GroupID)
	assert.Equal(t, 3, item.Position)
	assert.Equal(t, "Write docs", item.Title)
	assert.Equal(t, "ana", item.Creator)

	snap, err := f.svc.Board(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z", item.ID}, positions(snap, "A"))

	stored, err := f.backend.LoadBoard(ctx, "tasks")
	require.NoError(t, err)
	assert.NotNil(t, stored.Item(item.ID))

	events := f.events.all()
	require.Len(t, events, 1)
	assert.Equal(t, feed.ReasonCreated, events[0].Reason)
	assert.Equal(t, []string{item.ID}, events[0].ItemIDs)
}

func TestBoardService_AddItemErrors(t *testing.T) {
	svc, _ := newBoardService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input AddItemInput
		check func(error) bool
	}{
		{"empty title", AddItemInput{BoardID: "tasks", Group: "A", Title: " "}, kanerr.IsValidationError},
		{"negative value", AddItemInput{BoardID: "tasks", Group: "A", Title: "t", Value: -1}, kanerr.IsValidationError},
		{"unknown group", AddItemInput{BoardID: "tasks", Group: "Someday", Title: "t"}, kanerr.IsNotFound},
		{"closed to creation", AddItemInput{BoardID: "tasks", Group: "Done", Title: "t"}, kanerr.IsValidationError},
		{"unknown board", AddItemInput{BoardID: "nope", Group: "A", Title: "t"}, kanerr.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddItem(ctx, tt.input)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}

func TestBoardService_AddGroup(t *testing.T) {
	svc, f := newBoardService(t)
	ctx := context.Background()

	group, err := svc.AddGroup(ctx, AddGroupInput{BoardID: "tasks", Title: "Shipped", Kind: "done"})
	require.NoError(t, err)
	assert.Equal(t, model.GroupKindDone, group.Kind)
	assert.Equal(t, model.DefaultPolicy(model.GroupKindDone), group.Policy)
	assert.Equal(t, 4, group.OrderHint)
	assert.NotEmpty(t, group.Color)

	snap, err := f.svc.Board(ctx, "tasks")
	require.NoError(t, err)
	assert.NotNil(t, snap.Group(group.ID))

	locked := model.GroupPolicy{AcceptsIncoming: true}
	group, err = svc.AddGroup(ctx, AddGroupInput{BoardID: "tasks", Title: "Archive", Policy: &locked})
	require.NoError(t, err)
	assert.Equal(t, locked, group.Policy)
	assert.Equal(t, model.GroupKindActive, group.Kind)

	_, err = svc.AddGroup(ctx, AddGroupInput{BoardID: "tasks", Title: "Todo"})
	assert.True(t, kanerr.IsAlreadyExists(err))

	_, err = svc.AddGroup(ctx, AddGroupInput{BoardID: "tasks", Title: "Later", Kind: "someday"})
	assert.True(t, kanerr.IsValidationError(err))
}

func TestResolveGroup(t *testing.T) {
	board := testutil.TaskBoard()

	assert.Equal(t, "B", ResolveGroup(board, "B").ID)
	assert.Equal(t, "C", ResolveGroup(board, "frozen").ID)
	assert.Nil(t, ResolveGroup(board, "missing"))
}
