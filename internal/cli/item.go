package cli

import (
	"context"
	"fmt"

	"github.com/amterp/ra"

	kanerr "github.com/amterp/kanflow/internal/errors"
	"github.com/amterp/kanflow/internal/model"
	"github.com/amterp/kanflow/internal/prompt"
	"github.com/amterp/kanflow/internal/service"
)

func registerItem(parent *ra.Cmd, ctx *CommandContext) {
	cmd := ra.NewCmd("item")
	cmd.SetDescription("Manage board items")

	// item add
	addCmd := ra.NewCmd("add")
	addCmd.SetDescription("Add an item at the end of a group")

	ctx.ItemAddTitle, _ = ra.NewString("title").
		SetUsage("Item title").
		Register(addCmd)

	ctx.ItemAddBoard, _ = ra.NewString("board").
		SetShort("b").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Target board").
		SetCompletionFunc(completeBoards).
		Register(addCmd)

	ctx.ItemAddGroup, _ = ra.NewString("group").
		SetShort("g").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Target group ID or title (default: first group accepting new items)").
		SetCompletionFunc(completeGroups).
		Register(addCmd)

	ctx.ItemAddValue, _ = ra.NewInt("value").
		SetShort("v").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Deal value in minor currency units").
		Register(addCmd)

	ctx.ItemAddAssignee, _ = ra.NewString("assignee").
		SetShort("a").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Assignee").
		Register(addCmd)

	ctx.ItemAddUsed, _ = cmd.RegisterCmd(addCmd)

	ctx.ItemUsed, _ = parent.RegisterCmd(cmd)
}

func runItemAdd(title, boardRef, groupRef string, value int, assignee string, jsonOutput, interactive bool) {
	app := openProject(interactive)
	defer app.Close()
	ctx := context.Background()

	boardID, err := app.ResolveBoard(ctx, boardRef)
	if err != nil {
		app.Fatal(err)
	}

	if groupRef == "" {
		board, err := app.BoardService.Get(ctx, boardID)
		if err != nil {
			app.Fatal(err)
		}
		groupRef, err = pickCreationGroup(board, app.Prompter, interactive)
		if err != nil {
			app.Fatal(err)
		}
	}

	item, err := app.BoardService.AddItem(ctx, service.AddItemInput{
		BoardID:  boardID,
		Group:    groupRef,
		Title:    title,
		Value:    int64(value),
		Assignee: assignee,
	})
	if err != nil {
		app.Fatal(err)
	}

	if jsonOutput {
		if err := printJson(ItemOutput{Item: item}); err != nil {
			app.Fatal(err)
		}
		return
	}
	PrintSuccess("Created item %s in %s", RenderID(item.ID), RenderID(item.GroupID))
}

// creationGroups returns the groups accepting new items, in display order.
func creationGroups(board *model.Board) []model.Group {
	var groups []model.Group
	for _, g := range board.SortedGroups() {
		if g.Policy.AcceptsCreation {
			groups = append(groups, g)
		}
	}
	return groups
}

// pickCreationGroup asks for the group of a new item, or takes the first
// group accepting new items when not interactive.
func pickCreationGroup(board *model.Board, p prompt.Prompter, interactive bool) (string, error) {
	groups := creationGroups(board)
	if len(groups) == 0 {
		return "", kanerr.InvalidField("group", fmt.Sprintf("no group on %s accepts new items", board.ID))
	}
	if !interactive || len(groups) == 1 {
		return groups[0].ID, nil
	}
	options := make([]prompt.Option, len(groups))
	for i, g := range groups {
		options[i] = prompt.Option{Label: g.Title, Value: g.ID}
	}
	return p.Select("Select group", options)
}
