package cli

import (
	"context"
	"os"

	"github.com/amterp/ra"

	kanerr "github.com/amterp/kanflow/internal/errors"
	"github.com/amterp/kanflow/internal/model"
	"github.com/amterp/kanflow/internal/resolver"
	"github.com/amterp/kanflow/internal/service"
)

func registerMove(parent *ra.Cmd, ctx *CommandContext) {
	cmd := ra.NewCmd("move")
	cmd.SetDescription("Move an item to a group and position, as a drag and drop would")

	ctx.MoveItem, _ = ra.NewString("item").
		SetUsage("Item ID, ID prefix or title").
		SetCompletionFunc(completeItems).
		Register(cmd)

	ctx.MoveGroup, _ = ra.NewString("group").
		SetUsage("Destination group ID or title").
		SetCompletionFunc(completeGroups).
		Register(cmd)

	ctx.MoveBoard, _ = ra.NewString("board").
		SetShort("b").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Board of the item").
		SetCompletionFunc(completeBoards).
		Register(cmd)

	ctx.MoveIndex, _ = ra.NewInt("index").
		SetShort("i").
		SetOptional(true).
		SetDefault(-1).
		SetFlagOnly(true).
		SetUsage("0-based position in the destination group (default: end)").
		Register(cmd)

	ctx.MoveUsed, _ = parent.RegisterCmd(cmd)
}

func runMove(itemRef, groupRef, boardRef string, index int, jsonOutput, interactive bool) {
	app := openProject(interactive)
	defer app.Close()
	ctx := context.Background()

	boardID, err := app.ResolveBoard(ctx, boardRef)
	if err != nil {
		app.Fatal(err)
	}
	board, err := app.BoardService.Get(ctx, boardID)
	if err != nil {
		app.Fatal(err)
	}
	intent, err := buildIntent(board, itemRef, groupRef, index)
	if err != nil {
		app.Fatal(err)
	}

	out, err := app.Reorder.Move(ctx, boardID, intent)
	if jsonOutput {
		result := MoveOutput{Outcome: out}
		if err != nil {
			result.Error = err.Error()
		}
		if perr := printJson(result); perr != nil {
			app.Fatal(perr)
		}
		if err != nil || out.Status == service.StatusRejected {
			app.Close()
			os.Exit(1)
		}
		return
	}
	if err != nil {
		if kanerr.IsPersistence(err) {
			PrintWarning("The move was undone and is safe to retry")
		}
		app.Fatal(err)
	}

	switch out.Status {
	case service.StatusNoop:
		PrintInfo("%s is already there", RenderID(intent.ItemID))
	case service.StatusRejected:
		PrintWarning("Move rejected: %s", out.Reason)
		app.Close()
		os.Exit(1)
	default:
		PrintSuccess("Moved %s to %s (%d update(s))", RenderID(intent.ItemID), RenderID(intent.DestinationGroupID), len(out.Updates))
		if out.Celebrate {
			PrintSuccess("%s", StyleSuccess.Render("Nice work!"))
		}
	}
}

// buildIntent turns command line references into a move intent. A
// negative index means the end of the destination group.
func buildIntent(board *model.Board, itemRef, groupRef string, index int) (model.MoveIntent, error) {
	item, err := resolver.ResolveItem(board, itemRef)
	if err != nil {
		return model.MoveIntent{}, err
	}
	dst := service.ResolveGroup(board, groupRef)
	if dst == nil {
		return model.MoveIntent{}, kanerr.GroupNotFound(groupRef, board.ID)
	}
	if index < 0 {
		index = len(board.GroupItems(dst.ID))
		if dst.ID == item.GroupID {
			index--
		}
	}
	return model.MoveIntent{
		ItemID:             item.ID,
		SourceGroupID:      item.GroupID,
		DestinationGroupID: dst.ID,
		DestinationIndex:   index,
	}, nil
}
