package cli

import (
	"context"

	"github.com/amterp/ra"

	"github.com/amterp/kanflow/internal/model"
	"github.com/amterp/kanflow/internal/service"
)

func registerGroup(parent *ra.Cmd, ctx *CommandContext) {
	cmd := ra.NewCmd("group")
	cmd.SetDescription("Manage board groups (columns and pipeline stages)")

	// group add
	addCmd := ra.NewCmd("add")
	addCmd.SetDescription("Add a group after the existing ones")

	ctx.GroupAddTitle, _ = ra.NewString("title").
		SetUsage("Group title").
		Register(addCmd)

	ctx.GroupAddBoard, _ = ra.NewString("board").
		SetShort("b").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Target board").
		SetCompletionFunc(completeBoards).
		Register(addCmd)

	ctx.GroupAddKind, _ = ra.NewString("kind").
		SetShort("k").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Group kind: active, done, won or lost (default: active)").
		Register(addCmd)

	ctx.GroupAddColor, _ = ra.NewString("color").
		SetShort("c").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Hex color (default: next palette color)").
		Register(addCmd)

	ctx.GroupAddNoIncoming, _ = ra.NewBool("no-incoming").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Refuse items dragged in from other groups").
		Register(addCmd)

	ctx.GroupAddNoOutgoing, _ = ra.NewBool("no-outgoing").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Keep items from being dragged out").
		Register(addCmd)

	ctx.GroupAddNoCreate, _ = ra.NewBool("no-create").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Refuse new items created directly in this group").
		Register(addCmd)

	ctx.GroupAddUsed, _ = cmd.RegisterCmd(addCmd)

	ctx.GroupUsed, _ = parent.RegisterCmd(cmd)
}

type groupAddArgs struct {
	title      string
	board      string
	kind       string
	color      string
	noIncoming bool
	noOutgoing bool
	noCreate   bool
}

// policy returns the policy override the flags ask for, or nil to use
// the kind's default.
func (a groupAddArgs) policy() (*model.GroupPolicy, error) {
	if !a.noIncoming && !a.noOutgoing && !a.noCreate {
		return nil, nil
	}
	kind, err := model.ParseGroupKind(a.kind)
	if err != nil {
		return nil, err
	}
	p := model.DefaultPolicy(kind)
	if a.noIncoming {
		p.AcceptsIncoming = false
	}
	if a.noOutgoing {
		p.AcceptsOutgoing = false
	}
	if a.noCreate {
		p.AcceptsCreation = false
	}
	return &p, nil
}

func runGroupAdd(args groupAddArgs, jsonOutput, interactive bool) {
	app := openProject(interactive)
	defer app.Close()
	ctx := context.Background()

	boardID, err := app.ResolveBoard(ctx, args.board)
	if err != nil {
		app.Fatal(err)
	}
	policy, err := args.policy()
	if err != nil {
		app.Fatal(err)
	}

	group, err := app.BoardService.AddGroup(ctx, service.AddGroupInput{
		BoardID: boardID,
		Title:   args.title,
		Kind:    args.kind,
		Color:   args.color,
		Policy:  policy,
	})
	if err != nil {
		app.Fatal(err)
	}

	if jsonOutput {
		if err := printJson(GroupOutput{Group: group}); err != nil {
			app.Fatal(err)
		}
		return
	}
	PrintSuccess("Added group %s (%s) to %s", RenderGroupColor(group.Title, group.Color), RenderID(group.ID), RenderID(boardID))
}
