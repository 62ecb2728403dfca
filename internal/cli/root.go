package cli

import (
	"os"

	"github.com/amterp/ra"
)

// CommandContext holds parsed values and used flags for all commands.
type CommandContext struct {
	// Global flags
	NonInteractive *bool
	Json           *bool

	// init command
	InitUsed        *bool
	InitName        *string
	InitBackend     *string
	InitDatabaseURL *string
	InitRedisURL    *string

	// board command
	BoardUsed           *bool
	BoardCreateUsed     *bool
	BoardCreateName     *string
	BoardCreateTemplate *string
	BoardListUsed       *bool
	BoardShowUsed       *bool
	BoardShowBoard      *string
	BoardExportUsed     *bool
	BoardExportBoard    *string
	BoardExportFormat   *string
	BoardExportOutput   *string

	// group command
	GroupUsed          *bool
	GroupAddUsed       *bool
	GroupAddTitle      *string
	GroupAddBoard      *string
	GroupAddKind       *string
	GroupAddColor      *string
	GroupAddNoIncoming *bool
	GroupAddNoOutgoing *bool
	GroupAddNoCreate   *bool

	// item command
	ItemUsed        *bool
	ItemAddUsed     *bool
	ItemAddTitle    *string
	ItemAddBoard    *string
	ItemAddGroup    *string
	ItemAddValue    *int
	ItemAddAssignee *string

	// move command
	MoveUsed  *bool
	MoveItem  *string
	MoveGroup *string
	MoveBoard *string
	MoveIndex *int

	// doctor command
	DoctorUsed   *bool
	DoctorFix    *bool
	DoctorDryRun *bool
	DoctorBoard  *string

	// migrate command
	MigrateUsed   *bool
	MigrateDryRun *bool

	// serve command
	ServeUsed   *bool
	ServePort   *int
	ServeNoOpen *bool

	// completion command
	CompletionUsed  *bool
	CompletionShell *string
}

// Run is the main entry point for the CLI.
func Run() {
	ctx := &CommandContext{}

	cmd := ra.NewCmd("kanflow")
	cmd.SetDescription("Drag-and-drop boards for tasks and sales pipelines")

	// Global flag for non-interactive mode
	ctx.NonInteractive, _ = ra.NewBool("non-interactive").
		SetShort("I").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Fail instead of prompting for missing input").
		Register(cmd, ra.WithGlobal(true))

	ctx.Json, _ = ra.NewBool("json").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Print machine-readable JSON").
		Register(cmd, ra.WithGlobal(true))

	// Register all subcommands
	registerInit(cmd, ctx)
	registerBoard(cmd, ctx)
	registerGroup(cmd, ctx)
	registerItem(cmd, ctx)
	registerMove(cmd, ctx)
	registerDoctor(cmd, ctx)
	registerMigrate(cmd, ctx)
	registerServe(cmd, ctx)
	registerCompletion(cmd, ctx)

	// Parse command line
	cmd.ParseOrExit(os.Args[1:])

	// Execute the appropriate command
	executeCommand(ctx, cmd)
}

func executeCommand(ctx *CommandContext, rootCmd *ra.Cmd) {
	interactive := !*ctx.NonInteractive

	switch {
	case *ctx.InitUsed:
		runInit(*ctx.InitName, *ctx.InitBackend, *ctx.InitDatabaseURL, *ctx.InitRedisURL, interactive)

	case *ctx.BoardCreateUsed:
		runBoardCreate(*ctx.BoardCreateName, *ctx.BoardCreateTemplate, *ctx.Json)

	case *ctx.BoardListUsed:
		runBoardList(*ctx.Json)

	case *ctx.BoardShowUsed:
		runBoardShow(*ctx.BoardShowBoard, *ctx.Json, interactive)

	case *ctx.BoardExportUsed:
		runBoardExport(*ctx.BoardExportBoard, *ctx.BoardExportFormat, *ctx.BoardExportOutput, interactive)

	case *ctx.GroupAddUsed:
		runGroupAdd(groupAddArgs{
			title:      *ctx.GroupAddTitle,
			board:      *ctx.GroupAddBoard,
			kind:       *ctx.GroupAddKind,
			color:      *ctx.GroupAddColor,
			noIncoming: *ctx.GroupAddNoIncoming,
			noOutgoing: *ctx.GroupAddNoOutgoing,
			noCreate:   *ctx.GroupAddNoCreate,
		}, *ctx.Json, interactive)

	case *ctx.ItemAddUsed:
		runItemAdd(*ctx.ItemAddTitle, *ctx.ItemAddBoard, *ctx.ItemAddGroup, *ctx.ItemAddValue, *ctx.ItemAddAssignee, *ctx.Json, interactive)

	case *ctx.MoveUsed:
		runMove(*ctx.MoveItem, *ctx.MoveGroup, *ctx.MoveBoard, *ctx.MoveIndex, *ctx.Json, interactive)

	case *ctx.DoctorUsed:
		runDoctor(*ctx.DoctorBoard, *ctx.DoctorFix, *ctx.DoctorDryRun, *ctx.Json)

	case *ctx.MigrateUsed:
		runMigrate(*ctx.MigrateDryRun)

	case *ctx.ServeUsed:
		runServe(*ctx.ServePort, *ctx.ServeNoOpen)

	case *ctx.CompletionUsed:
		runCompletion(*ctx.CompletionShell, rootCmd)
	}
}
