package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/amterp/ra"
	"gopkg.in/yaml.v3"
)

func registerBoard(parent *ra.Cmd, ctx *CommandContext) {
	cmd := ra.NewCmd("board")
	cmd.SetDescription("Manage boards")

	// board create
	createCmd := ra.NewCmd("create")
	createCmd.SetDescription("Create a new board")

	ctx.BoardCreateName, _ = ra.NewString("name").
		SetUsage("Name of the board to create").
		Register(createCmd)

	ctx.BoardCreateTemplate, _ = ra.NewString("template").
		SetShort("t").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Board template: tasks or pipeline (default: tasks)").
		Register(createCmd)

	ctx.BoardCreateUsed, _ = cmd.RegisterCmd(createCmd)

	// board list
	listCmd := ra.NewCmd("list")
	listCmd.SetDescription("List all boards")

	ctx.BoardListUsed, _ = cmd.RegisterCmd(listCmd)

	// board show
	showCmd := ra.NewCmd("show")
	showCmd.SetDescription("Show a board's groups and items")

	ctx.BoardShowBoard, _ = ra.NewString("board").
		SetOptional(true).
		SetUsage("Board to show").
		SetCompletionFunc(completeBoards).
		Register(showCmd)

	ctx.BoardShowUsed, _ = cmd.RegisterCmd(showCmd)

	// board export
	exportCmd := ra.NewCmd("export")
	exportCmd.SetDescription("Export a board as YAML or JSON")

	ctx.BoardExportBoard, _ = ra.NewString("board").
		SetOptional(true).
		SetUsage("Board to export").
		SetCompletionFunc(completeBoards).
		Register(exportCmd)

	ctx.BoardExportFormat, _ = ra.NewString("format").
		SetShort("f").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Output format: yaml or json (default: yaml)").
		Register(exportCmd)

	ctx.BoardExportOutput, _ = ra.NewString("output").
		SetShort("o").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Write to this file instead of stdout").
		Register(exportCmd)

	ctx.BoardExportUsed, _ = cmd.RegisterCmd(exportCmd)

	ctx.BoardUsed, _ = parent.RegisterCmd(cmd)
}

func openProject(interactive bool) *App {
	app, err := NewApp(interactive)
	if err != nil {
		Fatal(err)
	}
	if err := app.RequireKanflow(); err != nil {
		app.Fatal(err)
	}
	return app
}

func runBoardCreate(name, template string, jsonOutput bool) {
	app := openProject(false)
	defer app.Close()

	board, err := app.BoardService.Create(context.Background(), name, template)
	if err != nil {
		app.Fatal(err)
	}

	if jsonOutput {
		if err := printJson(NewBoardView(board)); err != nil {
			app.Fatal(err)
		}
		return
	}
	PrintSuccess("Created board %q (%s)", board.Name, RenderID(board.ID))
}

func runBoardList(jsonOutput bool) {
	app := openProject(false)
	defer app.Close()

	boards, err := app.BoardService.List(context.Background())
	if err != nil {
		app.Fatal(err)
	}

	if jsonOutput {
		if err := printJson(NewBoardsOutput(boards)); err != nil {
			app.Fatal(err)
		}
		return
	}

	if len(boards) == 0 {
		PrintInfo("No boards found")
		return
	}
	for _, b := range boards {
		marker := ""
		if b.ID == app.Settings.DefaultBoard {
			marker = RenderMuted(" (default)")
		}
		fmt.Printf("%s  %s%s\n", RenderID(b.ID), b.Name, marker)
	}
}

func runBoardShow(boardRef string, jsonOutput, interactive bool) {
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

	view := NewBoardView(board)
	if jsonOutput {
		if err := printJson(view); err != nil {
			app.Fatal(err)
		}
		return
	}
	fmt.Println(RenderBoard(view))
}

func runBoardExport(boardRef, format, output string, interactive bool) {
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

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			app.Fatal(fmt.Errorf("failed to create %s: %w", output, err))
		}
		defer f.Close()
		w = f
	}

	if err := exportBoard(w, NewBoardView(board), format); err != nil {
		app.Fatal(err)
	}
	if output != "" {
		PrintSuccess("Exported board %s to %s", RenderID(board.ID), output)
	}
}

// exportBoard writes view in the given format; empty means yaml.
func exportBoard(w io.Writer, view BoardView, format string) error {
	switch format {
	case "", "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(view); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := newJsonEncoder(w)
		return enc.Encode(view)
	default:
		return fmt.Errorf("unknown export format %q (expected yaml or json)", format)
	}
}
