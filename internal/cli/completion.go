package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/amterp/ra"

	"github.com/amterp/kanflow/internal/config"
	"github.com/amterp/kanflow/internal/discovery"
	"github.com/amterp/kanflow/internal/model"
	"github.com/amterp/kanflow/internal/prompt"
	"github.com/amterp/kanflow/internal/resolver"
	"github.com/amterp/kanflow/internal/store"
)

const completionTimeout = 2 * time.Second

// completionCtx provides lightweight backend access for shell completion.
// Completion functions run during ParseOrExit, before NewApp() is called,
// so we can't use the full App. Only the file backend is read: completion
// must not wait on a database.
type completionCtx struct {
	once     sync.Once
	backend  store.Backend
	settings config.Settings
	err      error
}

var compCtx completionCtx

func initCompletionCtx() {
	compCtx.once.Do(func() {
		root, err := discovery.FindProjectRoot()
		if err != nil || root == "" {
			compCtx.err = fmt.Errorf("no project found")
			return
		}
		paths := config.NewPaths(root)
		cfg, err := config.LoadProject(paths)
		if err != nil {
			// Graceful degradation: no completions if config is broken
			compCtx.err = err
			return
		}
		compCtx.settings = config.Resolve(cfg)
		if compCtx.settings.Backend != model.BackendFile {
			compCtx.err = fmt.Errorf("completion needs the file backend")
			return
		}
		compCtx.backend = store.NewFileStore(paths, nil)
	})
}

// completeBoards returns board IDs matching the given prefix.
func completeBoards(toComplete string) ([]string, ra.CompletionDirective) {
	initCompletionCtx()
	if compCtx.err != nil {
		return nil, ra.CompletionDirectiveNoFileComp
	}
	ctx, cancel := context.WithTimeout(context.Background(), completionTimeout)
	defer cancel()

	boards, err := compCtx.backend.ListBoards(ctx)
	if err != nil {
		return nil, ra.CompletionDirectiveNoFileComp
	}

	var result []string
	for _, b := range boards {
		if strings.HasPrefix(b.ID, toComplete) {
			result = append(result, b.ID)
		}
	}
	return result, ra.CompletionDirectiveNoFileComp
}

// completeItems returns item IDs matching the given prefix.
func completeItems(toComplete string) ([]string, ra.CompletionDirective) {
	board := completionBoard()
	if board == nil {
		return nil, ra.CompletionDirectiveNoFileComp
	}

	var result []string
	for _, it := range board.Items {
		if strings.HasPrefix(it.ID, toComplete) {
			result = append(result, it.ID)
		}
	}
	return result, ra.CompletionDirectiveNoFileComp
}

// completeGroups returns group IDs and single-word titles matching the
// given prefix.
func completeGroups(toComplete string) ([]string, ra.CompletionDirective) {
	board := completionBoard()
	if board == nil {
		return nil, ra.CompletionDirectiveNoFileComp
	}

	var result []string
	for _, g := range board.SortedGroups() {
		if strings.HasPrefix(g.ID, toComplete) {
			result = append(result, g.ID)
		}
		title := strings.ToLower(g.Title)
		if !strings.ContainsAny(title, " \t") && strings.HasPrefix(title, strings.ToLower(toComplete)) {
			result = append(result, title)
		}
	}
	return result, ra.CompletionDirectiveNoFileComp
}

func completionBoard() *model.Board {
	initCompletionCtx()
	if compCtx.err != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), completionTimeout)
	defer cancel()

	boardID := boardFromArgs(os.Args)
	if boardID == "" {
		r := resolver.NewBoardResolver(compCtx.backend, &prompt.NoopPrompter{}, compCtx.settings.DefaultBoard)
		id, err := r.Resolve(ctx, "", false)
		if err != nil {
			return nil
		}
		boardID = id
	}
	board, err := compCtx.backend.LoadBoard(ctx, boardID)
	if err != nil {
		return nil
	}
	return board
}

// boardFromArgs scans the argument list for an explicit -b/--board flag value.
func boardFromArgs(args []string) string {
	for i, arg := range args {
		for _, flag := range []string{"--board", "-b"} {
			if arg == flag && i+1 < len(args) {
				return args[i+1]
			}
			// An empty --board= falls through to the default board.
			if v, ok := strings.CutPrefix(arg, flag+"="); ok && v != "" {
				return v
			}
		}
	}
	return ""
}

// registerCompletion adds the "kanflow completion <shell>" command.
func registerCompletion(parent *ra.Cmd, ctx *CommandContext) {
	cmd := ra.NewCmd("completion")
	cmd.SetDescription("Output shell completion script")

	ctx.CompletionShell, _ = ra.NewString("shell").
		SetUsage("Shell type").
		SetEnumConstraint([]string{"bash", "zsh"}).
		Register(cmd)

	ctx.CompletionUsed, _ = parent.RegisterCmd(cmd)
}

// runCompletion outputs the shell completion script to stdout.
func runCompletion(shell string, rootCmd *ra.Cmd) {
	var err error
	switch shell {
	case "bash":
		err = rootCmd.GenBashCompletion(os.Stdout)
	case "zsh":
		err = rootCmd.GenZshCompletion(os.Stdout)
	default:
		Fatal(fmt.Errorf("unsupported shell: %s (supported: bash, zsh)", shell))
	}
	if err != nil {
		Fatal(fmt.Errorf("failed to generate completion script: %w", err))
	}
}
