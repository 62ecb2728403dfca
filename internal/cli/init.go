package cli

import (
	"context"
	"os"

	"github.com/amterp/ra"

	"github.com/amterp/kanflow/internal/model"
	"github.com/amterp/kanflow/internal/prompt"
	"github.com/amterp/kanflow/internal/service"
)

func registerInit(parent *ra.Cmd, ctx *CommandContext) {
	cmd := ra.NewCmd("init")
	cmd.SetDescription("Initialize kanflow in the current repository or directory")

	ctx.InitName, _ = ra.NewString("name").
		SetShort("n").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Project name (default: directory name)").
		Register(cmd)

	ctx.InitBackend, _ = ra.NewString("backend").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Backend of record: file, postgres or memory (default: file)").
		Register(cmd)

	ctx.InitDatabaseURL, _ = ra.NewString("database-url").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Postgres connection URL (postgres backend)").
		Register(cmd)

	ctx.InitRedisURL, _ = ra.NewString("redis-url").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("Redis URL for shared totals, dedupe and change feed").
		Register(cmd)

	ctx.InitUsed, _ = parent.RegisterCmd(cmd)
}

func runInit(name, backend, databaseURL, redisURL string, interactive bool) {
	app, err := NewApp(interactive)
	if err != nil {
		Fatal(err)
	}
	defer app.Close()

	if backend == "" && interactive {
		backend, err = app.Prompter.Select("Backend of record", []prompt.Option{
			{Label: "Files in the repository (.kanflow/)", Value: model.BackendFile},
			{Label: "PostgreSQL", Value: model.BackendPostgres},
			{Label: "In memory (demo, nothing is kept)", Value: model.BackendMemory},
		})
		if err != nil {
			app.Fatal(err)
		}
	}
	if backend == model.BackendPostgres && databaseURL == "" && interactive {
		databaseURL, err = app.Prompter.Input("Postgres URL", "postgres://localhost:5432/kanflow")
		if err != nil {
			app.Fatal(err)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		app.Fatal(err)
	}
	root := app.InitService.ProjectRoot(context.Background(), cwd)

	paths, created, err := app.InitService.Initialize(root, service.InitOptions{
		Name:        name,
		Backend:     backend,
		DatabaseURL: databaseURL,
		RedisURL:    redisURL,
	})
	if err != nil {
		app.Fatal(err)
	}

	if !created {
		PrintInfo("kanflow is already initialized at %s", RenderMuted(paths.ProjectConfigPath()))
		return
	}
	PrintSuccess("Initialized kanflow in %s", root)
	if backend == model.BackendPostgres {
		PrintInfo("Run 'kanflow migrate' to create the database schema")
	}
	PrintInfo("Create a board with 'kanflow board create <name>'")
}
