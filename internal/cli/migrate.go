package cli

import (
	"context"

	"github.com/amterp/ra"

	"github.com/amterp/kanflow/internal/store"
)

func registerMigrate(parent *ra.Cmd, ctx *CommandContext) {
	cmd := ra.NewCmd("migrate")
	cmd.SetDescription("Apply pending database schema migrations (postgres backend)")

	ctx.MigrateDryRun, _ = ra.NewBool("dry-run").
		SetOptional(true).
		SetFlagOnly(true).
		SetUsage("List pending migrations without applying them").
		Register(cmd)

	ctx.MigrateUsed, _ = parent.RegisterCmd(cmd)
}

func runMigrate(dryRun bool) {
	app := openProject(false)
	defer app.Close()
	ctx := context.Background()

	pg, ok := app.Backend.(*store.PostgresStore)
	if !ok {
		PrintInfo("The %s backend has no database schema, nothing to migrate", app.Settings.Backend)
		return
	}

	if dryRun {
		pending, err := store.PendingMigrations(ctx, pg.DB(), store.Migrations())
		if err != nil {
			app.Fatal(err)
		}
		if len(pending) == 0 {
			PrintSuccess("Schema is up to date")
			return
		}
		PrintInfo("%d pending migration(s):", len(pending))
		for _, version := range pending {
			PrintInfo("  %s", version)
		}
		return
	}

	applied, err := store.ApplyMigrations(ctx, pg.DB(), store.Migrations())
	for _, version := range applied {
		PrintSuccess("Applied %s", version)
	}
	if err != nil {
		app.Fatal(err)
	}
	if len(applied) == 0 {
		PrintSuccess("Schema is up to date")
	}
}
