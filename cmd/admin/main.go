package main

import (
	"context"
	"errors"
	"os"

	"github.com/dmitrijs2005/docvault/internal/admin"
	"github.com/dmitrijs2005/docvault/internal/server/config"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/repomanager"
	"github.com/fatih/color"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:]))
}

func run(ctx context.Context, args []string) int {
	cfg, err := config.LoadConfig(args)
	if err != nil {
		color.Red("config: %v", err)
		return 2
	}

	db, err := repomanager.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		color.Red("db: %v", err)
		return 1
	}
	defer db.Close()

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		color.Red("migrations: %v", err)
		return 1
	}

	if err := admin.NewTool(db, m, cfg, os.Stdin, os.Stdout).Run(ctx, args); err != nil {
		if errors.Is(err, admin.ErrUsage) {
			return 2
		}
		color.Red("error: %v", err)
		return 1
	}
	return 0
}
