package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"RangeLedger/internal/config"
	"RangeLedger/internal/observability"
	"RangeLedger/internal/persistence"

	_ "github.com/lib/pq"
	"github.com/olekukonko/tablewriter"
)

func usage() {
	fmt.Println("Usage: migrate <up|down|status>")
	fmt.Println("  up     - apply all pending migrations")
	fmt.Println("  down   - roll back the last migration")
	fmt.Println("  status - list migrations and whether they are applied")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  RANGE_CONFIG        - optional YAML config file")
	fmt.Println("  RANGE_POSTGRES_DSN  - Postgres connection string")
	fmt.Println("  RANGE_MIGRATIONS_DIR - path to migrations directory (default: migrations)")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger := observability.NewLogger("migrate")

	cfg, err := config.Load(os.Getenv("RANGE_CONFIG"))
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	ctx := context.Background()
	migrator := persistence.NewMigrator(db, cfg.Postgres.MigrationsDir, logger)

	switch os.Args[1] {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrate up")
		}
		logger.Info().Msg("all migrations applied")

	case "down":
		if err := migrator.Down(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrate down")
		}
		logger.Info().Msg("last migration rolled back")

	case "status":
		statuses, err := migrator.Status(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("migrate status")
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Version", "File", "Applied")
		for _, s := range statuses {
			applied := "no"
			if s.Applied {
				applied = "yes"
			}
			_ = table.Append(s.Version, s.Filename, applied)
		}
		_ = table.Render()

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}
