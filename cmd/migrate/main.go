// Command migrate runs database migrations for the backend.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"playhub/internal/config"
	"playhub/internal/database"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	args := os.Args[1:]
	if len(args) < 1 {
		return fmt.Errorf("usage: go run ./cmd/migrate <up|down|status> [version]")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	ctx := context.Background()

	switch args[0] {
	case "up":
		if err := database.RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
		log.Println("migrations applied")
	case "down":
		if len(args) < 2 {
			return fmt.Errorf("usage: go run ./cmd/migrate down <version>")
		}
		var version int
		if _, err := fmt.Sscanf(args[1], "%d", &version); err != nil {
			return fmt.Errorf("invalid version: %w", err)
		}
		if err := database.RollbackMigration(ctx, db, version); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
		log.Printf("rolled back migration %d", version)
	case "status":
		status, err := database.GetSchemaStatus(ctx, db, cfg)
		if err != nil {
			return fmt.Errorf("read schema status: %w", err)
		}
		log.Printf("schema status: %+v", status)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}

	return nil
}
