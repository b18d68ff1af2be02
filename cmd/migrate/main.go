package main

import (
	"context"
	"fmt"
	"os"

	"github.com/filewarden/mesh/internal/config"
	"github.com/filewarden/mesh/internal/database"
)

func main() {
	cfg := config.Load()

	ctx := context.Background()
	db, err := database.Open(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, "./migrations"); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Migration complete.")
}
