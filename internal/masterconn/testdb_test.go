package masterconn

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/filewarden/mesh/internal/database"
)

// newTestDB opens a throwaway in-memory database with every migration
// applied, mirroring the pattern the store package tests use.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(context.Background(), db, "../../migrations"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
