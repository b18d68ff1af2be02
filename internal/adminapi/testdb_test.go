package adminapi

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/filewarden/mesh/internal/config"
	"github.com/filewarden/mesh/internal/database"
	"github.com/filewarden/mesh/internal/eventbus"
	"github.com/filewarden/mesh/internal/masterconn"
	"github.com/filewarden/mesh/internal/registry"
	"github.com/filewarden/mesh/internal/store"
)

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

// testServer wires a full Server against a throwaway in-memory database,
// returning it alongside its stores and registry for direct seeding.
func testServer(t *testing.T) (*Server, *Stores, *registry.Registry) {
	t.Helper()
	db := newTestDB(t)

	agentsStore := store.NewAgentsStore(db)
	pendingStore := store.NewPendingFilesStore(db)
	reportsStore := store.NewDeletionReportsStore(db)
	auditStore := store.NewAuditLogStore(db, reportsStore)
	deleteQueueStore := store.NewDeleteQueueStore(db)
	scanTaskQueueStore := store.NewScanTaskQueueStore(db)

	stores := &Stores{
		Agents: agentsStore, Pending: pendingStore, AuditLog: auditStore,
		DeleteQueue: deleteQueueStore, ScanTaskQueue: scanTaskQueueStore,
	}

	bus := eventbus.New()
	reg := registry.New(agentsStore)
	dispatcher := masterconn.NewDispatcher(reg, scanTaskQueueStore, bus)

	cfg := &config.Config{GinMode: "test", OfflineTimeoutSec: 60}
	srv := NewServer(stores, reg, dispatcher, bus, cfg)
	return srv, stores, reg
}
