package masterconn

import (
	"context"
	"testing"

	"github.com/filewarden/mesh/internal/eventbus"
	"github.com/filewarden/mesh/internal/protocol"
	"github.com/filewarden/mesh/internal/registry"
	"github.com/filewarden/mesh/internal/store"
)

func newTestCollector(t *testing.T) (*Collector, *registry.Registry, *store.PendingFilesStore) {
	t.Helper()
	db := newTestDB(t)
	pending := store.NewPendingFilesStore(db)
	reports := store.NewDeletionReportsStore(db)
	agentsStore := store.NewAgentsStore(db)
	reg := registry.New(agentsStore)
	return NewCollector(pending, reports, reg, eventbus.New()), reg, pending
}

func TestIngestScanResultsPersistsAndTransitions(t *testing.T) {
	c, reg, pending := newTestCollector(t)
	ctx := context.Background()

	reg.Register(ctx, "10.0.0.11", nil, nil)

	res := protocol.ScanResults{
		Type:   protocol.TypeScanResults,
		TaskID: "scan-abc",
		Files: []protocol.ScannedFile{
			{Path: "/tmp/a.py", Filename: "a.py", FileHash: "hash1", Language: "python", Confidence: 0.9, Reason: "matched keyword"},
		},
	}

	if err := c.IngestScanResults(ctx, "10.0.0.11", res); err != nil {
		t.Fatalf("IngestScanResults: %v", err)
	}

	sess, _ := reg.Get("10.0.0.11")
	if sess.Status != registry.StatusAwaitingApproval {
		t.Errorf("expected status %q, got %q", registry.StatusAwaitingApproval, sess.Status)
	}

	rows, err := pending.GetByTaskID(ctx, "scan-abc")
	if err != nil {
		t.Fatalf("GetByTaskID: %v", err)
	}
	if len(rows) != 1 || rows[0].FileHash != "hash1" {
		t.Fatalf("expected 1 persisted pending file with hash1, got %+v", rows)
	}
}

func TestIngestScanResultsFallsBackToResultsField(t *testing.T) {
	c, _, pending := newTestCollector(t)
	ctx := context.Background()

	res := protocol.ScanResults{
		TaskID:  "scan-legacy",
		Results: []protocol.ScannedFile{{Path: "/tmp/b.py", Filename: "b.py", FileHash: "hash2"}},
	}

	if err := c.IngestScanResults(ctx, "10.0.0.12", res); err != nil {
		t.Fatalf("IngestScanResults: %v", err)
	}

	rows, err := pending.GetByTaskID(ctx, "scan-legacy")
	if err != nil {
		t.Fatalf("GetByTaskID: %v", err)
	}
	if len(rows) != 1 || rows[0].FileHash != "hash2" {
		t.Fatalf("expected legacy results field to populate pending files, got %+v", rows)
	}
}

func TestIngestDeletionReportReturnsAgentToIdle(t *testing.T) {
	c, reg, pending := newTestCollector(t)
	ctx := context.Background()

	reg.Register(ctx, "10.0.0.13", nil, nil)
	reg.UpdateStatus(ctx, "10.0.0.13", registry.StatusDeletionDispatched)

	res := protocol.ScanResults{
		TaskID: "scan-del",
		Files:  []protocol.ScannedFile{{Path: "/tmp/c.py", Filename: "c.py", FileHash: "hash3"}},
	}
	if err := c.IngestScanResults(ctx, "10.0.0.13", res); err != nil {
		t.Fatalf("seed IngestScanResults: %v", err)
	}

	rep := protocol.DeletionReport{
		Type:   protocol.TypeDeletionReport,
		TaskID: "scan-del",
		Reports: []protocol.DeletionOutcome{
			{FileHash: "hash3", Path: "/tmp/c.py", Status: "deleted"},
		},
	}
	if err := c.IngestDeletionReport(ctx, "10.0.0.13", rep); err != nil {
		t.Fatalf("IngestDeletionReport: %v", err)
	}

	sess, _ := reg.Get("10.0.0.13")
	if sess.Status != registry.StatusIdle {
		t.Errorf("expected status %q, got %q", registry.StatusIdle, sess.Status)
	}

	rows, err := pending.GetByTaskID(ctx, "scan-del")
	if err != nil {
		t.Fatalf("GetByTaskID: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected deleted file removed from pending, got %d rows", len(rows))
	}
}
