package masterconn

import (
	"context"

	"github.com/filewarden/mesh/internal/eventbus"
	"github.com/filewarden/mesh/internal/protocol"
	"github.com/filewarden/mesh/internal/registry"
	"github.com/filewarden/mesh/internal/store"
	"github.com/filewarden/mesh/pkg/logger"
)

// Collector ingests agent-reported scan results into the pending-files
// work queue and agent-reported deletion outcomes into the deletion
// report log, reconciling pending rows as reports arrive. The single
// writer of pending_files, the Go port of result_collector.py.
type Collector struct {
	pending  *store.PendingFilesStore
	reports  *store.DeletionReportsStore
	registry *registry.Registry
	bus      *eventbus.Bus
}

// NewCollector creates a Collector.
func NewCollector(pending *store.PendingFilesStore, reports *store.DeletionReportsStore, reg *registry.Registry, bus *eventbus.Bus) *Collector {
	return &Collector{pending: pending, reports: reports, registry: reg, bus: bus}
}

// IngestScanResults atomically replaces the pending-file set for
// (taskID, agentIP) and moves the agent to AWAITING_APPROVAL.
func (c *Collector) IngestScanResults(ctx context.Context, agentIP string, res protocol.ScanResults) error {
	files := res.FileList()
	items := make([]store.ScanResultItem, 0, len(files))
	for _, f := range files {
		items = append(items, store.ScanResultItem{
			FilePath: f.Path, Filename: f.Filename, FileHash: f.FileHash,
			Language: f.Language, Confidence: f.Confidence, Reason: f.Reason,
			ModifiedTime: f.ModifiedTime,
		})
	}

	if err := c.pending.ReplaceForTask(ctx, res.TaskID, agentIP, items); err != nil {
		return err
	}
	c.registry.UpdateStatus(ctx, agentIP, registry.StatusAwaitingApproval)

	logger.Infow("masterconn: scan results ingested", logger.FieldAgentIP, agentIP, logger.FieldTaskID, res.TaskID, logger.FieldCount, len(items))
	if c.bus != nil {
		c.bus.Publish(eventbus.TopicScan, eventbus.TypeScanResults, map[string]any{
			"agent_ip": agentIP, "task_id": res.TaskID, "count": len(items),
		})
	}
	return nil
}

// IngestDeletionReport persists the agent's outcome for every approved
// entry, removes terminally-resolved pending rows, and returns the
// agent to IDLE.
func (c *Collector) IngestDeletionReport(ctx context.Context, agentIP string, rep protocol.DeletionReport) error {
	items := make([]store.ReportItem, 0, len(rep.Reports))
	for _, r := range rep.Reports {
		items = append(items, store.ReportItem{FileHash: r.FileHash, Path: r.Path, Status: r.Status, Details: r.Details})
	}

	if err := c.reports.Add(ctx, agentIP, rep.TaskID, items); err != nil {
		return err
	}
	if err := c.reports.RemovePendingAfterReport(ctx, agentIP, rep.TaskID, items); err != nil {
		return err
	}
	c.registry.UpdateStatus(ctx, agentIP, registry.StatusIdle)

	logger.Infow("masterconn: deletion report ingested", logger.FieldAgentIP, agentIP, logger.FieldTaskID, rep.TaskID, logger.FieldCount, len(items))
	if c.bus != nil {
		c.bus.Publish(eventbus.TopicDeletion, eventbus.TypeDeletionReport, map[string]any{
			"agent_ip": agentIP, "task_id": rep.TaskID, "count": len(items),
		})
	}
	return nil
}
