// deletion_reports.go — deletion_reports log, the durable record of every
// per-file delete/failed outcome an agent reports back after executing a
// delete_approved command. Mirrors shared/persistence.py's
// add_deletion_reports / list_deletion_reports /
// remove_pending_after_deletion_report.
package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	apperrors "github.com/filewarden/mesh/pkg/errors"
)

// DeletionReportsStore persists agent-reported deletion outcomes.
type DeletionReportsStore struct{ BaseStore }

// NewDeletionReportsStore creates a DeletionReportsStore.
func NewDeletionReportsStore(db *sql.DB) *DeletionReportsStore {
	return &DeletionReportsStore{NewBaseStore(db)}
}

// ReportItem is one entry from an agent's deletion_report message.
type ReportItem struct {
	FileHash string
	Path     string
	Status   string // "deleted" | "failed"
	Details  string
}

// Add appends one row per report. A no-op for an empty slice.
func (s *DeletionReportsStore) Add(ctx context.Context, agentIP, taskID string, reports []ReportItem) error {
	op := "DeletionReportsStore.Add"
	if len(reports) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, op, "begin tx")
	}
	defer tx.Rollback()

	createdAt := nowISO(time.Now())
	for _, r := range reports {
		status := r.Status
		if status == "" {
			status = "unknown"
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO deletion_reports(agent_ip, task_id, file_hash, path, status, details, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, agentIP, taskID, r.FileHash, r.Path, status, r.Details, createdAt); err != nil {
			return apperrors.Wrap(err, op, "insert deletion report")
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(err, op, "commit tx")
	}
	return nil
}

// List returns the most recent deletion reports, newest first.
func (s *DeletionReportsStore) List(ctx context.Context, limit int) ([]DeletionReport, error) {
	op := "DeletionReportsStore.List"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_ip, task_id, file_hash, path, status, details, created_at
		FROM deletion_reports ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, op, "query deletion reports")
	}
	reports, err := scanRows[DeletionReport](rows)
	if err != nil {
		return nil, apperrors.Wrap(err, op, "scan deletion reports")
	}
	return reports, nil
}

// RemovePendingAfterReport deletes the pending_files rows a terminal
// report resolves: status=="deleted", or status=="failed" with details
// indicating the file was already gone from quarantine — in both cases
// the file is no longer actionable and must stop showing up for review.
// Matches by file_hash when present, else by path, exactly as the Python
// remove_pending_after_deletion_report does.
func (s *DeletionReportsStore) RemovePendingAfterReport(ctx context.Context, agentIP, taskID string, reports []ReportItem) error {
	op := "DeletionReportsStore.RemovePendingAfterReport"
	if len(reports) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, op, "begin tx")
	}
	defer tx.Rollback()

	for _, r := range reports {
		terminal := r.Status == "deleted" ||
			(r.Status == "failed" && strings.Contains(strings.ToLower(r.Details), "not found in quarantine"))
		if !terminal {
			continue
		}

		switch {
		case r.FileHash != "":
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM pending_files WHERE task_id=? AND agent_ip=? AND file_hash=?`,
				taskID, agentIP, r.FileHash); err != nil {
				return apperrors.Wrap(err, op, "delete pending row by hash")
			}
		case r.Path != "":
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM pending_files WHERE task_id=? AND agent_ip=? AND path=?`,
				taskID, agentIP, r.Path); err != nil {
				return apperrors.Wrap(err, op, "delete pending row by path")
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(err, op, "commit tx")
	}
	return nil
}
