// audit_log.go — deletion_audit_log CRUD, plus the merged audit feed the
// admin API serves. Mirrors frontend/app.py's _persist_audit_logs and
// the audit_logs() route's merge/noise-reduction logic over
// DeletionAuditLog + deletion_reports.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	apperrors "github.com/filewarden/mesh/pkg/errors"
)

// AuditLogStore persists admin decisions over pending files.
type AuditLogStore struct {
	BaseStore
	reports *DeletionReportsStore
}

// NewAuditLogStore creates an AuditLogStore. reports backs the synthetic
// delete_confirmed/delete_failed rows merged into the feed.
func NewAuditLogStore(db *sql.DB, reports *DeletionReportsStore) *AuditLogStore {
	return &AuditLogStore{BaseStore: NewBaseStore(db), reports: reports}
}

// Append records one audit entry per file, using the file's own
// record_id/task_id/agent_ip/etc rather than requiring the caller to
// restate them.
func (s *AuditLogStore) Append(ctx context.Context, files []PendingFileView, action, notes string) error {
	op := "AuditLogStore.Append"
	if len(files) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, op, "begin tx")
	}
	defer tx.Rollback()

	createdAt := nowISO(time.Now())
	for _, f := range files {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO deletion_audit_log(
				record_id, task_id, agent_ip, file_hash, filename, path,
				language, confidence, action, action_by, notes, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, f.ID, f.TaskID, f.AgentIP, f.FileHash, f.Filename, f.Path,
			f.Language, f.Confidence, action, "admin-ui", notes, createdAt); err != nil {
			return apperrors.Wrap(err, op, "insert audit log row")
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(err, op, "commit tx")
	}
	return nil
}

// List returns the merged, UI-facing audit feed: real deletion_audit_log
// rows interleaved with synthetic delete_confirmed/delete_failed rows
// projected from deletion_reports, newest first, capped at limit.
//
// Noise-reduction rules (carried unchanged from frontend/app.py's
// audit_logs route):
//   - "delete_dispatch_failed" rows never reach the UI (kept in the DB
//     for troubleshooting only).
//   - a "delete_failed" row is suppressed once a "delete_confirmed" row
//     exists for the same (task_id, agent_ip, file_hash, path) key — the
//     file did eventually get deleted, so the earlier failure is noise.
func (s *AuditLogStore) List(ctx context.Context, limit int) ([]AuditFeedRow, error) {
	op := "AuditLogStore.List"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record_id, task_id, agent_ip, file_hash, filename, path,
		       language, confidence, action, action_by, notes, created_at
		FROM deletion_audit_log ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, op, "query audit log")
	}
	entries, err := scanRows[AuditLogEntry](rows)
	if err != nil {
		return nil, apperrors.Wrap(err, op, "scan audit log")
	}

	combined := make([]AuditFeedRow, 0, len(entries))
	for _, e := range entries {
		combined = append(combined, AuditFeedRow{
			ID:         fmt.Sprintf("%d", e.ID),
			RecordID:   e.RecordID,
			TaskID:     e.TaskID,
			AgentIP:    e.AgentIP,
			FileHash:   e.FileHash,
			Filename:   e.Filename,
			Path:       e.Path,
			Language:   e.Language,
			Confidence: e.Confidence,
			Action:     e.Action,
			ActionBy:   e.ActionBy,
			Notes:      e.Notes,
			CreatedAt:  e.CreatedAt,
		})
	}

	reports, err := s.reports.List(ctx, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, op, "list deletion reports")
	}
	for _, rep := range reports {
		action := "delete_failed"
		if rep.Status == "deleted" {
			action = "delete_confirmed"
		}
		filename := "unknown"
		if rep.Path != "" {
			filename = path.Base(strings.ReplaceAll(rep.Path, `\`, "/"))
		}
		combined = append(combined, AuditFeedRow{
			ID:        fmt.Sprintf("rep-%d", rep.ID),
			TaskID:    rep.TaskID,
			AgentIP:   rep.AgentIP,
			FileHash:  rep.FileHash,
			Filename:  filename,
			Path:      rep.Path,
			Action:    action,
			ActionBy:  "agent",
			Notes:     rep.Details,
			CreatedAt: rep.CreatedAt,
		})
	}

	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].CreatedAt > combined[j].CreatedAt
	})

	confirmedKeys := make(map[string]bool)
	for _, row := range combined {
		if row.Action == "delete_confirmed" {
			confirmedKeys[feedRowKey(row)] = true
		}
	}

	filtered := make([]AuditFeedRow, 0, len(combined))
	for _, row := range combined {
		if row.Action == "delete_dispatch_failed" {
			continue
		}
		if row.Action == "delete_failed" && confirmedKeys[feedRowKey(row)] {
			continue
		}
		filtered = append(filtered, row)
	}

	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func feedRowKey(row AuditFeedRow) string {
	return row.TaskID + "|" + row.AgentIP + "|" + row.FileHash + "|" + row.Path
}
