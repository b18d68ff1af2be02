// pending_files.go — pending_files CRUD, the UI's file-review work queue.
// Mirrors shared/persistence.py's replace_pending_files/list_pending_files/
// get_pending_by_ids/delete_pending_by_ids.
package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"time"

	apperrors "github.com/filewarden/mesh/pkg/errors"
)

// PendingFilesStore persists the agent scan findings awaiting admin review.
type PendingFilesStore struct{ BaseStore }

// NewPendingFilesStore creates a PendingFilesStore.
func NewPendingFilesStore(db *sql.DB) *PendingFilesStore { return &PendingFilesStore{NewBaseStore(db)} }

// ScanResultItem is the part of one file entry from an agent's
// scan_results message that a pending_files row keeps. It is a separate
// type from the wire struct: the collector copies each decoded
// protocol.ScannedFile into one before inserting.
type ScanResultItem struct {
	FilePath     string
	Filename     string
	FileHash     string
	Language     string
	Confidence   float64
	Reason       string
	ModifiedTime string
}

// ReplaceForTask atomically replaces every pending_files row for
// (taskID, agentIP) with the freshly reported files. Re-delivery of the
// same scan_results message (e.g. after an agent reconnect) is therefore
// idempotent: the REPLACE semantics plus the deterministic record_id in
// RecordID mean a duplicate delivery never creates duplicate rows.
func (s *PendingFilesStore) ReplaceForTask(ctx context.Context, taskID, agentIP string, files []ScanResultItem) error {
	op := "PendingFilesStore.ReplaceForTask"
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, op, "begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM pending_files WHERE task_id=? AND agent_ip=?`, taskID, agentIP); err != nil {
		return apperrors.Wrap(err, op, "clear existing pending rows")
	}

	for _, item := range files {
		path := item.FilePath
		filename := item.Filename
		if filename == "" {
			filename = filepath.Base(path)
		}
		if filename == "" {
			filename = "unknown"
		}
		rid := RecordID(taskID, agentIP, item.FileHash, path)
		createdAt := item.ModifiedTime
		if createdAt == "" {
			createdAt = nowISO(time.Now())
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO pending_files(
				id, task_id, agent_ip, file_hash, filename, path, language,
				confidence, reason, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rid, taskID, agentIP, item.FileHash, filename, path, item.Language,
			item.Confidence, item.Reason, createdAt); err != nil {
			return apperrors.Wrap(err, op, "insert pending row")
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(err, op, "commit tx")
	}
	return nil
}

// List returns pending files, optionally filtered by a case-insensitive
// substring search across filename/path/agent_ip/task_id/language.
func (s *PendingFilesStore) List(ctx context.Context, search string) ([]PendingFileView, error) {
	op := "PendingFilesStore.List"
	q := NewQueryBuilder().KeywordLike(search, "filename", "path", "agent_ip", "task_id", "language")
	query, params := q.Build("SELECT id, task_id, agent_ip, file_hash, filename, path, language, confidence, reason, created_at FROM pending_files",
		"created_at DESC", 2000)

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, apperrors.Wrap(err, op, "query pending files")
	}
	files, err := scanRows[PendingFile](rows)
	if err != nil {
		return nil, apperrors.Wrap(err, op, "scan pending files")
	}

	views := make([]PendingFileView, 0, len(files))
	for _, f := range files {
		views = append(views, NewPendingFileView(f))
	}
	return views, nil
}

// GetByTaskID returns every pending file reported under taskID, the
// backing query for /scan-results.
func (s *PendingFilesStore) GetByTaskID(ctx context.Context, taskID string) ([]PendingFileView, error) {
	op := "PendingFilesStore.GetByTaskID"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, agent_ip, file_hash, filename, path, language, confidence, reason, created_at
		 FROM pending_files WHERE task_id=? ORDER BY created_at DESC`, taskID)
	if err != nil {
		return nil, apperrors.Wrap(err, op, "query pending files by task")
	}
	files, err := scanRows[PendingFile](rows)
	if err != nil {
		return nil, apperrors.Wrap(err, op, "scan pending files by task")
	}

	views := make([]PendingFileView, 0, len(files))
	for _, f := range files {
		views = append(views, NewPendingFileView(f))
	}
	return views, nil
}

// GetByIDs returns the pending_files rows matching record IDs, in no
// particular order; unmatched IDs are silently omitted.
func (s *PendingFilesStore) GetByIDs(ctx context.Context, ids []string) ([]PendingFileView, error) {
	op := "PendingFilesStore.GetByIDs"
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = id
	}
	inClause := ""
	for i := range ids {
		if i > 0 {
			inClause += ","
		}
		inClause += "?"
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, task_id, agent_ip, file_hash, filename, path, language, confidence, reason, created_at FROM pending_files WHERE id IN ("+inClause+")",
		placeholders...)
	if err != nil {
		return nil, apperrors.Wrap(err, op, "query pending files by id")
	}
	files, err := scanRows[PendingFile](rows)
	if err != nil {
		return nil, apperrors.Wrap(err, op, "scan pending files by id")
	}

	views := make([]PendingFileView, 0, len(files))
	for _, f := range files {
		views = append(views, NewPendingFileView(f))
	}
	return views, nil
}

// DeleteByIDs removes pending_files rows, e.g. once approved for deletion
// or rejected in the admin UI.
func (s *PendingFilesStore) DeleteByIDs(ctx context.Context, ids []string) error {
	op := "PendingFilesStore.DeleteByIDs"
	if len(ids) == 0 {
		return nil
	}
	if _, err := DeleteBatchByKeys(ctx, s.db, "pending_files", "id", ids); err != nil {
		return apperrors.Wrap(err, op, "delete pending files")
	}
	return nil
}
