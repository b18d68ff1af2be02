// scan_task_queue.go — scan_task_queue, the at-least-once delivery queue
// for scan_task messages sent to agents that aren't currently reachable
// over a live socket. The Python distribution's frontend/app.py called
// persistence.enqueue_task / fetch_pending_tasks / mark_task_sent /
// mark_task_failed without ever defining them in shared/persistence.py —
// this store supplies the missing implementation, built the same way as
// the (fully implemented) delete_command_queue it sits beside.
package store

import (
	"context"
	"database/sql"
	"time"

	apperrors "github.com/filewarden/mesh/pkg/errors"
)

// ScanTaskQueueStore persists queued scan_task commands.
type ScanTaskQueueStore struct{ BaseStore }

// NewScanTaskQueueStore creates a ScanTaskQueueStore.
func NewScanTaskQueueStore(db *sql.DB) *ScanTaskQueueStore {
	return &ScanTaskQueueStore{NewBaseStore(db)}
}

// Enqueue queues payloadJSON for agentIP/taskID.
func (s *ScanTaskQueueStore) Enqueue(ctx context.Context, agentIP, taskID, payloadJSON string) (int64, error) {
	op := "ScanTaskQueueStore.Enqueue"
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_task_queue(agent_ip, task_id, payload_json, status, created_at)
		VALUES (?, ?, ?, 'pending', ?)
	`, agentIP, taskID, payloadJSON, nowISO(time.Now()))
	if err != nil {
		return 0, apperrors.Wrap(err, op, "insert queued scan task")
	}
	return res.LastInsertId()
}

// FetchPending returns up to limit pending scan tasks for agentIP, oldest
// first, drained on the agent's next heartbeat.
func (s *ScanTaskQueueStore) FetchPending(ctx context.Context, agentIP string, limit int) ([]QueuedCommand, error) {
	op := "ScanTaskQueueStore.FetchPending"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_ip, task_id, payload_json, status, error, created_at, sent_at
		FROM scan_task_queue
		WHERE agent_ip=? AND status='pending'
		ORDER BY id ASC
		LIMIT ?
	`, agentIP, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, op, "query pending scan tasks")
	}
	cmds, err := scanRows[QueuedCommand](rows)
	if err != nil {
		return nil, apperrors.Wrap(err, op, "scan pending scan tasks")
	}
	return cmds, nil
}

// MarkSent transitions a queued scan task to 'sent'.
func (s *ScanTaskQueueStore) MarkSent(ctx context.Context, id int64) error {
	op := "ScanTaskQueueStore.MarkSent"
	if _, err := s.db.ExecContext(ctx, `
		UPDATE scan_task_queue SET status='sent', sent_at=?, error=NULL WHERE id=?
	`, nowISO(time.Now()), id); err != nil {
		return apperrors.Wrap(err, op, "mark scan task sent")
	}
	return nil
}

// MarkFailed records a dispatch error and leaves the task pending for
// retry on the next heartbeat.
func (s *ScanTaskQueueStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	op := "ScanTaskQueueStore.MarkFailed"
	if len(errMsg) > 500 {
		errMsg = errMsg[:500]
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE scan_task_queue SET status='pending', error=? WHERE id=?
	`, errMsg, id); err != nil {
		return apperrors.Wrap(err, op, "mark scan task failed")
	}
	return nil
}
