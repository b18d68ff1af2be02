// delete_queue.go — delete_command_queue, the at-least-once delivery
// queue for delete_approved commands an agent was offline to receive
// directly. Mirrors shared/persistence.py's enqueue_delete_command /
// fetch_pending_delete_commands / mark_delete_command_sent /
// mark_delete_command_failed.
package store

import (
	"context"
	"database/sql"
	"time"

	apperrors "github.com/filewarden/mesh/pkg/errors"
)

// DeleteQueueStore persists queued delete_approved commands.
type DeleteQueueStore struct{ BaseStore }

// NewDeleteQueueStore creates a DeleteQueueStore.
func NewDeleteQueueStore(db *sql.DB) *DeleteQueueStore { return &DeleteQueueStore{NewBaseStore(db)} }

// Enqueue queues payloadJSON for agentIP/taskID, unless an identical
// pending command is already queued — this is the dedup the Python
// enqueue_delete_command performs before inserting. Only a byte-identical
// payloadJSON for the same agent and task coalesces; a payload that
// differs in any field, a timestamp included, is queued as a new row.
func (s *DeleteQueueStore) Enqueue(ctx context.Context, agentIP, taskID, payloadJSON string) (int64, error) {
	op := "DeleteQueueStore.Enqueue"

	var existingID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM delete_command_queue
		WHERE agent_ip=? AND task_id=? AND payload_json=? AND status='pending'
		LIMIT 1
	`, agentIP, taskID, payloadJSON).Scan(&existingID)
	if err == nil {
		return existingID, nil
	}
	if err != sql.ErrNoRows {
		return 0, apperrors.Wrap(err, op, "check existing queued command")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO delete_command_queue(agent_ip, task_id, payload_json, status, created_at)
		VALUES (?, ?, ?, 'pending', ?)
	`, agentIP, taskID, payloadJSON, nowISO(time.Now()))
	if err != nil {
		return 0, apperrors.Wrap(err, op, "insert queued command")
	}
	return res.LastInsertId()
}

// FetchPending returns up to limit pending commands for agentIP, oldest
// first (FIFO), drained on the agent's next heartbeat.
func (s *DeleteQueueStore) FetchPending(ctx context.Context, agentIP string, limit int) ([]QueuedCommand, error) {
	op := "DeleteQueueStore.FetchPending"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_ip, task_id, payload_json, status, error, created_at, sent_at
		FROM delete_command_queue
		WHERE agent_ip=? AND status='pending'
		ORDER BY id ASC
		LIMIT ?
	`, agentIP, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, op, "query pending delete commands")
	}
	cmds, err := scanRows[QueuedCommand](rows)
	if err != nil {
		return nil, apperrors.Wrap(err, op, "scan pending delete commands")
	}
	return cmds, nil
}

// MarkSent transitions a queued command to 'sent'.
func (s *DeleteQueueStore) MarkSent(ctx context.Context, id int64) error {
	op := "DeleteQueueStore.MarkSent"
	if _, err := s.db.ExecContext(ctx, `
		UPDATE delete_command_queue SET status='sent', sent_at=?, error=NULL WHERE id=?
	`, nowISO(time.Now()), id); err != nil {
		return apperrors.Wrap(err, op, "mark delete command sent")
	}
	return nil
}

// MarkFailed records a dispatch error and leaves the command pending for
// retry on the next heartbeat.
func (s *DeleteQueueStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	op := "DeleteQueueStore.MarkFailed"
	if len(errMsg) > 500 {
		errMsg = errMsg[:500]
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE delete_command_queue SET status='pending', error=? WHERE id=?
	`, errMsg, id); err != nil {
		return apperrors.Wrap(err, op, "mark delete command failed")
	}
	return nil
}
