// Package store provides every persisted model and table-scoped store for
// the mesh. Go struct `db` tags map straight onto the SQLite column names
// produced by migrations/0001_init.sql, eliminating the row->struct
// conversion helpers the Python distribution hand-rolled per table.
package store

import "time"

// Agent mirrors persisted_agents. LastSeen is a Unix timestamp (seconds,
// fractional) — this is the Go equivalent of Python's time.time(), kept
// as a float so touch()/mark_offline_inactive() compare it directly
// against time.Now().Unix() without a timezone round-trip.
type Agent struct {
	AgentIP  string  `db:"agent_ip" json:"agent_ip"`
	Status   string  `db:"status" json:"status"`
	LastSeen float64 `db:"last_seen" json:"last_seen"`
	ClientID *string `db:"client_id" json:"client_id,omitempty"`
}

// PendingFile mirrors pending_files — the UI's review queue. ID is the
// deterministic record_id built by RecordID(taskID, agentIP, fileHash, path).
type PendingFile struct {
	ID         string  `db:"id" json:"id"`
	TaskID     string  `db:"task_id" json:"task_id"`
	AgentIP    string  `db:"agent_ip" json:"agent_ip"`
	FileHash   string  `db:"file_hash" json:"file_hash"`
	Filename   string  `db:"filename" json:"filename"`
	Path       string  `db:"path" json:"path"`
	Language   string  `db:"language" json:"language"`
	Confidence float64 `db:"confidence" json:"confidence"`
	Reason     string  `db:"reason" json:"reason"`
	CreatedAt  string  `db:"created_at" json:"created_at"`
}

// PendingFileView is PendingFile with the UI-facing "status" field the
// Python /files-preview endpoint always sets to "pending" (pending_files
// never persists a status column of its own — a row's mere presence
// means pending).
type PendingFileView struct {
	PendingFile
	Status string `json:"status"`
}

// NewPendingFileView wraps a row with the constant UI status.
func NewPendingFileView(f PendingFile) PendingFileView {
	return PendingFileView{PendingFile: f, Status: "pending"}
}

// DeletionReport mirrors deletion_reports — the agent's terminal
// delete/failed outcome for one quarantined file.
type DeletionReport struct {
	ID        int64  `db:"id" json:"id"`
	AgentIP   string `db:"agent_ip" json:"agent_ip"`
	TaskID    string `db:"task_id" json:"task_id"`
	FileHash  string `db:"file_hash" json:"file_hash"`
	Path      string `db:"path" json:"path"`
	Status    string `db:"status" json:"status"`
	Details   string `db:"details" json:"details"`
	CreatedAt string `db:"created_at" json:"created_at"`
}

// QueuedCommand is the shared row shape for delete_command_queue and
// scan_task_queue: both are at-least-once delivery queues drained on the
// agent's next heartbeat when the agent is not reachable over its live
// socket right now.
type QueuedCommand struct {
	ID          int64   `db:"id" json:"id"`
	AgentIP     string  `db:"agent_ip" json:"agent_ip"`
	TaskID      string  `db:"task_id" json:"task_id"`
	PayloadJSON string  `db:"payload_json" json:"payload_json"`
	Status      string  `db:"status" json:"status"`
	Error       string  `db:"error" json:"error"`
	CreatedAt   string  `db:"created_at" json:"created_at"`
	SentAt      *string `db:"sent_at" json:"sent_at,omitempty"`
}

// AuditLogEntry mirrors deletion_audit_log — the durable record of every
// admin decision (approve/reject/dispatch) on a pending file.
type AuditLogEntry struct {
	ID         int64   `db:"id" json:"id"`
	RecordID   string  `db:"record_id" json:"record_id"`
	TaskID     string  `db:"task_id" json:"task_id"`
	AgentIP    string  `db:"agent_ip" json:"agent_ip"`
	FileHash   string  `db:"file_hash" json:"file_hash"`
	Filename   string  `db:"filename" json:"filename"`
	Path       string  `db:"path" json:"path"`
	Language   string  `db:"language" json:"language"`
	Confidence float64 `db:"confidence" json:"confidence"`
	Action     string  `db:"action" json:"action"`
	ActionBy   string  `db:"action_by" json:"action_by"`
	Notes      string  `db:"notes" json:"notes"`
	CreatedAt  string  `db:"created_at" json:"created_at"`
}

// AuditFeedRow is the merged, UI-facing shape audit-logs produces: real
// deletion_audit_log rows interleaved with synthetic rows projected from
// deletion_reports (an agent's own "delete_confirmed"/"delete_failed"
// outcome, which never gets its own audit-log row).
type AuditFeedRow struct {
	ID         string  `json:"id"`
	RecordID   string  `json:"record_id"`
	TaskID     string  `json:"task_id"`
	AgentIP    string  `json:"agent_ip"`
	FileHash   string  `json:"file_hash"`
	Filename   string  `json:"filename"`
	Path       string  `json:"path"`
	Language   string  `json:"language,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Action     string  `json:"action"`
	ActionBy   string  `json:"action_by"`
	Notes      string  `json:"notes"`
	CreatedAt  string  `json:"created_at"`
}

// nowISO formats t the way the Python distribution's _now_iso() does:
// local time with a UTC offset, readable directly in logs and the UI.
func nowISO(t time.Time) string {
	return t.Local().Format(time.RFC3339Nano)
}
