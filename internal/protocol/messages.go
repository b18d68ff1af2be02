package protocol

// Message type tags carried in every frame's "type" field.
const (
	TypeRegister       = "register"
	TypeHeartbeat      = "heartbeat"
	TypeScanTask       = "scan_task"
	TypeScanResults    = "scan_results"
	TypeDeleteApproved = "delete_approved"
	TypeDeletionReport = "deletion_report"
	TypeRestoreFile    = "restore_file"
)

// Envelope is decoded first to read the discriminant "type" field before
// unmarshaling the rest of the frame into its concrete shape.
type Envelope struct {
	Type string `json:"type"`
}

// Register is the agent's first frame after dialing the master.
type Register struct {
	Type      string `json:"type"`
	ClientID  string `json:"client_id"`
	Timestamp string `json:"timestamp"`
}

// Heartbeat keeps the registry's last-seen clock moving and gives the
// master a chance to drain any queued commands for this agent.
type Heartbeat struct {
	Type      string `json:"type"`
	ClientID  string `json:"client_id"`
	Timestamp string `json:"timestamp"`
}

// CustomRule is a free-form scan task's matcher, used in place of
// target_languages when the admin submits a custom scan from the UI's
// "Other" option.
type CustomRule struct {
	Name      string `json:"name,omitempty"`
	Keywords  string `json:"keywords,omitempty"`
	Extension string `json:"extension,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
}

// DateFilter bounds a scan task to files modified within [Start, End].
// Either bound may be empty to leave that side unbounded.
type DateFilter struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// ScanTask instructs an agent to scan its configured directories.
type ScanTask struct {
	Type            string      `json:"type"`
	TaskID          string      `json:"task_id"`
	TargetLanguages []string    `json:"target_languages,omitempty"`
	DateFilter      *DateFilter `json:"date_filter,omitempty"`
	Custom          *CustomRule `json:"custom,omitempty"`
	CreatedAt       string      `json:"created_at,omitempty"`
}

// ScannedFile is one file an agent flagged during a scan: either
// quarantined, or left in place with Decision "quarantine_failed" when
// the move into quarantine failed.
type ScannedFile struct {
	Path         string  `json:"path"`
	Filename     string  `json:"filename"`
	Size         int64   `json:"size"`
	ModifiedTime string  `json:"modified_time"`
	Decision     string  `json:"decision"`
	Confidence   float64 `json:"confidence"`
	Language     string  `json:"language"`
	Method       string  `json:"method"`
	Reason       string  `json:"reason"`
	FileHash     string  `json:"file_hash"`
}

// ScanResults is an agent's report of what it found and quarantined for
// one scan task. Files is canonical; Results is accepted on decode for
// compatibility with older senders that used that key instead.
type ScanResults struct {
	Type      string        `json:"type"`
	TaskID    string        `json:"task_id"`
	ClientID  string        `json:"client_id"`
	Timestamp string        `json:"timestamp"`
	Files     []ScannedFile `json:"files,omitempty"`
	Results   []ScannedFile `json:"results,omitempty"`
}

// FileList returns Files, falling back to Results when Files is empty —
// the wire compatibility shim frontend/app.py's scan_result handler
// relies on.
func (r ScanResults) FileList() []ScannedFile {
	if len(r.Files) > 0 {
		return r.Files
	}
	return r.Results
}

// ApprovedEntry identifies one quarantined file an admin approved for
// permanent deletion.
type ApprovedEntry struct {
	FileHash string `json:"file_hash,omitempty"`
	Path     string `json:"path,omitempty"`
	RecordID string `json:"record_id,omitempty"`
}

// DeleteApproved carries the admin's approval down to the owning agent.
type DeleteApproved struct {
	Type            string          `json:"type"`
	TaskID          string          `json:"task_id"`
	ApprovedEntries []ApprovedEntry `json:"approved_entries"`
	ApprovedHashes  []string        `json:"approved_hashes,omitempty"`
	Timestamp       string          `json:"timestamp"`
}

// DeletionOutcome is the terminal status of one file's delete attempt.
type DeletionOutcome struct {
	FileHash string `json:"file_hash"`
	Path     string `json:"path"`
	Status   string `json:"status"` // "deleted" | "failed"
	Details  string `json:"details"`
}

// DeletionReport is the agent's reply to a DeleteApproved command.
type DeletionReport struct {
	Type      string            `json:"type"`
	TaskID    string            `json:"task_id"`
	ClientID  string            `json:"client_id"`
	Timestamp string            `json:"timestamp"`
	Reports   []DeletionOutcome `json:"reports"`
}

// RestoreFile is reserved: the agent decodes and logs it but takes no
// action, matching the original's stubbed _restore_file handler.
type RestoreFile struct {
	Type         string `json:"type"`
	FileHash     string `json:"file_hash"`
	OriginalPath string `json:"original_path"`
}
