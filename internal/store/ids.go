package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// RecordID builds the deterministic pending_files primary key:
//
//	record_id = task_id | agent_ip | file_hash_or_path_hash
//
// When a scan result carries no file_hash (a custom-filter match without a
// hash, or a language the agent never hashed), the hash is derived from
// task_id|agent_ip|path so the same (task, agent, path) triple always
// lands on the same row — letting a re-delivered scan_results message
// REPLACE rather than duplicate a pending entry. Mirrors
// shared/persistence.py's _record_id.
func RecordID(taskID, agentIP, fileHash, path string) string {
	if fileHash == "" {
		sum := sha256.Sum256([]byte(taskID + "|" + agentIP + "|" + path))
		fileHash = hex.EncodeToString(sum[:])
	}
	return fmt.Sprintf("%s|%s|%s", taskID, agentIP, fileHash)
}
