package adminapi

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/filewarden/mesh/internal/protocol"
	"github.com/filewarden/mesh/internal/registry"
	"github.com/filewarden/mesh/internal/store"
	"github.com/filewarden/mesh/pkg/logger"
	"github.com/filewarden/mesh/pkg/util"
)

// submitInstruction dispatches a scan task described in plain language (or
// an explicit language list) to every live agent. The Go port of
// submit_instruction().
func (s *Server) submitInstruction(c *gin.Context) {
	var req struct {
		Instruction     string   `json:"instruction"`
		TargetLanguages []string `json:"target_languages"`
	}
	_ = c.ShouldBindJSON(&req)

	instruction := strings.TrimSpace(req.Instruction)
	targetLanguages := req.TargetLanguages
	if len(targetLanguages) == 0 {
		if instruction == "" {
			badRequest(c, "Instruction cannot be empty")
			return
		}
		targetLanguages = InferLanguages(instruction)
	}

	cleaned, invalid := validateLanguages(targetLanguages)
	if len(invalid) > 0 {
		badRequest(c, fmt.Sprintf("Unsupported languages: %v", invalid))
		return
	}

	task, err := createScanInstruction(cleaned, nil)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	active := s.registry.Active()
	if len(active) == 0 {
		badRequest(c, "No active agents available")
		return
	}

	ctx := c.Request.Context()
	dispatched := 0
	var failed []string
	for agentIP := range active {
		if err := s.dispatcher.DispatchToConnection(ctx, agentIP, task); err != nil {
			failed = append(failed, agentIP)
			logger.Errorw("adminapi: dispatch instruction failed", logger.FieldAgentIP, agentIP, logger.FieldError, err)
			continue
		}
		dispatched++
	}

	logger.Infow("adminapi: instruction dispatched", logger.FieldTaskID, task.TaskID, logger.FieldCount, dispatched)
	sort.Strings(failed)
	ok(c, gin.H{
		"message":          fmt.Sprintf("Instruction dispatched to %d agent(s)", dispatched),
		"task_id":          task.TaskID,
		"target_languages": cleaned,
		"failed_agents":    failed,
	})
}

// scan builds a scan task (language-targeted, or a custom rule for the
// UI's "Other" option) and sends it to every non-offline persisted agent,
// queuing for the ones not currently connected. The Go port of scan().
func (s *Server) scan(c *gin.Context) {
	var req struct {
		TargetLanguage string `json:"target_language"`
		CustomName     string `json:"custom_name"`
		Keywords       string `json:"keywords"`
		Extension      string `json:"extension"`
		Pattern        string `json:"pattern"`
	}
	_ = c.ShouldBindJSON(&req)

	var task protocol.ScanTask
	if req.TargetLanguage != "" && req.TargetLanguage != "Other" {
		cleaned, invalid := validateLanguages([]string{req.TargetLanguage})
		if len(invalid) > 0 {
			badRequest(c, fmt.Sprintf("Unsupported languages: %v", invalid))
			return
		}
		t, err := createScanInstruction(cleaned, nil)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		task = t
	} else {
		task = customScanInstruction(protocol.CustomRule{
			Name: req.CustomName, Keywords: req.Keywords, Extension: req.Extension, Pattern: req.Pattern,
		})
	}

	ctx := c.Request.Context()
	agents, err := s.stores.Agents.List(ctx)
	if err != nil {
		serverError(c, "scan", err)
		return
	}

	sent, queued, _ := s.dispatcher.DispatchOrQueue(ctx, agents, task)
	if sent == 0 && queued == 0 {
		badRequest(c, "No active agents available")
		return
	}

	ok(c, gin.H{
		"task_id":       task.TaskID,
		"sent_to":       sent,
		"queued":        queued,
		"failed_agents": []string{},
		"results":       []any{},
	})
}

// scanResults returns every pending file reported under task_id so far.
// The Go port of scan_results().
func (s *Server) scanResults(c *gin.Context) {
	taskID := c.Query("task_id")
	if taskID == "" {
		badRequest(c, "task_id required")
		return
	}
	results, err := s.stores.Pending.GetByTaskID(c.Request.Context(), taskID)
	if err != nil {
		serverError(c, "scan-results", err)
		return
	}
	ok(c, gin.H{"task_id": taskID, "results": results})
}

// clientsStatus merges the persisted agent table with the live registry
// and reports only agents seen within the freshness window. The Go port
// of clients_status().
func (s *Server) clientsStatus(c *gin.Context) {
	ctx := c.Request.Context()
	persisted, err := s.stores.Agents.List(ctx)
	if err != nil {
		serverError(c, "clients-status", err)
		return
	}

	merged := make(map[string]store.Agent, len(persisted))
	for _, a := range persisted {
		merged[a.AgentIP] = a
	}
	for ip, sess := range s.registry.Active() {
		merged[ip] = store.Agent{AgentIP: ip, Status: sess.Status, LastSeen: unixSeconds(sess.LastSeen)}
	}

	ips := make([]string, 0, len(merged))
	for ip := range merged {
		ips = append(ips, ip)
	}
	sort.Strings(ips)

	now := time.Now()
	freshness := time.Duration(s.cfg.OfflineTimeoutSec) * time.Second

	list := make([]gin.H, 0, len(ips))
	idx := 1
	for _, ip := range ips {
		a := merged[ip]
		if a.LastSeen == 0 {
			continue
		}
		lastSeen := time.Unix(0, int64(a.LastSeen*float64(time.Second)))
		if now.Sub(lastSeen) >= freshness {
			continue
		}
		status := "online"
		if a.Status == registry.StatusOffline {
			status = "offline"
		}
		list = append(list, gin.H{
			"id": idx, "name": fmt.Sprintf("Agent %d", idx), "ip": ip, "ip_address": ip,
			"status": status, "raw_status": a.Status, "last_seen": lastSeen.UTC().Format(time.RFC3339),
		})
		idx++
	}
	ok(c, list)
}

// filesPreview returns the file-review work queue, optionally filtered by
// a search term. The Go port of files_preview().
func (s *Server) filesPreview(c *gin.Context) {
	search := strings.TrimSpace(c.Query("search"))
	files, err := s.stores.Pending.List(c.Request.Context(), search)
	if err != nil {
		serverError(c, "files-preview", err)
		return
	}
	ok(c, files)
}

// auditLogs returns the merged, noise-reduced audit feed. The Go port of
// audit_logs().
func (s *Server) auditLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	limit = util.ClampInt(limit, 1, 1000)

	rows, err := s.stores.AuditLog.List(c.Request.Context(), limit)
	if err != nil {
		serverError(c, "audit-logs", err)
		return
	}
	ok(c, rows)
}

type agentTaskKey struct{ AgentIP, TaskID string }

func groupByAgentTask(files []store.PendingFileView) map[agentTaskKey][]store.PendingFileView {
	grouped := make(map[agentTaskKey][]store.PendingFileView)
	for _, f := range files {
		taskID := f.TaskID
		if taskID == "" {
			taskID = "unknown-task"
		}
		key := agentTaskKey{f.AgentIP, taskID}
		grouped[key] = append(grouped[key], f)
	}
	return grouped
}

// approveDeletion dispatches a delete_approved command per (agent, task)
// group — immediately over a live socket where possible, queued for
// delivery on the agent's next heartbeat otherwise — and records the
// outcome in the audit log. The Go port of approve_deletion().
func (s *Server) approveDeletion(c *gin.Context) {
	ctx := c.Request.Context()
	var req struct {
		FileIDs []string `json:"file_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.FileIDs) == 0 {
		badRequest(c, "file_ids must be a non-empty list")
		return
	}

	selected, err := s.stores.Pending.GetByIDs(ctx, req.FileIDs)
	if err != nil {
		serverError(c, "approve-deletion", err)
		return
	}
	if len(selected) == 0 {
		notFound(c, "No matching pending files found")
		return
	}

	grouped := groupByAgentTask(selected)

	sentTo, queued := 0, 0
	delivered := make(map[string]bool)
	queuedIDs := make(map[string]bool)
	var undeliveredAgents []string

	for key, entries := range grouped {
		approved := make([]protocol.ApprovedEntry, 0, len(entries))
		var hashes []string
		for _, e := range entries {
			approved = append(approved, protocol.ApprovedEntry{FileHash: e.FileHash, Path: e.Path, RecordID: e.ID})
			if e.FileHash != "" {
				hashes = append(hashes, e.FileHash)
			}
		}
		payload := protocol.DeleteApproved{
			Type: protocol.TypeDeleteApproved, TaskID: key.TaskID, ApprovedEntries: approved,
			ApprovedHashes: hashes, Timestamp: time.Now().Local().Format(time.RFC3339),
		}

		dispatched := false
		if sess, live := s.registry.Get(key.AgentIP); live && sess.Writer != nil {
			if err := sess.Writer.Write(payload); err == nil {
				s.registry.UpdateStatus(ctx, key.AgentIP, registry.StatusDeletionDispatched)
				sentTo++
				dispatched = true
				for _, e := range entries {
					delivered[e.ID] = true
				}
			} else {
				logger.Errorw("adminapi: delete dispatch failed", logger.FieldAgentIP, key.AgentIP, logger.FieldError, err)
			}
		}

		if !dispatched {
			raw, _ := json.Marshal(payload)
			if _, err := s.stores.DeleteQueue.Enqueue(ctx, key.AgentIP, key.TaskID, string(raw)); err != nil {
				undeliveredAgents = append(undeliveredAgents, key.AgentIP)
				continue
			}
			queued++
			for _, e := range entries {
				queuedIDs[e.ID] = true
			}
			logger.Infow("adminapi: queued delete command", logger.FieldAgentIP, key.AgentIP, logger.FieldTaskID, key.TaskID)
		}
	}

	var deliveredFiles, queuedFiles, undeliveredFiles []store.PendingFileView
	for _, f := range selected {
		switch {
		case delivered[f.ID]:
			deliveredFiles = append(deliveredFiles, f)
		case queuedIDs[f.ID]:
			queuedFiles = append(queuedFiles, f)
		default:
			undeliveredFiles = append(undeliveredFiles, f)
		}
	}

	if len(deliveredFiles) > 0 {
		_ = s.stores.AuditLog.Append(ctx, deliveredFiles, "delete_dispatched",
			fmt.Sprintf("Approved in UI and dispatched to %d agent(s)", sentTo))
		_ = s.stores.Pending.DeleteByIDs(ctx, idsOf(deliveredFiles))
	}
	if len(queuedFiles) > 0 && queued > 0 {
		_ = s.stores.AuditLog.Append(ctx, queuedFiles, "delete_queued",
			"Delete command queued; will dispatch on next agent heartbeat")
	}
	if len(undeliveredFiles) > 0 {
		_ = s.stores.AuditLog.Append(ctx, undeliveredFiles, "delete_dispatch_failed",
			"Agent not connected or dispatch failed; kept pending")
	}

	ok(c, gin.H{
		"message": fmt.Sprintf("Dispatch success: %d file(s), queued: %d file(s), failed: %d file(s).",
			len(deliveredFiles), len(queuedFiles), len(undeliveredFiles)),
		"sent_to_agents":     sentTo,
		"queued_agents":      queued,
		"undelivered_agents": dedupSorted(undeliveredAgents),
	})
}

// rejectDeletion records a rejection decision and drops the files from the
// review queue. The Go port of reject_deletion().
func (s *Server) rejectDeletion(c *gin.Context) {
	ctx := c.Request.Context()
	var req struct {
		FileIDs []string `json:"file_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.FileIDs) == 0 {
		badRequest(c, "file_ids must be a non-empty list")
		return
	}

	selected, err := s.stores.Pending.GetByIDs(ctx, req.FileIDs)
	if err != nil {
		serverError(c, "reject-deletion", err)
		return
	}
	if len(selected) == 0 {
		notFound(c, "No matching pending files found")
		return
	}

	_ = s.stores.AuditLog.Append(ctx, selected, "rejected", "Rejected in UI")
	_ = s.stores.Pending.DeleteByIDs(ctx, idsOf(selected))
	ok(c, gin.H{"message": fmt.Sprintf("Rejected %d file(s)", len(selected))})
}

func idsOf(files []store.PendingFileView) []string {
	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = f.ID
	}
	return ids
}

func dedupSorted(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, i := range items {
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	sort.Strings(out)
	return out
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
