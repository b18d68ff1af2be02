package agent

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/filewarden/mesh/internal/protocol"
	"github.com/filewarden/mesh/pkg/logger"
	"github.com/filewarden/mesh/pkg/util"
)

// Config carries everything one Agent run needs, a narrow view of
// config.Config so this package does not import internal/config.
type Config struct {
	MasterIP          string
	MasterPort        int
	ClientID          string
	ScanDirs          []string
	QuarantineDir     string
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	SocketReadTimeout time.Duration
}

// Agent is the client-side orchestrator: it owns the connection, the
// scanner/detector/quarantine pipeline, and the scan/delete/report
// state machine driven by messages from the master. The Go port of
// client-agent/agent.py's ClientAgent.
type Agent struct {
	cfg        Config
	client     *Client
	scanner    *Scanner
	detector   *Detector
	quarantine *Quarantine

	running bool
}

// New creates an Agent from cfg. QuarantineDir is created if absent.
func New(cfg Config) (*Agent, error) {
	q, err := NewQuarantine(cfg.QuarantineDir)
	if err != nil {
		return nil, err
	}
	return &Agent{
		cfg:        cfg,
		client:     NewClient(cfg.MasterIP, cfg.MasterPort, cfg.ClientID, cfg.ReconnectDelay, cfg.SocketReadTimeout),
		scanner:    NewScanner(cfg.ScanDirs),
		detector:   NewDetector(),
		quarantine: q,
	}, nil
}

// Run connects to the master and processes messages until ctx is
// cancelled. Mirrors ClientAgent.start: connect-with-retry, a
// background heartbeat loop, then the blocking main receive loop.
func (a *Agent) Run(ctx context.Context) error {
	a.running = true
	logger.Infow("agent: starting", "client_id", a.cfg.ClientID)

	if err := a.client.DialUntilConnected(ctx); err != nil {
		return err
	}

	util.SafeGo(func() { a.heartbeatLoop(ctx) })

	return a.mainLoop(ctx)
}

func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for a.running {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.client.Connected() {
				if err := a.client.SendHeartbeat(); err != nil {
					logger.Errorw("agent: heartbeat failed", logger.FieldError, err)
				}
			}
		}
	}
}

func (a *Agent) mainLoop(ctx context.Context) error {
	for a.running {
		select {
		case <-ctx.Done():
			a.client.Disconnect()
			return ctx.Err()
		default:
		}

		env, raw, err := a.client.ReceiveMessage()
		if err != nil {
			logger.Warnw("agent: disconnected from master, reconnecting", logger.FieldError, err)
			a.client.Disconnect()
			if dialErr := a.client.DialUntilConnected(ctx); dialErr != nil {
				return dialErr
			}
			continue
		}
		if env == nil {
			continue // read timeout, poll again
		}

		a.handleMessage(ctx, env.Type, raw)
	}
	return nil
}

func (a *Agent) handleMessage(ctx context.Context, msgType string, raw []byte) {
	switch msgType {
	case protocol.TypeScanTask:
		var task protocol.ScanTask
		if err := json.Unmarshal(raw, &task); err != nil {
			logger.Errorw("agent: decode scan_task failed", logger.FieldError, err)
			return
		}
		a.executeScanTask(ctx, task)

	case protocol.TypeDeleteApproved:
		var cmd protocol.DeleteApproved
		if err := json.Unmarshal(raw, &cmd); err != nil {
			logger.Errorw("agent: decode delete_approved failed", logger.FieldError, err)
			return
		}
		a.executeDeletion(cmd)

	case protocol.TypeRestoreFile:
		var msg protocol.RestoreFile
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Errorw("agent: decode restore_file failed", logger.FieldError, err)
			return
		}
		// Reserved no-op: decode and log only, per spec.
		logger.Infow("agent: restore_file received (no-op)", "original_path", msg.OriginalPath)

	default:
		logger.Warnw("agent: unknown message type", "type", msgType)
	}
}

func (a *Agent) executeScanTask(ctx context.Context, task protocol.ScanTask) {
	logger.Infow("agent: received scan task", logger.FieldTaskID, task.TaskID)

	paths, err := a.scanner.Scan(ctx, task.DateFilter)
	if err != nil {
		logger.Errorw("agent: scan failed", logger.FieldError, err)
		return
	}

	var results []protocol.ScannedFile
	for _, path := range paths {
		if task.Custom != nil {
			if sf, ok := a.matchCustomRule(*task.Custom, path); ok {
				results = append(results, sf)
			}
			continue
		}

		analysis := a.detector.Analyze(path)
		isTarget := containsLang(task.TargetLanguages, analysis.Language)
		shouldQuarantine := (analysis.Decision == "delete" && isTarget) ||
			(analysis.Decision == "ambiguous" && isTarget && analysis.Confidence >= 0.70)
		if !shouldQuarantine {
			continue
		}

		qPath, err := a.quarantine.Move(path)
		if err != nil {
			logger.Errorw("agent: quarantine failed", logger.FieldPath, path, logger.FieldError, err)
			// Still report the entry at its original path so the master
			// has visibility into it rather than losing it silently.
			results = append(results, protocol.ScannedFile{
				Path: path, Filename: filepath.Base(path), Size: analysis.Size,
				ModifiedTime: analysis.ModifiedTime, Decision: "quarantine_failed",
				Confidence: analysis.Confidence, Language: analysis.Language,
				Method: analysis.Method, Reason: "quarantine move failed: " + err.Error(),
				FileHash: analysis.FileHash,
			})
			continue
		}
		results = append(results, protocol.ScannedFile{
			Path: qPath, Filename: filepath.Base(qPath), Size: analysis.Size,
			ModifiedTime: analysis.ModifiedTime, Decision: analysis.Decision,
			Confidence: analysis.Confidence, Language: analysis.Language,
			Method: analysis.Method, Reason: analysis.Reason, FileHash: analysis.FileHash,
		})
	}

	if len(results) == 0 {
		logger.Info("agent: no files matched scan criteria")
		return
	}
	if err := a.client.SendScanResults(task.TaskID, results); err != nil {
		logger.Errorw("agent: send scan results failed", logger.FieldError, err)
	}
}

// matchCustomRule applies a free-form scan task's matcher (extension,
// filename substring, content keywords, regex pattern) and, on a match,
// quarantines the file directly and builds its ScannedFile entry —
// client-agent/agent.py's custom branch of _execute_scan_task.
func (a *Agent) matchCustomRule(rule protocol.CustomRule, path string) (protocol.ScannedFile, bool) {
	name := strings.ToLower(filepath.Base(path))
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	matched := false

	if extFilter := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(rule.Extension), ".")); extFilter != "" && ext == extFilter {
		matched = true
	}
	if nameFilter := strings.ToLower(strings.TrimSpace(rule.Name)); nameFilter != "" && strings.Contains(name, nameFilter) {
		matched = true
	}
	if kw := strings.TrimSpace(rule.Keywords); kw != "" {
		content, _ := readHead(path, maxContentBytes)
		content = strings.ToLower(content)
		for _, k := range strings.Split(kw, ",") {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" && strings.Contains(content, k) {
				matched = true
				break
			}
		}
	}
	if pattern := strings.TrimSpace(rule.Pattern); pattern != "" && !matched {
		if re, err := regexp.Compile(pattern); err == nil {
			content, _ := readHead(path, maxContentBytes)
			if re.MatchString(content) {
				matched = true
			}
		}
	}
	if !matched {
		return protocol.ScannedFile{}, false
	}

	qPath, err := a.quarantine.Move(path)
	if err != nil {
		logger.Errorw("agent: custom-rule quarantine failed", logger.FieldPath, path, logger.FieldError, err)
		// The move failed, so the file is still at its original path —
		// report it from there instead of dropping it from the batch.
		info, _ := os.Stat(path)
		var size int64
		var modified string
		if info != nil {
			size = info.Size()
			modified = info.ModTime().Format("2006-01-02T15:04:05")
		}
		hash, _ := hashFile(path)
		return protocol.ScannedFile{
			Path: path, Filename: filepath.Base(path), Size: size, ModifiedTime: modified,
			Decision: "quarantine_failed", Confidence: 0.90, Language: "custom", Method: "custom-filter",
			Reason: "quarantine move failed: " + err.Error(), FileHash: hash,
		}, true
	}
	info, _ := os.Stat(qPath)
	var size int64
	var modified string
	if info != nil {
		size = info.Size()
		modified = info.ModTime().Format("2006-01-02T15:04:05")
	}
	hash, _ := hashFile(qPath)
	return protocol.ScannedFile{
		Path: qPath, Filename: filepath.Base(qPath), Size: size, ModifiedTime: modified,
		Decision: "delete", Confidence: 0.90, Language: "custom", Method: "custom-filter",
		Reason: "matched custom scan criteria", FileHash: hash,
	}, true
}

func (a *Agent) executeDeletion(cmd protocol.DeleteApproved) {
	entries := cmd.ApprovedEntries
	if len(entries) == 0 {
		for _, h := range cmd.ApprovedHashes {
			entries = append(entries, protocol.ApprovedEntry{FileHash: h})
		}
	}
	logger.Infow("agent: deleting approved files", logger.FieldTaskID, cmd.TaskID, logger.FieldCount, len(entries))

	reports := make([]protocol.DeletionOutcome, 0, len(entries))
	for _, entry := range entries {
		reports = append(reports, a.deleteOne(entry))
	}

	deleted := 0
	for _, r := range reports {
		if r.Status == "deleted" {
			deleted++
		}
	}
	logger.Infow("agent: deletion batch complete", logger.FieldTaskID, cmd.TaskID, "deleted", deleted, logger.FieldCount, len(reports))

	if err := a.client.SendDeletionReport(cmd.TaskID, reports); err != nil {
		logger.Errorw("agent: send deletion report failed", logger.FieldError, err)
	}
}

// deleteOne resolves one approved entry to a quarantined file by hash
// first, falling back to its hinted path, matching
// ClientAgent._execute_deletion's hash-then-path fallback.
func (a *Agent) deleteOne(entry protocol.ApprovedEntry) protocol.DeletionOutcome {
	var deletedPath, details string
	deleted := false

	if entry.FileHash != "" {
		if found, ok := a.findByHash(entry.FileHash); ok {
			if err := a.quarantine.Delete(found); err != nil {
				details = "hash found but delete failed"
			} else {
				deleted = true
				deletedPath = found
				details = "deleted by hash"
			}
		}
	}

	if !deleted && details == "" && entry.Path != "" {
		if _, err := os.Stat(entry.Path); err == nil {
			if err := a.quarantine.Delete(entry.Path); err != nil {
				details = "path found but delete failed"
			} else {
				deleted = true
				deletedPath = entry.Path
				details = "deleted by path fallback"
			}
		}
	}

	if !deleted && details == "" {
		details = "file not found in quarantine"
	}

	status := "failed"
	if deleted {
		status = "deleted"
	}
	path := deletedPath
	if path == "" {
		path = entry.Path
	}
	return protocol.DeletionOutcome{FileHash: entry.FileHash, Path: path, Status: status, Details: details}
}

func (a *Agent) findByHash(hash string) (string, bool) {
	var found string
	filepath.WalkDir(a.quarantine.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || found != "" {
			return nil
		}
		if h, herr := hashFile(path); herr == nil && h == hash {
			found = path
		}
		return nil
	})
	return found, found != ""
}

func containsLang(langs []string, lang string) bool {
	for _, l := range langs {
		if strings.EqualFold(l, lang) {
			return true
		}
	}
	return false
}
