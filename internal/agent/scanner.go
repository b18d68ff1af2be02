// Package agent implements the fleet client: directory scanning,
// pattern-based language detection, quarantine, and the framed TCP
// client that talks to the master. Adapted from the teacher's
// internal/codex transport idiom (dial, reconnect+backoff, heartbeat
// loop) generalized to this domain's scan/detect/quarantine/report
// pipeline.
package agent

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/filewarden/mesh/internal/protocol"
	"github.com/filewarden/mesh/pkg/logger"
)

// Scanner walks a fixed set of directories and returns every readable
// file path found, optionally bounded by a modification-time window.
type Scanner struct {
	Directories []string
}

// NewScanner creates a Scanner over dirs.
func NewScanner(dirs []string) *Scanner {
	return &Scanner{Directories: dirs}
}

// Scan walks every configured directory and returns all file paths that
// pass the read check and optional date filter. ctx cancellation stops
// the walk early at the next directory entry.
func (s *Scanner) Scan(ctx context.Context, filter *protocol.DateFilter) ([]string, error) {
	var start, end time.Time
	var hasStart, hasEnd bool
	if filter != nil {
		if filter.Start != "" {
			if t, err := time.Parse(time.RFC3339, filter.Start); err == nil {
				start, hasStart = t, true
			}
		}
		if filter.End != "" {
			if t, err := time.Parse(time.RFC3339, filter.End); err == nil {
				end, hasEnd = t, true
			}
		}
	}

	var files []string
	for _, dir := range s.Directories {
		if _, err := os.Stat(dir); err != nil {
			logger.Warn("scanner: directory does not exist", logger.FieldPath, dir)
			continue
		}

		logger.Infow("scanner: scanning directory", logger.FieldPath, dir)
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err != nil || d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			if !isReadable(path) {
				return nil
			}
			if hasStart && info.ModTime().Before(start) {
				return nil
			}
			if hasEnd && info.ModTime().After(end) {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil && err != context.Canceled {
			logger.Errorw("scanner: walk error", logger.FieldPath, dir, logger.FieldError, err)
		}
	}

	logger.Infow("scanner: found files to analyze", logger.FieldCount, len(files))
	return files, nil
}

func isReadable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
