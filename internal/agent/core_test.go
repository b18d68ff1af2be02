package agent

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/filewarden/mesh/internal/protocol"
)

// blockedQuarantine returns a Quarantine whose Move always fails: its
// root's "root" subdirectory component is pre-created as a regular
// file, so the MkdirAll inside targetPath's parent creation errors out
// before any rename is attempted.
func blockedQuarantine(t *testing.T) *Quarantine {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "root"), []byte("blocker"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return &Quarantine{Root: root}
}

func pipedAgent(t *testing.T, q *Quarantine, dirs []string) (*Agent, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })

	c := NewClient("127.0.0.1", 0, "test-client", 0, 0)
	c.conn = client
	c.writer = protocol.NewFrameWriter(client)

	a := &Agent{
		cfg:        Config{ScanDirs: dirs},
		client:     c,
		scanner:    NewScanner(dirs),
		detector:   NewDetector(),
		quarantine: q,
	}
	return a, server
}

func TestExecuteScanTaskReportsQuarantineFailure(t *testing.T) {
	scanDir := t.TempDir()
	target := filepath.Join(scanDir, "bad.py")
	pyContent := `
import os
import sys

def main():
    print("hi")

class Widget:
    def __init__(self):
        pass

if __name__ == "__main__":
    main()
`
	if err := os.WriteFile(target, []byte(pyContent), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	a, server := pipedAgent(t, blockedQuarantine(t), []string{scanDir})

	readDone := make(chan protocol.ScanResults, 1)
	go func() {
		var got protocol.ScanResults
		protocol.ReadFrame(server, &got)
		readDone <- got
	}()

	a.executeScanTask(context.Background(), protocol.ScanTask{
		TaskID:          "scan-failtest",
		TargetLanguages: []string{"python"},
	})

	got := <-readDone
	files := got.FileList()
	if len(files) != 1 {
		t.Fatalf("expected 1 reported file despite quarantine failure, got %d", len(files))
	}
	if files[0].Path != target {
		t.Errorf("expected reported path to be the original location %q, got %q", target, files[0].Path)
	}
	if files[0].Decision != "quarantine_failed" {
		t.Errorf("expected decision quarantine_failed, got %q", files[0].Decision)
	}
	if files[0].Reason == "" {
		t.Error("expected a non-empty reason describing the quarantine failure")
	}
}

func TestMatchCustomRuleReportsQuarantineFailure(t *testing.T) {
	srcDir := t.TempDir()
	target := filepath.Join(srcDir, "secret.py")
	if err := os.WriteFile(target, []byte("API_KEY = 'xyz'"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	a := &Agent{quarantine: blockedQuarantine(t)}
	sf, ok := a.matchCustomRule(protocol.CustomRule{Extension: "py"}, target)

	if !ok {
		t.Fatal("expected matchCustomRule to still report the file on quarantine failure")
	}
	if sf.Path != target {
		t.Errorf("expected reported path to be the original location %q, got %q", target, sf.Path)
	}
	if sf.Decision != "quarantine_failed" {
		t.Errorf("expected decision quarantine_failed, got %q", sf.Decision)
	}
	if sf.FileHash == "" {
		t.Error("expected a file hash computed from the original (unmoved) file")
	}
}

func TestMatchCustomRuleNoMatchReturnsFalse(t *testing.T) {
	srcDir := t.TempDir()
	target := filepath.Join(srcDir, "notes.txt")
	if err := os.WriteFile(target, []byte("nothing interesting"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	a := &Agent{}
	_, ok := a.matchCustomRule(protocol.CustomRule{Extension: "py"}, target)
	if ok {
		t.Error("expected no match for a file with a non-matching extension")
	}
}

func TestContainsLang(t *testing.T) {
	if !containsLang([]string{"Python", "java"}, "python") {
		t.Error("expected case-insensitive match")
	}
	if containsLang([]string{"java"}, "python") {
		t.Error("expected no match for an absent language")
	}
}
