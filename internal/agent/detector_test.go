package agent

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestAnalyzeHighConfidencePythonIsDelete(t *testing.T) {
	d := NewDetector()
	path := writeTempFile(t, "script.py", `
import os
import sys

def main():
    print("hello")

class Widget:
    def __init__(self):
        pass

if __name__ == "__main__":
    main()
`)

	result := d.Analyze(path)
	if result.Decision != "delete" {
		t.Errorf("expected decision delete, got %q (confidence %.2f)", result.Decision, result.Confidence)
	}
	if result.Language != "python" {
		t.Errorf("expected language python, got %q", result.Language)
	}
	if result.Confidence <= 0.75 {
		t.Errorf("expected confidence > 0.75, got %.2f", result.Confidence)
	}
}

func TestAnalyzeLowConfidencePlainTextIsKeep(t *testing.T) {
	d := NewDetector()
	path := writeTempFile(t, "notes.txt", "just a grocery list\nmilk\neggs\nbread\n")

	result := d.Analyze(path)
	if result.Decision != "keep" {
		t.Errorf("expected decision keep, got %q (confidence %.2f)", result.Decision, result.Confidence)
	}
	if result.Confidence >= 0.25 {
		t.Errorf("expected confidence < 0.25, got %.2f", result.Confidence)
	}
}

func TestAnalyzeMediumConfidenceIsAmbiguous(t *testing.T) {
	d := NewDetector()
	// A handful of keyword hits without enough pattern matches to push
	// past the high-confidence threshold.
	path := writeTempFile(t, "snippet.py", "class Foo:\n    pass\n")

	result := d.Analyze(path)
	if result.Decision != "ambiguous" {
		t.Errorf("expected decision ambiguous, got %q (confidence %.2f)", result.Decision, result.Confidence)
	}
	if result.Confidence < 0.25 || result.Confidence > 0.75 {
		t.Errorf("expected confidence in [0.25, 0.75], got %.2f", result.Confidence)
	}
}

func TestAnalyzeBinaryFileIsKeep(t *testing.T) {
	d := NewDetector()
	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, []byte{0x00, 0x01, 0x02, 0xff, 0xfe, 0x00, 0x10}, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	result := d.Analyze(path)
	if result.Decision != "keep" || result.Method != "binary-filter" {
		t.Errorf("expected keep/binary-filter, got %q/%q", result.Decision, result.Method)
	}
	if result.Confidence != 1 {
		t.Errorf("expected confidence 1 for a binary sniff hit, got %.2f", result.Confidence)
	}
}

func TestAnalyzeMissingFileIsKeepWithErrorMethod(t *testing.T) {
	d := NewDetector()
	result := d.Analyze(filepath.Join(t.TempDir(), "does-not-exist.py"))
	if result.Decision != "keep" || result.Method != "error" {
		t.Errorf("expected keep/error for a stat failure, got %q/%q", result.Decision, result.Method)
	}
}

func TestAnalyzeExtensionMatchBoostsConfidence(t *testing.T) {
	d := NewDetector()
	content := "function plot(x) = x\nend\nfprintf('hi')\n"
	withExt := writeTempFile(t, "script.m", content)
	withoutExt := writeTempFile(t, "script.txt", content)

	withExtResult := d.Analyze(withExt)
	withoutExtResult := d.Analyze(withoutExt)

	if withExtResult.Confidence <= withoutExtResult.Confidence {
		t.Errorf("expected extension match to raise confidence: with=%.2f without=%.2f",
			withExtResult.Confidence, withoutExtResult.Confidence)
	}
}
