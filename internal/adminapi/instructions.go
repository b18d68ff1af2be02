package adminapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/filewarden/mesh/internal/masterconn"
	"github.com/filewarden/mesh/internal/protocol"
)

// SupportedLanguages is the closed set of languages a scan instruction may
// target, mirroring backend/api/instructions.py's SUPPORTED_LANGUAGES.
var SupportedLanguages = map[string]bool{
	"python": true,
	"matlab": true,
	"c":      true,
	"cpp":    true,
	"java":   true,
}

// languageHints is the keyword -> language mapping
// _infer_languages_from_instruction uses to guess target languages from a
// free-form admin instruction when the caller didn't name any explicitly.
var languageHints = map[string][]string{
	"python": {"python", ".py"},
	"matlab": {"matlab", ".m"},
	"java":   {"java", ".java"},
	"cpp":    {"c++", "cpp", ".cpp", ".cc"},
	"c":      {" c ", " c-language ", ".c "},
}

// InferLanguages guesses a scan's target languages from free-form text,
// conservatively defaulting to python when nothing hints otherwise.
func InferLanguages(instruction string) []string {
	text := strings.ToLower(instruction)
	padded := " " + text + " "

	inferred := make(map[string]bool)
	for lang, hints := range languageHints {
		for _, hint := range hints {
			if strings.Contains(padded, hint) || strings.Contains(text, hint) {
				inferred[lang] = true
				break
			}
		}
	}

	if len(inferred) == 0 {
		return []string{"python"}
	}
	out := make([]string, 0, len(inferred))
	for lang := range inferred {
		out = append(out, lang)
	}
	return out
}

// validateLanguages lowercases/trims targetLanguages and rejects anything
// outside SupportedLanguages, matching create_scan_instruction's check.
func validateLanguages(targetLanguages []string) ([]string, []string) {
	cleaned := make([]string, 0, len(targetLanguages))
	var invalid []string
	for _, l := range targetLanguages {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" {
			continue
		}
		if !SupportedLanguages[l] {
			invalid = append(invalid, l)
			continue
		}
		cleaned = append(cleaned, l)
	}
	return cleaned, invalid
}

// createScanInstruction builds a target-language scan task, the Go port of
// create_scan_instruction.
func createScanInstruction(targetLanguages []string, dateFilter *protocol.DateFilter) (protocol.ScanTask, error) {
	if len(targetLanguages) == 0 {
		return protocol.ScanTask{}, fmt.Errorf("at least one target language must be specified")
	}
	return protocol.ScanTask{
		Type:            protocol.TypeScanTask,
		TaskID:          masterconn.NewTaskID(),
		TargetLanguages: targetLanguages,
		DateFilter:      dateFilter,
		CreatedAt:       time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// customScanInstruction builds a custom-rule scan task from the admin's
// extension/name/keywords/pattern filter fields ("Other" option in the UI).
func customScanInstruction(rule protocol.CustomRule) protocol.ScanTask {
	return protocol.ScanTask{
		Type:      protocol.TypeScanTask,
		TaskID:    masterconn.NewTaskID(),
		Custom:    &rule,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}
