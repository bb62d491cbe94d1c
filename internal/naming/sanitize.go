package naming

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// Resolve rejects very long project names; keep a margin for the _N suffix.
const maxProjectNameLen = 200

// SanitizeName replaces runes that are unsafe in a Resolve project name or a
// directory name with '_' and drops control characters.
func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')', '[', ']', '+', '&', '\'':
		return true
	default:
		return false
	}
}

// OutputFolder returns {outDir}/{project} and creates it. An existing folder
// is not an error. The project name must be a single path element.
func OutputFolder(outDir, project string) (string, error) {
	if strings.TrimSpace(project) == "" {
		return "", fmt.Errorf("project name is required")
	}
	if project == "." || project == ".." || strings.ContainsAny(project, `/\`) {
		return "", fmt.Errorf("project name %q is not a single path element", project)
	}

	dir := filepath.Join(outDir, project)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output folder: %w", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("invalid output folder: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("output folder %s is not a directory", dir)
	}
	return dir, nil
}
