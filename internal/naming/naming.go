// Package naming derives Resolve project names and per-project output
// folders from discovered clip paths.
package naming

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Allocate returns base if it is not in existing, otherwise the first
// base_N (N = 1, 2, ...) that is not. It is pure: the same arguments always
// yield the same name, and the result is never a member of existing.
func Allocate(base string, existing []string) string {
	taken := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		taken[name] = struct{}{}
	}

	name := base
	for suffix := 1; ; suffix++ {
		if _, ok := taken[name]; !ok {
			return name
		}
		name = fmt.Sprintf("%s_%d", base, suffix)
	}
}

// Stem returns the file name of path without directory and extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ProjectBase builds the desired project name for a clip: its sanitized stem
// followed by suffix.
func ProjectBase(path, suffix string) string {
	stem := SanitizeName(Stem(path), maxProjectNameLen-len(suffix))
	if stem == "" {
		stem = "untitled"
	}
	return stem + suffix
}
