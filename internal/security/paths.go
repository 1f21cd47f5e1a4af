// Package security guards the file paths the assistant reads and writes:
// replay frames referenced by a manifest, exported plots and download names.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// canonical resolves symlinks in p. A path that does not exist yet is
// resolved through its nearest existing ancestor, so a dangling name under
// a symlinked directory still lands where the link points.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	var missing []string
	cur := abs
	for {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			parts := append([]string{resolved}, missing...)
			return filepath.Join(parts...), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		missing = append([]string{filepath.Base(cur)}, missing...)
		cur = parent
	}
}

// WithinDir returns an error unless path resolves inside dir.
func WithinDir(path, dir string) error {
	p, err := canonical(path)
	if err != nil {
		return err
	}
	d, err := canonical(dir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(d, p)
	if err != nil {
		return fmt.Errorf("%s is outside %s: %w", path, dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s escapes %s", path, dir)
	}
	return nil
}

// WithinAnyDir returns nil when path resolves inside one of dirs.
func WithinAnyDir(path string, dirs ...string) error {
	if len(dirs) == 0 {
		return fmt.Errorf("no allowed directories specified")
	}
	for _, d := range dirs {
		if WithinDir(path, d) == nil {
			return nil
		}
	}
	return fmt.Errorf("%s must be within one of %v", path, dirs)
}

// ValidateExportPath accepts paths under the working or temp directory.
func ValidateExportPath(path string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	return WithinAnyDir(path, cwd, os.TempDir())
}

const maxFilename = 128

// SanitizeFilename keeps ASCII letters, digits and ".-_", collapsing every
// other run of characters into one underscore.
func SanitizeFilename(s string) string {
	var b strings.Builder
	under := false
	for _, r := range s {
		if b.Len() >= maxFilename {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
			under = false
		case !under:
			b.WriteByte('_')
			under = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
