// Package security guards the file paths the monitor writes exports to.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideDir is returned when a path resolves outside its export directory.
var ErrOutsideDir = errors.New("security: path escapes export directory")

// maxName bounds sanitized file names.
const maxName = 96

// SanitizeFilename keeps ASCII letters, digits, '.', '_' and '-', folding
// any other run of characters into a single underscore. Leading and
// trailing dots and underscores are trimmed; an empty result becomes
// "cloud".
func SanitizeFilename(s string) string {
	var b strings.Builder
	under := false
	for _, r := range s {
		if b.Len() >= maxName {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
			under = false
		case !under:
			b.WriteByte('_')
			under = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "cloud"
	}
	return out
}

// ExportPath returns dir/<sanitized name><ext> after checking the result,
// with symlinks resolved, stays inside dir. dir must exist.
func ExportPath(dir, name, ext string) (string, error) {
	base := SanitizeFilename(strings.TrimSuffix(name, ext))
	p := filepath.Join(dir, base+ext)
	if err := WithinDir(p, dir); err != nil {
		return "", err
	}
	return p, nil
}

// WithinDir reports an error unless path, after cleaning and symlink
// resolution, lies inside dir. The path itself need not exist yet; its
// nearest existing ancestor is resolved instead.
func WithinDir(path, dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("security: resolve %s: %w", dir, err)
	}
	realDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return fmt.Errorf("security: resolve %s: %w", dir, err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("security: resolve %s: %w", path, err)
	}
	realPath, err := resolveExisting(absPath)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(realDir, realPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s", ErrOutsideDir, path)
	}
	return nil
}

// resolveExisting resolves symlinks in the longest existing prefix of p and
// re-joins the missing tail.
func resolveExisting(p string) (string, error) {
	tail := ""
	for cur := p; ; {
		if real, err := filepath.EvalSymlinks(cur); err == nil {
			return filepath.Join(real, tail), nil
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("security: resolve %s: %w", cur, err)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		tail = filepath.Join(filepath.Base(cur), tail)
		cur = parent
	}
}
