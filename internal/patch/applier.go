// Package patch writes candidate file replacements to disk.
// The system always replaces whole-file content, never partial edits; before
// each write the previous content is preserved under a backup directory keyed
// by attempt index, so a human can diff what changed across attempts.
package patch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"mend/internal/logging"
)

// ErrWrite marks a failed file write. The controller treats it as fatal:
// an unwritable target is an environment problem, not a code problem.
var ErrWrite = errors.New("patch write failed")

// Applier overwrites project files with candidate replacements.
type Applier struct {
	projectRoot string
	backupDir   string
}

// NewApplier creates an applier for a project. backupDir may be relative to
// the project root.
func NewApplier(projectRoot, backupDir string) *Applier {
	if !filepath.IsAbs(backupDir) {
		backupDir = filepath.Join(projectRoot, backupDir)
	}
	return &Applier{projectRoot: projectRoot, backupDir: backupDir}
}

// Apply replaces path with content in full. The previous content, if any, is
// first copied to <backupDir>/attempt-<N>/<relative path>.
func (a *Applier) Apply(path, content string, attempt int) error {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(a.projectRoot, path)
	}

	if err := a.backup(abs, attempt); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	logging.Patch("wrote %d bytes to %s (attempt %d)", len(content), abs, attempt)
	return nil
}

// BackupPath returns where the pre-apply content of path is kept for the
// given attempt.
func (a *Applier) BackupPath(path string, attempt int) string {
	rel := a.relativeKey(path)
	return filepath.Join(a.backupDir, fmt.Sprintf("attempt-%d", attempt), rel)
}

func (a *Applier) backup(abs string, attempt int) error {
	previous, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			// A brand-new file (e.g. a fresh implementation unit) has
			// nothing to preserve.
			return nil
		}
		return fmt.Errorf("%w: reading previous content: %v", ErrWrite, err)
	}

	dst := a.BackupPath(abs, attempt)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := os.WriteFile(dst, previous, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	logging.Patch("backed up %s -> %s", abs, dst)
	return nil
}

// relativeKey maps a target path onto a backup-relative key, keeping the
// project layout readable in the backup tree.
func (a *Applier) relativeKey(path string) string {
	if rel, err := filepath.Rel(a.projectRoot, path); err == nil && !filepath.IsAbs(rel) && rel != ".." && !hasDotDotPrefix(rel) {
		return rel
	}
	return filepath.Base(path)
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
