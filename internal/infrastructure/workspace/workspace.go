// Package workspace owns the intermediate files of one backup. Every artifact
// lives in a private scratch directory with a random name, and Close removes
// whatever is left.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

type Workspace struct {
	dir string
}

// Open creates a 0700 scratch directory under baseDir (os.TempDir when empty).
func Open(baseDir string) (*Workspace, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	dir, err := os.MkdirTemp(baseDir, "pgsentry-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to restrict scratch directory: %w", err)
	}

	return &Workspace{dir: dir}, nil
}

func (w *Workspace) Dir() string {
	return w.dir
}

// Allocate reserves an unpredictable path for a stage's output. The file is
// not created; the stage writing it does that.
func (w *Workspace) Allocate(stage string) *Artifact {
	return &Artifact{
		Path: filepath.Join(w.dir, stage+"-"+uuid.NewString()),
	}
}

// Close removes the scratch directory and any artifact still in it.
func (w *Workspace) Close() error {
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("failed to remove scratch directory: %w", err)
	}
	return nil
}

type Artifact struct {
	Path string
}

// Release deletes the artifact. Releasing a missing file is not an error.
func (a *Artifact) Release() error {
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to release artifact: %w", err)
	}
	return nil
}

// Size reports the artifact size in bytes.
func (a *Artifact) Size() (int64, error) {
	info, err := os.Stat(a.Path)
	if err != nil {
		return 0, fmt.Errorf("stat artifact: %w", err)
	}
	return info.Size(), nil
}
