package audioproc

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workdir is a job-scoped scratch directory under staging. Every assembly
// attempt starts from a clean directory and removes it when the attempt ends,
// regardless of outcome.
type Workdir struct {
	root string
}

// NewWorkdir creates (or recreates) the scratch directory for a job.
func NewWorkdir(stagingDir string, jobID int64) (*Workdir, error) {
	root := filepath.Join(stagingDir, fmt.Sprintf("assembly-%d", jobID))
	if err := os.RemoveAll(root); err != nil {
		return nil, fmt.Errorf("reset workdir: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}
	return &Workdir{root: root}, nil
}

// Root returns the scratch directory path.
func (w *Workdir) Root() string {
	if w == nil {
		return ""
	}
	return w.root
}

// Path joins a file name onto the scratch directory.
func (w *Workdir) Path(name string) string {
	return filepath.Join(w.root, name)
}

// Cleanup removes the scratch directory and everything in it.
func (w *Workdir) Cleanup() {
	if w == nil || w.root == "" {
		return
	}
	_ = os.RemoveAll(w.root)
}
