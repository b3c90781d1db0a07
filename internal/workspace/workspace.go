package workspace

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/pagesmith/internal/logfields"
)

const (
	// dirPrefix names ephemeral run directories so stale ones can be
	// recognized and swept later.
	dirPrefix = "pagesmith-"

	// DefaultSubdirName is the working directory name used by persistent
	// managers when no explicit name is given.
	DefaultSubdirName = "working"

	// checkoutDirName is the subdirectory the repository is cloned into.
	checkoutDirName = "src"
)

// Manager handles the on-disk working directory for a pipeline run.
type Manager struct {
	baseDir    string
	workDir    string
	persistent bool
}

// NewManager returns a manager for a fresh ephemeral workspace under baseDir.
// If baseDir is empty, the system temp directory is used. The workspace is
// removed again by Cleanup.
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	// The stamp keeps directories sortable for SweepStale; the random
	// suffix keeps concurrent workers from colliding within one second.
	name := fmt.Sprintf("%s%s-%08x", dirPrefix, time.Now().Format("20060102-150405"), rand.Uint32())
	return &Manager{
		baseDir: baseDir,
		workDir: filepath.Join(baseDir, name),
	}
}

// NewPersistentManager returns a manager for a fixed workspace directory that
// survives across runs, so the daemon can pull instead of re-cloning.
// subdirName defaults to DefaultSubdirName when empty.
func NewPersistentManager(baseDir, subdirName string) *Manager {
	if subdirName == "" {
		subdirName = DefaultSubdirName
	}
	return &Manager{
		baseDir:    baseDir,
		workDir:    filepath.Join(baseDir, subdirName),
		persistent: true,
	}
}

// Create makes the workspace directory.
func (m *Manager) Create() error {
	if err := os.MkdirAll(m.workDir, 0o750); err != nil {
		return fmt.Errorf("creating workspace directory %s: %w", m.workDir, err)
	}
	slog.Debug("Workspace ready", logfields.Path(m.workDir))
	return nil
}

// GetPath returns the workspace directory path.
func (m *Manager) GetPath() string {
	return m.workDir
}

// CheckoutDir returns the path the repository is checked out into.
func (m *Manager) CheckoutDir() string {
	return filepath.Join(m.workDir, checkoutDirName)
}

// IsPersistent reports whether the workspace survives Cleanup.
func (m *Manager) IsPersistent() bool {
	return m.persistent
}

// CreateSubdir creates a named directory inside the workspace and returns its
// path.
func (m *Manager) CreateSubdir(name string) (string, error) {
	p := filepath.Join(m.workDir, name)
	if err := os.MkdirAll(p, 0o750); err != nil {
		return "", fmt.Errorf("creating workspace subdirectory %s: %w", p, err)
	}
	return p, nil
}

// Cleanup removes the workspace directory. Persistent workspaces are left in
// place so a later run can reuse the checkout.
func (m *Manager) Cleanup() error {
	if m.persistent {
		slog.Debug("Keeping persistent workspace", logfields.Path(m.workDir))
		return nil
	}
	if err := os.RemoveAll(m.workDir); err != nil {
		return fmt.Errorf("removing workspace directory %s: %w", m.workDir, err)
	}
	return nil
}

// SweepStale removes ephemeral workspaces under baseDir older than maxAge.
// Runs that died before Cleanup leave such directories behind; the daemon
// sweeps them periodically. Returns the number of directories removed.
func SweepStale(baseDir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading workspace base directory %s: %w", baseDir, err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), dirPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		p := filepath.Join(baseDir, e.Name())
		if err := os.RemoveAll(p); err != nil {
			slog.Warn("Failed to remove stale workspace", logfields.Path(p), logfields.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}
