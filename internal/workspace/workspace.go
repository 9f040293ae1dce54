package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"mediafetch/internal/jobpath"
	"mediafetch/internal/logging"
	"mediafetch/internal/services"
)

// Workspace manages the on-disk layout under the download base directory.
type Workspace struct {
	fs      afero.Fs
	baseDir string
	logger  *slog.Logger
}

// New returns a Workspace rooted at baseDir on the OS filesystem.
func New(baseDir string, logger *slog.Logger) *Workspace {
	return NewWithFS(afero.NewOsFs(), baseDir, logger)
}

// NewWithFS returns a Workspace over fs, used by tests with afero.NewMemMapFs.
func NewWithFS(fsys afero.Fs, baseDir string, logger *slog.Logger) *Workspace {
	if strings.TrimSpace(baseDir) == "" {
		baseDir = jobpath.DefaultBaseDir
	}
	return &Workspace{
		fs:      fsys,
		baseDir: filepath.Clean(baseDir),
		logger:  logging.NewComponentLogger(logger, "workspace"),
	}
}

// BaseDir returns the download root.
func (w *Workspace) BaseDir() string {
	return w.baseDir
}

// Prepare creates the directory for one job category and returns its path.
func (w *Workspace) Prepare(sessionID, jobID string, category jobpath.Category) (string, error) {
	if err := validSegment(sessionID); err != nil {
		return "", err
	}
	if err := validSegment(jobID); err != nil {
		return "", err
	}
	dir := jobpath.DerivePath(w.baseDir, sessionID, jobID, category)
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create job directory %s: %w", dir, err)
	}
	return dir, nil
}

// Size sums regular file sizes under path. A missing path has size zero.
func (w *Workspace) Size(path string) (int64, error) {
	var total int64
	err := afero.Walk(w.fs, path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("size %s: %w", path, err)
	}
	return total, nil
}

// Usage returns the total size of every session directory.
func (w *Workspace) Usage() (int64, error) {
	return w.Size(w.baseDir)
}

// RemoveSession deletes a session's directory tree.
func (w *Workspace) RemoveSession(sessionID string) error {
	if err := validSegment(sessionID); err != nil {
		return err
	}
	dir := filepath.Join(w.baseDir, sessionID)
	if err := w.fs.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove session directory %s: %w", dir, err)
	}
	return nil
}

// RemoveSessions deletes the directories of every id, logging failures. It
// matches session.ExpireHook.
func (w *Workspace) RemoveSessions(ids []string) {
	for _, id := range ids {
		if err := w.RemoveSession(id); err != nil {
			logging.WarnWithContext(w.logger, "session directory not removed", "workspace_cleanup_failed",
				logging.String(logging.FieldSessionID, id),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check download_dir permissions"),
				logging.String(logging.FieldImpact, "expired downloads remain on disk"),
			)
			continue
		}
		w.logger.Debug("session directory removed", logging.String(logging.FieldSessionID, id))
	}
}

func validSegment(segment string) error {
	if segment == "" || segment == "." || segment == ".." || strings.ContainsAny(segment, `/\`) {
		return services.Wrap(services.ErrValidation, "workspace", "path", fmt.Sprintf("invalid path segment %q", segment), nil)
	}
	return nil
}
