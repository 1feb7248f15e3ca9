package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WorkspaceFile is one submission materialized on disk.
type WorkspaceFile struct {
	// ID is the random token the file is named after.
	ID string
	// Path is where the server wrote the source. It is the path that gets deleted.
	Path string
	// MountSource is the same file as seen by the container runtime.
	MountSource string

	once sync.Once
}

// Workspace allocates, writes and removes workspace files.
type Workspace struct {
	logger  *zap.Logger
	dir     string
	hostDir string
	ext     string
	fs      FileSystem
}

// WorkspaceOption defines a functional option for Workspace
type WorkspaceOption func(*Workspace)

// WithWorkspaceFileSystem sets the FileSystem for Workspace
func WithWorkspaceFileSystem(fs FileSystem) WorkspaceOption {
	return func(w *Workspace) {
		w.fs = fs
	}
}

// NewWorkspace creates a Workspace rooted at config.Workdir.
func NewWorkspace(logger *zap.Logger, config *Config, opts ...WorkspaceOption) *Workspace {
	w := &Workspace{
		logger:  logger,
		dir:     config.Workdir,
		hostDir: config.HostWorkdir,
		ext:     config.FileExtension,
		fs:      &RealFileSystem{},
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Dir returns the directory workspace files are written to.
func (w *Workspace) Dir() string {
	return w.dir
}

// Prepare writes the submission to a freshly named file. The content is not
// inspected.
func (w *Workspace) Prepare(sub Submission) (*WorkspaceFile, error) {
	if err := w.fs.MkdirAll(w.dir, DirPermission); err != nil {
		return nil, &WriteError{Path: w.dir, Err: err}
	}

	id := uuid.NewString()
	name := FilePrefix + id + w.ext
	path := filepath.Join(w.dir, name)

	if err := w.fs.WriteFile(path, []byte(sub.Code), FilePermission); err != nil {
		// An interrupted write may have left a partial file behind.
		if rmErr := w.fs.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			w.logger.Warn("failed to remove partial workspace file", zap.String("path", path), zap.Error(rmErr))
		}
		return nil, &WriteError{Path: path, Err: err}
	}

	mountSource := path
	if w.hostDir != "" {
		mountSource = filepath.Join(w.hostDir, name)
	}

	w.logger.Debug("workspace file written",
		zap.String("path", path),
		zap.String("mount_source", mountSource),
		zap.Int("bytes", len(sub.Code)))

	return &WorkspaceFile{ID: id, Path: path, MountSource: mountSource}, nil
}

// Dispose deletes the file if it still exists. Only the first call on a
// handle touches the filesystem; a file that is already gone is not an error.
func (w *Workspace) Dispose(f *WorkspaceFile) error {
	if f == nil {
		return nil
	}

	var err error
	f.once.Do(func() {
		rmErr := w.fs.Remove(f.Path)
		switch {
		case rmErr == nil:
			w.logger.Debug("workspace file deleted", zap.String("path", f.Path))
		case errors.Is(rmErr, fs.ErrNotExist):
			w.logger.Debug("workspace file already removed", zap.String("path", f.Path))
		default:
			w.logger.Error("failed to delete workspace file", zap.String("path", f.Path), zap.Error(rmErr))
			err = fmt.Errorf("failed to delete workspace file %s: %w", f.Path, rmErr)
		}
	})

	return err
}

// Sweep removes workspace files left behind by a previous process and
// returns how many were deleted. A missing directory is not an error.
func (w *Workspace) Sweep() (int, error) {
	entries, err := w.fs.ReadDir(w.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list workspace directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, FilePrefix) || !strings.HasSuffix(name, w.ext) {
			continue
		}
		path := filepath.Join(w.dir, name)
		if rmErr := w.fs.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			w.logger.Warn("failed to remove stale workspace file", zap.String("path", path), zap.Error(rmErr))
			continue
		}
		removed++
	}

	if removed > 0 {
		w.logger.Info("removed stale workspace files", zap.Int("count", removed), zap.String("dir", w.dir))
	}

	return removed, nil
}
