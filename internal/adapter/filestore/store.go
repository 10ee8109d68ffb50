// Package filestore saves rendered reports to a local directory.
package filestore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/catastro-tasador/internal/domain"
)

// Store writes files under a fixed directory, replacing existing files of the
// same name.
type Store struct {
	dir    string
	logger *slog.Logger
}

// New creates a store rooted at dir. The directory is created on first save.
func New(dir string, logger *slog.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

// Dir returns the output directory.
func (s *Store) Dir() string { return s.dir }

// Save writes data to <dir>/<name> through a temporary file so readers never
// see a partial report.
func (s *Store) Save(ctx context.Context, name string, data []byte) (domain.FileHandle, error) {
	if err := ctx.Err(); err != nil {
		return domain.FileHandle{}, err
	}
	if name == "" || filepath.Base(name) != name {
		return domain.FileHandle{}, fmt.Errorf("invalid file name %q", name)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return domain.FileHandle{}, fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return domain.FileHandle{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error takes precedence
		return domain.FileHandle{}, fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return domain.FileHandle{}, fmt.Errorf("close %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return domain.FileHandle{}, fmt.Errorf("rename %s: %w", name, err)
	}

	s.logger.Debug("report saved", "path", path, "bytes", len(data))
	return domain.FileHandle{Name: name, Path: path, Size: int64(len(data))}, nil
}
