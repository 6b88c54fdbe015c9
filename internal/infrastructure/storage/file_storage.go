package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/process-portal/internal/application/port"
)

// LocalExportStore implements port.ExportStore on a local directory
type LocalExportStore struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalExportStore creates a new LocalExportStore rooted at baseDir
func NewLocalExportStore(baseDir string, logger *zap.Logger) *LocalExportStore {
	return &LocalExportStore{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Save streams write into name. The file appears only once write succeeds.
func (s *LocalExportStore) Save(ctx context.Context, name string, write func(w io.Writer) error) (string, error) {
	fullPath := s.GetFullPath(name)
	if err := s.validatePath(fullPath); err != nil {
		return "", err
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.logger.Error("Failed to create export directory", zap.String("path", dir), zap.Error(err))
		return "", fmt.Errorf("failed to create directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fullPath)+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		s.logger.Error("Failed to move export into place", zap.String("path", fullPath), zap.Error(err))
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	s.logger.Info("Export saved", zap.String("path", fullPath))
	return fullPath, nil
}

// Open returns a reader over a saved export
func (s *LocalExportStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	fullPath := s.GetFullPath(name)
	if err := s.validatePath(fullPath); err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, port.ErrExportNotFound
		}
		s.logger.Error("Failed to open export", zap.String("path", fullPath), zap.Error(err))
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// List returns saved exports, newest first
func (s *LocalExportStore) List(ctx context.Context) ([]port.ExportFile, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []port.ExportFile{}, nil
		}
		return nil, fmt.Errorf("failed to read export directory: %w", err)
	}

	files := make([]port.ExportFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, port.ExportFile{
			Name:       e.Name(),
			Size:       info.Size(),
			ModifiedAt: info.ModTime().UTC(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModifiedAt.After(files[j].ModifiedAt)
	})
	return files, nil
}

// Delete removes a saved export. Deleting a missing file is not an error.
func (s *LocalExportStore) Delete(ctx context.Context, name string) error {
	fullPath := s.GetFullPath(name)
	if err := s.validatePath(fullPath); err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		s.logger.Error("Failed to delete export", zap.String("path", fullPath), zap.Error(err))
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// GetFullPath converts a relative name to a path under the base directory
func (s *LocalExportStore) GetFullPath(relativePath string) string {
	return filepath.Join(s.baseDir, relativePath)
}

// validatePath checks that the path stays inside baseDir
func (s *LocalExportStore) validatePath(fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", port.ErrInvalidExportName, fullPath)
	}
	return nil
}
