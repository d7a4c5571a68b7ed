package watermark

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/erp/mikrosync/internal/domain/relay"
	"go.uber.org/zap"
)

// FileStore keeps the watermark in a local text file
type FileStore struct {
	path   string
	label  string
	logger *zap.Logger
}

// NewFileStore creates a file backed store. The directory is created on first write.
func NewFileStore(path, label string, logger *zap.Logger) *FileStore {
	if label == "" {
		label = DefaultLabel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, label: label, logger: logger}
}

// Read returns the stored code, or "" when the file does not exist yet
func (s *FileStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", relay.ErrStorageUnavailable, err)
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("Watermark file not found, treating as first run", zap.String("path", s.path))
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", relay.ErrStorageUnavailable, s.path, err)
	}
	return decode(string(data)), nil
}

// Write replaces the file through a synced temp file and a rename
func (s *FileStore) Write(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", relay.ErrStorageUnavailable, err)
	}
	if err := s.write(code); err != nil {
		return fmt.Errorf("%w: write %s: %v", relay.ErrStorageUnavailable, s.path, err)
	}
	s.logger.Debug("Watermark written", zap.String("path", s.path), zap.String("order_code", code))
	return nil
}

func (s *FileStore) write(code string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.WriteString(encode(s.label, code)); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return err
	}
	committed = true
	return nil
}

// Close is a no-op
func (s *FileStore) Close() error {
	return nil
}
