package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Compile-time check that LocalStorage implements Storage.
var _ Storage = (*LocalStorage)(nil)

// LocalStorage writes objects as files in one directory.
type LocalStorage struct {
	dir string
}

// NewLocalStorage creates the directory if needed. An empty dir defaults to
// <os.TempDir()>/recitation.
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "recitation")
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	return &LocalStorage{dir: dir}, nil
}

// Dir returns the output directory.
func (s *LocalStorage) Dir() string {
	return s.dir
}

// Save writes data to dir/name atomically: it lands in a temp file first and
// is renamed into place, so a reader never sees a partial segment. An
// existing file with the same name is replaced.
func (s *LocalStorage) Save(ctx context.Context, name string, data io.Reader) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	f, err := os.CreateTemp(s.dir, "."+name+"_*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	tmp := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close file: %w", err)
	}

	dst := filepath.Join(s.dir, name)
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename into place: %w", err)
	}

	return dst, nil
}

// Open returns the file saved under name. The caller closes it.
func (s *LocalStorage) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	f, err := os.Open(filepath.Join(s.dir, name)) // #nosec G304 - name is validated to a bare file name
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}
