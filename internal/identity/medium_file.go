package identity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileMedium stores the snapshot as a JSON document on local disk.
type FileMedium struct {
	path string
}

// NewFileMedium constructs a FileMedium writing to path.
func NewFileMedium(path string) *FileMedium {
	return &FileMedium{path: path}
}

// Name identifies the medium in logs.
func (m *FileMedium) Name() string { return "file:" + m.path }

// Load reads the document. A missing file yields an empty snapshot.
func (m *FileMedium) Load(ctx context.Context) (Snapshot, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Snapshot{}, nil
		}
		return Snapshot{}, err
	}
	return DecodeSnapshot(data)
}

// Save writes the document atomically: readers see either the previous or the
// new file, never a partial one.
func (m *FileMedium) Save(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("identity: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(m.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("identity: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("identity: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("identity: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("identity: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("identity: chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		return fmt.Errorf("identity: rename: %w", err)
	}
	return nil
}
