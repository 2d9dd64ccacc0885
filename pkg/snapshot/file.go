package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultFileName is the snapshot file inside a session folder.
	DefaultFileName = "analysis.json"
	// BackupSuffix is appended to the snapshot file name for the previous version.
	BackupSuffix = ".bak"
	lockFileName = ".lock"
)

// FileBackend stores snapshots inside session folders. The handle is the
// folder path.
type FileBackend struct {
	FileName string
}

// NewFileBackend returns a backend using DefaultFileName.
func NewFileBackend() *FileBackend {
	return &FileBackend{FileName: DefaultFileName}
}

func (b *FileBackend) name() string {
	if b.FileName == "" {
		return DefaultFileName
	}
	return b.FileName
}

// Path returns the file backing a slot.
func (b *FileBackend) Path(handle string, slot Slot) string {
	p := filepath.Join(handle, b.name())
	if slot == Previous {
		p += BackupSuffix
	}
	return p
}

func (b *FileBackend) Read(handle string, slot Slot) ([]byte, error) {
	data, err := os.ReadFile(b.Path(handle, slot))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s %s: %w", handle, slot, ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s snapshot: %w", slot, err)
	}
	return data, nil
}

// WriteAtomic writes to a temp file in the same directory, syncs it and
// renames it over the slot, so readers see either the old or the new file.
func (b *FileBackend) WriteAtomic(handle string, slot Slot, data []byte) error {
	path := b.Path(handle, slot)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create session folder: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	closed := false
	cleanup := func() {
		if !closed {
			_ = tmp.Close()
			closed = true
		}
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	closed = true

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func (b *FileBackend) Remove(handle string, slot Slot) error {
	err := os.Remove(b.Path(handle, slot))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s snapshot: %w", slot, err)
	}
	return nil
}

func (b *FileBackend) Exists(handle string, slot Slot) (bool, error) {
	_, err := os.Stat(b.Path(handle, slot))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s snapshot: %w", slot, err)
}

// Promote renames the backup over the live file. rename(2) replaces the
// target atomically and consumes the backup in the same step.
func (b *FileBackend) Promote(handle string) error {
	err := os.Rename(b.Path(handle, Previous), b.Path(handle, Current))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s %s: %w", handle, Previous, ErrNotExist)
	}
	if err != nil {
		return fmt.Errorf("promote backup: %w", err)
	}
	return nil
}

// Lock takes an exclusive advisory lock on the session folder's lock file.
func (b *FileBackend) Lock(handle string) (func(), error) {
	if err := os.MkdirAll(handle, 0755); err != nil {
		return nil, fmt.Errorf("create session folder: %w", err)
	}
	return lockFile(filepath.Join(handle, lockFileName))
}
