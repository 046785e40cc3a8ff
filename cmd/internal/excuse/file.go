package excuse

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Persister loads and saves the full ordered record list.
type Persister interface {
	Load() ([]Excuse, error)
	Save(items []Excuse) error
}

// FileStore persists the list as a single indented JSON array.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore for path. Nothing is read until Load.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the data file location.
func (f *FileStore) Path() string { return f.path }

// Load reads and decodes the data file. A missing file is reported with an
// error satisfying errors.Is(err, fs.ErrNotExist).
func (f *FileStore) Load() ([]Excuse, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}

	var items []Excuse
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	if items == nil {
		items = []Excuse{}
	}
	return items, nil
}

// Save overwrites the data file with items.
// It writes a sibling temp file and renames it into place so a failed write
// never leaves a truncated file behind.
func (f *FileStore) Save(items []Excuse) error {
	if items == nil {
		items = []Excuse{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize excuses: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("rename to %s: %w", f.path, err)
	}
	return nil
}

// Check reports whether the data file's directory is reachable.
func (f *FileStore) Check() error {
	dir := filepath.Dir(f.path)
	st, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
