// Package jsonfile persists users and sessions as whole-collection JSON files
// that are loaded fully on start and rewritten fully on every mutation.
package jsonfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	UsersFile    = "users.json"
	SessionsFile = "sessions.json"
)

// DB is a directory holding the collection files.
type DB struct {
	dir string
}

// Open ensures dir exists and returns a handle to it.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &DB{dir: dir}, nil
}

func (db *DB) Dir() string { return db.dir }

func (db *DB) path(name string) string {
	return filepath.Join(db.dir, name)
}

// read decodes name into v. A missing file leaves v untouched and reports false.
func (db *DB) read(name string, v any) (bool, error) {
	data, err := os.ReadFile(db.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", name, err)
	}
	return true, nil
}

// write replaces name with the JSON encoding of v. The data is written to a
// temp file in the same directory, synced and renamed over the target, so a
// crash leaves either the old or the new collection on disk.
func (db *DB) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(db.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, db.path(name)); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", name, err)
	}

	if dir, err := os.Open(db.dir); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}
	return nil
}
