// Package store persists named artifacts as gob-encoded files in a
// directory. Each slot maps to one file; writes replace the slot
// atomically.
package store

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoSlot is returned by Get when the named slot has never been
// written. Callers treat it as recoverable.
var ErrNoSlot = errors.New("no such slot")

// Store is a directory of gob slot files.
type Store struct {
	dir string
}

// New opens a store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("new: could not create store directory: %v",
			err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

// Put gob-encodes v into the named slot. The slot file is written to a
// temporary file first and renamed into place so a crash mid-write never
// corrupts an existing slot.
func (s *Store) Put(slot string, v interface{}) error {
	path, err := s.path(slot)
	if err != nil {
		return fmt.Errorf("put: %v", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("put: could not create temporary file: %v", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("put: could not encode slot %v: %v", slot, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("put: could not close temporary file: %v", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("put: could not replace slot %v: %v", slot, err)
	}
	return nil
}

// Get decodes the named slot into v. Returns an error wrapping ErrNoSlot
// when the slot does not exist.
func (s *Store) Get(slot string, v interface{}) error {
	path, err := s.path(slot)
	if err != nil {
		return fmt.Errorf("get: %v", err)
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("get: slot %v: %w", slot, ErrNoSlot)
	}
	if err != nil {
		return fmt.Errorf("get: could not open slot %v: %v", slot, err)
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("get: could not decode slot %v: %v", slot, err)
	}
	return nil
}

// Has reports whether the named slot exists.
func (s *Store) Has(slot string) bool {
	path, err := s.path(slot)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Delete removes the named slot. Deleting a missing slot is not an
// error.
func (s *Store) Delete(slot string) error {
	path, err := s.path(slot)
	if err != nil {
		return fmt.Errorf("delete: %v", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete: could not remove slot %v: %v", slot, err)
	}
	return nil
}

func (s *Store) path(slot string) (string, error) {
	if slot == "" || strings.ContainsAny(slot, `/\`) {
		return "", fmt.Errorf("invalid slot name %q", slot)
	}
	return filepath.Join(s.dir, slot+".gob"), nil
}
